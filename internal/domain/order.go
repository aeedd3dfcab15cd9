package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// LateAfter is how long an order may stay pending before it counts as late.
const LateAfter = 25 * time.Minute

type PaymentMethod string

const (
	PaymentMethodPix  PaymentMethod = "pix"
	PaymentMethodCash PaymentMethod = "cash"
	PaymentMethodCard PaymentMethod = "card"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodPix, PaymentMethodCash, PaymentMethodCard:
		return true
	}
	return false
}

// Stage tracks where an order is in checkout. Orders waiting on the payment
// gateway are staged and can be discarded without touching live orders.
type Stage string

const (
	StageAwaitingGateway Stage = "awaiting_gateway"
	StagePlaced          Stage = "placed"
	StageAbandoned       Stage = "abandoned"
)

var (
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrCashValueNotAllowed  = errors.New("cash value is only accepted for cash payments")
	ErrInvalidQuantity      = errors.New("item quantity must be greater than zero")
)

type OrderItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

// Subtotal uses the product's current price.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Customer struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	TaxID   string `json:"tax_id,omitempty"`
	Email   string `json:"email,omitempty"`
}

type Order struct {
	ID            string           `json:"id"`
	Customer      Customer         `json:"customer"`
	State         State            `json:"state"`
	PaymentMethod PaymentMethod    `json:"payment_method"`
	CashValue     *decimal.Decimal `json:"cash_value,omitempty"`
	PaymentID     string           `json:"payment_id,omitempty"`
	PaymentURL    string           `json:"payment_url,omitempty"`
	Stage         Stage            `json:"stage"`
	Items         []OrderItem      `json:"items"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// NewOrder builds a pending order. cashValue must be nil unless method is cash.
func NewOrder(customer Customer, method PaymentMethod, cashValue *decimal.Decimal, items []OrderItem, now time.Time) (*Order, error) {
	if !method.Valid() {
		return nil, ErrInvalidPaymentMethod
	}
	if cashValue != nil && method != PaymentMethodCash {
		return nil, ErrCashValueNotAllowed
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
	}

	stage := StageAwaitingGateway
	if method == PaymentMethodCash {
		stage = StagePlaced
	}

	return &Order{
		Customer:      customer,
		State:         InitialState,
		PaymentMethod: method,
		CashValue:     cashValue,
		Stage:         stage,
		Items:         items,
		CreatedAt:     now.UTC(),
		UpdatedAt:     now.UTC(),
	}, nil
}

func (o *Order) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// ChangeAmount is zero for non-cash orders.
func (o *Order) ChangeAmount() decimal.Decimal {
	if o.PaymentMethod != PaymentMethodCash || o.CashValue == nil {
		return decimal.Zero
	}
	return o.CashValue.Sub(o.TotalPrice())
}

func (o *Order) IsLate(now time.Time) bool {
	return o.State.Status() == StatusPending && now.Sub(o.CreatedAt) > LateAfter
}

func (o *Order) IsFinalized() bool {
	return o.State.Finalized()
}

func (o *Order) CanEditItems() bool {
	return o.State.PaymentStatus() != PaymentStatusPaid
}

func (o *Order) CanEditBasicInfo() bool {
	return !o.IsFinalized()
}

// View flattens the order with its derived fields for API responses.
type OrderView struct {
	*Order
	Status           Status          `json:"status"`
	PaymentStatus    PaymentStatus   `json:"payment_status"`
	TotalPrice       decimal.Decimal `json:"total_price"`
	ChangeAmount     decimal.Decimal `json:"change_amount"`
	IsLate           bool            `json:"is_late"`
	IsFinalized      bool            `json:"is_finalized"`
	CanEditItems     bool            `json:"can_edit_items"`
	CanEditBasicInfo bool            `json:"can_edit_basic_info"`
}

func (o *Order) View(now time.Time) OrderView {
	return OrderView{
		Order:            o,
		Status:           o.State.Status(),
		PaymentStatus:    o.State.PaymentStatus(),
		TotalPrice:       o.TotalPrice(),
		ChangeAmount:     o.ChangeAmount(),
		IsLate:           o.IsLate(now),
		IsFinalized:      o.IsFinalized(),
		CanEditItems:     o.CanEditItems(),
		CanEditBasicInfo: o.CanEditBasicInfo(),
	}
}
