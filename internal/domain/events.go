package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventNewOrder    EventType = "new_order"
	EventOrderUpdate EventType = "order_update"
)

// OrderEvent is the snapshot published whenever an order is created or changes.
type OrderEvent struct {
	Type          EventType        `json:"type"`
	OrderID       string           `json:"order_id"`
	Customer      Customer         `json:"customer"`
	Status        Status           `json:"status"`
	PaymentStatus PaymentStatus    `json:"payment_status"`
	PaymentMethod PaymentMethod    `json:"payment_method"`
	CashValue     *decimal.Decimal `json:"cash_value,omitempty"`
	ChangeAmount  decimal.Decimal  `json:"change_amount"`
	TotalPrice    decimal.Decimal  `json:"total_price"`
	Items         []OrderItem      `json:"items"`
	IsLate        bool             `json:"is_late"`
	CreatedAt     time.Time        `json:"created_at"`
	Timestamp     time.Time        `json:"timestamp"`
}

func NewOrderEvent(eventType EventType, order *Order, now time.Time) OrderEvent {
	return OrderEvent{
		Type:          eventType,
		OrderID:       order.ID,
		Customer:      order.Customer,
		Status:        order.State.Status(),
		PaymentStatus: order.State.PaymentStatus(),
		PaymentMethod: order.PaymentMethod,
		CashValue:     order.CashValue,
		ChangeAmount:  order.ChangeAmount(),
		TotalPrice:    order.TotalPrice(),
		Items:         order.Items,
		IsLate:        order.IsLate(now),
		CreatedAt:     order.CreatedAt,
		Timestamp:     now.UTC(),
	}
}
