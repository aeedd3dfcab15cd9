// Package checkout turns a session cart into an order and starts payment.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-orders/internal/domain"
	"github.com/joao-fontenele/storefront-orders/internal/payment"
	"github.com/joao-fontenele/storefront-orders/internal/telemetry"
)

const currencyID = "BRL"

type CartStore interface {
	Get(ctx context.Context, cartID string) (*domain.Cart, error)
	Clear(ctx context.Context, cartID string) error
}

type OrderStore interface {
	Create(ctx context.Context, order *domain.Order) error
	SetPayment(ctx context.Context, id, paymentID, paymentURL string) error
	MarkAbandoned(ctx context.Context, id string) error
}

type Gateway interface {
	ChargePix(ctx context.Context, req payment.PixRequest) (*payment.Charge, error)
	CreateCardPreference(ctx context.Context, items []payment.PreferenceItem, orderRef string) (*payment.Preference, error)
}

type Notifier interface {
	Dispatch(ctx context.Context, event domain.OrderEvent)
}

// Form is the customer's checkout submission.
type Form struct {
	Name          string
	Phone         string
	TaxID         string
	Address       string
	Email         string
	PaymentMethod domain.PaymentMethod
	CashValue     string
}

func (f Form) validate() error {
	required := []struct{ name, value string }{
		{"name", f.Name},
		{"phone", f.Phone},
		{"address", f.Address},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			return &FormError{Field: field.name, Message: "is required"}
		}
	}
	if !f.PaymentMethod.Valid() {
		return &FormError{Field: "payment_method", Message: fmt.Sprintf("unknown payment method %q", f.PaymentMethod)}
	}
	return nil
}

func (f Form) customer() domain.Customer {
	return domain.Customer{
		Name:    strings.TrimSpace(f.Name),
		Phone:   strings.TrimSpace(f.Phone),
		Address: strings.TrimSpace(f.Address),
		TaxID:   strings.TrimSpace(f.TaxID),
		Email:   strings.TrimSpace(f.Email),
	}
}

type Result struct {
	OrderID    string          `json:"order_id"`
	Total      decimal.Decimal `json:"total"`
	Change     decimal.Decimal `json:"change_amount"`
	PaymentURL string          `json:"payment_url,omitempty"`
	PaymentID  string          `json:"payment_id,omitempty"`
}

type Service struct {
	carts       CartStore
	orders      OrderStore
	gateway     Gateway
	notifier    Notifier
	instruments *telemetry.Instruments
	payerEmail  string
	logger      *slog.Logger
	now         func() time.Time
}

type Option func(*Service)

// WithGateway enables pix and card checkouts.
func WithGateway(g Gateway) Option {
	return func(s *Service) { s.gateway = g }
}

// WithPayerEmail sets the payer email used when the customer left it blank.
func WithPayerEmail(email string) Option {
	return func(s *Service) { s.payerEmail = email }
}

func WithInstruments(i *telemetry.Instruments) Option {
	return func(s *Service) { s.instruments = i }
}

func NewService(carts CartStore, orders OrderStore, notifier Notifier, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		carts:    carts,
		orders:   orders,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Checkout places an order for the cart. Gateway orders are staged until the
// charge succeeds; on a gateway failure the order is marked abandoned and the
// cart is kept so the customer can retry.
func (s *Service) Checkout(ctx context.Context, cartID string, form Form) (*Result, error) {
	result, err := s.checkout(ctx, cartID, form)
	s.instruments.RecordCheckout(ctx, string(form.PaymentMethod), outcome(err))
	return result, err
}

func (s *Service) checkout(ctx context.Context, cartID string, form Form) (*Result, error) {
	if err := form.validate(); err != nil {
		return nil, err
	}
	if cartID == "" {
		return nil, ErrEmptyCart
	}

	cart, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if cart == nil || len(cart.Lines) == 0 {
		return nil, ErrEmptyCart
	}

	var inactive []string
	items := make([]domain.OrderItem, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		if !line.Active {
			inactive = append(inactive, line.ProductName)
			continue
		}
		items = append(items, domain.OrderItem{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			Price:       line.Price,
		})
	}
	if len(inactive) > 0 {
		return nil, &InactiveProductsError{Products: inactive}
	}

	total := cart.Total()
	customer := form.customer()

	var (
		cashValue *decimal.Decimal
		pixReq    payment.PixRequest
	)
	switch form.PaymentMethod {
	case domain.PaymentMethodCash:
		tendered, err := ParseLocaleDecimal(form.CashValue)
		switch {
		case errors.Is(err, errExponentNotation):
			return nil, &FormError{Field: "cash_value", Message: "must be a plain amount such as 50,00"}
		case err != nil:
			tendered = decimal.Zero
		case tendered.GreaterThan(maxCashValue):
			return nil, &FormError{Field: "cash_value", Message: fmt.Sprintf("must not exceed %s", maxCashValue.StringFixed(2))}
		}
		if tendered.LessThan(total) {
			return nil, ErrInsufficientCash
		}
		cashValue = &tendered

	case domain.PaymentMethodPix:
		if s.gateway == nil {
			return nil, ErrGatewayUnavailable
		}
		pixReq = payment.PixRequest{
			Amount:      total,
			PayerEmail:  s.payerEmailFor(customer),
			PayerTaxID:  customer.TaxID,
			Description: fmt.Sprintf("Storefront order for %s", customer.Name),
		}
		if err := pixReq.Validate(); err != nil {
			return nil, err
		}

	case domain.PaymentMethodCard:
		if s.gateway == nil {
			return nil, ErrGatewayUnavailable
		}
	}

	now := s.now()
	order, err := domain.NewOrder(customer, form.PaymentMethod, cashValue, items, now)
	if err != nil {
		return nil, err
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.notifier.Dispatch(ctx, domain.NewOrderEvent(domain.EventNewOrder, order, now))

	result := &Result{
		OrderID: order.ID,
		Total:   total,
		Change:  order.ChangeAmount(),
	}

	switch form.PaymentMethod {
	case domain.PaymentMethodPix:
		charge, err := s.gateway.ChargePix(ctx, pixReq)
		if err != nil {
			s.abandon(ctx, order.ID, err)
			return nil, fmt.Errorf("pix charge for order %s: %w", order.ID, err)
		}
		result.PaymentID = charge.ID.String()
		result.PaymentURL = charge.TicketURL

	case domain.PaymentMethodCard:
		pref, err := s.gateway.CreateCardPreference(ctx, preferenceItems(items), order.ID)
		if err != nil {
			s.abandon(ctx, order.ID, err)
			return nil, fmt.Errorf("card preference for order %s: %w", order.ID, err)
		}
		result.PaymentURL = pref.InitPoint
	}

	if order.Stage == domain.StageAwaitingGateway {
		if err := s.orders.SetPayment(ctx, order.ID, result.PaymentID, result.PaymentURL); err != nil {
			return nil, fmt.Errorf("store payment for order %s: %w", order.ID, err)
		}
	}

	if err := s.carts.Clear(ctx, cartID); err != nil {
		s.logger.Error("failed to clear cart", "error", err, "cart_id", cartID, "order_id", order.ID)
	}

	s.logger.Info("checkout completed",
		"order_id", order.ID,
		"payment_method", form.PaymentMethod,
		"total", total.StringFixed(2),
	)
	return result, nil
}

func outcome(err error) string {
	var (
		formErr     *FormError
		inactiveErr *InactiveProductsError
		validErr    *payment.ValidationError
		apiErr      *payment.APIError
	)
	switch {
	case err == nil:
		return "placed"
	case errors.As(err, &formErr), errors.As(err, &inactiveErr), errors.As(err, &validErr),
		errors.Is(err, ErrEmptyCart), errors.Is(err, ErrInsufficientCash):
		return "rejected"
	case errors.As(err, &apiErr):
		return "gateway_error"
	default:
		return "error"
	}
}

func (s *Service) payerEmailFor(c domain.Customer) string {
	if c.Email != "" {
		return c.Email
	}
	return s.payerEmail
}

// abandon runs even when the request context is already cancelled.
func (s *Service) abandon(ctx context.Context, orderID string, cause error) {
	s.logger.Error("payment gateway failed, abandoning order", "error", cause, "order_id", orderID)
	if err := s.orders.MarkAbandoned(context.WithoutCancel(ctx), orderID); err != nil {
		s.logger.Error("failed to mark order abandoned", "error", err, "order_id", orderID)
	}
}

func preferenceItems(items []domain.OrderItem) []payment.PreferenceItem {
	out := make([]payment.PreferenceItem, 0, len(items))
	for _, item := range items {
		out = append(out, payment.PreferenceItem{
			ID:         item.ProductID,
			Title:      item.ProductName,
			Quantity:   item.Quantity,
			CurrencyID: currencyID,
			UnitPrice:  item.Price,
		})
	}
	return out
}

// maxCashValue is the largest amount the orders.cash_value column holds.
var maxCashValue = decimal.RequireFromString("99999999.99")

var errExponentNotation = errors.New("exponent notation is not accepted")

// ParseLocaleDecimal parses amounts typed as "50,00" or "1.234,56" as well as
// plain "50.00". Exponent forms such as "1e3" are rejected.
func ParseLocaleDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "R$"))
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if strings.ContainsAny(s, "eE") {
		return decimal.Zero, errExponentNotation
	}
	return d, nil
}
