package checkout

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/storefront-orders/internal/domain"
	"github.com/joao-fontenele/storefront-orders/internal/notify"
	"github.com/joao-fontenele/storefront-orders/internal/payment"
)

type fakeCarts struct {
	carts   map[string]*domain.Cart
	cleared []string
}

func (c *fakeCarts) Get(_ context.Context, cartID string) (*domain.Cart, error) {
	return c.carts[cartID], nil
}

func (c *fakeCarts) Clear(_ context.Context, cartID string) error {
	c.cleared = append(c.cleared, cartID)
	return nil
}

type fakeOrders struct {
	created   []*domain.Order
	payments  map[string][2]string
	abandoned []string
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{payments: map[string][2]string{}}
}

func (o *fakeOrders) Create(_ context.Context, order *domain.Order) error {
	order.ID = "order-1"
	o.created = append(o.created, order)
	return nil
}

func (o *fakeOrders) SetPayment(_ context.Context, id, paymentID, paymentURL string) error {
	o.payments[id] = [2]string{paymentID, paymentURL}
	return nil
}

func (o *fakeOrders) MarkAbandoned(ctx context.Context, id string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	o.abandoned = append(o.abandoned, id)
	return nil
}

type fakeGateway struct {
	pixErr     error
	prefErr    error
	pixReq     payment.PixRequest
	prefItems  []payment.PreferenceItem
	prefRef    string
	pixCharged bool
}

func (g *fakeGateway) ChargePix(_ context.Context, req payment.PixRequest) (*payment.Charge, error) {
	g.pixCharged = true
	g.pixReq = req
	if g.pixErr != nil {
		return nil, g.pixErr
	}
	return &payment.Charge{ID: "123456", Status: "pending", TicketURL: "https://pay.example/ticket/123456"}, nil
}

func (g *fakeGateway) CreateCardPreference(_ context.Context, items []payment.PreferenceItem, orderRef string) (*payment.Preference, error) {
	g.prefItems = items
	g.prefRef = orderRef
	if g.prefErr != nil {
		return nil, g.prefErr
	}
	return &payment.Preference{ID: "pref-1", InitPoint: "https://pay.example/checkout/pref-1"}, nil
}

type recordingNotifier struct {
	events []domain.OrderEvent
}

func (n *recordingNotifier) Dispatch(_ context.Context, event domain.OrderEvent) {
	n.events = append(n.events, event)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleCart(active bool) *domain.Cart {
	return &domain.Cart{ID: "cart-1", Lines: []domain.CartLine{
		{ProductID: "a", ProductName: "Brigadeiro", Price: decimal.RequireFromString("10.00"), Quantity: 2, Active: true},
		{ProductID: "b", ProductName: "Bolo de Cenoura", Price: decimal.RequireFromString("30.00"), Quantity: 1, Active: active},
	}}
}

type fixture struct {
	carts    *fakeCarts
	orders   *fakeOrders
	gateway  *fakeGateway
	notifier *recordingNotifier
	service  *Service
}

func newFixture(cart *domain.Cart) *fixture {
	f := &fixture{
		carts:    &fakeCarts{carts: map[string]*domain.Cart{"cart-1": cart}},
		orders:   newFakeOrders(),
		gateway:  &fakeGateway{},
		notifier: &recordingNotifier{},
	}
	f.service = NewService(f.carts, f.orders, f.notifier, discardLogger(),
		WithGateway(f.gateway), WithPayerEmail("store@example.com"))
	f.service.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return f
}

func cashForm(value string) Form {
	return Form{Name: "Ana", Phone: "11999990000", Address: "Rua A, 1", PaymentMethod: domain.PaymentMethodCash, CashValue: value}
}

func TestCheckout_Cash(t *testing.T) {
	t.Run("exact comma-decimal amount", func(t *testing.T) {
		f := newFixture(sampleCart(true))

		result, err := f.service.Checkout(context.Background(), "cart-1", cashForm("50,00"))

		require.NoError(t, err)
		assert.Equal(t, "order-1", result.OrderID)
		assert.True(t, result.Total.Equal(decimal.NewFromInt(50)))
		assert.True(t, result.Change.IsZero())

		require.Len(t, f.orders.created, 1)
		order := f.orders.created[0]
		assert.Equal(t, domain.StagePlaced, order.Stage)
		assert.Equal(t, domain.InitialState, order.State)
		require.NotNil(t, order.CashValue)
		assert.True(t, order.CashValue.Equal(decimal.NewFromInt(50)))
		assert.Len(t, order.Items, 2)

		assert.Equal(t, []string{"cart-1"}, f.carts.cleared)
		assert.Empty(t, f.orders.payments)
		require.Len(t, f.notifier.events, 1)
		assert.Equal(t, domain.EventNewOrder, f.notifier.events[0].Type)
	})

	t.Run("change is returned", func(t *testing.T) {
		f := newFixture(sampleCart(true))
		result, err := f.service.Checkout(context.Background(), "cart-1", cashForm("1.000,00"))
		require.NoError(t, err)
		assert.True(t, result.Change.Equal(decimal.NewFromInt(950)))
	})

	t.Run("insufficient cash", func(t *testing.T) {
		f := newFixture(sampleCart(true))
		_, err := f.service.Checkout(context.Background(), "cart-1", cashForm("49,99"))
		assert.ErrorIs(t, err, ErrInsufficientCash)
		assert.Empty(t, f.orders.created)
		assert.Empty(t, f.carts.cleared)
	})

	t.Run("unparsable cash counts as zero", func(t *testing.T) {
		f := newFixture(sampleCart(true))
		_, err := f.service.Checkout(context.Background(), "cart-1", cashForm("fifty"))
		assert.ErrorIs(t, err, ErrInsufficientCash)
	})

	for _, value := range []string{"1e12", "1,5E3", "123456789012,00", "100.000.000,00"} {
		t.Run("out of range cash "+value, func(t *testing.T) {
			f := newFixture(sampleCart(true))

			_, err := f.service.Checkout(context.Background(), "cart-1", cashForm(value))

			var formErr *FormError
			require.ErrorAs(t, err, &formErr)
			assert.Equal(t, "cash_value", formErr.Field)
			assert.Empty(t, f.orders.created)
			assert.Empty(t, f.notifier.events)
		})
	}

	t.Run("largest storable cash value", func(t *testing.T) {
		f := newFixture(sampleCart(true))
		result, err := f.service.Checkout(context.Background(), "cart-1", cashForm("99.999.999,99"))
		require.NoError(t, err)
		assert.True(t, result.Change.Equal(decimal.RequireFromString("99999949.99")))
	})
}

func TestCheckout_Rejections(t *testing.T) {
	t.Run("inactive product blocks the order", func(t *testing.T) {
		f := newFixture(sampleCart(false))

		_, err := f.service.Checkout(context.Background(), "cart-1", cashForm("100"))

		var inactive *InactiveProductsError
		require.ErrorAs(t, err, &inactive)
		assert.Equal(t, []string{"Bolo de Cenoura"}, inactive.Products)
		assert.Empty(t, f.orders.created)
		assert.Empty(t, f.notifier.events)
	})

	t.Run("empty cart", func(t *testing.T) {
		f := newFixture(&domain.Cart{ID: "cart-1"})
		_, err := f.service.Checkout(context.Background(), "cart-1", cashForm("100"))
		assert.ErrorIs(t, err, ErrEmptyCart)
	})

	t.Run("unknown cart", func(t *testing.T) {
		f := newFixture(sampleCart(true))
		_, err := f.service.Checkout(context.Background(), "other", cashForm("100"))
		assert.ErrorIs(t, err, ErrEmptyCart)
	})

	t.Run("missing name", func(t *testing.T) {
		f := newFixture(sampleCart(true))
		form := cashForm("100")
		form.Name = " "
		_, err := f.service.Checkout(context.Background(), "cart-1", form)
		var formErr *FormError
		require.ErrorAs(t, err, &formErr)
		assert.Equal(t, "name", formErr.Field)
	})

	t.Run("pix request validated before persisting", func(t *testing.T) {
		f := newFixture(sampleCart(true))
		form := Form{Name: "Ana", Phone: "1", Address: "x", TaxID: "123", PaymentMethod: domain.PaymentMethodPix}

		_, err := f.service.Checkout(context.Background(), "cart-1", form)

		var validErr *payment.ValidationError
		require.ErrorAs(t, err, &validErr)
		assert.Equal(t, "payer_tax_id", validErr.Field)
		assert.Empty(t, f.orders.created)
		assert.False(t, f.gateway.pixCharged)
	})

	t.Run("gateway methods need a gateway", func(t *testing.T) {
		f := newFixture(sampleCart(true))
		f.service.gateway = nil
		form := Form{Name: "Ana", Phone: "1", Address: "x", PaymentMethod: domain.PaymentMethodCard}
		_, err := f.service.Checkout(context.Background(), "cart-1", form)
		assert.ErrorIs(t, err, ErrGatewayUnavailable)
	})
}

func pixForm() Form {
	return Form{Name: "Ana", Phone: "11999990000", Address: "Rua A, 1", TaxID: "123.456.789-09", PaymentMethod: domain.PaymentMethodPix}
}

func TestCheckout_Pix(t *testing.T) {
	t.Run("charge stored and cart cleared", func(t *testing.T) {
		f := newFixture(sampleCart(true))

		result, err := f.service.Checkout(context.Background(), "cart-1", pixForm())

		require.NoError(t, err)
		assert.Equal(t, "123456", result.PaymentID)
		assert.Equal(t, "https://pay.example/ticket/123456", result.PaymentURL)
		assert.Equal(t, [2]string{"123456", "https://pay.example/ticket/123456"}, f.orders.payments["order-1"])
		assert.Equal(t, domain.StageAwaitingGateway, f.orders.created[0].Stage)
		assert.Equal(t, "store@example.com", f.gateway.pixReq.PayerEmail)
		assert.True(t, f.gateway.pixReq.Amount.Equal(decimal.NewFromInt(50)))
		assert.Equal(t, []string{"cart-1"}, f.carts.cleared)
	})

	t.Run("customer email wins over the default", func(t *testing.T) {
		f := newFixture(sampleCart(true))
		form := pixForm()
		form.Email = "ana@example.com"
		_, err := f.service.Checkout(context.Background(), "cart-1", form)
		require.NoError(t, err)
		assert.Equal(t, "ana@example.com", f.gateway.pixReq.PayerEmail)
	})

	t.Run("gateway failure abandons the order and keeps the cart", func(t *testing.T) {
		f := newFixture(sampleCart(true))
		f.gateway.pixErr = &payment.APIError{Op: "charge pix", StatusCode: http.StatusBadRequest, Status: "rejected"}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		_, err := f.service.Checkout(ctx, "cart-1", pixForm())

		var apiErr *payment.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, []string{"order-1"}, f.orders.abandoned)
		assert.Empty(t, f.orders.payments)
		assert.Empty(t, f.carts.cleared)
		// the notification already went out for the persisted order
		assert.Len(t, f.notifier.events, 1)
	})
}

func TestCheckout_Card(t *testing.T) {
	t.Run("preference url becomes the payment url", func(t *testing.T) {
		f := newFixture(sampleCart(true))
		form := Form{Name: "Ana", Phone: "1", Address: "x", PaymentMethod: domain.PaymentMethodCard}

		result, err := f.service.Checkout(context.Background(), "cart-1", form)

		require.NoError(t, err)
		assert.Equal(t, "https://pay.example/checkout/pref-1", result.PaymentURL)
		assert.Equal(t, "order-1", f.gateway.prefRef)
		require.Len(t, f.gateway.prefItems, 2)
		assert.Equal(t, "BRL", f.gateway.prefItems[0].CurrencyID)
		assert.Equal(t, 2, f.gateway.prefItems[0].Quantity)
		assert.Equal(t, [2]string{"", "https://pay.example/checkout/pref-1"}, f.orders.payments["order-1"])
	})

	t.Run("preference failure", func(t *testing.T) {
		f := newFixture(sampleCart(true))
		f.gateway.prefErr = &payment.APIError{Op: "create preference", Err: errors.New("connection refused")}
		form := Form{Name: "Ana", Phone: "1", Address: "x", PaymentMethod: domain.PaymentMethodCard}

		_, err := f.service.Checkout(context.Background(), "cart-1", form)

		require.Error(t, err)
		assert.Equal(t, []string{"order-1"}, f.orders.abandoned)
		assert.Empty(t, f.carts.cleared)
	})
}

func TestCheckout_NotificationFailureDoesNotAbort(t *testing.T) {
	f := newFixture(sampleCart(true))
	failing := func(context.Context, domain.OrderEvent) error { return errors.New("whatsapp down") }
	dispatcher := notify.NewDispatcher(nil, failing, discardLogger())
	f.service.notifier = dispatcher

	result, err := f.service.Checkout(context.Background(), "cart-1", cashForm("50,00"))
	dispatcher.Wait()

	require.NoError(t, err)
	assert.Equal(t, "order-1", result.OrderID)
	assert.Equal(t, []string{"cart-1"}, f.carts.cleared)
}

func TestParseLocaleDecimal(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"50,00", "50"},
		{"1.234,56", "1234.56"},
		{"50.00", "50"},
		{" R$ 12,5 ", "12.5"},
		{"100", "100"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLocaleDecimal(tt.in)
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}

	_, err := ParseLocaleDecimal("abc")
	assert.Error(t, err)

	_, err = ParseLocaleDecimal("2e3")
	assert.ErrorIs(t, err, errExponentNotation)
}

type staticResolver string

func (s staticResolver) CartID(*http.Request) string { return string(s) }

func TestHandler_HandleCheckout(t *testing.T) {
	post := func(h *Handler, form url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		h.HandleCheckout(rec, req)
		return rec
	}
	base := url.Values{
		"name":           {"Ana"},
		"phone":          {"11999990000"},
		"address":        {"Rua A, 1"},
		"payment_method": {"cash"},
		"cash_value":     {"50,00"},
	}

	t.Run("created", func(t *testing.T) {
		f := newFixture(sampleCart(true))
		h := NewHandler(f.service, staticResolver("cart-1"), discardLogger())
		rec := post(h, base)
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), `"order_id":"order-1"`)
	})

	t.Run("inactive products", func(t *testing.T) {
		f := newFixture(sampleCart(false))
		h := NewHandler(f.service, staticResolver("cart-1"), discardLogger())
		rec := post(h, base)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "Bolo de Cenoura")
	})

	t.Run("no session cart", func(t *testing.T) {
		f := newFixture(sampleCart(true))
		h := NewHandler(f.service, staticResolver(""), discardLogger())
		assert.Equal(t, http.StatusBadRequest, post(h, base).Code)
	})

	t.Run("gateway error", func(t *testing.T) {
		f := newFixture(sampleCart(true))
		f.gateway.pixErr = &payment.APIError{Op: "charge pix", StatusCode: http.StatusInternalServerError, Body: "boom"}
		h := NewHandler(f.service, staticResolver("cart-1"), discardLogger())
		form := url.Values{
			"name": {"Ana"}, "phone": {"1"}, "address": {"x"},
			"tax_id": {"12345678909"}, "payment_method": {"pix"},
		}
		assert.Equal(t, http.StatusBadGateway, post(h, form).Code)
	})
}
