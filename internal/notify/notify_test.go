package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/storefront-orders/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func cashEvent() domain.OrderEvent {
	cash := decimal.RequireFromString("60.00")
	return domain.OrderEvent{
		Type:          domain.EventNewOrder,
		OrderID:       "o-1",
		Customer:      domain.Customer{Name: "Ana", Phone: "(11) 98888-7777", Address: "Rua A, 1"},
		PaymentMethod: domain.PaymentMethodCash,
		PaymentStatus: domain.PaymentStatusPending,
		CashValue:     &cash,
		ChangeAmount:  decimal.RequireFromString("10.00"),
		TotalPrice:    decimal.RequireFromString("50.00"),
		Items: []domain.OrderItem{
			{ProductName: "Brigadeiro", Quantity: 2},
			{ProductName: "Bolo", Quantity: 1},
		},
	}
}

func TestAdminMessage(t *testing.T) {
	msg := AdminMessage(cashEvent())

	assert.Contains(t, msg, "*Customer:* Ana")
	assert.Contains(t, msg, "  • Brigadeiro (x2)\n  • Bolo (x1)")
	assert.Contains(t, msg, "*Total:* R$ 50.00")
	assert.Contains(t, msg, "💰 Cash\n⏳ Status: Pending")
	assert.Contains(t, msg, "Cash received: R$ 60.00")
	assert.Contains(t, msg, "Change: R$ 10.00")
}

func TestCustomerMessage_NonCashOmitsChange(t *testing.T) {
	e := cashEvent()
	e.PaymentMethod = domain.PaymentMethodPix
	e.CashValue = nil

	msg := CustomerMessage(e)

	assert.Contains(t, msg, "Hi *Ana*")
	assert.Contains(t, msg, "💳 PIX")
	assert.NotContains(t, msg, "Change")
}

func TestCustomerNumber(t *testing.T) {
	assert.Equal(t, "5511988887777", CustomerNumber("(11) 98888-7777"))
}

func TestEvolutionClient_SendText(t *testing.T) {
	t.Run("acknowledged", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/message/sendText/shop", r.URL.Path)
			assert.Equal(t, "secret", r.Header.Get("apikey"))

			var body evolutionTextMessage
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "5511999", body.Number)
			assert.Equal(t, "hello", body.TextMessage.Text)

			_, _ = w.Write([]byte(`{"key":{"id":"MSG1"}}`))
		}))
		defer srv.Close()

		c, err := NewEvolutionClient(EvolutionConfig{BaseURL: srv.URL + "/", APIKey: "secret", Instance: "shop"}, srv.Client())
		require.NoError(t, err)
		assert.NoError(t, c.SendText(context.Background(), "5511999", "hello"))
	})

	t.Run("missing key id is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"PENDING"}`))
		}))
		defer srv.Close()

		c, err := NewEvolutionClient(EvolutionConfig{BaseURL: srv.URL, Instance: "shop"}, srv.Client())
		require.NoError(t, err)
		assert.Error(t, c.SendText(context.Background(), "1", "x"))
	})

	t.Run("non-2xx is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		c, err := NewEvolutionClient(EvolutionConfig{BaseURL: srv.URL, Instance: "shop"}, srv.Client())
		require.NoError(t, err)
		assert.Error(t, c.SendText(context.Background(), "1", "x"))
	})
}

func TestEvolutionClient_ConnectionState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/instance/connectionState/shop", r.URL.Path)
		_, _ = w.Write([]byte(`{"instance":{"state":"open"}}`))
	}))
	defer srv.Close()

	c, err := NewEvolutionClient(EvolutionConfig{BaseURL: srv.URL, Instance: "shop"}, srv.Client())
	require.NoError(t, err)

	state, err := c.ConnectionState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "open", state)
}

func TestCallMeBotClient_SendText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "551100", q.Get("phone"))
		assert.Equal(t, "k", q.Get("apikey"))
		assert.Equal(t, "new order & more", q.Get("text"))
	}))
	defer srv.Close()

	c, err := NewCallMeBotClient(CallMeBotConfig{APIURL: srv.URL + "/whatsapp.php", APIKey: "k", Phone: "551100"}, srv.Client())
	require.NoError(t, err)
	assert.NoError(t, c.SendText(context.Background(), "ignored", "new order & more"))
}

type publisherFunc func(ctx context.Context, event domain.OrderEvent) error

func (f publisherFunc) PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error {
	return f(ctx, event)
}

func TestDispatcher(t *testing.T) {
	t.Run("prefers the publisher", func(t *testing.T) {
		var published, direct atomic.Int32
		d := NewDispatcher(
			publisherFunc(func(context.Context, domain.OrderEvent) error { published.Add(1); return nil }),
			func(context.Context, domain.OrderEvent) error { direct.Add(1); return nil },
			discardLogger(),
		)

		d.Dispatch(context.Background(), cashEvent())
		d.Wait()

		assert.Equal(t, int32(1), published.Load())
		assert.Equal(t, int32(0), direct.Load())
	})

	t.Run("survives a cancelled request context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		var ctxErr error
		d := NewDispatcher(nil, func(ctx context.Context, _ domain.OrderEvent) error {
			ctxErr = ctx.Err()
			return nil
		}, discardLogger())

		cancel()
		d.Dispatch(ctx, cashEvent())
		d.Wait()

		assert.NoError(t, ctxErr)
	})

	t.Run("errors and panics never escape", func(t *testing.T) {
		d := NewDispatcher(nil, func(context.Context, domain.OrderEvent) error {
			return errors.New("provider down")
		}, discardLogger())
		d.Dispatch(context.Background(), cashEvent())
		d.Wait()

		d = NewDispatcher(nil, func(context.Context, domain.OrderEvent) error {
			panic("boom")
		}, discardLogger())
		d.Dispatch(context.Background(), cashEvent())
		d.Wait()
	})

	t.Run("timeout bounds the delivery", func(t *testing.T) {
		var deadlineSet bool
		d := NewDispatcher(nil, func(ctx context.Context, _ domain.OrderEvent) error {
			_, deadlineSet = ctx.Deadline()
			return nil
		}, discardLogger(), WithTimeout(time.Second))

		d.Dispatch(context.Background(), cashEvent())
		d.Wait()

		assert.True(t, deadlineSet)
	})
}

func TestNewSender(t *testing.T) {
	evo := EvolutionConfig{BaseURL: "http://evo.local", Instance: "shop"}
	cmb := CallMeBotConfig{APIURL: "http://cmb.local", APIKey: "k", Phone: "5511"}

	s, err := NewSender(ProviderEvolution, evo, cmb, nil)
	require.NoError(t, err)
	assert.IsType(t, &EvolutionClient{}, s)

	s, err = NewSender(ProviderCallMeBot, evo, cmb, nil)
	require.NoError(t, err)
	assert.IsType(t, &CallMeBotClient{}, s)

	s, err = NewSender(ProviderNone, evo, cmb, nil)
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = NewSender("telegram", evo, cmb, nil)
	assert.Error(t, err)

	_, err = NewSender(ProviderCallMeBot, evo, CallMeBotConfig{}, nil)
	assert.Error(t, err)
}

func TestNewHTTPClient_TimeoutFollowsSetting(t *testing.T) {
	assert.Zero(t, NewHTTPClient(0).Timeout)
	assert.Equal(t, 5*time.Second, NewHTTPClient(5*time.Second).Timeout)
	assert.NotNil(t, NewHTTPClient(0).Transport)
}
