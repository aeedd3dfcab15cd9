package cart

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/storefront-orders/internal/domain"
)

type fakeStore struct {
	products map[string]domain.Product
	carts    map[string]map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		products: map[string]domain.Product{
			"p1": {ID: "p1", Name: "Brigadeiro", Price: decimal.RequireFromString("3.50"), IsActive: true},
			"p2": {ID: "p2", Name: "Beijinho", Price: decimal.RequireFromString("4.00"), IsActive: false},
		},
		carts: map[string]map[string]int{},
	}
}

func (s *fakeStore) AddItem(_ context.Context, cartID, productID string) error {
	p, ok := s.products[productID]
	if !ok || !p.IsActive {
		return ErrProductNotFound
	}
	if s.carts[cartID] == nil {
		s.carts[cartID] = map[string]int{}
	}
	s.carts[cartID][productID]++
	return nil
}

func (s *fakeStore) Get(_ context.Context, cartID string) (*domain.Cart, error) {
	cart := &domain.Cart{ID: cartID, Lines: []domain.CartLine{}}
	for id, qty := range s.carts[cartID] {
		p := s.products[id]
		cart.Lines = append(cart.Lines, domain.CartLine{
			ProductID: id, ProductName: p.Name, Price: p.Price, Quantity: qty, Active: p.IsActive,
		})
	}
	return cart, nil
}

func newTestHandler(store Store) *Handler {
	sessions := NewSessions(NewCookieStore([]byte("0123456789abcdef0123456789abcdef"), false))
	return NewHandler(store, sessions, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func addItem(t *testing.T, h *Handler, productID string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"product_id": {productID}}
	req := httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.HandleAddItem(rec, req)
	return rec
}

func TestHandler_HandleAddItem(t *testing.T) {
	t.Run("second add increments the same line", func(t *testing.T) {
		store := newFakeStore()
		h := newTestHandler(store)

		rec := addItem(t, h, "p1", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		cookies := rec.Result().Cookies()
		require.NotEmpty(t, cookies)

		rec = addItem(t, h, "p1", cookies)
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Success   bool `json:"success"`
			CartCount int  `json:"cart_count"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.True(t, body.Success)
		assert.Equal(t, 2, body.CartCount)
		assert.Len(t, store.carts, 1)
	})

	t.Run("inactive product is not found", func(t *testing.T) {
		rec := addItem(t, newTestHandler(newFakeStore()), "p2", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing product id", func(t *testing.T) {
		rec := addItem(t, newTestHandler(newFakeStore()), "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("accepts json body", func(t *testing.T) {
		h := newTestHandler(newFakeStore())
		req := httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(`{"product_id":"p1"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()

		h.HandleAddItem(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestHandler_HandleGet(t *testing.T) {
	store := newFakeStore()
	h := newTestHandler(store)

	rec := addItem(t, h, "p1", nil)
	cookies := rec.Result().Cookies()
	addItem(t, h, "p1", cookies)

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	h.HandleGet(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Lines []domain.CartLine `json:"lines"`
		Total decimal.Decimal   `json:"total"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Lines, 1)
	assert.Equal(t, 2, body.Lines[0].Quantity)
	assert.True(t, body.Total.Equal(decimal.RequireFromString("7.00")))
}

func TestSessions_CartIDWithoutCookie(t *testing.T) {
	s := NewSessions(NewCookieStore([]byte("0123456789abcdef0123456789abcdef"), false))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, s.CartID(req))
}
