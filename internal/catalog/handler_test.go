package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/storefront-orders/internal/domain"
)

type fakeStore struct {
	products []domain.Product
	err      error
}

func (s *fakeStore) ListActive(context.Context) ([]domain.Product, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []domain.Product
	for _, p := range s.products {
		if p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) ToggleActive(_ context.Context, id string) (*domain.Product, error) {
	for i := range s.products {
		if s.products[i].ID == id {
			s.products[i].IsActive = !s.products[i].IsActive
			p := s.products[i]
			return &p, nil
		}
	}
	return nil, nil
}

func newTestHandler(store Store) *Handler {
	return NewHandler(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHandler_HandleListProducts(t *testing.T) {
	store := &fakeStore{products: []domain.Product{
		{ID: "p1", Name: "Brigadeiro", Price: decimal.RequireFromString("3.50"), IsActive: true},
		{ID: "p2", Name: "Beijinho", Price: decimal.RequireFromString("3.50"), IsActive: false},
	}}
	h := newTestHandler(store)

	rec := httptest.NewRecorder()
	h.HandleListProducts(rec, httptest.NewRequest(http.MethodGet, "/products", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var products []domain.Product
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&products))
	require.Len(t, products, 1)
	assert.Equal(t, "p1", products[0].ID)

	t.Run("empty list is an array", func(t *testing.T) {
		h := newTestHandler(&fakeStore{})
		rec := httptest.NewRecorder()
		h.HandleListProducts(rec, httptest.NewRequest(http.MethodGet, "/products", nil))
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("store failure", func(t *testing.T) {
		h := newTestHandler(&fakeStore{err: errors.New("db down")})
		rec := httptest.NewRecorder()
		h.HandleListProducts(rec, httptest.NewRequest(http.MethodGet, "/products", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHandler_HandleToggleActive(t *testing.T) {
	store := &fakeStore{products: []domain.Product{{ID: "p1", Name: "Brigadeiro", IsActive: true}}}
	h := newTestHandler(store)

	toggle := func(id string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/dashboard/products/"+id+"/toggle-active", nil)
		req.SetPathValue("id", id)
		rec := httptest.NewRecorder()
		h.HandleToggleActive(rec, req)
		return rec
	}

	rec := toggle("p1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, store.products[0].IsActive)

	toggle("p1")
	assert.True(t, store.products[0].IsActive)

	assert.Equal(t, http.StatusNotFound, toggle("missing").Code)
}
