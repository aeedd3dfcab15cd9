// Package cart keeps the per-session shopping cart.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-orders/internal/domain"
)

type Store interface {
	AddItem(ctx context.Context, cartID, productID string) error
	Get(ctx context.Context, cartID string) (*domain.Cart, error)
}

type Handler struct {
	store    Store
	sessions *Sessions
	logger   *slog.Logger
}

func NewHandler(store Store, sessions *Sessions, logger *slog.Logger) *Handler {
	return &Handler{
		store:    store,
		sessions: sessions,
		logger:   logger,
	}
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
}

// HandleAddItem accepts product_id as JSON or as a form field.
func (h *Handler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	} else {
		req.ProductID = r.PostFormValue("product_id")
	}

	if strings.TrimSpace(req.ProductID) == "" {
		h.writeError(w, http.StatusBadRequest, "missing product_id")
		return
	}

	cartID, err := h.sessions.Resolve(w, r)
	if err != nil {
		h.logger.Error("failed to save session", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if err := h.store.AddItem(r.Context(), cartID, req.ProductID); err != nil {
		if errors.Is(err, ErrProductNotFound) {
			h.writeError(w, http.StatusNotFound, "product not found")
			return
		}
		h.logger.Error("failed to add cart item", "error", err, "cart_id", cartID, "product_id", req.ProductID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	cart, err := h.store.Get(r.Context(), cartID)
	if err != nil {
		h.logger.Error("failed to load cart", "error", err, "cart_id", cartID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("cart item added", "cart_id", cartID, "product_id", req.ProductID)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"cart_count": cart.Count(),
	})
}

type cartResponse struct {
	*domain.Cart
	Total decimal.Decimal `json:"total"`
	Count int             `json:"cart_count"`
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	cartID, err := h.sessions.Resolve(w, r)
	if err != nil {
		h.logger.Error("failed to save session", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	cart, err := h.store.Get(r.Context(), cartID)
	if err != nil {
		h.logger.Error("failed to load cart", "error", err, "cart_id", cartID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, cartResponse{Cart: cart, Total: cart.Total(), Count: cart.Count()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
