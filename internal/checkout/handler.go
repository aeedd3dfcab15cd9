package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/storefront-orders/internal/domain"
	"github.com/joao-fontenele/storefront-orders/internal/payment"
)

// CartIDResolver reads the cart id bound to the request's session.
type CartIDResolver interface {
	CartID(r *http.Request) string
}

type Checkouter interface {
	Checkout(ctx context.Context, cartID string, form Form) (*Result, error)
}

type Handler struct {
	service  Checkouter
	sessions CartIDResolver
	logger   *slog.Logger
}

func NewHandler(service Checkouter, sessions CartIDResolver, logger *slog.Logger) *Handler {
	return &Handler{service: service, sessions: sessions, logger: logger}
}

func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}

	form := Form{
		Name:          r.PostForm.Get("name"),
		Phone:         r.PostForm.Get("phone"),
		TaxID:         r.PostForm.Get("tax_id"),
		Address:       r.PostForm.Get("address"),
		Email:         r.PostForm.Get("email"),
		PaymentMethod: domain.PaymentMethod(r.PostForm.Get("payment_method")),
		CashValue:     r.PostForm.Get("cash_value"),
	}

	result, err := h.service.Checkout(r.Context(), h.sessions.CartID(r), form)
	if err != nil {
		h.writeCheckoutError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) writeCheckoutError(w http.ResponseWriter, err error) {
	var (
		formErr     *FormError
		inactiveErr *InactiveProductsError
		validErr    *payment.ValidationError
		apiErr      *payment.APIError
	)

	switch {
	case errors.As(err, &formErr), errors.Is(err, ErrEmptyCart):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &inactiveErr):
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":    err.Error(),
			"products": inactiveErr.Products,
		})
	case errors.Is(err, ErrInsufficientCash):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &validErr):
		h.writeError(w, http.StatusBadRequest, validErr.Error())
	case errors.As(err, &apiErr):
		h.writeError(w, http.StatusBadGateway, apiErr.Error())
	case errors.Is(err, ErrGatewayUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error("checkout failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
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
