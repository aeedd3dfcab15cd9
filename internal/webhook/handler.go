package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/storefront-orders/internal/payment"
	"github.com/joao-fontenele/storefront-orders/internal/telemetry"
)

const actionPaymentUpdated = "payment.updated"

type PaymentReconciler interface {
	Reconcile(ctx context.Context, paymentID string) (Outcome, error)
}

type notification struct {
	Action string `json:"action"`
	Data   struct {
		ID payment.ResourceID `json:"id"`
	} `json:"data"`
}

type Handler struct {
	reconciler  PaymentReconciler
	instruments *telemetry.Instruments
	logger      *slog.Logger
}

func NewHandler(reconciler PaymentReconciler, instruments *telemetry.Instruments, logger *slog.Logger) *Handler {
	return &Handler{reconciler: reconciler, instruments: instruments, logger: logger}
}

func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("webhook handler panicked", "panic", rec)
			h.respond(ctx, w, http.StatusInternalServerError, "error", "internal server error")
		}
	}()

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.respond(ctx, w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var n notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		h.respond(ctx, w, http.StatusBadRequest, "invalid_payload", "invalid JSON payload")
		return
	}
	if n.Action == "" {
		h.respond(ctx, w, http.StatusBadRequest, "invalid_payload", "missing action")
		return
	}
	if n.Action != actionPaymentUpdated {
		h.logger.Info("webhook action ignored", "action", n.Action)
		h.respond(ctx, w, http.StatusOK, "ignored_action", "ignored")
		return
	}

	paymentID := n.Data.ID.String()
	if paymentID == "" {
		h.respond(ctx, w, http.StatusBadRequest, "invalid_payload", "missing payment id")
		return
	}

	outcome, err := h.reconciler.Reconcile(ctx, paymentID)
	switch {
	case err == nil:
		h.respond(ctx, w, http.StatusOK, string(outcome), string(outcome))
	case errors.Is(err, payment.ErrPaymentNotFound):
		h.logger.Warn("webhook payment not found upstream", "payment_id", paymentID)
		h.respond(ctx, w, http.StatusNotFound, "payment_not_found", "payment not found")
	case errors.Is(err, ErrOrderNotFound):
		h.logger.Warn("webhook payment has no order", "payment_id", paymentID)
		h.respond(ctx, w, http.StatusBadRequest, "order_not_found", "order not found")
	default:
		h.logger.Error("webhook reconciliation failed", "error", err, "payment_id", paymentID)
		h.respond(ctx, w, http.StatusInternalServerError, "error", "internal server error")
	}
}

func (h *Handler) respond(ctx context.Context, w http.ResponseWriter, status int, outcome, message string) {
	h.instruments.RecordWebhook(ctx, outcome)

	body := map[string]string{"status": message}
	if status >= http.StatusBadRequest {
		body = map[string]string{"error": message}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
