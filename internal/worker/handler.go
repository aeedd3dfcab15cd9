package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joao-fontenele/storefront-orders/internal/domain"
	"github.com/joao-fontenele/storefront-orders/internal/notify"
)

type Sender interface {
	SendText(ctx context.Context, number, text string) error
}

// NotificationHandler turns order events into WhatsApp messages.
type NotificationHandler struct {
	sender         Sender
	adminNumber    string
	notifyCustomer bool
	logger         *slog.Logger
}

func NewNotificationHandler(sender Sender, adminNumber string, logger *slog.Logger) *NotificationHandler {
	notifyCustomer := true
	if fixed, ok := sender.(interface{ RecipientFixed() bool }); ok && fixed.RecipientFixed() {
		notifyCustomer = false
	}
	return &NotificationHandler{
		sender:         sender,
		adminNumber:    adminNumber,
		notifyCustomer: notifyCustomer,
		logger:         logger,
	}
}

// Handle sends the admin alert and the customer confirmation for new
// orders. Only the admin alert failing is reported as an error.
func (h *NotificationHandler) Handle(ctx context.Context, event domain.OrderEvent) error {
	if event.Type != domain.EventNewOrder {
		h.logger.Info("order updated", "order_id", event.OrderID,
			"status", event.Status, "payment_status", event.PaymentStatus)
		return nil
	}

	h.logger.Info("processing new order event", "order_id", event.OrderID)

	if err := h.sender.SendText(ctx, h.adminNumber, notify.AdminMessage(event)); err != nil {
		return fmt.Errorf("send admin notification: %w", err)
	}

	if h.notifyCustomer && event.Customer.Phone != "" {
		number := notify.CustomerNumber(event.Customer.Phone)
		if err := h.sender.SendText(ctx, number, notify.CustomerMessage(event)); err != nil {
			h.logger.Error("failed to notify customer", "error", err, "order_id", event.OrderID)
		}
	}

	h.logger.Info("order notifications sent", "order_id", event.OrderID)
	return nil
}
