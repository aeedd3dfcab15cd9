// Package webhook applies gateway payment notifications to orders.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joao-fontenele/storefront-orders/internal/domain"
	"github.com/joao-fontenele/storefront-orders/internal/payment"
)

var ErrOrderNotFound = errors.New("no order matches the payment")

type PaymentFetcher interface {
	GetPaymentInfo(ctx context.Context, id string) (*payment.PaymentInfo, error)
}

type OrderStore interface {
	GetByPaymentID(ctx context.Context, paymentID string) (*domain.Order, error)
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	AttachPaymentID(ctx context.Context, id, paymentID string) error
	UpdateState(ctx context.Context, id string, state domain.State) (bool, error)
}

type Notifier interface {
	Dispatch(ctx context.Context, event domain.OrderEvent)
}

// Outcome describes what a reconciliation did to the order.
type Outcome string

const (
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeIgnored   Outcome = "ignored_status"
	OutcomeFinalized Outcome = "finalized"
	OutcomeRejected  Outcome = "rejected"
)

type Reconciler struct {
	payments PaymentFetcher
	orders   OrderStore
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewReconciler(payments PaymentFetcher, orders OrderStore, notifier Notifier, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		payments: payments,
		orders:   orders,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Reconcile fetches the payment from the gateway and moves the matching order
// to the corresponding state. Applying the same payment twice is a no-op.
func (rc *Reconciler) Reconcile(ctx context.Context, paymentID string) (Outcome, error) {
	info, err := rc.payments.GetPaymentInfo(ctx, paymentID)
	if err != nil {
		return "", fmt.Errorf("fetch payment %s: %w", paymentID, err)
	}

	order, err := rc.findOrder(ctx, paymentID, info.ExternalReference)
	if err != nil {
		return "", err
	}

	action, ok := actionFor(info)
	if !ok {
		rc.logger.Info("payment status needs no order change",
			"payment_id", paymentID,
			"order_id", order.ID,
			"status", info.Status,
			"status_detail", info.StatusDetail,
		)
		return OutcomeIgnored, nil
	}

	next, err := domain.Transition(order.State, action)
	if err != nil {
		var guardErr *domain.GuardError
		if !errors.As(err, &guardErr) {
			return "", err
		}
		rc.logger.Info("payment update refused by order state",
			"payment_id", paymentID,
			"order_id", order.ID,
			"state", order.State.String(),
			"reason", guardErr.Err,
		)
		if errors.Is(err, domain.ErrFinalized) {
			return OutcomeFinalized, nil
		}
		return OutcomeRejected, nil
	}

	if next == order.State {
		return OutcomeUnchanged, nil
	}

	found, err := rc.orders.UpdateState(ctx, order.ID, next)
	if err != nil {
		return "", fmt.Errorf("update order %s: %w", order.ID, err)
	}
	if !found {
		return "", ErrOrderNotFound
	}

	order.State = next
	rc.notifier.Dispatch(ctx, domain.NewOrderEvent(domain.EventOrderUpdate, order, rc.now()))

	rc.logger.Info("order reconciled with payment",
		"payment_id", paymentID,
		"order_id", order.ID,
		"state", next.String(),
	)
	return OutcomeUpdated, nil
}

// findOrder matches on the stored payment id first. Card preferences carry the
// order id as external reference and get the payment id attached on first
// contact.
func (rc *Reconciler) findOrder(ctx context.Context, paymentID, externalRef string) (*domain.Order, error) {
	order, err := rc.orders.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("find order by payment %s: %w", paymentID, err)
	}
	if order != nil {
		return order, nil
	}

	if externalRef == "" {
		return nil, ErrOrderNotFound
	}
	order, err = rc.orders.GetByID(ctx, externalRef)
	if err != nil {
		return nil, fmt.Errorf("find order %s: %w", externalRef, err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	if order.PaymentID == "" {
		if err := rc.orders.AttachPaymentID(ctx, order.ID, paymentID); err != nil {
			return nil, fmt.Errorf("attach payment %s to order %s: %w", paymentID, order.ID, err)
		}
		order.PaymentID = paymentID
	}
	return order, nil
}

func actionFor(info *payment.PaymentInfo) (domain.Action, bool) {
	switch {
	case info.Status == "approved" && info.StatusDetail == "accredited":
		return domain.Action{Kind: domain.ActionPaymentApproved}, true
	case info.Status == "cancelled":
		return domain.Action{Kind: domain.ActionPaymentCancelled}, true
	case info.Status == "pending":
		return domain.Action{Kind: domain.ActionPaymentPending}, true
	}
	return domain.Action{}, false
}
