package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/joao-fontenele/storefront-orders"

// Instruments holds the storefront's domain counters. A nil *Instruments is
// valid and records nothing.
type Instruments struct {
	checkoutOrders      metric.Int64Counter
	webhookEvents       metric.Int64Counter
	notificationsFailed metric.Int64Counter
}

// NewInstruments registers the counters on the global meter provider, so
// InitMeterProvider must run first for them to be exported.
func NewInstruments() (*Instruments, error) {
	meter := otel.Meter(instrumentationName)

	checkoutOrders, err := meter.Int64Counter(
		"storefront.checkout.orders",
		metric.WithDescription("Checkout attempts by payment method and result."),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, err
	}

	webhookEvents, err := meter.Int64Counter(
		"storefront.webhook.events",
		metric.WithDescription("Payment webhook deliveries by outcome."),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	notificationsFailed, err := meter.Int64Counter(
		"storefront.notifications.failed",
		metric.WithDescription("Notifications that could not be delivered."),
		metric.WithUnit("{notification}"),
	)
	if err != nil {
		return nil, err
	}

	return &Instruments{
		checkoutOrders:      checkoutOrders,
		webhookEvents:       webhookEvents,
		notificationsFailed: notificationsFailed,
	}, nil
}

func (i *Instruments) RecordCheckout(ctx context.Context, method, result string) {
	if i == nil {
		return
	}
	i.checkoutOrders.Add(ctx, 1, metric.WithAttributes(
		attribute.String("payment_method", method),
		attribute.String("result", result),
	))
}

func (i *Instruments) RecordWebhook(ctx context.Context, outcome string) {
	if i == nil {
		return
	}
	i.webhookEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (i *Instruments) RecordNotificationFailure(ctx context.Context, channel string) {
	if i == nil {
		return
	}
	i.notificationsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", channel)))
}
