// Package notify delivers best-effort order notifications over WhatsApp
// providers.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/joao-fontenele/storefront-orders/internal/domain"
	"github.com/joao-fontenele/storefront-orders/internal/telemetry"
)

// Publisher hands events to the worker over the event stream.
type Publisher interface {
	PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error
}

// HandlerFunc delivers an event in-process when no event stream is configured.
type HandlerFunc func(ctx context.Context, event domain.OrderEvent) error

// Dispatcher is fire-and-forget: Dispatch returns immediately and failures
// only reach the log and the failure counter.
type Dispatcher struct {
	publisher   Publisher
	direct      HandlerFunc
	timeout     time.Duration
	instruments *telemetry.Instruments
	logger      *slog.Logger
	wg          sync.WaitGroup
}

type DispatcherOption func(*Dispatcher)

// WithTimeout bounds each delivery. Zero means no timeout.
func WithTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.timeout = timeout }
}

func WithInstruments(i *telemetry.Instruments) DispatcherOption {
	return func(d *Dispatcher) { d.instruments = i }
}

// NewDispatcher publishes through publisher when non-nil, otherwise calls
// direct. With neither, events are dropped.
func NewDispatcher(publisher Publisher, direct HandlerFunc, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		publisher: publisher,
		direct:    direct,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) Dispatch(ctx context.Context, event domain.OrderEvent) {
	if d.publisher == nil && d.direct == nil {
		return
	}

	d.wg.Add(1)
	go func(ctx context.Context) {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("notification panicked", "panic", r, "order_id", event.OrderID)
				d.instruments.RecordNotificationFailure(ctx, "panic")
			}
		}()

		if d.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.timeout)
			defer cancel()
		}

		channel := "direct"
		var err error
		if d.publisher != nil {
			channel = "stream"
			err = d.publisher.PublishOrderEvent(ctx, event)
		} else {
			err = d.direct(ctx, event)
		}

		if err != nil {
			d.logger.Error("failed to dispatch notification",
				"error", err,
				"order_id", event.OrderID,
				"event_type", event.Type,
				"channel", channel,
			)
			d.instruments.RecordNotificationFailure(ctx, channel)
		}
	}(context.WithoutCancel(ctx))
}

// Wait blocks until in-flight dispatches finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
