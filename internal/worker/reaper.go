package worker

import (
	"context"
	"log/slog"
	"time"
)

type StaleOrderStore interface {
	// DeleteStale removes abandoned orders and orders still awaiting the
	// gateway that were created before cutoff.
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// Reaper discards staged checkout orders that never reached the gateway.
type Reaper struct {
	store    StaleOrderStore
	interval time.Duration
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

func NewReaper(store StaleOrderStore, interval, ttl time.Duration, logger *slog.Logger) *Reaper {
	return &Reaper{
		store:    store,
		interval: interval,
		ttl:      ttl,
		now:      time.Now,
		logger:   logger,
	}
}

// Run sweeps immediately and then on every interval until ctx is done.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("failed to reap stale orders", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Reaper) Sweep(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-r.ttl)
	n, err := r.store.DeleteStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Info("reaped stale orders", "count", n, "cutoff", cutoff)
	}
	return n, nil
}
