// Package sweeper runs the periodic maintenance loop: deactivating
// events past their grace window and cancelling payment orders that
// were never completed.
package sweeper

import (
	"context"
	"log/slog"
	"time"
)

// Events is the expiry sweep of the event registry.
type Events interface {
	ExpireSweep(ctx context.Context) (int64, error)
}

// Orders is the expired-order cleanup of the payment orchestrator.
type Orders interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Sweeper ticks on a fixed interval and runs both sweeps. Each tick is
// independent; a failed sweep is logged and retried on the next tick.
type Sweeper struct {
	events   Events
	orders   Orders
	interval time.Duration
	stopCh   chan struct{}
}

func New(events Events, orders Orders, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{
		events:   events,
		orders:   orders,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the loop. One sweep runs immediately so a restart
// does not delay overdue cleanup by a full interval.
func (s *Sweeper) Start() {
	go s.run()
}

// Stop ends the loop. Safe to call once.
func (s *Sweeper) Stop() {
	close(s.stopCh)
}

func (s *Sweeper) run() {
	slog.Info("sweeper started", "interval", s.interval)
	s.sweep()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			slog.Info("sweeper stopped")
			return
		}
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.events.ExpireSweep(ctx); err != nil {
		slog.Error("event expiry sweep failed", "error", err)
	}
	if _, err := s.orders.CleanupExpired(ctx); err != nil {
		slog.Error("order cleanup sweep failed", "error", err)
	}
}
