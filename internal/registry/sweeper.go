package registry

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically removes PENDING transactions that were never settled.
type Sweeper struct {
	registry *Registry
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a sweeper that runs every interval.
func NewSweeper(r *Registry, interval time.Duration) *Sweeper {
	return &Sweeper{registry: r, interval: interval, logger: r.logger}
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("Pending transaction sweeper disabled")
		return
	}

	s.logger.Info("Pending transaction sweeper started", "interval", s.interval, "retention", s.registry.retention)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.sweep(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("Pending transaction sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.registry.ExpireStale(ctx)
	if err != nil {
		s.logger.Error("Sweep failed", "error", err, "expired", n)
		return
	}
	if n > 0 {
		s.logger.Info("Sweep completed", "expired", n)
	}
}
