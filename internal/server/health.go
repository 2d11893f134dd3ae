package server

import (
	"context"

	"github.com/mmynk/ubupresent/internal/storage"
)

// HealthService defines behaviour for readiness probes.
type HealthService interface {
	Probe(ctx context.Context) error
}

// StoreHealth verifies store connectivity as part of health checks.
type StoreHealth struct {
	Store storage.Store
}

// Probe implements the HealthService interface.
func (s StoreHealth) Probe(ctx context.Context) error {
	if s.Store == nil {
		return nil
	}
	return s.Store.Ping(ctx)
}
