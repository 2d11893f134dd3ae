// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mmynk/ubupresent/internal/models"
)

var (
	// ErrNotFound is returned when an event or transaction does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict is returned by UpdateEvent when the stored version no longer
	// matches the one the caller loaded. The caller should reload and retry.
	ErrVersionConflict = errors.New("version conflict")

	// ErrDuplicateTransaction is returned when a transaction ID is already indexed
	// under another event.
	ErrDuplicateTransaction = errors.New("duplicate transaction id")
)

// TransactionRef locates a transaction inside its owning event.
type TransactionRef struct {
	TransactionID string
	EventID       string
	GiftID        string
	Status        models.TransactionStatus
	CreatedAt     time.Time
}

// Store defines the interface for event storage operations.
// Events are stored whole; gifts and transactions are only reachable through them.
// This abstraction allows swapping storage backends (SQLite, MongoDB)
// without changing the registry.
type Store interface {
	// CreateEvent persists a new event at version 1.
	// The event.ID field will be populated by the store if empty.
	CreateEvent(ctx context.Context, event *models.Event) error

	// GetEvent retrieves an event by its ID, including transactions.
	// Returns ErrNotFound if the event does not exist.
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)

	// ListEventsByHost returns the host's events, newest first.
	ListEventsByHost(ctx context.Context, hostID string) ([]*models.Event, error)

	// UpdateEvent replaces the stored event if its version still equals
	// event.Version, then sets event.Version to the new version. The transaction
	// index is rewritten in the same atomic step.
	// Returns ErrVersionConflict if another write got there first and ErrNotFound
	// if the event is gone.
	UpdateEvent(ctx context.Context, event *models.Event) error

	// LookupTransaction resolves a transaction ID through the index.
	// Returns ErrNotFound if no event holds it.
	LookupTransaction(ctx context.Context, transactionID string) (TransactionRef, error)

	// ListPendingBefore returns PENDING transactions created before cutoff.
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]TransactionRef, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}
