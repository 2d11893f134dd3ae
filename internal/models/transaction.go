package models

import (
	"fmt"
	"time"
)

const (
	// DefaultContributorName is recorded when a guest gives no name.
	DefaultContributorName = "Anonymous"

	// GuestUserID marks contributions from payers who were not signed in.
	GuestUserID = "guest"
)

// TransactionStatus is the lifecycle state of a payment attempt.
type TransactionStatus string

const (
	StatusPending TransactionStatus = "PENDING"
	StatusSuccess TransactionStatus = "SUCCESS"
	StatusFailed  TransactionStatus = "FAILED"
)

// ParseTerminalStatus accepts only the statuses a payment notifier may deliver.
func ParseTerminalStatus(s string) (TransactionStatus, error) {
	switch TransactionStatus(s) {
	case StatusSuccess, StatusFailed:
		return TransactionStatus(s), nil
	default:
		return "", fmt.Errorf("status must be %s or %s, got %q", StatusSuccess, StatusFailed, s)
	}
}

// Settled reports whether the status is terminal.
func (s TransactionStatus) Settled() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Transaction tracks one payment attempt from initiation to settlement.
// Status moves from PENDING to SUCCESS or FAILED exactly once and never changes again.
type Transaction struct {
	// ID is the opaque transaction identifier, unique across all events.
	ID string `bson:"transaction_id"`

	EventID string `bson:"event_id"`
	GiftID  string `bson:"gift_id"`

	// Amount is what the payer asked to contribute. The amount actually applied to
	// the gift may be smaller if the gift needed less.
	Amount int64 `bson:"amount"`

	// Phone is the mobile-money number the payment prompt was sent to.
	Phone string `bson:"phone"`

	ContributorName string `bson:"contributor_name"`

	// ContributorID is the payer's identity when they were signed in, otherwise GuestUserID.
	ContributorID string `bson:"contributor_id"`

	Status TransactionStatus `bson:"status"`

	CreatedAt time.Time `bson:"created_at"`

	// SettledAt is zero while the transaction is PENDING.
	SettledAt time.Time `bson:"settled_at,omitempty"`
}

// Expired reports whether a still-pending transaction has outlived the retention window.
// Settled transactions never expire.
func (t *Transaction) Expired(now time.Time, retention time.Duration) bool {
	return t.Status == StatusPending && retention > 0 && !t.CreatedAt.After(now.Add(-retention))
}
