// Package settlement holds the pure ledger rules for payment initiation and settlement.
//
// Every function takes an Event and returns a changed copy; nothing here touches storage.
// The caller persists the copy with a compare-and-swap write and, on conflict, reloads
// and applies the same function again.
package settlement

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/ubupresent/internal/errs"
	"github.com/mmynk/ubupresent/internal/models"
)

// Anomaly names a settlement that completed validly but credited nothing.
type Anomaly string

const (
	AnomalyNone Anomaly = ""
	// AnomalyGiftMissing: the transaction points at a gift that no longer exists.
	AnomalyGiftMissing Anomaly = "gift_missing"
	// AnomalyAlreadyFunded: the gift had nothing left to collect.
	AnomalyAlreadyFunded Anomaly = "already_funded"
)

// Outcome describes what a settlement call did.
type Outcome struct {
	TransactionID string
	EventID       string
	GiftID        string

	// Status is the transaction's status after the call.
	Status models.TransactionStatus

	// AlreadyProcessed is true when the transaction was settled before this call
	// and nothing was changed.
	AlreadyProcessed bool

	// Requested is the amount the payer initiated.
	Requested int64

	// Applied is what was credited to the gift. Zero for FAILED, replays, and anomalies.
	Applied int64

	Anomaly Anomaly
}

// Clamped reports whether part of the requested amount was discarded.
func (o Outcome) Clamped() bool {
	return o.Status == models.StatusSuccess && !o.AlreadyProcessed && o.Applied < o.Requested
}

// Message is the caller-facing confirmation text.
func (o Outcome) Message() string {
	if o.AlreadyProcessed {
		return fmt.Sprintf("Transaction %s already processed as %s.", o.TransactionID, o.Status)
	}
	switch o.Anomaly {
	case AnomalyGiftMissing:
		return fmt.Sprintf("Transaction %s processed as %s, but its gift no longer exists. No funds were applied.", o.TransactionID, o.Status)
	case AnomalyAlreadyFunded:
		return fmt.Sprintf("Transaction %s processed as %s, but the gift was already fully funded. No funds were applied.", o.TransactionID, o.Status)
	}
	return fmt.Sprintf("Transaction %s processed successfully. Gift updated: %s", o.TransactionID, o.Status)
}

// ApplicableAmount returns how much of amount a gift can still absorb.
// The result is never negative and never more than price-collected.
func ApplicableAmount(price, collected, amount int64) int64 {
	remaining := price - collected
	switch {
	case remaining <= 0, amount <= 0:
		return 0
	case amount > remaining:
		return remaining
	default:
		return amount
	}
}

// Settle applies a terminal status to the transaction txID inside event.
//
// A transaction that is already settled is left untouched and reported as
// AlreadyProcessed, which makes redelivery by the notifier harmless. On SUCCESS the
// requested amount is clamped to the gift's remaining need and, if positive, credited
// and recorded as one Contribution.
func Settle(event *models.Event, txID string, status models.TransactionStatus, now time.Time) (*models.Event, Outcome, error) {
	if !status.Settled() {
		return nil, Outcome{}, errs.Validation("status must be %s or %s", models.StatusSuccess, models.StatusFailed)
	}
	if event.Transaction(txID) == nil {
		return nil, Outcome{}, errs.NotFound("transaction %s not found", txID)
	}

	next := event.Clone()
	tx := next.Transaction(txID)
	outcome := Outcome{
		TransactionID: tx.ID,
		EventID:       next.ID,
		GiftID:        tx.GiftID,
		Status:        tx.Status,
		Requested:     tx.Amount,
	}

	if tx.Status != models.StatusPending {
		outcome.AlreadyProcessed = true
		return next, outcome, nil
	}

	tx.Status = status
	tx.SettledAt = now
	outcome.Status = status

	if status == models.StatusFailed {
		return next, outcome, nil
	}

	gift := next.Gift(tx.GiftID)
	if gift == nil {
		outcome.Anomaly = AnomalyGiftMissing
		return next, outcome, nil
	}

	applied := ApplicableAmount(gift.Price, gift.Collected, tx.Amount)
	if applied == 0 {
		outcome.Anomaly = AnomalyAlreadyFunded
		return next, outcome, nil
	}

	gift.Collected += applied
	gift.Contributions = append(gift.Contributions, models.Contribution{
		ID:            uuid.NewString(),
		UserID:        tx.ContributorID,
		Name:          tx.ContributorName,
		Amount:        applied,
		Phone:         tx.Phone,
		TransactionID: tx.ID,
		Date:          now,
	})
	outcome.Applied = applied

	return next, outcome, nil
}

// InitiateRequest is a guest's intent to contribute to a gift.
type InitiateRequest struct {
	EventID         string
	GiftID          string
	Amount          int64
	Phone           string
	ContributorName string

	// ContributorID is the payer's identity if signed in; empty for guests.
	ContributorID string
}

// Validate checks that every required field is present and the amount is positive.
func (r InitiateRequest) Validate() error {
	if strings.TrimSpace(r.EventID) == "" || strings.TrimSpace(r.GiftID) == "" || strings.TrimSpace(r.Phone) == "" {
		return errs.Validation("missing required payment details: event_id, gift_id, amount and phone are required")
	}
	if r.Amount <= 0 {
		return errs.Validation("amount must be greater than 0")
	}
	return nil
}

// Initiate appends a PENDING transaction with the given ID to event.
// No funds move; the gift is only checked for existence.
func Initiate(event *models.Event, txID string, req InitiateRequest, now time.Time) (*models.Event, *models.Transaction, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}
	if event.Gift(req.GiftID) == nil {
		return nil, nil, errs.NotFound("gift %s not found", req.GiftID)
	}
	if event.Transaction(txID) != nil {
		return nil, nil, fmt.Errorf("transaction id %s already used in event %s", txID, event.ID)
	}

	name := strings.TrimSpace(req.ContributorName)
	if name == "" {
		name = models.DefaultContributorName
	}
	contributorID := req.ContributorID
	if contributorID == "" {
		contributorID = models.GuestUserID
	}

	next := event.Clone()
	next.Transactions = append(next.Transactions, models.Transaction{
		ID:              txID,
		EventID:         event.ID,
		GiftID:          req.GiftID,
		Amount:          req.Amount,
		Phone:           strings.TrimSpace(req.Phone),
		ContributorName: name,
		ContributorID:   contributorID,
		Status:          models.StatusPending,
		CreatedAt:       now,
	})
	return next, &next.Transactions[len(next.Transactions)-1], nil
}

// ExpirePending drops PENDING transactions older than retention and returns the
// removed IDs. Settled transactions are always kept. If nothing expired the returned
// event is the input unchanged.
func ExpirePending(event *models.Event, now time.Time, retention time.Duration) (*models.Event, []string) {
	var removed []string
	for i := range event.Transactions {
		if event.Transactions[i].Expired(now, retention) {
			removed = append(removed, event.Transactions[i].ID)
		}
	}
	if len(removed) == 0 {
		return event, nil
	}

	next := event.Clone()
	kept := next.Transactions[:0]
	for _, tx := range next.Transactions {
		if !tx.Expired(now, retention) {
			kept = append(kept, tx)
		}
	}
	next.Transactions = kept
	return next, removed
}
