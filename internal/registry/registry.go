// Package registry implements the gift-registry operations on top of a storage.Store.
//
// Every write follows the same cycle: load the event, compute the next event with a pure
// function from package settlement, and write it back conditioned on the loaded version.
// When another writer wins the race the cycle starts over from a fresh load. Settling the
// same transaction twice therefore credits it once: the retry observes the settled status
// and turns into a no-op.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/ubupresent/internal/errs"
	"github.com/mmynk/ubupresent/internal/metrics"
	"github.com/mmynk/ubupresent/internal/models"
	"github.com/mmynk/ubupresent/internal/settlement"
	"github.com/mmynk/ubupresent/internal/storage"
)

const (
	DefaultRetention   = time.Hour
	DefaultMaxAttempts = 8

	idAttempts     = 5
	sweepBatchSize = 500
)

// Registry is the entry point for event, payment and settlement operations.
type Registry struct {
	store       storage.Store
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
	newID       func() string
	retention   time.Duration
	maxAttempts int
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithIDGenerator overrides how transaction IDs are generated.
func WithIDGenerator(newID func() string) Option {
	return func(r *Registry) { r.newID = newID }
}

// WithRetention sets how long a PENDING transaction waits for settlement.
func WithRetention(d time.Duration) Option {
	return func(r *Registry) { r.retention = d }
}

// WithMaxAttempts bounds the load-apply-write retries on version conflicts.
func WithMaxAttempts(n int) Option {
	return func(r *Registry) { r.maxAttempts = n }
}

// New creates a Registry over store.
func New(store storage.Store, opts ...Option) *Registry {
	r := &Registry{
		store:       store,
		logger:      slog.Default(),
		now:         time.Now,
		newID:       uuid.NewString,
		retention:   DefaultRetention,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.maxAttempts < 1 {
		r.maxAttempts = 1
	}
	return r
}

// NewGift describes one gift in a CreateEvent request.
type NewGift struct {
	Name     string
	Price    int64
	ImageURL string
}

// CreateEventRequest is a host's new event.
type CreateEventRequest struct {
	// HostName overrides the principal's display name.
	HostName string
	Title    string
	// Date accepts RFC3339 or YYYY-MM-DD, optionally followed by HH:MM[:SS].
	Date  string
	Gifts []NewGift
}

var dateLayouts = []string{time.RFC3339, "2006-01-02", "2006-01-02 15:04", "2006-01-02 15:04:05"}

// ParseEventDate parses the date formats accepted for events.
func ParseEventDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q, use RFC3339 or YYYY-MM-DD", s)
}

// CreateEvent validates and stores a new event owned by the principal.
func (r *Registry) CreateEvent(ctx context.Context, host models.Principal, req CreateEventRequest) (*models.Event, error) {
	if host.Anonymous() {
		return nil, errs.Auth("authentication required to create an event")
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, errs.Validation("title is required")
	}
	if strings.TrimSpace(req.Date) == "" {
		return nil, errs.Validation("date is required")
	}
	date, err := ParseEventDate(req.Date)
	if err != nil {
		return nil, errs.Validation("%v", err)
	}
	if len(req.Gifts) == 0 {
		return nil, errs.Validation("at least one gift is required")
	}

	gifts := make([]models.Gift, len(req.Gifts))
	for i, g := range req.Gifts {
		name := strings.TrimSpace(g.Name)
		if name == "" {
			return nil, errs.Validation("gift %d: name is required", i+1)
		}
		if g.Price <= 0 {
			return nil, errs.Validation("gift %d: price must be greater than 0", i+1)
		}
		image := strings.TrimSpace(g.ImageURL)
		if image == "" {
			image = models.DefaultGiftImageURL
		}
		gifts[i] = models.Gift{
			ID:       uuid.NewString(),
			Name:     name,
			ImageURL: image,
			Price:    g.Price,
		}
	}

	hostName := strings.TrimSpace(req.HostName)
	if hostName == "" {
		hostName = host.Name
	}
	if hostName == "" {
		hostName = models.DefaultHostName
	}

	event := &models.Event{
		HostID:    host.ID,
		HostName:  hostName,
		Title:     title,
		Date:      date,
		Gifts:     gifts,
		CreatedAt: r.now().UTC(),
	}
	if err := r.store.CreateEvent(ctx, event); err != nil {
		return nil, errs.Persistence(err, "could not save event")
	}

	r.logger.Info("Event created", "event_id", event.ID, "host_id", host.ID, "gifts", len(gifts))
	return event, nil
}

// GetEvent returns the public view of an event: everything except its transactions.
func (r *Registry) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	if strings.TrimSpace(eventID) == "" {
		return nil, errs.Validation("event id is required")
	}
	event, err := r.load(ctx, eventID)
	if err != nil {
		return nil, err
	}
	event.Transactions = nil
	return event, nil
}

// ListHostEvents returns the principal's events, newest first, without transactions.
func (r *Registry) ListHostEvents(ctx context.Context, host models.Principal) ([]*models.Event, error) {
	if host.Anonymous() {
		return nil, errs.Auth("authentication required to list events")
	}
	events, err := r.store.ListEventsByHost(ctx, host.ID)
	if err != nil {
		return nil, errs.Persistence(err, "could not list events")
	}
	for _, e := range events {
		e.Transactions = nil
	}
	return events, nil
}

// InitiatePayment records a PENDING transaction and returns it. No funds move.
func (r *Registry) InitiatePayment(ctx context.Context, req settlement.InitiateRequest) (*models.Transaction, error) {
	tx, err := r.initiate(ctx, req)
	if err != nil {
		r.metrics.Initiation(string(errs.KindOf(err)))
		return nil, err
	}
	r.metrics.Initiation("ok")
	r.logger.Info("Payment initiated",
		"transaction_id", tx.ID,
		"event_id", tx.EventID,
		"gift_id", tx.GiftID,
		"amount", tx.Amount,
	)
	return tx, nil
}

func (r *Registry) initiate(ctx context.Context, req settlement.InitiateRequest) (*models.Transaction, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		txID, err := r.freshTransactionID(ctx)
		if err != nil {
			return nil, err
		}

		var created models.Transaction
		_, err = r.mutate(ctx, "initiate", req.EventID, func(event *models.Event) (*models.Event, error) {
			next, tx, err := settlement.Initiate(event, txID, req, r.now().UTC())
			if err != nil {
				return nil, err
			}
			created = *tx
			return next, nil
		})
		if errors.Is(err, storage.ErrDuplicateTransaction) && attempt < idAttempts {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &created, nil
	}
}

// freshTransactionID generates IDs until one is not in the transaction index.
func (r *Registry) freshTransactionID(ctx context.Context) (string, error) {
	for i := 0; i < idAttempts; i++ {
		id := r.newID()
		_, err := r.store.LookupTransaction(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return "", errs.Persistence(err, "could not check transaction id")
		}
		r.logger.Warn("Transaction id collision, regenerating", "transaction_id", id)
	}
	return "", errs.Persistence(storage.ErrDuplicateTransaction, "could not generate a unique transaction id")
}

// SettlePayment applies a terminal status delivered by the payment notifier.
//
// Calling it again for a settled transaction returns the original outcome with
// AlreadyProcessed set and changes nothing. Anomalies (missing gift, gift already
// funded) complete the transaction and are reported in the outcome, not as errors.
func (r *Registry) SettlePayment(ctx context.Context, transactionID, status string) (settlement.Outcome, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return settlement.Outcome{}, errs.Validation("transaction id is required")
	}
	terminal, err := models.ParseTerminalStatus(status)
	if err != nil {
		return settlement.Outcome{}, errs.Validation("invalid callback data: %v", err)
	}

	ref, err := r.store.LookupTransaction(ctx, transactionID)
	if errors.Is(err, storage.ErrNotFound) {
		return settlement.Outcome{}, errs.NotFound("transaction %s not found for any event", transactionID)
	}
	if err != nil {
		return settlement.Outcome{}, errs.Persistence(err, "could not look up transaction")
	}

	var (
		outcome settlement.Outcome
		expired bool
	)
	_, err = r.mutate(ctx, "settle", ref.EventID, func(event *models.Event) (*models.Event, error) {
		expired = false
		now := r.now().UTC()

		tx := event.Transaction(transactionID)
		if tx == nil {
			return nil, errs.NotFound("transaction %s not found for any event", transactionID)
		}
		if tx.Expired(now, r.retention) {
			expired = true
			next, _ := settlement.ExpirePending(event, now, r.retention)
			return next, nil
		}

		next, o, err := settlement.Settle(event, transactionID, terminal, now)
		if err != nil {
			return nil, err
		}
		outcome = o
		if o.AlreadyProcessed {
			return nil, nil
		}
		return next, nil
	})
	if errs.Is(err, errs.KindNotFound) {
		// The index pointed at an event that is gone or no longer holds the transaction.
		return settlement.Outcome{}, errs.NotFound("transaction %s not found for any event", transactionID)
	}
	if err != nil {
		return settlement.Outcome{}, err
	}
	if expired {
		r.metrics.Expired(1)
		r.logger.Warn("Settlement for expired transaction rejected", "transaction_id", transactionID, "event_id", ref.EventID)
		return settlement.Outcome{}, errs.NotFound("transaction %s expired before it was settled", transactionID)
	}

	r.record(outcome)
	return outcome, nil
}

func (r *Registry) record(o settlement.Outcome) {
	attrs := []any{
		"transaction_id", o.TransactionID,
		"event_id", o.EventID,
		"gift_id", o.GiftID,
		"status", o.Status,
		"requested", o.Requested,
		"applied", o.Applied,
	}

	label := "applied"
	switch {
	case o.AlreadyProcessed:
		label = "replayed"
		r.logger.Info("Settlement replay ignored", attrs...)
	case o.Status == models.StatusFailed:
		label = "failed"
		r.logger.Info("Payment failed", attrs...)
	case o.Anomaly == settlement.AnomalyGiftMissing:
		label = string(o.Anomaly)
		r.logger.Warn("Transaction settled but its gift no longer exists", attrs...)
	case o.Anomaly == settlement.AnomalyAlreadyFunded:
		label = string(o.Anomaly)
		r.logger.Warn("Transaction settled but gift was already fully funded", attrs...)
	case o.Clamped():
		r.logger.Warn("Contribution clamped to remaining gift target", attrs...)
	default:
		r.logger.Info("Payment settled", attrs...)
	}

	var discarded int64
	if !o.AlreadyProcessed && o.Status == models.StatusSuccess {
		discarded = o.Requested - o.Applied
	}
	r.metrics.Settlement(string(o.Status), label, o.Applied, discarded)
}

// ExpireStale removes PENDING transactions older than the retention window and returns
// how many were removed. Failures on one event do not stop the others.
func (r *Registry) ExpireStale(ctx context.Context) (int, error) {
	now := r.now().UTC()
	refs, err := r.store.ListPendingBefore(ctx, now.Add(-r.retention), sweepBatchSize)
	if err != nil {
		return 0, errs.Persistence(err, "could not list pending transactions")
	}

	var eventIDs []string
	seen := make(map[string]bool)
	for _, ref := range refs {
		if !seen[ref.EventID] {
			seen[ref.EventID] = true
			eventIDs = append(eventIDs, ref.EventID)
		}
	}

	var (
		total    int
		failures []error
	)
	for _, eventID := range eventIDs {
		var removed []string
		_, err := r.mutate(ctx, "expire", eventID, func(event *models.Event) (*models.Event, error) {
			next, ids := settlement.ExpirePending(event, r.now().UTC(), r.retention)
			removed = ids
			if len(ids) == 0 {
				return nil, nil
			}
			return next, nil
		})
		if err != nil {
			if errs.Is(err, errs.KindNotFound) {
				continue
			}
			failures = append(failures, fmt.Errorf("event %s: %w", eventID, err))
			continue
		}
		if len(removed) > 0 {
			r.logger.Info("Expired pending transactions", "event_id", eventID, "count", len(removed))
		}
		total += len(removed)
	}

	r.metrics.Expired(total)
	return total, errors.Join(failures...)
}

// load fetches an event and classifies store errors.
func (r *Registry) load(ctx context.Context, eventID string) (*models.Event, error) {
	event, err := r.store.GetEvent(ctx, eventID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errs.NotFound("event %s not found", eventID)
	}
	if err != nil {
		return nil, errs.Persistence(err, "could not load event")
	}
	return event, nil
}

// mutate runs load → apply → conditional write until the write lands or attempts run
// out. apply returning a nil event means there is nothing to write.
func (r *Registry) mutate(ctx context.Context, op, eventID string, apply func(*models.Event) (*models.Event, error)) (*models.Event, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, errs.Persistence(err, "%s cancelled", op)
		}

		event, err := r.load(ctx, eventID)
		if err != nil {
			return nil, err
		}

		next, err := apply(event)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return event, nil
		}
		next.Version = event.Version

		err = r.store.UpdateEvent(ctx, next)
		switch {
		case err == nil:
			return next, nil
		case errors.Is(err, storage.ErrVersionConflict):
			r.metrics.VersionConflict(op)
			r.logger.Debug("Version conflict, retrying", "operation", op, "event_id", eventID, "attempt", attempt)
			if attempt >= r.maxAttempts {
				return nil, errs.Persistence(err, "event %s is busy, try again", eventID)
			}
		case errors.Is(err, storage.ErrNotFound):
			return nil, errs.NotFound("event %s not found", eventID)
		case errors.Is(err, storage.ErrDuplicateTransaction):
			return nil, errs.Persistence(err, "transaction id already in use")
		default:
			return nil, errs.Persistence(err, "could not save event %s", eventID)
		}
	}
}
