// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/ubupresent/internal/models"
	"github.com/mmynk/ubupresent/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; version checks still catch interleaved read-modify-write cycles.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateEvent persists a new event and indexes its transactions.
func (s *SQLiteStore) CreateEvent(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	now := s.now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	event.Version = 1

	doc, err := bson.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (id, host_id, title, event_date, version, document, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.HostID, event.Title, event.Date.UnixMilli(), event.Version, doc,
		event.CreatedAt.UnixMilli(), event.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	if err := writeIndex(ctx, tx, event); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetEvent retrieves an event by ID.
func (s *SQLiteStore) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	var (
		doc     []byte
		version int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT document, version FROM events WHERE id = ?",
		eventID,
	).Scan(&doc, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", eventID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	return decodeEvent(doc, version)
}

// ListEventsByHost retrieves all events owned by a host, newest first.
func (s *SQLiteStore) ListEventsByHost(ctx context.Context, hostID string) ([]*models.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT document, version FROM events WHERE host_id = ? ORDER BY created_at DESC, id",
		hostID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list events by host: %w", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		var (
			doc     []byte
			version int64
		)
		if err := rows.Scan(&doc, &version); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event, err := decodeEvent(doc, version)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}

	return events, nil
}

// UpdateEvent writes the event if its stored version still matches event.Version.
func (s *SQLiteStore) UpdateEvent(ctx context.Context, event *models.Event) error {
	expected := event.Version
	next := *event
	next.Version = expected + 1
	next.UpdatedAt = s.now().UTC()

	doc, err := bson.Marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE events SET host_id = ?, title = ?, event_date = ?, version = ?, document = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		next.HostID, next.Title, next.Date.UnixMilli(), next.Version, doc, next.UpdatedAt.UnixMilli(),
		next.ID, expected,
	)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM events WHERE id = ?", next.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("event %s: %w", next.ID, storage.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to check event: %w", err)
		}
		return fmt.Errorf("event %s at version %d: %w", next.ID, expected, storage.ErrVersionConflict)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM transaction_index WHERE event_id = ?", next.ID); err != nil {
		return fmt.Errorf("failed to clear transaction index: %w", err)
	}
	if err := writeIndex(ctx, tx, &next); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	event.Version = next.Version
	event.UpdatedAt = next.UpdatedAt
	return nil
}

// LookupTransaction resolves a transaction ID to its event and gift.
func (s *SQLiteStore) LookupTransaction(ctx context.Context, transactionID string) (storage.TransactionRef, error) {
	var (
		ref       storage.TransactionRef
		status    string
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT transaction_id, event_id, gift_id, status, created_at FROM transaction_index WHERE transaction_id = ?",
		transactionID,
	).Scan(&ref.TransactionID, &ref.EventID, &ref.GiftID, &status, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.TransactionRef{}, fmt.Errorf("transaction %s: %w", transactionID, storage.ErrNotFound)
	}
	if err != nil {
		return storage.TransactionRef{}, fmt.Errorf("failed to look up transaction: %w", err)
	}

	ref.Status = models.TransactionStatus(status)
	ref.CreatedAt = time.UnixMilli(createdAt).UTC()
	return ref, nil
}

// ListPendingBefore returns PENDING transactions created at or before cutoff, oldest first.
func (s *SQLiteStore) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]storage.TransactionRef, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT transaction_id, event_id, gift_id, status, created_at FROM transaction_index
		 WHERE status = ? AND created_at <= ?
		 ORDER BY created_at, transaction_id
		 LIMIT ?`,
		string(models.StatusPending), cutoff.UnixMilli(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	defer rows.Close()

	var refs []storage.TransactionRef
	for rows.Next() {
		var (
			ref       storage.TransactionRef
			status    string
			createdAt int64
		)
		if err := rows.Scan(&ref.TransactionID, &ref.EventID, &ref.GiftID, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		ref.Status = models.TransactionStatus(status)
		ref.CreatedAt = time.UnixMilli(createdAt).UTC()
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}

	return refs, nil
}

// writeIndex inserts one index row per transaction in the event.
func writeIndex(ctx context.Context, tx *sql.Tx, event *models.Event) error {
	for _, t := range event.Transactions {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO transaction_index (transaction_id, event_id, gift_id, status, created_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(transaction_id) DO NOTHING`,
			t.ID, event.ID, t.GiftID, string(t.Status), t.CreatedAt.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("failed to index transaction: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("transaction %s: %w", t.ID, storage.ErrDuplicateTransaction)
		}
	}
	return nil
}

func decodeEvent(doc []byte, version int64) (*models.Event, error) {
	event := &models.Event{}
	if err := bson.Unmarshal(doc, event); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	event.Version = version
	return event, nil
}
