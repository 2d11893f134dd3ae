// Package mongodb provides a MongoDB-backed implementation of the storage.Store interface.
//
// Each event is one document in the "events" collection. Writes are ReplaceOne calls
// filtered on both _id and version, so a concurrent writer makes the filter miss and the
// caller sees storage.ErrVersionConflict. A unique multikey index on
// transactions.transaction_id keeps transaction IDs unique across events and doubles as
// the lookup index for settlement.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/mmynk/ubupresent/internal/models"
	"github.com/mmynk/ubupresent/internal/storage"
)

const (
	collectionName   = "events"
	defaultOpTimeout = 5 * time.Second
)

// Ensure Store implements storage.Store
var _ storage.Store = (*Store)(nil)

// Store implements storage.Store using MongoDB.
type Store struct {
	client    *mongo.Client
	events    *mongo.Collection
	opTimeout time.Duration
	now       func() time.Time
}

// New connects to uri, verifies the connection, and ensures indexes exist.
func New(ctx context.Context, uri, database string) (*Store, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}
	if database == "" {
		return nil, fmt.Errorf("mongo database is required")
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	s := &Store{
		client:    client,
		events:    client.Database(database).Collection(collectionName),
		opTimeout: defaultOpTimeout,
		now:       time.Now,
	}
	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.events.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "transactions.transaction_id", Value: 1}},
			Options: options.Index().
				SetName("transactions_transaction_id_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"transactions.transaction_id": bson.M{"$exists": true}}),
		},
		{
			Keys:    bson.D{{Key: "host_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("host_id_created_at"),
		},
		{
			Keys:    bson.D{{Key: "transactions.status", Value: 1}, {Key: "transactions.created_at", Value: 1}},
			Options: options.Index().SetName("transactions_status_created_at"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Ping checks the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.client.Ping(ctx, readpref.Primary())
}

// CreateEvent inserts a new event document at version 1.
func (s *Store) CreateEvent(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	now := s.now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	event.Version = 1

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if _, err := s.events.InsertOne(ctx, event); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("event %s: %w", event.ID, storage.ErrDuplicateTransaction)
		}
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// GetEvent retrieves an event by ID.
func (s *Store) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	var event models.Event
	err := s.events.FindOne(ctx, bson.M{"_id": eventID}).Decode(&event)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("event %s: %w", eventID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return &event, nil
}

// ListEventsByHost retrieves all events owned by a host, newest first.
func (s *Store) ListEventsByHost(ctx context.Context, hostID string) ([]*models.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := s.events.Find(ctx, bson.M{"host_id": hostID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list events by host: %w", err)
	}

	var events []*models.Event
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}
	return events, nil
}

// UpdateEvent replaces the document if its version still equals event.Version.
func (s *Store) UpdateEvent(ctx context.Context, event *models.Event) error {
	expected := event.Version
	next := *event
	next.Version = expected + 1
	next.UpdatedAt = s.now().UTC()

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	res, err := s.events.ReplaceOne(ctx, bson.M{"_id": next.ID, "version": expected}, &next)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("event %s: %w", next.ID, storage.ErrDuplicateTransaction)
		}
		return fmt.Errorf("failed to update event: %w", err)
	}
	if res.MatchedCount == 0 {
		n, err := s.events.CountDocuments(ctx, bson.M{"_id": next.ID})
		if err != nil {
			return fmt.Errorf("failed to check event: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("event %s: %w", next.ID, storage.ErrNotFound)
		}
		return fmt.Errorf("event %s at version %d: %w", next.ID, expected, storage.ErrVersionConflict)
	}

	event.Version = next.Version
	event.UpdatedAt = next.UpdatedAt
	return nil
}

// LookupTransaction finds the event holding transactionID via the multikey index.
func (s *Store) LookupTransaction(ctx context.Context, transactionID string) (storage.TransactionRef, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	var doc struct {
		ID           string               `bson:"_id"`
		Transactions []models.Transaction `bson:"transactions"`
	}
	opts := options.FindOne().SetProjection(bson.M{"_id": 1, "transactions.$": 1})
	err := s.events.FindOne(ctx, bson.M{"transactions.transaction_id": transactionID}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) || (err == nil && len(doc.Transactions) == 0) {
		return storage.TransactionRef{}, fmt.Errorf("transaction %s: %w", transactionID, storage.ErrNotFound)
	}
	if err != nil {
		return storage.TransactionRef{}, fmt.Errorf("failed to look up transaction: %w", err)
	}

	tx := doc.Transactions[0]
	return storage.TransactionRef{
		TransactionID: tx.ID,
		EventID:       doc.ID,
		GiftID:        tx.GiftID,
		Status:        tx.Status,
		CreatedAt:     tx.CreatedAt,
	}, nil
}

// ListPendingBefore returns PENDING transactions created at or before cutoff, oldest first.
func (s *Store) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]storage.TransactionRef, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	stale := bson.M{"status": models.StatusPending, "created_at": bson.M{"$lte": cutoff}}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"transactions": bson.M{"$elemMatch": stale}}}},
		{{Key: "$unwind", Value: "$transactions"}},
		{{Key: "$match", Value: bson.M{
			"transactions.status":     models.StatusPending,
			"transactions.created_at": bson.M{"$lte": cutoff},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "transactions.created_at", Value: 1}, {Key: "transactions.transaction_id", Value: 1}}}},
		{{Key: "$limit", Value: limit}},
		{{Key: "$project", Value: bson.M{"_id": 0, "event_id": "$_id", "tx": "$transactions"}}},
	}

	cursor, err := s.events.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}

	var rows []struct {
		EventID string             `bson:"event_id"`
		Tx      models.Transaction `bson:"tx"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode pending transactions: %w", err)
	}

	refs := make([]storage.TransactionRef, 0, len(rows))
	for _, row := range rows {
		refs = append(refs, storage.TransactionRef{
			TransactionID: row.Tx.ID,
			EventID:       row.EventID,
			GiftID:        row.Tx.GiftID,
			Status:        row.Tx.Status,
			CreatedAt:     row.Tx.CreatedAt,
		})
	}
	return refs, nil
}
