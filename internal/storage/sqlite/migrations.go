package sqlite

import (
	"context"
	"database/sql"
)

// schema holds one row per event with the whole aggregate encoded as a BSON document,
// plus an index from transaction ID to its event so settlement never scans documents.
// Index rows are rewritten with every event write.
const schema = `
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    host_id TEXT NOT NULL,
    title TEXT NOT NULL,
    event_date INTEGER NOT NULL,
    version INTEGER NOT NULL,
    document BLOB NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS transaction_index (
    transaction_id TEXT PRIMARY KEY,
    event_id TEXT NOT NULL,
    gift_id TEXT NOT NULL,
    status TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (event_id) REFERENCES events(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_events_host_id ON events(host_id, created_at);
CREATE INDEX IF NOT EXISTS idx_transaction_index_event_id ON transaction_index(event_id);
CREATE INDEX IF NOT EXISTS idx_transaction_index_pending ON transaction_index(status, created_at);
`

// runMigrations executes the schema setup.
func runMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
