package database

import "context"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS devices (
		id              TEXT PRIMARY KEY,
		key             TEXT NOT NULL,
		title           TEXT NOT NULL,
		wallet          TEXT NOT NULL,
		currency        TEXT NOT NULL,
		available_start TEXT NOT NULL,
		available_stop  TEXT NOT NULL,
		timeout         INTEGER NOT NULL DEFAULT 0,
		timezone        TEXT NOT NULL,
		maxperday       INTEGER NOT NULL DEFAULT 0,
		closed_url      TEXT,
		wait_url        TEXT,
		switches        JSONB NOT NULL DEFAULT '[]',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id         TEXT PRIMARY KEY,
		device_id  TEXT NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
		switch_id  TEXT NOT NULL,
		payload    TEXT NOT NULL DEFAULT '',
		state      TEXT NOT NULL DEFAULT 'pending',
		payhash    TEXT NOT NULL DEFAULT '',
		msat       BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_switch_state
		ON payments (device_id, switch_id, state, created_at DESC)`,
}

// Migrate applies the schema. Statements are idempotent so this runs on
// every startup.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
