package database

import (
	"context"
	"fmt"
)

// schemaStatements create the four tables and the indexes the hot paths rely
// on. Statements are idempotent so startup can run them unconditionally.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS products (
		product_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		brand TEXT NOT NULL DEFAULT '',
		category_main TEXT NOT NULL,
		primary_color TEXT NOT NULL,
		price DOUBLE PRECISION NOT NULL DEFAULT 0,
		occasion TEXT NOT NULL DEFAULT '',
		season TEXT NOT NULL DEFAULT '',
		style TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		feature_vector DOUBLE PRECISION[] NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_category ON products (category_main)`,
	`CREATE INDEX IF NOT EXISTS idx_products_price ON products (price)`,

	`CREATE TABLE IF NOT EXISTS user_sessions (
		session_id UUID PRIMARY KEY,
		user_id TEXT NOT NULL,
		alpha DOUBLE PRECISION NOT NULL,
		dimensions INTEGER NOT NULL,
		total_interactions INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'active',
		context JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_user_sessions_user ON user_sessions (user_id)`,

	`CREATE TABLE IF NOT EXISTS interactions (
		id BIGSERIAL PRIMARY KEY,
		session_id UUID NOT NULL REFERENCES user_sessions (session_id),
		product_id TEXT NOT NULL,
		action TEXT NOT NULL,
		reward DOUBLE PRECISION NOT NULL,
		feature_vector DOUBLE PRECISION[] NOT NULL,
		score_before DOUBLE PRECISION NOT NULL DEFAULT 0,
		score_after DOUBLE PRECISION NOT NULL DEFAULT 0,
		timestamp TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_interactions_session_ts ON interactions (session_id, timestamp)`,

	`CREATE TABLE IF NOT EXISTS session_history (
		id BIGSERIAL PRIMARY KEY,
		session_id UUID NOT NULL REFERENCES user_sessions (session_id),
		product_id TEXT NOT NULL,
		shown_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		user_action TEXT,
		action_timestamp TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_session_history_session_shown ON session_history (session_id, shown_at DESC)`,
}

// EnsureSchema creates tables and indexes if they are missing.
func (db *Database) EnsureSchema(ctx context.Context) error {
	if db.PG == nil {
		return nil
	}
	for _, stmt := range schemaStatements {
		if _, err := db.PG.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema bootstrap failed: %w", err)
		}
	}
	db.logger.Info("database schema verified")
	return nil
}
