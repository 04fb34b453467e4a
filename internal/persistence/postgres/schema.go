package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// schemaDDL creates every table the repositories touch. The block-per-sense
// unique index is the real guard behind one-block-per-sense; the application
// check is only a fast path.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS user_xp (
	user_id TEXT PRIMARY KEY,
	sparks BIGINT NOT NULL DEFAULT 0,
	essence BIGINT NOT NULL DEFAULT 0,
	energy BIGINT NOT NULL DEFAULT 0,
	blocks BIGINT NOT NULL DEFAULT 0,
	total_xp BIGINT NOT NULL DEFAULT 0,
	current_level INT NOT NULL DEFAULT 1,
	xp_to_next_level BIGINT NOT NULL DEFAULT 100,
	xp_in_current_level BIGINT NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS currency_transactions (
	id BIGSERIAL PRIMARY KEY,
	user_id TEXT NOT NULL,
	currency_type TEXT NOT NULL,
	amount BIGINT NOT NULL,
	balance_after BIGINT NOT NULL,
	source TEXT NOT NULL,
	source_id TEXT,
	description TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_currency_tx_user
	ON currency_transactions (user_id, id DESC);

CREATE UNIQUE INDEX IF NOT EXISTS uq_currency_tx_block_per_sense
	ON currency_transactions (user_id, source_id)
	WHERE currency_type = 'blocks' AND source = 'word_solid';

CREATE TABLE IF NOT EXISTS user_algorithm_assignment (
	user_id TEXT PRIMARY KEY,
	algorithm TEXT NOT NULL,
	assignment_reason TEXT NOT NULL,
	can_migrate_to_fsrs BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS verification_schedule (
	id BIGSERIAL PRIMARY KEY,
	user_id TEXT NOT NULL,
	learning_progress_id TEXT NOT NULL,
	learning_point_id TEXT NOT NULL DEFAULT '',
	algorithm_type TEXT NOT NULL,
	current_interval INT NOT NULL DEFAULT 1,
	scheduled_date TIMESTAMPTZ NOT NULL,
	last_review_date TIMESTAMPTZ,
	test_day INT,
	ease_factor DOUBLE PRECISION,
	consecutive_correct INT NOT NULL DEFAULT 0,
	stability DOUBLE PRECISION,
	difficulty DOUBLE PRECISION,
	retention_probability DOUBLE PRECISION,
	fsrs_state JSONB,
	mastery_level TEXT NOT NULL DEFAULT 'learning',
	is_leech BOOLEAN NOT NULL DEFAULT FALSE,
	total_reviews INT NOT NULL DEFAULT 0,
	total_correct INT NOT NULL DEFAULT 0,
	avg_response_time_ms DOUBLE PRECISION,
	completed BOOLEAN NOT NULL DEFAULT FALSE,
	completed_at TIMESTAMPTZ,
	passed BOOLEAN,
	score DOUBLE PRECISION,
	questions JSONB,
	answers JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (user_id, learning_progress_id)
);

CREATE INDEX IF NOT EXISTS idx_schedule_due
	ON verification_schedule (user_id, scheduled_date);

CREATE INDEX IF NOT EXISTS idx_schedule_leech
	ON verification_schedule (user_id) WHERE is_leech;

CREATE TABLE IF NOT EXISTS fsrs_review_history (
	id BIGSERIAL PRIMARY KEY,
	user_id TEXT NOT NULL,
	learning_progress_id TEXT NOT NULL,
	review_date TIMESTAMPTZ NOT NULL,
	rating INT NOT NULL,
	algorithm TEXT NOT NULL,
	interval_after INT NOT NULL DEFAULT 0,
	response_time_ms INT NOT NULL DEFAULT 0,
	nonce TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (user_id, nonce)
);

CREATE INDEX IF NOT EXISTS idx_review_history_user
	ON fsrs_review_history (user_id, review_date DESC);
`

// EnsureSchema creates tables and indexes if missing. It is idempotent, so
// deployments with managed migrations can run it harmlessly.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
