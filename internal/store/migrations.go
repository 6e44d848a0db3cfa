package store

import (
	"context"
	"database/sql"
)

// schema contains the DDL for the jobs table.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id                 TEXT PRIMARY KEY,
		type               TEXT NOT NULL DEFAULT '',
		urgency            TEXT NOT NULL DEFAULT 'flexible',
		status             TEXT NOT NULL DEFAULT 'QUEUED',
		mode               TEXT NOT NULL DEFAULT '',
		decision_ts        TEXT,
		carbon_at_decision INTEGER,
		rule_id            TEXT NOT NULL DEFAULT '',
		reason             TEXT NOT NULL DEFAULT '',
		defer_deadline_ts  TEXT,
		duration_ms        INTEGER NOT NULL DEFAULT 0,
		emissions_kg       REAL NOT NULL DEFAULT 0,
		result             TEXT NOT NULL DEFAULT '',
		created_at         TEXT NOT NULL,
		updated_at         TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at)`,
}

// migrate applies all schema statements.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
