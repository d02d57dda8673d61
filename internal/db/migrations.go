package db

import (
	"database/sql"
	"fmt"
)

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{
	// Migration 1: Credit entries are listed per user, newest first.
	`CREATE INDEX IF NOT EXISTS idx_credits_user ON credits(user_id, created_at)`,
	// Migration 2: Reconciliation scans handovers whose ledger write failed.
	`CREATE INDEX IF NOT EXISTS idx_handovers_ledger_status ON handovers(ledger_status)`,
	// Migration 3: Generated server settings such as the token signing key.
	`CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

// Migrate runs the database schema migrations.
func Migrate(db *sql.DB) error {
	if err := EnsureSchema(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}

	return nil
}
