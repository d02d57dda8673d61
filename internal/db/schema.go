package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id         INTEGER PRIMARY KEY,
    email      TEXT NOT NULL,
    name       TEXT NOT NULL,
    credits    INTEGER NOT NULL DEFAULT 0,
    blocked    INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email);

CREATE TABLE IF NOT EXISTS items (
    id          INTEGER PRIMARY KEY,
    type        TEXT NOT NULL CHECK (type IN ('lost', 'found')),
    name        TEXT NOT NULL,
    description TEXT,
    tags        TEXT NOT NULL DEFAULT '[]',
    color       TEXT,
    latitude    REAL,
    longitude   REAL,
    occurred_at DATETIME NOT NULL,
    status      TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'matched', 'claimed', 'resolved')),
    owner_id    INTEGER NOT NULL REFERENCES users(id),
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_items_type_status ON items(type, status);

CREATE TABLE IF NOT EXISTS item_images (
    id         INTEGER PRIMARY KEY,
    item_id    INTEGER NOT NULL REFERENCES items(id),
    data       BLOB NOT NULL,
    mime       TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS matches (
    id            TEXT PRIMARY KEY,
    lost_item_id  INTEGER NOT NULL REFERENCES items(id),
    found_item_id INTEGER NOT NULL REFERENCES items(id),
    score         REAL NOT NULL,
    breakdown     TEXT NOT NULL DEFAULT '{}',
    status        TEXT NOT NULL DEFAULT 'matched' CHECK (status IN ('matched', 'claimed')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_matches_pair ON matches(lost_item_id, found_item_id);

CREATE TABLE IF NOT EXISTS match_history (
    id            TEXT PRIMARY KEY,
    lost_item_id  INTEGER NOT NULL,
    found_item_id INTEGER NOT NULL,
    score         REAL NOT NULL,
    breakdown     TEXT NOT NULL,
    outcome       TEXT NOT NULL CHECK (outcome IN ('completed', 'blocked')),
    created_at    DATETIME NOT NULL,
    closed_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS handover_codes (
    match_id      TEXT PRIMARY KEY,
    lost_item_id  INTEGER NOT NULL REFERENCES items(id),
    found_item_id INTEGER NOT NULL REFERENCES items(id),
    initiator_id  INTEGER NOT NULL REFERENCES users(id),
    code_hash     TEXT NOT NULL,
    attempts      INTEGER NOT NULL DEFAULT 0,
    max_attempts  INTEGER NOT NULL CHECK (max_attempts > 0),
    status        TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'verified', 'blocked', 'expired')),
    expires_at    DATETIME NOT NULL,
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS handovers (
    id                   TEXT PRIMARY KEY,
    match_id             TEXT NOT NULL UNIQUE,
    lost_item_id         INTEGER NOT NULL REFERENCES items(id),
    found_item_id        INTEGER NOT NULL REFERENCES items(id),
    lost_owner_id        INTEGER NOT NULL REFERENCES users(id),
    found_owner_id       INTEGER NOT NULL REFERENCES users(id),
    lost_item_snapshot   TEXT NOT NULL,
    found_item_snapshot  TEXT NOT NULL,
    lost_owner_snapshot  TEXT NOT NULL,
    found_owner_snapshot TEXT NOT NULL,
    score                REAL NOT NULL,
    completed_at         DATETIME NOT NULL,
    ledger_status        TEXT NOT NULL DEFAULT 'pending' CHECK (ledger_status IN ('pending', 'recorded', 'failed')),
    ledger_tx            TEXT,
    ledger_error         TEXT
);

CREATE TABLE IF NOT EXISTS credits (
    id         INTEGER PRIMARY KEY,
    user_id    INTEGER NOT NULL REFERENCES users(id),
    amount     INTEGER NOT NULL,
    reason     TEXT NOT NULL,
    item_id    INTEGER REFERENCES items(id),
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
