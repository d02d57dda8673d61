package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
)

// JWTSecret returns the token signing key kept in the database, generating
// it on first use. Concurrent first calls agree on a single value.
func JWTSecret(ctx context.Context, db *sql.DB) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating jwt secret: %w", err)
	}

	if _, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings (key, value) VALUES ('jwt_secret', ?)`,
		hex.EncodeToString(buf),
	); err != nil {
		return "", fmt.Errorf("storing jwt secret: %w", err)
	}

	var secret string
	if err := db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = 'jwt_secret'`,
	).Scan(&secret); err != nil {
		return "", fmt.Errorf("querying jwt secret: %w", err)
	}
	return secret, nil
}
