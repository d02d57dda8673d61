package db

import (
	"database/sql"
	"path/filepath"
	"testing"
)

// NewTestDB returns a migrated in-memory database that is closed when the
// test ends. It has a single connection.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()
	return openTestDB(t, ":memory:")
}

// NewTestFileDB returns a migrated database file in a temporary directory.
// Unlike NewTestDB it has a connection pool, so tests can exercise
// concurrent transactions.
func NewTestFileDB(t *testing.T) *sql.DB {
	t.Helper()
	return openTestDB(t, filepath.Join(t.TempDir(), "najdeno.sqlite3"))
}

func openTestDB(t *testing.T, path string) *sql.DB {
	t.Helper()

	database, err := Open(path)
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := Migrate(database); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return database
}
