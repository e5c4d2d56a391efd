// Package testing provides shared test fixtures used across willow's
// package test suites.
package testing

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/meadowlark-sync/willow/db"
)

// CreateTestDB creates an in-memory SQLite database with migrations applied,
// registering cleanup via t.Cleanup(). Tests that need a real driver instead
// of store.Memory or a go-sqlmock expectation (e.g. verifying the embedded
// migrations themselves apply cleanly) should use this.
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	if err := db.Migrate(conn, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
	})

	return conn
}
