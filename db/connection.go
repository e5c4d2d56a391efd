// Package db provides SQLite connection utilities backing the willow store
// package. It opens the file, tunes pragmas for a single-writer/many-reader
// workload, and applies embedded migrations.
package db

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/meadowlark-sync/willow/errors"
)

const (
	// SQLiteJournalMode enables WAL so reconciliation reads don't block ingest writes.
	SQLiteJournalMode = "WAL"

	// SQLiteBusyTimeoutMS bounds how long a writer waits for a contended lock.
	SQLiteBusyTimeoutMS = 5000
)

// Open opens a SQLite database at path with WAL journaling, foreign keys,
// and a busy timeout. log may be nil for silent operation (tests).
func Open(path string, log *zap.SugaredLogger) (*sql.DB, error) {
	if log != nil {
		log.Debugw("opening database", "path", path)
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "failed to create database directory: %s", dir)
		}
	}

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", path)
	}

	if _, err := conn.Exec("PRAGMA journal_mode = " + SQLiteJournalMode); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "failed to enable %s journal mode for %s", SQLiteJournalMode, path)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "failed to enable foreign keys for %s", path)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "failed to set busy timeout to %dms for %s", SQLiteBusyTimeoutMS, path)
	}

	if log != nil {
		log.Infow("database opened", "path", path, "wal_mode", true)
	}

	return conn, nil
}

// OpenWithMigrations opens the database and applies all pending migrations.
func OpenWithMigrations(path string, log *zap.SugaredLogger) (*sql.DB, error) {
	conn, err := Open(path, log)
	if err != nil {
		return nil, err
	}

	if err := Migrate(conn, log); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "failed to run migrations for %s", path)
	}

	return conn, nil
}
