// Package store provides the supervisor's diagnostic telemetry history:
// an append-only SQLite log of dispatcher sessions and service state
// transitions. The supervisor writes dispatcher session rows; no binary
// in this module calls RecordServiceTransition or reads the history back.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// baseSchema creates the core tables. Column additions are handled by migrations.
// This schema represents the initial state (version 0).
const baseSchema = `
CREATE TABLE IF NOT EXISTS dispatcher_sessions (
	id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	recorded_at_ms INTEGER NOT NULL,
	state TEXT NOT NULL,
	cohort TEXT,
	detail_json TEXT,
	PRIMARY KEY (id)
);

CREATE INDEX IF NOT EXISTS idx_dispatcher_sessions_session_id ON dispatcher_sessions(session_id);

CREATE TABLE IF NOT EXISTS service_transitions (
	id TEXT NOT NULL,
	service_name TEXT NOT NULL,
	recorded_at_ms INTEGER NOT NULL,
	from_state TEXT,
	to_state TEXT NOT NULL,
	detail_json TEXT,
	PRIMARY KEY (id)
);

CREATE INDEX IF NOT EXISTS idx_service_transitions_service_name ON service_transitions(service_name);

CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL
);
`

// migration represents a database schema migration.
type migration struct {
	version int
	desc    string
	sql     string
}

// migrations defines all schema migrations in order.
// Each migration is applied exactly once, tracked in schema_migrations table.
// To add a new migration: append to this slice with the next version number.
var migrations = []migration{
	{1, "add retry_after_ms to dispatcher_sessions", "ALTER TABLE dispatcher_sessions ADD COLUMN retry_after_ms INTEGER"},
}

// OpenDB opens the telemetry database at the given path, creating it and its
// schema if necessary. Passing ":memory:" opens a private in-memory database,
// useful in tests.
func OpenDB(dbPath string) (*sql.DB, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// For in-memory databases, ensure we use a single connection to avoid
	// connection pooling issues (each :memory: connection is a separate DB)
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(baseSchema); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrateDB(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// migrateDB runs all pending migrations in order, tracked in schema_migrations.
func migrateDB(db *sql.DB) error {
	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("getting schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("starting transaction for migration %d: %w", m.version, err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.version, m.desc, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at) VALUES (?, datetime('now'))",
			m.version,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", m.version, err)
		}
	}

	return nil
}

// getCurrentVersion returns the highest applied migration version, or 0 if none.
func getCurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// GetSchemaVersion returns the current schema version for the database.
// Exported for diagnostics.
func GetSchemaVersion(db *sql.DB) (int, error) {
	return getCurrentVersion(db)
}
