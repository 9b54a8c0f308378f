// Package repository is the SQLite durable backend of the kernel: audit
// log, active pointers, agent memory, and the session/epoch/run store.
package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements tracker.Log, pointer.Store, memory.Store and the
// living store on one database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens dsn and migrates the schema.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := NewWithDB(db)
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// NewWithDB wraps an already migrated database handle.
func NewWithDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			decision_context_id TEXT NOT NULL,
			mode TEXT NOT NULL DEFAULT 'live',
			status TEXT NOT NULL DEFAULT 'active',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_tenant ON sessions(tenant_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS epochs (
			epoch_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			sequence_no INTEGER NOT NULL,
			trigger_name TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			derived_from_epoch_id TEXT,
			UNIQUE (session_id, sequence_no),
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			epoch_id TEXT NOT NULL,
			zone_id TEXT NOT NULL,
			run_mode TEXT NOT NULL DEFAULT 'auto',
			created_at INTEGER NOT NULL,
			kernel_version TEXT NOT NULL DEFAULT '',
			trace_id TEXT NOT NULL DEFAULT '',
			correlation_id TEXT NOT NULL DEFAULT '',
			FOREIGN KEY (session_id) REFERENCES sessions(session_id),
			FOREIGN KEY (epoch_id) REFERENCES epochs(epoch_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS audit_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL UNIQUE,
			created_at INTEGER NOT NULL,
			tenant_id TEXT NOT NULL DEFAULT '',
			decision_context_id TEXT NOT NULL DEFAULT '',
			session_id TEXT NOT NULL DEFAULT '',
			epoch_id TEXT NOT NULL DEFAULT '',
			run_id TEXT NOT NULL DEFAULT '',
			zone_id TEXT NOT NULL DEFAULT '',
			actor TEXT NOT NULL,
			event_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			refs TEXT,
			metadata TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_session ON audit_events(session_id, created_at, seq)`,
		`CREATE TRIGGER IF NOT EXISTS audit_events_no_update BEFORE UPDATE ON audit_events
			BEGIN SELECT RAISE(ABORT, 'audit events are append-only'); END`,
		`CREATE TRIGGER IF NOT EXISTS audit_events_no_delete BEFORE DELETE ON audit_events
			BEGIN SELECT RAISE(ABORT, 'audit events are append-only'); END`,
		`CREATE TABLE IF NOT EXISTS active_pointers (
			tenant_id TEXT NOT NULL,
			decision_context_id TEXT NOT NULL,
			pointer_key TEXT NOT NULL,
			kind TEXT NOT NULL,
			artifact_id TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (tenant_id, decision_context_id, pointer_key)
		)`,
		`CREATE TABLE IF NOT EXISTS memory_kv (
			namespace TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			expires_at INTEGER,
			PRIMARY KEY (namespace, key)
		)`,
		`CREATE TABLE IF NOT EXISTS memory_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			namespace TEXT NOT NULL,
			record TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_logs_ns ON memory_logs(namespace, id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping() error {
	return s.db.Ping()
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
