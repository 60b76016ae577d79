// Package sqlite implements the durable persistence layer on top of
// modernc.org/sqlite. A single Store owns the entity tables and the
// mutation queue so that id remapping can touch both inside one
// transaction.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schemaVersion = 1

// Store implements persistence.Store backed by a SQLite database file.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and applies migrations.
// The special path ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// modernc.org/sqlite serializes access through a single connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// SetClock replaces the time source used to stamp queue entries. Tests
// inject a fixed clock here.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// OpenMemory opens a private in-memory store, used by tests.
func OpenMemory() (*Store, error) {
	return Open(":memory:")
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if version >= schemaVersion {
		return nil
	}
	if version < 1 {
		if err := s.migrateV1(); err != nil {
			return err
		}
	}
	_, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion))
	return err
}

func (s *Store) migrateV1() error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS groups (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		invite_code TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS calendars (
		id            TEXT PRIMARY KEY,
		owner_user_id TEXT,
		group_id      TEXT REFERENCES groups(id) ON UPDATE CASCADE ON DELETE CASCADE,
		title         TEXT NOT NULL,
		color         TEXT NOT NULL DEFAULT '',
		public        INTEGER NOT NULL DEFAULT 0,
		invite_code   TEXT NOT NULL DEFAULT '',
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id                   TEXT PRIMARY KEY,
		calendar_id          TEXT NOT NULL REFERENCES calendars(id) ON UPDATE CASCADE ON DELETE CASCADE,
		name                 TEXT NOT NULL,
		start_time           TEXT NOT NULL,
		end_time             TEXT NOT NULL,
		all_day              INTEGER NOT NULL DEFAULT 0,
		location             TEXT NOT NULL DEFAULT '',
		description          TEXT NOT NULL DEFAULT '',
		first_reminder_sec   INTEGER,
		second_reminder_sec  INTEGER,
		priority             INTEGER NOT NULL DEFAULT 0,
		rec_minute           INTEGER,
		rec_hour             INTEGER,
		rec_weekdays         TEXT NOT NULL DEFAULT '',
		rec_month_day        INTEGER NOT NULL DEFAULT 0,
		rec_month            INTEGER NOT NULL DEFAULT 0,
		recurrence_end       TEXT,
		suppressed_dates     TEXT NOT NULL DEFAULT '',
		image_ref            TEXT,
		reminder_trigger_ids TEXT NOT NULL DEFAULT '',
		created_at           TEXT NOT NULL,
		updated_at           TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_calendar ON events(calendar_id);
	CREATE INDEX IF NOT EXISTS idx_events_start ON events(start_time);

	CREATE TABLE IF NOT EXISTS mutation_queue (
		seq         INTEGER PRIMARY KEY AUTOINCREMENT,
		kind        TEXT NOT NULL,
		payload     TEXT NOT NULL,
		local_id    TEXT NOT NULL DEFAULT '',
		calendar_id TEXT NOT NULL DEFAULT '',
		enqueued_at TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("apply schema v1: %w", err)
	}
	return nil
}

// TransactionFunc runs inside a database transaction.
type TransactionFunc func(tx *sql.Tx) error

// WithTransaction executes fn within a transaction, rolling back when fn
// returns an error and committing otherwise.
func (s *Store) WithTransaction(ctx context.Context, fn TransactionFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed (rollback error: %v): %w", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", v, err)
	}
	return t, nil
}
