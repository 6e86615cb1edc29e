package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB is the SQLite-backed store for slots and bookings.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

// NewDB opens the database at path, creating the directory and tables if needed.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL lets readers proceed during writes; immediate transactions take the
	// write lock at BEGIN so read-decide-write units never interleave.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{DB: db, path: path, logger: logger}
	if err := instance.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS slots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			start_time DATETIME NOT NULL,
			end_time DATETIME NOT NULL,
			is_booked BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			CHECK (end_time > start_time)
		)`,

		`CREATE TABLE IF NOT EXISTS bookings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			booking_id TEXT NOT NULL UNIQUE,
			booker_first_name TEXT NOT NULL,
			booker_last_name TEXT NOT NULL,
			booker_email TEXT NOT NULL,
			booker_phone TEXT NOT NULL,
			slot_id INTEGER REFERENCES slots(id) ON DELETE SET NULL,
			status TEXT NOT NULL DEFAULT 'confirmed'
				CHECK (status IN ('confirmed', 'pending', 'cancelled', 'denied')),
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_slots_times ON slots(start_time, end_time)`,
		`CREATE INDEX IF NOT EXISTS idx_slots_available ON slots(is_booked, start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_slot ON bookings(slot_id)`,
		// At most one confirmed booking per slot.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_slot_confirmed
			ON bookings(slot_id) WHERE status = 'confirmed' AND slot_id IS NOT NULL`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

// withTx runs fn inside a transaction, committing on success.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func trimSQL(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

// dbTime normalises timestamps so that stored text compares chronologically.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func isUniqueViolation(err error, column string) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique && strings.Contains(sqliteErr.Error(), column)
}

