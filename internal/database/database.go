package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConcurrentModification is returned when a conditional update lost the race.
	ErrConcurrentModification = errors.New("concurrent modification")
)

// DB is the SQLite-backed booking store.
type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers anyway; a single connection also keeps :memory: databases shared.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if logger != nil {
		logger.Info().Str("path", path).Msg("database initialized")
	}
	return &DB{DB: sqlDB, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS restaurants (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            grace_period_minutes INTEGER NOT NULL DEFAULT 15,
            follow_up_before_minutes INTEGER NOT NULL DEFAULT 7,
            average_turn_minutes INTEGER NOT NULL DEFAULT 10
        )`,
		`CREATE TABLE IF NOT EXISTS restaurant_tables (
            id TEXT PRIMARY KEY,
            restaurant_id TEXT NOT NULL,
            label TEXT NOT NULL,
            capacity INTEGER NOT NULL,
            status TEXT NOT NULL DEFAULT 'available',
            booking_id TEXT,
            version INTEGER NOT NULL DEFAULT 0,
            updated_at DATETIME
        )`,
		`CREATE TABLE IF NOT EXISTS bookings (
            id TEXT PRIMARY KEY,
            restaurant_id TEXT NOT NULL,
            customer_name TEXT NOT NULL,
            phone TEXT NOT NULL,
            party_size INTEGER NOT NULL,
            language TEXT NOT NULL DEFAULT 'en',
            status TEXT NOT NULL DEFAULT 'waiting',
            table_id TEXT,
            estimated_wait_minutes INTEGER NOT NULL DEFAULT 0,
            notified_at DATETIME,
            grace_deadline DATETIME,
            follow_up_sent_at DATETIME,
            seated_at DATETIME,
            completed_at DATETIME,
            cancelled_at DATETIME,
            cancel_reason TEXT NOT NULL DEFAULT '',
            delivery_status TEXT NOT NULL DEFAULT '',
            version INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS messages (
            id TEXT PRIMARY KEY,
            booking_id TEXT,
            restaurant_id TEXT,
            phone TEXT NOT NULL,
            direction TEXT NOT NULL,
            template_key TEXT NOT NULL DEFAULT '',
            body TEXT NOT NULL,
            language TEXT NOT NULL DEFAULT '',
            attempt INTEGER NOT NULL DEFAULT 0,
            delivery_status TEXT NOT NULL,
            provider_message_id TEXT NOT NULL DEFAULT '',
            error TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_tables_restaurant ON restaurant_tables(restaurant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_restaurant_status ON bookings(restaurant_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_phone ON bookings(phone)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_booking ON messages(booking_id)`,
		// At most one active booking may hold a given table.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_active_table ON bookings(table_id)
            WHERE status IN ('notified', 'confirmed', 'seated')`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// inClause renders "?, ?, ?" for n placeholders.
func inClause(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
