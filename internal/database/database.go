package database

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Supported driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// DB wraps the database connection
type DB struct {
	conn   *sql.DB
	driver string
}

// New creates a new database connection for the given driver ("sqlite3" or
// "postgres") and initializes the schema.
func New(driver, dsn string) (*DB, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn, driver: driver}

	if driver == DriverSQLite {
		// Single writer; counter upserts serialize through one connection.
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
		if _, err := conn.Exec(`PRAGMA journal_mode = WAL`); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to enable WAL: %w", err)
		}
	}

	if err := db.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// GetConnection returns the underlying database connection
func (db *DB) GetConnection() *sql.DB {
	return db.conn
}

// rebind rewrites ? placeholders to $N for the postgres driver. Queries in
// this package are written in the sqlite dialect.
func (db *DB) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// createTables creates the necessary tables
func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS user_daily (
			guild_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			day TEXT NOT NULL,
			messages BIGINT NOT NULL DEFAULT 0,
			voice_seconds BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (guild_id, user_id, day)
		)`,
		`CREATE TABLE IF NOT EXISTS channel_daily (
			guild_id TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			day TEXT NOT NULL,
			messages BIGINT NOT NULL DEFAULT 0,
			voice_seconds BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (guild_id, channel_id, day)
		)`,
		`CREATE TABLE IF NOT EXISTS voice_sessions (
			guild_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			started_at_ms BIGINT NOT NULL,
			PRIMARY KEY (guild_id, user_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_user_daily_day
			ON user_daily (guild_id, user_id, day)`,
		`CREATE INDEX IF NOT EXISTS idx_channel_daily_day
			ON channel_daily (guild_id, channel_id, day)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}
