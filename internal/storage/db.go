// Package storage owns the SQL database handle shared by the cache and
// usage stores. Two dialects are supported: PostgreSQL for multi-instance
// deployments and SQLite for single-node or test use. Queries in the
// stores are written with ? placeholders and passed through Rebind, so
// they run unchanged on either dialect.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver (pure Go)
)

// Supported driver names.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds database connection configuration.
type Config struct {
	Driver string
	DSN    string

	// Pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConfig returns sensible pool settings for a driver and DSN.
func DefaultConfig(driver, dsn string) Config {
	return Config{
		Driver: driver,
		DSN:    dsn,

		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
	}
}

// DB wraps the database connection and the dialect it speaks.
type DB struct {
	conn   *sqlx.DB
	driver string
}

// Open connects to the database and configures the connection pool.
func Open(cfg Config) (*DB, error) {
	switch cfg.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	dsn := cfg.DSN
	if cfg.Driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	conn, err := sqlx.Connect(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Driver == DriverSQLite {
		// Single writer; avoids SQLITE_BUSY under concurrent access.
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
		conn.SetMaxIdleConns(cfg.MaxIdleConns)
		conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		conn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	return &DB{conn: conn, driver: cfg.Driver}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Driver returns the active driver name.
func (db *DB) Driver() string {
	return db.driver
}

// Conn returns the underlying sqlx connection.
func (db *DB) Conn() *sqlx.DB {
	return db.conn
}

// Rebind rewrites ? placeholders into the dialect's bindvar format.
func (db *DB) Rebind(query string) string {
	return db.conn.Rebind(query)
}

// BeginTx starts a new transaction.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return db.conn.BeginTxx(ctx, opts)
}

// Ping checks if the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Health verifies the connection can execute a query.
func (db *DB) Health(ctx context.Context) error {
	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var result int
	if err := db.conn.GetContext(ctx, &result, "SELECT 1"); err != nil {
		return fmt.Errorf("health check query failed: %w", err)
	}

	return nil
}

// DayBucket returns the dialect expression that formats a timestamp
// column as a YYYY-MM-DD day string, used for daily usage grouping.
func (db *DB) DayBucket(column string) string {
	if db.driver == DriverSQLite {
		return fmt.Sprintf("strftime('%%Y-%%m-%%d', %s)", column)
	}
	return fmt.Sprintf("to_char(%s, 'YYYY-MM-DD')", column)
}

// sqliteDSN appends the driver options the stores rely on: timestamps
// written in a format SQLite's date functions can parse, write-ahead
// logging, and a busy timeout for moments the writer is held up.
func sqliteDSN(dsn string) string {
	const opts = "_time_format=sqlite&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	if strings.Contains(dsn, "?") {
		return dsn + "&" + opts
	}
	return dsn + "?" + opts
}

// EnsureSchema executes DDL statements, typically once at startup.
// Statements are expected to be idempotent (CREATE TABLE IF NOT EXISTS).
func (db *DB) EnsureSchema(ctx context.Context, statements ...string) error {
	for _, stmt := range statements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
