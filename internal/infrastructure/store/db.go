package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DB wraps a database handle with the SQL dialect it speaks. Queries are
// written with ? placeholders and rebound for Postgres.
type DB struct {
	sql    *sql.DB
	driver string
}

// Open connects to the given driver and creates the schema.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	if driver == DriverSQLite && dsn != ":memory:" && !strings.Contains(dsn, "?") {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver, err)
	}

	// Test connection
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s db: %w", driver, err)
	}

	// Configure connection pool
	if driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}

	db := &DB{sql: sqlDB, driver: driver}
	if err := db.Migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.sql.Close()
}

func (db *DB) Driver() string {
	return db.driver
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS listings (
		id TEXT PRIMARY KEY,
		seller_id TEXT NOT NULL,
		item TEXT NOT NULL,
		price TEXT NOT NULL,
		deposit TEXT NOT NULL,
		live INTEGER NOT NULL,
		status TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		expires_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_status ON listings (status)`,
	`CREATE TABLE IF NOT EXISTS buy_orders (
		id TEXT PRIMARY KEY,
		buyer_id TEXT NOT NULL,
		template TEXT NOT NULL,
		price_per_item TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		total_reserved TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		expires_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_buy_orders_status ON buy_orders (status)`,
	`CREATE TABLE IF NOT EXISTS pending_returns (
		seq {{serial}},
		id TEXT NOT NULL UNIQUE,
		owner_id TEXT NOT NULL,
		item TEXT NOT NULL,
		reason TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pending_returns_owner ON pending_returns (owner_id)`,
	`CREATE TABLE IF NOT EXISTS pending_credits (
		seq {{serial}},
		id TEXT NOT NULL UNIQUE,
		player_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		reason TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		seq {{serial}},
		id TEXT NOT NULL UNIQUE,
		owner_id TEXT NOT NULL,
		direction TEXT NOT NULL,
		item TEXT NOT NULL,
		price TEXT NOT NULL,
		counterpart_id TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_owner ON ledger_entries (owner_id)`,
	`CREATE TABLE IF NOT EXISTS market_events (
		seq {{serial}},
		id TEXT NOT NULL UNIQUE,
		aggregate_id TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		event_type TEXT NOT NULL,
		data TEXT NOT NULL,
		version INTEGER NOT NULL,
		created_at BIGINT NOT NULL,
		UNIQUE (aggregate_id, version)
	)`,
	`CREATE TABLE IF NOT EXISTS player_balances (
		player_id TEXT PRIMARY KEY,
		balance TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS player_items (
		player_id TEXT NOT NULL,
		slot INTEGER NOT NULL,
		material TEXT NOT NULL,
		display_name TEXT NOT NULL,
		meta TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		PRIMARY KEY (player_id, slot)
	)`,
}

// Migrate creates missing tables. It is safe to run on every start.
func (db *DB) Migrate(ctx context.Context) error {
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if db.driver == DriverPostgres {
		serial = "BIGSERIAL PRIMARY KEY"
	}
	for _, stmt := range schema {
		stmt = strings.ReplaceAll(stmt, "{{serial}}", serial)
		if _, err := db.sql.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// rebind turns ? placeholders into $n for Postgres.
func (db *DB) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// forUpdate is the row-lock suffix; SQLite serializes writers instead.
func (db *DB) forUpdate() string {
	if db.driver == DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (db *DB) exec(ctx context.Context, q querier, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, db.rebind(query), args...)
}

func (db *DB) query(ctx context.Context, q querier, query string, args ...any) (*sql.Rows, error) {
	return q.QueryContext(ctx, db.rebind(query), args...)
}

func (db *DB) queryRow(ctx context.Context, q querier, query string, args ...any) *sql.Row {
	return q.QueryRowContext(ctx, db.rebind(query), args...)
}

// withTx runs fn in a transaction and commits if it returns nil.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(v int64) time.Time {
	return time.Unix(0, v).UTC()
}
