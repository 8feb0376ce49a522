package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Querier is an interface satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Ensure interfaces are satisfied.
var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
)

// Dialect selects the SQL flavour of the connected database.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// DB is a database handle that knows its dialect. Queries are written with
// $n placeholders and rebound for SQLite.
type DB struct {
	db      *sql.DB
	dialect Dialect
}

// New wraps an open database.
func New(db *sql.DB, dialect Dialect) *DB {
	return &DB{db: db, dialect: dialect}
}

// Dialect returns the dialect of the database.
func (d *DB) Dialect() Dialect {
	return d.dialect
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}

// rebind rewrites $n placeholders to ?n for SQLite.
func (d *DB) rebind(query string) string {
	if d.dialect != SQLite {
		return query
	}
	return strings.ReplaceAll(query, "$", "?")
}

// Migrate creates the tables if they do not exist.
func (d *DB) Migrate(ctx context.Context) error {
	serial := "BIGSERIAL PRIMARY KEY"
	float := "DOUBLE PRECISION"
	if d.dialect == SQLite {
		serial = "INTEGER PRIMARY KEY AUTOINCREMENT"
		float = "REAL"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS grid_cells (
			kind            TEXT NOT NULL,
			zone            TEXT NOT NULL,
			zone_group      TEXT NOT NULL DEFAULT '',
			trip_count      INTEGER NOT NULL DEFAULT 0,
			scored_count    INTEGER NOT NULL DEFAULT 0,
			unscored_count  INTEGER NOT NULL DEFAULT 0,
			sum_per_mile    ` + float + ` NOT NULL DEFAULT 0,
			sum_per_minute  ` + float + ` NOT NULL DEFAULT 0,
			sum_hourly      ` + float + ` NOT NULL DEFAULT 0,
			mean_per_mile   ` + float + ` NOT NULL DEFAULT 0,
			mean_per_minute ` + float + ` NOT NULL DEFAULT 0,
			mean_hourly     ` + float + ` NOT NULL DEFAULT 0,
			mean_delay      ` + float + ` NOT NULL DEFAULT 0,
			good            INTEGER NOT NULL DEFAULT 0,
			marginal        INTEGER NOT NULL DEFAULT 0,
			bad             INTEGER NOT NULL DEFAULT 0,
			first_seen      TEXT NOT NULL,
			last_updated    TEXT NOT NULL,
			effective_count INTEGER NOT NULL DEFAULT 0,
			linked_count    INTEGER NOT NULL DEFAULT 0,
			sum_pickup_minutes             ` + float + ` NOT NULL DEFAULT 0,
			sum_dead_minutes               ` + float + ` NOT NULL DEFAULT 0,
			sum_next_pickup_minutes        ` + float + ` NOT NULL DEFAULT 0,
			sum_effective_hourly           ` + float + ` NOT NULL DEFAULT 0,
			sum_effective_hourly_incl_next ` + float + ` NOT NULL DEFAULT 0,
			PRIMARY KEY (kind, zone)
		)`,
		`CREATE TABLE IF NOT EXISTS processed_trips (
			trip_id      TEXT PRIMARY KEY,
			processed_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS guardrail_log (
			id           ` + serial + `,
			action       TEXT NOT NULL,
			zone         TEXT NOT NULL,
			reason       TEXT NOT NULL DEFAULT '',
			value        ` + float + ` NOT NULL DEFAULT 0,
			threshold    ` + float + ` NOT NULL DEFAULT 0,
			sample_count INTEGER NOT NULL DEFAULT 0,
			trip_id      TEXT NOT NULL DEFAULT '',
			completed_at TEXT NOT NULL DEFAULT '',
			at           TEXT NOT NULL,
			note         TEXT NOT NULL DEFAULT '',
			link         TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS process_state (
			id                 INTEGER PRIMARY KEY,
			last_ocr_hash      TEXT NOT NULL DEFAULT '',
			last_archived_trip TEXT NOT NULL DEFAULT '',
			last_gridded_trip  TEXT NOT NULL DEFAULT '',
			last_guarded_trip  TEXT NOT NULL DEFAULT '',
			updated_at         TEXT NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}

// WithTx runs fn inside a transaction, rolling back on error.
func (d *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
