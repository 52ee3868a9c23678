// Package sqlite stores sessions and finds in an embedded SQLite database,
// for single-device deployments and tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/ShaoKhan/finder-sub000/internal/core/domain"
)

// DB wraps a database/sql handle on a SQLite file.
type DB struct {
	SQL *sql.DB
}

// Open connects to the SQLite database at path, enables foreign keys and
// applies the schema. ":memory:" gives a private in-memory database.
func Open(ctx context.Context, path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path must be provided")
	}
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite serialises writers; one connection also keeps :memory: shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{SQL: db}, nil
}

// Ping checks connectivity.
func (db *DB) Ping(ctx context.Context) error {
	return db.SQL.PingContext(ctx)
}

// Stat returns a pool statistics snapshot for metrics.
func (db *DB) Stat() any {
	return PoolStat{db.SQL.Stats()}
}

// Close releases the database.
func (db *DB) Close() {
	db.SQL.Close()
}

// PoolStat adapts sql.DBStats to the pool gauges.
type PoolStat struct {
	sql.DBStats
}

func (s PoolStat) AcquiredConns() int32 { return int32(s.InUse) }
func (s PoolStat) IdleConns() int32     { return int32(s.Idle) }
func (s PoolStat) TotalConns() int32    { return int32(s.OpenConnections) }

var schema = []string{
	`CREATE TABLE IF NOT EXISTS survey_sessions (
		id               TEXT PRIMARY KEY,
		owner_id         TEXT NOT NULL,
		state            TEXT NOT NULL CHECK (state IN ('active', 'completed')),
		start_lat        REAL NOT NULL,
		start_lon        REAL NOT NULL,
		end_lat          REAL,
		end_lon          REAL,
		start_time       TEXT NOT NULL,
		end_time         TEXT,
		duration_seconds INTEGER,
		track_data       TEXT NOT NULL DEFAULT '[]',
		CHECK ((end_time IS NULL) = (duration_seconds IS NULL))
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS survey_sessions_one_active_per_owner
		ON survey_sessions(owner_id) WHERE state = 'active'`,
	`CREATE INDEX IF NOT EXISTS survey_sessions_owner_start
		ON survey_sessions(owner_id, start_time DESC)`,
	`CREATE TABLE IF NOT EXISTS finds (
		id         TEXT PRIMARY KEY,
		owner_id   TEXT NOT NULL,
		session_id TEXT REFERENCES survey_sessions(id),
		name       TEXT NOT NULL,
		lat        REAL NOT NULL,
		lon        REAL NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS finds_session ON finds(session_id)`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// translate maps driver errors onto domain errors.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) && sqErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("%s: %w", sqErr.Error(), domain.ErrConflict)
	}
	return err
}
