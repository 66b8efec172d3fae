// Package sqlite implements the repository on an embedded SQLite database.
// It backs single-node deployments and the persistence tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/vchan-in/vuln-correlator/internal/config"
	"github.com/vchan-in/vuln-correlator/internal/database"
)

const schema = `
CREATE TABLE IF NOT EXISTS assets (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	vendor      TEXT NOT NULL,
	product     TEXT NOT NULL,
	version     TEXT NOT NULL,
	cpe         TEXT NOT NULL,
	source      TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL,
	UNIQUE (vendor, product, version)
);

CREATE TABLE IF NOT EXISTS advisories (
	external_id    TEXT PRIMARY KEY,
	title          TEXT NOT NULL DEFAULT '',
	description    TEXT NOT NULL DEFAULT '',
	cvss_score     REAL CHECK (cvss_score IS NULL OR (cvss_score >= 0 AND cvss_score <= 10)),
	severity       TEXT,
	source         TEXT NOT NULL DEFAULT '',
	published_at   TIMESTAMP,
	modified_at    TIMESTAMP,
	cpes           TEXT NOT NULL DEFAULT '[]',
	version_ranges TEXT NOT NULL DEFAULT '{}',
	created_at     TIMESTAMP NOT NULL,
	updated_at     TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS matches (
	id          TEXT PRIMARY KEY,
	asset_id    TEXT NOT NULL REFERENCES assets (id) ON DELETE CASCADE,
	external_id TEXT NOT NULL REFERENCES advisories (external_id) ON DELETE CASCADE,
	kind        TEXT NOT NULL,
	matched_at  TIMESTAMP NOT NULL,
	UNIQUE (asset_id, external_id)
);

CREATE INDEX IF NOT EXISTS idx_matches_matched_at ON matches (matched_at);

CREATE TABLE IF NOT EXISTS correlation_runs (
	id                    TEXT PRIMARY KEY,
	total_assets          INTEGER NOT NULL,
	total_advisories      INTEGER NOT NULL,
	total_matches         INTEGER NOT NULL,
	exact_matches         INTEGER NOT NULL,
	version_range_matches INTEGER NOT NULL,
	wildcard_matches      INTEGER NOT NULL,
	skipped_pairs         INTEGER NOT NULL,
	started_at            TIMESTAMP NOT NULL,
	finished_at           TIMESTAMP NOT NULL,
	duration_ms           INTEGER NOT NULL
);
`

// Store is the SQLite repository
type Store struct {
	db *sql.DB
}

var _ database.Repository = (*Store)(nil)

// Open opens (or creates) the database at path. ":memory:" gives a private
// in-memory database.
func Open(path string) (*Store, error) {
	dsn := path + "?_foreign_keys=on&_busy_timeout=5000"

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// SQLite allows a single writer; an in-memory database also only exists
	// on the connection that created it.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	log.Info().
		Str("driver", config.DriverSQLite).
		Str("path", path).
		Msg("database opened")

	return &Store{db: db}, nil
}

// Migrate creates the schema if it does not exist yet
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Health checks the database connection
func (s *Store) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *Store) Close() {
	if err := s.db.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close sqlite database")
		return
	}
	log.Info().Msg("sqlite database closed")
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// utc normalizes timestamps so that text ordering matches time ordering
func utc(t time.Time) time.Time {
	return t.UTC()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}

func nullFloatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	return &f.Float64
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
