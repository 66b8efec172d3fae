package database

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS assets (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	vendor      TEXT NOT NULL,
	product     TEXT NOT NULL,
	version     TEXT NOT NULL,
	cpe         TEXT NOT NULL,
	source      TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	CONSTRAINT assets_vendor_product_version_key UNIQUE (vendor, product, version)
);

CREATE TABLE IF NOT EXISTS advisories (
	external_id    TEXT PRIMARY KEY,
	title          TEXT NOT NULL DEFAULT '',
	description    TEXT NOT NULL DEFAULT '',
	cvss_score     DOUBLE PRECISION CHECK (cvss_score IS NULL OR (cvss_score >= 0 AND cvss_score <= 10)),
	severity       TEXT,
	source         TEXT NOT NULL DEFAULT '',
	published_at   TIMESTAMPTZ,
	modified_at    TIMESTAMPTZ,
	cpes           TEXT[] NOT NULL DEFAULT '{}',
	version_ranges JSONB NOT NULL DEFAULT '{}',
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_advisories_severity ON advisories (severity);

CREATE TABLE IF NOT EXISTS matches (
	id          TEXT PRIMARY KEY,
	asset_id    TEXT NOT NULL REFERENCES assets (id) ON DELETE CASCADE,
	external_id TEXT NOT NULL REFERENCES advisories (external_id) ON DELETE CASCADE,
	kind        TEXT NOT NULL,
	matched_at  TIMESTAMPTZ NOT NULL,
	CONSTRAINT matches_asset_advisory_key UNIQUE (asset_id, external_id)
);

CREATE INDEX IF NOT EXISTS idx_matches_matched_at ON matches (matched_at DESC);
CREATE INDEX IF NOT EXISTS idx_matches_external_id ON matches (external_id);

CREATE TABLE IF NOT EXISTS correlation_runs (
	id                    TEXT PRIMARY KEY,
	total_assets          INTEGER NOT NULL,
	total_advisories      INTEGER NOT NULL,
	total_matches         INTEGER NOT NULL,
	exact_matches         INTEGER NOT NULL,
	version_range_matches INTEGER NOT NULL,
	wildcard_matches      INTEGER NOT NULL,
	skipped_pairs         INTEGER NOT NULL,
	started_at            TIMESTAMPTZ NOT NULL,
	finished_at           TIMESTAMPTZ NOT NULL,
	duration_ms           BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_correlation_runs_finished_at ON correlation_runs (finished_at DESC);
`

// Migrate creates the schema if it does not exist yet
func (s *Service) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	log.Info().Msg("database schema is up to date")
	return nil
}
