package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vchan-in/vuln-correlator/internal/database"
	"github.com/vchan-in/vuln-correlator/internal/types"
)

const runColumns = `id, total_assets, total_advisories, total_matches,
	exact_matches, version_range_matches, wildcard_matches, skipped_pairs,
	started_at, finished_at, duration_ms`

// RecordRun stores the statistics of a finished correlation run
func (s *Store) RecordRun(ctx context.Context, stats *types.RunStats) error {
	if stats.ID == "" {
		stats.ID = uuid.New().String()
	}

	query := `INSERT INTO correlation_runs (` + runColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		stats.ID, stats.TotalAssets, stats.TotalAdvisories, stats.TotalMatches,
		stats.ExactMatches, stats.VersionRangeMatches, stats.WildcardMatches, stats.SkippedPairs,
		utc(stats.StartedAt), utc(stats.FinishedAt), stats.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to record correlation run: %w", err)
	}

	return nil
}

// ListRuns returns the most recent correlation runs
func (s *Store) ListRuns(ctx context.Context, limit int) ([]types.RunStats, error) {
	query := `SELECT ` + runColumns + ` FROM correlation_runs ORDER BY finished_at DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query correlation runs: %w", err)
	}
	defer rows.Close()

	runs := make([]types.RunStats, 0)
	for rows.Next() {
		var r types.RunStats
		if err := rows.Scan(
			&r.ID, &r.TotalAssets, &r.TotalAdvisories, &r.TotalMatches,
			&r.ExactMatches, &r.VersionRangeMatches, &r.WildcardMatches, &r.SkippedPairs,
			&r.StartedAt, &r.FinishedAt, &r.DurationMs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan correlation run: %w", err)
		}
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate correlation runs: %w", err)
	}

	return runs, nil
}

// DashboardStats aggregates inventory, match and run state
func (s *Store) DashboardStats(ctx context.Context) (*types.DashboardStats, error) {
	stats := &types.DashboardStats{BySeverity: make(map[string]int)}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM assets),
			(SELECT COUNT(*) FROM advisories),
			(SELECT COUNT(*) FROM matches),
			(SELECT COUNT(DISTINCT asset_id) FROM matches)
	`).Scan(&stats.TotalAssets, &stats.TotalAdvisories, &stats.TotalMatches, &stats.AffectedAssets)
	if err != nil {
		return nil, fmt.Errorf("failed to count dashboard totals: %w", err)
	}

	if err := s.severityBreakdown(ctx, stats.BySeverity); err != nil {
		return nil, err
	}

	var lastRun time.Time
	err = s.db.QueryRowContext(ctx, `SELECT finished_at FROM correlation_runs ORDER BY finished_at DESC LIMIT 1`).Scan(&lastRun)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to query last correlation run: %w", err)
	default:
		stats.LastRunAt = &lastRun
	}

	return stats, nil
}

func (s *Store) severityBreakdown(ctx context.Context, out map[string]int) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(adv.severity, 'Unknown'), COUNT(*)
		FROM matches m
		JOIN advisories adv ON adv.external_id = m.external_id
		GROUP BY 1
	`)
	if err != nil {
		return fmt.Errorf("failed to query severity breakdown: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var severity string
		var count int
		if err := rows.Scan(&severity, &count); err != nil {
			return fmt.Errorf("failed to scan severity breakdown: %w", err)
		}
		out[severity] = count
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate severity breakdown: %w", err)
	}
	return nil
}

// AssetRanking returns the assets with the most matches
func (s *Store) AssetRanking(ctx context.Context, limit int) ([]types.AssetRank, error) {
	if limit <= 0 {
		limit = database.DefaultRankingLimit
	}

	rows, err := s.db.QueryContext(ctx, database.AssetRankingQuery("?"), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query asset ranking: %w", err)
	}
	defer rows.Close()

	ranking := make([]types.AssetRank, 0)
	for rows.Next() {
		var r types.AssetRank
		if err := rows.Scan(&r.AssetID, &r.AssetName, &r.VulnerabilityCount, &r.CriticalCount, &r.HighCount); err != nil {
			return nil, fmt.Errorf("failed to scan asset ranking: %w", err)
		}
		ranking = append(ranking, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate asset ranking: %w", err)
	}

	return ranking, nil
}
