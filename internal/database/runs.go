package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vchan-in/vuln-correlator/internal/types"
)

// RecordRun stores the statistics of a finished correlation run
func (s *Service) RecordRun(ctx context.Context, stats *types.RunStats) error {
	if stats.ID == "" {
		stats.ID = uuid.New().String()
	}

	query := `
		INSERT INTO correlation_runs (
			id, total_assets, total_advisories, total_matches,
			exact_matches, version_range_matches, wildcard_matches, skipped_pairs,
			started_at, finished_at, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.pool.Exec(ctx, query,
		stats.ID, stats.TotalAssets, stats.TotalAdvisories, stats.TotalMatches,
		stats.ExactMatches, stats.VersionRangeMatches, stats.WildcardMatches, stats.SkippedPairs,
		stats.StartedAt, stats.FinishedAt, stats.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to record correlation run: %w", err)
	}

	return nil
}

// ListRuns returns the most recent correlation runs
func (s *Service) ListRuns(ctx context.Context, limit int) ([]types.RunStats, error) {
	query := `
		SELECT id, total_assets, total_advisories, total_matches,
			exact_matches, version_range_matches, wildcard_matches, skipped_pairs,
			started_at, finished_at, duration_ms
		FROM correlation_runs
		ORDER BY finished_at DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
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
func (s *Service) DashboardStats(ctx context.Context) (*types.DashboardStats, error) {
	stats := &types.DashboardStats{BySeverity: make(map[string]int)}

	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM assets),
			(SELECT COUNT(*) FROM advisories),
			(SELECT COUNT(*) FROM matches),
			(SELECT COUNT(DISTINCT asset_id) FROM matches)
	`).Scan(&stats.TotalAssets, &stats.TotalAdvisories, &stats.TotalMatches, &stats.AffectedAssets)
	if err != nil {
		return nil, fmt.Errorf("failed to count dashboard totals: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT COALESCE(adv.severity, 'Unknown'), COUNT(*)
		FROM matches m
		JOIN advisories adv ON adv.external_id = m.external_id
		GROUP BY 1
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query severity breakdown: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var severity string
		var count int
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, fmt.Errorf("failed to scan severity breakdown: %w", err)
		}
		stats.BySeverity[severity] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate severity breakdown: %w", err)
	}

	var lastRun time.Time
	err = s.pool.QueryRow(ctx, `SELECT finished_at FROM correlation_runs ORDER BY finished_at DESC LIMIT 1`).Scan(&lastRun)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to query last correlation run: %w", err)
	default:
		stats.LastRunAt = &lastRun
	}

	return stats, nil
}

// assetRankingQuery ranks assets by match count with their critical and high
// counts. Shared by both backends.
const assetRankingQuery = `
	SELECT a.id, a.name, COUNT(m.id),
		COALESCE(SUM(CASE WHEN adv.severity = 'Critical' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN adv.severity = 'High' THEN 1 ELSE 0 END), 0)
	FROM assets a
	JOIN matches m ON m.asset_id = a.id
	JOIN advisories adv ON adv.external_id = m.external_id
	GROUP BY a.id, a.name
	ORDER BY COUNT(m.id) DESC, a.id
	LIMIT `

// AssetRankingQuery returns the ranking statement with the given limit
// placeholder
func AssetRankingQuery(placeholder string) string {
	return assetRankingQuery + placeholder
}

// AssetRanking returns the assets with the most matches
func (s *Service) AssetRanking(ctx context.Context, limit int) ([]types.AssetRank, error) {
	if limit <= 0 {
		limit = DefaultRankingLimit
	}

	rows, err := s.pool.Query(ctx, AssetRankingQuery("$1"), limit)
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
