package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vchan-in/vuln-correlator/internal/types"
)

const advisoryColumns = `external_id, title, description, cvss_score, COALESCE(severity, ''), source,
	published_at, modified_at, cpes, version_ranges::text, created_at, updated_at`

// UpsertAdvisory inserts or updates an advisory keyed by its external id
func (s *Service) UpsertAdvisory(ctx context.Context, advisory *types.Advisory) (bool, error) {
	ranges, err := EncodeRanges(advisory.VersionRanges)
	if err != nil {
		return false, err
	}

	cpes := advisory.CPEs
	if cpes == nil {
		cpes = []string{}
	}

	query := `
		INSERT INTO advisories (
			external_id, title, description, cvss_score, severity, source,
			published_at, modified_at, cpes, version_ranges, created_at, updated_at
		) VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10::jsonb, $11, $11)
		ON CONFLICT (external_id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			cvss_score = EXCLUDED.cvss_score,
			severity = EXCLUDED.severity,
			source = EXCLUDED.source,
			published_at = EXCLUDED.published_at,
			modified_at = EXCLUDED.modified_at,
			cpes = EXCLUDED.cpes,
			version_ranges = EXCLUDED.version_ranges,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at, (xmax = 0) AS inserted
	`

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// Matches computed from the previous identifiers or ranges no longer hold
	_, err = tx.Exec(ctx, `
		DELETE FROM matches
		WHERE external_id = $1 AND EXISTS (
			SELECT 1 FROM advisories
			WHERE external_id = $1 AND (cpes <> $2 OR version_ranges <> $3::jsonb)
		)
	`, advisory.ExternalID, cpes, ranges)
	if err != nil {
		return false, fmt.Errorf("failed to clear matches of advisory %s: %w", advisory.ExternalID, err)
	}

	var inserted bool
	err = tx.QueryRow(ctx, query,
		advisory.ExternalID, advisory.Title, advisory.Description, advisory.CVSSScore,
		advisory.Severity, advisory.Source, advisory.PublishedAt, advisory.ModifiedAt,
		cpes, ranges, time.Now().UTC(),
	).Scan(&advisory.CreatedAt, &advisory.UpdatedAt, &inserted)
	if err != nil {
		return false, fmt.Errorf("failed to upsert advisory %s: %w", advisory.ExternalID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit advisory %s: %w", advisory.ExternalID, err)
	}

	return inserted, nil
}

// GetAdvisory returns one advisory by external id
func (s *Service) GetAdvisory(ctx context.Context, externalID string) (*types.Advisory, error) {
	query := `SELECT ` + advisoryColumns + ` FROM advisories WHERE external_id = $1`

	advisory, err := scanAdvisory(s.pool.QueryRow(ctx, query, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get advisory %s: %w", externalID, err)
	}

	return advisory, nil
}

// DeleteAdvisory removes an advisory; its matches are removed by cascade
func (s *Service) DeleteAdvisory(ctx context.Context, externalID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM advisories WHERE external_id = $1`, externalID)
	if err != nil {
		return fmt.Errorf("failed to delete advisory %s: %w", externalID, err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAdvisories returns every advisory ordered by external id
func (s *Service) ListAdvisories(ctx context.Context) ([]types.Advisory, error) {
	query := `SELECT ` + advisoryColumns + ` FROM advisories ORDER BY external_id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query advisories: %w", err)
	}
	defer rows.Close()

	advisories := make([]types.Advisory, 0)
	for rows.Next() {
		advisory, err := scanAdvisory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan advisory: %w", err)
		}
		advisories = append(advisories, *advisory)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate advisories: %w", err)
	}

	return advisories, nil
}

// ListAdvisoriesPage searches, sorts and pages advisories
func (s *Service) ListAdvisoriesPage(ctx context.Context, filter types.AdvisoryFilter) (*types.AdvisoryPage, error) {
	filter, err := NormalizeAdvisoryFilter(filter, DefaultPageSize, MaxPageSize)
	if err != nil {
		return nil, err
	}

	page := &types.AdvisoryPage{
		Items:    make([]types.Advisory, 0),
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}

	where := ` FROM advisories WHERE ($1 = '' OR external_id ILIKE $1 ESCAPE '\' OR title ILIKE $1 ESCAPE '\')`
	pattern := LikePattern(filter.Search)

	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*)`+where, pattern).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("failed to count advisories: %w", err)
	}

	query := `SELECT ` + advisoryColumns + where + ` ` + AdvisoryOrderBy(filter) + ` LIMIT $2 OFFSET $3`

	rows, err := s.pool.Query(ctx, query, pattern, filter.PageSize, PageOffset(filter.Page, filter.PageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to query advisories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		advisory, err := scanAdvisory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan advisory: %w", err)
		}
		page.Items = append(page.Items, *advisory)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate advisories: %w", err)
	}

	return page, nil
}

// SeverityDistribution counts stored advisories per severity tier
func (s *Service) SeverityDistribution(ctx context.Context) (*types.SeverityCounts, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT severity, COUNT(*) FROM advisories
		WHERE severity IS NOT NULL
		GROUP BY severity
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query severity distribution: %w", err)
	}
	defer rows.Close()

	counts := &types.SeverityCounts{}
	for rows.Next() {
		var severity string
		var n int
		if err := rows.Scan(&severity, &n); err != nil {
			return nil, fmt.Errorf("failed to scan severity distribution: %w", err)
		}
		counts.Add(severity, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate severity distribution: %w", err)
	}

	return counts, nil
}

func scanAdvisory(row pgx.Row) (*types.Advisory, error) {
	var advisory types.Advisory
	var ranges string

	err := row.Scan(
		&advisory.ExternalID, &advisory.Title, &advisory.Description, &advisory.CVSSScore,
		&advisory.Severity, &advisory.Source, &advisory.PublishedAt, &advisory.ModifiedAt,
		&advisory.CPEs, &ranges, &advisory.CreatedAt, &advisory.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if advisory.CPEs == nil {
		advisory.CPEs = []string{}
	}
	advisory.VersionRanges = DecodeRanges(advisory.ExternalID, ranges)

	return &advisory, nil
}
