package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vchan-in/vuln-correlator/internal/database"
	"github.com/vchan-in/vuln-correlator/internal/types"
)

const advisoryColumns = `external_id, title, description, cvss_score, COALESCE(severity, ''), source,
	published_at, modified_at, cpes, version_ranges, created_at, updated_at`

// UpsertAdvisory inserts or updates an advisory keyed by its external id
func (s *Store) UpsertAdvisory(ctx context.Context, advisory *types.Advisory) (bool, error) {
	ranges, err := database.EncodeRanges(advisory.VersionRanges)
	if err != nil {
		return false, err
	}

	cpes, err := database.EncodeStrings(advisory.CPEs)
	if err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var existing int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM advisories WHERE external_id = ?`, advisory.ExternalID).Scan(&existing); err != nil {
		return false, fmt.Errorf("failed to look up advisory %s: %w", advisory.ExternalID, err)
	}

	// Matches computed from the previous identifiers or ranges no longer hold
	_, err = tx.ExecContext(ctx, `
		DELETE FROM matches
		WHERE external_id = ?1 AND EXISTS (
			SELECT 1 FROM advisories
			WHERE external_id = ?1 AND (cpes <> ?2 OR version_ranges <> ?3)
		)
	`, advisory.ExternalID, cpes, ranges)
	if err != nil {
		return false, fmt.Errorf("failed to clear matches of advisory %s: %w", advisory.ExternalID, err)
	}

	query := `
		INSERT INTO advisories (
			external_id, title, description, cvss_score, severity, source,
			published_at, modified_at, cpes, version_ranges, created_at, updated_at
		) VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10, ?11, ?11)
		ON CONFLICT (external_id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			cvss_score = excluded.cvss_score,
			severity = excluded.severity,
			source = excluded.source,
			published_at = excluded.published_at,
			modified_at = excluded.modified_at,
			cpes = excluded.cpes,
			version_ranges = excluded.version_ranges,
			updated_at = excluded.updated_at
	`

	_, err = tx.ExecContext(ctx, query,
		advisory.ExternalID, advisory.Title, advisory.Description, advisory.CVSSScore,
		nullIfEmpty(advisory.Severity), advisory.Source,
		utcPtr(advisory.PublishedAt), utcPtr(advisory.ModifiedAt),
		cpes, ranges, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert advisory %s: %w", advisory.ExternalID, err)
	}

	err = tx.QueryRowContext(ctx,
		`SELECT created_at, updated_at FROM advisories WHERE external_id = ?`, advisory.ExternalID,
	).Scan(&advisory.CreatedAt, &advisory.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to read advisory timestamps: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit advisory %s: %w", advisory.ExternalID, err)
	}

	return existing == 0, nil
}

// GetAdvisory returns one advisory by external id
func (s *Store) GetAdvisory(ctx context.Context, externalID string) (*types.Advisory, error) {
	query := `SELECT ` + advisoryColumns + ` FROM advisories WHERE external_id = ?`

	advisory, err := scanAdvisory(s.db.QueryRowContext(ctx, query, externalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get advisory %s: %w", externalID, err)
	}

	return advisory, nil
}

// DeleteAdvisory removes an advisory; its matches are removed by cascade
func (s *Store) DeleteAdvisory(ctx context.Context, externalID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM advisories WHERE external_id = ?`, externalID)
	if err != nil {
		return fmt.Errorf("failed to delete advisory %s: %w", externalID, err)
	}

	return requireAffected(res)
}

// ListAdvisories returns every advisory ordered by external id
func (s *Store) ListAdvisories(ctx context.Context) ([]types.Advisory, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+advisoryColumns+` FROM advisories ORDER BY external_id`)
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
func (s *Store) ListAdvisoriesPage(ctx context.Context, filter types.AdvisoryFilter) (*types.AdvisoryPage, error) {
	filter, err := database.NormalizeAdvisoryFilter(filter, database.DefaultPageSize, database.MaxPageSize)
	if err != nil {
		return nil, err
	}

	page := &types.AdvisoryPage{
		Items:    make([]types.Advisory, 0),
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}

	where := ` FROM advisories WHERE (?1 = '' OR external_id LIKE ?1 ESCAPE '\' OR title LIKE ?1 ESCAPE '\')`
	pattern := database.LikePattern(filter.Search)

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*)`+where, pattern).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("failed to count advisories: %w", err)
	}

	query := `SELECT ` + advisoryColumns + where + ` ` + database.AdvisoryOrderBy(filter) + ` LIMIT ?2 OFFSET ?3`

	rows, err := s.db.QueryContext(ctx, query, pattern, filter.PageSize, database.PageOffset(filter.Page, filter.PageSize))
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
func (s *Store) SeverityDistribution(ctx context.Context) (*types.SeverityCounts, error) {
	rows, err := s.db.QueryContext(ctx, `
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

func scanAdvisory(row scanner) (*types.Advisory, error) {
	var advisory types.Advisory
	var score sql.NullFloat64
	var published, modified sql.NullTime
	var cpes, ranges string

	err := row.Scan(
		&advisory.ExternalID, &advisory.Title, &advisory.Description, &score,
		&advisory.Severity, &advisory.Source, &published, &modified,
		&cpes, &ranges, &advisory.CreatedAt, &advisory.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	advisory.CVSSScore = nullFloatPtr(score)
	advisory.PublishedAt = nullTimePtr(published)
	advisory.ModifiedAt = nullTimePtr(modified)
	advisory.CPEs = database.DecodeStrings(advisory.ExternalID, cpes)
	advisory.VersionRanges = database.DecodeRanges(advisory.ExternalID, ranges)

	return &advisory, nil
}
