package sqlite

import (
	"context"
	"fmt"

	"github.com/vchan-in/vuln-correlator/internal/database"
	"github.com/vchan-in/vuln-correlator/internal/types"
)

const upsertMatchQuery = `
	INSERT INTO matches (id, asset_id, external_id, kind, matched_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (asset_id, external_id) DO UPDATE SET
		kind = excluded.kind,
		matched_at = excluded.matched_at
`

// UpsertMatches writes all matches in a single transaction
func (s *Store) UpsertMatches(ctx context.Context, matches []types.Match) error {
	if len(matches) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, upsertMatchQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare match upsert: %w", err)
	}
	defer stmt.Close()

	for _, m := range matches {
		if _, err := stmt.ExecContext(ctx, m.ID, m.AssetID, m.ExternalID, string(m.Kind), utc(m.MatchedAt)); err != nil {
			return fmt.Errorf("failed to upsert match %s/%s: %w", m.AssetID, m.ExternalID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit matches: %w", err)
	}

	return nil
}

// ListMatches returns one page of matches, newest first
func (s *Store) ListMatches(ctx context.Context, filter types.MatchFilter) (*types.MatchPage, error) {
	filter = database.ClampPage(filter, database.DefaultPageSize, database.MaxPageSize)

	where := `
		FROM matches m
		JOIN assets a ON a.id = m.asset_id
		JOIN advisories adv ON adv.external_id = m.external_id
		WHERE (?1 = '' OR adv.severity = ?1) AND (?2 = '' OR a.source = ?2)
	`

	page := &types.MatchPage{
		Items:    make([]types.MatchDetail, 0),
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}

	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) `+where, filter.Severity, string(filter.Source)).Scan(&page.Total)
	if err != nil {
		return nil, fmt.Errorf("failed to count matches: %w", err)
	}

	query := `
		SELECT m.id, m.asset_id, m.external_id, m.kind, m.matched_at,
			a.name, a.vendor, a.product, a.version, a.source,
			adv.title, COALESCE(adv.severity, ''), adv.cvss_score
	` + where + `
		ORDER BY m.matched_at DESC, m.id
		LIMIT ?3 OFFSET ?4
	`

	rows, err := s.db.QueryContext(ctx, query, filter.Severity, string(filter.Source), filter.PageSize, filter.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var detail types.MatchDetail
		var kind, source string

		if err := rows.Scan(
			&detail.ID, &detail.AssetID, &detail.ExternalID, &kind, &detail.MatchedAt,
			&detail.AssetName, &detail.AssetVendor, &detail.AssetProduct, &detail.AssetVersion, &source,
			&detail.AdvisoryTitle, &detail.Severity, &detail.CVSSScore,
		); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}

		detail.Kind = types.MatchKind(kind)
		detail.AssetSource = types.AssetSource(source)
		page.Items = append(page.Items, detail)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate matches: %w", err)
	}

	return page, nil
}

// MatchesForAsset lists the advisories matched to one asset, highest score first
func (s *Store) MatchesForAsset(ctx context.Context, assetID string) ([]types.AssetVulnerability, error) {
	query := `
		SELECT adv.external_id, adv.title, COALESCE(adv.severity, ''), adv.cvss_score,
			adv.published_at, m.kind, m.matched_at
		FROM matches m
		JOIN advisories adv ON adv.external_id = m.external_id
		WHERE m.asset_id = ?
		ORDER BY (adv.cvss_score IS NULL), adv.cvss_score DESC, adv.external_id
	`

	rows, err := s.db.QueryContext(ctx, query, assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query asset matches: %w", err)
	}
	defer rows.Close()

	vulns := make([]types.AssetVulnerability, 0)
	for rows.Next() {
		var v types.AssetVulnerability
		var kind string

		if err := rows.Scan(&v.ExternalID, &v.Title, &v.Severity, &v.CVSSScore, &v.PublishedAt, &kind, &v.MatchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan asset match: %w", err)
		}

		v.Kind = types.MatchKind(kind)
		vulns = append(vulns, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate asset matches: %w", err)
	}

	return vulns, nil
}
