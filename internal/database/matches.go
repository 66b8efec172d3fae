package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vchan-in/vuln-correlator/internal/types"
)

// matchBatchSize bounds the number of statements queued per round trip
const matchBatchSize = 500

const upsertMatchQuery = `
	INSERT INTO matches (id, asset_id, external_id, kind, matched_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (asset_id, external_id) DO UPDATE SET
		kind = EXCLUDED.kind,
		matched_at = EXCLUDED.matched_at
`

// UpsertMatches writes all matches in a single transaction
func (s *Service) UpsertMatches(ctx context.Context, matches []types.Match) error {
	if len(matches) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for i := 0; i < len(matches); i += matchBatchSize {
		end := i + matchBatchSize
		if end > len(matches) {
			end = len(matches)
		}

		if err := sendMatchBatch(ctx, tx, matches[i:end]); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit matches: %w", err)
	}

	return nil
}

func sendMatchBatch(ctx context.Context, tx pgx.Tx, matches []types.Match) error {
	batch := &pgx.Batch{}
	for _, m := range matches {
		batch.Queue(upsertMatchQuery, m.ID, m.AssetID, m.ExternalID, string(m.Kind), m.MatchedAt)
	}

	results := tx.SendBatch(ctx, batch)
	for _, m := range matches {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("failed to upsert match %s/%s: %w", m.AssetID, m.ExternalID, err)
		}
	}

	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to close match batch: %w", err)
	}
	return nil
}

// ListMatches returns one page of matches, newest first
func (s *Service) ListMatches(ctx context.Context, filter types.MatchFilter) (*types.MatchPage, error) {
	filter = ClampPage(filter, DefaultPageSize, MaxPageSize)

	where := `
		FROM matches m
		JOIN assets a ON a.id = m.asset_id
		JOIN advisories adv ON adv.external_id = m.external_id
		WHERE ($1 = '' OR adv.severity = $1) AND ($2 = '' OR a.source = $2)
	`

	page := &types.MatchPage{
		Items:    make([]types.MatchDetail, 0),
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}

	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) `+where, filter.Severity, string(filter.Source)).Scan(&page.Total)
	if err != nil {
		return nil, fmt.Errorf("failed to count matches: %w", err)
	}

	query := `
		SELECT m.id, m.asset_id, m.external_id, m.kind, m.matched_at,
			a.name, a.vendor, a.product, a.version, a.source,
			adv.title, COALESCE(adv.severity, ''), adv.cvss_score
	` + where + `
		ORDER BY m.matched_at DESC, m.id
		LIMIT $3 OFFSET $4
	`

	rows, err := s.pool.Query(ctx, query, filter.Severity, string(filter.Source), filter.PageSize, filter.Offset())
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
func (s *Service) MatchesForAsset(ctx context.Context, assetID string) ([]types.AssetVulnerability, error) {
	query := `
		SELECT adv.external_id, adv.title, COALESCE(adv.severity, ''), adv.cvss_score,
			adv.published_at, m.kind, m.matched_at
		FROM matches m
		JOIN advisories adv ON adv.external_id = m.external_id
		WHERE m.asset_id = $1
		ORDER BY (adv.cvss_score IS NULL), adv.cvss_score DESC, adv.external_id
	`

	rows, err := s.pool.Query(ctx, query, assetID)
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
