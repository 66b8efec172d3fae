package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/vchan-in/vuln-correlator/internal/types"
)

const assetColumns = `id, name, vendor, product, version, cpe, source, created_at, updated_at`

// CreateAsset inserts a new asset
func (s *Service) CreateAsset(ctx context.Context, asset *types.Asset) error {
	query := `
		INSERT INTO assets (` + assetColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.pool.Exec(ctx, query,
		asset.ID, asset.Name, asset.Vendor, asset.Product, asset.Version,
		asset.CPE, string(asset.Source), asset.CreatedAt, asset.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateAsset
		}
		return fmt.Errorf("failed to insert asset: %w", err)
	}

	return nil
}

// GetAsset returns one asset by id
func (s *Service) GetAsset(ctx context.Context, id string) (*types.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE id = $1`

	asset, err := scanAsset(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get asset %s: %w", id, err)
	}

	return asset, nil
}

// UpdateAsset writes the mutable asset fields. A changed identifier
// invalidates the asset's matches, which are removed in the same transaction.
func (s *Service) UpdateAsset(ctx context.Context, asset *types.Asset) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var previousCPE string
	err = tx.QueryRow(ctx, `SELECT cpe FROM assets WHERE id = $1 FOR UPDATE`, asset.ID).Scan(&previousCPE)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to lock asset %s: %w", asset.ID, err)
	}

	query := `
		UPDATE assets
		SET name = $2, version = $3, cpe = $4, updated_at = $5
		WHERE id = $1
	`

	if _, err := tx.Exec(ctx, query, asset.ID, asset.Name, asset.Version, asset.CPE, asset.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateAsset
		}
		return fmt.Errorf("failed to update asset %s: %w", asset.ID, err)
	}

	if previousCPE != asset.CPE {
		tag, err := tx.Exec(ctx, `DELETE FROM matches WHERE asset_id = $1`, asset.ID)
		if err != nil {
			return fmt.Errorf("failed to clear matches of asset %s: %w", asset.ID, err)
		}

		log.Debug().
			Str("asset_id", asset.ID).
			Int64("cleared", tag.RowsAffected()).
			Msg("asset identifier changed, matches cleared")
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit asset %s: %w", asset.ID, err)
	}
	return nil
}

// DeleteAsset removes an asset; its matches are removed by cascade
func (s *Service) DeleteAsset(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM assets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete asset %s: %w", id, err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAssets returns every asset ordered by creation time
func (s *Service) ListAssets(ctx context.Context) ([]types.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	assets := make([]types.Asset, 0)
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, *asset)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate assets: %w", err)
	}

	return assets, nil
}

// ListAssetsPage returns one page of assets, newest first
func (s *Service) ListAssetsPage(ctx context.Context, filter types.AssetFilter) (*types.AssetPage, error) {
	filter.Page, filter.PageSize = ClampPaging(filter.Page, filter.PageSize, DefaultPageSize, MaxPageSize)

	page := &types.AssetPage{
		Items:    make([]types.Asset, 0),
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}

	where := ` FROM assets WHERE ($1 = '' OR source = $1)`

	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*)`+where, string(filter.Source)).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("failed to count assets: %w", err)
	}

	query := `SELECT ` + assetColumns + where + ` ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`

	rows, err := s.pool.Query(ctx, query, string(filter.Source), filter.PageSize, PageOffset(filter.Page, filter.PageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		page.Items = append(page.Items, *asset)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate assets: %w", err)
	}

	return page, nil
}

func scanAsset(row pgx.Row) (*types.Asset, error) {
	var asset types.Asset
	var source string

	err := row.Scan(
		&asset.ID, &asset.Name, &asset.Vendor, &asset.Product, &asset.Version,
		&asset.CPE, &source, &asset.CreatedAt, &asset.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	asset.Source = types.AssetSource(source)
	return &asset, nil
}
