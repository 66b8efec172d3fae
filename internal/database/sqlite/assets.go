package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vchan-in/vuln-correlator/internal/database"
	"github.com/vchan-in/vuln-correlator/internal/types"
)

const assetColumns = `id, name, vendor, product, version, cpe, source, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

// CreateAsset inserts a new asset
func (s *Store) CreateAsset(ctx context.Context, asset *types.Asset) error {
	query := `INSERT INTO assets (` + assetColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		asset.ID, asset.Name, asset.Vendor, asset.Product, asset.Version,
		asset.CPE, string(asset.Source), utc(asset.CreatedAt), utc(asset.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return database.ErrDuplicateAsset
		}
		return fmt.Errorf("failed to insert asset: %w", err)
	}

	return nil
}

// GetAsset returns one asset by id
func (s *Store) GetAsset(ctx context.Context, id string) (*types.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE id = ?`

	asset, err := scanAsset(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get asset %s: %w", id, err)
	}

	return asset, nil
}

// UpdateAsset writes the mutable asset fields. A changed identifier
// invalidates the asset's matches, which are removed in the same transaction.
func (s *Store) UpdateAsset(ctx context.Context, asset *types.Asset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var previousCPE string
	if err := tx.QueryRowContext(ctx, `SELECT cpe FROM assets WHERE id = ?`, asset.ID).Scan(&previousCPE); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.ErrNotFound
		}
		return fmt.Errorf("failed to read asset %s: %w", asset.ID, err)
	}

	query := `UPDATE assets SET name = ?, version = ?, cpe = ?, updated_at = ? WHERE id = ?`

	if _, err := tx.ExecContext(ctx, query, asset.Name, asset.Version, asset.CPE, utc(asset.UpdatedAt), asset.ID); err != nil {
		if isUniqueViolation(err) {
			return database.ErrDuplicateAsset
		}
		return fmt.Errorf("failed to update asset %s: %w", asset.ID, err)
	}

	if previousCPE != asset.CPE {
		if _, err := tx.ExecContext(ctx, `DELETE FROM matches WHERE asset_id = ?`, asset.ID); err != nil {
			return fmt.Errorf("failed to clear matches of asset %s: %w", asset.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit asset %s: %w", asset.ID, err)
	}
	return nil
}

// DeleteAsset removes an asset; its matches are removed by cascade
func (s *Store) DeleteAsset(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM assets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete asset %s: %w", id, err)
	}

	return requireAffected(res)
}

// ListAssets returns every asset ordered by creation time
func (s *Store) ListAssets(ctx context.Context) ([]types.Asset, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+assetColumns+` FROM assets ORDER BY created_at, id`)
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
func (s *Store) ListAssetsPage(ctx context.Context, filter types.AssetFilter) (*types.AssetPage, error) {
	filter.Page, filter.PageSize = database.ClampPaging(filter.Page, filter.PageSize, database.DefaultPageSize, database.MaxPageSize)

	page := &types.AssetPage{
		Items:    make([]types.Asset, 0),
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}

	where := ` FROM assets WHERE (?1 = '' OR source = ?1)`

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*)`+where, string(filter.Source)).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("failed to count assets: %w", err)
	}

	query := `SELECT ` + assetColumns + where + ` ORDER BY created_at DESC, id LIMIT ?2 OFFSET ?3`

	rows, err := s.db.QueryContext(ctx, query,
		string(filter.Source), filter.PageSize, database.PageOffset(filter.Page, filter.PageSize))
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

func scanAsset(row scanner) (*types.Asset, error) {
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

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return database.ErrNotFound
	}
	return nil
}
