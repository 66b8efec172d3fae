// Package inventory manages the software assets that are correlated against
// advisories.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vchan-in/vuln-correlator/internal/cpe"
	"github.com/vchan-in/vuln-correlator/internal/database"
	"github.com/vchan-in/vuln-correlator/internal/types"
)

// ErrInvalidAsset is returned when a request fails validation
var ErrInvalidAsset = errors.New("invalid asset")

// Field length limits
const (
	maxNameLength    = 200
	maxVendorLength  = 100
	maxProductLength = 100
	maxVersionLength = 50
)

// Store is the persistence surface used by the inventory
type Store interface {
	CreateAsset(ctx context.Context, asset *types.Asset) error
	GetAsset(ctx context.Context, id string) (*types.Asset, error)
	UpdateAsset(ctx context.Context, asset *types.Asset) error
	DeleteAsset(ctx context.Context, id string) error
	ListAssetsPage(ctx context.Context, filter types.AssetFilter) (*types.AssetPage, error)
}

// RegisterRequest describes a manually registered asset
type RegisterRequest struct {
	Name    string `json:"name"`
	Vendor  string `json:"vendor"`
	Product string `json:"product"`
	Version string `json:"version"`
}

// PackageRequest describes a composer, npm or docker package
type PackageRequest struct {
	Source  types.AssetSource `json:"source"`
	Name    string            `json:"name"`
	Version string            `json:"version"`
}

// UpdateRequest carries the mutable asset fields; nil leaves a field unchanged
type UpdateRequest struct {
	Name    *string `json:"name,omitempty"`
	Version *string `json:"version,omitempty"`
}

// Service registers and maintains assets
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates an inventory service
func NewService(store Store) *Service {
	return &Service{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Register validates and stores a manual asset
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*types.Asset, error) {
	req = RegisterRequest{
		Name:    strings.TrimSpace(req.Name),
		Vendor:  strings.TrimSpace(req.Vendor),
		Product: strings.TrimSpace(req.Product),
		Version: strings.TrimSpace(req.Version),
	}

	if err := validateField("name", req.Name, maxNameLength); err != nil {
		return nil, err
	}
	if err := validateField("vendor", req.Vendor, maxVendorLength); err != nil {
		return nil, err
	}
	if err := validateField("product", req.Product, maxProductLength); err != nil {
		return nil, err
	}
	if err := validateField("version", req.Version, maxVersionLength); err != nil {
		return nil, err
	}

	id := cpe.Build(req.Vendor, req.Product, req.Version)
	asset := s.newAsset(req.Name, req.Vendor, req.Product, req.Version, id, types.SourceManual)

	if err := s.store.CreateAsset(ctx, asset); err != nil {
		if errors.Is(err, database.ErrDuplicateAsset) {
			log.Warn().
				Str("vendor", req.Vendor).
				Str("product", req.Product).
				Str("version", req.Version).
				Msg("duplicate asset rejected")
		}
		return nil, err
	}

	log.Info().
		Str("asset_id", asset.ID).
		Str("cpe", asset.CPE).
		Msg("asset registered")

	return asset, nil
}

// RegisterPackage stores an asset for a package of a supported ecosystem.
// Vendor and product are derived from the package name.
func (s *Service) RegisterPackage(ctx context.Context, req PackageRequest) (*types.Asset, error) {
	name := strings.TrimSpace(req.Name)
	ver := strings.TrimSpace(req.Version)

	if err := validateField("name", name, maxNameLength); err != nil {
		return nil, err
	}
	if err := validateField("version", ver, maxVersionLength); err != nil {
		return nil, err
	}

	id, err := cpe.ForSource(string(req.Source), name, ver)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAsset, err)
	}
	if id.Version == "" {
		return nil, fmt.Errorf("%w: package %s has no usable version", ErrInvalidAsset, name)
	}

	asset := s.newAsset(name, id.Vendor, id.Product, id.Version, id, req.Source)
	if err := s.store.CreateAsset(ctx, asset); err != nil {
		return nil, err
	}

	log.Info().
		Str("asset_id", asset.ID).
		Str("source", string(req.Source)).
		Str("cpe", asset.CPE).
		Msg("package asset registered")

	return asset, nil
}

func (s *Service) newAsset(name, vendor, product, version string, id cpe.Identifier, source types.AssetSource) *types.Asset {
	now := s.now()
	return &types.Asset{
		ID:        uuid.New().String(),
		Name:      name,
		Vendor:    vendor,
		Product:   product,
		Version:   version,
		CPE:       id.String(),
		Source:    source,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Update changes the name and/or version of an asset. A version change
// regenerates the identifier keeping its part, vendor and product.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*types.Asset, error) {
	asset, err := s.store.GetAsset(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if err := validateField("name", name, maxNameLength); err != nil {
			return nil, err
		}
		asset.Name = name
	}

	if req.Version != nil {
		ver := strings.TrimSpace(*req.Version)
		if err := validateField("version", ver, maxVersionLength); err != nil {
			return nil, err
		}
		asset.Version = ver

		ident, err := cpe.Parse(asset.CPE)
		if err != nil {
			ident = cpe.Build(asset.Vendor, asset.Product, ver)
		}
		asset.CPE = ident.WithVersion(cpe.NormalizeVersion(ver)).String()
	}

	asset.UpdatedAt = s.now()

	if err := s.store.UpdateAsset(ctx, asset); err != nil {
		return nil, err
	}

	log.Info().
		Str("asset_id", asset.ID).
		Str("cpe", asset.CPE).
		Msg("asset updated")

	return asset, nil
}

// Delete removes an asset together with its matches
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteAsset(ctx, id); err != nil {
		return err
	}
	log.Info().Str("asset_id", id).Msg("asset deleted")
	return nil
}

// Get returns one asset
func (s *Service) Get(ctx context.Context, id string) (*types.Asset, error) {
	return s.store.GetAsset(ctx, id)
}

// List returns one page of assets, newest first, optionally restricted to
// one source
func (s *Service) List(ctx context.Context, filter types.AssetFilter) (*types.AssetPage, error) {
	if filter.Source != "" && !filter.Source.Valid() {
		return nil, fmt.Errorf("%w: unknown source %q", ErrInvalidAsset, filter.Source)
	}

	return s.store.ListAssetsPage(ctx, filter)
}

func validateField(name, value string, maxLen int) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidAsset, name)
	}
	if len(value) > maxLen {
		return fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidAsset, name, maxLen)
	}
	return nil
}
