package database

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/vchan-in/vuln-correlator/internal/config"
	"github.com/vchan-in/vuln-correlator/internal/types"
)

var (
	// ErrNotFound is returned when a requested row does not exist
	ErrNotFound = errors.New("not found")
	// ErrDuplicateAsset is returned when an asset with the same vendor,
	// product and version is already registered
	ErrDuplicateAsset = errors.New("asset with the same vendor, product and version already exists")
	// ErrInvalidFilter is returned for an unknown sort field or order
	ErrInvalidFilter = errors.New("invalid filter")
)

// Repository is the storage contract shared by the PostgreSQL and SQLite backends
type Repository interface {
	Migrate(ctx context.Context) error
	Health(ctx context.Context) error
	Close()

	CreateAsset(ctx context.Context, asset *types.Asset) error
	GetAsset(ctx context.Context, id string) (*types.Asset, error)
	// UpdateAsset writes name, version and identifier. When the identifier
	// changes the asset's matches are removed in the same transaction.
	UpdateAsset(ctx context.Context, asset *types.Asset) error
	DeleteAsset(ctx context.Context, id string) error
	ListAssets(ctx context.Context) ([]types.Asset, error)
	ListAssetsPage(ctx context.Context, filter types.AssetFilter) (*types.AssetPage, error)

	// UpsertAdvisory inserts or updates by external id and reports whether a
	// new row was created. The stored creation time is never overwritten.
	// Matches of an advisory whose identifiers or ranges change are removed.
	UpsertAdvisory(ctx context.Context, advisory *types.Advisory) (bool, error)
	GetAdvisory(ctx context.Context, externalID string) (*types.Advisory, error)
	DeleteAdvisory(ctx context.Context, externalID string) error
	ListAdvisories(ctx context.Context) ([]types.Advisory, error)
	ListAdvisoriesPage(ctx context.Context, filter types.AdvisoryFilter) (*types.AdvisoryPage, error)
	SeverityDistribution(ctx context.Context) (*types.SeverityCounts, error)

	UpsertMatches(ctx context.Context, matches []types.Match) error
	ListMatches(ctx context.Context, filter types.MatchFilter) (*types.MatchPage, error)
	MatchesForAsset(ctx context.Context, assetID string) ([]types.AssetVulnerability, error)

	RecordRun(ctx context.Context, stats *types.RunStats) error
	ListRuns(ctx context.Context, limit int) ([]types.RunStats, error)
	DashboardStats(ctx context.Context) (*types.DashboardStats, error)
	AssetRanking(ctx context.Context, limit int) ([]types.AssetRank, error)
}

// Service is the PostgreSQL repository backed by a pgx connection pool
type Service struct {
	pool *pgxpool.Pool
}

var _ Repository = (*Service)(nil)

// New creates a new database service
func New(cfg config.DatabaseConfig) (*Service, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database DSN: %w", err)
	}

	if cfg.MaxConns < 0 || cfg.MaxConns > math.MaxInt32 {
		return nil, fmt.Errorf("MaxConns value %d is out of valid range (0-%d)", cfg.MaxConns, math.MaxInt32)
	}
	if cfg.MinConns < 0 || cfg.MinConns > cfg.MaxConns {
		return nil, fmt.Errorf("MinConns value %d is out of valid range (0-%d)", cfg.MinConns, cfg.MaxConns)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns) // #nosec G115 -- bounds checked above
	poolConfig.MinConns = int32(cfg.MinConns) // #nosec G115 -- bounds checked above
	poolConfig.MaxConnLifetime = time.Duration(cfg.MaxLifetime) * time.Minute
	poolConfig.MaxConnIdleTime = time.Duration(cfg.MaxIdleTime) * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("driver", config.DriverPostgres).
		Int32("max_conns", poolConfig.MaxConns).
		Int32("min_conns", poolConfig.MinConns).
		Msg("database connection pool initialized")

	return &Service{pool: pool}, nil
}

// Close closes the database connection pool
func (s *Service) Close() {
	if s.pool != nil {
		s.pool.Close()
		log.Info().Msg("database connection pool closed")
	}
}

// Health checks the database health
func (s *Service) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return s.pool.Ping(ctx)
}

// isUniqueViolation reports whether err is a PostgreSQL unique_violation
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
