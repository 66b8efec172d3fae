package correlation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/vchan-in/vuln-correlator/internal/matcher"
	"github.com/vchan-in/vuln-correlator/internal/types"
)

// Gateway is the persistence surface the engine reads from and writes to
type Gateway interface {
	ListAssets(ctx context.Context) ([]types.Asset, error)
	ListAdvisories(ctx context.Context) ([]types.Advisory, error)
	// UpsertMatches stores all matches in one transaction, keyed by
	// (asset id, external id). Existing rows keep their id.
	UpsertMatches(ctx context.Context, matches []types.Match) error
}

// ResolveFunc decides the match kind for a single pair
type ResolveFunc func(asset types.Asset, advisory types.Advisory) types.MatchKind

// Observer receives run events, typically to export metrics
type Observer interface {
	PairSkipped(assetID, externalID string)
	RunCompleted(stats *types.RunStats)
	RunFailed(err error)
}

// Engine correlates every asset against every advisory
type Engine struct {
	gateway  Gateway
	resolve  ResolveFunc
	now      func() time.Time
	workers  int
	observer Observer
}

// Option configures an Engine
type Option func(*Engine)

// WithWorkers shards pair evaluation across n goroutines
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithClock overrides the time source used to stamp matches
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithResolver overrides the single-pair resolver
func WithResolver(fn ResolveFunc) Option {
	return func(e *Engine) { e.resolve = fn }
}

// WithObserver registers a run observer
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// New creates a correlation engine
func New(gateway Gateway, opts ...Option) *Engine {
	e := &Engine{
		gateway: gateway,
		resolve: matcher.Resolve,
		now:     time.Now,
		workers: 1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// pairResult is the outcome of evaluating one asset against all advisories
type pairResult struct {
	matches []types.Match
	skipped int
}

// Run performs a full recompute: it loads all assets and advisories,
// evaluates the cross product and upserts every match in one transaction.
func (e *Engine) Run(ctx context.Context) (*types.RunStats, error) {
	stats, err := e.run(ctx)
	if err != nil {
		if e.observer != nil {
			e.observer.RunFailed(err)
		}
		return nil, err
	}

	if e.observer != nil {
		e.observer.RunCompleted(stats)
	}
	return stats, nil
}

func (e *Engine) run(ctx context.Context) (*types.RunStats, error) {
	startTime := e.now()

	assets, err := e.gateway.ListAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load assets: %w", err)
	}

	advisories, err := e.gateway.ListAdvisories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load advisories: %w", err)
	}

	log.Info().
		Int("assets", len(assets)).
		Int("advisories", len(advisories)).
		Int("workers", e.workers).
		Msg("starting correlation run")

	matchedAt := e.now()
	results := make([]pairResult, len(assets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i := range assets {
		if err := gctx.Err(); err != nil {
			break
		}

		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.evaluateAsset(assets[i], advisories, matchedAt)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("correlation cancelled: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("correlation cancelled: %w", err)
	}

	stats := &types.RunStats{
		TotalAssets:     len(assets),
		TotalAdvisories: len(advisories),
		StartedAt:       startTime,
	}

	matches := make([]types.Match, 0)
	for _, result := range results {
		stats.SkippedPairs += result.skipped
		for _, m := range result.matches {
			stats.Count(m.Kind)
		}
		matches = append(matches, result.matches...)
	}

	if err := e.gateway.UpsertMatches(ctx, matches); err != nil {
		return nil, fmt.Errorf("failed to persist matches: %w", err)
	}

	stats.FinishedAt = e.now()
	stats.DurationMs = stats.FinishedAt.Sub(startTime).Milliseconds()

	log.Info().
		Int("total_matches", stats.TotalMatches).
		Int("exact_matches", stats.ExactMatches).
		Int("version_range_matches", stats.VersionRangeMatches).
		Int("wildcard_matches", stats.WildcardMatches).
		Int("skipped_pairs", stats.SkippedPairs).
		Int64("duration_ms", stats.DurationMs).
		Msg("correlation run completed")

	return stats, nil
}

// evaluateAsset resolves one asset against every advisory in input order
func (e *Engine) evaluateAsset(asset types.Asset, advisories []types.Advisory, matchedAt time.Time) pairResult {
	var result pairResult

	for _, advisory := range advisories {
		kind, ok := e.resolvePair(asset, advisory)
		if !ok {
			result.skipped++
			if e.observer != nil {
				e.observer.PairSkipped(asset.ID, advisory.ExternalID)
			}
			continue
		}
		if kind == types.MatchNone {
			continue
		}

		result.matches = append(result.matches, types.Match{
			ID:         uuid.New().String(),
			AssetID:    asset.ID,
			ExternalID: advisory.ExternalID,
			Kind:       kind,
			MatchedAt:  matchedAt,
		})
	}

	return result
}

// resolvePair isolates a panicking pair so the rest of the run survives
func (e *Engine) resolvePair(asset types.Asset, advisory types.Advisory) (kind types.MatchKind, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().
				Str("asset_id", asset.ID).
				Str("external_id", advisory.ExternalID).
				Interface("panic", r).
				Msg("skipping pair after evaluation failure")
			kind, ok = types.MatchNone, false
		}
	}()

	return e.resolve(asset, advisory), true
}
