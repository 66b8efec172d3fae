// Package advisory validates advisory records at the ingestion boundary and
// stores them for correlation.
package advisory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/vchan-in/vuln-correlator/internal/cpe"
	"github.com/vchan-in/vuln-correlator/internal/types"
)

// ErrInvalidAdvisory is returned when an advisory fails validation
var ErrInvalidAdvisory = errors.New("invalid advisory")

// Store is the persistence surface used by the ingester
type Store interface {
	UpsertAdvisory(ctx context.Context, advisory *types.Advisory) (bool, error)
	GetAdvisory(ctx context.Context, externalID string) (*types.Advisory, error)
	DeleteAdvisory(ctx context.Context, externalID string) error
	ListAdvisoriesPage(ctx context.Context, filter types.AdvisoryFilter) (*types.AdvisoryPage, error)
}

// Observer receives ingestion outcomes
type Observer interface {
	AdvisoryIngested(outcome string)
}

// Ingestion outcomes reported to the observer
const (
	OutcomeInserted = "inserted"
	OutcomeUpdated  = "updated"
	OutcomeFailed   = "failed"
)

// Score thresholds of the severity tiers
const (
	criticalThreshold = 9.0
	highThreshold     = 7.0
	mediumThreshold   = 4.0
	lowThreshold      = 0.1
)

// SeverityFromScore maps a CVSS base score to its tier. Scores below 0.1
// have no tier.
func SeverityFromScore(score float64) string {
	switch {
	case score >= criticalThreshold:
		return types.SeverityCritical
	case score >= highThreshold:
		return types.SeverityHigh
	case score >= mediumThreshold:
		return types.SeverityMedium
	case score >= lowThreshold:
		return types.SeverityLow
	default:
		return ""
	}
}

// CanonicalSeverity returns the canonical spelling of a tier name, matched
// case-insensitively
func CanonicalSeverity(s string) (string, bool) {
	for _, tier := range []string{types.SeverityCritical, types.SeverityHigh, types.SeverityMedium, types.SeverityLow} {
		if strings.EqualFold(s, tier) {
			return tier, true
		}
	}
	return "", false
}

// Validate checks an advisory and normalizes it in place: the id and severity
// are canonicalized, a missing severity is derived from the score and
// malformed identifiers are dropped.
func Validate(advisory *types.Advisory) error {
	advisory.ExternalID = strings.TrimSpace(advisory.ExternalID)
	if advisory.ExternalID == "" {
		return fmt.Errorf("%w: external id is required", ErrInvalidAdvisory)
	}

	if score := advisory.CVSSScore; score != nil && (*score < 0 || *score > 10) {
		return fmt.Errorf("%w: %s: cvss score %.1f outside 0-10", ErrInvalidAdvisory, advisory.ExternalID, *score)
	}

	if sev := strings.TrimSpace(advisory.Severity); sev != "" {
		canonical, ok := CanonicalSeverity(sev)
		if !ok {
			return fmt.Errorf("%w: %s: unknown severity %q", ErrInvalidAdvisory, advisory.ExternalID, sev)
		}
		advisory.Severity = canonical
	} else if advisory.CVSSScore != nil {
		advisory.Severity = SeverityFromScore(*advisory.CVSSScore)
	}

	for key := range advisory.VersionRanges {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("%w: %s: empty version range key", ErrInvalidAdvisory, advisory.ExternalID)
		}
	}

	cpes := make([]string, 0, len(advisory.CPEs))
	for _, raw := range advisory.CPEs {
		if _, err := cpe.Parse(raw); err != nil {
			log.Warn().
				Str("external_id", advisory.ExternalID).
				Str("cpe", raw).
				Msg("dropping malformed identifier")
			continue
		}
		cpes = append(cpes, raw)
	}
	advisory.CPEs = cpes

	return nil
}

// Ingester validates and stores advisories
type Ingester struct {
	store    Store
	observer Observer
}

// NewIngester creates an ingester. observer may be nil.
func NewIngester(store Store, observer Observer) *Ingester {
	return &Ingester{store: store, observer: observer}
}

// Ingest upserts a batch of advisories. A failing record is counted and
// reported without aborting the rest of the batch.
func (i *Ingester) Ingest(ctx context.Context, advisories []types.Advisory) types.IngestResult {
	result := types.IngestResult{}

	for idx := range advisories {
		advisory := advisories[idx]

		if err := ctx.Err(); err != nil {
			result.Failed += len(advisories) - idx
			result.Errors = append(result.Errors, err.Error())
			break
		}

		inserted, err := i.ingestOne(ctx, &advisory)
		switch {
		case err != nil:
			result.Failed++
			result.Errors = append(result.Errors, err.Error())
			i.observe(OutcomeFailed)
			log.Warn().Err(err).Str("external_id", advisory.ExternalID).Msg("advisory rejected")
		case inserted:
			result.Inserted++
			i.observe(OutcomeInserted)
		default:
			result.Updated++
			i.observe(OutcomeUpdated)
		}
	}

	log.Info().
		Int("inserted", result.Inserted).
		Int("updated", result.Updated).
		Int("failed", result.Failed).
		Msg("advisory ingestion completed")

	return result
}

func (i *Ingester) ingestOne(ctx context.Context, advisory *types.Advisory) (bool, error) {
	if err := Validate(advisory); err != nil {
		return false, err
	}

	inserted, err := i.store.UpsertAdvisory(ctx, advisory)
	if err != nil {
		return false, fmt.Errorf("failed to store advisory %s: %w", advisory.ExternalID, err)
	}
	return inserted, nil
}

// Get returns one stored advisory
func (i *Ingester) Get(ctx context.Context, externalID string) (*types.Advisory, error) {
	return i.store.GetAdvisory(ctx, externalID)
}

// List searches, sorts and pages stored advisories
func (i *Ingester) List(ctx context.Context, filter types.AdvisoryFilter) (*types.AdvisoryPage, error) {
	return i.store.ListAdvisoriesPage(ctx, filter)
}

// Delete removes an advisory together with its matches
func (i *Ingester) Delete(ctx context.Context, externalID string) error {
	if err := i.store.DeleteAdvisory(ctx, externalID); err != nil {
		return err
	}
	log.Info().Str("external_id", externalID).Msg("advisory deleted")
	return nil
}

func (i *Ingester) observe(outcome string) {
	if i.observer != nil {
		i.observer.AdvisoryIngested(outcome)
	}
}
