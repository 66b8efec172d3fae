package matcher

import (
	"github.com/vchan-in/vuln-correlator/internal/cpe"
	"github.com/vchan-in/vuln-correlator/internal/types"
)

// Resolve returns the strongest match between an asset and an advisory.
// Tiers are tried in order: exact identifier, declared version range,
// wildcard family. MatchNone is returned when no tier applies.
func Resolve(asset types.Asset, advisory types.Advisory) types.MatchKind {
	assetID := AssetIdentifier(asset)
	advisoryIDs := parseAll(advisory.CPEs)

	for _, id := range advisoryIDs {
		if MatchExact(assetID, id) {
			return types.MatchExact
		}
	}

	if MatchVersionRange(assetID.Vendor, assetID.Product, assetID.Version, advisory.VersionRanges) {
		return types.MatchVersionRange
	}

	for _, id := range advisoryIDs {
		if MatchWildcard(assetID, id) {
			return types.MatchWildcard
		}
	}

	return types.MatchNone
}

// AssetIdentifier returns the parsed identifier of an asset, rebuilding it
// from the vendor/product/version triple when the stored one is malformed.
func AssetIdentifier(asset types.Asset) cpe.Identifier {
	if id, err := cpe.Parse(asset.CPE); err == nil {
		return id
	}
	return cpe.Build(asset.Vendor, asset.Product, asset.Version)
}

// parseAll skips identifiers that do not parse
func parseAll(raw []string) []cpe.Identifier {
	ids := make([]cpe.Identifier, 0, len(raw))
	for _, s := range raw {
		if id, err := cpe.Parse(s); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
