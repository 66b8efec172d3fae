package matcher

import (
	"github.com/vchan-in/vuln-correlator/internal/cpe"
	"github.com/vchan-in/vuln-correlator/internal/types"
	"github.com/vchan-in/vuln-correlator/internal/version"
)

// MatchExact reports whether two identifiers agree on every attribute up to
// and including edition. Language and the extended attributes are ignored.
func MatchExact(asset, advisory cpe.Identifier) bool {
	return asset.Part == advisory.Part &&
		asset.Vendor == advisory.Vendor &&
		asset.Product == advisory.Product &&
		asset.Version == advisory.Version &&
		asset.Update == advisory.Update &&
		asset.Edition == advisory.Edition
}

// MatchWildcard reports whether the advisory identifier names the asset's
// product family without pinning version, update or edition. The asset side
// may carry any version.
func MatchWildcard(asset, advisory cpe.Identifier) bool {
	if asset.Part != advisory.Part || asset.Vendor != advisory.Vendor || asset.Product != advisory.Product {
		return false
	}
	return advisory.Version == cpe.Any && advisory.Update == cpe.Any && advisory.Edition == cpe.Any
}

// MatchExactString is MatchExact over formatted strings. A malformed side never matches.
func MatchExactString(asset, advisory string) bool {
	a, b, ok := parsePair(asset, advisory)
	return ok && MatchExact(a, b)
}

// MatchWildcardString is MatchWildcard over formatted strings. A malformed side never matches.
func MatchWildcardString(asset, advisory string) bool {
	a, b, ok := parsePair(asset, advisory)
	return ok && MatchWildcard(a, b)
}

func parsePair(asset, advisory string) (cpe.Identifier, cpe.Identifier, bool) {
	a, err := cpe.Parse(asset)
	if err != nil {
		return cpe.Identifier{}, cpe.Identifier{}, false
	}
	b, err := cpe.Parse(advisory)
	if err != nil {
		return cpe.Identifier{}, cpe.Identifier{}, false
	}
	return a, b, true
}

// MatchVersionRange reports whether version falls inside the range declared
// for the product. The range is looked up by product, then by "vendor:product".
//
// Every present bound must hold. An entry without any bound matches every
// version, and a bound that does not parse fails the whole check.
func MatchVersionRange(vendor, product, ver string, ranges map[string]types.VersionRange) bool {
	if len(ranges) == 0 {
		return false
	}

	r, ok := ranges[product]
	if !ok {
		r, ok = ranges[vendor+":"+product]
	}
	if !ok {
		return false
	}

	return inRange(ver, r)
}

func inRange(ver string, r types.VersionRange) bool {
	checks := []struct {
		bound *string
		op    version.Operator
	}{
		{r.StartIncluding, version.GreaterOrEqual},
		{r.StartExcluding, version.Greater},
		{r.EndIncluding, version.LessOrEqual},
		{r.EndExcluding, version.Less},
	}

	for _, c := range checks {
		if c.bound == nil {
			continue
		}
		if !version.Satisfies(ver, c.op, *c.bound) {
			return false
		}
	}

	return true
}
