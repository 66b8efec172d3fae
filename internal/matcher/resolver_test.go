package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vchan-in/vuln-correlator/internal/types"
)

func nginxAsset() types.Asset {
	return types.Asset{
		ID:      "asset-1",
		Name:    "nginx",
		Vendor:  "nginx",
		Product: "nginx",
		Version: "1.25.3",
		CPE:     nginx1253,
		Source:  types.SourceManual,
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		advisory types.Advisory
		expected types.MatchKind
	}{
		{
			name:     "exact identifier",
			advisory: types.Advisory{ExternalID: "CVE-2024-0001", CPEs: []string{nginx1253}},
			expected: types.MatchExact,
		},
		{
			name:     "wildcard identifier",
			advisory: types.Advisory{ExternalID: "CVE-2024-0002", CPEs: []string{"cpe:2.3:a:nginx:nginx:*:*:*:*:*:*:*:*"}},
			expected: types.MatchWildcard,
		},
		{
			name: "version range only",
			advisory: types.Advisory{
				ExternalID: "CVE-2024-0003",
				VersionRanges: map[string]types.VersionRange{
					"nginx": {StartIncluding: strPtr("1.25.0"), EndExcluding: strPtr("1.25.4")},
				},
			},
			expected: types.MatchVersionRange,
		},
		{
			name:     "unrelated product",
			advisory: types.Advisory{ExternalID: "CVE-2024-0004", CPEs: []string{"cpe:2.3:a:apache:httpd:2.4.0:*:*:*:*:*:*:*"}},
			expected: types.MatchNone,
		},
		{
			name: "exact wins over wildcard listed first",
			advisory: types.Advisory{
				ExternalID: "CVE-2024-0005",
				CPEs: []string{
					"cpe:2.3:a:nginx:nginx:*:*:*:*:*:*:*:*",
					nginx1253,
				},
			},
			expected: types.MatchExact,
		},
		{
			name: "range wins over wildcard",
			advisory: types.Advisory{
				ExternalID: "CVE-2024-0006",
				CPEs:       []string{"cpe:2.3:a:nginx:nginx:*:*:*:*:*:*:*:*"},
				VersionRanges: map[string]types.VersionRange{
					"nginx:nginx": {EndExcluding: strPtr("2.0.0")},
				},
			},
			expected: types.MatchVersionRange,
		},
		{
			name: "range miss falls through to wildcard",
			advisory: types.Advisory{
				ExternalID: "CVE-2024-0007",
				CPEs:       []string{"cpe:2.3:a:nginx:nginx:*:*:*:*:*:*:*:*"},
				VersionRanges: map[string]types.VersionRange{
					"nginx": {EndExcluding: strPtr("1.0.0")},
				},
			},
			expected: types.MatchWildcard,
		},
		{
			name: "malformed identifiers are skipped",
			advisory: types.Advisory{
				ExternalID: "CVE-2024-0008",
				CPEs:       []string{"cpe:2.3:a:nginx", "garbage", nginx1253},
			},
			expected: types.MatchExact,
		},
		{
			name:     "no identifiers and no ranges",
			advisory: types.Advisory{ExternalID: "CVE-2024-0009"},
			expected: types.MatchNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Resolve(nginxAsset(), tt.advisory))
		})
	}
}

func TestResolveRebuildsMalformedAssetIdentifier(t *testing.T) {
	asset := nginxAsset()
	asset.CPE = "broken"

	advisory := types.Advisory{ExternalID: "CVE-2024-0010", CPEs: []string{nginx1253}}

	assert.Equal(t, types.MatchExact, Resolve(asset, advisory))
	assert.Equal(t, nginx1253, AssetIdentifier(asset).String())
}
