package advisory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vchan-in/vuln-correlator/internal/database"
	"github.com/vchan-in/vuln-correlator/internal/database/sqlite"
	"github.com/vchan-in/vuln-correlator/internal/types"
)

func score(f float64) *float64 { return &f }

func TestSeverityFromScore(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{10.0, types.SeverityCritical},
		{9.0, types.SeverityCritical},
		{8.9, types.SeverityHigh},
		{7.0, types.SeverityHigh},
		{6.9, types.SeverityMedium},
		{4.0, types.SeverityMedium},
		{3.9, types.SeverityLow},
		{0.1, types.SeverityLow},
		{0.0, ""},
	}

	for _, tt := range tests {
		if got := SeverityFromScore(tt.score); got != tt.want {
			t.Errorf("SeverityFromScore(%.1f) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name         string
		advisory     types.Advisory
		wantErr      bool
		wantSeverity string
		wantCPEs     int
	}{
		{
			name:     "missing id",
			advisory: types.Advisory{ExternalID: "  "},
			wantErr:  true,
		},
		{
			name:     "score out of range",
			advisory: types.Advisory{ExternalID: "CVE-1", CVSSScore: score(10.5)},
			wantErr:  true,
		},
		{
			name:     "unknown severity",
			advisory: types.Advisory{ExternalID: "CVE-1", Severity: "urgent"},
			wantErr:  true,
		},
		{
			name: "empty range key",
			advisory: types.Advisory{ExternalID: "CVE-1", VersionRanges: map[string]types.VersionRange{
				" ": {},
			}},
			wantErr: true,
		},
		{
			name:         "severity canonicalized",
			advisory:     types.Advisory{ExternalID: "CVE-1", Severity: "hIGH", CVSSScore: score(9.8)},
			wantSeverity: types.SeverityHigh,
		},
		{
			name:         "severity derived from score",
			advisory:     types.Advisory{ExternalID: "CVE-1", CVSSScore: score(5.3)},
			wantSeverity: types.SeverityMedium,
		},
		{
			name: "malformed identifiers dropped",
			advisory: types.Advisory{ExternalID: "CVE-1", CPEs: []string{
				"cpe:2.3:a:nginx:nginx:1.25.3:*:*:*:*:*:*:*",
				"cpe:/a:nginx:nginx:1.25.3",
				"cpe:2.3:x:nginx:nginx:1.25.3:*:*:*:*:*:*:*",
			}},
			wantCPEs: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adv := tt.advisory
			err := Validate(&adv)

			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAdvisory) {
					t.Fatalf("Validate() error = %v, want ErrInvalidAdvisory", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error: %v", err)
			}
			if adv.Severity != tt.wantSeverity {
				t.Errorf("Severity = %q, want %q", adv.Severity, tt.wantSeverity)
			}
			if len(adv.CPEs) != tt.wantCPEs {
				t.Errorf("len(CPEs) = %d, want %d", len(adv.CPEs), tt.wantCPEs)
			}
		})
	}
}

type countingObserver map[string]int

func (c countingObserver) AdvisoryIngested(outcome string) { c[outcome]++ }

func TestIngestCountsOutcomes(t *testing.T) {
	ctx := context.Background()

	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Migrate(ctx))

	observer := countingObserver{}
	ingester := NewIngester(store, observer)

	batch := []types.Advisory{
		{ExternalID: "CVE-2024-0001", CVSSScore: score(9.8), CPEs: []string{"cpe:2.3:a:nginx:nginx:1.25.3:*:*:*:*:*:*:*"}},
		{ExternalID: "", Title: "no id"},
		{ExternalID: "CVE-2024-0002", Severity: "low"},
	}

	result := ingester.Ingest(ctx, batch)
	assert.Equal(t, 2, result.Inserted)
	assert.Zero(t, result.Updated)
	assert.Equal(t, 1, result.Failed)
	assert.Len(t, result.Errors, 1)

	result = ingester.Ingest(ctx, batch[:1])
	assert.Equal(t, 1, result.Updated)
	assert.Zero(t, result.Inserted)

	assert.Equal(t, 2, observer[OutcomeInserted])
	assert.Equal(t, 1, observer[OutcomeUpdated])
	assert.Equal(t, 1, observer[OutcomeFailed])

	stored, err := ingester.Get(ctx, "CVE-2024-0001")
	require.NoError(t, err)
	assert.Equal(t, types.SeverityCritical, stored.Severity)

	stored, err = ingester.Get(ctx, "CVE-2024-0002")
	require.NoError(t, err)
	assert.Equal(t, types.SeverityLow, stored.Severity)

	require.NoError(t, ingester.Delete(ctx, "CVE-2024-0002"))
	_, err = ingester.Get(ctx, "CVE-2024-0002")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestIngestStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	result := NewIngester(store, nil).Ingest(ctx, []types.Advisory{{ExternalID: "CVE-1"}, {ExternalID: "CVE-2"}})
	assert.Equal(t, 2, result.Failed)
	assert.Zero(t, result.Inserted)
}

func TestNullVersionRangeIsRejected(t *testing.T) {
	var batch []types.Advisory
	err := json.Unmarshal([]byte(`[{"external_id":"CVE-X","version_ranges":{"nginx":null}}]`), &batch)
	assert.ErrorIs(t, err, types.ErrNullVersionRange)

	err = json.Unmarshal([]byte(`[{"external_id":"CVE-X","version_ranges":{"nginx":{}}}]`), &batch)
	require.NoError(t, err)
	require.Contains(t, batch[0].VersionRanges, "nginx")
	assert.True(t, batch[0].VersionRanges["nginx"].Empty())
}

func TestListSearchesAndSorts(t *testing.T) {
	ctx := context.Background()

	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Migrate(ctx))

	ingester := NewIngester(store, nil)
	result := ingester.Ingest(ctx, []types.Advisory{
		{ExternalID: "CVE-2024-0001", Title: "nginx resolver overflow", CVSSScore: score(9.8)},
		{ExternalID: "CVE-2024-0002", Title: "OpenSSL timing leak", CVSSScore: score(5.3)},
		{ExternalID: "CVE-2024-0003", Title: "Nginx 100%_done header", CVSSScore: score(7.5)},
		{ExternalID: "JVNDB-2024-000001", Title: "unscored"},
	})
	require.Zero(t, result.Failed)

	page, err := ingester.List(ctx, types.AdvisoryFilter{Search: "NGINX"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	page, err = ingester.List(ctx, types.AdvisoryFilter{Search: "%_"})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total, "wildcards in the search term are literal")
	assert.Equal(t, "CVE-2024-0003", page.Items[0].ExternalID)

	page, err = ingester.List(ctx, types.AdvisoryFilter{Search: "jvndb"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	page, err = ingester.List(ctx, types.AdvisoryFilter{SortBy: types.SortScore, SortOrder: types.SortDesc})
	require.NoError(t, err)
	require.Len(t, page.Items, 4)
	assert.Equal(t, "CVE-2024-0001", page.Items[0].ExternalID)
	assert.Equal(t, "JVNDB-2024-000001", page.Items[3].ExternalID, "unscored last")

	page, err = ingester.List(ctx, types.AdvisoryFilter{SortBy: types.SortSeverity, SortOrder: types.SortAsc})
	require.NoError(t, err)
	require.Len(t, page.Items, 4)
	assert.Equal(t, "CVE-2024-0002", page.Items[0].ExternalID)
	assert.Equal(t, "JVNDB-2024-000001", page.Items[3].ExternalID, "no severity last")

	page, err = ingester.List(ctx, types.AdvisoryFilter{SortBy: types.SortScore, SortOrder: types.SortAsc, Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "CVE-2024-0001", page.Items[0].ExternalID)

	_, err = ingester.List(ctx, types.AdvisoryFilter{SortBy: "title"})
	assert.ErrorIs(t, err, database.ErrInvalidFilter)

	_, err = ingester.List(ctx, types.AdvisoryFilter{SortOrder: "sideways"})
	assert.ErrorIs(t, err, database.ErrInvalidFilter)
}
