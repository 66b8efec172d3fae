package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vchan-in/vuln-correlator/internal/config"
	"github.com/vchan-in/vuln-correlator/internal/database/sqlite"
	"github.com/vchan-in/vuln-correlator/internal/types"
)

func seededStore(t *testing.T, matches int) *sqlite.Store {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.Migrate(ctx))

	now := time.Now().UTC()
	require.NoError(t, store.CreateAsset(ctx, &types.Asset{
		ID: "a1", Name: "web", Vendor: "nginx", Product: "nginx", Version: "1.25.3",
		CPE: "cpe:2.3:a:nginx:nginx:1.25.3:*:*:*:*:*:*:*", Source: types.SourceManual,
		CreatedAt: now, UpdatedAt: now,
	}))

	batch := make([]types.Match, 0, matches)
	for i := 0; i < matches; i++ {
		id := fmt.Sprintf("CVE-2024-%04d", i)
		_, err := store.UpsertAdvisory(ctx, &types.Advisory{ExternalID: id, Severity: types.SeverityHigh})
		require.NoError(t, err)
		batch = append(batch, types.Match{ID: fmt.Sprintf("m%d", i), AssetID: "a1", ExternalID: id, Kind: types.MatchExact, MatchedAt: now})
	}
	require.NoError(t, store.UpsertMatches(ctx, batch))

	return store
}

func TestExportWritesPlainReport(t *testing.T) {
	dir := t.TempDir()
	store := seededStore(t, 3)

	cfg := config.ExportConfig{Sink: config.SinkFile, Dir: dir, Prefix: "matches"}
	exporter := NewExporter(store, NewFileSink(dir), cfg)
	exporter.now = func() time.Time { return time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC) }

	result, err := exporter.Export(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Matches)
	assert.Equal(t, filepath.Join(dir, "matches-20240601T083000Z.json"), result.Location)

	data, err := os.ReadFile(result.Location)
	require.NoError(t, err)

	var report Report
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Len(t, report.Matches, 3)
	assert.Equal(t, 3, report.Stats.TotalMatches)
	assert.Equal(t, 1, report.Stats.AffectedAssets)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestExportPagesAndCompresses(t *testing.T) {
	dir := t.TempDir()
	store := seededStore(t, 230)

	cfg := config.ExportConfig{Sink: config.SinkFile, Dir: dir, Prefix: "nightly", Compress: true}
	sink, err := NewSink(context.Background(), cfg)
	require.NoError(t, err)

	result, err := NewExporter(store, sink, cfg).Export(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 230, result.Matches)
	assert.True(t, strings.HasSuffix(result.Location, ".json.gz"))

	raw, err := os.ReadFile(result.Location)
	require.NoError(t, err)

	zr, err := gzip.NewReader(bytes.NewReader(raw))
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)

	var report Report
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Len(t, report.Matches, 230)

	seen := make(map[string]bool)
	for _, m := range report.Matches {
		seen[m.ID] = true
	}
	assert.Len(t, seen, 230)
}

func TestNewSinkRejectsUnknownSink(t *testing.T) {
	_, err := NewSink(context.Background(), config.ExportConfig{Sink: "ftp"})
	assert.Error(t, err)
}
