package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vchan-in/vuln-correlator/internal/advisory"
	"github.com/vchan-in/vuln-correlator/internal/config"
	"github.com/vchan-in/vuln-correlator/internal/correlation"
	"github.com/vchan-in/vuln-correlator/internal/database/sqlite"
	"github.com/vchan-in/vuln-correlator/internal/export"
	"github.com/vchan-in/vuln-correlator/internal/inventory"
	"github.com/vchan-in/vuln-correlator/internal/jobs"
	"github.com/vchan-in/vuln-correlator/internal/metrics"
	"github.com/vchan-in/vuln-correlator/internal/types"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "job-1", Type: task.Type(), Queue: jobs.QueueCritical}, nil
}

type testEnv struct {
	server   *Server
	enqueuer *fakeEnqueuer
	exportTo string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.Migrate(context.Background()))

	cfg := config.Default()
	cfg.Export.Dir = t.TempDir()
	cfg.Export.Compress = false

	recorder := metrics.NewRecorder()
	engine := correlation.New(store, correlation.WithObserver(recorder))
	exporter := export.NewExporter(store, export.NewFileSink(cfg.Export.Dir), cfg.Export)
	enqueuer := &fakeEnqueuer{}

	server := NewServer(cfg, Deps{
		Repo:      store,
		Inventory: inventory.NewService(store),
		Ingester:  advisory.NewIngester(store, recorder),
		Processor: jobs.NewProcessor(engine, store, exporter),
		Exporter:  exporter,
		Enqueuer:  enqueuer,
		Metrics:   recorder,
	})

	return &testEnv{server: server, enqueuer: enqueuer, exportTo: cfg.Export.Dir}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	health := decode[types.HealthStatus](t, rec)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "healthy", health.Checks["database"].Status)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodGet, "/api/v1/stats", nil)
	rec := env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "vulncorrelator_http_requests_total")
}

func TestAssetEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/assets", map[string]string{
		"name": "edge", "vendor": "nginx", "product": "nginx", "version": "1.25.3",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	asset := decode[types.Asset](t, rec)
	assert.Equal(t, "cpe:2.3:a:nginx:nginx:1.25.3:*:*:*:*:*:*:*", asset.CPE)

	rec = env.do(t, http.MethodPost, "/api/v1/assets", map[string]string{
		"name": "edge", "vendor": "nginx", "product": "nginx", "version": "1.25.3",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/assets", map[string]string{"name": "broken"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/assets", map[string]string{
		"source": "npm", "name": "express", "version": "^4.18.2",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "cpe:2.3:a:expressjs:express:4.18.2:*:*:*:*:*:*:*", decode[types.Asset](t, rec).CPE)

	rec = env.do(t, http.MethodGet, "/api/v1/assets?source=npm", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	npm := decode[types.AssetPage](t, rec)
	assert.Equal(t, 1, npm.Total)
	assert.Len(t, npm.Items, 1)

	rec = env.do(t, http.MethodGet, "/api/v1/assets?page=2&limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	paged := decode[types.AssetPage](t, rec)
	assert.Equal(t, 2, paged.Total)
	assert.Equal(t, 1, paged.PageSize)
	require.Len(t, paged.Items, 1)

	rec = env.do(t, http.MethodGet, "/api/v1/assets?page=1&limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	first := decode[types.AssetPage](t, rec)
	require.Len(t, first.Items, 1)
	assert.NotEqual(t, first.Items[0].ID, paged.Items[0].ID)

	rec = env.do(t, http.MethodGet, "/api/v1/assets?source=pip", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/v1/assets/"+asset.ID, map[string]string{"version": "1.26.0"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cpe:2.3:a:nginx:nginx:1.26.0:*:*:*:*:*:*:*", decode[types.Asset](t, rec).CPE)

	rec = env.do(t, http.MethodGet, "/api/v1/assets/"+asset.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/v1/assets/"+asset.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/assets/"+asset.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCorrelationFlow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/assets", map[string]string{
		"name": "edge", "vendor": "nginx", "product": "nginx", "version": "1.25.3",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	asset := decode[types.Asset](t, rec)

	rec = env.do(t, http.MethodPost, "/api/v1/advisories", []map[string]any{
		{"external_id": "CVE-2024-0001", "cvss_score": 9.8, "cpes": []string{"cpe:2.3:a:nginx:nginx:1.25.3:*:*:*:*:*:*:*"}},
		{"external_id": "CVE-2024-0002", "cvss_score": 5.0, "version_ranges": map[string]any{
			"nginx": map[string]string{"versionStartIncluding": "1.25.0", "versionEndExcluding": "1.25.4"},
		}},
		{"external_id": "CVE-2024-0003", "cpes": []string{"cpe:2.3:a:nginx:nginx:*:*:*:*:*:*:*:*"}},
		{"external_id": "", "title": "rejected"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	ingest := decode[types.IngestResult](t, rec)
	assert.Equal(t, 3, ingest.Inserted)
	assert.Equal(t, 1, ingest.Failed)

	rec = env.do(t, http.MethodPost, "/api/v1/correlation/run", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[types.RunStats](t, rec)
	assert.Equal(t, 3, stats.TotalMatches)
	assert.Equal(t, 1, stats.ExactMatches)
	assert.Equal(t, 1, stats.VersionRangeMatches)
	assert.Equal(t, 1, stats.WildcardMatches)

	rec = env.do(t, http.MethodGet, "/api/v1/correlation/results?severity=critical", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[types.MatchPage](t, rec)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, "CVE-2024-0001", page.Items[0].ExternalID)

	rec = env.do(t, http.MethodGet, "/api/v1/correlation/results?severity=urgent", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/correlation/results?page=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/assets/"+asset.ID+"/advisories", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	vulns := decode[[]types.AssetVulnerability](t, rec)
	require.Len(t, vulns, 3)
	assert.Equal(t, "CVE-2024-0001", vulns[0].ExternalID)

	rec = env.do(t, http.MethodGet, "/api/v1/correlation/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]types.RunStats](t, rec), 1)

	rec = env.do(t, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dash := decode[types.DashboardStats](t, rec)
	assert.Equal(t, 3, dash.TotalMatches)
	assert.Equal(t, 1, dash.AffectedAssets)
	assert.NotNil(t, dash.LastRunAt)

	rec = env.do(t, http.MethodGet, "/api/v1/advisories?sort_by=cvss_score&sort_order=desc&page_size=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	advisories := decode[types.AdvisoryPage](t, rec)
	assert.Equal(t, 3, advisories.Total)
	require.Len(t, advisories.Items, 2)
	assert.Equal(t, "CVE-2024-0001", advisories.Items[0].ExternalID)
	assert.Equal(t, "CVE-2024-0002", advisories.Items[1].ExternalID)

	rec = env.do(t, http.MethodGet, "/api/v1/advisories?search=cve-2024-0003", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[types.AdvisoryPage](t, rec).Total)

	rec = env.do(t, http.MethodGet, "/api/v1/advisories?sort_by=title", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/dashboard/severity-distribution", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.SeverityCounts{Critical: 1, Medium: 1}, decode[types.SeverityCounts](t, rec))

	rec = env.do(t, http.MethodGet, "/api/v1/dashboard/asset-ranking", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ranking := decode[[]types.AssetRank](t, rec)
	require.Len(t, ranking, 1)
	assert.Equal(t, asset.ID, ranking[0].AssetID)
	assert.Equal(t, 3, ranking[0].VulnerabilityCount)
	assert.Equal(t, 1, ranking[0].CriticalCount)

	rec = env.do(t, http.MethodDelete, "/api/v1/advisories/CVE-2024-0003", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/advisories/CVE-2024-0003", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[export.Result](t, rec)
	assert.Equal(t, 2, result.Matches)
	_, err := os.Stat(result.Location)
	assert.NoError(t, err)
}

func TestAsyncRequestsAreQueued(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/correlation/run?async=true", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "job-1", decode[jobResponse](t, rec).JobID)

	rec = env.do(t, http.MethodPost, "/api/v1/export?async=true", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, env.enqueuer.tasks, 2)
	assert.Equal(t, jobs.TypeCorrelationRun, env.enqueuer.tasks[0].Type())
	assert.Equal(t, jobs.TypeExportMatches, env.enqueuer.tasks[1].Type())
}

func TestAsyncWithoutQueue(t *testing.T) {
	env := newTestEnv(t)
	env.server.enqueuer = nil

	rec := env.do(t, http.MethodPost, "/api/v1/correlation/run?async=true", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestIngestRejectsBadBodies(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/advisories", map[string]string{"external_id": "CVE-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/advisories", []any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/advisories", []map[string]any{
		{"external_id": "CVE-X", "version_ranges": map[string]any{"nginx": nil}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/advisories/CVE-X", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
