package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/vchan-in/vuln-correlator/internal/advisory"
	"github.com/vchan-in/vuln-correlator/internal/config"
	"github.com/vchan-in/vuln-correlator/internal/database"
	"github.com/vchan-in/vuln-correlator/internal/inventory"
	"github.com/vchan-in/vuln-correlator/internal/jobs"
	"github.com/vchan-in/vuln-correlator/internal/metrics"
	"github.com/vchan-in/vuln-correlator/internal/types"
)

// Enqueuer queues background tasks; *asynq.Client satisfies it
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Deps are the collaborators of the API server. Exporter and Enqueuer are
// optional.
type Deps struct {
	Repo      database.Repository
	Inventory *inventory.Service
	Ingester  *advisory.Ingester
	Processor *jobs.Processor
	Exporter  jobs.Exporter
	Enqueuer  Enqueuer
	Metrics   *metrics.Recorder
}

// Server represents the HTTP API server
type Server struct {
	config    *config.Config
	repo      database.Repository
	inventory *inventory.Service
	ingester  *advisory.Ingester
	processor *jobs.Processor
	exporter  jobs.Exporter
	enqueuer  Enqueuer
	metrics   *metrics.Recorder
	router    *mux.Router
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		config:    cfg,
		repo:      deps.Repo,
		inventory: deps.Inventory,
		ingester:  deps.Ingester,
		processor: deps.Processor,
		exporter:  deps.Exporter,
		enqueuer:  deps.Enqueuer,
		metrics:   deps.Metrics,
		router:    mux.NewRouter(),
	}

	s.setupRoutes()
	return s
}

// Router returns the configured router
func (s *Server) Router() *mux.Router {
	return s.router
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.metricsMiddleware)
	s.router.Use(s.corsMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Correlation
	api.HandleFunc("/correlation/run", s.handleRunCorrelation).Methods("POST")
	api.HandleFunc("/correlation/results", s.handleListMatches).Methods("GET")
	api.HandleFunc("/correlation/runs", s.handleListRuns).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/dashboard/severity-distribution", s.handleSeverityDistribution).Methods("GET")
	api.HandleFunc("/dashboard/asset-ranking", s.handleAssetRanking).Methods("GET")

	// Assets
	api.HandleFunc("/assets", s.handleListAssets).Methods("GET")
	api.HandleFunc("/assets", s.handleCreateAsset).Methods("POST")
	api.HandleFunc("/assets/{id}", s.handleGetAsset).Methods("GET")
	api.HandleFunc("/assets/{id}", s.handleUpdateAsset).Methods("PUT")
	api.HandleFunc("/assets/{id}", s.handleDeleteAsset).Methods("DELETE")
	api.HandleFunc("/assets/{id}/advisories", s.handleAssetAdvisories).Methods("GET")

	// Advisories
	api.HandleFunc("/advisories", s.handleListAdvisories).Methods("GET")
	api.HandleFunc("/advisories", s.handleIngestAdvisories).Methods("POST")
	api.HandleFunc("/advisories/{id}", s.handleGetAdvisory).Methods("GET")
	api.HandleFunc("/advisories/{id}", s.handleDeleteAdvisory).Methods("DELETE")

	// Export
	api.HandleFunc("/export", s.handleExport).Methods("POST")
}

// handleHealth returns system health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	health := &types.HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Checks:    make(map[string]types.CheckResult),
	}

	dbStart := time.Now()
	dbErr := s.repo.Health(ctx)
	health.Checks["database"] = types.CheckResult{
		Status:  statusFromError(dbErr),
		Message: messageFromError(dbErr),
		Latency: time.Since(dbStart),
	}

	statusCode := http.StatusOK
	if dbErr != nil {
		health.Status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, health)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status_code", wrapped.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// metricsMiddleware records request counts and latency by route template
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.metrics.ObserveRequest(route, r.Method, wrapped.statusCode, time.Since(start))
	})
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Helper functions
func statusFromError(err error) string {
	if err != nil {
		return "unhealthy"
	}
	return "healthy"
}

func messageFromError(err error) string {
	if err != nil {
		return err.Error()
	}
	return "OK"
}
