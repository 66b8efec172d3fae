package api

import (
	"net/http"
	"strings"

	"github.com/vchan-in/vuln-correlator/internal/advisory"
	"github.com/vchan-in/vuln-correlator/internal/database"
	"github.com/vchan-in/vuln-correlator/internal/jobs"
	"github.com/vchan-in/vuln-correlator/internal/types"
)

const defaultRunsLimit = 20

// jobResponse acknowledges a queued task
type jobResponse struct {
	Status  string `json:"status"`
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

// handleRunCorrelation runs the engine inline, or queues it with ?async=true
func (s *Server) handleRunCorrelation(w http.ResponseWriter, r *http.Request) {
	if queryBool(r, "async") {
		task, err := jobs.NewCorrelationTask(jobs.TriggerAPI)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		s.enqueue(w, task, "correlation job queued")
		return
	}

	stats, err := s.processor.RunCorrelation(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleListMatches returns one page of stored matches
func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request) {
	filter, ok := s.parseMatchFilter(w, r)
	if !ok {
		return
	}

	page, err := s.repo.ListMatches(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func (s *Server) parseMatchFilter(w http.ResponseWriter, r *http.Request) (types.MatchFilter, bool) {
	var filter types.MatchFilter
	q := r.URL.Query()

	if sev := strings.TrimSpace(q.Get("severity")); sev != "" {
		canonical, ok := advisory.CanonicalSeverity(sev)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid severity: "+sev)
			return filter, false
		}
		filter.Severity = canonical
	}

	if src := types.AssetSource(q.Get("source")); src != "" {
		if !src.Valid() {
			writeError(w, http.StatusBadRequest, "invalid source: "+string(src))
			return filter, false
		}
		filter.Source = src
	}

	var err error
	if filter.Page, err = queryInt(r, "page", 1); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return filter, false
	}
	if filter.PageSize, err = queryInt(r, "page_size", s.config.API.DefaultPageSize); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return filter, false
	}

	return database.ClampPage(filter, s.config.API.DefaultPageSize, s.config.API.MaxPageSize), true
}

// handleListRuns returns the most recent correlation runs
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultRunsLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit > s.config.API.MaxPageSize {
		limit = s.config.API.MaxPageSize
	}

	runs, err := s.repo.ListRuns(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, runs)
}

// handleStats returns dashboard statistics
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.repo.DashboardStats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleSeverityDistribution counts stored advisories per severity tier
func (s *Server) handleSeverityDistribution(w http.ResponseWriter, r *http.Request) {
	counts, err := s.repo.SeverityDistribution(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, counts)
}

// handleAssetRanking lists the assets with the most matches
func (s *Server) handleAssetRanking(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", database.DefaultRankingLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit > s.config.API.MaxPageSize {
		limit = s.config.API.MaxPageSize
	}

	ranking, err := s.repo.AssetRanking(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ranking)
}

// handleExport writes a match report inline, or queues it with ?async=true
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if queryBool(r, "async") {
		task, err := jobs.NewExportTask(jobs.TriggerAPI)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		s.enqueue(w, task, "export job queued")
		return
	}

	if s.exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "export sink not configured")
		return
	}

	result, err := s.exporter.Export(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
