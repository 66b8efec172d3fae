package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vchan-in/vuln-correlator/internal/types"
)

// handleIngestAdvisories upserts a batch of advisories
func (s *Server) handleIngestAdvisories(w http.ResponseWriter, r *http.Request) {
	var batch []types.Advisory
	if !decodeBody(w, r, &batch) {
		return
	}

	if len(batch) == 0 {
		writeError(w, http.StatusBadRequest, "no advisories in request")
		return
	}

	result := s.ingester.Ingest(r.Context(), batch)
	writeJSON(w, http.StatusOK, result)
}

// handleListAdvisories searches, sorts and pages stored advisories
func (s *Server) handleListAdvisories(w http.ResponseWriter, r *http.Request) {
	page, size, err := s.queryPaging(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q := r.URL.Query()
	advisories, err := s.ingester.List(r.Context(), types.AdvisoryFilter{
		Search:    q.Get("search"),
		SortBy:    q.Get("sort_by"),
		SortOrder: q.Get("sort_order"),
		Page:      page,
		PageSize:  size,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, advisories)
}

func (s *Server) handleGetAdvisory(w http.ResponseWriter, r *http.Request) {
	adv, err := s.ingester.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, adv)
}

func (s *Server) handleDeleteAdvisory(w http.ResponseWriter, r *http.Request) {
	if err := s.ingester.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
