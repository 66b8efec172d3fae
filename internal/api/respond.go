package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/vchan-in/vuln-correlator/internal/advisory"
	"github.com/vchan-in/vuln-correlator/internal/database"
	"github.com/vchan-in/vuln-correlator/internal/inventory"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 10 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeServiceError maps domain errors to HTTP status codes
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, database.ErrDuplicateAsset):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, inventory.ErrInvalidAsset), errors.Is(err, advisory.ErrInvalidAdvisory),
		errors.Is(err, database.ErrInvalidFilter):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// queryInt reads a positive integer query parameter, returning def when absent
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("invalid " + name)
	}
	return n, nil
}

// queryPaging reads page and page_size (or its alias limit) and clamps them
// to the configured bounds
func (s *Server) queryPaging(r *http.Request) (int, int, error) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		return 0, 0, err
	}

	sizeParam := "page_size"
	if r.URL.Query().Get(sizeParam) == "" && r.URL.Query().Get("limit") != "" {
		sizeParam = "limit"
	}
	size, err := queryInt(r, sizeParam, s.config.API.DefaultPageSize)
	if err != nil {
		return 0, 0, err
	}

	page, size = database.ClampPaging(page, size, s.config.API.DefaultPageSize, s.config.API.MaxPageSize)
	return page, size, nil
}

// queryBool reads a boolean query parameter, false when absent or malformed
func queryBool(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}
