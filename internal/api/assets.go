package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vchan-in/vuln-correlator/internal/inventory"
	"github.com/vchan-in/vuln-correlator/internal/types"
)

// createAssetRequest registers a manual asset, or a package asset when a
// package ecosystem source is given
type createAssetRequest struct {
	Name    string            `json:"name"`
	Vendor  string            `json:"vendor"`
	Product string            `json:"product"`
	Version string            `json:"version"`
	Source  types.AssetSource `json:"source"`
}

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	page, size, err := s.queryPaging(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	assets, err := s.inventory.List(r.Context(), types.AssetFilter{
		Source:   types.AssetSource(r.URL.Query().Get("source")),
		Page:     page,
		PageSize: size,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, assets)
}

func (s *Server) handleCreateAsset(w http.ResponseWriter, r *http.Request) {
	var req createAssetRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var (
		asset *types.Asset
		err   error
	)
	if req.Source == "" || req.Source == types.SourceManual {
		asset, err = s.inventory.Register(r.Context(), inventory.RegisterRequest{
			Name:    req.Name,
			Vendor:  req.Vendor,
			Product: req.Product,
			Version: req.Version,
		})
	} else {
		asset, err = s.inventory.RegisterPackage(r.Context(), inventory.PackageRequest{
			Source:  req.Source,
			Name:    req.Name,
			Version: req.Version,
		})
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, asset)
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	asset, err := s.inventory.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, asset)
}

func (s *Server) handleUpdateAsset(w http.ResponseWriter, r *http.Request) {
	var req inventory.UpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	asset, err := s.inventory.Update(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, asset)
}

func (s *Server) handleDeleteAsset(w http.ResponseWriter, r *http.Request) {
	if err := s.inventory.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleAssetAdvisories lists the advisories matched to one asset
func (s *Server) handleAssetAdvisories(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, err := s.inventory.Get(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}

	vulns, err := s.repo.MatchesForAsset(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, vulns)
}
