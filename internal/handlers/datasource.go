package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/salescope/salescope-api/internal/models"
	"github.com/salescope/salescope-api/internal/repository"
)

type DataSourceHandler struct {
	sources repository.DataSourceRepository
	logger  zerolog.Logger
}

func NewDataSourceHandler(sources repository.DataSourceRepository, logger zerolog.Logger) *DataSourceHandler {
	return &DataSourceHandler{sources: sources, logger: logger}
}

type createDataSourceRequest struct {
	EngagementID string `json:"engagement_id"`
	Platform     string `json:"platform"`
	Name         string `json:"name"`
	APIKey       string `json:"api_key"`
	BaseURL      string `json:"base_url"`
}

func (h *DataSourceHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant", http.StatusUnauthorized)
		return
	}

	var req createDataSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.EngagementID == "" || req.Platform == "" || req.APIKey == "" {
		http.Error(w, "engagement_id, platform and api_key are required", http.StatusBadRequest)
		return
	}

	ds, err := h.sources.Create(models.DataSource{
		TenantID:     tenantID,
		EngagementID: req.EngagementID,
		Platform:     req.Platform,
		Name:         req.Name,
		APIKey:       req.APIKey,
		BaseURL:      req.BaseURL,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to create data source")
		http.Error(w, "Failed to create data source: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, ds)
}

func (h *DataSourceHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant", http.StatusUnauthorized)
		return
	}

	engagementID := r.URL.Query().Get("engagement_id")
	sources, err := h.sources.List(tenantID, engagementID)
	if err != nil {
		http.Error(w, "Failed to list data sources: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sources)
}

func (h *DataSourceHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant", http.StatusUnauthorized)
		return
	}

	id := mux.Vars(r)["id"]
	ds, err := h.sources.Get(tenantID, id)
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, "Data source not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to load data source: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}
