package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/salescope/salescope-api/internal/authz"
	"github.com/salescope/salescope-api/internal/models"
	"github.com/salescope/salescope-api/internal/repository"
	"github.com/salescope/salescope-api/internal/sync"
)

// SyncRunner executes one sync batch. Satisfied by sync.Orchestrator.
type SyncRunner interface {
	Run(ctx context.Context, req sync.Request) (sync.Result, error)
}

// SyncHandler exposes the sync trigger endpoint. The same endpoint serves
// dashboard-initiated runs and worker continuations; the latter arrive with
// internal_continuation set and a service identity on the context.
type SyncHandler struct {
	orchestrator SyncRunner
	progress     repository.ProgressRepository
	logger       zerolog.Logger
}

func NewSyncHandler(orchestrator SyncRunner, progress repository.ProgressRepository, logger zerolog.Logger) *SyncHandler {
	return &SyncHandler{orchestrator: orchestrator, progress: progress, logger: logger}
}

type syncTriggerRequest struct {
	ClientID             string `json:"client_id"`
	EngagementID         string `json:"engagement_id"`
	DataSourceID         string `json:"data_source_id"`
	Reset                bool   `json:"reset,omitempty"`
	BatchNumber          int    `json:"batch_number,omitempty"`
	AutoContinue         *bool  `json:"auto_continue,omitempty"`
	InternalContinuation bool   `json:"internal_continuation,omitempty"`
	CurrentPhase         string `json:"current_phase,omitempty"`
	TenantID             string `json:"tenant_id,omitempty"`
}

// syncTriggerResponse carries the trigger outcome. A complete run reports
// only success/complete/progress/message; a partial run adds the position
// within the current phase and the batch the continuation will resume at.
type syncTriggerResponse struct {
	Success     bool            `json:"success"`
	Complete    bool            `json:"complete"`
	Progress    models.Counters `json:"progress"`
	Current     string          `json:"current,omitempty"`
	Total       int             `json:"total,omitempty"`
	Phase       string          `json:"phase,omitempty"`
	BatchNumber int             `json:"batch_number,omitempty"`
	Message     string          `json:"message"`
}

// Trigger starts or resumes a sync run for a data source.
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req syncTriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DataSourceID == "" || req.EngagementID == "" {
		writeJSONError(w, http.StatusBadRequest, "data_source_id and engagement_id are required")
		return
	}

	tenantID, ok := tenantIDFromRequest(r)
	if !ok {
		// Service calls carry no JWT; the tenant comes from the body.
		if !authz.IsServiceCall(r) || req.TenantID == "" {
			writeJSONError(w, http.StatusUnauthorized, "missing tenant")
			return
		}
		tenantID = req.TenantID
	}

	if req.InternalContinuation && !authz.IsServiceCall(r) {
		writeJSONError(w, http.StatusForbidden, "internal_continuation is reserved for service calls")
		return
	}

	autoContinue := true
	if req.AutoContinue != nil {
		autoContinue = *req.AutoContinue
	}

	result, err := h.orchestrator.Run(r.Context(), sync.Request{
		TenantID:             tenantID,
		ClientID:             req.ClientID,
		EngagementID:         req.EngagementID,
		DataSourceID:         req.DataSourceID,
		Reset:                req.Reset,
		BatchNumber:          req.BatchNumber,
		AutoContinue:         autoContinue,
		InternalContinuation: req.InternalContinuation,
		CurrentPhase:         req.CurrentPhase,
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			writeJSONError(w, http.StatusNotFound, "data source not found")
		case errors.Is(err, repository.ErrLeaseHeld):
			writeJSONError(w, http.StatusConflict, "a sync run is already in progress for this data source")
		default:
			h.logger.Error().Err(err).Str("data_source_id", req.DataSourceID).Msg("Sync run failed")
			writeJSONError(w, http.StatusInternalServerError, "sync failed: "+err.Error())
		}
		return
	}

	resp := syncTriggerResponse{
		Success:  true,
		Complete: result.Complete,
		Progress: result.Progress,
		Message:  result.Message,
	}
	code := http.StatusOK
	if !result.Complete {
		code = http.StatusAccepted
		resp.Current = result.Current
		resp.Total = result.Total
		resp.Phase = string(result.Phase)
		resp.BatchNumber = result.BatchNumber
	}
	writeJSON(w, code, resp)
}

// Progress reports the latest sync run for a data source.
func (h *SyncHandler) Progress(w http.ResponseWriter, r *http.Request) {
	dataSourceID := r.URL.Query().Get("data_source_id")
	if dataSourceID == "" {
		writeJSONError(w, http.StatusBadRequest, "data_source_id is required")
		return
	}
	if _, ok := tenantIDFromRequest(r); !ok {
		writeJSONError(w, http.StatusUnauthorized, "missing tenant")
		return
	}

	prog, err := h.progress.GetLatest(dataSourceID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, "no sync runs for this data source")
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to load progress: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, prog)
}
