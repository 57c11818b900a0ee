package handlers

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/salescope/salescope-api/internal/reconcile"
	"github.com/salescope/salescope-api/internal/repository"
)

// ReconcileHandler exposes on-demand reconciliation and report history.
type ReconcileHandler struct {
	reconciler *reconcile.Reconciler
	metrics    repository.MetricsRepository
	logger     zerolog.Logger
}

func NewReconcileHandler(reconciler *reconcile.Reconciler, metrics repository.MetricsRepository, logger zerolog.Logger) *ReconcileHandler {
	return &ReconcileHandler{reconciler: reconciler, metrics: metrics, logger: logger}
}

func (h *ReconcileHandler) Run(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant", http.StatusUnauthorized)
		return
	}

	report, err := h.reconciler.Run(tenantID)
	if err != nil {
		h.logger.Error().Err(err).Msg("On-demand reconciliation failed")
		http.Error(w, "Reconciliation failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *ReconcileHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant", http.StatusUnauthorized)
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 200 {
			http.Error(w, "limit must be an integer between 1 and 200", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	reports, err := h.metrics.ListReports(tenantID, limit)
	if err != nil {
		http.Error(w, "Failed to list reports: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}
