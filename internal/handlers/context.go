package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/salescope/salescope-api/internal/authz"
)

func tenantIDFromRequest(r *http.Request) (string, bool) {
	return authz.TenantIDFromRequest(r)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
