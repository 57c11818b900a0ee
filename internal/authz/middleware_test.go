package authz

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/salescope/salescope-api/internal/models"
)

func TestRequireRoleOrdering(t *testing.T) {
	cases := []struct {
		name     string
		held     []models.UserRole
		required models.UserRole
		want     int
	}{
		{"admin passes editor gate", []models.UserRole{models.RoleAdmin}, models.RoleEditor, http.StatusOK},
		{"editor passes viewer gate", []models.UserRole{models.RoleEditor}, models.RoleViewer, http.StatusOK},
		{"viewer blocked from editor gate", []models.UserRole{models.RoleViewer}, models.RoleEditor, http.StatusForbidden},
		{"viewer blocked from admin gate", []models.UserRole{models.RoleViewer}, models.RoleAdmin, http.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
			handler := RequireRole(tc.required)(next)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(WithIdentity(req.Context(), "tenant-1", "user-1", tc.held))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestRequireRoleRejectsAnonymous(t *testing.T) {
	handler := RequireRole(models.RoleViewer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServiceIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	assert.False(t, IsServiceCall(req))

	req = req.WithContext(WithServiceIdentity(req.Context()))
	assert.True(t, IsServiceCall(req))

	roles, ok := RolesFromRequest(req)
	assert.True(t, ok)
	assert.Equal(t, []models.UserRole{models.RoleAdmin}, roles)
}
