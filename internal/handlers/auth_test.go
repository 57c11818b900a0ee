package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salescope/salescope-api/internal/authz"
	"github.com/salescope/salescope-api/internal/config"
	"github.com/salescope/salescope-api/internal/models"
)

const testSecret = "unit-test-secret"

func newTestAuthHandler(t *testing.T) *AuthHandler {
	t.Helper()
	cfg := &config.Config{JWTSecret: testSecret, ServiceToken: "svc-token"}
	return NewAuthHandler(nil, cfg, zerolog.Nop())
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestJWTMiddlewarePropagatesIdentity(t *testing.T) {
	h := newTestAuthHandler(t)

	var gotTenant, gotUser string
	var gotRoles []models.UserRole
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTenant, _ = authz.TenantIDFromRequest(r)
		gotUser, _ = authz.UserIDFromRequest(r)
		gotRoles, _ = authz.RolesFromRequest(r)
	})

	token := signToken(t, jwt.MapClaims{
		"sub":   "user-1",
		"tid":   "tenant-1",
		"roles": []string{"editor"},
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/data-sources", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.JWTMiddleware(next).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tenant-1", gotTenant)
	assert.Equal(t, "user-1", gotUser)
	assert.Equal(t, []models.UserRole{models.RoleEditor}, gotRoles)
}

func TestJWTMiddlewareRejectsExpiredToken(t *testing.T) {
	h := newTestAuthHandler(t)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("expired token must not reach the handler")
	})

	token := signToken(t, jwt.MapClaims{
		"sub":   "user-1",
		"tid":   "tenant-1",
		"roles": []string{"viewer"},
		"exp":   time.Now().Add(-time.Minute).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/data-sources", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.JWTMiddleware(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTMiddlewareRejectsMissingHeader(t *testing.T) {
	h := newTestAuthHandler(t)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("unauthenticated request must not reach the handler")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/data-sources", nil)
	rec := httptest.NewRecorder()
	h.JWTMiddleware(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTMiddlewareAcceptsServiceToken(t *testing.T) {
	h := newTestAuthHandler(t)

	var isService bool
	var gotRoles []models.UserRole
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		isService = authz.IsServiceCall(r)
		gotRoles, _ = authz.RolesFromRequest(r)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/sync", nil)
	req.Header.Set("X-Service-Token", "svc-token")
	rec := httptest.NewRecorder()
	h.JWTMiddleware(next).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, isService)
	assert.Equal(t, []models.UserRole{models.RoleAdmin}, gotRoles)
}

func TestJWTMiddlewareRejectsWrongServiceToken(t *testing.T) {
	h := newTestAuthHandler(t)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("wrong service token must not reach the handler")
	})

	req := httptest.NewRequest(http.MethodPost, "/api/sync", nil)
	req.Header.Set("X-Service-Token", "not-the-token")
	rec := httptest.NewRecorder()
	h.JWTMiddleware(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExtractRolesFromClaims(t *testing.T) {
	roles, ok := extractRolesFromClaims(jwt.MapClaims{"roles": []interface{}{"admin", "viewer"}})
	require.True(t, ok)
	assert.Equal(t, []models.UserRole{models.RoleAdmin, models.RoleViewer}, roles)

	roles, ok = extractRolesFromClaims(jwt.MapClaims{"role": "editor"})
	require.True(t, ok)
	assert.Equal(t, []models.UserRole{models.RoleEditor}, roles)

	_, ok = extractRolesFromClaims(jwt.MapClaims{"roles": []interface{}{"superuser"}})
	assert.False(t, ok)

	_, ok = extractRolesFromClaims(jwt.MapClaims{})
	assert.False(t, ok)
}
