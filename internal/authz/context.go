package authz

import (
	"context"
	"net/http"

	"github.com/salescope/salescope-api/internal/models"
)

type contextKey string

const (
	tenantIDKey  contextKey = "tenant_id"
	userIDKey    contextKey = "user_id"
	userRolesKey contextKey = "user_roles"
	serviceKey   contextKey = "service_call"
)

// WithIdentity stores tenant, user, and role information on the context.
func WithIdentity(ctx context.Context, tenantID, userID string, roles []models.UserRole) context.Context {
	if tenantID != "" {
		ctx = context.WithValue(ctx, tenantIDKey, tenantID)
	}
	if userID != "" {
		ctx = context.WithValue(ctx, userIDKey, userID)
	}
	normalized := models.EnsureDefaultRole(models.NormalizeRoles(roles))
	ctx = context.WithValue(ctx, userRolesKey, normalized)
	return ctx
}

// WithServiceIdentity marks the context as an internal service call.
// Continuation requests carry no interactive user; they act with admin
// rights scoped to the tenant in the request body.
func WithServiceIdentity(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, serviceKey, true)
	return context.WithValue(ctx, userRolesKey, []models.UserRole{models.RoleAdmin})
}

func IsServiceCall(r *http.Request) bool {
	svc, ok := r.Context().Value(serviceKey).(bool)
	return ok && svc
}

func TenantIDFromRequest(r *http.Request) (string, bool) {
	tid, ok := r.Context().Value(tenantIDKey).(string)
	if !ok || tid == "" {
		return "", false
	}
	return tid, true
}

func UserIDFromRequest(r *http.Request) (string, bool) {
	uid, ok := r.Context().Value(userIDKey).(string)
	if !ok || uid == "" {
		return "", false
	}
	return uid, true
}

func RolesFromRequest(r *http.Request) ([]models.UserRole, bool) {
	roles, ok := r.Context().Value(userRolesKey).([]models.UserRole)
	if !ok || !models.IsValidRoleList(roles) {
		return nil, false
	}
	return roles, true
}
