package models

// UserRole is a coarse permission tier. Roles are ordered: admin implies
// editor, editor implies viewer.
type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RoleEditor UserRole = "editor"
	RoleViewer UserRole = "viewer"
)

var roleRank = map[UserRole]int{
	RoleViewer: 1,
	RoleEditor: 2,
	RoleAdmin:  3,
}

type User struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenant_id"`
	Email        string     `json:"email"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	PasswordHash string     `json:"-"`
	IsActive     bool       `json:"is_active"`
	Roles        []UserRole `json:"roles"`
}

// IsValidRole reports whether the role is a known tier.
func IsValidRole(role UserRole) bool {
	_, ok := roleRank[role]
	return ok
}

// IsValidRoleList reports whether every role is a known tier.
func IsValidRoleList(roles []UserRole) bool {
	if len(roles) == 0 {
		return false
	}
	for _, r := range roles {
		if _, ok := roleRank[r]; !ok {
			return false
		}
	}
	return true
}

// NormalizeRoles drops unknown roles and duplicates, preserving order.
func NormalizeRoles(roles []UserRole) []UserRole {
	seen := make(map[UserRole]bool, len(roles))
	out := make([]UserRole, 0, len(roles))
	for _, r := range roles {
		if _, ok := roleRank[r]; !ok || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

// EnsureDefaultRole guarantees at least the viewer tier.
func EnsureDefaultRole(roles []UserRole) []UserRole {
	if len(roles) == 0 {
		return []UserRole{RoleViewer}
	}
	return roles
}

// HighestRole returns the strongest tier in the list.
func HighestRole(roles []UserRole) UserRole {
	highest := RoleViewer
	for _, r := range roles {
		if roleRank[r] > roleRank[highest] {
			highest = r
		}
	}
	return highest
}

// HasAtLeast reports whether any held role meets the required tier.
func HasAtLeast(roles []UserRole, required UserRole) bool {
	for _, r := range roles {
		if roleRank[r] >= roleRank[required] {
			return true
		}
	}
	return false
}
