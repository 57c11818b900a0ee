package models

import "time"

// Company is deduplicated within an engagement by domain first, then by
// name. Created lazily the first time any synced record references it and
// enriched, never destructively overwritten, on later encounters.
type Company struct {
	ID           string    `json:"id" db:"id"`
	TenantID     string    `json:"tenant_id" db:"tenant_id"`
	EngagementID string    `json:"engagement_id" db:"engagement_id"`
	Name         string    `json:"name" db:"name"`
	Domain       string    `json:"domain" db:"domain"`
	Industry     string    `json:"industry" db:"industry"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Contact is deduplicated by email within an engagement.
type Contact struct {
	ID           string    `json:"id" db:"id"`
	TenantID     string    `json:"tenant_id" db:"tenant_id"`
	EngagementID string    `json:"engagement_id" db:"engagement_id"`
	CompanyID    *string   `json:"company_id" db:"company_id"`
	Email        string    `json:"email" db:"email"`
	FirstName    string    `json:"first_name" db:"first_name"`
	LastName     string    `json:"last_name" db:"last_name"`
	Title        string    `json:"title" db:"title"`
	Phone        string    `json:"phone" db:"phone"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
