package models

import "time"

// Campaign is a sequence or dialer campaign, uniquely identified by
// (engagement, data source, external id). Its totals are derived state:
// the aggregator is their single writer, and they are always recomputable
// from raw Activity rows.
type Campaign struct {
	ID              string     `json:"id" db:"id"`
	TenantID        string     `json:"tenant_id" db:"tenant_id"`
	EngagementID    string     `json:"engagement_id" db:"engagement_id"`
	DataSourceID    string     `json:"data_source_id" db:"data_source_id"`
	ExternalID      string     `json:"external_id" db:"external_id"`
	Name            string     `json:"name" db:"name"`
	Status          string     `json:"status" db:"status"` // enum: active, paused, completed, draft
	TotalSent       int        `json:"total_sent" db:"total_sent"`
	TotalOpened     int        `json:"total_opened" db:"total_opened"`
	TotalReplied    int        `json:"total_replied" db:"total_replied"`
	TotalBounced    int        `json:"total_bounced" db:"total_bounced"`
	PositiveReplies int        `json:"positive_replies" db:"positive_replies"`
	OpenRate        float64    `json:"open_rate" db:"open_rate"`
	ReplyRate       float64    `json:"reply_rate" db:"reply_rate"`
	LastSyncedAt    *time.Time `json:"last_synced_at" db:"last_synced_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// Variant is one message template belonging to a campaign at a given step
// number. Per-step metrics are recomputed wholesale by the aggregator,
// never patched incrementally.
type Variant struct {
	ID         string    `json:"id" db:"id"`
	CampaignID string    `json:"campaign_id" db:"campaign_id"`
	ExternalID string    `json:"external_id" db:"external_id"`
	StepNumber int       `json:"step_number" db:"step_number"`
	Subject    string    `json:"subject" db:"subject"`
	Body       string    `json:"body" db:"body"`
	Sent       int       `json:"sent" db:"sent"`
	Opened     int       `json:"opened" db:"opened"`
	Replied    int       `json:"replied" db:"replied"`
	Bounced    int       `json:"bounced" db:"bounced"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// SenderAccount is a sending mailbox (or dialer seat) belonging to a data
// source, synced during the accounts phase.
type SenderAccount struct {
	ID           string    `json:"id" db:"id"`
	DataSourceID string    `json:"data_source_id" db:"data_source_id"`
	ExternalID   string    `json:"external_id" db:"external_id"`
	Email        string    `json:"email" db:"email"`
	DisplayName  string    `json:"display_name" db:"display_name"`
	DailyLimit   int       `json:"daily_limit" db:"daily_limit"`
	WarmupActive bool      `json:"warmup_active" db:"warmup_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
