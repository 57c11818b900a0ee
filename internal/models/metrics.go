package models

import "time"

// DailyMetric is a per-campaign, per-day rollup. Rows for a campaign are
// fully recomputed from Activity rows on every sync pass, never
// hand-adjusted.
type DailyMetric struct {
	ID              string    `json:"id" db:"id"`
	CampaignID      string    `json:"campaign_id" db:"campaign_id"`
	Day             time.Time `json:"day" db:"day"`
	EmailsSent      int       `json:"emails_sent" db:"emails_sent"`
	EmailsOpened    int       `json:"emails_opened" db:"emails_opened"`
	EmailsReplied   int       `json:"emails_replied" db:"emails_replied"`
	PositiveReplies int       `json:"positive_replies" db:"positive_replies"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// EnrollmentSnapshot records how many contacts were enrolled in a campaign
// on a given day, keyed by (campaign, date).
type EnrollmentSnapshot struct {
	ID         string    `json:"id" db:"id"`
	CampaignID string    `json:"campaign_id" db:"campaign_id"`
	Day        time.Time `json:"day" db:"day"`
	Enrolled   int       `json:"enrolled" db:"enrolled"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// ReconcileReport is the persisted output of one reconciliation pass.
// Reconciliation reads aggregate and raw tables, never mutates them.
type ReconcileReport struct {
	ID       string    `json:"id" db:"id"`
	TenantID string    `json:"tenant_id" db:"tenant_id"`
	Issues   []string  `json:"issues" db:"issues"`
	Healthy  bool      `json:"healthy" db:"healthy"`
	RanAt    time.Time `json:"ran_at" db:"ran_at"`
}
