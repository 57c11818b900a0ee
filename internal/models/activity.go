package models

import "time"

// ReplyCategory classifies a reply for positive-rate reporting.
type ReplyCategory string

const (
	ReplyPositive      ReplyCategory = "positive"
	ReplyNegative      ReplyCategory = "negative"
	ReplyNeutral       ReplyCategory = "neutral"
	ReplyOutOfOffice   ReplyCategory = "out_of_office"
	ReplyUnsubscribe   ReplyCategory = "unsubscribe"
	ReplyUncategorized ReplyCategory = ""
)

// Activity is the atomic unit of truth: one row per (campaign, contact,
// step) carrying the full lifecycle of a single touch. Every aggregate in
// the system is derived from these rows.
type Activity struct {
	ID            string        `json:"id" db:"id"`
	TenantID      string        `json:"tenant_id" db:"tenant_id"`
	CampaignID    string        `json:"campaign_id" db:"campaign_id"`
	ContactID     string        `json:"contact_id" db:"contact_id"`
	StepNumber    int           `json:"step_number" db:"step_number"`
	Sent          bool          `json:"sent" db:"sent"`
	Opened        bool          `json:"opened" db:"opened"`
	Clicked       bool          `json:"clicked" db:"clicked"`
	Replied       bool          `json:"replied" db:"replied"`
	Bounced       bool          `json:"bounced" db:"bounced"`
	ReplyCategory ReplyCategory `json:"reply_category" db:"reply_category"`
	SentAt        *time.Time    `json:"sent_at" db:"sent_at"`
	OpenedAt      *time.Time    `json:"opened_at" db:"opened_at"`
	RepliedAt     *time.Time    `json:"replied_at" db:"replied_at"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" db:"updated_at"`
}
