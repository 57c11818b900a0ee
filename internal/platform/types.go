package platform

import "time"

// Payload shapes for the outreach platform API. Only the fields the sync
// engine consumes are modeled; everything else in the platform responses
// is ignored on decode.

type Account struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	DisplayName  string `json:"display_name"`
	DailyLimit   int    `json:"daily_limit"`
	WarmupActive bool   `json:"warmup_active"`
}

type GlobalStats struct {
	TotalCampaigns int `json:"total_campaigns"`
	TotalSent      int `json:"total_sent"`
	TotalReplied   int `json:"total_replied"`
}

type CampaignSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type VariantPayload struct {
	ID         string `json:"id"`
	StepNumber int    `json:"step_number"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
}

type LeadPayload struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Title         string `json:"title"`
	Phone         string `json:"phone"`
	CompanyName   string `json:"company_name"`
	CompanyDomain string `json:"company_domain"`
}

// EventPayload is one touch-lifecycle event for a lead at a step.
type EventPayload struct {
	LeadEmail     string     `json:"lead_email"`
	StepNumber    int        `json:"step_number"`
	Type          string     `json:"type"` // sent, opened, clicked, replied, bounced
	ReplyCategory string     `json:"reply_category,omitempty"`
	Timestamp     *time.Time `json:"timestamp,omitempty"`
}
