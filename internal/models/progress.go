package models

import "time"

// ProgressStatus is the lifecycle state of one sync run.
type ProgressStatus string

const (
	ProgressRunning   ProgressStatus = "running"
	ProgressCompleted ProgressStatus = "completed"
	ProgressError     ProgressStatus = "error"
)

// SyncProgress is one row per sync run. It is created at the start of
// batch 1, updated on every heartbeat and phase transition, and marked
// terminal at run end. At most one running row exists per data source.
type SyncProgress struct {
	ID           string         `json:"id" db:"id"`
	TenantID     string         `json:"tenant_id" db:"tenant_id"`
	DataSourceID string         `json:"data_source_id" db:"data_source_id"`
	Status       ProgressStatus `json:"status" db:"status"`
	Phase        Phase          `json:"phase" db:"phase"`
	TotalUnits   int            `json:"total_units" db:"total_units"`
	Processed    int            `json:"processed" db:"processed"`
	CurrentUnit  string         `json:"current_unit" db:"current_unit"`
	Errors       []string       `json:"errors" db:"errors"`
	StartedAt    time.Time      `json:"started_at" db:"started_at"`
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"`
	CompletedAt  *time.Time     `json:"completed_at" db:"completed_at"`
}

// Counters is the progress summary embedded in trigger responses.
type Counters struct {
	TotalUnits int `json:"total_units"`
	Processed  int `json:"processed"`
	Errors     int `json:"errors"`
}

func (p *SyncProgress) Counters() Counters {
	return Counters{
		TotalUnits: p.TotalUnits,
		Processed:  p.Processed,
		Errors:     len(p.Errors),
	}
}
