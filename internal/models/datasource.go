package models

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// SyncStatus is the user-visible state of a data source's last sync.
type SyncStatus string

const (
	SyncStatusNever   SyncStatus = "never"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusPartial SyncStatus = "partial"
	SyncStatusError   SyncStatus = "error"
)

// Phase is a named stage of the sync pipeline. Phases execute strictly in
// declaration order.
type Phase string

const (
	PhaseAccounts    Phase = "accounts"
	PhaseGlobalStats Phase = "global_stats"
	PhaseSequences   Phase = "sequences"
	PhaseDone        Phase = "done"
)

// NextPhase returns the phase that follows p. PhaseDone is terminal.
func NextPhase(p Phase) Phase {
	switch p {
	case PhaseAccounts:
		return PhaseGlobalStats
	case PhaseGlobalStats:
		return PhaseSequences
	default:
		return PhaseDone
	}
}

// CheckpointVersion guards against silent schema drift in persisted
// resumption state. A checkpoint with an unknown version is discarded and
// the run starts from the first phase.
const CheckpointVersion = 1

// Checkpoint is the typed resumption state persisted on the DataSource row
// between batches. It replaces free-form configuration JSON so reads and
// writes cannot drift apart.
type Checkpoint struct {
	Version     int       `json:"version"`
	Phase       Phase     `json:"phase"`
	CampaignIDs []string  `json:"campaign_ids,omitempty"`
	CursorIndex int       `json:"cursor_index"`
	TotalUnits  int       `json:"total_units"`
	BatchNumber int       `json:"batch_number"`
	HeartbeatAt time.Time `json:"heartbeat_at"`
}

// NewCheckpoint returns the state for batch 1 of a fresh run.
func NewCheckpoint() *Checkpoint {
	return &Checkpoint{
		Version:     CheckpointVersion,
		Phase:       PhaseAccounts,
		BatchNumber: 1,
		HeartbeatAt: time.Now().UTC(),
	}
}

// DecodeCheckpoint parses persisted resumption state. A nil or empty blob
// and a version mismatch both yield (nil, nil): the caller starts fresh.
func DecodeCheckpoint(raw []byte) (*Checkpoint, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, errors.Wrap(err, "failed to decode checkpoint")
	}
	if cp.Version != CheckpointVersion {
		return nil, nil
	}
	return &cp, nil
}

// Encode serializes the checkpoint for storage.
func (c *Checkpoint) Encode() ([]byte, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode checkpoint")
	}
	return raw, nil
}

// DataSource is one external platform connection per tenant-engagement
// pair. The Checkpoint blob carries resumption state while a sync is in
// flight and is cleared on successful completion.
type DataSource struct {
	ID            string          `json:"id" db:"id"`
	TenantID      string          `json:"tenant_id" db:"tenant_id"`
	EngagementID  string          `json:"engagement_id" db:"engagement_id"`
	Platform      string          `json:"platform" db:"platform"` // enum: smartreach, dialer
	Name          string          `json:"name" db:"name"`
	APIKey        string          `json:"-" db:"api_key"`
	BaseURL       string          `json:"base_url" db:"base_url"`
	LastSyncState SyncStatus      `json:"last_sync_state" db:"last_sync_state"`
	LastSyncedAt  *time.Time      `json:"last_synced_at" db:"last_synced_at"`
	Checkpoint    json.RawMessage `json:"-" db:"checkpoint"`
	GlobalStats   json.RawMessage `json:"global_stats,omitempty" db:"global_stats"`
	ClaimedUntil  *time.Time      `json:"-" db:"claimed_until"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}
