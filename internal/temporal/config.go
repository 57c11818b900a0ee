package temporal

import "time"

// TaskQueueName is the name of the Temporal task queue used for sync
// continuation workflows.
const TaskQueueName = "SALESCOPE_SYNC"

// SyncWorkflowIDPrefix is the prefix for continuation workflow IDs. The
// suffix is the data source id, so at most one continuation chain can run
// per data source.
const SyncWorkflowIDPrefix = "sync-"

// SyncWorkflowName must match the registered workflow function name.
const SyncWorkflowName = "SyncContinuationWorkflow"

// DefaultBatchTimeout bounds one batch activity. It must exceed the
// orchestrator's wall-clock time budget with margin for checkpointing.
const DefaultBatchTimeout = 5 * time.Minute

// MaxBatches caps a continuation chain as a circuit breaker against a
// cursor that never advances.
const MaxBatches = 200

// SyncParams is the input to the continuation workflow and the batch
// activity.
type SyncParams struct {
	TenantID     string
	ClientID     string
	EngagementID string
	DataSourceID string
	BatchNumber  int
	Phase        string
}

// BatchResult reports the outcome of one batch activity.
type BatchResult struct {
	Complete   bool
	NextBatch  int
	Phase      string
	Processed  int
	TotalUnits int
}
