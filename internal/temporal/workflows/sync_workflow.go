package workflows

import (
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/salescope/salescope-api/internal/temporal"
	"github.com/salescope/salescope-api/internal/temporal/activities"
)

// SyncContinuationWorkflow resumes a partially finished sync run, one
// time-budgeted batch per activity, until the orchestrator reports
// completion. Durability comes from Temporal: the chain survives worker
// restarts, unlike a process re-invoking itself over HTTP.
func SyncContinuationWorkflow(ctx workflow.Context, params temporal.SyncParams) error {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: temporal.DefaultBatchTimeout,
		HeartbeatTimeout:    30 * time.Second,
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	logger := workflow.GetLogger(ctx)
	logger.Info("Starting sync continuation", "DataSourceID", params.DataSourceID, "Batch", params.BatchNumber)

	// The actual implementation is on the worker; this is just a proxy.
	var a *activities.Activities

	for batch := 0; batch < temporal.MaxBatches; batch++ {
		var result temporal.BatchResult
		err := workflow.ExecuteActivity(ctx, a.RunSyncBatchActivity, params).Get(ctx, &result)
		if err != nil {
			logger.Error("Sync batch failed, abandoning continuation.", "error", err)
			return err
		}
		if result.Complete {
			logger.Info("Sync continuation completed.", "DataSourceID", params.DataSourceID, "Batches", result.NextBatch)
			return nil
		}
		params.BatchNumber = result.NextBatch
		params.Phase = result.Phase
	}

	logger.Warn("Sync continuation hit the batch cap without completing.", "DataSourceID", params.DataSourceID)
	return nil
}
