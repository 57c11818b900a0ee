package activities

import (
	"context"

	"go.temporal.io/sdk/activity"

	"github.com/salescope/salescope-api/internal/sync"
	"github.com/salescope/salescope-api/internal/temporal"
)

// Activities hosts the batch activity. The orchestrator instance lives on
// the worker; the workflow only sees the proxy.
type Activities struct {
	Orchestrator *sync.Orchestrator
}

// RunSyncBatchActivity executes one time-budgeted sync batch. The
// orchestrator owns checkpointing; this activity only reports whether the
// run is complete so the workflow can decide to loop.
func (a *Activities) RunSyncBatchActivity(ctx context.Context, params temporal.SyncParams) (*temporal.BatchResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Running sync batch", "DataSourceID", params.DataSourceID, "Batch", params.BatchNumber)

	activity.RecordHeartbeat(ctx, params.BatchNumber)

	result, err := a.Orchestrator.Run(ctx, sync.Request{
		TenantID:             params.TenantID,
		ClientID:             params.ClientID,
		EngagementID:         params.EngagementID,
		DataSourceID:         params.DataSourceID,
		BatchNumber:          params.BatchNumber,
		InternalContinuation: true,
		// The workflow drives the loop; the orchestrator must not schedule
		// a second chain from inside it.
		AutoContinue: false,
		CurrentPhase: params.Phase,
	})
	if err != nil {
		logger.Error("Sync batch failed", "error", err)
		return nil, err
	}

	return &temporal.BatchResult{
		Complete:   result.Complete,
		NextBatch:  result.BatchNumber,
		Phase:      string(result.Phase),
		Processed:  result.Progress.Processed,
		TotalUnits: result.Progress.TotalUnits,
	}, nil
}
