package temporal

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"go.temporal.io/api/serviceerror"
	tc "go.temporal.io/sdk/client"

	"github.com/salescope/salescope-api/internal/sync"
)

// Scheduler hands partial sync runs to a durable continuation workflow.
// The workflow ID is derived from the data source id, so a second chain
// for the same source cannot be started while one is running.
type Scheduler struct {
	client tc.Client
	logger zerolog.Logger
}

func NewScheduler(client tc.Client, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		client: client,
		logger: logger.With().Str("component", "continuation-scheduler").Logger(),
	}
}

var _ sync.ContinuationScheduler = (*Scheduler)(nil)

// ScheduleNext starts the continuation workflow. The start call itself is
// retried up to 3 times with exponential backoff (1s, 2s, 4s); a failure
// here must not corrupt run state, so the caller leaves the run partial
// when all retries fail.
func (s *Scheduler) ScheduleNext(ctx context.Context, p sync.ContinuationParams) error {
	params := SyncParams{
		TenantID:     p.TenantID,
		ClientID:     p.ClientID,
		EngagementID: p.EngagementID,
		DataSourceID: p.DataSourceID,
		BatchNumber:  p.NextBatch,
		Phase:        string(p.Phase),
	}
	options := tc.StartWorkflowOptions{
		ID:        SyncWorkflowIDPrefix + p.DataSourceID,
		TaskQueue: TaskQueueName,
	}

	backoff := retry.WithMaxRetries(3, retry.NewExponential(time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, err := s.client.ExecuteWorkflow(ctx, options, SyncWorkflowName, params)
		if err == nil {
			return nil
		}
		var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &alreadyStarted) {
			// A continuation chain is already driving this data source.
			s.logger.Info().Str("data_source_id", p.DataSourceID).
				Msg("Continuation workflow already running")
			return nil
		}
		return retry.RetryableError(err)
	})
	if err != nil {
		return errors.Wrap(err, "failed to schedule sync continuation")
	}

	s.logger.Info().
		Str("data_source_id", p.DataSourceID).
		Int("next_batch", p.NextBatch).
		Msg("Scheduled sync continuation")
	return nil
}
