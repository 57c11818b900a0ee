package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/salescope/salescope-api/internal/models"
	"github.com/salescope/salescope-api/internal/platform"
	"github.com/salescope/salescope-api/internal/repository"
)

// PlatformAPI is the slice of the outreach platform client the
// orchestrator consumes.
type PlatformAPI interface {
	ListAccounts(ctx context.Context) ([]platform.Account, error)
	GlobalStats(ctx context.Context) (*platform.GlobalStats, error)
	ListCampaigns(ctx context.Context) ([]platform.CampaignSummary, error)
	GetCampaign(ctx context.Context, externalID string) (*platform.CampaignSummary, error)
	ListVariants(ctx context.Context, externalID string) ([]platform.VariantPayload, error)
	ListLeads(ctx context.Context, externalID string) ([]platform.LeadPayload, error)
	ListEvents(ctx context.Context, externalID string) ([]platform.EventPayload, error)
}

// ClientFactory builds a platform client from a data source's stored
// credentials. Each data source carries its own API key and base URL.
type ClientFactory func(ds models.DataSource) PlatformAPI

// ContinuationParams identify the batch a continuation must resume.
type ContinuationParams struct {
	TenantID     string
	ClientID     string
	EngagementID string
	DataSourceID string
	NextBatch    int
	Phase        models.Phase
}

// ContinuationScheduler hands a partially finished run off for asynchronous
// resumption. Implementations must be durable: a scheduled continuation
// survives this process exiting.
type ContinuationScheduler interface {
	ScheduleNext(ctx context.Context, p ContinuationParams) error
}

// Config bounds a single batch.
type Config struct {
	// TimeBudget is the wall-clock budget per batch, substantially shorter
	// than the host's hard limit to leave margin for checkpointing.
	TimeBudget time.Duration
	// CheckpointEvery is the number of campaigns between heartbeats.
	CheckpointEvery int
	// LeaseDuration is how long a batch may hold the data source claim.
	LeaseDuration time.Duration
}

func (c Config) withDefaults() Config {
	if c.TimeBudget <= 0 {
		c.TimeBudget = 50 * time.Second
	}
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = 5
	}
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = 2 * c.TimeBudget
	}
	return c
}

// Request is one sync trigger: externally initiated (batch 1) or an
// internal continuation resuming from a checkpoint.
type Request struct {
	TenantID             string
	ClientID             string
	EngagementID         string
	DataSourceID         string
	Reset                bool
	BatchNumber          int
	AutoContinue         bool
	InternalContinuation bool
	CurrentPhase         string
}

// Result is the trigger response payload.
type Result struct {
	Complete    bool
	Progress    models.Counters
	Current     string
	Total       int
	Phase       models.Phase
	BatchNumber int
	Message     string
}

// Orchestrator drives a sync run through its ordered phases, checkpointing
// cursor state so any batch can be resumed after a crash or time-budget
// handoff. All writes go through idempotent upserts, so re-processing a
// campaign produces the same end state, not duplicates.
type Orchestrator struct {
	clients   ClientFactory
	sources   repository.DataSourceRepository
	progress  repository.ProgressRepository
	entities  repository.EntityRepository
	agg       *Aggregator
	scheduler ContinuationScheduler
	cfg       Config
	logger    zerolog.Logger

	now func() time.Time
}

func NewOrchestrator(
	clients ClientFactory,
	sources repository.DataSourceRepository,
	progress repository.ProgressRepository,
	entities repository.EntityRepository,
	agg *Aggregator,
	scheduler ContinuationScheduler,
	cfg Config,
	logger zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		clients:   clients,
		sources:   sources,
		progress:  progress,
		entities:  entities,
		agg:       agg,
		scheduler: scheduler,
		cfg:       cfg.withDefaults(),
		logger:    logger.With().Str("component", "sync").Logger(),
		now:       time.Now,
	}
}

// Run executes one batch of a sync run. It returns a partial Result when
// the time budget is exhausted mid-phase; the continuation scheduler then
// owns resumption.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	ds, err := o.sources.Get(req.TenantID, req.DataSourceID)
	if err != nil {
		return Result{}, err
	}

	until := o.now().Add(o.cfg.LeaseDuration)
	if req.InternalContinuation {
		// The chain already owns the source; just extend the claim. If the
		// claim lapsed between batches, contend for it again rather than
		// stealing it from whoever may have taken it in the meantime.
		if err := o.sources.RenewLease(ds.ID, until); err != nil {
			if !errors.Is(err, repository.ErrLeaseLost) {
				return Result{}, errors.Wrap(err, "failed to renew sync lease")
			}
			if err := o.sources.AcquireLease(ds.ID, until); err != nil {
				return Result{}, err
			}
		}
	} else {
		if err := o.sources.AcquireLease(ds.ID, until); err != nil {
			return Result{}, err
		}
	}

	if req.Reset {
		o.logger.Info().Str("data_source_id", ds.ID).Msg("Resetting data source before sync")
		if err := o.sources.ResetData(ds.ID); err != nil {
			o.sources.ReleaseLease(ds.ID)
			return Result{}, errors.Wrap(err, "failed to reset data source")
		}
	}

	cp, err := models.DecodeCheckpoint(ds.Checkpoint)
	if err != nil {
		o.logger.Warn().Err(err).Str("data_source_id", ds.ID).Msg("Discarding unreadable checkpoint")
	}
	if cp == nil || req.Reset {
		cp = models.NewCheckpoint()
	}
	if req.BatchNumber > cp.BatchNumber {
		cp.BatchNumber = req.BatchNumber
	}

	prog, err := o.ensureProgress(req, cp)
	if err != nil {
		o.sources.ReleaseLease(ds.ID)
		return Result{}, err
	}

	client := o.clients(ds)
	deadline := o.now().Add(o.cfg.TimeBudget)
	o.logger.Info().
		Str("data_source_id", ds.ID).
		Int("batch", cp.BatchNumber).
		Str("phase", string(cp.Phase)).
		Int("cursor", cp.CursorIndex).
		Msg("Starting sync batch")

	for cp.Phase != models.PhaseDone {
		if !o.now().Before(deadline) {
			return o.handoff(ctx, req, ds, cp, prog)
		}

		switch cp.Phase {
		case models.PhaseAccounts:
			if err := o.syncAccounts(ctx, client, ds, prog); err != nil {
				o.recordUnitError(prog.ID, "accounts", err)
			}
			cp.Phase = models.NextPhase(cp.Phase)

		case models.PhaseGlobalStats:
			if err := o.syncGlobalStats(ctx, client, ds, prog); err != nil {
				o.recordUnitError(prog.ID, "global_stats", err)
			}
			cp.Phase = models.NextPhase(cp.Phase)

		case models.PhaseSequences:
			done, err := o.syncSequences(ctx, client, ds, cp, prog, deadline)
			if err != nil {
				return o.fail(ds, cp, prog, err)
			}
			if !done {
				return o.handoff(ctx, req, ds, cp, prog)
			}
			cp.Phase = models.NextPhase(cp.Phase)
		}
	}

	return o.finalize(ds, cp, prog)
}

// ensureProgress creates the running row on batch 1 and reattaches to it on
// continuations. A missing running row on a continuation is tolerated (the
// prior batch may have crashed before its heartbeat): a new row is started.
func (o *Orchestrator) ensureProgress(req Request, cp *models.Checkpoint) (models.SyncProgress, error) {
	if cp.BatchNumber <= 1 && !req.InternalContinuation {
		return o.progress.Start(req.TenantID, req.DataSourceID)
	}
	prog, err := o.progress.GetRunning(req.DataSourceID)
	if errors.Is(err, repository.ErrNotFound) {
		return o.progress.Start(req.TenantID, req.DataSourceID)
	}
	return prog, err
}

func (o *Orchestrator) syncAccounts(ctx context.Context, client PlatformAPI, ds models.DataSource, prog models.SyncProgress) error {
	accounts, err := client.ListAccounts(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list sender accounts")
	}
	for _, acct := range accounts {
		_, err := o.entities.UpsertSenderAccount(models.SenderAccount{
			DataSourceID: ds.ID,
			ExternalID:   acct.ID,
			Email:        acct.Email,
			DisplayName:  acct.DisplayName,
			DailyLimit:   acct.DailyLimit,
			WarmupActive: acct.WarmupActive,
		})
		if err != nil {
			o.recordUnitError(prog.ID, "account "+acct.Email, err)
		}
	}
	return o.progress.Heartbeat(prog.ID, models.PhaseAccounts, len(accounts), len(accounts), "")
}

func (o *Orchestrator) syncGlobalStats(ctx context.Context, client PlatformAPI, ds models.DataSource, prog models.SyncProgress) error {
	stats, err := client.GlobalStats(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to fetch global stats")
	}
	if stats == nil {
		return nil
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return errors.Wrap(err, "failed to encode global stats")
	}
	if err := o.sources.SetGlobalStats(ds.ID, raw); err != nil {
		return errors.Wrap(err, "failed to store global stats")
	}
	return o.progress.Heartbeat(prog.ID, models.PhaseGlobalStats, 1, 1, "")
}

// syncSequences walks the cached campaign list from the checkpoint cursor.
// The list is fetched once per run and persisted so continuations do not
// re-list on every batch. Returns done=false when the time budget runs out
// with campaigns remaining.
func (o *Orchestrator) syncSequences(ctx context.Context, client PlatformAPI, ds models.DataSource, cp *models.Checkpoint, prog models.SyncProgress, deadline time.Time) (bool, error) {
	if len(cp.CampaignIDs) == 0 {
		summaries, err := client.ListCampaigns(ctx)
		if err != nil {
			return false, errors.Wrap(err, "failed to list campaigns")
		}
		cp.CampaignIDs = make([]string, 0, len(summaries))
		for _, s := range summaries {
			cp.CampaignIDs = append(cp.CampaignIDs, s.ID)
		}
		cp.CursorIndex = 0
		cp.TotalUnits = len(cp.CampaignIDs)
		if err := o.heartbeat(ds, cp, prog, ""); err != nil {
			return false, err
		}
	}

	for cp.CursorIndex < len(cp.CampaignIDs) {
		if !o.now().Before(deadline) {
			return false, nil
		}

		externalID := cp.CampaignIDs[cp.CursorIndex]
		if err := o.syncCampaign(ctx, client, ds, externalID); err != nil {
			o.recordUnitError(prog.ID, "campaign "+externalID, err)
		}
		cp.CursorIndex++

		// Bound the re-work lost to an ungraceful crash between heartbeats.
		if cp.CursorIndex%o.cfg.CheckpointEvery == 0 {
			if err := o.heartbeat(ds, cp, prog, externalID); err != nil {
				return false, err
			}
		}
	}

	return true, nil
}

func (o *Orchestrator) heartbeat(ds models.DataSource, cp *models.Checkpoint, prog models.SyncProgress, currentUnit string) error {
	cp.HeartbeatAt = o.now().UTC()
	if err := o.sources.SaveCheckpoint(ds.ID, cp, models.SyncStatusSyncing); err != nil {
		return errors.Wrap(err, "failed to save checkpoint")
	}
	return o.progress.Heartbeat(prog.ID, cp.Phase, cp.TotalUnits, cp.CursorIndex, currentUnit)
}

func (o *Orchestrator) recordUnitError(progressID, unit string, err error) {
	// Per-unit failures never abort the run: log, record, move on.
	o.logger.Warn().Err(err).Str("unit", unit).Msg("Sync unit failed, skipping")
	if appendErr := o.progress.AppendError(progressID, fmt.Sprintf("%s: %v", unit, err)); appendErr != nil {
		o.logger.Error().Err(appendErr).Msg("Failed to record sync error")
	}
}

// handoff persists the cursor, marks the source partial, and schedules the
// continuation. A scheduling failure is not a sync failure: the run stays
// partial and resumable from its last checkpoint.
func (o *Orchestrator) handoff(ctx context.Context, req Request, ds models.DataSource, cp *models.Checkpoint, prog models.SyncProgress) (Result, error) {
	nextBatch := cp.BatchNumber + 1
	cp.BatchNumber = nextBatch
	cp.HeartbeatAt = o.now().UTC()
	if err := o.sources.SaveCheckpoint(ds.ID, cp, models.SyncStatusPartial); err != nil {
		return Result{}, errors.Wrap(err, "failed to persist handoff checkpoint")
	}
	if err := o.progress.Heartbeat(prog.ID, cp.Phase, cp.TotalUnits, cp.CursorIndex, ""); err != nil {
		o.logger.Error().Err(err).Msg("Failed to heartbeat progress at handoff")
	}

	if req.AutoContinue && o.scheduler != nil {
		err := o.scheduler.ScheduleNext(ctx, ContinuationParams{
			TenantID:     req.TenantID,
			ClientID:     req.ClientID,
			EngagementID: req.EngagementID,
			DataSourceID: ds.ID,
			NextBatch:    nextBatch,
			Phase:        cp.Phase,
		})
		if err != nil {
			// The run is left partial for a manual or scheduled retry. The
			// lease must not outlive the dead chain, or the retry gets
			// rejected until it expires.
			o.logger.Error().Err(err).Str("data_source_id", ds.ID).
				Msg("Failed to schedule continuation, run left partial")
			if relErr := o.sources.ReleaseLease(ds.ID); relErr != nil {
				o.logger.Error().Err(relErr).Msg("Failed to release lease after scheduling failure")
			}
		}
	}

	counters := models.Counters{TotalUnits: cp.TotalUnits, Processed: cp.CursorIndex}
	if latest, err := o.progress.GetRunning(ds.ID); err == nil {
		counters = latest.Counters()
	}

	o.logger.Info().
		Str("data_source_id", ds.ID).
		Int("processed", cp.CursorIndex).
		Int("total", cp.TotalUnits).
		Int("next_batch", nextBatch).
		Msg("Time budget exhausted, handing off")

	return Result{
		Complete:    false,
		Progress:    counters,
		Current:     fmt.Sprintf("%d/%d", cp.CursorIndex, cp.TotalUnits),
		Total:       cp.TotalUnits,
		Phase:       cp.Phase,
		BatchNumber: nextBatch,
		Message:     "Sync in progress, continuation scheduled",
	}, nil
}

func (o *Orchestrator) finalize(ds models.DataSource, cp *models.Checkpoint, prog models.SyncProgress) (Result, error) {
	// Final whole-source pass keeps aggregates consistent even if a
	// campaign's recompute was skipped by a per-unit error earlier.
	if err := o.agg.RecomputeDataSource(ds.ID); err != nil {
		return o.fail(ds, cp, prog, errors.Wrap(err, "final aggregation failed"))
	}

	if err := o.sources.ClearCheckpoint(ds.ID, models.SyncStatusSuccess); err != nil {
		return Result{}, errors.Wrap(err, "failed to clear checkpoint")
	}
	if err := o.sources.ReleaseLease(ds.ID); err != nil {
		o.logger.Error().Err(err).Msg("Failed to release sync lease")
	}
	if err := o.progress.Finish(prog.ID, models.ProgressCompleted); err != nil {
		return Result{}, errors.Wrap(err, "failed to complete progress")
	}

	counters := models.Counters{TotalUnits: cp.TotalUnits, Processed: cp.CursorIndex}
	if latest, err := o.progress.GetLatest(ds.ID); err == nil {
		counters = latest.Counters()
	}

	o.logger.Info().
		Str("data_source_id", ds.ID).
		Int("campaigns", cp.TotalUnits).
		Int("batches", cp.BatchNumber).
		Msg("Sync run completed")

	return Result{
		Complete:    true,
		Progress:    counters,
		Phase:       models.PhaseDone,
		BatchNumber: cp.BatchNumber,
		Message:     "Sync completed",
	}, nil
}

func (o *Orchestrator) fail(ds models.DataSource, cp *models.Checkpoint, prog models.SyncProgress, cause error) (Result, error) {
	if err := o.sources.SaveCheckpoint(ds.ID, cp, models.SyncStatusError); err != nil {
		o.logger.Error().Err(err).Msg("Failed to persist checkpoint on failure")
	}
	if err := o.sources.ReleaseLease(ds.ID); err != nil {
		o.logger.Error().Err(err).Msg("Failed to release sync lease")
	}
	if err := o.progress.AppendError(prog.ID, cause.Error()); err != nil {
		o.logger.Error().Err(err).Msg("Failed to record failure")
	}
	if err := o.progress.Finish(prog.ID, models.ProgressError); err != nil {
		o.logger.Error().Err(err).Msg("Failed to mark progress errored")
	}
	return Result{}, cause
}
