package reconcile

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/salescope/salescope-api/internal/models"
	"github.com/salescope/salescope-api/internal/repository"
)

// Recomputer re-derives aggregates for drifted campaigns. Satisfied by
// sync.Aggregator.
type Recomputer interface {
	Recompute(campaignID string) error
}

type Config struct {
	// FreshnessThreshold flags campaigns whose last_synced_at is older.
	FreshnessThreshold time.Duration
	// Tolerance is the allowed absolute difference between a rollup sum
	// and its source-of-truth count before it is reported as drift.
	Tolerance int
}

// Reconciler cross-checks aggregate tables against raw Activity rows on a
// schedule. It is strictly read-only over the data it checks; the only
// side effect is triggering an aggregate recompute for drifted campaigns.
type Reconciler struct {
	metrics repository.MetricsRepository
	recomp  Recomputer
	cfg     Config
	logger  zerolog.Logger
	now     func() time.Time
}

func New(metrics repository.MetricsRepository, recomp Recomputer, cfg Config, logger zerolog.Logger) *Reconciler {
	if cfg.FreshnessThreshold <= 0 {
		cfg.FreshnessThreshold = 24 * time.Hour
	}
	return &Reconciler{
		metrics: metrics,
		recomp:  recomp,
		cfg:     cfg,
		logger:  logger.With().Str("component", "reconciler").Logger(),
		now:     time.Now,
	}
}

// Run performs one reconciliation pass and persists the report.
func (r *Reconciler) Run(tenantID string) (models.ReconcileReport, error) {
	var issues []string
	var drifted []string

	campaignDrift, err := r.metrics.CampaignDrift(tenantID)
	if err != nil {
		return models.ReconcileReport{}, errors.Wrap(err, "campaign drift check failed")
	}
	for _, d := range campaignDrift {
		issues = append(issues, fmt.Sprintf(
			"campaign %q total_sent=%d disagrees with %d raw sent activities", d.Name, d.Aggregate, d.Raw))
		drifted = append(drifted, d.CampaignID)
	}

	rollupDrift, err := r.metrics.DailyRollupDrift(tenantID)
	if err != nil {
		return models.ReconcileReport{}, errors.Wrap(err, "daily rollup drift check failed")
	}
	for _, d := range rollupDrift {
		if abs(d.Aggregate-d.Raw) <= r.cfg.Tolerance {
			continue
		}
		issues = append(issues, fmt.Sprintf(
			"campaign %q daily rollup sum=%d outside tolerance of %d raw sent activities", d.Name, d.Aggregate, d.Raw))
		drifted = append(drifted, d.CampaignID)
	}

	uncategorized, err := r.metrics.CountUncategorizedReplies(tenantID)
	if err != nil {
		return models.ReconcileReport{}, errors.Wrap(err, "categorization check failed")
	}
	if uncategorized > 0 {
		issues = append(issues, fmt.Sprintf("%d replied activities missing a reply category", uncategorized))
	}

	stale, err := r.metrics.StaleCampaigns(tenantID, r.now().Add(-r.cfg.FreshnessThreshold))
	if err != nil {
		return models.ReconcileReport{}, errors.Wrap(err, "staleness check failed")
	}
	for _, name := range stale {
		issues = append(issues, fmt.Sprintf("campaign %q has not synced within %s", name, r.cfg.FreshnessThreshold))
	}

	// Repair is a recompute, never a hand edit of the checked tables.
	for _, campaignID := range dedupe(drifted) {
		if err := r.recomp.Recompute(campaignID); err != nil {
			r.logger.Error().Err(err).Str("campaign_id", campaignID).Msg("Drift recompute failed")
			issues = append(issues, fmt.Sprintf("recompute failed for campaign %s: %v", campaignID, err))
		}
	}

	report := models.ReconcileReport{
		TenantID: tenantID,
		Issues:   issues,
		Healthy:  len(issues) == 0,
	}
	saved, err := r.metrics.InsertReport(report)
	if err != nil {
		return report, errors.Wrap(err, "failed to persist reconcile report")
	}

	r.logger.Info().Int("issues", len(issues)).Bool("healthy", saved.Healthy).Msg("Reconciliation pass finished")
	return saved, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
