package sync

import (
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/salescope/salescope-api/internal/models"
	"github.com/salescope/salescope-api/internal/repository"
)

// Aggregator is the single writer of derived metrics. It recomputes
// campaign totals, per-step variant metrics, and daily rollups from raw
// Activity rows and overwrites the previous values wholesale. Recomputing
// from scratch, rather than incrementing counters, is what makes re-running
// a sync produce correct totals without double-counting.
type Aggregator struct {
	entities repository.EntityRepository
	metrics  repository.MetricsRepository
	logger   zerolog.Logger
}

func NewAggregator(entities repository.EntityRepository, metrics repository.MetricsRepository, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		entities: entities,
		metrics:  metrics,
		logger:   logger.With().Str("component", "aggregator").Logger(),
	}
}

// Recompute rebuilds every derived value for one campaign from its
// Activity rows.
func (a *Aggregator) Recompute(campaignID string) error {
	activities, err := a.entities.ListActivities(campaignID)
	if err != nil {
		return errors.Wrapf(err, "failed to list activities for campaign %s", campaignID)
	}

	var totals repository.CampaignTotals
	steps := make(map[int]repository.StepTotals)
	days := make(map[time.Time]*models.DailyMetric)
	firstTouch := make(map[string]time.Time) // contact id -> day of first sent touch

	for _, act := range activities {
		step := steps[act.StepNumber]
		if act.Sent {
			totals.Sent++
			step.Sent++
		}
		if act.Opened {
			totals.Opened++
			step.Opened++
		}
		if act.Replied {
			totals.Replied++
			step.Replied++
			if act.ReplyCategory == models.ReplyPositive {
				totals.PositiveReplies++
			}
		}
		if act.Bounced {
			totals.Bounced++
			step.Bounced++
		}
		steps[act.StepNumber] = step

		if act.SentAt == nil {
			continue
		}
		day := act.SentAt.UTC().Truncate(24 * time.Hour)
		metric, ok := days[day]
		if !ok {
			metric = &models.DailyMetric{CampaignID: campaignID, Day: day}
			days[day] = metric
		}
		if act.Sent {
			metric.EmailsSent++
		}
		if act.Opened {
			metric.EmailsOpened++
		}
		if act.Replied {
			metric.EmailsReplied++
			if act.ReplyCategory == models.ReplyPositive {
				metric.PositiveReplies++
			}
		}

		if act.Sent {
			if prev, ok := firstTouch[act.ContactID]; !ok || day.Before(prev) {
				firstTouch[act.ContactID] = day
			}
		}
	}

	if totals.Sent > 0 {
		totals.OpenRate = float64(totals.Opened) / float64(totals.Sent)
		totals.ReplyRate = float64(totals.Replied) / float64(totals.Sent)
	}

	if err := a.metrics.UpdateCampaignTotals(campaignID, totals); err != nil {
		return errors.Wrap(err, "failed to update campaign totals")
	}

	if err := a.metrics.ZeroVariantMetrics(campaignID); err != nil {
		return errors.Wrap(err, "failed to zero variant metrics")
	}
	for stepNumber, stepTotals := range steps {
		if err := a.metrics.UpdateVariantMetrics(campaignID, stepNumber, stepTotals); err != nil {
			return errors.Wrapf(err, "failed to update metrics for step %d", stepNumber)
		}
	}

	daily := make([]models.DailyMetric, 0, len(days))
	for _, metric := range days {
		daily = append(daily, *metric)
	}
	sort.Slice(daily, func(i, j int) bool { return daily[i].Day.Before(daily[j].Day) })
	if err := a.metrics.ReplaceDailyMetrics(campaignID, daily); err != nil {
		return errors.Wrap(err, "failed to replace daily metrics")
	}

	enrolledByDay := make(map[time.Time]int)
	for _, day := range firstTouch {
		enrolledByDay[day]++
	}
	for day, enrolled := range enrolledByDay {
		if err := a.metrics.UpsertEnrollmentSnapshot(campaignID, day, enrolled); err != nil {
			return errors.Wrap(err, "failed to upsert enrollment snapshot")
		}
	}

	a.logger.Debug().Str("campaign_id", campaignID).
		Int("sent", totals.Sent).Int("replied", totals.Replied).
		Msg("Recomputed campaign aggregates")
	return nil
}

// RecomputeDataSource re-runs the per-campaign recompute for every
// campaign of a data source. Used as the final pass at run end and by the
// reconciler's repair trigger.
func (a *Aggregator) RecomputeDataSource(dataSourceID string) error {
	campaignIDs, err := a.entities.ListCampaignIDs(dataSourceID)
	if err != nil {
		return errors.Wrap(err, "failed to list campaigns for recompute")
	}
	for _, id := range campaignIDs {
		if err := a.Recompute(id); err != nil {
			return err
		}
	}
	return nil
}
