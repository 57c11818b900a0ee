package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/salescope/salescope-api/internal/models"
)

// CampaignTotals is the derived roll-up written back onto a campaign row.
type CampaignTotals struct {
	Sent            int
	Opened          int
	Replied         int
	Bounced         int
	PositiveReplies int
	OpenRate        float64
	ReplyRate       float64
}

// StepTotals is the derived roll-up for one variant step.
type StepTotals struct {
	Sent    int
	Opened  int
	Replied int
	Bounced int
}

// DriftRow reports one campaign whose aggregate disagrees with its raw rows.
type DriftRow struct {
	CampaignID string
	Name       string
	Aggregate  int
	Raw        int
}

// MetricsRepository persists derived aggregates and serves the reconciler's
// read-only consistency checks. The aggregator overwrites, never
// increments: all writes here replace previous derived state wholesale.
type MetricsRepository interface {
	UpdateCampaignTotals(campaignID string, t CampaignTotals) error
	ZeroVariantMetrics(campaignID string) error
	UpdateVariantMetrics(campaignID string, stepNumber int, t StepTotals) error
	ReplaceDailyMetrics(campaignID string, metrics []models.DailyMetric) error
	UpsertEnrollmentSnapshot(campaignID string, day time.Time, enrolled int) error

	CampaignDrift(tenantID string) ([]DriftRow, error)
	DailyRollupDrift(tenantID string) ([]DriftRow, error)
	CountUncategorizedReplies(tenantID string) (int, error)
	StaleCampaigns(tenantID string, olderThan time.Time) ([]string, error)

	InsertReport(report models.ReconcileReport) (models.ReconcileReport, error)
	ListReports(tenantID string, limit int) ([]models.ReconcileReport, error)
}

type metricsRepository struct {
	db *sql.DB
}

func NewMetricsRepository(db *sql.DB) MetricsRepository {
	return &metricsRepository{db: db}
}

func (r *metricsRepository) UpdateCampaignTotals(campaignID string, t CampaignTotals) error {
	query := `
		UPDATE tenant.campaigns
		SET total_sent = $2,
		    total_opened = $3,
		    total_replied = $4,
		    total_bounced = $5,
		    positive_replies = $6,
		    open_rate = $7,
		    reply_rate = $8,
		    updated_at = now()
		WHERE id = $1`
	_, err := r.db.Exec(query, campaignID, t.Sent, t.Opened, t.Replied, t.Bounced, t.PositiveReplies, t.OpenRate, t.ReplyRate)
	return err
}

func (r *metricsRepository) ZeroVariantMetrics(campaignID string) error {
	query := `
		UPDATE tenant.campaign_variants
		SET sent = 0, opened = 0, replied = 0, bounced = 0, updated_at = now()
		WHERE campaign_id = $1`
	_, err := r.db.Exec(query, campaignID)
	return err
}

func (r *metricsRepository) UpdateVariantMetrics(campaignID string, stepNumber int, t StepTotals) error {
	query := `
		UPDATE tenant.campaign_variants
		SET sent = $3, opened = $4, replied = $5, bounced = $6, updated_at = now()
		WHERE campaign_id = $1 AND step_number = $2`
	_, err := r.db.Exec(query, campaignID, stepNumber, t.Sent, t.Opened, t.Replied, t.Bounced)
	return err
}

// ReplaceDailyMetrics swaps out the campaign's daily rows in one
// transaction so a concurrent reader never sees a half-written recompute.
func (r *metricsRepository) ReplaceDailyMetrics(campaignID string, metrics []models.DailyMetric) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin daily metrics transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM tenant.daily_metrics WHERE campaign_id = $1`, campaignID); err != nil {
		return err
	}

	for _, m := range metrics {
		_, err := tx.Exec(
			`INSERT INTO tenant.daily_metrics (campaign_id, day, emails_sent, emails_opened, emails_replied, positive_replies)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			campaignID, m.Day, m.EmailsSent, m.EmailsOpened, m.EmailsReplied, m.PositiveReplies,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *metricsRepository) UpsertEnrollmentSnapshot(campaignID string, day time.Time, enrolled int) error {
	query := `
		INSERT INTO tenant.enrollment_snapshots (campaign_id, day, enrolled)
		VALUES ($1, $2, $3)
		ON CONFLICT (campaign_id, day) DO UPDATE SET enrolled = EXCLUDED.enrolled`
	_, err := r.db.Exec(query, campaignID, day, enrolled)
	return err
}

func (r *metricsRepository) CampaignDrift(tenantID string) ([]DriftRow, error) {
	query := `
		SELECT c.id, c.name, c.total_sent, COUNT(a.id) FILTER (WHERE a.sent)
		FROM tenant.campaigns c
		LEFT JOIN tenant.activities a ON a.campaign_id = c.id
		WHERE c.tenant_id = $1
		GROUP BY c.id, c.name, c.total_sent
		HAVING c.total_sent <> COUNT(a.id) FILTER (WHERE a.sent)`
	return r.queryDrift(query, tenantID)
}

func (r *metricsRepository) DailyRollupDrift(tenantID string) ([]DriftRow, error) {
	query := `
		SELECT c.id, c.name,
		       COALESCE((SELECT SUM(dm.emails_sent) FROM tenant.daily_metrics dm WHERE dm.campaign_id = c.id), 0),
		       COUNT(a.id) FILTER (WHERE a.sent)
		FROM tenant.campaigns c
		LEFT JOIN tenant.activities a ON a.campaign_id = c.id
		WHERE c.tenant_id = $1
		GROUP BY c.id, c.name
		HAVING COALESCE((SELECT SUM(dm.emails_sent) FROM tenant.daily_metrics dm WHERE dm.campaign_id = c.id), 0)
		       <> COUNT(a.id) FILTER (WHERE a.sent)`
	return r.queryDrift(query, tenantID)
}

func (r *metricsRepository) queryDrift(query string, args ...interface{}) ([]DriftRow, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drift []DriftRow
	for rows.Next() {
		var d DriftRow
		if err := rows.Scan(&d.CampaignID, &d.Name, &d.Aggregate, &d.Raw); err != nil {
			return nil, err
		}
		drift = append(drift, d)
	}
	return drift, rows.Err()
}

func (r *metricsRepository) CountUncategorizedReplies(tenantID string) (int, error) {
	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM tenant.activities WHERE tenant_id = $1 AND replied AND reply_category = ''`,
		tenantID,
	).Scan(&count)
	return count, err
}

func (r *metricsRepository) StaleCampaigns(tenantID string, olderThan time.Time) ([]string, error) {
	rows, err := r.db.Query(
		`SELECT name FROM tenant.campaigns
		 WHERE tenant_id = $1 AND (last_synced_at IS NULL OR last_synced_at < $2)
		 ORDER BY last_synced_at NULLS FIRST`,
		tenantID, olderThan,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *metricsRepository) InsertReport(report models.ReconcileReport) (models.ReconcileReport, error) {
	query := `
		INSERT INTO tenant.reconcile_reports (tenant_id, issues, healthy)
		VALUES ($1, $2, $3)
		RETURNING id, ran_at`
	err := r.db.QueryRow(query, report.TenantID, pq.Array(report.Issues), report.Healthy).
		Scan(&report.ID, &report.RanAt)
	return report, err
}

func (r *metricsRepository) ListReports(tenantID string, limit int) ([]models.ReconcileReport, error) {
	rows, err := r.db.Query(
		`SELECT id, tenant_id, issues, healthy, ran_at
		 FROM tenant.reconcile_reports
		 WHERE tenant_id = $1
		 ORDER BY ran_at DESC
		 LIMIT $2`,
		tenantID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []models.ReconcileReport
	for rows.Next() {
		var report models.ReconcileReport
		var issues pq.StringArray
		if err := rows.Scan(&report.ID, &report.TenantID, &issues, &report.Healthy, &report.RanAt); err != nil {
			return nil, err
		}
		report.Issues = issues
		reports = append(reports, report)
	}
	return reports, rows.Err()
}
