package repository

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/salescope/salescope-api/internal/models"
)

// EntityRepository is the upsert layer: every write in every sync phase
// goes through a natural-key upsert, never a blind insert, so any unit of
// work can be safely re-run.
type EntityRepository interface {
	UpsertSenderAccount(acct models.SenderAccount) (string, error)

	// ResolveCompany looks up by domain first, then by name, and only
	// creates when neither matches. A unique-constraint race on create is
	// treated as "already exists".
	ResolveCompany(tenantID, engagementID, name, domain string) (string, error)

	// UpsertContact enriches on conflict: existing non-empty fields are
	// never blanked by an empty incoming value.
	UpsertContact(c models.Contact) (string, error)

	// UpsertCampaign writes descriptive fields only. Derived totals belong
	// to the aggregator.
	UpsertCampaign(c models.Campaign) (string, error)
	UpsertVariant(v models.Variant) (string, error)
	UpsertActivity(a models.Activity) (string, error)

	ListActivities(campaignID string) ([]models.Activity, error)
	ListCampaignIDs(dataSourceID string) ([]string, error)
}

type entityRepository struct {
	db *sql.DB
}

func NewEntityRepository(db *sql.DB) EntityRepository {
	return &entityRepository{db: db}
}

func (r *entityRepository) UpsertSenderAccount(acct models.SenderAccount) (string, error) {
	query := `
		INSERT INTO tenant.sender_accounts (data_source_id, external_id, email, display_name, daily_limit, warmup_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (data_source_id, external_id) DO UPDATE
		SET email = EXCLUDED.email,
		    display_name = EXCLUDED.display_name,
		    daily_limit = EXCLUDED.daily_limit,
		    warmup_active = EXCLUDED.warmup_active,
		    updated_at = now()
		RETURNING id`
	var id string
	err := r.db.QueryRow(query, acct.DataSourceID, acct.ExternalID, acct.Email, acct.DisplayName, acct.DailyLimit, acct.WarmupActive).Scan(&id)
	return id, err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (r *entityRepository) ResolveCompany(tenantID, engagementID, name, domain string) (string, error) {
	var id string

	if domain != "" {
		err := r.db.QueryRow(
			`SELECT id FROM tenant.companies WHERE engagement_id = $1 AND domain = $2`,
			engagementID, domain,
		).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", err
		}
	}

	if name != "" {
		err := r.db.QueryRow(
			`SELECT id FROM tenant.companies WHERE engagement_id = $1 AND lower(name) = lower($2)`,
			engagementID, name,
		).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", err
		}
	}

	err := r.db.QueryRow(
		`INSERT INTO tenant.companies (tenant_id, engagement_id, name, domain)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		tenantID, engagementID, name, domain,
	).Scan(&id)
	if err == nil {
		return id, nil
	}

	// Lost a create race with a concurrent sync: the row exists now, use it.
	if isUniqueViolation(err) {
		return r.ResolveCompany(tenantID, engagementID, name, domain)
	}
	return "", err
}

func (r *entityRepository) UpsertContact(c models.Contact) (string, error) {
	query := `
		INSERT INTO tenant.contacts (tenant_id, engagement_id, company_id, email, first_name, last_name, title, phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (engagement_id, email) DO UPDATE
		SET company_id = COALESCE(tenant.contacts.company_id, EXCLUDED.company_id),
		    first_name = CASE WHEN EXCLUDED.first_name <> '' THEN EXCLUDED.first_name ELSE tenant.contacts.first_name END,
		    last_name  = CASE WHEN EXCLUDED.last_name <> '' THEN EXCLUDED.last_name ELSE tenant.contacts.last_name END,
		    title      = CASE WHEN EXCLUDED.title <> '' THEN EXCLUDED.title ELSE tenant.contacts.title END,
		    phone      = CASE WHEN EXCLUDED.phone <> '' THEN EXCLUDED.phone ELSE tenant.contacts.phone END,
		    updated_at = now()
		RETURNING id`
	var id string
	err := r.db.QueryRow(query, c.TenantID, c.EngagementID, c.CompanyID, c.Email, c.FirstName, c.LastName, c.Title, c.Phone).Scan(&id)
	return id, err
}

func (r *entityRepository) UpsertCampaign(c models.Campaign) (string, error) {
	query := `
		INSERT INTO tenant.campaigns (tenant_id, engagement_id, data_source_id, external_id, name, status, last_synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (engagement_id, data_source_id, external_id) DO UPDATE
		SET name = EXCLUDED.name,
		    status = EXCLUDED.status,
		    last_synced_at = now(),
		    updated_at = now()
		RETURNING id`
	var id string
	err := r.db.QueryRow(query, c.TenantID, c.EngagementID, c.DataSourceID, c.ExternalID, c.Name, c.Status).Scan(&id)
	return id, err
}

func (r *entityRepository) UpsertVariant(v models.Variant) (string, error) {
	query := `
		INSERT INTO tenant.campaign_variants (campaign_id, external_id, step_number, subject, body)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (campaign_id, external_id) DO UPDATE
		SET step_number = EXCLUDED.step_number,
		    subject = EXCLUDED.subject,
		    body = EXCLUDED.body,
		    updated_at = now()
		RETURNING id`
	var id string
	err := r.db.QueryRow(query, v.CampaignID, v.ExternalID, v.StepNumber, v.Subject, v.Body).Scan(&id)
	return id, err
}

func (r *entityRepository) UpsertActivity(a models.Activity) (string, error) {
	query := `
		INSERT INTO tenant.activities (tenant_id, campaign_id, contact_id, step_number,
			sent, opened, clicked, replied, bounced, reply_category, sent_at, opened_at, replied_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (campaign_id, contact_id, step_number) DO UPDATE
		SET sent = EXCLUDED.sent,
		    opened = tenant.activities.opened OR EXCLUDED.opened,
		    clicked = tenant.activities.clicked OR EXCLUDED.clicked,
		    replied = tenant.activities.replied OR EXCLUDED.replied,
		    bounced = tenant.activities.bounced OR EXCLUDED.bounced,
		    reply_category = CASE WHEN EXCLUDED.reply_category <> '' THEN EXCLUDED.reply_category ELSE tenant.activities.reply_category END,
		    sent_at = COALESCE(EXCLUDED.sent_at, tenant.activities.sent_at),
		    opened_at = COALESCE(EXCLUDED.opened_at, tenant.activities.opened_at),
		    replied_at = COALESCE(EXCLUDED.replied_at, tenant.activities.replied_at),
		    updated_at = now()
		RETURNING id`
	var id string
	err := r.db.QueryRow(query,
		a.TenantID, a.CampaignID, a.ContactID, a.StepNumber,
		a.Sent, a.Opened, a.Clicked, a.Replied, a.Bounced,
		string(a.ReplyCategory), a.SentAt, a.OpenedAt, a.RepliedAt,
	).Scan(&id)
	return id, err
}

func (r *entityRepository) ListActivities(campaignID string) ([]models.Activity, error) {
	query := `
		SELECT id, tenant_id, campaign_id, contact_id, step_number,
		       sent, opened, clicked, replied, bounced, reply_category,
		       sent_at, opened_at, replied_at, created_at, updated_at
		FROM tenant.activities
		WHERE campaign_id = $1
		ORDER BY sent_at NULLS LAST`
	rows, err := r.db.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var activities []models.Activity
	for rows.Next() {
		var a models.Activity
		var category string
		if err := rows.Scan(
			&a.ID, &a.TenantID, &a.CampaignID, &a.ContactID, &a.StepNumber,
			&a.Sent, &a.Opened, &a.Clicked, &a.Replied, &a.Bounced, &category,
			&a.SentAt, &a.OpenedAt, &a.RepliedAt, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, err
		}
		a.ReplyCategory = models.ReplyCategory(category)
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

func (r *entityRepository) ListCampaignIDs(dataSourceID string) ([]string, error) {
	rows, err := r.db.Query(
		`SELECT id FROM tenant.campaigns WHERE data_source_id = $1 ORDER BY created_at`,
		dataSourceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
