package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/salescope/salescope-api/internal/models"
)

type DataSourceRepository interface {
	Create(ds models.DataSource) (models.DataSource, error)
	Get(tenantID, dataSourceID string) (models.DataSource, error)
	List(tenantID, engagementID string) ([]models.DataSource, error)

	// ListTenantIDs enumerates tenants with at least one data source, for
	// the scheduled reconciliation sweep.
	ListTenantIDs() ([]string, error)

	// AcquireLease claims the data source for a sync run with a
	// compare-and-swap on claimed_until. It fails with ErrLeaseHeld while
	// another run holds an unexpired lease.
	AcquireLease(dataSourceID string, until time.Time) error
	// RenewLease extends a live claim only; it fails with ErrLeaseLost once
	// the lease has expired or been released, so a stale continuation
	// cannot resurrect a claim it no longer holds.
	RenewLease(dataSourceID string, until time.Time) error
	ReleaseLease(dataSourceID string) error

	// SaveCheckpoint writes the heartbeat: resumption state plus sync status.
	SaveCheckpoint(dataSourceID string, cp *models.Checkpoint, status models.SyncStatus) error
	ClearCheckpoint(dataSourceID string, status models.SyncStatus) error
	SetGlobalStats(dataSourceID string, stats json.RawMessage) error

	// ResetData deletes every derived and raw row scoped to the data source,
	// cascading in dependency order.
	ResetData(dataSourceID string) error
}

type dataSourceRepository struct {
	db *sql.DB
}

func NewDataSourceRepository(db *sql.DB) DataSourceRepository {
	return &dataSourceRepository{db: db}
}

const dataSourceColumns = `id, tenant_id, engagement_id, platform, name, api_key, base_url,
	last_sync_state, last_synced_at, checkpoint, global_stats, claimed_until, created_at, updated_at`

func (r *dataSourceRepository) scanOne(row *sql.Row) (models.DataSource, error) {
	var ds models.DataSource
	var checkpoint, globalStats []byte
	err := row.Scan(
		&ds.ID,
		&ds.TenantID,
		&ds.EngagementID,
		&ds.Platform,
		&ds.Name,
		&ds.APIKey,
		&ds.BaseURL,
		&ds.LastSyncState,
		&ds.LastSyncedAt,
		&checkpoint,
		&globalStats,
		&ds.ClaimedUntil,
		&ds.CreatedAt,
		&ds.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ds, ErrNotFound
		}
		return ds, err
	}
	ds.Checkpoint = checkpoint
	ds.GlobalStats = globalStats
	return ds, nil
}

func (r *dataSourceRepository) Create(ds models.DataSource) (models.DataSource, error) {
	query := `
		INSERT INTO tenant.data_sources (tenant_id, engagement_id, platform, name, api_key, base_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, last_sync_state, created_at, updated_at`
	err := r.db.QueryRow(query, ds.TenantID, ds.EngagementID, ds.Platform, ds.Name, ds.APIKey, ds.BaseURL).
		Scan(&ds.ID, &ds.LastSyncState, &ds.CreatedAt, &ds.UpdatedAt)
	if err != nil {
		return ds, fmt.Errorf("failed to create data source: %w", err)
	}
	return ds, nil
}

func (r *dataSourceRepository) Get(tenantID, dataSourceID string) (models.DataSource, error) {
	query := `
		SELECT ` + dataSourceColumns + `
		FROM tenant.data_sources
		WHERE id = $1 AND tenant_id = $2`
	return r.scanOne(r.db.QueryRow(query, dataSourceID, tenantID))
}

func (r *dataSourceRepository) List(tenantID, engagementID string) ([]models.DataSource, error) {
	query := `
		SELECT ` + dataSourceColumns + `
		FROM tenant.data_sources
		WHERE tenant_id = $1 AND engagement_id = $2
		ORDER BY created_at DESC`
	rows, err := r.db.Query(query, tenantID, engagementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []models.DataSource
	for rows.Next() {
		var ds models.DataSource
		var checkpoint, globalStats []byte
		if err := rows.Scan(
			&ds.ID,
			&ds.TenantID,
			&ds.EngagementID,
			&ds.Platform,
			&ds.Name,
			&ds.APIKey,
			&ds.BaseURL,
			&ds.LastSyncState,
			&ds.LastSyncedAt,
			&checkpoint,
			&globalStats,
			&ds.ClaimedUntil,
			&ds.CreatedAt,
			&ds.UpdatedAt,
		); err != nil {
			return nil, err
		}
		ds.Checkpoint = checkpoint
		ds.GlobalStats = globalStats
		sources = append(sources, ds)
	}
	return sources, rows.Err()
}

func (r *dataSourceRepository) ListTenantIDs() ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT tenant_id FROM tenant.data_sources ORDER BY tenant_id`)
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

func (r *dataSourceRepository) AcquireLease(dataSourceID string, until time.Time) error {
	query := `
		UPDATE tenant.data_sources
		SET claimed_until = $2, last_sync_state = 'syncing', updated_at = now()
		WHERE id = $1 AND (claimed_until IS NULL OR claimed_until < now())`
	res, err := r.db.Exec(query, dataSourceID, until)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrLeaseHeld
	}
	return nil
}

func (r *dataSourceRepository) RenewLease(dataSourceID string, until time.Time) error {
	query := `
		UPDATE tenant.data_sources
		SET claimed_until = $2, updated_at = now()
		WHERE id = $1 AND claimed_until IS NOT NULL AND claimed_until >= now()`
	res, err := r.db.Exec(query, dataSourceID, until)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrLeaseLost
	}
	return nil
}

func (r *dataSourceRepository) ReleaseLease(dataSourceID string) error {
	query := `
		UPDATE tenant.data_sources
		SET claimed_until = NULL, updated_at = now()
		WHERE id = $1`
	_, err := r.db.Exec(query, dataSourceID)
	return err
}

func (r *dataSourceRepository) SaveCheckpoint(dataSourceID string, cp *models.Checkpoint, status models.SyncStatus) error {
	raw, err := cp.Encode()
	if err != nil {
		return err
	}
	query := `
		UPDATE tenant.data_sources
		SET checkpoint = $2, last_sync_state = $3, updated_at = now()
		WHERE id = $1`
	_, err = r.db.Exec(query, dataSourceID, raw, string(status))
	return err
}

func (r *dataSourceRepository) ClearCheckpoint(dataSourceID string, status models.SyncStatus) error {
	query := `
		UPDATE tenant.data_sources
		SET checkpoint = NULL, last_sync_state = $2, last_synced_at = now(), updated_at = now()
		WHERE id = $1`
	_, err := r.db.Exec(query, dataSourceID, string(status))
	return err
}

func (r *dataSourceRepository) SetGlobalStats(dataSourceID string, stats json.RawMessage) error {
	query := `
		UPDATE tenant.data_sources
		SET global_stats = $2, updated_at = now()
		WHERE id = $1`
	_, err := r.db.Exec(query, dataSourceID, []byte(stats))
	return err
}

// ResetData removes all rows scoped to the data source before a fresh run.
// Order matters: derived tables first, then raw, then parents. Companies
// and contacts are engagement-scoped, not data-source-scoped, so they
// survive a reset.
func (r *dataSourceRepository) ResetData(dataSourceID string) error {
	statements := []string{
		`DELETE FROM tenant.daily_metrics dm USING tenant.campaigns c
		 WHERE dm.campaign_id = c.id AND c.data_source_id = $1`,
		`DELETE FROM tenant.enrollment_snapshots es USING tenant.campaigns c
		 WHERE es.campaign_id = c.id AND c.data_source_id = $1`,
		`DELETE FROM tenant.campaign_variants cv USING tenant.campaigns c
		 WHERE cv.campaign_id = c.id AND c.data_source_id = $1`,
		`DELETE FROM tenant.activities a USING tenant.campaigns c
		 WHERE a.campaign_id = c.id AND c.data_source_id = $1`,
		`DELETE FROM tenant.campaigns WHERE data_source_id = $1`,
		`DELETE FROM tenant.sender_accounts WHERE data_source_id = $1`,
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin reset transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt, dataSourceID); err != nil {
			return fmt.Errorf("failed to reset data source rows: %w", err)
		}
	}

	return tx.Commit()
}
