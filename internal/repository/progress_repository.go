package repository

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/salescope/salescope-api/internal/models"
)

type ProgressRepository interface {
	// Start creates the running row for batch 1 of a run. The partial
	// unique index on (data_source_id) WHERE status = 'running' guarantees
	// at most one running row per data source.
	Start(tenantID, dataSourceID string) (models.SyncProgress, error)
	GetRunning(dataSourceID string) (models.SyncProgress, error)
	GetLatest(dataSourceID string) (models.SyncProgress, error)
	Heartbeat(progressID string, phase models.Phase, totalUnits, processed int, currentUnit string) error
	AppendError(progressID, message string) error
	Finish(progressID string, status models.ProgressStatus) error
}

type progressRepository struct {
	db *sql.DB
}

func NewProgressRepository(db *sql.DB) ProgressRepository {
	return &progressRepository{db: db}
}

const progressColumns = `id, tenant_id, data_source_id, status, phase, total_units, processed,
	current_unit, errors, started_at, updated_at, completed_at`

func scanProgress(row *sql.Row) (models.SyncProgress, error) {
	var p models.SyncProgress
	var errs pq.StringArray
	err := row.Scan(
		&p.ID,
		&p.TenantID,
		&p.DataSourceID,
		&p.Status,
		&p.Phase,
		&p.TotalUnits,
		&p.Processed,
		&p.CurrentUnit,
		&errs,
		&p.StartedAt,
		&p.UpdatedAt,
		&p.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, ErrNotFound
		}
		return p, err
	}
	p.Errors = errs
	return p, nil
}

func (r *progressRepository) Start(tenantID, dataSourceID string) (models.SyncProgress, error) {
	query := `
		INSERT INTO tenant.sync_progress (tenant_id, data_source_id, status, phase)
		VALUES ($1, $2, 'running', 'accounts')
		RETURNING ` + progressColumns
	return scanProgress(r.db.QueryRow(query, tenantID, dataSourceID))
}

func (r *progressRepository) GetRunning(dataSourceID string) (models.SyncProgress, error) {
	query := `
		SELECT ` + progressColumns + `
		FROM tenant.sync_progress
		WHERE data_source_id = $1 AND status = 'running'`
	return scanProgress(r.db.QueryRow(query, dataSourceID))
}

func (r *progressRepository) GetLatest(dataSourceID string) (models.SyncProgress, error) {
	query := `
		SELECT ` + progressColumns + `
		FROM tenant.sync_progress
		WHERE data_source_id = $1
		ORDER BY started_at DESC
		LIMIT 1`
	return scanProgress(r.db.QueryRow(query, dataSourceID))
}

func (r *progressRepository) Heartbeat(progressID string, phase models.Phase, totalUnits, processed int, currentUnit string) error {
	query := `
		UPDATE tenant.sync_progress
		SET phase = $2, total_units = $3, processed = $4, current_unit = $5, updated_at = now()
		WHERE id = $1 AND status = 'running'`
	_, err := r.db.Exec(query, progressID, string(phase), totalUnits, processed, currentUnit)
	return err
}

func (r *progressRepository) AppendError(progressID, message string) error {
	query := `
		UPDATE tenant.sync_progress
		SET errors = array_append(errors, $2), updated_at = now()
		WHERE id = $1`
	_, err := r.db.Exec(query, progressID, message)
	return err
}

func (r *progressRepository) Finish(progressID string, status models.ProgressStatus) error {
	query := `
		UPDATE tenant.sync_progress
		SET status = $2, completed_at = now(), updated_at = now()
		WHERE id = $1`
	_, err := r.db.Exec(query, progressID, string(status))
	return err
}
