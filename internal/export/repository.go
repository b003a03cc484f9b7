package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/solarvest/platform/internal/model"
)

// Repository handles scheduled export and history persistence.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new export repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const scheduledCols = `id, tenant_id, name, export_type, format, filters, frequency, cron_expression,
	time_of_day, day_of_week, day_of_month, timezone, recipients, notify_url, is_active,
	next_run_at, last_run_at, last_status, run_count, failure_count, created_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScheduled(row rowScanner) (*model.ScheduledExport, error) {
	var (
		e       model.ScheduledExport
		filters []byte
	)
	err := row.Scan(
		&e.ID, &e.TenantID, &e.Name, &e.ExportType, &e.Format, &filters, &e.Frequency, &e.CronExpression,
		&e.TimeOfDay, &e.DayOfWeek, &e.DayOfMonth, &e.Timezone, pq.Array(&e.Recipients), &e.NotifyURL, &e.IsActive,
		&e.NextRunAt, &e.LastRunAt, &e.LastStatus, &e.RunCount, &e.FailureCount, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := decodeFilters(filters, &e.Filters); err != nil {
		return nil, err
	}
	if e.Recipients == nil {
		e.Recipients = []string{}
	}
	return &e, nil
}

func decodeFilters(raw []byte, dst *model.ExportFilters) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode export filters: %w", err)
	}
	return nil
}

// CreateScheduled inserts a scheduled export.
func (r *Repository) CreateScheduled(ctx context.Context, e *model.ScheduledExport) error {
	filters, err := json.Marshal(e.Filters)
	if err != nil {
		return fmt.Errorf("encode export filters: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO scheduled_exports (
			id, tenant_id, name, export_type, format, filters, frequency, cron_expression,
			time_of_day, day_of_week, day_of_month, timezone, recipients, notify_url, is_active,
			next_run_at, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $18)`,
		e.ID, e.TenantID, e.Name, e.ExportType, e.Format, filters, e.Frequency, e.CronExpression,
		e.TimeOfDay, e.DayOfWeek, e.DayOfMonth, e.Timezone, pq.Array(e.Recipients), e.NotifyURL, e.IsActive,
		e.NextRunAt, e.CreatedBy, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert scheduled export: %w", err)
	}
	return nil
}

// GetScheduled retrieves a live scheduled export of a tenant.
func (r *Repository) GetScheduled(ctx context.Context, tenantID, id string) (*model.ScheduledExport, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+scheduledCols+` FROM scheduled_exports WHERE tenant_id = $1 AND id = $2 AND NOT deleted`,
		tenantID, id)
	e, err := scanScheduled(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query scheduled export: %w", err)
	}
	return e, nil
}

// ListScheduled returns one page of a tenant's scheduled exports, newest first.
func (r *Repository) ListScheduled(ctx context.Context, tenantID string, f model.ScheduledExportFilter, p model.Page) ([]*model.ScheduledExport, int64, error) {
	cond := `tenant_id = $1 AND NOT deleted AND ($2 = '' OR export_type = $2) AND ($3::boolean IS NULL OR is_active = $3)`
	args := []any{tenantID, string(f.ExportType), f.Active}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM scheduled_exports WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count scheduled exports: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+scheduledCols+` FROM scheduled_exports WHERE `+cond+` ORDER BY created_at DESC, id LIMIT $4 OFFSET $5`,
		append(args, p.Limit, p.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("query scheduled exports: %w", err)
	}
	defer rows.Close()

	out := []*model.ScheduledExport{}
	for rows.Next() {
		e, err := scanScheduled(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan scheduled export: %w", err)
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// UpdateScheduled writes the editable fields and the recomputed next run.
func (r *Repository) UpdateScheduled(ctx context.Context, e *model.ScheduledExport) error {
	filters, err := json.Marshal(e.Filters)
	if err != nil {
		return fmt.Errorf("encode export filters: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_exports SET
			name = $3, export_type = $4, format = $5, filters = $6, frequency = $7, cron_expression = $8,
			time_of_day = $9, day_of_week = $10, day_of_month = $11, timezone = $12, recipients = $13,
			notify_url = $14, is_active = $15, next_run_at = $16, updated_at = $17
		WHERE tenant_id = $1 AND id = $2 AND NOT deleted`,
		e.TenantID, e.ID, e.Name, e.ExportType, e.Format, filters, e.Frequency, e.CronExpression,
		e.TimeOfDay, e.DayOfWeek, e.DayOfMonth, e.Timezone, pq.Array(e.Recipients),
		e.NotifyURL, e.IsActive, e.NextRunAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update scheduled export: %w", err)
	}
	return expectOne(res, ErrExportNotFound)
}

// DeleteScheduled soft-deletes a scheduled export so the scheduler skips it.
func (r *Repository) DeleteScheduled(ctx context.Context, tenantID, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_exports SET deleted = TRUE, deleted_at = $3, is_active = FALSE, updated_at = $3
		WHERE tenant_id = $1 AND id = $2 AND NOT deleted`,
		tenantID, id, at)
	if err != nil {
		return fmt.Errorf("delete scheduled export: %w", err)
	}
	return expectOne(res, ErrExportNotFound)
}

// DueExports returns active exports of every tenant whose next run is at or before now.
func (r *Repository) DueExports(ctx context.Context, now time.Time, limit int) ([]*model.ScheduledExport, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+scheduledCols+` FROM scheduled_exports
		WHERE is_active AND NOT deleted AND next_run_at IS NOT NULL AND next_run_at <= $1
		ORDER BY next_run_at
		LIMIT $2`,
		now, limit)
	if err != nil {
		return nil, fmt.Errorf("query due exports: %w", err)
	}
	defer rows.Close()

	var out []*model.ScheduledExport
	for rows.Next() {
		e, err := scanScheduled(rows)
		if err != nil {
			return nil, fmt.Errorf("scan due export: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ClaimExport advances next_run_at only if it still equals prev.
// It returns ErrClaimLost when the row was already advanced.
func (r *Repository) ClaimExport(ctx context.Context, id string, prev time.Time, next *time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_exports SET next_run_at = $3, last_status = 'processing', updated_at = now()
		WHERE id = $1 AND next_run_at = $2 AND is_active AND NOT deleted`,
		id, prev, next)
	if err != nil {
		return fmt.Errorf("claim scheduled export: %w", err)
	}
	return expectOne(res, ErrClaimLost)
}

// RecordRun stores the outcome of a run on the scheduled export.
func (r *Repository) RecordRun(ctx context.Context, id string, status model.ExportStatus, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_exports SET
			last_run_at = $3, last_status = $2,
			run_count = run_count + CASE WHEN $2 = 'completed' THEN 1 ELSE 0 END,
			failure_count = failure_count + CASE WHEN $2 = 'failed' THEN 1 ELSE 0 END,
			updated_at = $3
		WHERE id = $1`,
		id, status, at)
	if err != nil {
		return fmt.Errorf("record export run: %w", err)
	}
	return nil
}

const historyCols = `id, export_id, tenant_id, scheduled_export_id, export_type, format, filters, status,
	file_key, file_url, file_size, row_count, error_message, triggered_by, requested_by,
	started_at, completed_at, created_at`

func scanHistory(row rowScanner) (*model.ExportHistory, error) {
	var (
		h       model.ExportHistory
		filters []byte
	)
	err := row.Scan(
		&h.ID, &h.ExportID, &h.TenantID, &h.ScheduledExportID, &h.ExportType, &h.Format, &filters, &h.Status,
		&h.FileKey, &h.FileURL, &h.FileSize, &h.RowCount, &h.ErrorMessage, &h.TriggeredBy, &h.RequestedBy,
		&h.StartedAt, &h.CompletedAt, &h.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := decodeFilters(filters, &h.Filters); err != nil {
		return nil, err
	}
	return &h, nil
}

// CreateHistory inserts a run record.
func (r *Repository) CreateHistory(ctx context.Context, h *model.ExportHistory) error {
	filters, err := json.Marshal(h.Filters)
	if err != nil {
		return fmt.Errorf("encode export filters: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO export_history (
			id, export_id, tenant_id, scheduled_export_id, export_type, format, filters, status,
			triggered_by, requested_by, started_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		h.ID, h.ExportID, h.TenantID, h.ScheduledExportID, h.ExportType, h.Format, filters, h.Status,
		h.TriggeredBy, h.RequestedBy, h.StartedAt, h.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert export history: %w", err)
	}
	return nil
}

// CompleteHistory stores the generated file of a finished run.
func (r *Repository) CompleteHistory(ctx context.Context, h *model.ExportHistory) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE export_history SET status = 'completed', file_key = $2, file_url = $3, file_size = $4,
			row_count = $5, completed_at = $6
		WHERE id = $1`,
		h.ID, h.FileKey, h.FileURL, h.FileSize, h.RowCount, h.CompletedAt)
	if err != nil {
		return fmt.Errorf("complete export history: %w", err)
	}
	return expectOne(res, ErrHistoryNotFound)
}

// FailHistory marks a run failed with its error message.
func (r *Repository) FailHistory(ctx context.Context, id, message string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE export_history SET status = 'failed', error_message = $2, completed_at = $3
		WHERE id = $1`,
		id, message, at)
	if err != nil {
		return fmt.Errorf("fail export history: %w", err)
	}
	return expectOne(res, ErrHistoryNotFound)
}

// GetHistory retrieves a run record of a tenant.
func (r *Repository) GetHistory(ctx context.Context, tenantID, id string) (*model.ExportHistory, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+historyCols+` FROM export_history WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	h, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrHistoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query export history: %w", err)
	}
	return h, nil
}

// ListHistory returns one page of a tenant's runs, newest first.
func (r *Repository) ListHistory(ctx context.Context, tenantID string, f model.ExportHistoryFilter, p model.Page) ([]*model.ExportHistory, int64, error) {
	cond := `tenant_id = $1 AND ($2 = '' OR status = $2) AND ($3 = '' OR scheduled_export_id = $3)`
	args := []any{tenantID, string(f.Status), f.ScheduledExportID}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM export_history WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count export history: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+historyCols+` FROM export_history WHERE `+cond+` ORDER BY created_at DESC, id LIMIT $4 OFFSET $5`,
		append(args, p.Limit, p.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("query export history: %w", err)
	}
	defer rows.Close()

	out := []*model.ExportHistory{}
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan export history: %w", err)
		}
		out = append(out, h)
	}
	return out, total, rows.Err()
}

func expectOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
