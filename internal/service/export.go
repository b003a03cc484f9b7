package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/solarvest/platform/internal/export"
	"github.com/solarvest/platform/internal/model"
)

var (
	ErrExportNotFound        = export.ErrExportNotFound
	ErrExportHistoryNotFound = export.ErrHistoryNotFound
	ErrExportInactive        = errors.New("scheduled export is inactive")
)

// ExportStore is the persistence for scheduled exports and their runs.
type ExportStore interface {
	CreateScheduled(ctx context.Context, e *model.ScheduledExport) error
	GetScheduled(ctx context.Context, tenantID, id string) (*model.ScheduledExport, error)
	ListScheduled(ctx context.Context, tenantID string, f model.ScheduledExportFilter, p model.Page) ([]*model.ScheduledExport, int64, error)
	UpdateScheduled(ctx context.Context, e *model.ScheduledExport) error
	DeleteScheduled(ctx context.Context, tenantID, id string, at time.Time) error
	GetHistory(ctx context.Context, tenantID, id string) (*model.ExportHistory, error)
	ListHistory(ctx context.Context, tenantID string, f model.ExportHistoryFilter, p model.Page) ([]*model.ExportHistory, int64, error)
}

// ExportRunner records the start of a run. *export.Runner satisfies it.
type ExportRunner interface {
	Begin(ctx context.Context, e *model.ScheduledExport, triggeredBy, requestedBy string) (*model.ExportHistory, error)
	BeginAdHoc(ctx context.Context, tenantID string, req model.AdHocExportRequest, requestedBy string) (*model.ExportHistory, error)
}

// ExportDispatcher runs a recorded export in the background. *export.Scheduler satisfies it.
type ExportDispatcher interface {
	Submit(h *model.ExportHistory, e *model.ScheduledExport)
}

// ExportService manages scheduled exports and on-demand runs.
type ExportService struct {
	base
	store      ExportStore
	runner     ExportRunner
	dispatcher ExportDispatcher
	// validateURL checks notify targets; tests replace it to avoid DNS.
	validateURL func(string) error
}

func NewExportService(store ExportStore, runner ExportRunner, dispatcher ExportDispatcher, opts Options) *ExportService {
	return &ExportService{
		base:        newBase("export", opts),
		store:       store,
		runner:      runner,
		dispatcher:  dispatcher,
		validateURL: export.ValidateNotifyURL,
	}
}

type ScheduledExportInput struct {
	Name           string              `json:"name"`
	ExportType     model.ExportType    `json:"export_type"`
	Format         model.ExportFormat  `json:"format"`
	Filters        model.ExportFilters `json:"filters"`
	Frequency      model.Frequency     `json:"frequency"`
	CronExpression string              `json:"cron_expression"`
	TimeOfDay      string              `json:"time_of_day"`
	DayOfWeek      int                 `json:"day_of_week"`
	DayOfMonth     int                 `json:"day_of_month"`
	Timezone       string              `json:"timezone"`
	Recipients     []string            `json:"recipients"`
	NotifyURL      string              `json:"notify_url"`
	IsActive       *bool               `json:"is_active"`
}

// Create stores a scheduled export and computes its first run.
func (s *ExportService) Create(ctx context.Context, tenantID, userID string, in ScheduledExportInput) (*model.ScheduledExport, error) {
	now := s.now()
	e := &model.ScheduledExport{
		ID:             model.NewID(),
		TenantID:       tenantID,
		Name:           strings.TrimSpace(in.Name),
		ExportType:     in.ExportType,
		Format:         in.Format,
		Filters:        in.Filters,
		Frequency:      in.Frequency,
		CronExpression: strings.TrimSpace(in.CronExpression),
		TimeOfDay:      in.TimeOfDay,
		DayOfWeek:      in.DayOfWeek,
		DayOfMonth:     in.DayOfMonth,
		Timezone:       in.Timezone,
		Recipients:     in.Recipients,
		NotifyURL:      strings.TrimSpace(in.NotifyURL),
		IsActive:       true,
		CreatedBy:      userID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	setIf(&e.IsActive, in.IsActive)
	if err := s.prepare(e, now); err != nil {
		return nil, err
	}
	if err := s.store.CreateScheduled(ctx, e); err != nil {
		return nil, fmt.Errorf("failed to create scheduled export: %w", err)
	}
	s.metrics.IncRecordCreated("scheduled_export")
	s.logger.Info("scheduled_export_created", "tenant_id", tenantID, "scheduled_export_id", e.ID, "next_run_at", e.NextRunAt)
	return e, nil
}

// prepare validates e and sets next_run_at; inactive exports have none.
func (s *ExportService) prepare(e *model.ScheduledExport, now time.Time) error {
	e.ApplyDefaults()
	if err := e.Validate(); err != nil {
		return err
	}
	var v model.ValidationErrors
	next, err := export.NextRun(e, now)
	if err != nil {
		field := "time_of_day"
		if e.Frequency == model.FrequencyCron {
			field = "cron_expression"
		}
		v.Add(field, err.Error())
	}
	if e.NotifyURL != "" {
		if err := s.validateURL(e.NotifyURL); err != nil {
			v.Add("notify_url", err.Error())
		}
	}
	if err := v.Err(); err != nil {
		return err
	}
	e.NextRunAt = nil
	if e.IsActive {
		e.NextRunAt = &next
	}
	return nil
}

func (s *ExportService) Get(ctx context.Context, tenantID, id string) (*model.ScheduledExport, error) {
	return s.store.GetScheduled(ctx, tenantID, id)
}

func (s *ExportService) List(ctx context.Context, tenantID string, f model.ScheduledExportFilter, p model.Page) (*ListResult[*model.ScheduledExport], error) {
	items, total, err := s.store.ListScheduled(ctx, tenantID, f, p)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled exports: %w", err)
	}
	return newList(items, total, p), nil
}

type ScheduledExportPatch struct {
	Name           *string              `json:"name"`
	ExportType     *model.ExportType    `json:"export_type"`
	Format         *model.ExportFormat  `json:"format"`
	Filters        *model.ExportFilters `json:"filters"`
	Frequency      *model.Frequency     `json:"frequency"`
	CronExpression *string              `json:"cron_expression"`
	TimeOfDay      *string              `json:"time_of_day"`
	DayOfWeek      *int                 `json:"day_of_week"`
	DayOfMonth     *int                 `json:"day_of_month"`
	Timezone       *string              `json:"timezone"`
	Recipients     *[]string            `json:"recipients"`
	NotifyURL      *string              `json:"notify_url"`
	IsActive       *bool                `json:"is_active"`
}

// Update applies p and recomputes the next run from now.
func (s *ExportService) Update(ctx context.Context, tenantID, id string, p ScheduledExportPatch) (*model.ScheduledExport, error) {
	e, err := s.store.GetScheduled(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	setIf(&e.Name, p.Name)
	setIf(&e.ExportType, p.ExportType)
	setIf(&e.Format, p.Format)
	setIf(&e.Filters, p.Filters)
	setIf(&e.Frequency, p.Frequency)
	setIf(&e.CronExpression, p.CronExpression)
	setIf(&e.TimeOfDay, p.TimeOfDay)
	setIf(&e.DayOfWeek, p.DayOfWeek)
	setIf(&e.DayOfMonth, p.DayOfMonth)
	setIf(&e.Timezone, p.Timezone)
	setIf(&e.Recipients, p.Recipients)
	setIf(&e.NotifyURL, p.NotifyURL)
	setIf(&e.IsActive, p.IsActive)
	e.Name = strings.TrimSpace(e.Name)
	e.NotifyURL = strings.TrimSpace(e.NotifyURL)

	now := s.now()
	e.UpdatedAt = now
	if err := s.prepare(e, now); err != nil {
		return nil, err
	}
	if err := s.store.UpdateScheduled(ctx, e); err != nil {
		return nil, err
	}
	s.metrics.IncRecordUpdated("scheduled_export")
	return e, nil
}

func (s *ExportService) Delete(ctx context.Context, tenantID, id string) error {
	if err := s.store.DeleteScheduled(ctx, tenantID, id, s.now()); err != nil {
		return err
	}
	s.metrics.IncRecordDeleted("scheduled_export")
	return nil
}

// RunNow starts a scheduled export immediately without moving its schedule.
func (s *ExportService) RunNow(ctx context.Context, tenantID, id, userID string) (*model.ExportHistory, error) {
	e, err := s.store.GetScheduled(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !e.IsActive {
		return nil, ErrExportInactive
	}
	h, err := s.runner.Begin(ctx, e, model.TriggeredByUser, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to start export: %w", err)
	}
	s.dispatcher.Submit(h, e)
	s.logger.Info("export_run_requested", "tenant_id", tenantID, "scheduled_export_id", id, "export_id", h.ExportID, "user_id", userID)
	return h, nil
}

// AdHoc starts a one-off export.
func (s *ExportService) AdHoc(ctx context.Context, tenantID, userID string, req model.AdHocExportRequest) (*model.ExportHistory, error) {
	if req.Format == "" {
		req.Format = model.FormatCSV
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if f := req.Filters; f.CreatedFrom != nil && f.CreatedTo != nil && f.CreatedTo.Before(*f.CreatedFrom) {
		return nil, model.ValidationErrors{{Field: "filters.created_to", Message: "must not be before created_from"}}
	}
	h, err := s.runner.BeginAdHoc(ctx, tenantID, req, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to start export: %w", err)
	}
	s.dispatcher.Submit(h, nil)
	s.logger.Info("export_run_requested", "tenant_id", tenantID, "export_id", h.ExportID, "user_id", userID)
	return h, nil
}

func (s *ExportService) History(ctx context.Context, tenantID string, f model.ExportHistoryFilter, p model.Page) (*ListResult[*model.ExportHistory], error) {
	items, total, err := s.store.ListHistory(ctx, tenantID, f, p)
	if err != nil {
		return nil, fmt.Errorf("failed to list export history: %w", err)
	}
	return newList(items, total, p), nil
}

func (s *ExportService) HistoryEntry(ctx context.Context, tenantID, id string) (*model.ExportHistory, error) {
	return s.store.GetHistory(ctx, tenantID, id)
}
