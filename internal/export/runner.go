package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/solarvest/platform/internal/metrics"
	"github.com/solarvest/platform/internal/model"
)

// ErrStorageUnavailable is returned when no object store is configured.
var ErrStorageUnavailable = errors.New("export storage is not configured")

const bookkeepingTimeout = 10 * time.Second

// Source selects the rows of an export.
type Source interface {
	Fetch(ctx context.Context, tenantID string, typ model.ExportType, f model.ExportFilters, limit int) (*Dataset, error)
}

// HistoryStore records runs and their outcome.
type HistoryStore interface {
	CreateHistory(ctx context.Context, h *model.ExportHistory) error
	CompleteHistory(ctx context.Context, h *model.ExportHistory) error
	FailHistory(ctx context.Context, id, message string, at time.Time) error
	RecordRun(ctx context.Context, id string, status model.ExportStatus, at time.Time) error
}

// Sender delivers completion notices. *Notifier satisfies it.
type Sender interface {
	Notify(ctx context.Context, target string, note Notification) error
}

// RunnerConfig tunes generation.
type RunnerConfig struct {
	RowLimit int
	URLTTL   time.Duration
}

// Runner generates export files: rows, encoding, upload and bookkeeping.
type Runner struct {
	source   Source
	storage  Storage
	history  HistoryStore
	notifier Sender
	cfg      RunnerConfig
	logger   *slog.Logger
	metrics  metrics.Recorder
	now      func() time.Time
}

// NewRunner creates a runner. storage and notifier may be nil.
func NewRunner(source Source, storage Storage, history HistoryStore, notifier Sender, cfg RunnerConfig, logger *slog.Logger, recorder metrics.Recorder) *Runner {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if cfg.RowLimit <= 0 {
		cfg.RowLimit = 100000
	}
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = 24 * time.Hour
	}
	return &Runner{
		source:   source,
		storage:  storage,
		history:  history,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With("component", "export_runner"),
		metrics:  recorder,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Begin stores a processing history record for a run of e.
func (r *Runner) Begin(ctx context.Context, e *model.ScheduledExport, triggeredBy, requestedBy string) (*model.ExportHistory, error) {
	now := r.now()
	id := e.ID
	h := &model.ExportHistory{
		ID:                model.NewID(),
		ExportID:          model.NewExportID(e.ID, now),
		TenantID:          e.TenantID,
		ScheduledExportID: &id,
		ExportType:        e.ExportType,
		Format:            e.Format,
		Filters:           e.Filters,
		Status:            model.ExportProcessing,
		TriggeredBy:       triggeredBy,
		RequestedBy:       requestedBy,
		StartedAt:         now,
		CreatedAt:         now,
	}
	if err := r.history.CreateHistory(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

// BeginAdHoc stores a processing history record for a one-off export.
func (r *Runner) BeginAdHoc(ctx context.Context, tenantID string, req model.AdHocExportRequest, requestedBy string) (*model.ExportHistory, error) {
	now := r.now()
	id := model.NewID()
	h := &model.ExportHistory{
		ID:          id,
		ExportID:    model.NewExportID(id, now),
		TenantID:    tenantID,
		ExportType:  req.ExportType,
		Format:      req.Format,
		Filters:     req.Filters,
		Status:      model.ExportProcessing,
		TriggeredBy: model.TriggeredByUser,
		RequestedBy: requestedBy,
		StartedAt:   now,
		CreatedAt:   now,
	}
	if err := r.history.CreateHistory(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

// Execute generates the file for h and records the outcome. e is nil for
// ad-hoc exports. The returned error has already been recorded.
func (r *Runner) Execute(ctx context.Context, h *model.ExportHistory, e *model.ScheduledExport) error {
	log := r.logger.With("tenant_id", h.TenantID, "export_id", h.ExportID)
	log.Info("export_started", "export_type", h.ExportType, "format", h.Format, "triggered_by", h.TriggeredBy)

	start := time.Now()
	genErr := r.generate(ctx, h)
	finished := r.now()
	r.metrics.ObserveExportDuration(time.Since(start))

	// Bookkeeping survives a job that ran out of time.
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()

	status := model.ExportCompleted
	h.CompletedAt = &finished
	if genErr != nil {
		status = model.ExportFailed
		h.Status = model.ExportFailed
		h.ErrorMessage = genErr.Error()
		log.Error("export_failed", "error", genErr)
		if err := r.history.FailHistory(bctx, h.ID, h.ErrorMessage, finished); err != nil {
			log.Error("export_history_update_failed", "error", err)
		}
	} else {
		h.Status = model.ExportCompleted
		log.Info("export_completed", "rows", h.RowCount, "bytes", h.FileSize, "duration_ms", h.Duration().Milliseconds())
		if err := r.history.CompleteHistory(bctx, h); err != nil {
			log.Error("export_history_update_failed", "error", err)
		}
	}
	r.metrics.IncExportRun(string(status))

	if e != nil {
		if err := r.history.RecordRun(bctx, e.ID, status, finished); err != nil {
			log.Error("export_run_record_failed", "scheduled_export_id", e.ID, "error", err)
		}
		if e.NotifyURL != "" && r.notifier != nil {
			_ = r.notifier.Notify(bctx, e.NotifyURL, notificationFor(h, e))
		}
	}
	return genErr
}

func (r *Runner) generate(ctx context.Context, h *model.ExportHistory) error {
	if r.storage == nil {
		return ErrStorageUnavailable
	}
	ds, err := r.source.Fetch(ctx, h.TenantID, h.ExportType, h.Filters, r.cfg.RowLimit)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	rows, err := Encode(&buf, h.Format, ds)
	if err != nil {
		return err
	}
	size := int64(buf.Len())

	key := ObjectKey(h.TenantID, h.ExportID, h.Format, h.StartedAt)
	if err := r.storage.Put(ctx, key, h.Format.ContentType(), bytes.NewReader(buf.Bytes()), size); err != nil {
		return err
	}
	url, err := r.storage.PresignGet(ctx, key, r.cfg.URLTTL)
	if err != nil {
		return fmt.Errorf("export uploaded but not shareable: %w", err)
	}

	h.FileKey = key
	h.FileURL = url
	h.FileSize = size
	h.RowCount = rows
	r.metrics.ObserveExportRows(rows)
	return nil
}

func notificationFor(h *model.ExportHistory, e *model.ScheduledExport) Notification {
	event := "export.completed"
	if h.Status == model.ExportFailed {
		event = "export.failed"
	}
	return Notification{
		Event:       event,
		ExportID:    h.ExportID,
		TenantID:    h.TenantID,
		ScheduledID: e.ID,
		Name:        e.Name,
		ExportType:  h.ExportType,
		Format:      h.Format,
		Status:      h.Status,
		RowCount:    h.RowCount,
		FileURL:     h.FileURL,
		Error:       h.ErrorMessage,
		Recipients:  e.Recipients,
		CompletedAt: *h.CompletedAt,
	}
}
