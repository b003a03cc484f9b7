package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/solarvest/platform/internal/handler/dto"
	"github.com/solarvest/platform/internal/model"
	"github.com/solarvest/platform/internal/service"
)

// ExportManager manages scheduled exports and their runs.
type ExportManager interface {
	Create(ctx context.Context, tenantID, userID string, in service.ScheduledExportInput) (*model.ScheduledExport, error)
	Get(ctx context.Context, tenantID, id string) (*model.ScheduledExport, error)
	List(ctx context.Context, tenantID string, f model.ScheduledExportFilter, p model.Page) (*service.ListResult[*model.ScheduledExport], error)
	Update(ctx context.Context, tenantID, id string, p service.ScheduledExportPatch) (*model.ScheduledExport, error)
	Delete(ctx context.Context, tenantID, id string) error
	RunNow(ctx context.Context, tenantID, id, userID string) (*model.ExportHistory, error)
	AdHoc(ctx context.Context, tenantID, userID string, req model.AdHocExportRequest) (*model.ExportHistory, error)
	History(ctx context.Context, tenantID string, f model.ExportHistoryFilter, p model.Page) (*service.ListResult[*model.ExportHistory], error)
	HistoryEntry(ctx context.Context, tenantID, id string) (*model.ExportHistory, error)
}

// Presigner issues download links for stored export files.
type Presigner interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// ExportHandler serves /api/exports.
type ExportHandler struct {
	exports ExportManager
	files   Presigner // nil when object storage is not configured
	linkTTL time.Duration
	errs    errorResponder
}

func NewExportHandler(exports ExportManager, files Presigner, linkTTL time.Duration, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{
		exports: exports,
		files:   files,
		linkTTL: linkTTL,
		errs:    newResponder(logger, "export"),
	}
}

func (h *ExportHandler) CreateScheduled(w http.ResponseWriter, r *http.Request) {
	var in service.ScheduledExportInput
	if err := decode(r, &in); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, userID := caller(r)
	e, err := h.exports.Create(r.Context(), tenantID, userID, in)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusCreated, e)
}

func (h *ExportHandler) ListScheduled(w http.ResponseWriter, r *http.Request) {
	active, err := queryBool(r, "active")
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, _ := caller(r)
	f := model.ScheduledExportFilter{
		ExportType: model.ExportType(queryString(r, "export_type")),
		Active:     active,
	}
	res, err := h.exports.List(r.Context(), tenantID, f, pageParams(r))
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	writeList(w, res, identity[*model.ScheduledExport])
}

func (h *ExportHandler) GetScheduled(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	e, err := h.exports.Get(r.Context(), tenantID, pathID(r))
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusOK, e)
}

func (h *ExportHandler) UpdateScheduled(w http.ResponseWriter, r *http.Request) {
	var p service.ScheduledExportPatch
	if err := decode(r, &p); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, _ := caller(r)
	e, err := h.exports.Update(r.Context(), tenantID, pathID(r), p)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusOK, e)
}

func (h *ExportHandler) DeleteScheduled(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	if err := h.exports.Delete(r.Context(), tenantID, pathID(r)); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RunNow queues a scheduled export immediately. The run completes in the
// background; poll the returned history entry.
func (h *ExportHandler) RunNow(w http.ResponseWriter, r *http.Request) {
	tenantID, userID := caller(r)
	hist, err := h.exports.RunNow(r.Context(), tenantID, pathID(r), userID)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusAccepted, hist.ToResponse())
}

// AdHoc handles POST /api/exports.
func (h *ExportHandler) AdHoc(w http.ResponseWriter, r *http.Request) {
	var req model.AdHocExportRequest
	if err := decode(r, &req); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, userID := caller(r)
	hist, err := h.exports.AdHoc(r.Context(), tenantID, userID, req)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusAccepted, hist.ToResponse())
}

func (h *ExportHandler) History(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	f := model.ExportHistoryFilter{
		Status:            model.ExportStatus(queryString(r, "status")),
		ScheduledExportID: queryString(r, "scheduled_export_id"),
	}
	res, err := h.exports.History(r.Context(), tenantID, f, pageParams(r))
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	writeList(w, res, (*model.ExportHistory).ToResponse)
}

func (h *ExportHandler) HistoryEntry(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	hist, err := h.exports.HistoryEntry(r.Context(), tenantID, pathID(r))
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusOK, hist.ToResponse())
}

// Download redirects to a fresh presigned link for a completed export.
func (h *ExportHandler) Download(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	hist, err := h.exports.HistoryEntry(r.Context(), tenantID, pathID(r))
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	if hist.Status != model.ExportCompleted || hist.FileKey == "" {
		dto.Error(w, http.StatusConflict, dto.CodeConflict, "Export has no file yet")
		return
	}
	if h.files == nil {
		dto.Error(w, http.StatusServiceUnavailable, dto.CodeUnavailable, "Export storage is not configured")
		return
	}
	link, err := h.files.PresignGet(r.Context(), hist.FileKey, h.linkTTL)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	http.Redirect(w, r, link, http.StatusFound)
}
