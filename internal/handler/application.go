package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/solarvest/platform/internal/handler/dto"
	"github.com/solarvest/platform/internal/model"
	"github.com/solarvest/platform/internal/service"
)

// ApplicationManager manages solar applications and their workflow.
type ApplicationManager interface {
	Create(ctx context.Context, tenantID string, in service.ApplicationInput) (*model.SolarApplication, error)
	Get(ctx context.Context, tenantID, id string) (*model.SolarApplication, error)
	List(ctx context.Context, tenantID string, f model.ApplicationFilter, p model.Page) (*service.ListResult[*model.SolarApplication], error)
	Update(ctx context.Context, tenantID, id string, p service.ApplicationPatch) (*model.SolarApplication, error)
	Transition(ctx context.Context, tenantID, id string, change service.StatusChange) (*model.SolarApplication, error)
	Delete(ctx context.Context, tenantID, id string) error
}

// ApplicationHandler serves /api/applications.
type ApplicationHandler struct {
	apps ApplicationManager
	errs errorResponder
}

func NewApplicationHandler(apps ApplicationManager, logger *slog.Logger) *ApplicationHandler {
	return &ApplicationHandler{apps: apps, errs: newResponder(logger, "application")}
}

func (h *ApplicationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.ApplicationInput
	if err := decode(r, &in); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, _ := caller(r)
	app, err := h.apps.Create(r.Context(), tenantID, in)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusCreated, app.ToResponse())
}

func (h *ApplicationHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	f := model.ApplicationFilter{
		Status:       model.ApplicationStatus(queryString(r, "status")),
		PropertyType: model.PropertyType(queryString(r, "property_type")),
		AssignedTo:   queryString(r, "assigned_to"),
		Query:        queryString(r, "q"),
	}
	res, err := h.apps.List(r.Context(), tenantID, f, pageParams(r))
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	writeList(w, res, (*model.SolarApplication).ToResponse)
}

func (h *ApplicationHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	app, err := h.apps.Get(r.Context(), tenantID, pathID(r))
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusOK, app.ToResponse())
}

func (h *ApplicationHandler) Update(w http.ResponseWriter, r *http.Request) {
	var p service.ApplicationPatch
	if err := decode(r, &p); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, _ := caller(r)
	app, err := h.apps.Update(r.Context(), tenantID, pathID(r), p)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusOK, app.ToResponse())
}

// Transition handles PUT /api/applications/{id}/status.
func (h *ApplicationHandler) Transition(w http.ResponseWriter, r *http.Request) {
	var change service.StatusChange
	if err := decode(r, &change); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, _ := caller(r)
	app, err := h.apps.Transition(r.Context(), tenantID, pathID(r), change)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusOK, app.ToResponse())
}

func (h *ApplicationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	if err := h.apps.Delete(r.Context(), tenantID, pathID(r)); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
