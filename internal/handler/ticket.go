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

// TicketManager manages support tickets.
type TicketManager interface {
	Create(ctx context.Context, tenantID string, in service.TicketInput) (*model.Ticket, error)
	Get(ctx context.Context, tenantID, id string) (*model.Ticket, error)
	List(ctx context.Context, tenantID string, f model.TicketFilter, p model.Page) (*service.ListResult[*model.Ticket], error)
	Update(ctx context.Context, tenantID, id string, p service.TicketPatch) (*model.Ticket, error)
	Delete(ctx context.Context, tenantID, id string) error
}

// TicketHandler serves /api/tickets.
type TicketHandler struct {
	tickets TicketManager
	errs    errorResponder
	now     func() time.Time
}

func NewTicketHandler(tickets TicketManager, logger *slog.Logger) *TicketHandler {
	return &TicketHandler{
		tickets: tickets,
		errs:    newResponder(logger, "ticket"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (h *TicketHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.TicketInput
	if err := decode(r, &in); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, _ := caller(r)
	t, err := h.tickets.Create(r.Context(), tenantID, in)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusCreated, t.ToResponse(h.now()))
}

func (h *TicketHandler) List(w http.ResponseWriter, r *http.Request) {
	overdue, err := queryBool(r, "overdue")
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, _ := caller(r)
	f := model.TicketFilter{
		Status:     model.TicketStatus(queryString(r, "status")),
		Priority:   model.TicketPriority(queryString(r, "priority")),
		AssignedTo: queryString(r, "assigned_to"),
		ContactID:  queryString(r, "contact_id"),
		Overdue:    overdue != nil && *overdue,
	}
	res, err := h.tickets.List(r.Context(), tenantID, f, pageParams(r))
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	now := h.now()
	writeList(w, res, func(t *model.Ticket) model.TicketResponse { return t.ToResponse(now) })
}

func (h *TicketHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	t, err := h.tickets.Get(r.Context(), tenantID, pathID(r))
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusOK, t.ToResponse(h.now()))
}

func (h *TicketHandler) Update(w http.ResponseWriter, r *http.Request) {
	var p service.TicketPatch
	if err := decode(r, &p); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, _ := caller(r)
	t, err := h.tickets.Update(r.Context(), tenantID, pathID(r), p)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusOK, t.ToResponse(h.now()))
}

func (h *TicketHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	if err := h.tickets.Delete(r.Context(), tenantID, pathID(r)); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
