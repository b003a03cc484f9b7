package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/solarvest/platform/internal/crm"
	"github.com/solarvest/platform/internal/handler/dto"
	"github.com/solarvest/platform/internal/model"
	"github.com/solarvest/platform/internal/service"
)

// ContactManager manages CRM contacts.
type ContactManager interface {
	Create(ctx context.Context, tenantID string, in service.ContactInput) (*model.CrmContact, error)
	Get(ctx context.Context, tenantID, id string) (*model.CrmContact, error)
	List(ctx context.Context, tenantID string, f model.ContactFilter, p model.Page) (*service.ListResult[*model.CrmContact], error)
	Update(ctx context.Context, tenantID, id string, p service.ContactPatch) (*model.CrmContact, error)
	Assign(ctx context.Context, tenantID, id string, in service.AssignInput) (*model.CrmContact, error)
	Delete(ctx context.Context, tenantID, id string) error
	Responses(ctx context.Context, tenantID string, f model.ResponseFilter, p model.Page) (*service.ListResult[*model.CommunicationResponse], error)
}

// ThreadManager manages conversation threads and messages.
type ThreadManager interface {
	Create(ctx context.Context, tenantID string, in service.ThreadInput) (*model.CrmThread, error)
	List(ctx context.Context, tenantID string, f model.ThreadFilter, p model.Page) (*service.ListResult[*model.CrmThread], error)
	Get(ctx context.Context, tenantID, id string) (*model.ThreadWithMessages, error)
	SetStatus(ctx context.Context, tenantID, id string, status model.ThreadStatus) (*model.CrmThread, error)
	MarkRead(ctx context.Context, tenantID, id string) error
	Send(ctx context.Context, tenantID, threadID, senderID string, in service.SendInput) (*model.CrmMessage, error)
	Inbound(ctx context.Context, tenantID string, in service.InboundInput) (*service.InboundResult, error)
}

// TemplateManager manages message templates.
type TemplateManager interface {
	Create(ctx context.Context, tenantID string, in service.TemplateInput) (*model.CrmTemplate, error)
	Get(ctx context.Context, tenantID, id string) (*model.CrmTemplate, error)
	List(ctx context.Context, tenantID string, f model.TemplateFilter, p model.Page) (*service.ListResult[*model.CrmTemplate], error)
	Update(ctx context.Context, tenantID, id string, p service.TemplatePatch) (*model.CrmTemplate, error)
	Delete(ctx context.Context, tenantID, id string) error
	Preview(ctx context.Context, tenantID, id string, in service.PreviewInput) (*crm.Rendered, error)
}

// AutomationManager manages automation rules.
type AutomationManager interface {
	Create(ctx context.Context, tenantID string, in service.AutomationInput) (*model.CrmAutomation, error)
	Get(ctx context.Context, tenantID, id string) (*model.CrmAutomation, error)
	List(ctx context.Context, tenantID string, f model.AutomationFilter, p model.Page) (*service.ListResult[*model.CrmAutomation], error)
	Update(ctx context.Context, tenantID, id string, p service.AutomationPatch) (*model.CrmAutomation, error)
	Delete(ctx context.Context, tenantID, id string) error
	Test(ctx context.Context, tenantID, id string, data map[string]any) (*model.AutomationRun, error)
}

// WorkloadManager reports and adjusts agent capacity.
type WorkloadManager interface {
	Workload(ctx context.Context, tenantID string) ([]service.AgentWorkload, error)
	SetCapacity(ctx context.Context, tenantID, agentID string, capacity int) error
}

// CRMDeps groups the services behind /api/crm.
type CRMDeps struct {
	Contacts    ContactManager
	Threads     ThreadManager
	Templates   TemplateManager
	Automations AutomationManager
	Workload    WorkloadManager
}

// CRMHandler serves /api/crm.
type CRMHandler struct {
	CRMDeps
	errs errorResponder
}

func NewCRMHandler(deps CRMDeps, logger *slog.Logger) *CRMHandler {
	return &CRMHandler{CRMDeps: deps, errs: newResponder(logger, "crm")}
}

// Contacts

func (h *CRMHandler) CreateContact(w http.ResponseWriter, r *http.Request) {
	var in service.ContactInput
	if err := decode(r, &in); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, _ := caller(r)
	c, err := h.Contacts.Create(r.Context(), tenantID, in)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusCreated, c)
}

func (h *CRMHandler) ListContacts(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	f := model.ContactFilter{
		Status:  model.ContactStatus(queryString(r, "status")),
		OwnerID: queryString(r, "owner_id"),
		Tag:     queryString(r, "tag"),
		Query:   queryString(r, "q"),
	}
	res, err := h.Contacts.List(r.Context(), tenantID, f, pageParams(r))
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	writeList(w, res, identity[*model.CrmContact])
}

func (h *CRMHandler) GetContact(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	c, err := h.Contacts.Get(r.Context(), tenantID, pathID(r))
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusOK, c)
}

func (h *CRMHandler) UpdateContact(w http.ResponseWriter, r *http.Request) {
	var p service.ContactPatch
	if err := decode(r, &p); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, _ := caller(r)
	c, err := h.Contacts.Update(r.Context(), tenantID, pathID(r), p)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusOK, c)
}

// AssignContact handles POST /api/crm/contacts/{id}/assign. An empty
// agent_id routes by strategy.
func (h *CRMHandler) AssignContact(w http.ResponseWriter, r *http.Request) {
	var in service.AssignInput
	if err := decode(r, &in); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, _ := caller(r)
	c, err := h.Contacts.Assign(r.Context(), tenantID, pathID(r), in)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusOK, c)
}

func (h *CRMHandler) DeleteContact(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	if err := h.Contacts.Delete(r.Context(), tenantID, pathID(r)); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CRMHandler) ListResponses(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	f := model.ResponseFilter{
		ContactID: queryString(r, "contact_id"),
		Channel:   model.Channel(queryString(r, "channel")),
	}
	res, err := h.Contacts.Responses(r.Context(), tenantID, f, pageParams(r))
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	writeList(w, res, (*model.CommunicationResponse).ToResponse)
}

// Threads

func (h *CRMHandler) CreateThread(w http.ResponseWriter, r *http.Request) {
	var in service.ThreadInput
	if err := decode(r, &in); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, _ := caller(r)
	t, err := h.Threads.Create(r.Context(), tenantID, in)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusCreated, t)
}

func (h *CRMHandler) ListThreads(w http.ResponseWriter, r *http.Request) {
	unread, err := queryBool(r, "unread")
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, _ := caller(r)
	f := model.ThreadFilter{
		ContactID:  queryString(r, "contact_id"),
		Status:     model.ThreadStatus(queryString(r, "status")),
		AssignedTo: queryString(r, "assigned_to"),
		Unread:     unread != nil && *unread,
	}
	res, err := h.Threads.List(r.Context(), tenantID, f, pageParams(r))
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	writeList(w, res, identity[*model.CrmThread])
}

// GetThread returns the thread with its messages in order.
func (h *CRMHandler) GetThread(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	t, err := h.Threads.Get(r.Context(), tenantID, pathID(r))
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusOK, t)
}

type threadStatusRequest struct {
	Status model.ThreadStatus `json:"status"`
}

func (h *CRMHandler) SetThreadStatus(w http.ResponseWriter, r *http.Request) {
	var req threadStatusRequest
	if err := decode(r, &req); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, _ := caller(r)
	t, err := h.Threads.SetStatus(r.Context(), tenantID, pathID(r), req.Status)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusOK, t)
}

func (h *CRMHandler) MarkThreadRead(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	if err := h.Threads.MarkRead(r.Context(), tenantID, pathID(r)); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SendMessage handles POST /api/crm/threads/{id}/messages.
func (h *CRMHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var in service.SendInput
	if err := decode(r, &in); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, userID := caller(r)
	m, err := h.Threads.Send(r.Context(), tenantID, pathID(r), userID, in)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusCreated, m)
}

// Inbound records a message received from a contact on any channel.
func (h *CRMHandler) Inbound(w http.ResponseWriter, r *http.Request) {
	var in service.InboundInput
	if err := decode(r, &in); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, _ := caller(r)
	res, err := h.Threads.Inbound(r.Context(), tenantID, in)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusCreated, res)
}

// Templates

func (h *CRMHandler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var in service.TemplateInput
	if err := decode(r, &in); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, _ := caller(r)
	t, err := h.Templates.Create(r.Context(), tenantID, in)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusCreated, t)
}

func (h *CRMHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	active, err := queryBool(r, "active")
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, _ := caller(r)
	f := model.TemplateFilter{
		Channel:  model.Channel(queryString(r, "channel")),
		Category: queryString(r, "category"),
		Active:   active,
	}
	res, err := h.Templates.List(r.Context(), tenantID, f, pageParams(r))
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	writeList(w, res, identity[*model.CrmTemplate])
}

func (h *CRMHandler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	t, err := h.Templates.Get(r.Context(), tenantID, pathID(r))
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusOK, t)
}

func (h *CRMHandler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var p service.TemplatePatch
	if err := decode(r, &p); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, _ := caller(r)
	t, err := h.Templates.Update(r.Context(), tenantID, pathID(r), p)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusOK, t)
}

func (h *CRMHandler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	if err := h.Templates.Delete(r.Context(), tenantID, pathID(r)); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PreviewTemplate renders a template without sending or counting usage.
func (h *CRMHandler) PreviewTemplate(w http.ResponseWriter, r *http.Request) {
	var in service.PreviewInput
	if err := decode(r, &in); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, _ := caller(r)
	out, err := h.Templates.Preview(r.Context(), tenantID, pathID(r), in)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusOK, out)
}

// Automations

func (h *CRMHandler) CreateAutomation(w http.ResponseWriter, r *http.Request) {
	var in service.AutomationInput
	if err := decode(r, &in); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, _ := caller(r)
	a, err := h.Automations.Create(r.Context(), tenantID, in)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusCreated, a.ToResponse())
}

func (h *CRMHandler) ListAutomations(w http.ResponseWriter, r *http.Request) {
	active, err := queryBool(r, "active")
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, _ := caller(r)
	f := model.AutomationFilter{
		Trigger: model.Trigger(queryString(r, "trigger")),
		Active:  active,
	}
	res, err := h.Automations.List(r.Context(), tenantID, f, pageParams(r))
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	writeList(w, res, (*model.CrmAutomation).ToResponse)
}

func (h *CRMHandler) GetAutomation(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	a, err := h.Automations.Get(r.Context(), tenantID, pathID(r))
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusOK, a.ToResponse())
}

func (h *CRMHandler) UpdateAutomation(w http.ResponseWriter, r *http.Request) {
	var p service.AutomationPatch
	if err := decode(r, &p); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, _ := caller(r)
	a, err := h.Automations.Update(r.Context(), tenantID, pathID(r), p)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusOK, a.ToResponse())
}

func (h *CRMHandler) DeleteAutomation(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	if err := h.Automations.Delete(r.Context(), tenantID, pathID(r)); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type automationTestRequest struct {
	Data map[string]any `json:"data"`
}

// TestAutomation dry-runs a rule against sample event data.
func (h *CRMHandler) TestAutomation(w http.ResponseWriter, r *http.Request) {
	var req automationTestRequest
	if err := decode(r, &req); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, _ := caller(r)
	run, err := h.Automations.Test(r.Context(), tenantID, pathID(r), req.Data)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusOK, run)
}

// Assignment

func (h *CRMHandler) Workloads(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	rows, err := h.Workload.Workload(r.Context(), tenantID)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	if rows == nil {
		rows = []service.AgentWorkload{}
	}
	dto.OK(w, http.StatusOK, rows)
}

type capacityRequest struct {
	MaxCapacity int `json:"max_capacity"`
}

// SetCapacity handles PUT /api/crm/assignments/{id}/capacity.
func (h *CRMHandler) SetCapacity(w http.ResponseWriter, r *http.Request) {
	var req capacityRequest
	if err := decode(r, &req); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	if req.MaxCapacity < 0 {
		h.errs.fail(w, r, model.ValidationError{Field: "max_capacity", Message: "must not be negative"})
		return
	}
	tenantID, _ := caller(r)
	if err := h.Workload.SetCapacity(r.Context(), tenantID, pathID(r), req.MaxCapacity); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
