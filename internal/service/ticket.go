package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/solarvest/platform/internal/crm"
	"github.com/solarvest/platform/internal/model"
)

// TicketStore is the persistence for support tickets.
type TicketStore interface {
	CreateTicket(ctx context.Context, t *model.Ticket) error
	GetTicket(ctx context.Context, tenantID, id string) (*model.Ticket, error)
	ListTickets(ctx context.Context, tenantID string, f model.TicketFilter, p model.Page) ([]*model.Ticket, int64, error)
	UpdateTicket(ctx context.Context, t *model.Ticket) error
	DeleteTicket(ctx context.Context, tenantID, id string) error
	GetContact(ctx context.Context, tenantID, id string) (*model.CrmContact, error)
}

// Assigner reserves and frees agent capacity.
type Assigner interface {
	Assign(ctx context.Context, tenantID string, strategy model.RoutingStrategy) (string, error)
	AssignTo(ctx context.Context, tenantID, agentID string) error
	Release(ctx context.Context, tenantID, agentID string) error
}

// TicketService handles support tickets and their SLA.
type TicketService struct {
	base
	store  TicketStore
	router Assigner
}

func NewTicketService(store TicketStore, router Assigner, opts Options) *TicketService {
	return &TicketService{base: newBase("ticket", opts), store: store, router: router}
}

// TicketInput is the writable part of a ticket.
type TicketInput struct {
	Subject        string               `json:"subject"`
	Description    string               `json:"description"`
	Priority       model.TicketPriority `json:"priority"`
	Category       string               `json:"category"`
	RequesterEmail string               `json:"requester_email"`
	ContactID      *string              `json:"contact_id"`
	AssignedTo     *string              `json:"assigned_to"`
	// AutoAssign routes the ticket to an agent when AssignedTo is empty.
	AutoAssign bool `json:"auto_assign"`
}

// Create opens a ticket with an SLA due date and emits ticket_created.
func (s *TicketService) Create(ctx context.Context, tenantID string, in TicketInput) (*model.Ticket, error) {
	now := s.now()
	t := &model.Ticket{
		ID:             model.NewID(),
		TenantID:       tenantID,
		Subject:        strings.TrimSpace(in.Subject),
		Description:    in.Description,
		Priority:       in.Priority,
		Category:       in.Category,
		RequesterEmail: in.RequesterEmail,
		ContactID:      emptyToNil(in.ContactID),
		AssignedTo:     emptyToNil(in.AssignedTo),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	t.ApplyDefaults(now)
	if err := t.Validate(); err != nil {
		return nil, err
	}

	var contact *model.CrmContact
	if t.ContactID != nil {
		var err error
		if contact, err = s.store.GetContact(ctx, tenantID, *t.ContactID); err != nil {
			return nil, translate(err, ErrContactNotFound)
		}
	}

	if err := s.reserve(ctx, t, in.AutoAssign); err != nil {
		return nil, err
	}
	if err := s.store.CreateTicket(ctx, t); err != nil {
		if t.AssignedTo != nil {
			s.release(ctx, tenantID, *t.AssignedTo)
		}
		return nil, translate(err, ErrTicketNotFound)
	}
	s.changed(ctx, tenantID, "ticket", "create")

	ev := model.Event{TenantID: tenantID, Trigger: model.TriggerTicketCreated, TicketID: t.ID, Data: ticketEventData(t, contact)}
	if contact != nil {
		ev.ContactID = contact.ID
	}
	s.emit(ctx, ev)
	return t, nil
}

func (s *TicketService) reserve(ctx context.Context, t *model.Ticket, auto bool) error {
	if s.router == nil {
		return nil
	}
	if t.AssignedTo != nil {
		// An explicit assignee without a free slot is refused rather than
		// recorded as holding one.
		if err := s.router.AssignTo(ctx, t.TenantID, *t.AssignedTo); err != nil {
			if errors.Is(err, crm.ErrNoAgentAvailable) {
				return err
			}
			return fmt.Errorf("failed to assign ticket: %w", err)
		}
		return nil
	}
	if !auto {
		return nil
	}
	agentID, err := s.router.Assign(ctx, t.TenantID, "")
	if errors.Is(err, crm.ErrNoAgentAvailable) {
		s.logger.Warn("ticket_unassigned", "tenant_id", t.TenantID, "reason", err.Error())
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to assign ticket: %w", err)
	}
	t.AssignedTo = &agentID
	return nil
}

func (s *TicketService) release(ctx context.Context, tenantID, agentID string) {
	if s.router == nil {
		return
	}
	if err := s.router.Release(ctx, tenantID, agentID); err != nil {
		s.logger.Warn("assignment_release_failed", "tenant_id", tenantID, "agent_id", agentID, "error", err)
	}
}

func (s *TicketService) Get(ctx context.Context, tenantID, id string) (*model.Ticket, error) {
	t, err := s.store.GetTicket(ctx, tenantID, id)
	return t, translate(err, ErrTicketNotFound)
}

func (s *TicketService) List(ctx context.Context, tenantID string, f model.TicketFilter, p model.Page) (*ListResult[*model.Ticket], error) {
	items, total, err := s.store.ListTickets(ctx, tenantID, f, p)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	return newList(items, total, p), nil
}

// TicketPatch holds optional ticket changes.
type TicketPatch struct {
	Subject        *string               `json:"subject"`
	Description    *string               `json:"description"`
	Priority       *model.TicketPriority `json:"priority"`
	Status         *model.TicketStatus   `json:"status"`
	Category       *string               `json:"category"`
	RequesterEmail *string               `json:"requester_email"`
	AssignedTo     *string               `json:"assigned_to"`
}

// Update applies p. Entering resolved or closed stamps resolved_at and frees
// the assignee's slot; reopening clears the stamp and reserves it again.
func (s *TicketService) Update(ctx context.Context, tenantID, id string, p TicketPatch) (*model.Ticket, error) {
	t, err := s.store.GetTicket(ctx, tenantID, id)
	if err != nil {
		return nil, translate(err, ErrTicketNotFound)
	}
	now := s.now()
	wasTerminal := t.Status.IsTerminal()
	prevAssignee := t.AssignedTo

	if p.Status != nil && *p.Status != t.Status {
		if !t.Status.CanTransition(*p.Status) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, *p.Status)
		}
		t.Status = *p.Status
	}
	if p.Priority != nil && *p.Priority != t.Priority {
		t.Priority = *p.Priority
		t.DueAt = t.CreatedAt.Add(t.Priority.SLA())
	}
	setIf(&t.Subject, p.Subject)
	setIf(&t.Description, p.Description)
	setIf(&t.Category, p.Category)
	setIf(&t.RequesterEmail, p.RequesterEmail)
	if p.AssignedTo != nil {
		t.AssignedTo = emptyToNil(p.AssignedTo)
	}
	t.RequesterEmail = model.NormalizeEmail(t.RequesterEmail)

	isTerminal := t.Status.IsTerminal()
	switch {
	case isTerminal && !wasTerminal:
		t.ResolvedAt = &now
	case !isTerminal && wasTerminal:
		t.ResolvedAt = nil
	}
	t.UpdatedAt = now

	if err := t.Validate(); err != nil {
		return nil, err
	}

	// Move capacity only when the holder of the slot changes.
	held := func(terminal bool, agent *string) string {
		if terminal || agent == nil {
			return ""
		}
		return *agent
	}
	before, after := held(wasTerminal, prevAssignee), held(isTerminal, t.AssignedTo)
	moved := before != after && s.router != nil
	reserved := false
	if moved && after != "" {
		switch err := s.router.AssignTo(ctx, tenantID, after); {
		case err == nil:
			reserved = true
		case errors.Is(err, crm.ErrNoAgentAvailable) && p.AssignedTo == nil:
			// Reopened while the previous assignee is full: the ticket
			// returns to the queue unassigned.
			s.logger.Warn("ticket_unassigned", "tenant_id", tenantID, "ticket_id", t.ID, "agent_id", after, "reason", err.Error())
			t.AssignedTo = nil
		case errors.Is(err, crm.ErrNoAgentAvailable):
			return nil, err
		default:
			return nil, fmt.Errorf("failed to assign ticket: %w", err)
		}
	}

	if err := s.store.UpdateTicket(ctx, t); err != nil {
		if reserved {
			s.release(ctx, tenantID, after)
		}
		return nil, translate(err, ErrTicketNotFound)
	}
	if moved && before != "" {
		s.release(ctx, tenantID, before)
	}
	s.changed(ctx, tenantID, "ticket", "update")
	return t, nil
}

func (s *TicketService) Delete(ctx context.Context, tenantID, id string) error {
	t, err := s.store.GetTicket(ctx, tenantID, id)
	if err != nil {
		return translate(err, ErrTicketNotFound)
	}
	if err := s.store.DeleteTicket(ctx, tenantID, id); err != nil {
		return translate(err, ErrTicketNotFound)
	}
	if !t.Status.IsTerminal() && t.AssignedTo != nil {
		s.release(ctx, tenantID, *t.AssignedTo)
	}
	s.changed(ctx, tenantID, "ticket", "delete")
	return nil
}

func ticketEventData(t *model.Ticket, c *model.CrmContact) map[string]any {
	data := map[string]any{
		"ticket": map[string]any{
			"id":              t.ID,
			"subject":         t.Subject,
			"priority":        string(t.Priority),
			"category":        t.Category,
			"requester_email": t.RequesterEmail,
		},
	}
	if c != nil {
		data["contact"] = contactEventData(c)
	}
	return data
}

func emptyToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
