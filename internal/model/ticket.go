package model

import (
	"slices"
	"time"
)

type TicketPriority string

const (
	PriorityLow    TicketPriority = "low"
	PriorityMedium TicketPriority = "medium"
	PriorityHigh   TicketPriority = "high"
	PriorityUrgent TicketPriority = "urgent"
)

var TicketPriorities = []TicketPriority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

// SLA returns the response window for the priority.
func (p TicketPriority) SLA() time.Duration {
	switch p {
	case PriorityUrgent:
		return 4 * time.Hour
	case PriorityHigh:
		return 24 * time.Hour
	case PriorityLow:
		return 168 * time.Hour
	default:
		return 72 * time.Hour
	}
}

type TicketStatus string

const (
	TicketOpen       TicketStatus = "open"
	TicketInProgress TicketStatus = "in_progress"
	TicketWaiting    TicketStatus = "waiting"
	TicketResolved   TicketStatus = "resolved"
	TicketClosed     TicketStatus = "closed"
)

var TicketStatuses = []TicketStatus{TicketOpen, TicketInProgress, TicketWaiting, TicketResolved, TicketClosed}

var ticketTransitions = map[TicketStatus][]TicketStatus{
	TicketOpen:       {TicketInProgress, TicketWaiting, TicketResolved, TicketClosed},
	TicketInProgress: {TicketWaiting, TicketResolved, TicketClosed},
	TicketWaiting:    {TicketInProgress, TicketResolved, TicketClosed},
	TicketResolved:   {TicketOpen, TicketClosed},
}

func (s TicketStatus) CanTransition(to TicketStatus) bool {
	return slices.Contains(ticketTransitions[s], to)
}

// IsTerminal reports resolved or closed.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketResolved || s == TicketClosed
}

// Ticket is a support request.
type Ticket struct {
	ID             string         `json:"id" db:"id"`
	TenantID       string         `json:"tenant_id" db:"tenant_id"`
	Subject        string         `json:"subject" db:"subject"`
	Description    string         `json:"description,omitempty" db:"description"`
	Priority       TicketPriority `json:"priority" db:"priority"`
	Status         TicketStatus   `json:"status" db:"status"`
	Category       string         `json:"category,omitempty" db:"category"`
	RequesterEmail string         `json:"requester_email,omitempty" db:"requester_email"`
	ContactID      *string        `json:"contact_id,omitempty" db:"contact_id"`
	AssignedTo     *string        `json:"assigned_to,omitempty" db:"assigned_to"`
	DueAt          time.Time      `json:"due_at" db:"due_at"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty" db:"resolved_at"`
	Deleted        bool           `json:"-" db:"deleted"`
	DeletedAt      *time.Time     `json:"-" db:"deleted_at"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// IsOverdue reports an unresolved ticket past its SLA.
func (t *Ticket) IsOverdue(now time.Time) bool {
	return !t.Status.IsTerminal() && now.After(t.DueAt)
}

// ApplyDefaults sets priority, status and the SLA due date.
func (t *Ticket) ApplyDefaults(now time.Time) {
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.Status == "" {
		t.Status = TicketOpen
	}
	if t.DueAt.IsZero() {
		t.DueAt = now.Add(t.Priority.SLA())
	}
	t.RequesterEmail = NormalizeEmail(t.RequesterEmail)
}

func (t *Ticket) Validate() error {
	var v ValidationErrors
	v.Required("subject", t.Subject)
	v.MaxLen("subject", t.Subject, 200)
	v.MaxLen("description", t.Description, 5000)
	v.Email("requester_email", t.RequesterEmail)
	OneOf(&v, "priority", t.Priority, TicketPriorities)
	OneOf(&v, "status", t.Status, TicketStatuses)
	return v.Err()
}

type TicketResponse struct {
	*Ticket
	Overdue bool `json:"overdue"`
}

func (t *Ticket) ToResponse(now time.Time) TicketResponse {
	return TicketResponse{Ticket: t, Overdue: t.IsOverdue(now)}
}

type TicketFilter struct {
	Status     TicketStatus
	Priority   TicketPriority
	AssignedTo string
	ContactID  string
	Overdue    bool
}
