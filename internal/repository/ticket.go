package repository

import (
	"context"

	"github.com/solarvest/platform/internal/model"
)

const ticketCols = `id, tenant_id, subject, description, priority, status, category, requester_email, contact_id,
	assigned_to, due_at, resolved_at, deleted, deleted_at, created_at, updated_at`

func (r *Repository) CreateTicket(ctx context.Context, t *model.Ticket) error {
	return insert(ctx, r.db, "create ticket", `
		INSERT INTO tickets (id, tenant_id, subject, description, priority, status, category, requester_email,
			contact_id, assigned_to, due_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)`,
		t.ID, t.TenantID, t.Subject, t.Description, t.Priority, t.Status, t.Category, t.RequesterEmail,
		t.ContactID, t.AssignedTo, t.DueAt, t.CreatedAt,
	)
}

func (r *Repository) GetTicket(ctx context.Context, tenantID, id string) (*model.Ticket, error) {
	return one[model.Ticket](ctx, r.db,
		`SELECT `+ticketCols+` FROM tickets WHERE tenant_id = $1 AND id = $2 AND NOT deleted`, tenantID, id)
}

func (r *Repository) ListTickets(ctx context.Context, tenantID string, f model.TicketFilter, p model.Page) ([]*model.Ticket, int64, error) {
	w := tenantScope(tenantID)
	eqIf(w, "status", f.Status)
	eqIf(w, "priority", f.Priority)
	eqIf(w, "assigned_to", f.AssignedTo)
	eqIf(w, "contact_id", f.ContactID)
	if f.Overdue {
		w.raw("status NOT IN ('resolved', 'closed') AND due_at < now()")
	}
	return list[model.Ticket](ctx, r.db, "tickets", ticketCols, w, "due_at ASC, id", p)
}

func (r *Repository) UpdateTicket(ctx context.Context, t *model.Ticket) error {
	return execOne(ctx, r.db, "update ticket", `
		UPDATE tickets SET subject = $3, description = $4, priority = $5, status = $6, category = $7,
			requester_email = $8, contact_id = $9, assigned_to = $10, due_at = $11, resolved_at = $12, updated_at = $13
		WHERE tenant_id = $1 AND id = $2 AND NOT deleted`,
		t.TenantID, t.ID, t.Subject, t.Description, t.Priority, t.Status, t.Category,
		t.RequesterEmail, t.ContactID, t.AssignedTo, t.DueAt, t.ResolvedAt, t.UpdatedAt,
	)
}

func (r *Repository) DeleteTicket(ctx context.Context, tenantID, id string) error {
	return softDelete(ctx, r.db, "tickets", tenantID, id)
}
