package repository

import (
	"context"
	"time"

	"github.com/solarvest/platform/internal/model"
)

const contactCols = `id, tenant_id, first_name, last_name, email, phone, company, source, status, tags, owner_id,
	investor_id, last_contacted_at, deleted, deleted_at, created_at, updated_at`

func (r *Repository) CreateContact(ctx context.Context, c *model.CrmContact) error {
	return insert(ctx, r.db, "create contact", `
		INSERT INTO crm_contacts (id, tenant_id, first_name, last_name, email, phone, company, source, status, tags,
			owner_id, investor_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)`,
		c.ID, c.TenantID, c.FirstName, c.LastName, c.Email, c.Phone, c.Company, c.Source, c.Status, c.Tags,
		c.OwnerID, c.InvestorID, c.CreatedAt,
	)
}

func (r *Repository) GetContact(ctx context.Context, tenantID, id string) (*model.CrmContact, error) {
	return one[model.CrmContact](ctx, r.db,
		`SELECT `+contactCols+` FROM crm_contacts WHERE tenant_id = $1 AND id = $2 AND NOT deleted`, tenantID, id)
}

// FindContact looks a contact up by email or phone, preferring email.
func (r *Repository) FindContact(ctx context.Context, tenantID, email, phone string) (*model.CrmContact, error) {
	return one[model.CrmContact](ctx, r.db, `
		SELECT `+contactCols+` FROM crm_contacts
		WHERE tenant_id = $1 AND NOT deleted
			AND (($2 <> '' AND email = $2) OR ($3 <> '' AND phone = $3))
		ORDER BY (email = $2) DESC, created_at
		LIMIT 1`, tenantID, email, phone)
}

func (r *Repository) ListContacts(ctx context.Context, tenantID string, f model.ContactFilter, p model.Page) ([]*model.CrmContact, int64, error) {
	w := tenantScope(tenantID)
	eqIf(w, "status", f.Status)
	eqIf(w, "owner_id", f.OwnerID)
	if f.Tag != "" {
		w.raw(w.arg(f.Tag) + " = ANY(tags)")
	}
	w.search(f.Query, "first_name", "last_name", "email", "company")
	return list[model.CrmContact](ctx, r.db, "crm_contacts", contactCols, w, "created_at DESC, id", p)
}

func (r *Repository) UpdateContact(ctx context.Context, c *model.CrmContact) error {
	return execOne(ctx, r.db, "update contact", `
		UPDATE crm_contacts SET first_name = $3, last_name = $4, email = $5, phone = $6, company = $7, source = $8,
			status = $9, tags = $10, owner_id = $11, investor_id = $12, last_contacted_at = $13, updated_at = $14
		WHERE tenant_id = $1 AND id = $2 AND NOT deleted`,
		c.TenantID, c.ID, c.FirstName, c.LastName, c.Email, c.Phone, c.Company, c.Source,
		c.Status, c.Tags, c.OwnerID, c.InvestorID, c.LastContactedAt, c.UpdatedAt,
	)
}

// AddContactTag appends tag unless present.
func (r *Repository) AddContactTag(ctx context.Context, tenantID, id, tag string) error {
	return execOne(ctx, r.db, "add tag", `
		UPDATE crm_contacts SET tags = CASE WHEN $3 = ANY(tags) THEN tags ELSE array_append(tags, $3) END, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND NOT deleted`, tenantID, id, tag)
}

func (r *Repository) SetContactOwner(ctx context.Context, tenantID, id, ownerID string) error {
	return execOne(ctx, r.db, "set owner", `
		UPDATE crm_contacts SET owner_id = $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND NOT deleted`, tenantID, id, ownerID)
}

func (r *Repository) SetContactStatus(ctx context.Context, tenantID, id string, status model.ContactStatus) error {
	return execOne(ctx, r.db, "set contact status", `
		UPDATE crm_contacts SET status = $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND NOT deleted`, tenantID, id, status)
}

func (r *Repository) TouchContact(ctx context.Context, tenantID, id string, at time.Time) error {
	return execOne(ctx, r.db, "touch contact", `
		UPDATE crm_contacts SET last_contacted_at = $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND NOT deleted`, tenantID, id, at)
}

func (r *Repository) DeleteContact(ctx context.Context, tenantID, id string) error {
	return softDelete(ctx, r.db, "crm_contacts", tenantID, id)
}
