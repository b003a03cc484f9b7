package repository

import (
	"context"

	"github.com/solarvest/platform/internal/model"
)

const templateCols = `id, tenant_id, name, channel, category, subject, body, variables, is_active, usage_count,
	deleted, deleted_at, created_at, updated_at`

// CreateTemplate returns ErrDuplicate when the name is taken in the tenant.
func (r *Repository) CreateTemplate(ctx context.Context, t *model.CrmTemplate) error {
	return insert(ctx, r.db, "create template", `
		INSERT INTO crm_templates (id, tenant_id, name, channel, category, subject, body, variables, is_active,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
		t.ID, t.TenantID, t.Name, t.Channel, t.Category, t.Subject, t.Body, t.Variables, t.IsActive, t.CreatedAt,
	)
}

func (r *Repository) GetTemplate(ctx context.Context, tenantID, id string) (*model.CrmTemplate, error) {
	return one[model.CrmTemplate](ctx, r.db,
		`SELECT `+templateCols+` FROM crm_templates WHERE tenant_id = $1 AND id = $2 AND NOT deleted`, tenantID, id)
}

func (r *Repository) ListTemplates(ctx context.Context, tenantID string, f model.TemplateFilter, p model.Page) ([]*model.CrmTemplate, int64, error) {
	w := tenantScope(tenantID)
	eqIf(w, "channel", f.Channel)
	eqIf(w, "category", f.Category)
	if f.Active != nil {
		w.eq("is_active", *f.Active)
	}
	return list[model.CrmTemplate](ctx, r.db, "crm_templates", templateCols, w, "name, id", p)
}

func (r *Repository) UpdateTemplate(ctx context.Context, t *model.CrmTemplate) error {
	return execOne(ctx, r.db, "update template", `
		UPDATE crm_templates SET name = $3, channel = $4, category = $5, subject = $6, body = $7, variables = $8,
			is_active = $9, updated_at = $10
		WHERE tenant_id = $1 AND id = $2 AND NOT deleted`,
		t.TenantID, t.ID, t.Name, t.Channel, t.Category, t.Subject, t.Body, t.Variables, t.IsActive, t.UpdatedAt,
	)
}

func (r *Repository) IncrementTemplateUsage(ctx context.Context, tenantID, id string) error {
	return execOne(ctx, r.db, "template usage", `
		UPDATE crm_templates SET usage_count = usage_count + 1
		WHERE tenant_id = $1 AND id = $2 AND NOT deleted`, tenantID, id)
}

func (r *Repository) DeleteTemplate(ctx context.Context, tenantID, id string) error {
	return softDelete(ctx, r.db, "crm_templates", tenantID, id)
}
