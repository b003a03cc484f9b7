package repository

import (
	"context"
	"time"

	"github.com/solarvest/platform/internal/model"
)

const automationCols = `id, tenant_id, name, description, trigger, conditions, expression, actions, is_active,
	run_count, success_count, failure_count, last_run_at, deleted, deleted_at, created_at, updated_at`

func (r *Repository) CreateAutomation(ctx context.Context, a *model.CrmAutomation) error {
	return insert(ctx, r.db, "create automation", `
		INSERT INTO crm_automations (id, tenant_id, name, description, trigger, conditions, expression, actions,
			is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
		a.ID, a.TenantID, a.Name, a.Description, a.Trigger, a.Conditions, a.Expression, a.Actions,
		a.IsActive, a.CreatedAt,
	)
}

func (r *Repository) GetAutomation(ctx context.Context, tenantID, id string) (*model.CrmAutomation, error) {
	return one[model.CrmAutomation](ctx, r.db,
		`SELECT `+automationCols+` FROM crm_automations WHERE tenant_id = $1 AND id = $2 AND NOT deleted`, tenantID, id)
}

func (r *Repository) ListAutomations(ctx context.Context, tenantID string, f model.AutomationFilter, p model.Page) ([]*model.CrmAutomation, int64, error) {
	w := tenantScope(tenantID)
	eqIf(w, "trigger", f.Trigger)
	if f.Active != nil {
		w.eq("is_active", *f.Active)
	}
	return list[model.CrmAutomation](ctx, r.db, "crm_automations", automationCols, w, "created_at, id", p)
}

// ActiveAutomations returns the automations to evaluate for a trigger, oldest first.
func (r *Repository) ActiveAutomations(ctx context.Context, tenantID string, trigger model.Trigger) ([]*model.CrmAutomation, error) {
	return all[model.CrmAutomation](ctx, r.db, `
		SELECT `+automationCols+` FROM crm_automations
		WHERE tenant_id = $1 AND trigger = $2 AND is_active AND NOT deleted
		ORDER BY created_at, id`, tenantID, trigger)
}

func (r *Repository) UpdateAutomation(ctx context.Context, a *model.CrmAutomation) error {
	return execOne(ctx, r.db, "update automation", `
		UPDATE crm_automations SET name = $3, description = $4, trigger = $5, conditions = $6, expression = $7,
			actions = $8, is_active = $9, updated_at = $10
		WHERE tenant_id = $1 AND id = $2 AND NOT deleted`,
		a.TenantID, a.ID, a.Name, a.Description, a.Trigger, a.Conditions, a.Expression,
		a.Actions, a.IsActive, a.UpdatedAt,
	)
}

// RecordAutomationRun bumps the run counters atomically.
func (r *Repository) RecordAutomationRun(ctx context.Context, tenantID, id string, success bool, at time.Time) error {
	return execOne(ctx, r.db, "record automation run", `
		UPDATE crm_automations SET
			run_count = run_count + 1,
			success_count = success_count + CASE WHEN $3 THEN 1 ELSE 0 END,
			failure_count = failure_count + CASE WHEN $3 THEN 0 ELSE 1 END,
			last_run_at = $4
		WHERE tenant_id = $1 AND id = $2`, tenantID, id, success, at)
}

func (r *Repository) DeleteAutomation(ctx context.Context, tenantID, id string) error {
	return softDelete(ctx, r.db, "crm_automations", tenantID, id)
}
