package repository

import (
	"context"

	"github.com/solarvest/platform/internal/model"
)

const applicationCols = `id, tenant_id, applicant_name, applicant_email, applicant_phone, address, property_type,
	system_size_kw, estimated_cost, monthly_bill, status, assigned_to, submitted_at, reviewed_at,
	rejection_reason, deleted, deleted_at, created_at, updated_at`

func (r *Repository) CreateApplication(ctx context.Context, a *model.SolarApplication) error {
	return insert(ctx, r.db, "create application", `
		INSERT INTO solar_applications (id, tenant_id, applicant_name, applicant_email, applicant_phone, address,
			property_type, system_size_kw, estimated_cost, monthly_bill, status, assigned_to, submitted_at,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)`,
		a.ID, a.TenantID, a.ApplicantName, a.ApplicantEmail, a.ApplicantPhone, a.Address,
		a.PropertyType, a.SystemSizeKW, a.EstimatedCost, a.MonthlyBill, a.Status, a.AssignedTo, a.SubmittedAt,
		a.CreatedAt,
	)
}

func (r *Repository) GetApplication(ctx context.Context, tenantID, id string) (*model.SolarApplication, error) {
	return one[model.SolarApplication](ctx, r.db,
		`SELECT `+applicationCols+` FROM solar_applications WHERE tenant_id = $1 AND id = $2 AND NOT deleted`, tenantID, id)
}

func (r *Repository) ListApplications(ctx context.Context, tenantID string, f model.ApplicationFilter, p model.Page) ([]*model.SolarApplication, int64, error) {
	w := tenantScope(tenantID)
	eqIf(w, "status", f.Status)
	eqIf(w, "property_type", f.PropertyType)
	eqIf(w, "assigned_to", f.AssignedTo)
	w.search(f.Query, "applicant_name", "applicant_email", "address")
	return list[model.SolarApplication](ctx, r.db, "solar_applications", applicationCols, w, "created_at DESC, id", p)
}

// UpdateApplication writes all mutable fields, including status stamps.
func (r *Repository) UpdateApplication(ctx context.Context, a *model.SolarApplication) error {
	return execOne(ctx, r.db, "update application", `
		UPDATE solar_applications SET applicant_name = $3, applicant_email = $4, applicant_phone = $5, address = $6,
			property_type = $7, system_size_kw = $8, estimated_cost = $9, monthly_bill = $10, status = $11,
			assigned_to = $12, submitted_at = $13, reviewed_at = $14, rejection_reason = $15, updated_at = $16
		WHERE tenant_id = $1 AND id = $2 AND NOT deleted`,
		a.TenantID, a.ID, a.ApplicantName, a.ApplicantEmail, a.ApplicantPhone, a.Address,
		a.PropertyType, a.SystemSizeKW, a.EstimatedCost, a.MonthlyBill, a.Status,
		a.AssignedTo, a.SubmittedAt, a.ReviewedAt, a.RejectionReason, a.UpdatedAt,
	)
}

func (r *Repository) DeleteApplication(ctx context.Context, tenantID, id string) error {
	return softDelete(ctx, r.db, "solar_applications", tenantID, id)
}
