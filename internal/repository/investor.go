package repository

import (
	"context"

	"github.com/solarvest/platform/internal/model"
)

const investorCols = `id, tenant_id, user_id, first_name, last_name, email, phone, type, status, kyc_status,
	risk_profile, country, notes, deleted, deleted_at, created_at, updated_at`

func (r *Repository) CreateInvestor(ctx context.Context, i *model.Investor) error {
	return insert(ctx, r.db, "create investor", `
		INSERT INTO investors (id, tenant_id, user_id, first_name, last_name, email, phone, type, status,
			kyc_status, risk_profile, country, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)`,
		i.ID, i.TenantID, i.UserID, i.FirstName, i.LastName, i.Email, i.Phone, i.Type, i.Status,
		i.KYCStatus, i.RiskProfile, i.Country, i.Notes, i.CreatedAt,
	)
}

func (r *Repository) GetInvestor(ctx context.Context, tenantID, id string) (*model.Investor, error) {
	return one[model.Investor](ctx, r.db,
		`SELECT `+investorCols+` FROM investors WHERE tenant_id = $1 AND id = $2 AND NOT deleted`, tenantID, id)
}

func (r *Repository) ListInvestors(ctx context.Context, tenantID string, f model.InvestorFilter, p model.Page) ([]*model.Investor, int64, error) {
	w := tenantScope(tenantID)
	eqIf(w, "status", f.Status)
	eqIf(w, "kyc_status", f.KYCStatus)
	eqIf(w, "type", f.Type)
	w.search(f.Query, "first_name", "last_name", "email")
	return list[model.Investor](ctx, r.db, "investors", investorCols, w, "created_at DESC, id", p)
}

func (r *Repository) UpdateInvestor(ctx context.Context, i *model.Investor) error {
	return execOne(ctx, r.db, "update investor", `
		UPDATE investors SET user_id = $3, first_name = $4, last_name = $5, email = $6, phone = $7, type = $8,
			status = $9, kyc_status = $10, risk_profile = $11, country = $12, notes = $13, updated_at = $14
		WHERE tenant_id = $1 AND id = $2 AND NOT deleted`,
		i.TenantID, i.ID, i.UserID, i.FirstName, i.LastName, i.Email, i.Phone, i.Type,
		i.Status, i.KYCStatus, i.RiskProfile, i.Country, i.Notes, i.UpdatedAt,
	)
}

// SetInvestorKYCStatus is used by document review.
func (r *Repository) SetInvestorKYCStatus(ctx context.Context, tenantID, id string, status model.KYCStatus) error {
	return execOne(ctx, r.db, "set kyc status", `
		UPDATE investors SET kyc_status = $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND NOT deleted`, tenantID, id, status)
}

func (r *Repository) DeleteInvestor(ctx context.Context, tenantID, id string) error {
	return softDelete(ctx, r.db, "investors", tenantID, id)
}

const investmentCols = `id, tenant_id, investor_id, project_name, amount, currency, expected_yield, term_months,
	start_date, status, paid_out, deleted, deleted_at, created_at, updated_at`

func (r *Repository) CreateInvestment(ctx context.Context, i *model.Investment) error {
	return insert(ctx, r.db, "create investment", `
		INSERT INTO investments (id, tenant_id, investor_id, project_name, amount, currency, expected_yield,
			term_months, start_date, status, paid_out, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)`,
		i.ID, i.TenantID, i.InvestorID, i.ProjectName, i.Amount, i.Currency, i.ExpectedYield,
		i.TermMonths, i.StartDate, i.Status, i.PaidOut, i.CreatedAt,
	)
}

func (r *Repository) GetInvestment(ctx context.Context, tenantID, id string) (*model.Investment, error) {
	return one[model.Investment](ctx, r.db,
		`SELECT `+investmentCols+` FROM investments WHERE tenant_id = $1 AND id = $2 AND NOT deleted`, tenantID, id)
}

func (r *Repository) ListInvestments(ctx context.Context, tenantID string, f model.InvestmentFilter, p model.Page) ([]*model.Investment, int64, error) {
	w := tenantScope(tenantID)
	eqIf(w, "investor_id", f.InvestorID)
	eqIf(w, "status", f.Status)
	return list[model.Investment](ctx, r.db, "investments", investmentCols, w, "start_date DESC, id", p)
}

// ListInvestmentsByInvestor returns every live investment of one investor.
func (r *Repository) ListInvestmentsByInvestor(ctx context.Context, tenantID, investorID string) ([]*model.Investment, error) {
	return all[model.Investment](ctx, r.db, `
		SELECT `+investmentCols+` FROM investments
		WHERE tenant_id = $1 AND investor_id = $2 AND NOT deleted
		ORDER BY start_date DESC, id`, tenantID, investorID)
}

func (r *Repository) UpdateInvestment(ctx context.Context, i *model.Investment) error {
	return execOne(ctx, r.db, "update investment", `
		UPDATE investments SET project_name = $3, amount = $4, currency = $5, expected_yield = $6,
			term_months = $7, start_date = $8, status = $9, paid_out = $10, updated_at = $11
		WHERE tenant_id = $1 AND id = $2 AND NOT deleted`,
		i.TenantID, i.ID, i.ProjectName, i.Amount, i.Currency, i.ExpectedYield,
		i.TermMonths, i.StartDate, i.Status, i.PaidOut, i.UpdatedAt,
	)
}

func (r *Repository) DeleteInvestment(ctx context.Context, tenantID, id string) error {
	return softDelete(ctx, r.db, "investments", tenantID, id)
}
