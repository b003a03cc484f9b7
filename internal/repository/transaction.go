package repository

import (
	"context"

	"github.com/solarvest/platform/internal/model"
)

const transactionCols = `id, tenant_id, investor_id, investment_id, type, amount, currency, status, reference,
	due_date, processed_at, description, deleted, deleted_at, created_at, updated_at`

// CreateTransaction returns ErrDuplicate when the reference is already used in the tenant.
func (r *Repository) CreateTransaction(ctx context.Context, t *model.Transaction) error {
	return insert(ctx, r.db, "create transaction", `
		INSERT INTO transactions (id, tenant_id, investor_id, investment_id, type, amount, currency, status,
			reference, due_date, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)`,
		t.ID, t.TenantID, t.InvestorID, t.InvestmentID, t.Type, t.Amount, t.Currency, t.Status,
		t.Reference, t.DueDate, t.Description, t.CreatedAt,
	)
}

func (r *Repository) GetTransaction(ctx context.Context, tenantID, id string) (*model.Transaction, error) {
	return one[model.Transaction](ctx, r.db,
		`SELECT `+transactionCols+` FROM transactions WHERE tenant_id = $1 AND id = $2 AND NOT deleted`, tenantID, id)
}

func (r *Repository) ListTransactions(ctx context.Context, tenantID string, f model.TransactionFilter, p model.Page) ([]*model.Transaction, int64, error) {
	w := tenantScope(tenantID)
	eqIf(w, "investor_id", f.InvestorID)
	eqIf(w, "investment_id", f.InvestmentID)
	eqIf(w, "type", f.Type)
	eqIf(w, "status", f.Status)
	if f.From != nil {
		w.cmp("created_at", ">=", *f.From)
	}
	if f.To != nil {
		w.cmp("created_at", "<", *f.To)
	}
	return list[model.Transaction](ctx, r.db, "transactions", transactionCols, w, "created_at DESC, id", p)
}

// UpdateTransactionStatus moves a pending transaction to a final status.
// Returns ErrConflict when the transaction is no longer pending.
func (r *Repository) UpdateTransactionStatus(ctx context.Context, t *model.Transaction) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE transactions SET status = $3, processed_at = $4, updated_at = $5
		WHERE tenant_id = $1 AND id = $2 AND NOT deleted AND status = 'pending'`,
		t.TenantID, t.ID, t.Status, t.ProcessedAt, t.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (r *Repository) DeleteTransaction(ctx context.Context, tenantID, id string) error {
	return softDelete(ctx, r.db, "transactions", tenantID, id)
}
