package repository

import (
	"context"

	"github.com/solarvest/platform/internal/model"
)

const kycCols = `id, tenant_id, owner_type, owner_id, document_type, file_url, status, expires_at, reviewed_by,
	reviewed_at, rejection_reason, deleted, deleted_at, created_at, updated_at`

func (r *Repository) CreateKYCDocument(ctx context.Context, d *model.KYCDocument) error {
	return insert(ctx, r.db, "create kyc document", `
		INSERT INTO kyc_documents (id, tenant_id, owner_type, owner_id, document_type, file_url, status, expires_at,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		d.ID, d.TenantID, d.OwnerType, d.OwnerID, d.DocumentType, d.FileURL, d.Status, d.ExpiresAt, d.CreatedAt,
	)
}

func (r *Repository) GetKYCDocument(ctx context.Context, tenantID, id string) (*model.KYCDocument, error) {
	return one[model.KYCDocument](ctx, r.db,
		`SELECT `+kycCols+` FROM kyc_documents WHERE tenant_id = $1 AND id = $2 AND NOT deleted`, tenantID, id)
}

func (r *Repository) ListKYCDocuments(ctx context.Context, tenantID string, f model.KYCFilter, p model.Page) ([]*model.KYCDocument, int64, error) {
	w := tenantScope(tenantID)
	eqIf(w, "owner_type", f.OwnerType)
	eqIf(w, "owner_id", f.OwnerID)
	eqIf(w, "status", f.Status)
	return list[model.KYCDocument](ctx, r.db, "kyc_documents", kycCols, w, "created_at DESC, id", p)
}

// ReviewKYCDocument records a review on a pending document.
// Returns ErrConflict if the document was already reviewed.
func (r *Repository) ReviewKYCDocument(ctx context.Context, d *model.KYCDocument) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE kyc_documents SET status = $3, reviewed_by = $4, reviewed_at = $5, rejection_reason = $6, updated_at = $5
		WHERE tenant_id = $1 AND id = $2 AND NOT deleted AND status = 'pending'`,
		d.TenantID, d.ID, d.Status, d.ReviewedBy, d.ReviewedAt, d.RejectionReason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (r *Repository) DeleteKYCDocument(ctx context.Context, tenantID, id string) error {
	return softDelete(ctx, r.db, "kyc_documents", tenantID, id)
}
