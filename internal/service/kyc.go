package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/solarvest/platform/internal/model"
	"github.com/solarvest/platform/internal/repository"
)

// KYCStore is the persistence for identity documents.
type KYCStore interface {
	CreateKYCDocument(ctx context.Context, d *model.KYCDocument) error
	GetKYCDocument(ctx context.Context, tenantID, id string) (*model.KYCDocument, error)
	ListKYCDocuments(ctx context.Context, tenantID string, f model.KYCFilter, p model.Page) ([]*model.KYCDocument, int64, error)
	ReviewKYCDocument(ctx context.Context, d *model.KYCDocument) error
	DeleteKYCDocument(ctx context.Context, tenantID, id string) error
	GetInvestor(ctx context.Context, tenantID, id string) (*model.Investor, error)
	SetInvestorKYCStatus(ctx context.Context, tenantID, id string, status model.KYCStatus) error
}

// KYCService handles document intake and review.
type KYCService struct {
	base
	store KYCStore
}

func NewKYCService(store KYCStore, opts Options) *KYCService {
	return &KYCService{base: newBase("kyc", opts), store: store}
}

// KYCInput describes an uploaded document.
type KYCInput struct {
	OwnerType    model.KYCOwnerType `json:"owner_type"`
	OwnerID      string             `json:"owner_id"`
	DocumentType model.DocumentType `json:"document_type"`
	FileURL      string             `json:"file_url"`
	ExpiresAt    *time.Time         `json:"expires_at"`
}

// Create stores document metadata. Investor-owned documents move an
// investor with no verification in flight to pending.
func (s *KYCService) Create(ctx context.Context, tenantID string, in KYCInput) (*model.KYCDocument, error) {
	now := s.now()
	d := &model.KYCDocument{
		ID:           model.NewID(),
		TenantID:     tenantID,
		OwnerType:    in.OwnerType,
		OwnerID:      in.OwnerID,
		DocumentType: in.DocumentType,
		FileURL:      strings.TrimSpace(in.FileURL),
		Status:       model.DocPending,
		ExpiresAt:    in.ExpiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	var investor *model.Investor
	if d.OwnerType == model.KYCOwnerInvestor {
		var err error
		if investor, err = s.store.GetInvestor(ctx, tenantID, d.OwnerID); err != nil {
			return nil, translate(err, ErrInvestorNotFound)
		}
	}

	if err := s.store.CreateKYCDocument(ctx, d); err != nil {
		return nil, translate(err, ErrDocumentNotFound)
	}
	if investor != nil && (investor.KYCStatus == model.KYCNotStarted || investor.KYCStatus == model.KYCRejected) {
		if err := s.store.SetInvestorKYCStatus(ctx, tenantID, investor.ID, model.KYCPending); err != nil {
			return nil, fmt.Errorf("failed to update investor kyc status: %w", err)
		}
	}
	s.changed(ctx, tenantID, "kyc_document", "create")
	return d, nil
}

func (s *KYCService) Get(ctx context.Context, tenantID, id string) (*model.KYCDocument, error) {
	d, err := s.store.GetKYCDocument(ctx, tenantID, id)
	return d, translate(err, ErrDocumentNotFound)
}

func (s *KYCService) List(ctx context.Context, tenantID string, f model.KYCFilter, p model.Page) (*ListResult[*model.KYCDocument], error) {
	items, total, err := s.store.ListKYCDocuments(ctx, tenantID, f, p)
	if err != nil {
		return nil, fmt.Errorf("failed to list kyc documents: %w", err)
	}
	return newList(items, total, p), nil
}

// Review approves or rejects a pending document. For investor-owned
// documents the investor's kyc_status follows the outcome.
func (s *KYCService) Review(ctx context.Context, tenantID, id, reviewerID string, review model.KYCReview) (*model.KYCDocument, error) {
	d, err := s.store.GetKYCDocument(ctx, tenantID, id)
	if err != nil {
		return nil, translate(err, ErrDocumentNotFound)
	}
	if d.Status != model.DocPending {
		return nil, ErrAlreadyReviewed
	}

	now := s.now()
	d.ReviewedBy = &reviewerID
	d.ReviewedAt = &now
	d.UpdatedAt = now
	if review.Approve {
		d.Status = model.DocApproved
		d.RejectionReason = ""
		if d.IsExpired(now) {
			return nil, model.ValidationErrors{{Field: "expires_at", Message: "document has expired"}}
		}
	} else {
		d.Status = model.DocRejected
		d.RejectionReason = strings.TrimSpace(review.Reason)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	if err := s.store.ReviewKYCDocument(ctx, d); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrAlreadyReviewed
		}
		return nil, translate(err, ErrDocumentNotFound)
	}

	if d.OwnerType == model.KYCOwnerInvestor {
		status := model.KYCRejected
		if review.Approve {
			status = model.KYCVerified
		}
		if err := s.store.SetInvestorKYCStatus(ctx, tenantID, d.OwnerID, status); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("failed to update investor kyc status: %w", err)
		}
	}
	s.changed(ctx, tenantID, "kyc_document", "update")
	s.logger.Info("kyc_reviewed", "tenant_id", tenantID, "document_id", id, "status", d.Status, "reviewer_id", reviewerID)
	return d, nil
}

func (s *KYCService) Delete(ctx context.Context, tenantID, id string) error {
	if err := s.store.DeleteKYCDocument(ctx, tenantID, id); err != nil {
		return translate(err, ErrDocumentNotFound)
	}
	s.changed(ctx, tenantID, "kyc_document", "delete")
	return nil
}
