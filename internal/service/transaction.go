package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/solarvest/platform/internal/model"
)

// TransactionStore is the persistence for ledger entries.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, t *model.Transaction) error
	GetTransaction(ctx context.Context, tenantID, id string) (*model.Transaction, error)
	ListTransactions(ctx context.Context, tenantID string, f model.TransactionFilter, p model.Page) ([]*model.Transaction, int64, error)
	UpdateTransactionStatus(ctx context.Context, t *model.Transaction) error
	DeleteTransaction(ctx context.Context, tenantID, id string) error
	GetInvestor(ctx context.Context, tenantID, id string) (*model.Investor, error)
	GetInvestment(ctx context.Context, tenantID, id string) (*model.Investment, error)
}

// TransactionService records money movement for investors.
type TransactionService struct {
	base
	store TransactionStore
}

func NewTransactionService(store TransactionStore, opts Options) *TransactionService {
	return &TransactionService{base: newBase("transaction", opts), store: store}
}

// TransactionInput is the writable part of a transaction.
type TransactionInput struct {
	InvestorID   string                `json:"investor_id"`
	InvestmentID *string               `json:"investment_id"`
	Type         model.TransactionType `json:"type"`
	Amount       float64               `json:"amount"`
	Currency     string                `json:"currency"`
	Reference    string                `json:"reference"`
	DueDate      *time.Time            `json:"due_date"`
	Description  string                `json:"description"`
}

// Create records a pending transaction. A TXN-<ULID> reference is generated
// when none is supplied; references are unique per tenant.
func (s *TransactionService) Create(ctx context.Context, tenantID string, in TransactionInput) (*model.Transaction, error) {
	now := s.now()
	t := &model.Transaction{
		ID:           model.NewID(),
		TenantID:     tenantID,
		InvestorID:   in.InvestorID,
		InvestmentID: in.InvestmentID,
		Type:         in.Type,
		Amount:       in.Amount,
		Currency:     in.Currency,
		Reference:    strings.TrimSpace(in.Reference),
		DueDate:      in.DueDate,
		Description:  in.Description,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if t.Reference == "" {
		t.Reference = model.NewTransactionReference()
	}
	t.ApplyDefaults()
	if err := t.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.store.GetInvestor(ctx, tenantID, t.InvestorID); err != nil {
		return nil, translate(err, ErrInvestorNotFound)
	}
	if t.InvestmentID != nil {
		inv, err := s.store.GetInvestment(ctx, tenantID, *t.InvestmentID)
		if err != nil {
			return nil, translate(err, ErrInvestmentNotFound)
		}
		if inv.InvestorID != t.InvestorID {
			return nil, model.ValidationErrors{{Field: "investment_id", Message: "belongs to another investor"}}
		}
	}

	if err := s.store.CreateTransaction(ctx, t); err != nil {
		return nil, translate(err, ErrTransactionNotFound)
	}
	s.changed(ctx, tenantID, "transaction", "create")
	return t, nil
}

func (s *TransactionService) Get(ctx context.Context, tenantID, id string) (*model.Transaction, error) {
	t, err := s.store.GetTransaction(ctx, tenantID, id)
	return t, translate(err, ErrTransactionNotFound)
}

func (s *TransactionService) List(ctx context.Context, tenantID string, f model.TransactionFilter, p model.Page) (*ListResult[*model.Transaction], error) {
	items, total, err := s.store.ListTransactions(ctx, tenantID, f, p)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return newList(items, total, p), nil
}

// UpdateStatus settles a pending transaction and stamps processed_at.
func (s *TransactionService) UpdateStatus(ctx context.Context, tenantID, id string, status model.TransactionStatus) (*model.Transaction, error) {
	var v model.ValidationErrors
	model.OneOf(&v, "status", status, model.TransactionStatuses)
	if err := v.Err(); err != nil {
		return nil, err
	}

	t, err := s.store.GetTransaction(ctx, tenantID, id)
	if err != nil {
		return nil, translate(err, ErrTransactionNotFound)
	}
	if !t.Status.CanTransition(status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, status)
	}

	now := s.now()
	t.Status = status
	t.ProcessedAt = &now
	t.UpdatedAt = now
	if err := s.store.UpdateTransactionStatus(ctx, t); err != nil {
		return nil, translate(err, ErrTransactionNotFound)
	}
	s.changed(ctx, tenantID, "transaction", "update")
	s.logger.Info("transaction_processed", "tenant_id", tenantID, "transaction_id", id, "status", status)
	return t, nil
}

func (s *TransactionService) Delete(ctx context.Context, tenantID, id string) error {
	if err := s.store.DeleteTransaction(ctx, tenantID, id); err != nil {
		return translate(err, ErrTransactionNotFound)
	}
	s.changed(ctx, tenantID, "transaction", "delete")
	return nil
}
