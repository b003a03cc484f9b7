package model

import (
	"slices"
	"strings"
	"time"
)

// TransactionType classifies money movement.
type TransactionType string

const (
	TxDeposit    TransactionType = "deposit"
	TxWithdrawal TransactionType = "withdrawal"
	TxDividend   TransactionType = "dividend"
	TxFee        TransactionType = "fee"
	TxRefund     TransactionType = "refund"
)

var TransactionTypes = []TransactionType{TxDeposit, TxWithdrawal, TxDividend, TxFee, TxRefund}

// TransactionStatus is the settlement state.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxCompleted TransactionStatus = "completed"
	TxFailed    TransactionStatus = "failed"
	TxCancelled TransactionStatus = "cancelled"
)

var TransactionStatuses = []TransactionStatus{TxPending, TxCompleted, TxFailed, TxCancelled}

// CanTransition allows only pending transactions to settle.
func (s TransactionStatus) CanTransition(to TransactionStatus) bool {
	return s == TxPending && to != TxPending && slices.Contains(TransactionStatuses, to)
}

// Transaction is a ledger entry for an investor.
type Transaction struct {
	ID           string            `json:"id" db:"id"`
	TenantID     string            `json:"tenant_id" db:"tenant_id"`
	InvestorID   string            `json:"investor_id" db:"investor_id"`
	InvestmentID *string           `json:"investment_id,omitempty" db:"investment_id"`
	Type         TransactionType   `json:"type" db:"type"`
	Amount       float64           `json:"amount" db:"amount"`
	Currency     string            `json:"currency" db:"currency"`
	Status       TransactionStatus `json:"status" db:"status"`
	Reference    string            `json:"reference" db:"reference"`
	DueDate      *time.Time        `json:"due_date,omitempty" db:"due_date"`
	ProcessedAt  *time.Time        `json:"processed_at,omitempty" db:"processed_at"`
	Description  string            `json:"description,omitempty" db:"description"`
	Deleted      bool              `json:"-" db:"deleted"`
	DeletedAt    *time.Time        `json:"-" db:"deleted_at"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at" db:"updated_at"`
}

// IsOverdue reports a pending transaction past its due date.
func (t *Transaction) IsOverdue(now time.Time) bool {
	return t.Status == TxPending && t.DueDate != nil && now.After(*t.DueDate)
}

// SignedAmount is negative for money leaving the investor's balance.
func (t *Transaction) SignedAmount() float64 {
	switch t.Type {
	case TxWithdrawal, TxFee:
		return -t.Amount
	}
	return t.Amount
}

func (t *Transaction) ApplyDefaults() {
	if t.Status == "" {
		t.Status = TxPending
	}
	if t.Currency == "" {
		t.Currency = "USD"
	}
	t.Currency = strings.ToUpper(t.Currency)
}

// Validate checks field rules.
func (t *Transaction) Validate() error {
	var v ValidationErrors
	v.Required("investor_id", t.InvestorID)
	OneOf(&v, "type", t.Type, TransactionTypes)
	OneOf(&v, "status", t.Status, TransactionStatuses)
	if t.Amount <= 0 {
		v.Add("amount", "must be greater than 0")
	}
	if !ValidCurrency(t.Currency) {
		v.Add("currency", "must be a supported ISO 4217 code")
	}
	v.MaxLen("reference", t.Reference, 64)
	v.MaxLen("description", t.Description, 500)
	return v.Err()
}

// TransactionResponse adds computed fields.
type TransactionResponse struct {
	*Transaction
	Overdue      bool    `json:"overdue"`
	SignedAmount float64 `json:"signed_amount"`
}

func (t *Transaction) ToResponse(now time.Time) TransactionResponse {
	return TransactionResponse{Transaction: t, Overdue: t.IsOverdue(now), SignedAmount: t.SignedAmount()}
}

// TransactionFilter narrows transaction listings.
type TransactionFilter struct {
	InvestorID   string
	InvestmentID string
	Type         TransactionType
	Status       TransactionStatus
	From         *time.Time
	To           *time.Time
}
