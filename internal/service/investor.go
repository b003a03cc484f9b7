package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/solarvest/platform/internal/model"
)

// InvestorStore is the persistence for investors and their investments.
type InvestorStore interface {
	CreateInvestor(ctx context.Context, i *model.Investor) error
	GetInvestor(ctx context.Context, tenantID, id string) (*model.Investor, error)
	ListInvestors(ctx context.Context, tenantID string, f model.InvestorFilter, p model.Page) ([]*model.Investor, int64, error)
	UpdateInvestor(ctx context.Context, i *model.Investor) error
	SetInvestorKYCStatus(ctx context.Context, tenantID, id string, status model.KYCStatus) error
	DeleteInvestor(ctx context.Context, tenantID, id string) error

	CreateInvestment(ctx context.Context, i *model.Investment) error
	GetInvestment(ctx context.Context, tenantID, id string) (*model.Investment, error)
	ListInvestments(ctx context.Context, tenantID string, f model.InvestmentFilter, p model.Page) ([]*model.Investment, int64, error)
	ListInvestmentsByInvestor(ctx context.Context, tenantID, investorID string) ([]*model.Investment, error)
	UpdateInvestment(ctx context.Context, i *model.Investment) error
	DeleteInvestment(ctx context.Context, tenantID, id string) error
}

// InvestorService handles investor business logic.
type InvestorService struct {
	base
	store InvestorStore
}

func NewInvestorService(store InvestorStore, opts Options) *InvestorService {
	return &InvestorService{base: newBase("investor", opts), store: store}
}

// InvestorInput is the writable part of an investor.
type InvestorInput struct {
	UserID      *string              `json:"user_id"`
	FirstName   string               `json:"first_name"`
	LastName    string               `json:"last_name"`
	Email       string               `json:"email"`
	Phone       string               `json:"phone"`
	Type        model.InvestorType   `json:"type"`
	Status      model.InvestorStatus `json:"status"`
	RiskProfile model.RiskProfile    `json:"risk_profile"`
	Country     string               `json:"country"`
	Notes       string               `json:"notes"`
}

func (s *InvestorService) Create(ctx context.Context, tenantID string, in InvestorInput) (*model.Investor, error) {
	now := s.now()
	inv := &model.Investor{
		ID:          model.NewID(),
		TenantID:    tenantID,
		UserID:      in.UserID,
		FirstName:   strings.TrimSpace(in.FirstName),
		LastName:    strings.TrimSpace(in.LastName),
		Email:       in.Email,
		Phone:       strings.TrimSpace(in.Phone),
		Type:        in.Type,
		Status:      in.Status,
		RiskProfile: in.RiskProfile,
		Country:     strings.ToUpper(in.Country),
		Notes:       in.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	inv.ApplyDefaults()
	if err := inv.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.CreateInvestor(ctx, inv); err != nil {
		return nil, translate(err, ErrInvestorNotFound)
	}
	s.changed(ctx, tenantID, "investor", "create")
	return inv, nil
}

func (s *InvestorService) Get(ctx context.Context, tenantID, id string) (*model.Investor, error) {
	inv, err := s.store.GetInvestor(ctx, tenantID, id)
	return inv, translate(err, ErrInvestorNotFound)
}

func (s *InvestorService) List(ctx context.Context, tenantID string, f model.InvestorFilter, p model.Page) (*ListResult[*model.Investor], error) {
	items, total, err := s.store.ListInvestors(ctx, tenantID, f, p)
	if err != nil {
		return nil, fmt.Errorf("failed to list investors: %w", err)
	}
	return newList(items, total, p), nil
}

// InvestorPatch holds optional investor changes. KYC status is only changed by document review.
type InvestorPatch struct {
	UserID      *string               `json:"user_id"`
	FirstName   *string               `json:"first_name"`
	LastName    *string               `json:"last_name"`
	Email       *string               `json:"email"`
	Phone       *string               `json:"phone"`
	Type        *model.InvestorType   `json:"type"`
	Status      *model.InvestorStatus `json:"status"`
	RiskProfile *model.RiskProfile    `json:"risk_profile"`
	Country     *string               `json:"country"`
	Notes       *string               `json:"notes"`
}

func (s *InvestorService) Update(ctx context.Context, tenantID, id string, p InvestorPatch) (*model.Investor, error) {
	inv, err := s.store.GetInvestor(ctx, tenantID, id)
	if err != nil {
		return nil, translate(err, ErrInvestorNotFound)
	}
	if p.UserID != nil {
		inv.UserID = p.UserID
	}
	setIf(&inv.FirstName, p.FirstName)
	setIf(&inv.LastName, p.LastName)
	setIf(&inv.Email, p.Email)
	setIf(&inv.Phone, p.Phone)
	setIf(&inv.Type, p.Type)
	setIf(&inv.Status, p.Status)
	setIf(&inv.RiskProfile, p.RiskProfile)
	setIf(&inv.Country, p.Country)
	setIf(&inv.Notes, p.Notes)
	inv.Country = strings.ToUpper(inv.Country)
	inv.ApplyDefaults()
	inv.UpdatedAt = s.now()

	if err := inv.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.UpdateInvestor(ctx, inv); err != nil {
		return nil, translate(err, ErrInvestorNotFound)
	}
	s.changed(ctx, tenantID, "investor", "update")
	return inv, nil
}

func (s *InvestorService) Delete(ctx context.Context, tenantID, id string) error {
	if err := s.store.DeleteInvestor(ctx, tenantID, id); err != nil {
		return translate(err, ErrInvestorNotFound)
	}
	s.changed(ctx, tenantID, "investor", "delete")
	return nil
}

// Portfolio summarises an investor's holdings. Cancelled investments are
// listed but excluded from totals.
func (s *InvestorService) Portfolio(ctx context.Context, tenantID, id string) (*model.Portfolio, error) {
	inv, err := s.store.GetInvestor(ctx, tenantID, id)
	if err != nil {
		return nil, translate(err, ErrInvestorNotFound)
	}
	investments, err := s.store.ListInvestmentsByInvestor(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list investments: %w", err)
	}
	return BuildPortfolio(inv, investments, s.now()), nil
}

// BuildPortfolio computes portfolio totals.
func BuildPortfolio(inv *model.Investor, investments []*model.Investment, now time.Time) *model.Portfolio {
	p := &model.Portfolio{
		Investor:    inv.ToResponse(),
		Investments: make([]model.InvestmentResponse, 0, len(investments)),
	}
	for _, i := range investments {
		p.Investments = append(p.Investments, i.ToResponse(now))
		if i.Status == model.InvestmentCancelled {
			continue
		}
		p.TotalInvested += i.Amount
		p.TotalPaidOut += i.PaidOut
		p.ExpectedReturn += i.ExpectedReturn()
		if i.Status == model.InvestmentActive {
			p.TotalActive += i.Amount
		}
	}
	return p
}

// InvestmentService handles investment business logic.
type InvestmentService struct {
	base
	store InvestorStore
}

func NewInvestmentService(store InvestorStore, opts Options) *InvestmentService {
	return &InvestmentService{base: newBase("investment", opts), store: store}
}

// InvestmentInput is the writable part of an investment.
type InvestmentInput struct {
	InvestorID    string                 `json:"investor_id"`
	ProjectName   string                 `json:"project_name"`
	Amount        float64                `json:"amount"`
	Currency      string                 `json:"currency"`
	ExpectedYield float64                `json:"expected_yield"`
	TermMonths    int                    `json:"term_months"`
	StartDate     *time.Time             `json:"start_date"`
	Status        model.InvestmentStatus `json:"status"`
}

func (s *InvestmentService) Create(ctx context.Context, tenantID string, in InvestmentInput) (*model.Investment, error) {
	now := s.now()
	i := &model.Investment{
		ID:            model.NewID(),
		TenantID:      tenantID,
		InvestorID:    in.InvestorID,
		ProjectName:   strings.TrimSpace(in.ProjectName),
		Amount:        in.Amount,
		Currency:      in.Currency,
		ExpectedYield: in.ExpectedYield,
		TermMonths:    in.TermMonths,
		Status:        in.Status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if in.StartDate != nil {
		i.StartDate = *in.StartDate
	}
	i.ApplyDefaults(now)
	if i.Status != model.InvestmentPending && i.Status != model.InvestmentActive {
		return nil, model.ValidationErrors{{Field: "status", Message: "new investments must be pending or active"}}
	}
	if err := i.Validate(); err != nil {
		return nil, err
	}

	investor, err := s.store.GetInvestor(ctx, tenantID, i.InvestorID)
	if err != nil {
		return nil, translate(err, ErrInvestorNotFound)
	}
	if i.Status == model.InvestmentActive && !investor.CanInvest() {
		return nil, ErrCannotInvest
	}

	if err := s.store.CreateInvestment(ctx, i); err != nil {
		return nil, translate(err, ErrInvestmentNotFound)
	}
	s.changed(ctx, tenantID, "investment", "create")
	return i, nil
}

func (s *InvestmentService) Get(ctx context.Context, tenantID, id string) (*model.Investment, error) {
	i, err := s.store.GetInvestment(ctx, tenantID, id)
	return i, translate(err, ErrInvestmentNotFound)
}

func (s *InvestmentService) List(ctx context.Context, tenantID string, f model.InvestmentFilter, p model.Page) (*ListResult[*model.Investment], error) {
	items, total, err := s.store.ListInvestments(ctx, tenantID, f, p)
	if err != nil {
		return nil, fmt.Errorf("failed to list investments: %w", err)
	}
	return newList(items, total, p), nil
}

// InvestmentPatch holds optional investment changes.
type InvestmentPatch struct {
	ProjectName   *string                 `json:"project_name"`
	Amount        *float64                `json:"amount"`
	Currency      *string                 `json:"currency"`
	ExpectedYield *float64                `json:"expected_yield"`
	TermMonths    *int                    `json:"term_months"`
	StartDate     *time.Time              `json:"start_date"`
	Status        *model.InvestmentStatus `json:"status"`
	PaidOut       *float64                `json:"paid_out"`
}

// Update applies p. Status changes follow the transition table and
// activation requires an investor that can invest.
func (s *InvestmentService) Update(ctx context.Context, tenantID, id string, p InvestmentPatch) (*model.Investment, error) {
	i, err := s.store.GetInvestment(ctx, tenantID, id)
	if err != nil {
		return nil, translate(err, ErrInvestmentNotFound)
	}

	if p.Status != nil && *p.Status != i.Status {
		if !i.Status.CanTransition(*p.Status) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, i.Status, *p.Status)
		}
		if *p.Status == model.InvestmentActive {
			investor, err := s.store.GetInvestor(ctx, tenantID, i.InvestorID)
			if err != nil {
				return nil, translate(err, ErrInvestorNotFound)
			}
			if !investor.CanInvest() {
				return nil, ErrCannotInvest
			}
		}
		i.Status = *p.Status
	}
	setIf(&i.ProjectName, p.ProjectName)
	setIf(&i.Amount, p.Amount)
	setIf(&i.Currency, p.Currency)
	setIf(&i.ExpectedYield, p.ExpectedYield)
	setIf(&i.TermMonths, p.TermMonths)
	setIf(&i.StartDate, p.StartDate)
	setIf(&i.PaidOut, p.PaidOut)
	i.Currency = strings.ToUpper(i.Currency)
	i.UpdatedAt = s.now()

	if err := i.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.UpdateInvestment(ctx, i); err != nil {
		return nil, translate(err, ErrInvestmentNotFound)
	}
	s.changed(ctx, tenantID, "investment", "update")
	return i, nil
}

func (s *InvestmentService) Delete(ctx context.Context, tenantID, id string) error {
	if err := s.store.DeleteInvestment(ctx, tenantID, id); err != nil {
		return translate(err, ErrInvestmentNotFound)
	}
	s.changed(ctx, tenantID, "investment", "delete")
	return nil
}
