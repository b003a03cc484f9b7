package model

import (
	"strings"
	"time"
)

// InvestorType classifies the legal form of an investor.
type InvestorType string

const (
	InvestorIndividual    InvestorType = "individual"
	InvestorCompany       InvestorType = "company"
	InvestorInstitutional InvestorType = "institutional"
)

var InvestorTypes = []InvestorType{InvestorIndividual, InvestorCompany, InvestorInstitutional}

// InvestorStatus is the relationship state.
type InvestorStatus string

const (
	InvestorProspect  InvestorStatus = "prospect"
	InvestorActive    InvestorStatus = "active"
	InvestorInactive  InvestorStatus = "inactive"
	InvestorSuspended InvestorStatus = "suspended"
)

var InvestorStatuses = []InvestorStatus{InvestorProspect, InvestorActive, InvestorInactive, InvestorSuspended}

// KYCStatus is the identity verification state of an investor.
type KYCStatus string

const (
	KYCNotStarted KYCStatus = "not_started"
	KYCPending    KYCStatus = "pending"
	KYCVerified   KYCStatus = "verified"
	KYCRejected   KYCStatus = "rejected"
)

var KYCStatuses = []KYCStatus{KYCNotStarted, KYCPending, KYCVerified, KYCRejected}

// RiskProfile is the investor's declared appetite.
type RiskProfile string

const (
	RiskConservative RiskProfile = "conservative"
	RiskModerate     RiskProfile = "moderate"
	RiskAggressive   RiskProfile = "aggressive"
)

var RiskProfiles = []RiskProfile{RiskConservative, RiskModerate, RiskAggressive}

// Investor is a person or organisation funding solar projects.
type Investor struct {
	ID          string         `json:"id" db:"id"`
	TenantID    string         `json:"tenant_id" db:"tenant_id"`
	UserID      *string        `json:"user_id,omitempty" db:"user_id"`
	FirstName   string         `json:"first_name" db:"first_name"`
	LastName    string         `json:"last_name" db:"last_name"`
	Email       string         `json:"email" db:"email"`
	Phone       string         `json:"phone,omitempty" db:"phone"`
	Type        InvestorType   `json:"type" db:"type"`
	Status      InvestorStatus `json:"status" db:"status"`
	KYCStatus   KYCStatus      `json:"kyc_status" db:"kyc_status"`
	RiskProfile RiskProfile    `json:"risk_profile" db:"risk_profile"`
	Country     string         `json:"country,omitempty" db:"country"`
	Notes       string         `json:"notes,omitempty" db:"notes"`
	Deleted     bool           `json:"-" db:"deleted"`
	DeletedAt   *time.Time     `json:"-" db:"deleted_at"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// FullName joins first and last name.
func (i *Investor) FullName() string {
	return strings.TrimSpace(i.FirstName + " " + i.LastName)
}

// CanInvest requires an active investor with verified KYC.
func (i *Investor) CanInvest() bool {
	return i.Status == InvestorActive && i.KYCStatus == KYCVerified
}

// ApplyDefaults fills unset enums.
func (i *Investor) ApplyDefaults() {
	if i.Type == "" {
		i.Type = InvestorIndividual
	}
	if i.Status == "" {
		i.Status = InvestorProspect
	}
	if i.KYCStatus == "" {
		i.KYCStatus = KYCNotStarted
	}
	if i.RiskProfile == "" {
		i.RiskProfile = RiskModerate
	}
	i.Email = NormalizeEmail(i.Email)
}

// Validate checks field rules.
func (i *Investor) Validate() error {
	var v ValidationErrors
	v.Required("first_name", i.FirstName)
	v.MaxLen("first_name", i.FirstName, 100)
	v.MaxLen("last_name", i.LastName, 100)
	v.Required("email", i.Email)
	v.Email("email", i.Email)
	v.MaxLen("phone", i.Phone, 32)
	v.MaxLen("notes", i.Notes, 2000)
	OneOf(&v, "type", i.Type, InvestorTypes)
	OneOf(&v, "status", i.Status, InvestorStatuses)
	OneOf(&v, "kyc_status", i.KYCStatus, KYCStatuses)
	OneOf(&v, "risk_profile", i.RiskProfile, RiskProfiles)
	if i.Country != "" && len(i.Country) != 2 {
		v.Add("country", "must be an ISO 3166 alpha-2 code")
	}
	return v.Err()
}

// InvestorResponse adds computed fields.
type InvestorResponse struct {
	*Investor
	FullName  string `json:"full_name"`
	CanInvest bool   `json:"can_invest"`
}

func (i *Investor) ToResponse() InvestorResponse {
	return InvestorResponse{Investor: i, FullName: i.FullName(), CanInvest: i.CanInvest()}
}

// InvestorFilter narrows investor listings.
type InvestorFilter struct {
	Status    InvestorStatus
	KYCStatus KYCStatus
	Type      InvestorType
	Query     string
}

// InvestmentStatus is the lifecycle state of an investment.
type InvestmentStatus string

const (
	InvestmentPending   InvestmentStatus = "pending"
	InvestmentActive    InvestmentStatus = "active"
	InvestmentMatured   InvestmentStatus = "matured"
	InvestmentCancelled InvestmentStatus = "cancelled"
)

var InvestmentStatuses = []InvestmentStatus{InvestmentPending, InvestmentActive, InvestmentMatured, InvestmentCancelled}

var investmentTransitions = map[InvestmentStatus][]InvestmentStatus{
	InvestmentPending: {InvestmentActive, InvestmentCancelled},
	InvestmentActive:  {InvestmentMatured, InvestmentCancelled},
}

// CanTransition reports whether from -> to is allowed.
func (s InvestmentStatus) CanTransition(to InvestmentStatus) bool {
	for _, next := range investmentTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Investment is capital committed by an investor to a project.
type Investment struct {
	ID            string           `json:"id" db:"id"`
	TenantID      string           `json:"tenant_id" db:"tenant_id"`
	InvestorID    string           `json:"investor_id" db:"investor_id"`
	ProjectName   string           `json:"project_name" db:"project_name"`
	Amount        float64          `json:"amount" db:"amount"`
	Currency      string           `json:"currency" db:"currency"`
	ExpectedYield float64          `json:"expected_yield" db:"expected_yield"`
	TermMonths    int              `json:"term_months" db:"term_months"`
	StartDate     time.Time        `json:"start_date" db:"start_date"`
	Status        InvestmentStatus `json:"status" db:"status"`
	PaidOut       float64          `json:"paid_out" db:"paid_out"`
	Deleted       bool             `json:"-" db:"deleted"`
	DeletedAt     *time.Time       `json:"-" db:"deleted_at"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at" db:"updated_at"`
}

// MaturityDate is StartDate plus the term.
func (i *Investment) MaturityDate() time.Time {
	return i.StartDate.AddDate(0, i.TermMonths, 0)
}

// ExpectedReturn is simple annual yield over the term.
func (i *Investment) ExpectedReturn() float64 {
	return i.Amount * (i.ExpectedYield / 100) * (float64(i.TermMonths) / 12)
}

// IsMatured reports whether the term has elapsed.
func (i *Investment) IsMatured(now time.Time) bool {
	if i.Status == InvestmentMatured {
		return true
	}
	return i.Status == InvestmentActive && !now.Before(i.MaturityDate())
}

func (i *Investment) ApplyDefaults(now time.Time) {
	if i.Status == "" {
		i.Status = InvestmentPending
	}
	if i.Currency == "" {
		i.Currency = "USD"
	}
	i.Currency = strings.ToUpper(i.Currency)
	if i.StartDate.IsZero() {
		i.StartDate = now.UTC().Truncate(24 * time.Hour)
	}
}

// Validate checks field rules.
func (i *Investment) Validate() error {
	var v ValidationErrors
	v.Required("investor_id", i.InvestorID)
	v.Required("project_name", i.ProjectName)
	v.MaxLen("project_name", i.ProjectName, 200)
	if i.Amount <= 0 {
		v.Add("amount", "must be greater than 0")
	}
	if !ValidCurrency(i.Currency) {
		v.Add("currency", "must be a supported ISO 4217 code")
	}
	if i.ExpectedYield < 0 || i.ExpectedYield > 100 {
		v.Add("expected_yield", "must be between 0 and 100")
	}
	if i.TermMonths < 1 || i.TermMonths > 600 {
		v.Add("term_months", "must be between 1 and 600")
	}
	if i.PaidOut < 0 {
		v.Add("paid_out", "must not be negative")
	}
	OneOf(&v, "status", i.Status, InvestmentStatuses)
	return v.Err()
}

// InvestmentResponse adds computed fields.
type InvestmentResponse struct {
	*Investment
	MaturityDate   time.Time `json:"maturity_date"`
	ExpectedReturn float64   `json:"expected_return"`
	Matured        bool      `json:"matured"`
}

func (i *Investment) ToResponse(now time.Time) InvestmentResponse {
	return InvestmentResponse{
		Investment:     i,
		MaturityDate:   i.MaturityDate(),
		ExpectedReturn: i.ExpectedReturn(),
		Matured:        i.IsMatured(now),
	}
}

// InvestmentFilter narrows investment listings.
type InvestmentFilter struct {
	InvestorID string
	Status     InvestmentStatus
}

// Portfolio summarises an investor's holdings.
type Portfolio struct {
	Investor       InvestorResponse     `json:"investor"`
	Investments    []InvestmentResponse `json:"investments"`
	TotalInvested  float64              `json:"total_invested"`
	TotalActive    float64              `json:"total_active"`
	TotalPaidOut   float64              `json:"total_paid_out"`
	ExpectedReturn float64              `json:"expected_return"`
}
