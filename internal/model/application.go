package model

import (
	"slices"
	"time"
)

// PropertyType of the site receiving an installation.
type PropertyType string

const (
	PropertyResidential PropertyType = "residential"
	PropertyCommercial  PropertyType = "commercial"
	PropertyIndustrial  PropertyType = "industrial"
)

var PropertyTypes = []PropertyType{PropertyResidential, PropertyCommercial, PropertyIndustrial}

// ApplicationStatus tracks a solar application through review and install.
type ApplicationStatus string

const (
	ApplicationDraft       ApplicationStatus = "draft"
	ApplicationSubmitted   ApplicationStatus = "submitted"
	ApplicationUnderReview ApplicationStatus = "under_review"
	ApplicationApproved    ApplicationStatus = "approved"
	ApplicationRejected    ApplicationStatus = "rejected"
	ApplicationInstalled   ApplicationStatus = "installed"
	ApplicationCancelled   ApplicationStatus = "cancelled"
)

var ApplicationStatuses = []ApplicationStatus{
	ApplicationDraft, ApplicationSubmitted, ApplicationUnderReview, ApplicationApproved,
	ApplicationRejected, ApplicationInstalled, ApplicationCancelled,
}

var applicationTransitions = map[ApplicationStatus][]ApplicationStatus{
	ApplicationDraft:       {ApplicationSubmitted, ApplicationCancelled},
	ApplicationSubmitted:   {ApplicationUnderReview, ApplicationCancelled},
	ApplicationUnderReview: {ApplicationApproved, ApplicationRejected},
	ApplicationApproved:    {ApplicationInstalled, ApplicationCancelled},
	ApplicationRejected:    {ApplicationSubmitted},
}

// CanTransition reports whether from -> to is allowed.
func (s ApplicationStatus) CanTransition(to ApplicationStatus) bool {
	return slices.Contains(applicationTransitions[s], to)
}

// Sizing constants for estimates.
const (
	// kWh produced per installed kW per year at an average site.
	AnnualYieldPerKW = 1400.0
	// Grid tariff used when converting monthly bills to consumption.
	DefaultTariffPerKWh = 0.15
)

// SolarApplication is a request to install a system at a property.
type SolarApplication struct {
	ID              string            `json:"id" db:"id"`
	TenantID        string            `json:"tenant_id" db:"tenant_id"`
	ApplicantName   string            `json:"applicant_name" db:"applicant_name"`
	ApplicantEmail  string            `json:"applicant_email" db:"applicant_email"`
	ApplicantPhone  string            `json:"applicant_phone,omitempty" db:"applicant_phone"`
	Address         string            `json:"address" db:"address"`
	PropertyType    PropertyType      `json:"property_type" db:"property_type"`
	SystemSizeKW    float64           `json:"system_size_kw" db:"system_size_kw"`
	EstimatedCost   float64           `json:"estimated_cost" db:"estimated_cost"`
	MonthlyBill     float64           `json:"monthly_bill" db:"monthly_bill"`
	Status          ApplicationStatus `json:"status" db:"status"`
	AssignedTo      *string           `json:"assigned_to,omitempty" db:"assigned_to"`
	SubmittedAt     *time.Time        `json:"submitted_at,omitempty" db:"submitted_at"`
	ReviewedAt      *time.Time        `json:"reviewed_at,omitempty" db:"reviewed_at"`
	RejectionReason string            `json:"rejection_reason,omitempty" db:"rejection_reason"`
	Deleted         bool              `json:"-" db:"deleted"`
	DeletedAt       *time.Time        `json:"-" db:"deleted_at"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at" db:"updated_at"`
}

// EstimatedAnnualProductionKWh uses a flat per-kW yield.
func (a *SolarApplication) EstimatedAnnualProductionKWh() float64 {
	return a.SystemSizeKW * AnnualYieldPerKW
}

// EstimatedAnnualSavings caps savings at the current annual bill.
func (a *SolarApplication) EstimatedAnnualSavings() float64 {
	savings := a.EstimatedAnnualProductionKWh() * DefaultTariffPerKWh
	annualBill := a.MonthlyBill * 12
	if annualBill > 0 && savings > annualBill {
		return annualBill
	}
	return savings
}

// PaybackYears returns 0 when savings are unknown.
func (a *SolarApplication) PaybackYears() float64 {
	s := a.EstimatedAnnualSavings()
	if s <= 0 || a.EstimatedCost <= 0 {
		return 0
	}
	return a.EstimatedCost / s
}

func (a *SolarApplication) ApplyDefaults() {
	if a.Status == "" {
		a.Status = ApplicationDraft
	}
	if a.PropertyType == "" {
		a.PropertyType = PropertyResidential
	}
	a.ApplicantEmail = NormalizeEmail(a.ApplicantEmail)
}

// Validate checks field rules.
func (a *SolarApplication) Validate() error {
	var v ValidationErrors
	v.Required("applicant_name", a.ApplicantName)
	v.MaxLen("applicant_name", a.ApplicantName, 200)
	v.Required("applicant_email", a.ApplicantEmail)
	v.Email("applicant_email", a.ApplicantEmail)
	v.Required("address", a.Address)
	v.MaxLen("address", a.Address, 500)
	OneOf(&v, "property_type", a.PropertyType, PropertyTypes)
	OneOf(&v, "status", a.Status, ApplicationStatuses)
	if a.SystemSizeKW <= 0 || a.SystemSizeKW > 10000 {
		v.Add("system_size_kw", "must be greater than 0 and at most 10000")
	}
	if a.EstimatedCost < 0 {
		v.Add("estimated_cost", "must not be negative")
	}
	if a.MonthlyBill < 0 {
		v.Add("monthly_bill", "must not be negative")
	}
	return v.Err()
}

// ApplicationResponse adds computed fields.
type ApplicationResponse struct {
	*SolarApplication
	EstimatedAnnualProductionKWh float64 `json:"estimated_annual_production_kwh"`
	EstimatedAnnualSavings       float64 `json:"estimated_annual_savings"`
	PaybackYears                 float64 `json:"payback_years"`
}

func (a *SolarApplication) ToResponse() ApplicationResponse {
	return ApplicationResponse{
		SolarApplication:             a,
		EstimatedAnnualProductionKWh: a.EstimatedAnnualProductionKWh(),
		EstimatedAnnualSavings:       a.EstimatedAnnualSavings(),
		PaybackYears:                 a.PaybackYears(),
	}
}

// ApplicationFilter narrows application listings.
type ApplicationFilter struct {
	Status       ApplicationStatus
	PropertyType PropertyType
	AssignedTo   string
	Query        string
}
