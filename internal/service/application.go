package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/solarvest/platform/internal/model"
)

// ApplicationStore is the persistence for solar applications.
type ApplicationStore interface {
	CreateApplication(ctx context.Context, a *model.SolarApplication) error
	GetApplication(ctx context.Context, tenantID, id string) (*model.SolarApplication, error)
	ListApplications(ctx context.Context, tenantID string, f model.ApplicationFilter, p model.Page) ([]*model.SolarApplication, int64, error)
	UpdateApplication(ctx context.Context, a *model.SolarApplication) error
	DeleteApplication(ctx context.Context, tenantID, id string) error
}

// ApplicationService handles solar application intake and review.
type ApplicationService struct {
	base
	store ApplicationStore
}

func NewApplicationService(store ApplicationStore, opts Options) *ApplicationService {
	return &ApplicationService{base: newBase("application", opts), store: store}
}

// ApplicationInput is the writable part of an application.
type ApplicationInput struct {
	ApplicantName  string             `json:"applicant_name"`
	ApplicantEmail string             `json:"applicant_email"`
	ApplicantPhone string             `json:"applicant_phone"`
	Address        string             `json:"address"`
	PropertyType   model.PropertyType `json:"property_type"`
	SystemSizeKW   float64            `json:"system_size_kw"`
	EstimatedCost  float64            `json:"estimated_cost"`
	MonthlyBill    float64            `json:"monthly_bill"`
	AssignedTo     *string            `json:"assigned_to"`
	// Submit creates the application as submitted instead of draft.
	Submit bool `json:"submit"`
}

func (s *ApplicationService) Create(ctx context.Context, tenantID string, in ApplicationInput) (*model.SolarApplication, error) {
	now := s.now()
	a := &model.SolarApplication{
		ID:             model.NewID(),
		TenantID:       tenantID,
		ApplicantName:  strings.TrimSpace(in.ApplicantName),
		ApplicantEmail: in.ApplicantEmail,
		ApplicantPhone: strings.TrimSpace(in.ApplicantPhone),
		Address:        strings.TrimSpace(in.Address),
		PropertyType:   in.PropertyType,
		SystemSizeKW:   in.SystemSizeKW,
		EstimatedCost:  in.EstimatedCost,
		MonthlyBill:    in.MonthlyBill,
		AssignedTo:     in.AssignedTo,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	a.ApplyDefaults()
	if in.Submit {
		a.Status = model.ApplicationSubmitted
		a.SubmittedAt = &now
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.CreateApplication(ctx, a); err != nil {
		return nil, translate(err, ErrApplicationNotFound)
	}
	s.changed(ctx, tenantID, "application", "create")
	return a, nil
}

func (s *ApplicationService) Get(ctx context.Context, tenantID, id string) (*model.SolarApplication, error) {
	a, err := s.store.GetApplication(ctx, tenantID, id)
	return a, translate(err, ErrApplicationNotFound)
}

func (s *ApplicationService) List(ctx context.Context, tenantID string, f model.ApplicationFilter, p model.Page) (*ListResult[*model.SolarApplication], error) {
	items, total, err := s.store.ListApplications(ctx, tenantID, f, p)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	return newList(items, total, p), nil
}

// ApplicationPatch holds optional changes. Status moves through Transition.
type ApplicationPatch struct {
	ApplicantName  *string             `json:"applicant_name"`
	ApplicantEmail *string             `json:"applicant_email"`
	ApplicantPhone *string             `json:"applicant_phone"`
	Address        *string             `json:"address"`
	PropertyType   *model.PropertyType `json:"property_type"`
	SystemSizeKW   *float64            `json:"system_size_kw"`
	EstimatedCost  *float64            `json:"estimated_cost"`
	MonthlyBill    *float64            `json:"monthly_bill"`
	AssignedTo     *string             `json:"assigned_to"`
}

func (s *ApplicationService) Update(ctx context.Context, tenantID, id string, p ApplicationPatch) (*model.SolarApplication, error) {
	a, err := s.store.GetApplication(ctx, tenantID, id)
	if err != nil {
		return nil, translate(err, ErrApplicationNotFound)
	}
	setIf(&a.ApplicantName, p.ApplicantName)
	setIf(&a.ApplicantEmail, p.ApplicantEmail)
	setIf(&a.ApplicantPhone, p.ApplicantPhone)
	setIf(&a.Address, p.Address)
	setIf(&a.PropertyType, p.PropertyType)
	setIf(&a.SystemSizeKW, p.SystemSizeKW)
	setIf(&a.EstimatedCost, p.EstimatedCost)
	setIf(&a.MonthlyBill, p.MonthlyBill)
	if p.AssignedTo != nil {
		a.AssignedTo = p.AssignedTo
		if *p.AssignedTo == "" {
			a.AssignedTo = nil
		}
	}
	a.ApplyDefaults()
	a.UpdatedAt = s.now()

	if err := a.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.UpdateApplication(ctx, a); err != nil {
		return nil, translate(err, ErrApplicationNotFound)
	}
	s.changed(ctx, tenantID, "application", "update")
	return a, nil
}

// StatusChange requests a status transition.
type StatusChange struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// Transition moves an application along its workflow and stamps
// submitted_at and reviewed_at. Rejection requires a reason.
func (s *ApplicationService) Transition(ctx context.Context, tenantID, id string, change StatusChange) (*model.SolarApplication, error) {
	a, err := s.store.GetApplication(ctx, tenantID, id)
	if err != nil {
		return nil, translate(err, ErrApplicationNotFound)
	}

	to := model.ApplicationStatus(change.Status)
	var v model.ValidationErrors
	model.OneOf(&v, "status", to, model.ApplicationStatuses)
	if to == model.ApplicationRejected {
		v.Required("reason", change.Reason)
	}
	if err := v.Err(); err != nil {
		return nil, err
	}
	if !a.Status.CanTransition(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, to)
	}

	now := s.now()
	switch to {
	case model.ApplicationSubmitted:
		a.SubmittedAt = &now
		a.ReviewedAt = nil
		a.RejectionReason = ""
	case model.ApplicationApproved:
		a.ReviewedAt = &now
	case model.ApplicationRejected:
		a.ReviewedAt = &now
		a.RejectionReason = strings.TrimSpace(change.Reason)
	}
	from := a.Status
	a.Status = to
	a.UpdatedAt = now

	if err := s.store.UpdateApplication(ctx, a); err != nil {
		return nil, translate(err, ErrApplicationNotFound)
	}
	s.changed(ctx, tenantID, "application", "update")
	s.logger.Info("application_status_changed", "tenant_id", tenantID, "application_id", id, "from", from, "to", to)
	return a, nil
}

func (s *ApplicationService) Delete(ctx context.Context, tenantID, id string) error {
	if err := s.store.DeleteApplication(ctx, tenantID, id); err != nil {
		return translate(err, ErrApplicationNotFound)
	}
	s.changed(ctx, tenantID, "application", "delete")
	return nil
}
