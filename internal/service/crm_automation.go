package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/solarvest/platform/internal/model"
)

// AutomationStore is the persistence for automations.
type AutomationStore interface {
	CreateAutomation(ctx context.Context, a *model.CrmAutomation) error
	GetAutomation(ctx context.Context, tenantID, id string) (*model.CrmAutomation, error)
	ListAutomations(ctx context.Context, tenantID string, f model.AutomationFilter, p model.Page) ([]*model.CrmAutomation, int64, error)
	UpdateAutomation(ctx context.Context, a *model.CrmAutomation) error
	DeleteAutomation(ctx context.Context, tenantID, id string) error
}

// AutomationEvaluator compiles and dry-runs automations. *crm.Engine
// satisfies it.
type AutomationEvaluator interface {
	CompileExpression(src string) error
	Test(a *model.CrmAutomation, ev model.Event) model.AutomationRun
}

// AutomationService manages automation definitions.
type AutomationService struct {
	base
	store  AutomationStore
	engine AutomationEvaluator
}

func NewAutomationService(store AutomationStore, engine AutomationEvaluator, opts Options) *AutomationService {
	return &AutomationService{base: newBase("crm.automation", opts), store: store, engine: engine}
}

type AutomationInput struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Trigger     model.Trigger     `json:"trigger"`
	Conditions  []model.Condition `json:"conditions"`
	Expression  string            `json:"expression"`
	Actions     []model.Action    `json:"actions"`
	IsActive    *bool             `json:"is_active"`
}

func (s *AutomationService) Create(ctx context.Context, tenantID string, in AutomationInput) (*model.CrmAutomation, error) {
	now := s.now()
	a := &model.CrmAutomation{
		ID:          model.NewID(),
		TenantID:    tenantID,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Trigger:     in.Trigger,
		Conditions:  in.Conditions,
		Expression:  strings.TrimSpace(in.Expression),
		Actions:     in.Actions,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	setIf(&a.IsActive, in.IsActive)
	if err := s.validate(a); err != nil {
		return nil, err
	}
	if err := s.store.CreateAutomation(ctx, a); err != nil {
		return nil, translate(err, ErrAutomationNotFound)
	}
	s.changed(ctx, tenantID, "crm_automation", "create")
	return a, nil
}

func (s *AutomationService) validate(a *model.CrmAutomation) error {
	if a.Conditions == nil {
		a.Conditions = []model.Condition{}
	}
	if err := a.Validate(); err != nil {
		return err
	}
	if err := s.engine.CompileExpression(a.Expression); err != nil {
		return model.ValidationErrors{{Field: "expression", Message: err.Error()}}
	}
	return nil
}

func (s *AutomationService) Get(ctx context.Context, tenantID, id string) (*model.CrmAutomation, error) {
	a, err := s.store.GetAutomation(ctx, tenantID, id)
	return a, translate(err, ErrAutomationNotFound)
}

func (s *AutomationService) List(ctx context.Context, tenantID string, f model.AutomationFilter, p model.Page) (*ListResult[*model.CrmAutomation], error) {
	items, total, err := s.store.ListAutomations(ctx, tenantID, f, p)
	if err != nil {
		return nil, fmt.Errorf("failed to list automations: %w", err)
	}
	return newList(items, total, p), nil
}

type AutomationPatch struct {
	Name        *string            `json:"name"`
	Description *string            `json:"description"`
	Trigger     *model.Trigger     `json:"trigger"`
	Conditions  *[]model.Condition `json:"conditions"`
	Expression  *string            `json:"expression"`
	Actions     *[]model.Action    `json:"actions"`
	IsActive    *bool              `json:"is_active"`
}

// Update applies p. Run counters are left alone.
func (s *AutomationService) Update(ctx context.Context, tenantID, id string, p AutomationPatch) (*model.CrmAutomation, error) {
	a, err := s.store.GetAutomation(ctx, tenantID, id)
	if err != nil {
		return nil, translate(err, ErrAutomationNotFound)
	}
	setIf(&a.Name, p.Name)
	setIf(&a.Description, p.Description)
	setIf(&a.Trigger, p.Trigger)
	setIf(&a.Conditions, p.Conditions)
	setIf(&a.Expression, p.Expression)
	setIf(&a.Actions, p.Actions)
	setIf(&a.IsActive, p.IsActive)
	a.Name = strings.TrimSpace(a.Name)
	a.Expression = strings.TrimSpace(a.Expression)
	a.UpdatedAt = s.now()

	if err := s.validate(a); err != nil {
		return nil, err
	}
	if err := s.store.UpdateAutomation(ctx, a); err != nil {
		return nil, translate(err, ErrAutomationNotFound)
	}
	s.changed(ctx, tenantID, "crm_automation", "update")
	return a, nil
}

func (s *AutomationService) Delete(ctx context.Context, tenantID, id string) error {
	if err := s.store.DeleteAutomation(ctx, tenantID, id); err != nil {
		return translate(err, ErrAutomationNotFound)
	}
	s.changed(ctx, tenantID, "crm_automation", "delete")
	return nil
}

// Test evaluates a stored automation against sample event data without
// executing any action.
func (s *AutomationService) Test(ctx context.Context, tenantID, id string, data map[string]any) (*model.AutomationRun, error) {
	a, err := s.store.GetAutomation(ctx, tenantID, id)
	if err != nil {
		return nil, translate(err, ErrAutomationNotFound)
	}
	run := s.engine.Test(a, model.Event{TenantID: tenantID, Data: data})
	return &run, nil
}
