package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/solarvest/platform/internal/crm"
	"github.com/solarvest/platform/internal/model"
)

// TemplateStore is the persistence for message templates.
type TemplateStore interface {
	CreateTemplate(ctx context.Context, t *model.CrmTemplate) error
	GetTemplate(ctx context.Context, tenantID, id string) (*model.CrmTemplate, error)
	ListTemplates(ctx context.Context, tenantID string, f model.TemplateFilter, p model.Page) ([]*model.CrmTemplate, int64, error)
	UpdateTemplate(ctx context.Context, t *model.CrmTemplate) error
	DeleteTemplate(ctx context.Context, tenantID, id string) error
	GetContact(ctx context.Context, tenantID, id string) (*model.CrmContact, error)
	GetUser(ctx context.Context, tenantID, id string) (*model.User, error)
}

// TemplateService manages reusable message templates.
type TemplateService struct {
	base
	store TemplateStore
}

func NewTemplateService(store TemplateStore, opts Options) *TemplateService {
	return &TemplateService{base: newBase("crm.template", opts), store: store}
}

type TemplateInput struct {
	Name     string        `json:"name"`
	Channel  model.Channel `json:"channel"`
	Category string        `json:"category"`
	Subject  string        `json:"subject"`
	Body     string        `json:"body"`
	IsActive *bool         `json:"is_active"`
}

// Create stores a template. Variables are derived from subject and body.
func (s *TemplateService) Create(ctx context.Context, tenantID string, in TemplateInput) (*model.CrmTemplate, error) {
	now := s.now()
	t := &model.CrmTemplate{
		ID:        model.NewID(),
		TenantID:  tenantID,
		Name:      strings.TrimSpace(in.Name),
		Channel:   in.Channel,
		Category:  strings.TrimSpace(in.Category),
		Subject:   in.Subject,
		Body:      in.Body,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	setIf(&t.IsActive, in.IsActive)
	if err := s.prepare(t); err != nil {
		return nil, err
	}
	if err := s.store.CreateTemplate(ctx, t); err != nil {
		return nil, translate(err, ErrTemplateNotFound)
	}
	s.changed(ctx, tenantID, "crm_template", "create")
	return t, nil
}

func (s *TemplateService) prepare(t *model.CrmTemplate) error {
	if err := t.Validate(); err != nil {
		return err
	}
	vars, err := crm.ExtractVariables(t.Subject, t.Body)
	if err != nil {
		return model.ValidationErrors{{Field: "body", Message: err.Error()}}
	}
	t.Variables = vars
	return nil
}

func (s *TemplateService) Get(ctx context.Context, tenantID, id string) (*model.CrmTemplate, error) {
	t, err := s.store.GetTemplate(ctx, tenantID, id)
	return t, translate(err, ErrTemplateNotFound)
}

func (s *TemplateService) List(ctx context.Context, tenantID string, f model.TemplateFilter, p model.Page) (*ListResult[*model.CrmTemplate], error) {
	items, total, err := s.store.ListTemplates(ctx, tenantID, f, p)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return newList(items, total, p), nil
}

type TemplatePatch struct {
	Name     *string        `json:"name"`
	Channel  *model.Channel `json:"channel"`
	Category *string        `json:"category"`
	Subject  *string        `json:"subject"`
	Body     *string        `json:"body"`
	IsActive *bool          `json:"is_active"`
}

func (s *TemplateService) Update(ctx context.Context, tenantID, id string, p TemplatePatch) (*model.CrmTemplate, error) {
	t, err := s.store.GetTemplate(ctx, tenantID, id)
	if err != nil {
		return nil, translate(err, ErrTemplateNotFound)
	}
	setIf(&t.Name, p.Name)
	setIf(&t.Channel, p.Channel)
	setIf(&t.Category, p.Category)
	setIf(&t.Subject, p.Subject)
	setIf(&t.Body, p.Body)
	setIf(&t.IsActive, p.IsActive)
	t.Name = strings.TrimSpace(t.Name)
	t.UpdatedAt = s.now()

	if err := s.prepare(t); err != nil {
		return nil, err
	}
	if err := s.store.UpdateTemplate(ctx, t); err != nil {
		return nil, translate(err, ErrTemplateNotFound)
	}
	s.changed(ctx, tenantID, "crm_template", "update")
	return t, nil
}

func (s *TemplateService) Delete(ctx context.Context, tenantID, id string) error {
	if err := s.store.DeleteTemplate(ctx, tenantID, id); err != nil {
		return translate(err, ErrTemplateNotFound)
	}
	s.changed(ctx, tenantID, "crm_template", "delete")
	return nil
}

// PreviewInput selects the data a preview renders with. Both ids are
// optional; Variables override anything derived from them.
type PreviewInput struct {
	ContactID string            `json:"contact_id"`
	AgentID   string            `json:"agent_id"`
	Variables map[string]string `json:"variables"`
}

// Preview renders a template without sending it.
func (s *TemplateService) Preview(ctx context.Context, tenantID, id string, in PreviewInput) (*crm.Rendered, error) {
	t, err := s.store.GetTemplate(ctx, tenantID, id)
	if err != nil {
		return nil, translate(err, ErrTemplateNotFound)
	}

	var contact *model.CrmContact
	if in.ContactID != "" {
		if contact, err = s.store.GetContact(ctx, tenantID, in.ContactID); err != nil {
			return nil, translate(err, ErrContactNotFound)
		}
	}
	var agent *model.User
	if in.AgentID != "" {
		if agent, err = s.store.GetUser(ctx, tenantID, in.AgentID); err != nil {
			return nil, translate(err, ErrAgentNotFound)
		}
	}

	out, err := crm.Render(t, crm.TemplateData(contact, agent, s.now()), in.Variables)
	if err != nil {
		return nil, model.ValidationErrors{{Field: "variables", Message: err.Error()}}
	}
	return out, nil
}
