package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/solarvest/platform/internal/model"
)

// ContactStore is the persistence for CRM contacts.
type ContactStore interface {
	CreateContact(ctx context.Context, c *model.CrmContact) error
	GetContact(ctx context.Context, tenantID, id string) (*model.CrmContact, error)
	ListContacts(ctx context.Context, tenantID string, f model.ContactFilter, p model.Page) ([]*model.CrmContact, int64, error)
	UpdateContact(ctx context.Context, c *model.CrmContact) error
	SetContactOwner(ctx context.Context, tenantID, id, ownerID string) error
	DeleteContact(ctx context.Context, tenantID, id string) error
	ListResponses(ctx context.Context, tenantID string, f model.ResponseFilter, p model.Page) ([]*model.CommunicationResponse, int64, error)
	GetUser(ctx context.Context, tenantID, id string) (*model.User, error)
}

// ContactService manages CRM contacts and their ownership.
type ContactService struct {
	base
	store  ContactStore
	router Assigner
}

func NewContactService(store ContactStore, router Assigner, opts Options) *ContactService {
	return &ContactService{base: newBase("crm.contact", opts), store: store, router: router}
}

// ContactInput is the writable part of a contact.
type ContactInput struct {
	FirstName  string              `json:"first_name"`
	LastName   string              `json:"last_name"`
	Email      string              `json:"email"`
	Phone      string              `json:"phone"`
	Company    string              `json:"company"`
	Source     model.ContactSource `json:"source"`
	Status     model.ContactStatus `json:"status"`
	Tags       []string            `json:"tags"`
	InvestorID *string             `json:"investor_id"`
}

// Create stores a contact and emits contact_created.
func (s *ContactService) Create(ctx context.Context, tenantID string, in ContactInput) (*model.CrmContact, error) {
	now := s.now()
	c := &model.CrmContact{
		ID:         model.NewID(),
		TenantID:   tenantID,
		FirstName:  strings.TrimSpace(in.FirstName),
		LastName:   strings.TrimSpace(in.LastName),
		Email:      in.Email,
		Phone:      in.Phone,
		Company:    strings.TrimSpace(in.Company),
		Source:     in.Source,
		Status:     in.Status,
		Tags:       normalizeTags(in.Tags),
		InvestorID: emptyToNil(in.InvestorID),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.CreateContact(ctx, c); err != nil {
		return nil, translate(err, ErrContactNotFound)
	}
	s.changed(ctx, tenantID, "crm_contact", "create")
	s.emit(ctx, model.Event{
		TenantID:  tenantID,
		Trigger:   model.TriggerContactCreated,
		ContactID: c.ID,
		Data:      map[string]any{"contact": contactEventData(c)},
	})
	return c, nil
}

func (s *ContactService) Get(ctx context.Context, tenantID, id string) (*model.CrmContact, error) {
	c, err := s.store.GetContact(ctx, tenantID, id)
	return c, translate(err, ErrContactNotFound)
}

func (s *ContactService) List(ctx context.Context, tenantID string, f model.ContactFilter, p model.Page) (*ListResult[*model.CrmContact], error) {
	items, total, err := s.store.ListContacts(ctx, tenantID, f, p)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	return newList(items, total, p), nil
}

// ContactPatch holds optional contact changes. Ownership moves through Assign.
type ContactPatch struct {
	FirstName  *string              `json:"first_name"`
	LastName   *string              `json:"last_name"`
	Email      *string              `json:"email"`
	Phone      *string              `json:"phone"`
	Company    *string              `json:"company"`
	Source     *model.ContactSource `json:"source"`
	Status     *model.ContactStatus `json:"status"`
	Tags       *[]string            `json:"tags"`
	InvestorID *string              `json:"investor_id"`
}

// Update applies p. A status change emits contact_status_changed; churning
// frees the owner's slot.
func (s *ContactService) Update(ctx context.Context, tenantID, id string, p ContactPatch) (*model.CrmContact, error) {
	c, err := s.store.GetContact(ctx, tenantID, id)
	if err != nil {
		return nil, translate(err, ErrContactNotFound)
	}
	previous := c.Status

	setIf(&c.FirstName, p.FirstName)
	setIf(&c.LastName, p.LastName)
	setIf(&c.Email, p.Email)
	setIf(&c.Phone, p.Phone)
	setIf(&c.Company, p.Company)
	setIf(&c.Source, p.Source)
	setIf(&c.Status, p.Status)
	if p.Tags != nil {
		c.Tags = normalizeTags(*p.Tags)
	}
	if p.InvestorID != nil {
		c.InvestorID = emptyToNil(p.InvestorID)
	}
	c.ApplyDefaults()
	c.UpdatedAt = s.now()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.UpdateContact(ctx, c); err != nil {
		return nil, translate(err, ErrContactNotFound)
	}
	s.changed(ctx, tenantID, "crm_contact", "update")

	if c.Status != previous {
		if c.Status == model.ContactChurned && c.OwnerID != nil && s.router != nil {
			if err := s.router.Release(ctx, tenantID, *c.OwnerID); err != nil {
				s.logger.Warn("assignment_release_failed", "tenant_id", tenantID, "agent_id", *c.OwnerID, "error", err)
			}
		}
		data := map[string]any{"contact": contactEventData(c), "previous_status": string(previous)}
		s.emit(ctx, model.Event{TenantID: tenantID, Trigger: model.TriggerContactStatusChanged, ContactID: c.ID, Data: data})
	}
	return c, nil
}

// AssignInput picks an owner explicitly or by routing strategy.
type AssignInput struct {
	AgentID  string                `json:"agent_id"`
	Strategy model.RoutingStrategy `json:"strategy"`
}

// Assign sets the contact owner, moving the capacity slot from the
// previous owner.
func (s *ContactService) Assign(ctx context.Context, tenantID, id string, in AssignInput) (*model.CrmContact, error) {
	if in.Strategy != "" {
		var v model.ValidationErrors
		model.OneOf(&v, "strategy", in.Strategy, model.RoutingStrategies)
		if err := v.Err(); err != nil {
			return nil, err
		}
	}
	c, err := s.store.GetContact(ctx, tenantID, id)
	if err != nil {
		return nil, translate(err, ErrContactNotFound)
	}
	if in.AgentID != "" && c.OwnerID != nil && *c.OwnerID == in.AgentID {
		return c, nil
	}

	agentID := in.AgentID
	if agentID != "" {
		agent, err := s.store.GetUser(ctx, tenantID, agentID)
		if err != nil {
			return nil, translate(err, ErrAgentNotFound)
		}
		if !agent.Role.CanTakeAssignments() || agent.Status != model.UserStatusActive {
			return nil, model.ValidationErrors{{Field: "agent_id", Message: "user cannot take assignments"}}
		}
		if err := s.router.AssignTo(ctx, tenantID, agentID); err != nil {
			return nil, err
		}
	} else {
		if agentID, err = s.router.Assign(ctx, tenantID, in.Strategy); err != nil {
			return nil, err
		}
	}

	if err := s.store.SetContactOwner(ctx, tenantID, id, agentID); err != nil {
		if relErr := s.router.Release(ctx, tenantID, agentID); relErr != nil {
			s.logger.Warn("assignment_release_failed", "tenant_id", tenantID, "agent_id", agentID, "error", relErr)
		}
		return nil, translate(err, ErrContactNotFound)
	}
	if c.OwnerID != nil {
		if err := s.router.Release(ctx, tenantID, *c.OwnerID); err != nil {
			s.logger.Warn("assignment_release_failed", "tenant_id", tenantID, "agent_id", *c.OwnerID, "error", err)
		}
	}
	c.OwnerID = &agentID
	s.changed(ctx, tenantID, "crm_contact", "update")
	s.logger.Info("contact_assigned", "tenant_id", tenantID, "contact_id", id, "agent_id", agentID)
	return c, nil
}

func (s *ContactService) Delete(ctx context.Context, tenantID, id string) error {
	c, err := s.store.GetContact(ctx, tenantID, id)
	if err != nil {
		return translate(err, ErrContactNotFound)
	}
	if err := s.store.DeleteContact(ctx, tenantID, id); err != nil {
		return translate(err, ErrContactNotFound)
	}
	if c.OwnerID != nil && c.Status != model.ContactChurned && s.router != nil {
		if err := s.router.Release(ctx, tenantID, *c.OwnerID); err != nil {
			s.logger.Warn("assignment_release_failed", "tenant_id", tenantID, "agent_id", *c.OwnerID, "error", err)
		}
	}
	s.changed(ctx, tenantID, "crm_contact", "delete")
	return nil
}

// Responses lists communication responses.
func (s *ContactService) Responses(ctx context.Context, tenantID string, f model.ResponseFilter, p model.Page) (*ListResult[*model.CommunicationResponse], error) {
	items, total, err := s.store.ListResponses(ctx, tenantID, f, p)
	if err != nil {
		return nil, fmt.Errorf("failed to list responses: %w", err)
	}
	return newList(items, total, p), nil
}

// contactEventData is the "contact" object automations match against.
func contactEventData(c *model.CrmContact) map[string]any {
	owner := ""
	if c.OwnerID != nil {
		owner = *c.OwnerID
	}
	return map[string]any{
		"id":         c.ID,
		"first_name": c.FirstName,
		"last_name":  c.LastName,
		"email":      c.Email,
		"phone":      c.Phone,
		"company":    c.Company,
		"source":     string(c.Source),
		"status":     string(c.Status),
		"tags":       slices.Clone(c.Tags),
		"owner_id":   owner,
	}
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}
