package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/solarvest/platform/internal/crm"
	"github.com/solarvest/platform/internal/model"
	"github.com/solarvest/platform/internal/repository"
)

// ThreadStore is the persistence for conversations.
type ThreadStore interface {
	CreateThread(ctx context.Context, t *model.CrmThread) error
	GetThread(ctx context.Context, tenantID, id string) (*model.CrmThread, error)
	FindOpenThread(ctx context.Context, tenantID, contactID string, ch model.Channel) (*model.CrmThread, error)
	ListThreads(ctx context.Context, tenantID string, f model.ThreadFilter, p model.Page) ([]*model.CrmThread, int64, error)
	SetThreadStatus(ctx context.Context, tenantID, id string, status model.ThreadStatus) error
	MarkThreadRead(ctx context.Context, tenantID, id string, at time.Time) error
	AppendMessage(ctx context.Context, m *model.CrmMessage) error
	ListMessages(ctx context.Context, tenantID, threadID string) ([]*model.CrmMessage, error)
	LastOutboundMessage(ctx context.Context, tenantID, threadID string, before time.Time) (*model.CrmMessage, error)
	CreateResponse(ctx context.Context, resp *model.CommunicationResponse) error

	CreateContact(ctx context.Context, c *model.CrmContact) error
	GetContact(ctx context.Context, tenantID, id string) (*model.CrmContact, error)
	FindContact(ctx context.Context, tenantID, email, phone string) (*model.CrmContact, error)
	TouchContact(ctx context.Context, tenantID, id string, at time.Time) error

	GetTemplate(ctx context.Context, tenantID, id string) (*model.CrmTemplate, error)
	IncrementTemplateUsage(ctx context.Context, tenantID, id string) error
	GetUser(ctx context.Context, tenantID, id string) (*model.User, error)
	RecordAgentResponse(ctx context.Context, tenantID, agentID string, seconds float64) error
}

// ThreadService handles conversations and messages.
type ThreadService struct {
	base
	store ThreadStore
}

func NewThreadService(store ThreadStore, opts Options) *ThreadService {
	return &ThreadService{base: newBase("crm.thread", opts), store: store}
}

// ThreadInput starts a conversation with a contact.
type ThreadInput struct {
	ContactID string        `json:"contact_id"`
	Channel   model.Channel `json:"channel"`
	Subject   string        `json:"subject"`
}

// Create opens a thread owned by the contact's owner.
func (s *ThreadService) Create(ctx context.Context, tenantID string, in ThreadInput) (*model.CrmThread, error) {
	now := s.now()
	t := &model.CrmThread{
		ID:        model.NewID(),
		TenantID:  tenantID,
		ContactID: in.ContactID,
		Channel:   in.Channel,
		Subject:   strings.TrimSpace(in.Subject),
		Status:    model.ThreadOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	c, err := s.store.GetContact(ctx, tenantID, in.ContactID)
	if err != nil {
		return nil, translate(err, ErrContactNotFound)
	}
	t.AssignedTo = c.OwnerID
	if err := s.store.CreateThread(ctx, t); err != nil {
		return nil, translate(err, ErrThreadNotFound)
	}
	s.changed(ctx, tenantID, "crm_thread", "create")
	return t, nil
}

func (s *ThreadService) List(ctx context.Context, tenantID string, f model.ThreadFilter, p model.Page) (*ListResult[*model.CrmThread], error) {
	items, total, err := s.store.ListThreads(ctx, tenantID, f, p)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	return newList(items, total, p), nil
}

// Get returns a thread with its messages in send order.
func (s *ThreadService) Get(ctx context.Context, tenantID, id string) (*model.ThreadWithMessages, error) {
	t, err := s.store.GetThread(ctx, tenantID, id)
	if err != nil {
		return nil, translate(err, ErrThreadNotFound)
	}
	msgs, err := s.store.ListMessages(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	if msgs == nil {
		msgs = []*model.CrmMessage{}
	}
	return &model.ThreadWithMessages{CrmThread: t, Messages: msgs}, nil
}

// SetStatus closes, reopens or archives a thread.
func (s *ThreadService) SetStatus(ctx context.Context, tenantID, id string, status model.ThreadStatus) (*model.CrmThread, error) {
	var v model.ValidationErrors
	model.OneOf(&v, "status", status, model.ThreadStatuses)
	if err := v.Err(); err != nil {
		return nil, err
	}
	if err := s.store.SetThreadStatus(ctx, tenantID, id, status); err != nil {
		return nil, translate(err, ErrThreadNotFound)
	}
	s.changed(ctx, tenantID, "crm_thread", "update")
	t, err := s.store.GetThread(ctx, tenantID, id)
	return t, translate(err, ErrThreadNotFound)
}

func (s *ThreadService) MarkRead(ctx context.Context, tenantID, id string) error {
	if err := s.store.MarkThreadRead(ctx, tenantID, id, s.now()); err != nil {
		return translate(err, ErrThreadNotFound)
	}
	return nil
}

// SendInput is an outbound message. Body is ignored when TemplateID is set.
type SendInput struct {
	Body       string            `json:"body"`
	TemplateID string            `json:"template_id"`
	Variables  map[string]string `json:"variables"`
}

// Send appends an outbound message written by senderID, optionally rendered
// from a template. Replying to unanswered inbound messages updates the
// sender's average response time.
func (s *ThreadService) Send(ctx context.Context, tenantID, threadID, senderID string, in SendInput) (*model.CrmMessage, error) {
	t, err := s.store.GetThread(ctx, tenantID, threadID)
	if err != nil {
		return nil, translate(err, ErrThreadNotFound)
	}
	if t.Status == model.ThreadArchived {
		return nil, fmt.Errorf("%w: thread is archived", ErrInvalidTransition)
	}
	contact, err := s.store.GetContact(ctx, tenantID, t.ContactID)
	if err != nil {
		return nil, translate(err, ErrContactNotFound)
	}
	sender, err := s.store.GetUser(ctx, tenantID, senderID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to load sender: %w", err)
	}

	now := s.now()
	msg := &model.CrmMessage{
		ID:        model.NewID(),
		TenantID:  tenantID,
		ThreadID:  t.ID,
		ContactID: t.ContactID,
		Direction: model.DirectionOutbound,
		Channel:   t.Channel,
		Body:      in.Body,
		Status:    model.MessageSent,
		SentAt:    now,
		CreatedAt: now,
	}
	if senderID != "" {
		msg.SenderID = &senderID
	}

	var tpl *model.CrmTemplate
	if in.TemplateID != "" {
		tpl, err = s.store.GetTemplate(ctx, tenantID, in.TemplateID)
		if err != nil {
			return nil, translate(err, ErrTemplateNotFound)
		}
		if !tpl.IsActive {
			return nil, crm.ErrTemplateInactive
		}
		rendered, err := crm.Render(tpl, crm.TemplateData(contact, sender, now), in.Variables)
		if err != nil {
			return nil, model.ValidationErrors{{Field: "variables", Message: err.Error()}}
		}
		msg.Body = rendered.Body
		msg.TemplateID = &tpl.ID
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	history, err := s.store.ListMessages(ctx, tenantID, t.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return nil, translate(err, ErrThreadNotFound)
	}
	if tpl != nil {
		if err := s.store.IncrementTemplateUsage(ctx, tenantID, tpl.ID); err != nil {
			s.logger.Warn("template_usage_failed", "tenant_id", tenantID, "template_id", tpl.ID, "error", err)
		}
	}
	if err := s.store.TouchContact(ctx, tenantID, contact.ID, now); err != nil {
		s.logger.Warn("touch_contact_failed", "tenant_id", tenantID, "contact_id", contact.ID, "error", err)
	}
	if waited, ok := FirstUnansweredInbound(history); ok && senderID != "" {
		seconds := now.Sub(waited.SentAt).Seconds()
		if err := s.store.RecordAgentResponse(ctx, tenantID, senderID, seconds); err != nil && !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("agent_response_failed", "tenant_id", tenantID, "agent_id", senderID, "error", err)
		}
	}
	s.changed(ctx, tenantID, "crm_message", "create")
	return msg, nil
}

// FirstUnansweredInbound returns the earliest inbound message after the last
// outbound one in msgs, which must be in send order.
func FirstUnansweredInbound(msgs []*model.CrmMessage) (*model.CrmMessage, bool) {
	var first *model.CrmMessage
	for _, m := range slices.Backward(msgs) {
		if m.Direction == model.DirectionOutbound {
			break
		}
		first = m
	}
	return first, first != nil
}

// InboundInput is a message received from outside, such as a provider webhook.
type InboundInput struct {
	Email     string          `json:"email"`
	Phone     string          `json:"phone"`
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name"`
	Channel   model.Channel   `json:"channel"`
	Subject   string          `json:"subject"`
	Body      string          `json:"body"`
	Sentiment model.Sentiment `json:"sentiment"`
	SentAt    *time.Time      `json:"sent_at"`
}

// InboundResult reports what Inbound created or reused.
type InboundResult struct {
	Contact        *model.CrmContact            `json:"contact"`
	Thread         *model.CrmThread             `json:"thread"`
	Message        *model.CrmMessage            `json:"message"`
	Response       *model.CommunicationResponse `json:"response,omitempty"`
	ContactCreated bool                         `json:"contact_created"`
}

// Inbound records a received message. The contact is matched by email or
// phone (and created when unknown), the open thread on the channel is reused
// or created, and a reply to an earlier outbound message is recorded as a
// communication response. Emits message_received.
func (s *ThreadService) Inbound(ctx context.Context, tenantID string, in InboundInput) (*InboundResult, error) {
	now := s.now()
	sentAt := now
	if in.SentAt != nil && !in.SentAt.IsZero() {
		sentAt = in.SentAt.UTC()
	}
	if in.Sentiment == "" {
		in.Sentiment = model.SentimentNeutral
	}

	var v model.ValidationErrors
	v.Required("body", in.Body)
	model.OneOf(&v, "channel", in.Channel, model.Channels)
	model.OneOf(&v, "sentiment", in.Sentiment, model.Sentiments)
	if in.Email == "" && in.Phone == "" {
		v.Add("email", "email or phone is required")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	res := &InboundResult{}
	contact, err := s.store.FindContact(ctx, tenantID, model.NormalizeEmail(in.Email), strings.TrimSpace(in.Phone))
	switch {
	case errors.Is(err, repository.ErrNotFound):
		contact = &model.CrmContact{
			ID:        model.NewID(),
			TenantID:  tenantID,
			FirstName: strings.TrimSpace(in.FirstName),
			LastName:  strings.TrimSpace(in.LastName),
			Email:     in.Email,
			Phone:     in.Phone,
			Source:    model.SourceWeb,
			CreatedAt: now,
			UpdatedAt: now,
		}
		contact.ApplyDefaults()
		if err := contact.Validate(); err != nil {
			return nil, err
		}
		if err := s.store.CreateContact(ctx, contact); err != nil {
			return nil, translate(err, ErrContactNotFound)
		}
		res.ContactCreated = true
	case err != nil:
		return nil, fmt.Errorf("failed to find contact: %w", err)
	}
	res.Contact = contact

	thread, err := s.store.FindOpenThread(ctx, tenantID, contact.ID, in.Channel)
	if errors.Is(err, repository.ErrNotFound) {
		thread = &model.CrmThread{
			ID:         model.NewID(),
			TenantID:   tenantID,
			ContactID:  contact.ID,
			Channel:    in.Channel,
			Subject:    strings.TrimSpace(in.Subject),
			Status:     model.ThreadOpen,
			AssignedTo: contact.OwnerID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		err = s.store.CreateThread(ctx, thread)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve thread: %w", err)
	}
	res.Thread = thread

	msg := &model.CrmMessage{
		ID:        model.NewID(),
		TenantID:  tenantID,
		ThreadID:  thread.ID,
		ContactID: contact.ID,
		Direction: model.DirectionInbound,
		Channel:   in.Channel,
		Body:      in.Body,
		Status:    model.MessageDelivered,
		SentAt:    sentAt,
		CreatedAt: now,
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return nil, translate(err, ErrThreadNotFound)
	}
	res.Message = msg
	thread.MessageCount++
	thread.UnreadCount++
	thread.LastMessageAt = &sentAt

	prior, err := s.store.LastOutboundMessage(ctx, tenantID, thread.ID, sentAt)
	switch {
	case err == nil:
		resp := &model.CommunicationResponse{
			ID:           model.NewID(),
			TenantID:     tenantID,
			ContactID:    contact.ID,
			MessageID:    prior.ID,
			TemplateID:   prior.TemplateID,
			Channel:      in.Channel,
			ResponseText: in.Body,
			Sentiment:    in.Sentiment,
			SentAt:       prior.SentAt,
			RespondedAt:  sentAt,
			CreatedAt:    now,
		}
		// Later replies to the same outbound message are plain messages.
		switch err := s.store.CreateResponse(ctx, resp); {
		case err == nil:
			res.Response = resp
		case errors.Is(err, repository.ErrDuplicate):
		default:
			return nil, fmt.Errorf("failed to record response: %w", err)
		}
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("failed to load prior message: %w", err)
	}

	if err := s.store.TouchContact(ctx, tenantID, contact.ID, now); err != nil {
		s.logger.Warn("touch_contact_failed", "tenant_id", tenantID, "contact_id", contact.ID, "error", err)
	}
	s.changed(ctx, tenantID, "crm_message", "create")

	if res.ContactCreated {
		s.emit(ctx, model.Event{
			TenantID: tenantID, Trigger: model.TriggerContactCreated, ContactID: contact.ID,
			Data: map[string]any{"contact": contactEventData(contact)},
		})
	}
	s.emit(ctx, model.Event{
		TenantID:  tenantID,
		Trigger:   model.TriggerMessageReceived,
		ContactID: contact.ID,
		ThreadID:  thread.ID,
		Data: map[string]any{
			"contact": contactEventData(contact),
			"message": map[string]any{
				"body":      msg.Body,
				"channel":   string(msg.Channel),
				"sentiment": string(in.Sentiment),
				"is_reply":  res.Response != nil,
			},
		},
	})
	s.logger.Info("inbound_message", "tenant_id", tenantID, "contact_id", contact.ID, "thread_id", thread.ID, "channel", in.Channel)
	return res, nil
}
