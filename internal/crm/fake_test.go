package crm

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/solarvest/platform/internal/model"
	"github.com/solarvest/platform/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory Store and AgentStore.
type memStore struct {
	mu          sync.Mutex
	agents      []*model.User
	stats       map[string]*model.CrmAssignmentMetrics
	automations []*model.CrmAutomation
	runs        map[string][2]int // id -> success, failure
	contacts    map[string]*model.CrmContact
	templates   map[string]*model.CrmTemplate
	threads     []*model.CrmThread
	messages    []*model.CrmMessage
	tickets     []*model.Ticket
	ownerErr    error
}

func newMemStore() *memStore {
	return &memStore{
		stats:     map[string]*model.CrmAssignmentMetrics{},
		runs:      map[string][2]int{},
		contacts:  map[string]*model.CrmContact{},
		templates: map[string]*model.CrmTemplate{},
	}
}

func (s *memStore) ListAgents(_ context.Context, _ string) ([]*model.User, error) {
	return s.agents, nil
}

func (s *memStore) EnsureAgentMetrics(_ context.Context, tenantID string, ids []string, capacity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if _, ok := s.stats[id]; !ok {
			s.stats[id] = &model.CrmAssignmentMetrics{TenantID: tenantID, AgentID: id, Capacity: capacity}
		}
	}
	return nil
}

func (s *memStore) ListAgentMetrics(_ context.Context, _ string, ids []string) ([]*model.CrmAssignmentMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.CrmAssignmentMetrics
	for id, m := range s.stats {
		if len(ids) == 0 || slices.Contains(ids, id) {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) IncrementAssignment(_ context.Context, _ string, agentID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.stats[agentID]
	if !ok || !m.HasCapacity() {
		return repository.ErrConflict
	}
	m.ActiveAssignments++
	m.TotalAssigned++
	m.LastAssignedAt = &at
	return nil
}

func (s *memStore) ReleaseAssignment(_ context.Context, _ string, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.stats[agentID]
	if !ok {
		return repository.ErrNotFound
	}
	if m.ActiveAssignments > 0 {
		m.ActiveAssignments--
	}
	m.TotalResolved++
	return nil
}

func (s *memStore) ActiveAutomations(_ context.Context, _ string, trigger model.Trigger) ([]*model.CrmAutomation, error) {
	var out []*model.CrmAutomation
	for _, a := range s.automations {
		if a.IsActive && a.Trigger == trigger {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStore) RecordAutomationRun(_ context.Context, _ string, id string, success bool, _ time.Time) error {
	r := s.runs[id]
	if success {
		r[0]++
	} else {
		r[1]++
	}
	s.runs[id] = r
	return nil
}

func (s *memStore) GetContact(_ context.Context, _ string, id string) (*model.CrmContact, error) {
	c, ok := s.contacts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

func (s *memStore) AddContactTag(_ context.Context, _ string, id, tag string) error {
	c := s.contacts[id]
	if !c.HasTag(tag) {
		c.Tags = append(c.Tags, tag)
	}
	return nil
}

func (s *memStore) SetContactStatus(_ context.Context, _ string, id string, status model.ContactStatus) error {
	s.contacts[id].Status = status
	return nil
}

func (s *memStore) SetContactOwner(_ context.Context, _ string, id, ownerID string) error {
	if s.ownerErr != nil {
		return s.ownerErr
	}
	s.contacts[id].OwnerID = &ownerID
	return nil
}

func (s *memStore) GetTemplate(_ context.Context, _ string, id string) (*model.CrmTemplate, error) {
	t, ok := s.templates[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return t, nil
}

func (s *memStore) IncrementTemplateUsage(_ context.Context, _ string, id string) error {
	s.templates[id].UsageCount++
	return nil
}

func (s *memStore) FindOpenThread(_ context.Context, _ string, contactID string, ch model.Channel) (*model.CrmThread, error) {
	for _, t := range s.threads {
		if t.ContactID == contactID && t.Channel == ch && t.Status == model.ThreadOpen {
			return t, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memStore) CreateThread(_ context.Context, t *model.CrmThread) error {
	s.threads = append(s.threads, t)
	return nil
}

func (s *memStore) AppendMessage(_ context.Context, m *model.CrmMessage) error {
	s.messages = append(s.messages, m)
	return nil
}

func (s *memStore) CreateTicket(_ context.Context, t *model.Ticket) error {
	s.tickets = append(s.tickets, t)
	return nil
}
