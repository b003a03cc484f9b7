package service

import (
	"context"
	"fmt"

	"github.com/solarvest/platform/internal/model"
)

// AgentMetricsStore is the persistence for agent workload.
type AgentMetricsStore interface {
	ListAgents(ctx context.Context, tenantID string) ([]*model.User, error)
	EnsureAgentMetrics(ctx context.Context, tenantID string, agentIDs []string, capacity int) error
	ListAgentMetrics(ctx context.Context, tenantID string, agentIDs []string) ([]*model.CrmAssignmentMetrics, error)
	SetAgentCapacity(ctx context.Context, tenantID, agentID string, capacity int) error
	GetUser(ctx context.Context, tenantID, id string) (*model.User, error)
}

// AssignmentService exposes agent workload and capacity.
type AssignmentService struct {
	base
	store AgentMetricsStore
}

func NewAssignmentService(store AgentMetricsStore, opts Options) *AssignmentService {
	return &AssignmentService{base: newBase("crm.assignment", opts), store: store}
}

// AgentWorkload pairs an agent with their workload.
type AgentWorkload struct {
	AgentName string `json:"agent_name"`
	model.AssignmentMetricsResponse
}

// Workload lists every active agent with their current metrics.
func (s *AssignmentService) Workload(ctx context.Context, tenantID string) ([]AgentWorkload, error) {
	agents, err := s.store.ListAgents(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	if len(agents) == 0 {
		return []AgentWorkload{}, nil
	}
	ids := make([]string, 0, len(agents))
	names := make(map[string]string, len(agents))
	for _, a := range agents {
		ids = append(ids, a.ID)
		names[a.ID] = a.FullName()
	}
	if err := s.store.EnsureAgentMetrics(ctx, tenantID, ids, model.DefaultAgentCapacity); err != nil {
		return nil, fmt.Errorf("failed to initialise agent metrics: %w", err)
	}
	stats, err := s.store.ListAgentMetrics(ctx, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list agent metrics: %w", err)
	}

	out := make([]AgentWorkload, 0, len(stats))
	for _, m := range stats {
		out = append(out, AgentWorkload{AgentName: names[m.AgentID], AssignmentMetricsResponse: m.ToResponse()})
	}
	return out, nil
}

// SetCapacity changes how many open items an agent may hold.
func (s *AssignmentService) SetCapacity(ctx context.Context, tenantID, agentID string, capacity int) error {
	if capacity < 0 || capacity > 1000 {
		return model.ValidationErrors{{Field: "capacity", Message: "must be between 0 and 1000"}}
	}
	agent, err := s.store.GetUser(ctx, tenantID, agentID)
	if err != nil {
		return translate(err, ErrAgentNotFound)
	}
	if !agent.Role.CanTakeAssignments() {
		return model.ValidationErrors{{Field: "agent_id", Message: "user cannot take assignments"}}
	}
	if err := s.store.EnsureAgentMetrics(ctx, tenantID, []string{agentID}, model.DefaultAgentCapacity); err != nil {
		return fmt.Errorf("failed to initialise agent metrics: %w", err)
	}
	if err := s.store.SetAgentCapacity(ctx, tenantID, agentID, capacity); err != nil {
		return translate(err, ErrAgentNotFound)
	}
	s.changed(ctx, tenantID, "crm_assignment", "update")
	s.logger.Info("agent_capacity_set", "tenant_id", tenantID, "agent_id", agentID, "capacity", capacity)
	return nil
}
