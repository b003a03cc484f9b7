package crm

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/solarvest/platform/internal/metrics"
	"github.com/solarvest/platform/internal/model"
	"github.com/solarvest/platform/internal/repository"
)

// ErrNoAgentAvailable is returned when every agent is at capacity.
var ErrNoAgentAvailable = errors.New("no agent with free capacity")

// AgentStore is the persistence the router needs.
type AgentStore interface {
	ListAgents(ctx context.Context, tenantID string) ([]*model.User, error)
	EnsureAgentMetrics(ctx context.Context, tenantID string, agentIDs []string, capacity int) error
	ListAgentMetrics(ctx context.Context, tenantID string, agentIDs []string) ([]*model.CrmAssignmentMetrics, error)
	IncrementAssignment(ctx context.Context, tenantID, agentID string, at time.Time) error
	ReleaseAssignment(ctx context.Context, tenantID, agentID string) error
}

// Router distributes new work across agents.
type Router struct {
	store    AgentStore
	strategy model.RoutingStrategy
	logger   *slog.Logger
	metrics  metrics.Recorder
	now      func() time.Time
}

// NewRouter creates a router with a default strategy.
func NewRouter(store AgentStore, strategy model.RoutingStrategy, logger *slog.Logger, recorder metrics.Recorder) *Router {
	if strategy == "" {
		strategy = model.RoutingRoundRobin
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Router{
		store:    store,
		strategy: strategy,
		logger:   logger.With("component", "crm.router"),
		metrics:  recorder,
		now:      time.Now,
	}
}

// Assign picks an agent using strategy (the router default when empty) and
// reserves a slot for them.
func (r *Router) Assign(ctx context.Context, tenantID string, strategy model.RoutingStrategy) (string, error) {
	if strategy == "" {
		strategy = r.strategy
	}
	agents, err := r.store.ListAgents(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("list agents: %w", err)
	}
	if len(agents) == 0 {
		return "", ErrNoAgentAvailable
	}

	ids := make([]string, len(agents))
	for i, a := range agents {
		ids[i] = a.ID
	}
	if err := r.store.EnsureAgentMetrics(ctx, tenantID, ids, model.DefaultAgentCapacity); err != nil {
		return "", fmt.Errorf("ensure agent metrics: %w", err)
	}
	stats, err := r.store.ListAgentMetrics(ctx, tenantID, ids)
	if err != nil {
		return "", fmt.Errorf("list agent metrics: %w", err)
	}

	// A candidate can fill up between the read and the claim; fall through to the next.
	for _, m := range Rank(stats, strategy) {
		err := r.store.IncrementAssignment(ctx, tenantID, m.AgentID, r.now())
		if errors.Is(err, repository.ErrConflict) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("claim agent: %w", err)
		}
		r.metrics.IncAssignment(string(strategy))
		r.logger.Debug("agent_assigned", "tenant_id", tenantID, "agent_id", m.AgentID, "strategy", strategy)
		return m.AgentID, nil
	}
	return "", ErrNoAgentAvailable
}

// AssignTo reserves a slot for a specific agent.
func (r *Router) AssignTo(ctx context.Context, tenantID, agentID string) error {
	if err := r.store.EnsureAgentMetrics(ctx, tenantID, []string{agentID}, model.DefaultAgentCapacity); err != nil {
		return fmt.Errorf("ensure agent metrics: %w", err)
	}
	err := r.store.IncrementAssignment(ctx, tenantID, agentID, r.now())
	if errors.Is(err, repository.ErrConflict) {
		return ErrNoAgentAvailable
	}
	return err
}

// Release frees the agent's slot and counts the work as resolved.
func (r *Router) Release(ctx context.Context, tenantID, agentID string) error {
	err := r.store.ReleaseAssignment(ctx, tenantID, agentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return err
}

// Rank orders agents with free capacity by preference for strategy.
//
// round_robin prefers whoever was assigned longest ago (never-assigned first);
// least_loaded prefers the lowest utilization. Ties break on agent ID.
func Rank(stats []*model.CrmAssignmentMetrics, strategy model.RoutingStrategy) []*model.CrmAssignmentMetrics {
	out := make([]*model.CrmAssignmentMetrics, 0, len(stats))
	for _, m := range stats {
		if m.HasCapacity() {
			out = append(out, m)
		}
	}

	byLastAssigned := func(a, b *model.CrmAssignmentMetrics) int {
		switch {
		case a.LastAssignedAt == nil && b.LastAssignedAt == nil:
			return 0
		case a.LastAssignedAt == nil:
			return -1
		case b.LastAssignedAt == nil:
			return 1
		}
		return a.LastAssignedAt.Compare(*b.LastAssignedAt)
	}

	slices.SortStableFunc(out, func(a, b *model.CrmAssignmentMetrics) int {
		if strategy == model.RoutingLeastLoaded {
			if c := cmp.Compare(a.Utilization(), b.Utilization()); c != 0 {
				return c
			}
			if c := a.ActiveAssignments - b.ActiveAssignments; c != 0 {
				return c
			}
		}
		if c := byLastAssigned(a, b); c != 0 {
			return c
		}
		return cmp.Compare(a.AgentID, b.AgentID)
	})
	return out
}
