package repository

import (
	"context"
	"time"

	"github.com/solarvest/platform/internal/model"
)

const assignmentCols = `tenant_id, agent_id, active_assignments, total_assigned, total_resolved, capacity,
	avg_response_seconds, last_assigned_at, updated_at`

// EnsureAgentMetrics creates zeroed metric rows for agents that have none.
func (r *Repository) EnsureAgentMetrics(ctx context.Context, tenantID string, agentIDs []string, capacity int) error {
	if len(agentIDs) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO crm_assignment_metrics (tenant_id, agent_id, capacity, updated_at)
		SELECT $1, unnest($2::text[]), $3, now()
		ON CONFLICT (tenant_id, agent_id) DO NOTHING`, tenantID, agentIDs, capacity)
	return err
}

// ListAgentMetrics returns metrics for the given agents, or all when agentIDs is empty.
func (r *Repository) ListAgentMetrics(ctx context.Context, tenantID string, agentIDs []string) ([]*model.CrmAssignmentMetrics, error) {
	if len(agentIDs) == 0 {
		return all[model.CrmAssignmentMetrics](ctx, r.db,
			`SELECT `+assignmentCols+` FROM crm_assignment_metrics WHERE tenant_id = $1 ORDER BY agent_id`, tenantID)
	}
	return all[model.CrmAssignmentMetrics](ctx, r.db, `
		SELECT `+assignmentCols+` FROM crm_assignment_metrics
		WHERE tenant_id = $1 AND agent_id = ANY($2)
		ORDER BY agent_id`, tenantID, agentIDs)
}

// IncrementAssignment claims a slot for the agent if it still has capacity.
// Returns ErrConflict when the agent filled up concurrently.
func (r *Repository) IncrementAssignment(ctx context.Context, tenantID, agentID string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE crm_assignment_metrics SET
			active_assignments = active_assignments + 1,
			total_assigned = total_assigned + 1,
			last_assigned_at = $3,
			updated_at = $3
		WHERE tenant_id = $1 AND agent_id = $2 AND active_assignments < capacity`, tenantID, agentID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// ReleaseAssignment frees a slot and counts a resolution.
func (r *Repository) ReleaseAssignment(ctx context.Context, tenantID, agentID string) error {
	return execOne(ctx, r.db, "release assignment", `
		UPDATE crm_assignment_metrics SET
			active_assignments = GREATEST(active_assignments - 1, 0),
			total_resolved = total_resolved + 1,
			updated_at = now()
		WHERE tenant_id = $1 AND agent_id = $2`, tenantID, agentID)
}

// RecordAgentResponse folds a response time into the running average.
func (r *Repository) RecordAgentResponse(ctx context.Context, tenantID, agentID string, seconds float64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE crm_assignment_metrics SET
			avg_response_seconds = CASE WHEN total_assigned = 0 THEN $3
				ELSE (avg_response_seconds * 0.8) + ($3 * 0.2) END,
			updated_at = now()
		WHERE tenant_id = $1 AND agent_id = $2`, tenantID, agentID, seconds)
	return err
}

func (r *Repository) SetAgentCapacity(ctx context.Context, tenantID, agentID string, capacity int) error {
	return execOne(ctx, r.db, "set capacity", `
		UPDATE crm_assignment_metrics SET capacity = $3, updated_at = now()
		WHERE tenant_id = $1 AND agent_id = $2`, tenantID, agentID, capacity)
}
