package model

import (
	"fmt"
	"time"
)

// Trigger names the event that starts an automation.
type Trigger string

const (
	TriggerContactCreated       Trigger = "contact_created"
	TriggerMessageReceived      Trigger = "message_received"
	TriggerContactStatusChanged Trigger = "contact_status_changed"
	TriggerTicketCreated        Trigger = "ticket_created"
)

var Triggers = []Trigger{TriggerContactCreated, TriggerMessageReceived, TriggerContactStatusChanged, TriggerTicketCreated}

type Operator string

const (
	OpEq       Operator = "eq"
	OpNeq      Operator = "neq"
	OpContains Operator = "contains"
	OpGt       Operator = "gt"
	OpLt       Operator = "lt"
	OpIn       Operator = "in"
	OpExists   Operator = "exists"
)

var Operators = []Operator{OpEq, OpNeq, OpContains, OpGt, OpLt, OpIn, OpExists}

// Condition compares an event field against a value.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
}

type ActionType string

const (
	ActionAssignOwner  ActionType = "assign_owner"
	ActionSendTemplate ActionType = "send_template"
	ActionAddTag       ActionType = "add_tag"
	ActionUpdateStatus ActionType = "update_status"
	ActionCreateTicket ActionType = "create_ticket"
)

var ActionTypes = []ActionType{ActionAssignOwner, ActionSendTemplate, ActionAddTag, ActionUpdateStatus, ActionCreateTicket}

// Action is one step executed when an automation matches.
type Action struct {
	Type   ActionType        `json:"type"`
	Params map[string]string `json:"params,omitempty"`
}

// CrmAutomation reacts to CRM events.
type CrmAutomation struct {
	ID           string      `json:"id" db:"id"`
	TenantID     string      `json:"tenant_id" db:"tenant_id"`
	Name         string      `json:"name" db:"name"`
	Description  string      `json:"description,omitempty" db:"description"`
	Trigger      Trigger     `json:"trigger" db:"trigger"`
	Conditions   []Condition `json:"conditions" db:"conditions"`
	Expression   string      `json:"expression,omitempty" db:"expression"`
	Actions      []Action    `json:"actions" db:"actions"`
	IsActive     bool        `json:"is_active" db:"is_active"`
	RunCount     int64       `json:"run_count" db:"run_count"`
	SuccessCount int64       `json:"success_count" db:"success_count"`
	FailureCount int64       `json:"failure_count" db:"failure_count"`
	LastRunAt    *time.Time  `json:"last_run_at,omitempty" db:"last_run_at"`
	Deleted      bool        `json:"-" db:"deleted"`
	DeletedAt    *time.Time  `json:"-" db:"deleted_at"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"`
}

// SuccessRate is the percentage of successful runs, 0 with no runs.
func (a *CrmAutomation) SuccessRate() float64 {
	if a.RunCount == 0 {
		return 0
	}
	return float64(a.SuccessCount) / float64(a.RunCount) * 100
}

func (a *CrmAutomation) Validate() error {
	var v ValidationErrors
	v.Required("name", a.Name)
	v.MaxLen("name", a.Name, 100)
	OneOf(&v, "trigger", a.Trigger, Triggers)
	v.MaxLen("expression", a.Expression, 1000)
	for i, c := range a.Conditions {
		field := fmt.Sprintf("conditions[%d]", i)
		v.Required(field+".field", c.Field)
		OneOf(&v, field+".operator", c.Operator, Operators)
		if c.Operator != OpExists && c.Value == nil {
			v.Add(field+".value", "is required")
		}
	}
	if len(a.Actions) == 0 {
		v.Add("actions", "at least one action is required")
	}
	for i, act := range a.Actions {
		field := fmt.Sprintf("actions[%d]", i)
		OneOf(&v, field+".type", act.Type, ActionTypes)
		for _, p := range act.Type.RequiredParams() {
			if act.Params[p] == "" {
				v.Add(field+".params."+p, "is required")
			}
		}
		if s := act.Params["strategy"]; act.Type == ActionAssignOwner && s != "" {
			OneOf(&v, field+".params.strategy", RoutingStrategy(s), RoutingStrategies)
		}
	}
	return v.Err()
}

// RequiredParams lists params an action cannot run without.
func (t ActionType) RequiredParams() []string {
	switch t {
	case ActionSendTemplate:
		return []string{"template_id"}
	case ActionAddTag:
		return []string{"tag"}
	case ActionUpdateStatus:
		return []string{"status"}
	case ActionCreateTicket:
		return []string{"subject"}
	}
	return nil
}

type AutomationResponse struct {
	*CrmAutomation
	SuccessRate float64 `json:"success_rate"`
}

func (a *CrmAutomation) ToResponse() AutomationResponse {
	return AutomationResponse{CrmAutomation: a, SuccessRate: a.SuccessRate()}
}

type AutomationFilter struct {
	Trigger Trigger
	Active  *bool
}

// Event is something that happened in the CRM that automations may react to.
type Event struct {
	TenantID  string         `json:"tenant_id"`
	Trigger   Trigger        `json:"trigger"`
	ContactID string         `json:"contact_id,omitempty"`
	ThreadID  string         `json:"thread_id,omitempty"`
	TicketID  string         `json:"ticket_id,omitempty"`
	Data      map[string]any `json:"data"`
}

// AutomationRun reports what happened for one automation on one event.
type AutomationRun struct {
	AutomationID string       `json:"automation_id"`
	Matched      bool         `json:"matched"`
	Executed     []ActionType `json:"executed,omitempty"`
	Error        string       `json:"error,omitempty"`
	DryRun       bool         `json:"dry_run"`
}

// CrmAssignmentMetrics tracks workload per agent.
type CrmAssignmentMetrics struct {
	TenantID           string     `json:"tenant_id" db:"tenant_id"`
	AgentID            string     `json:"agent_id" db:"agent_id"`
	ActiveAssignments  int        `json:"active_assignments" db:"active_assignments"`
	TotalAssigned      int64      `json:"total_assigned" db:"total_assigned"`
	TotalResolved      int64      `json:"total_resolved" db:"total_resolved"`
	Capacity           int        `json:"capacity" db:"capacity"`
	AvgResponseSeconds float64    `json:"avg_response_seconds" db:"avg_response_seconds"`
	LastAssignedAt     *time.Time `json:"last_assigned_at,omitempty" db:"last_assigned_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// DefaultAgentCapacity applies when an agent has no explicit capacity.
const DefaultAgentCapacity = 25

// Utilization is active assignments as a percentage of capacity.
func (m *CrmAssignmentMetrics) Utilization() float64 {
	if m.Capacity <= 0 {
		return 100
	}
	return float64(m.ActiveAssignments) / float64(m.Capacity) * 100
}

// ResolutionRate is resolved over assigned, in percent.
func (m *CrmAssignmentMetrics) ResolutionRate() float64 {
	if m.TotalAssigned == 0 {
		return 0
	}
	return float64(m.TotalResolved) / float64(m.TotalAssigned) * 100
}

func (m *CrmAssignmentMetrics) HasCapacity() bool {
	return m.ActiveAssignments < m.Capacity
}

type AssignmentMetricsResponse struct {
	*CrmAssignmentMetrics
	Utilization    float64 `json:"utilization"`
	ResolutionRate float64 `json:"resolution_rate"`
	HasCapacity    bool    `json:"has_capacity"`
}

func (m *CrmAssignmentMetrics) ToResponse() AssignmentMetricsResponse {
	return AssignmentMetricsResponse{
		CrmAssignmentMetrics: m,
		Utilization:          m.Utilization(),
		ResolutionRate:       m.ResolutionRate(),
		HasCapacity:          m.HasCapacity(),
	}
}

// RoutingStrategy picks an agent for new work.
type RoutingStrategy string

const (
	RoutingRoundRobin  RoutingStrategy = "round_robin"
	RoutingLeastLoaded RoutingStrategy = "least_loaded"
)

var RoutingStrategies = []RoutingStrategy{RoutingRoundRobin, RoutingLeastLoaded}
