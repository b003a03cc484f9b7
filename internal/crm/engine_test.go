package crm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solarvest/platform/internal/metrics"
	"github.com/solarvest/platform/internal/model"
)

const tenant = "t1"

func newEngineFixture(t *testing.T) (*Engine, *memStore, *metrics.InMemoryRecorder) {
	t.Helper()
	store := newMemStore()
	store.agents = []*model.User{{ID: "agent-1", TenantID: tenant, Role: model.RoleAgent}}
	store.contacts["c1"] = &model.CrmContact{
		ID: "c1", TenantID: tenant, FirstName: "Ada", Email: "ada@example.com",
		Status: model.ContactLead, Source: model.SourceWeb, Tags: []string{},
	}
	store.templates["tpl"] = &model.CrmTemplate{
		ID: "tpl", TenantID: tenant, Channel: model.ChannelEmail, IsActive: true,
		Subject: "Welcome", Body: "Hi {{.FirstName}}",
	}
	rec := metrics.NewInMemory()
	router := NewRouter(store, model.RoutingRoundRobin, discardLogger(), rec)
	e := NewEngine(store, router, discardLogger(), rec)
	e.now = func() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) }
	return e, store, rec
}

func contactEvent(trigger model.Trigger, source string) model.Event {
	return model.Event{
		TenantID:  tenant,
		Trigger:   trigger,
		ContactID: "c1",
		Data: map[string]any{
			"contact": map[string]any{"status": "lead", "source": source, "email": "ada@example.com"},
		},
	}
}

func TestEngine_DispatchRunsMatchingActions(t *testing.T) {
	t.Parallel()

	e, store, rec := newEngineFixture(t)
	store.automations = []*model.CrmAutomation{{
		ID: "welcome", TenantID: tenant, Trigger: model.TriggerContactCreated, IsActive: true,
		Conditions: []model.Condition{{Field: "contact.source", Operator: model.OpEq, Value: "web"}},
		Actions: []model.Action{
			{Type: model.ActionAddTag, Params: map[string]string{"tag": "inbound"}},
			{Type: model.ActionAssignOwner},
			{Type: model.ActionSendTemplate, Params: map[string]string{"template_id": "tpl"}},
		},
	}}

	runs := e.Dispatch(context.Background(), contactEvent(model.TriggerContactCreated, "web"))
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Matched)
	assert.Empty(t, runs[0].Error)
	assert.Len(t, runs[0].Executed, 3)

	c := store.contacts["c1"]
	assert.Equal(t, []string{"inbound"}, c.Tags)
	require.NotNil(t, c.OwnerID)
	assert.Equal(t, "agent-1", *c.OwnerID)

	require.Len(t, store.threads, 1)
	require.Len(t, store.messages, 1)
	assert.Equal(t, "Hi Ada", store.messages[0].Body)
	assert.Equal(t, model.DirectionOutbound, store.messages[0].Direction)
	assert.EqualValues(t, 1, store.templates["tpl"].UsageCount)
	assert.Equal(t, [2]int{1, 0}, store.runs["welcome"])
	assert.EqualValues(t, 1, rec.Snapshot().AutomationRuns["success"])
}

func TestEngine_NonMatchIsNotARun(t *testing.T) {
	t.Parallel()

	e, store, _ := newEngineFixture(t)
	store.automations = []*model.CrmAutomation{{
		ID: "web-only", Trigger: model.TriggerContactCreated, IsActive: true,
		Conditions: []model.Condition{{Field: "contact.source", Operator: model.OpEq, Value: "web"}},
		Actions:    []model.Action{{Type: model.ActionAddTag, Params: map[string]string{"tag": "x"}}},
	}}

	runs := e.Dispatch(context.Background(), contactEvent(model.TriggerContactCreated, "import"))
	require.Len(t, runs, 1)
	assert.False(t, runs[0].Matched)
	assert.Empty(t, store.runs)
	assert.Empty(t, store.contacts["c1"].Tags)
}

func TestEngine_FailingActionStopsRun(t *testing.T) {
	t.Parallel()

	e, store, _ := newEngineFixture(t)
	store.templates["tpl"].IsActive = false
	store.automations = []*model.CrmAutomation{{
		ID: "broken", Trigger: model.TriggerContactCreated, IsActive: true,
		Actions: []model.Action{
			{Type: model.ActionSendTemplate, Params: map[string]string{"template_id": "tpl"}},
			{Type: model.ActionAddTag, Params: map[string]string{"tag": "never"}},
		},
	}}

	runs := e.Dispatch(context.Background(), contactEvent(model.TriggerContactCreated, "web"))
	require.Len(t, runs, 1)
	assert.Contains(t, runs[0].Error, ErrTemplateInactive.Error())
	assert.Empty(t, runs[0].Executed)
	assert.Empty(t, store.contacts["c1"].Tags)
	assert.Equal(t, [2]int{0, 1}, store.runs["broken"])
}

func TestEngine_ExpressionAndTicket(t *testing.T) {
	t.Parallel()

	e, store, _ := newEngineFixture(t)
	store.automations = []*model.CrmAutomation{{
		ID: "escalate", Trigger: model.TriggerMessageReceived, IsActive: true,
		Expression: `message.body contains "urgent" && contact.status != "churned"`,
		Actions: []model.Action{
			{Type: model.ActionCreateTicket, Params: map[string]string{"subject": "Urgent reply", "priority": "high"}},
			{Type: model.ActionUpdateStatus, Params: map[string]string{"status": "prospect"}},
		},
	}}

	ev := contactEvent(model.TriggerMessageReceived, "web")
	ev.Data["message"] = map[string]any{"body": "this is urgent", "channel": "email"}
	runs := e.Dispatch(context.Background(), ev)
	require.Len(t, runs, 1)
	assert.Empty(t, runs[0].Error)
	require.Len(t, store.tickets, 1)
	tk := store.tickets[0]
	assert.Equal(t, model.PriorityHigh, tk.Priority)
	assert.Equal(t, e.now().Add(24*time.Hour), tk.DueAt)
	assert.Equal(t, model.ContactProspect, store.contacts["c1"].Status)

	ev.Data["message"] = map[string]any{"body": "thanks"}
	runs = e.Dispatch(context.Background(), ev)
	assert.False(t, runs[0].Matched)
	assert.Len(t, store.tickets, 1)
}

func TestEngine_TestIsDryRun(t *testing.T) {
	t.Parallel()

	e, store, _ := newEngineFixture(t)
	a := &model.CrmAutomation{
		ID: "dry", Trigger: model.TriggerContactCreated,
		Actions: []model.Action{{Type: model.ActionAddTag, Params: map[string]string{"tag": "x"}}},
	}

	run := e.Test(a, contactEvent(model.TriggerContactStatusChanged, "web"))
	assert.True(t, run.DryRun)
	assert.True(t, run.Matched)
	assert.Equal(t, []model.ActionType{model.ActionAddTag}, run.Executed)
	assert.Empty(t, store.contacts["c1"].Tags)
}

func TestEngine_CompileExpression(t *testing.T) {
	t.Parallel()

	e, _, _ := newEngineFixture(t)
	assert.NoError(t, e.CompileExpression(""))
	assert.NoError(t, e.CompileExpression(`contact.source == "web"`))
	assert.ErrorIs(t, e.CompileExpression(`contact.source ==`), ErrInvalidExpression)
	assert.ErrorIs(t, e.CompileExpression(`1 + 2`), ErrInvalidExpression)
}

func TestEngine_AssignOwnerKeepsLoadOnFailedWrite(t *testing.T) {
	t.Parallel()

	e, store, _ := newEngineFixture(t)
	prev := "agent-2"
	store.contacts["c1"].OwnerID = &prev
	store.stats["agent-1"] = &model.CrmAssignmentMetrics{TenantID: tenant, AgentID: "agent-1", Capacity: 5}
	store.stats["agent-2"] = &model.CrmAssignmentMetrics{TenantID: tenant, AgentID: "agent-2", Capacity: 5, ActiveAssignments: 1}
	store.automations = []*model.CrmAutomation{{
		ID: "handover", Trigger: model.TriggerContactCreated, IsActive: true,
		Actions: []model.Action{{Type: model.ActionAssignOwner, Params: map[string]string{"agent_id": "agent-1"}}},
	}}

	store.ownerErr = errors.New("connection reset")
	runs := e.Dispatch(context.Background(), contactEvent(model.TriggerContactCreated, "web"))
	require.Len(t, runs, 1)
	assert.Contains(t, runs[0].Error, "connection reset")
	assert.Equal(t, 0, store.stats["agent-1"].ActiveAssignments)
	assert.Equal(t, 1, store.stats["agent-2"].ActiveAssignments)
	assert.Equal(t, "agent-2", *store.contacts["c1"].OwnerID)

	store.ownerErr = nil
	runs = e.Dispatch(context.Background(), contactEvent(model.TriggerContactCreated, "web"))
	require.Len(t, runs, 1)
	assert.Empty(t, runs[0].Error)
	assert.Equal(t, 1, store.stats["agent-1"].ActiveAssignments)
	assert.Equal(t, 0, store.stats["agent-2"].ActiveAssignments)
	assert.Equal(t, "agent-1", *store.contacts["c1"].OwnerID)
}
