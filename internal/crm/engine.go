package crm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/solarvest/platform/internal/metrics"
	"github.com/solarvest/platform/internal/model"
	"github.com/solarvest/platform/internal/repository"
)

// Engine errors.
var (
	ErrInvalidExpression = errors.New("invalid automation expression")
	ErrNoContact         = errors.New("event has no contact")
	ErrTemplateInactive  = errors.New("template is inactive")
)

// Store is the persistence the automation engine reads and writes.
type Store interface {
	ActiveAutomations(ctx context.Context, tenantID string, trigger model.Trigger) ([]*model.CrmAutomation, error)
	RecordAutomationRun(ctx context.Context, tenantID, id string, success bool, at time.Time) error
	GetContact(ctx context.Context, tenantID, id string) (*model.CrmContact, error)
	AddContactTag(ctx context.Context, tenantID, id, tag string) error
	SetContactStatus(ctx context.Context, tenantID, id string, status model.ContactStatus) error
	SetContactOwner(ctx context.Context, tenantID, id, ownerID string) error
	GetTemplate(ctx context.Context, tenantID, id string) (*model.CrmTemplate, error)
	IncrementTemplateUsage(ctx context.Context, tenantID, id string) error
	FindOpenThread(ctx context.Context, tenantID, contactID string, ch model.Channel) (*model.CrmThread, error)
	CreateThread(ctx context.Context, t *model.CrmThread) error
	AppendMessage(ctx context.Context, m *model.CrmMessage) error
	CreateTicket(ctx context.Context, t *model.Ticket) error
}

// Engine evaluates automations against CRM events and runs their actions.
type Engine struct {
	store   Store
	router  *Router
	logger  *slog.Logger
	metrics metrics.Recorder
	now     func() time.Time

	mu       sync.RWMutex
	programs map[string]*vm.Program
}

// NewEngine creates an automation engine.
func NewEngine(store Store, router *Router, logger *slog.Logger, recorder metrics.Recorder) *Engine {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Engine{
		store:    store,
		router:   router,
		logger:   logger.With("component", "crm.engine"),
		metrics:  recorder,
		now:      time.Now,
		programs: make(map[string]*vm.Program),
	}
}

// CompileExpression checks that src is a boolean expression.
func (e *Engine) CompileExpression(src string) error {
	if src == "" {
		return nil
	}
	_, err := e.program(src)
	return err
}

func (e *Engine) program(src string) (*vm.Program, error) {
	e.mu.RLock()
	p, ok := e.programs[src]
	e.mu.RUnlock()
	if ok {
		return p, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.programs[src]; ok {
		return p, nil
	}
	p, err := expr.Compile(src, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	e.programs[src] = p
	return p, nil
}

// Matches evaluates the structured conditions and the optional expression.
func (e *Engine) Matches(a *model.CrmAutomation, ev model.Event) (bool, error) {
	if a.Trigger != ev.Trigger {
		return false, nil
	}
	data := ev.Data
	if data == nil {
		data = map[string]any{}
	}
	if !MatchConditions(a.Conditions, data) {
		return false, nil
	}
	if a.Expression == "" {
		return true, nil
	}
	p, err := e.program(a.Expression)
	if err != nil {
		return false, err
	}
	out, err := expr.Run(p, data)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	matched, _ := out.(bool)
	return matched, nil
}

// Dispatch runs every active automation for the event's trigger. Failures
// are recorded on the automation and logged; they never propagate.
func (e *Engine) Dispatch(ctx context.Context, ev model.Event) []model.AutomationRun {
	automations, err := e.store.ActiveAutomations(ctx, ev.TenantID, ev.Trigger)
	if err != nil {
		e.logger.Error("load_automations_failed", "tenant_id", ev.TenantID, "trigger", ev.Trigger, "error", err)
		return nil
	}

	runs := make([]model.AutomationRun, 0, len(automations))
	for _, a := range automations {
		runs = append(runs, e.run(ctx, a, ev))
	}
	return runs
}

func (e *Engine) run(ctx context.Context, a *model.CrmAutomation, ev model.Event) model.AutomationRun {
	run := model.AutomationRun{AutomationID: a.ID}
	log := e.logger.With("tenant_id", ev.TenantID, "automation_id", a.ID, "trigger", ev.Trigger)

	matched, err := e.Matches(a, ev)
	if err == nil && !matched {
		e.metrics.IncAutomationRun("skipped")
		return run
	}
	run.Matched = matched

	if err == nil {
		for _, act := range a.Actions {
			if err = e.execute(ctx, act, ev); err != nil {
				err = fmt.Errorf("action %s: %w", act.Type, err)
				break
			}
			run.Executed = append(run.Executed, act.Type)
		}
	}

	success := err == nil
	if err != nil {
		run.Error = err.Error()
		log.Warn("automation_failed", "error", err)
		e.metrics.IncAutomationRun("failed")
	} else {
		log.Info("automation_executed", "actions", len(run.Executed))
		e.metrics.IncAutomationRun("success")
	}
	if rerr := e.store.RecordAutomationRun(ctx, ev.TenantID, a.ID, success, e.now()); rerr != nil {
		log.Error("record_automation_run_failed", "error", rerr)
	}
	return run
}

// Test evaluates a against ev without side effects.
func (e *Engine) Test(a *model.CrmAutomation, ev model.Event) model.AutomationRun {
	run := model.AutomationRun{AutomationID: a.ID, DryRun: true}
	ev.Trigger = a.Trigger
	matched, err := e.Matches(a, ev)
	if err != nil {
		run.Error = err.Error()
		return run
	}
	run.Matched = matched
	if matched {
		for _, act := range a.Actions {
			run.Executed = append(run.Executed, act.Type)
		}
	}
	return run
}

func (e *Engine) execute(ctx context.Context, act model.Action, ev model.Event) error {
	if ev.ContactID == "" {
		return ErrNoContact
	}
	contact, err := e.store.GetContact(ctx, ev.TenantID, ev.ContactID)
	if err != nil {
		return err
	}

	switch act.Type {
	case model.ActionAddTag:
		return e.store.AddContactTag(ctx, ev.TenantID, contact.ID, act.Params["tag"])

	case model.ActionUpdateStatus:
		status := model.ContactStatus(act.Params["status"])
		if !slices.Contains(model.ContactStatuses, status) {
			return fmt.Errorf("unknown contact status %q", status)
		}
		if err := e.store.SetContactStatus(ctx, ev.TenantID, contact.ID, status); err != nil {
			return err
		}
		if status == model.ContactChurned && contact.OwnerID != nil && e.router != nil {
			return e.router.Release(ctx, ev.TenantID, *contact.OwnerID)
		}
		return nil

	case model.ActionAssignOwner:
		return e.assignOwner(ctx, contact, act.Params)

	case model.ActionSendTemplate:
		return e.sendTemplate(ctx, contact, act.Params["template_id"])

	case model.ActionCreateTicket:
		now := e.now().UTC()
		t := &model.Ticket{
			ID:             model.NewID(),
			TenantID:       ev.TenantID,
			Subject:        act.Params["subject"],
			Description:    act.Params["description"],
			Priority:       model.TicketPriority(act.Params["priority"]),
			Category:       act.Params["category"],
			RequesterEmail: contact.Email,
			ContactID:      &contact.ID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		t.ApplyDefaults(now)
		if err := t.Validate(); err != nil {
			return err
		}
		// The contact owner takes the ticket when they have a free slot.
		if contact.OwnerID != nil && e.router != nil {
			err := e.router.AssignTo(ctx, ev.TenantID, *contact.OwnerID)
			switch {
			case err == nil:
				t.AssignedTo = contact.OwnerID
			case !errors.Is(err, ErrNoAgentAvailable):
				return err
			}
		}
		return e.store.CreateTicket(ctx, t)
	}
	return fmt.Errorf("unsupported action %q", act.Type)
}

func (e *Engine) assignOwner(ctx context.Context, contact *model.CrmContact, params map[string]string) error {
	if e.router == nil {
		return ErrNoAgentAvailable
	}
	agentID := params["agent_id"]
	if agentID != "" {
		if contact.OwnerID != nil && *contact.OwnerID == agentID {
			return nil
		}
		if err := e.router.AssignTo(ctx, contact.TenantID, agentID); err != nil {
			return err
		}
	} else {
		if contact.OwnerID != nil {
			return nil
		}
		var err error
		agentID, err = e.router.Assign(ctx, contact.TenantID, model.RoutingStrategy(params["strategy"]))
		if err != nil {
			return err
		}
	}

	if err := e.store.SetContactOwner(ctx, contact.TenantID, contact.ID, agentID); err != nil {
		if relErr := e.router.Release(ctx, contact.TenantID, agentID); relErr != nil {
			e.logger.Warn("assignment_release_failed", "tenant_id", contact.TenantID, "agent_id", agentID, "error", relErr)
		}
		return err
	}
	if contact.OwnerID != nil {
		if err := e.router.Release(ctx, contact.TenantID, *contact.OwnerID); err != nil {
			e.logger.Warn("assignment_release_failed", "tenant_id", contact.TenantID, "agent_id", *contact.OwnerID, "error", err)
		}
	}
	return nil
}

func (e *Engine) sendTemplate(ctx context.Context, contact *model.CrmContact, templateID string) error {
	tpl, err := e.store.GetTemplate(ctx, contact.TenantID, templateID)
	if err != nil {
		return err
	}
	if !tpl.IsActive {
		return ErrTemplateInactive
	}

	now := e.now().UTC()
	rendered, err := Render(tpl, TemplateData(contact, nil, now), nil)
	if err != nil {
		return err
	}

	thread, err := e.store.FindOpenThread(ctx, contact.TenantID, contact.ID, tpl.Channel)
	if errors.Is(err, repository.ErrNotFound) {
		thread = &model.CrmThread{
			ID:         model.NewID(),
			TenantID:   contact.TenantID,
			ContactID:  contact.ID,
			Channel:    tpl.Channel,
			Subject:    rendered.Subject,
			Status:     model.ThreadOpen,
			AssignedTo: contact.OwnerID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		err = e.store.CreateThread(ctx, thread)
	}
	if err != nil {
		return err
	}

	msg := &model.CrmMessage{
		ID:         model.NewID(),
		TenantID:   contact.TenantID,
		ThreadID:   thread.ID,
		ContactID:  contact.ID,
		Direction:  model.DirectionOutbound,
		Channel:    tpl.Channel,
		Body:       rendered.Body,
		TemplateID: &tpl.ID,
		Status:     model.MessageSent,
		SentAt:     now,
		CreatedAt:  now,
	}
	if err := e.store.AppendMessage(ctx, msg); err != nil {
		return err
	}
	return e.store.IncrementTemplateUsage(ctx, contact.TenantID, tpl.ID)
}
