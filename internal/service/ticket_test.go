package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/solarvest/platform/internal/crm"
	"github.com/solarvest/platform/internal/model"
)

func TestTicketCreateSLAAndAutoAssign(t *testing.T) {
	t.Parallel()
	store := newFakeRecords()
	router := newFakeAssigner(2, "agent-1")
	events := &recordingDispatcher{}
	opts := testOptions()
	opts.Events = events
	svc := NewTicketService(store, router, opts)

	tk, err := svc.Create(context.Background(), "t1", TicketInput{Subject: "Inverter offline", Priority: model.PriorityUrgent, AutoAssign: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := tk.DueAt.Sub(tk.CreatedAt); got != 4*time.Hour {
		t.Fatalf("expected 4h SLA, got %v", got)
	}
	if tk.AssignedTo == nil || *tk.AssignedTo != "agent-1" {
		t.Fatalf("expected auto assignment, got %v", tk.AssignedTo)
	}
	if router.load("agent-1") != 1 {
		t.Fatalf("expected one reserved slot, got %d", router.load("agent-1"))
	}
	if got := events.triggers(); len(got) != 1 || got[0] != model.TriggerTicketCreated {
		t.Fatalf("expected ticket_created, got %v", got)
	}
}

func TestTicketCreateWithoutFreeAgent(t *testing.T) {
	t.Parallel()
	svc := NewTicketService(newFakeRecords(), newFakeAssigner(0, ""), testOptions())

	tk, err := svc.Create(context.Background(), "t1", TicketInput{Subject: "Billing", AutoAssign: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tk.AssignedTo != nil {
		t.Fatalf("expected unassigned ticket, got %v", *tk.AssignedTo)
	}
	if tk.Priority != model.PriorityMedium {
		t.Fatalf("expected default priority, got %s", tk.Priority)
	}
}

func TestTicketUpdateLifecycle(t *testing.T) {
	t.Parallel()
	store := newFakeRecords()
	router := newFakeAssigner(5, "agent-1")
	svc := NewTicketService(store, router, testOptions())
	ctx := context.Background()

	tk, err := svc.Create(ctx, "t1", TicketInput{Subject: "Panel damage", Priority: model.PriorityLow, AutoAssign: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	high := model.PriorityHigh
	tk, err = svc.Update(ctx, "t1", tk.ID, TicketPatch{Priority: &high})
	if err != nil {
		t.Fatalf("reprioritise: %v", err)
	}
	if got := tk.DueAt.Sub(tk.CreatedAt); got != 24*time.Hour {
		t.Fatalf("expected SLA recomputed from creation, got %v", got)
	}

	resolved := model.TicketResolved
	tk, err = svc.Update(ctx, "t1", tk.ID, TicketPatch{Status: &resolved})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if tk.ResolvedAt == nil {
		t.Fatal("expected resolved_at")
	}
	if router.load("agent-1") != 0 {
		t.Fatalf("expected slot released on resolve, got %d", router.load("agent-1"))
	}

	waiting := model.TicketWaiting
	if _, err := svc.Update(ctx, "t1", tk.ID, TicketPatch{Status: &waiting}); err == nil {
		t.Fatal("expected resolved -> waiting to be rejected")
	}

	open := model.TicketOpen
	tk, err = svc.Update(ctx, "t1", tk.ID, TicketPatch{Status: &open})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if tk.ResolvedAt != nil {
		t.Fatal("expected resolved_at cleared on reopen")
	}
	if router.load("agent-1") != 1 {
		t.Fatalf("expected slot reserved on reopen, got %d", router.load("agent-1"))
	}

	other := "agent-2"
	if _, err := svc.Update(ctx, "t1", tk.ID, TicketPatch{AssignedTo: &other}); err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if router.load("agent-1") != 0 || router.load("agent-2") != 1 {
		t.Fatalf("expected slot moved, got agent-1=%d agent-2=%d", router.load("agent-1"), router.load("agent-2"))
	}

	if err := svc.Delete(ctx, "t1", tk.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if router.load("agent-2") != 0 {
		t.Fatalf("expected slot released on delete, got %d", router.load("agent-2"))
	}
}

func TestTicketAssignmentRespectsCapacity(t *testing.T) {
	t.Parallel()
	store := newFakeRecords()
	router := newFakeAssigner(1, "agent-1")
	svc := NewTicketService(store, router, testOptions())
	ctx := context.Background()
	agent := "agent-1"

	a, err := svc.Create(ctx, "t1", TicketInput{Subject: "Meter fault", AssignedTo: &agent})
	if err != nil {
		t.Fatalf("create A: %v", err)
	}
	if _, err := svc.Create(ctx, "t1", TicketInput{Subject: "Roof leak", AssignedTo: &agent}); !errors.Is(err, crm.ErrNoAgentAvailable) {
		t.Fatalf("expected ErrNoAgentAvailable for a full agent, got %v", err)
	}
	if router.load("agent-1") != 1 {
		t.Fatalf("expected one held slot, got %d", router.load("agent-1"))
	}

	b, err := svc.Create(ctx, "t1", TicketInput{Subject: "Roof leak"})
	if err != nil {
		t.Fatalf("create B: %v", err)
	}
	if _, err := svc.Update(ctx, "t1", b.ID, TicketPatch{AssignedTo: &agent}); !errors.Is(err, crm.ErrNoAgentAvailable) {
		t.Fatalf("expected reassignment to a full agent to fail, got %v", err)
	}
	resolved := model.TicketResolved
	if _, err := svc.Update(ctx, "t1", b.ID, TicketPatch{Status: &resolved}); err != nil {
		t.Fatalf("resolve B: %v", err)
	}
	if router.load("agent-1") != 1 {
		t.Fatalf("resolving an unassigned ticket must not free A's slot, got %d", router.load("agent-1"))
	}

	// Resolve A, hand the slot to a third ticket, then reopen A.
	if _, err := svc.Update(ctx, "t1", a.ID, TicketPatch{Status: &resolved}); err != nil {
		t.Fatalf("resolve A: %v", err)
	}
	if _, err := svc.Create(ctx, "t1", TicketInput{Subject: "Inverter noise", AssignedTo: &agent}); err != nil {
		t.Fatalf("create C: %v", err)
	}
	open := model.TicketOpen
	reopened, err := svc.Update(ctx, "t1", a.ID, TicketPatch{Status: &open})
	if err != nil {
		t.Fatalf("reopen A: %v", err)
	}
	if reopened.AssignedTo != nil {
		t.Fatalf("expected reopened ticket back in the queue, got %v", *reopened.AssignedTo)
	}
	if router.load("agent-1") != 1 {
		t.Fatalf("expected capacity unchanged, got %d", router.load("agent-1"))
	}
}
