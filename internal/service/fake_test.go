package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/solarvest/platform/internal/crm"
	"github.com/solarvest/platform/internal/model"
	"github.com/solarvest/platform/internal/repository"
)

func testOptions() Options {
	return Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// The fakes embed the store interface they stand in for; calling a method a
// test did not expect panics on the nil embedded value.

type fakeUsers struct {
	UserStore
	mu    sync.Mutex
	users map[string]*model.User
}

func newFakeUsers(users ...*model.User) *fakeUsers {
	f := &fakeUsers{users: map[string]*model.User{}}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) GetUser(_ context.Context, _, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetUserByEmail(_ context.Context, tenantID, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.TenantID == tenantID && u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) RecordLoginFailure(_ context.Context, _, id string, maxAttempts int, lockUntil time.Time) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[id]
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= maxAttempts {
		u.LockedUntil = &lockUntil
		u.FailedLoginAttempts = 0
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) RecordLoginSuccess(_ context.Context, _, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[id]
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	u.LastLoginAt = &at
	return nil
}

func (f *fakeUsers) UpdateUserPassword(_ context.Context, _, id, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id].PasswordHash = hash
	return nil
}

func (f *fakeUsers) DeleteUser(_ context.Context, _, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.users, id)
	return nil
}

// fakeRecords backs the investor, KYC and ticket tests.
type fakeRecords struct {
	InvestorStore
	mu          sync.Mutex
	investors   map[string]*model.Investor
	investments map[string]*model.Investment
	documents   map[string]*model.KYCDocument
	tickets     map[string]*model.Ticket
	contacts    map[string]*model.CrmContact
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{
		investors:   map[string]*model.Investor{},
		investments: map[string]*model.Investment{},
		documents:   map[string]*model.KYCDocument{},
		tickets:     map[string]*model.Ticket{},
		contacts:    map[string]*model.CrmContact{},
	}
}

func (f *fakeRecords) GetInvestor(_ context.Context, _, id string) (*model.Investor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.investors[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *i
	return &cp, nil
}

func (f *fakeRecords) SetInvestorKYCStatus(_ context.Context, _, id string, status model.KYCStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.investors[id]
	if !ok {
		return repository.ErrNotFound
	}
	i.KYCStatus = status
	return nil
}

func (f *fakeRecords) CreateInvestment(_ context.Context, i *model.Investment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.investments[i.ID] = i
	return nil
}

func (f *fakeRecords) GetInvestment(_ context.Context, _, id string) (*model.Investment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.investments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *i
	return &cp, nil
}

func (f *fakeRecords) UpdateInvestment(_ context.Context, i *model.Investment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.investments[i.ID] = i
	return nil
}

func (f *fakeRecords) CreateKYCDocument(_ context.Context, d *model.KYCDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents[d.ID] = d
	return nil
}

func (f *fakeRecords) GetKYCDocument(_ context.Context, _, id string) (*model.KYCDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.documents[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeRecords) ReviewKYCDocument(_ context.Context, d *model.KYCDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.documents[d.ID].Status != model.DocPending {
		return repository.ErrConflict
	}
	f.documents[d.ID] = d
	return nil
}

func (f *fakeRecords) ListKYCDocuments(context.Context, string, model.KYCFilter, model.Page) ([]*model.KYCDocument, int64, error) {
	return nil, 0, nil
}

func (f *fakeRecords) DeleteKYCDocument(context.Context, string, string) error { return nil }

func (f *fakeRecords) CreateTicket(_ context.Context, t *model.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickets[t.ID] = t
	return nil
}

func (f *fakeRecords) GetTicket(_ context.Context, _, id string) (*model.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeRecords) UpdateTicket(_ context.Context, t *model.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickets[t.ID] = t
	return nil
}

func (f *fakeRecords) DeleteTicket(_ context.Context, _, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tickets, id)
	return nil
}

func (f *fakeRecords) ListTickets(context.Context, string, model.TicketFilter, model.Page) ([]*model.Ticket, int64, error) {
	return nil, 0, nil
}

func (f *fakeRecords) GetContact(_ context.Context, _, id string) (*model.CrmContact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.contacts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// fakeAssigner tracks reserved slots per agent.
type fakeAssigner struct {
	mu       sync.Mutex
	capacity int
	active   map[string]int
	next     string
}

func newFakeAssigner(capacity int, next string) *fakeAssigner {
	return &fakeAssigner{capacity: capacity, active: map[string]int{}, next: next}
}

func (a *fakeAssigner) Assign(ctx context.Context, tenantID string, _ model.RoutingStrategy) (string, error) {
	if a.next == "" {
		return "", crm.ErrNoAgentAvailable
	}
	return a.next, a.AssignTo(ctx, tenantID, a.next)
}

func (a *fakeAssigner) AssignTo(_ context.Context, _, agentID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active[agentID] >= a.capacity {
		return crm.ErrNoAgentAvailable
	}
	a.active[agentID]++
	return nil
}

func (a *fakeAssigner) Release(_ context.Context, _, agentID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active[agentID] > 0 {
		a.active[agentID]--
	}
	return nil
}

func (a *fakeAssigner) load(agentID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active[agentID]
}

// recordingDispatcher captures emitted events.
type recordingDispatcher struct {
	mu     sync.Mutex
	events []model.Event
}

func (d *recordingDispatcher) Dispatch(_ context.Context, ev model.Event) []model.AutomationRun {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
	return nil
}

func (d *recordingDispatcher) triggers() []model.Trigger {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]model.Trigger, 0, len(d.events))
	for _, ev := range d.events {
		out = append(out, ev.Trigger)
	}
	return out
}
