package export

import (
	"bytes"
	"context"
	"io"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/solarvest/platform/internal/metrics"
	"github.com/solarvest/platform/internal/model"
)

// memStore keeps scheduled exports and history in memory.
type memStore struct {
	mu       sync.Mutex
	exports  map[string]*model.ScheduledExport
	history  map[string]*model.ExportHistory
	runs     map[string][]model.ExportStatus
	claimErr error
}

func newMemStore(exports ...*model.ScheduledExport) *memStore {
	s := &memStore{
		exports: map[string]*model.ScheduledExport{},
		history: map[string]*model.ExportHistory{},
		runs:    map[string][]model.ExportStatus{},
	}
	for _, e := range exports {
		s.exports[e.ID] = e
	}
	return s
}

func (s *memStore) DueExports(_ context.Context, now time.Time, limit int) ([]*model.ScheduledExport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.ScheduledExport
	for _, e := range s.exports {
		if e.IsDue(now) {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) ClaimExport(_ context.Context, id string, prev time.Time, next *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return s.claimErr
	}
	e := s.exports[id]
	if e.NextRunAt == nil || !e.NextRunAt.Equal(prev) {
		return ErrClaimLost
	}
	e.NextRunAt = next
	return nil
}

func (s *memStore) CreateHistory(_ context.Context, h *model.ExportHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *h
	s.history[h.ID] = &cp
	return nil
}

func (s *memStore) CompleteHistory(_ context.Context, h *model.ExportHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *h
	cp.Status = model.ExportCompleted
	s.history[h.ID] = &cp
	return nil
}

func (s *memStore) FailHistory(_ context.Context, id, message string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.history[id]
	h.Status = model.ExportFailed
	h.ErrorMessage = message
	h.CompletedAt = &at
	return nil
}

func (s *memStore) RecordRun(_ context.Context, id string, status model.ExportStatus, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[id] = append(s.runs[id], status)
	return nil
}

func (s *memStore) historyList() []*model.ExportHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.ExportHistory, 0, len(s.history))
	for _, h := range s.history {
		cp := *h
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExportID < out[j].ExportID })
	return out
}

func (s *memStore) runsOf(id string) []model.ExportStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.runs[id])
}

type fakeSource struct {
	// block, when set, holds Fetch until it is closed or ctx ends.
	block chan struct{}
}

func (f *fakeSource) Fetch(ctx context.Context, _ string, _ model.ExportType, _ model.ExportFilters, _ int) (*Dataset, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &Dataset{Columns: []string{"id", "status"}, Rows: [][]any{{"a", "active"}, {"b", "active"}, {"c", "prospect"}}}, nil
}

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memStorage) Put(_ context.Context, key, _ string, r io.Reader, _ int64) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = b
	return nil
}

func (m *memStorage) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://files.test/" + key, nil
}

type recordingSender struct {
	mu    sync.Mutex
	notes []Notification
}

func (r *recordingSender) Notify(_ context.Context, _ string, note Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, note)
	return nil
}

func (r *recordingSender) sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.notes)
}

type harness struct {
	store   *memStore
	storage *memStorage
	sender  *recordingSender
	rec     *metrics.InMemoryRecorder
	sched   *Scheduler
	now     time.Time
}

func newHarness(t *testing.T, src Source, cfg SchedulerConfig, exports ...*model.ScheduledExport) *harness {
	t.Helper()
	h := &harness{
		store:   newMemStore(exports...),
		storage: &memStorage{objects: map[string][]byte{}},
		sender:  &recordingSender{},
		rec:     metrics.NewInMemory(),
		now:     time.Date(2026, 3, 9, 6, 0, 30, 0, time.UTC),
	}
	runner := NewRunner(src, h.storage, h.store, h.sender, RunnerConfig{}, discardLogger(), h.rec)
	runner.now = func() time.Time { return h.now }
	h.sched = NewScheduler(h.store, runner, cfg, discardLogger(), h.rec)
	h.sched.now = func() time.Time { return h.now }
	return h
}

func dueExport(id string, at time.Time) *model.ScheduledExport {
	next := at
	return &model.ScheduledExport{
		ID: id, TenantID: "t1", Name: "Investors " + id, ExportType: model.ExportInvestors, Format: model.FormatCSV,
		Frequency: model.FrequencyDaily, TimeOfDay: "06:00", Timezone: "UTC", IsActive: true,
		NotifyURL: "https://hooks.example.com/exports", Recipients: []string{"ops@example.com"}, NextRunAt: &next,
	}
}

func waitJobs(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
}

func TestRunOnceRunsDueExports(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	at := time.Date(2026, 3, 9, 6, 0, 0, 0, time.UTC)
	later := at.Add(time.Hour)
	h := newHarness(t, &fakeSource{}, SchedulerConfig{MaxConcurrent: 2},
		dueExport("se1", at), dueExport("se2", at), dueExport("se3", later))

	started, err := h.sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, started)
	waitJobs(t, h.sched)

	hist := h.store.historyList()
	require.Len(t, hist, 2)
	for _, r := range hist {
		assert.Equal(t, model.ExportCompleted, r.Status)
		assert.Equal(t, int64(3), r.RowCount)
		assert.Equal(t, model.TriggeredByScheduler, r.TriggeredBy)
		assert.Equal(t, ObjectKey("t1", r.ExportID, model.FormatCSV, h.now), r.FileKey)
		assert.Equal(t, "https://files.test/"+r.FileKey, r.FileURL)
		assert.Equal(t, int64(len(h.storage.objects[r.FileKey])), r.FileSize)
	}
	assert.True(t, bytes.HasPrefix(h.storage.objects[hist[0].FileKey], []byte("id,status\n")))

	// Claimed exports move to tomorrow's slot; the unclaimed one keeps its time.
	assert.Equal(t, time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC), *h.store.exports["se1"].NextRunAt)
	assert.Equal(t, later, *h.store.exports["se3"].NextRunAt)
	assert.Equal(t, []model.ExportStatus{model.ExportCompleted}, h.store.runsOf("se1"))

	notes := h.sender.sent()
	require.Len(t, notes, 2)
	assert.Equal(t, "export.completed", notes[0].Event)
	assert.Equal(t, []string{"ops@example.com"}, notes[0].Recipients)

	snap := h.rec.Snapshot()
	assert.Equal(t, uint64(2), snap.ExportRuns["completed"])
	assert.Equal(t, int64(6), snap.ExportRows)
	assert.Equal(t, int64(0), snap.ExportsInFlight)

	// A second pass finds nothing due.
	started, err = h.sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, started)
}

func TestRunOnceSkipsLostClaims(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	h := newHarness(t, &fakeSource{}, SchedulerConfig{}, dueExport("se1", time.Date(2026, 3, 9, 6, 0, 0, 0, time.UTC)))
	h.store.claimErr = ErrClaimLost

	started, err := h.sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, started)
	assert.Empty(t, h.store.historyList())
}

func TestRunOnceBoundedBySlots(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	at := time.Date(2026, 3, 9, 6, 0, 0, 0, time.UTC)
	src := &fakeSource{block: make(chan struct{})}
	h := newHarness(t, src, SchedulerConfig{MaxConcurrent: 1}, dueExport("se1", at), dueExport("se2", at))

	started, err := h.sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, started)
	assert.Equal(t, at, *h.store.exports["se2"].NextRunAt, "unclaimed export stays due")

	close(src.block)
	waitJobs(t, h.sched)

	started, err = h.sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, started)
	waitJobs(t, h.sched)
}

func TestRunOnceOverlapAndLock(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	h := newHarness(t, &fakeSource{}, SchedulerConfig{}, dueExport("se1", time.Date(2026, 3, 9, 6, 0, 0, 0, time.UTC)))

	h.sched.ticking.Lock()
	started, err := h.sched.RunOnce(context.Background())
	h.sched.ticking.Unlock()
	require.NoError(t, err)
	assert.Zero(t, started)

	h.sched.SetLock(func(context.Context) (func(), bool, error) { return nil, false, nil })
	started, err = h.sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, started)

	released := false
	h.sched.SetLock(func(context.Context) (func(), bool, error) { return func() { released = true }, true, nil })
	started, err = h.sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, started)
	assert.True(t, released)
	waitJobs(t, h.sched)
}

func TestJobTimeoutRecordsFailure(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	src := &fakeSource{block: make(chan struct{})}
	h := newHarness(t, src, SchedulerConfig{JobTimeout: 20 * time.Millisecond}, dueExport("se1", time.Date(2026, 3, 9, 6, 0, 0, 0, time.UTC)))

	_, err := h.sched.RunOnce(context.Background())
	require.NoError(t, err)
	waitJobs(t, h.sched)

	hist := h.store.historyList()
	require.Len(t, hist, 1)
	assert.Equal(t, model.ExportFailed, hist[0].Status)
	assert.Contains(t, hist[0].ErrorMessage, "deadline exceeded")
	assert.Equal(t, []model.ExportStatus{model.ExportFailed}, h.store.runsOf("se1"))
	assert.Equal(t, "export.failed", h.sender.sent()[0].Event)
	assert.Equal(t, uint64(1), h.rec.Snapshot().ExportRuns["failed"])
}

func TestMissingStorageFailsRun(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	store := newMemStore()
	runner := NewRunner(&fakeSource{}, nil, store, nil, RunnerConfig{}, discardLogger(), nil)

	h, err := runner.BeginAdHoc(context.Background(), "t1", model.AdHocExportRequest{ExportType: model.ExportTickets, Format: model.FormatJSON}, "u1")
	require.NoError(t, err)
	err = runner.Execute(context.Background(), h, nil)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.Equal(t, model.ExportFailed, store.historyList()[0].Status)
}

func TestSubmitAdHoc(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	h := newHarness(t, &fakeSource{}, SchedulerConfig{})

	hist, err := h.sched.runner.BeginAdHoc(context.Background(), "t1",
		model.AdHocExportRequest{ExportType: model.ExportInvestors, Format: model.FormatJSON}, "u1")
	require.NoError(t, err)
	assert.Nil(t, hist.ScheduledExportID)
	assert.Equal(t, model.ExportProcessing, hist.Status)

	h.sched.Submit(hist, nil)
	waitJobs(t, h.sched)

	got := h.store.historyList()
	require.Len(t, got, 1)
	assert.Equal(t, model.ExportCompleted, got[0].Status)
	assert.Equal(t, model.TriggeredByUser, got[0].TriggeredBy)
	assert.Equal(t, "u1", got[0].RequestedBy)
	assert.Empty(t, h.sender.sent())
}

func TestRunAndShutdown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	h := newHarness(t, &fakeSource{}, SchedulerConfig{PollInterval: 10 * time.Millisecond},
		dueExport("se1", time.Date(2026, 3, 9, 6, 0, 0, 0, time.UTC)))

	runErr := make(chan error, 1)
	go func() { runErr <- h.sched.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		hist := h.store.historyList()
		return len(hist) == 1 && hist[0].Status == model.ExportCompleted
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.sched.Shutdown(ctx))
	assert.NoError(t, <-runErr)
	assert.Error(t, h.sched.Run(context.Background()), "a stopped scheduler cannot be restarted")
}
