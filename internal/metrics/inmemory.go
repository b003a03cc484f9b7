package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	RecordsCreated           map[string]uint64 `json:"records_created"`
	RecordsUpdated           map[string]uint64 `json:"records_updated"`
	RecordsDeleted           map[string]uint64 `json:"records_deleted"`
	LoginAttempts            map[string]uint64 `json:"login_attempts"`
	DashboardCacheHits       uint64            `json:"dashboard_cache_hits"`
	DashboardCacheMisses     uint64            `json:"dashboard_cache_misses"`
	DashboardDurationCount   uint64            `json:"dashboard_duration_count"`
	DashboardDurationTotalNs int64             `json:"dashboard_duration_total_ns"`
	AutomationRuns           map[string]uint64 `json:"automation_runs"`
	Assignments              map[string]uint64 `json:"assignments"`
	ExportRuns               map[string]uint64 `json:"export_runs"`
	ExportDurationCount      uint64            `json:"export_duration_count"`
	ExportDurationTotalNs    int64             `json:"export_duration_total_ns"`
	ExportRows               int64             `json:"export_rows"`
	ExportsInFlight          int64             `json:"exports_in_flight"`
	ExportNotifications      map[string]uint64 `json:"export_notifications"`
}

// labelled is a set of counters keyed by one label value.
type labelled struct {
	mu sync.Mutex
	m  map[string]uint64
}

func (l *labelled) inc(label string) {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]uint64)
	}
	l.m[label]++
	l.mu.Unlock()
}

func (l *labelled) copy() map[string]uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]uint64, len(l.m))
	for k, v := range l.m {
		out[k] = v
	}
	return out
}

// InMemoryRecorder stores metrics in memory; served by /admin/metrics and used by tests.
type InMemoryRecorder struct {
	created, updated, deleted labelled
	logins                    labelled
	automationRuns            labelled
	assignments               labelled
	exportRuns                labelled
	notifications             labelled

	dashboardCacheHits       uint64
	dashboardCacheMisses     uint64
	dashboardDurationCount   uint64
	dashboardDurationTotalNs int64
	exportDurationCount      uint64
	exportDurationTotalNs    int64
	exportRows               int64
	exportsInFlight          int64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		RecordsCreated:           m.created.copy(),
		RecordsUpdated:           m.updated.copy(),
		RecordsDeleted:           m.deleted.copy(),
		LoginAttempts:            m.logins.copy(),
		DashboardCacheHits:       atomic.LoadUint64(&m.dashboardCacheHits),
		DashboardCacheMisses:     atomic.LoadUint64(&m.dashboardCacheMisses),
		DashboardDurationCount:   atomic.LoadUint64(&m.dashboardDurationCount),
		DashboardDurationTotalNs: atomic.LoadInt64(&m.dashboardDurationTotalNs),
		AutomationRuns:           m.automationRuns.copy(),
		Assignments:              m.assignments.copy(),
		ExportRuns:               m.exportRuns.copy(),
		ExportDurationCount:      atomic.LoadUint64(&m.exportDurationCount),
		ExportDurationTotalNs:    atomic.LoadInt64(&m.exportDurationTotalNs),
		ExportRows:               atomic.LoadInt64(&m.exportRows),
		ExportsInFlight:          atomic.LoadInt64(&m.exportsInFlight),
		ExportNotifications:      m.notifications.copy(),
	}
}

func (m *InMemoryRecorder) IncRecordCreated(resource string) { m.created.inc(resource) }
func (m *InMemoryRecorder) IncRecordUpdated(resource string) { m.updated.inc(resource) }
func (m *InMemoryRecorder) IncRecordDeleted(resource string) { m.deleted.inc(resource) }
func (m *InMemoryRecorder) IncLoginAttempt(status string) { m.logins.inc(status) }

// IncDashboardCacheHit increments cache hit counter.
func (m *InMemoryRecorder) IncDashboardCacheHit() {
	atomic.AddUint64(&m.dashboardCacheHits, 1)
}

// IncDashboardCacheMiss increments cache miss counter.
func (m *InMemoryRecorder) IncDashboardCacheMiss() {
	atomic.AddUint64(&m.dashboardCacheMisses, 1)
}

// ObserveDashboardDuration records how long a metric took to compute.
func (m *InMemoryRecorder) ObserveDashboardDuration(duration time.Duration) {
	atomic.AddUint64(&m.dashboardDurationCount, 1)
	atomic.AddInt64(&m.dashboardDurationTotalNs, duration.Nanoseconds())
}

func (m *InMemoryRecorder) IncAutomationRun(status string) { m.automationRuns.inc(status) }
func (m *InMemoryRecorder) IncAssignment(strategy string) { m.assignments.inc(strategy) }
func (m *InMemoryRecorder) IncExportRun(status string) { m.exportRuns.inc(status) }

// ObserveExportDuration records generation time of one export.
func (m *InMemoryRecorder) ObserveExportDuration(duration time.Duration) {
	atomic.AddUint64(&m.exportDurationCount, 1)
	atomic.AddInt64(&m.exportDurationTotalNs, duration.Nanoseconds())
}

func (m *InMemoryRecorder) ObserveExportRows(rows int64) {
	atomic.AddInt64(&m.exportRows, rows)
}

// SetExportsInFlight sets the number of running export jobs.
func (m *InMemoryRecorder) SetExportsInFlight(n int64) {
	atomic.StoreInt64(&m.exportsInFlight, n)
}

func (m *InMemoryRecorder) IncExportNotification(status string) { m.notifications.inc(status) }
