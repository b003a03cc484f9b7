// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Record lifecycle, labelled by resource ("investor", "ticket", ...)
	IncRecordCreated(resource string)
	IncRecordUpdated(resource string)
	IncRecordDeleted(resource string)

	// Auth
	IncLoginAttempt(status string) // status: "success", "failed", "locked"

	// Dashboard
	IncDashboardCacheHit()
	IncDashboardCacheMiss()
	ObserveDashboardDuration(duration time.Duration)

	// CRM
	IncAutomationRun(status string) // status: "success", "failed", "skipped"
	IncAssignment(strategy string)

	// Export pipeline
	IncExportRun(status string) // status: "completed", "failed"
	ObserveExportDuration(duration time.Duration)
	ObserveExportRows(rows int64)
	SetExportsInFlight(n int64)
	IncExportNotification(status string) // status: "sent", "failed"
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
