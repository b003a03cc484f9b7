package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncRecordCreated(resource string) {}
func (n *NoopRecorder) IncRecordUpdated(resource string) {}
func (n *NoopRecorder) IncRecordDeleted(resource string) {}
func (n *NoopRecorder) IncLoginAttempt(status string) {}
func (n *NoopRecorder) IncDashboardCacheHit() {}
func (n *NoopRecorder) IncDashboardCacheMiss() {}
func (n *NoopRecorder) ObserveDashboardDuration(duration time.Duration) {}
func (n *NoopRecorder) IncAutomationRun(status string) {}
func (n *NoopRecorder) IncAssignment(strategy string) {}
func (n *NoopRecorder) IncExportRun(status string) {}
func (n *NoopRecorder) ObserveExportDuration(duration time.Duration) {}
func (n *NoopRecorder) ObserveExportRows(rows int64) {}
func (n *NoopRecorder) SetExportsInFlight(count int64) {}
func (n *NoopRecorder) IncExportNotification(status string) {}
