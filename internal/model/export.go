package model

import (
	"fmt"
	"regexp"
	"time"
)

// ExportType names the dataset an export contains.
type ExportType string

const (
	ExportInvestors    ExportType = "investors"
	ExportInvestments  ExportType = "investments"
	ExportTransactions ExportType = "transactions"
	ExportApplications ExportType = "applications"
	ExportCrmContacts  ExportType = "crm_contacts"
	ExportTickets      ExportType = "tickets"
)

var ExportTypes = []ExportType{
	ExportInvestors, ExportInvestments, ExportTransactions, ExportApplications, ExportCrmContacts, ExportTickets,
}

type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

var ExportFormats = []ExportFormat{FormatCSV, FormatJSON}

// ContentType returns the MIME type for the format.
func (f ExportFormat) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/csv"
}

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyCron    Frequency = "cron"
)

var Frequencies = []Frequency{FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyCron}

type ExportStatus string

const (
	ExportPending    ExportStatus = "pending"
	ExportProcessing ExportStatus = "processing"
	ExportCompleted  ExportStatus = "completed"
	ExportFailed     ExportStatus = "failed"
)

var ExportStatuses = []ExportStatus{ExportPending, ExportProcessing, ExportCompleted, ExportFailed}

const (
	TriggeredByScheduler = "scheduler"
	TriggeredByUser      = "user"
)

// ExportFilters restrict the rows an export selects.
type ExportFilters struct {
	Status      string     `json:"status,omitempty"`
	CreatedFrom *time.Time `json:"created_from,omitempty"`
	CreatedTo   *time.Time `json:"created_to,omitempty"`
}

var timeOfDayRe = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// ScheduledExport is a recurring export definition.
type ScheduledExport struct {
	ID             string        `json:"id"`
	TenantID       string        `json:"tenant_id"`
	Name           string        `json:"name"`
	ExportType     ExportType    `json:"export_type"`
	Format         ExportFormat  `json:"format"`
	Filters        ExportFilters `json:"filters"`
	Frequency      Frequency     `json:"frequency"`
	CronExpression string        `json:"cron_expression,omitempty"`
	TimeOfDay      string        `json:"time_of_day"`
	DayOfWeek      int           `json:"day_of_week"`
	DayOfMonth     int           `json:"day_of_month"`
	Timezone       string        `json:"timezone"`
	Recipients     []string      `json:"recipients"`
	NotifyURL      string        `json:"notify_url,omitempty"`
	IsActive       bool          `json:"is_active"`
	NextRunAt      *time.Time    `json:"next_run_at,omitempty"`
	LastRunAt      *time.Time    `json:"last_run_at,omitempty"`
	LastStatus     ExportStatus  `json:"last_status,omitempty"`
	RunCount       int64         `json:"run_count"`
	FailureCount   int64         `json:"failure_count"`
	CreatedBy      string        `json:"created_by,omitempty"`
	Deleted        bool          `json:"-"`
	DeletedAt      *time.Time    `json:"-"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// IsDue reports whether the scheduler should run the export at now.
func (e *ScheduledExport) IsDue(now time.Time) bool {
	return e.IsActive && !e.Deleted && e.NextRunAt != nil && !now.Before(*e.NextRunAt)
}

// Location resolves the export's timezone, falling back to UTC.
func (e *ScheduledExport) Location() *time.Location {
	if e.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (e *ScheduledExport) ApplyDefaults() {
	if e.Format == "" {
		e.Format = FormatCSV
	}
	if e.Frequency == "" {
		e.Frequency = FrequencyDaily
	}
	if e.TimeOfDay == "" {
		e.TimeOfDay = "06:00"
	}
	if e.Timezone == "" {
		e.Timezone = "UTC"
	}
	if e.Frequency == FrequencyMonthly && e.DayOfMonth == 0 {
		e.DayOfMonth = 1
	}
	if e.Recipients == nil {
		e.Recipients = []string{}
	}
	for i, r := range e.Recipients {
		e.Recipients[i] = NormalizeEmail(r)
	}
}

// Validate checks field rules. Cron syntax is checked by the scheduler's parser.
func (e *ScheduledExport) Validate() error {
	var v ValidationErrors
	v.Required("name", e.Name)
	v.MaxLen("name", e.Name, 100)
	OneOf(&v, "export_type", e.ExportType, ExportTypes)
	OneOf(&v, "format", e.Format, ExportFormats)
	OneOf(&v, "frequency", e.Frequency, Frequencies)
	switch e.Frequency {
	case FrequencyCron:
		v.Required("cron_expression", e.CronExpression)
	case FrequencyWeekly:
		if e.DayOfWeek < 0 || e.DayOfWeek > 6 {
			v.Add("day_of_week", "must be between 0 (Sunday) and 6")
		}
	case FrequencyMonthly:
		if e.DayOfMonth < 1 || e.DayOfMonth > 28 {
			v.Add("day_of_month", "must be between 1 and 28")
		}
	}
	if e.Frequency != FrequencyCron && !timeOfDayRe.MatchString(e.TimeOfDay) {
		v.Add("time_of_day", "must be HH:MM")
	}
	if _, err := time.LoadLocation(e.Timezone); err != nil {
		v.Add("timezone", "must be an IANA timezone name")
	}
	for i, r := range e.Recipients {
		v.Email(fmt.Sprintf("recipients[%d]", i), r)
	}
	if len(e.Recipients) > 20 {
		v.Add("recipients", "must have at most 20 entries")
	}
	v.MaxLen("notify_url", e.NotifyURL, 2048)
	if e.Filters.CreatedFrom != nil && e.Filters.CreatedTo != nil && e.Filters.CreatedTo.Before(*e.Filters.CreatedFrom) {
		v.Add("filters.created_to", "must not be before created_from")
	}
	return v.Err()
}

type ScheduledExportFilter struct {
	ExportType ExportType
	Active     *bool
}

// ExportHistory records one export run.
type ExportHistory struct {
	ID                string        `json:"id"`
	ExportID          string        `json:"export_id"`
	TenantID          string        `json:"tenant_id"`
	ScheduledExportID *string       `json:"scheduled_export_id,omitempty"`
	ExportType        ExportType    `json:"export_type"`
	Format            ExportFormat  `json:"format"`
	Filters           ExportFilters `json:"filters"`
	Status            ExportStatus  `json:"status"`
	FileKey           string        `json:"file_key,omitempty"`
	FileURL           string        `json:"file_url,omitempty"`
	FileSize          int64         `json:"file_size"`
	RowCount          int64         `json:"row_count"`
	ErrorMessage      string        `json:"error_message,omitempty"`
	TriggeredBy       string        `json:"triggered_by"`
	RequestedBy       string        `json:"requested_by,omitempty"`
	StartedAt         time.Time     `json:"started_at"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}

// Duration is zero until the run finishes.
func (h *ExportHistory) Duration() time.Duration {
	if h.CompletedAt == nil {
		return 0
	}
	return h.CompletedAt.Sub(h.StartedAt)
}

type ExportHistoryResponse struct {
	*ExportHistory
	DurationMS int64 `json:"duration_ms"`
}

func (h *ExportHistory) ToResponse() ExportHistoryResponse {
	return ExportHistoryResponse{ExportHistory: h, DurationMS: h.Duration().Milliseconds()}
}

type ExportHistoryFilter struct {
	Status            ExportStatus
	ScheduledExportID string
}

// NewExportID builds the run identifier for a scheduled or ad-hoc export.
func NewExportID(sourceID string, at time.Time) string {
	return fmt.Sprintf("exp_%s_%d", sourceID, at.UnixMilli())
}

// AdHocExportRequest asks for an immediate one-off export.
type AdHocExportRequest struct {
	ExportType ExportType    `json:"export_type"`
	Format     ExportFormat  `json:"format"`
	Filters    ExportFilters `json:"filters"`
}

func (r *AdHocExportRequest) Validate() error {
	var v ValidationErrors
	OneOf(&v, "export_type", r.ExportType, ExportTypes)
	OneOf(&v, "format", r.Format, ExportFormats)
	return v.Err()
}
