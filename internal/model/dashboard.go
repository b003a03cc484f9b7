package model

import "time"

// Period is a half-open [From, To) reporting window.
type Period struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// DefaultPeriodDays is the reporting window when none is given.
const DefaultPeriodDays = 30

// NewPeriod fills missing bounds: To defaults to now, From to 30 days before To.
func NewPeriod(from, to *time.Time, now time.Time) Period {
	p := Period{To: now.UTC()}
	if to != nil {
		p.To = to.UTC()
	}
	p.From = p.To.AddDate(0, 0, -DefaultPeriodDays)
	if from != nil {
		p.From = from.UTC()
	}
	return p
}

// Valid reports whether From precedes To.
func (p Period) Valid() bool {
	return p.From.Before(p.To)
}

// StatusCount is a row count for one status value.
type StatusCount struct {
	Status string `json:"status" db:"status"`
	Count  int64  `json:"count" db:"count"`
}

// AmountBreakdown sums amounts per group key.
type AmountBreakdown struct {
	Key    string  `json:"key" db:"key"`
	Count  int64   `json:"count" db:"count"`
	Amount float64 `json:"amount" db:"amount"`
}

// MonthlyAmount is one point of a month series (month formatted YYYY-MM).
type MonthlyAmount struct {
	Month  string  `json:"month" db:"month"`
	Count  int64   `json:"count" db:"count"`
	Amount float64 `json:"amount" db:"amount"`
}

// Investment series bounds.
const (
	DefaultSeriesMonths = 12
	MaxSeriesMonths     = 36
)

// ClampMonths bounds a requested series length.
func ClampMonths(m int) int {
	if m < 1 {
		return DefaultSeriesMonths
	}
	if m > MaxSeriesMonths {
		return MaxSeriesMonths
	}
	return m
}

// CountsToMap flattens status counts.
func CountsToMap(counts []StatusCount) map[string]int64 {
	out := make(map[string]int64, len(counts))
	for _, c := range counts {
		out[c.Status] = c.Count
	}
	return out
}

// OverviewMetrics is the landing dashboard.
type OverviewMetrics struct {
	Investors         map[string]int64  `json:"investors"`
	TotalInvested     float64           `json:"total_invested"`
	ActiveInvestments int64             `json:"active_investments"`
	Applications      map[string]int64  `json:"applications"`
	PendingKYC        int64             `json:"pending_kyc"`
	OpenTickets       int64             `json:"open_tickets"`
	OverdueTickets    int64             `json:"overdue_tickets"`
	TransactionVolume []AmountBreakdown `json:"transaction_volume"`
	Period            Period            `json:"period"`
	GeneratedAt       time.Time         `json:"generated_at"`
}

// InvestmentMetrics is a monthly invested-amount series.
type InvestmentMetrics struct {
	Months      int             `json:"months"`
	Series      []MonthlyAmount `json:"series"`
	Total       float64         `json:"total"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// ApplicationMetrics is the application funnel over a period.
type ApplicationMetrics struct {
	Period       Period           `json:"period"`
	Funnel       map[string]int64 `json:"funnel"`
	Total        int64            `json:"total"`
	ApprovalRate float64          `json:"approval_rate"`
	GeneratedAt  time.Time        `json:"generated_at"`
}

// ApprovalRate is approved+installed over all decided applications, in percent.
func ApprovalRate(funnel map[string]int64) float64 {
	approved := funnel[string(ApplicationApproved)] + funnel[string(ApplicationInstalled)]
	decided := approved + funnel[string(ApplicationRejected)]
	if decided == 0 {
		return 0
	}
	return float64(approved) / float64(decided) * 100
}

// TransactionMetrics totals transactions by type and status.
type TransactionMetrics struct {
	Period      Period            `json:"period"`
	ByType      []AmountBreakdown `json:"by_type"`
	ByStatus    []AmountBreakdown `json:"by_status"`
	NetFlow     float64           `json:"net_flow"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// NetFlow signs per-type totals; withdrawals and fees count negative.
func NetFlow(byType []AmountBreakdown) float64 {
	var net float64
	for _, b := range byType {
		t := Transaction{Type: TransactionType(b.Key), Amount: b.Amount}
		net += t.SignedAmount()
	}
	return net
}

// CrmMetrics summarises CRM activity.
type CrmMetrics struct {
	Period                Period                      `json:"period"`
	Contacts              map[string]int64            `json:"contacts"`
	InboundMessages       int64                       `json:"inbound_messages"`
	OutboundMessages      int64                       `json:"outbound_messages"`
	AvgResponseSeconds    float64                     `json:"avg_response_seconds"`
	AutomationRuns        int64                       `json:"automation_runs"`
	AutomationSuccessRate float64                     `json:"automation_success_rate"`
	Agents                []AssignmentMetricsResponse `json:"agents"`
	AvgUtilization        float64                     `json:"avg_utilization"`
	GeneratedAt           time.Time                   `json:"generated_at"`
}
