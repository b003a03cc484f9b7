package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/solarvest/platform/internal/dashboard"
	"github.com/solarvest/platform/internal/handler/dto"
	"github.com/solarvest/platform/internal/metrics"
	"github.com/solarvest/platform/internal/model"
)

// Dashboard computes reporting aggregates. *dashboard.Service satisfies it.
type Dashboard interface {
	Overview(ctx context.Context, tenantID string, q dashboard.Query) (*model.OverviewMetrics, error)
	Investments(ctx context.Context, tenantID string, q dashboard.Query) (*model.InvestmentMetrics, error)
	Applications(ctx context.Context, tenantID string, q dashboard.Query) (*model.ApplicationMetrics, error)
	Transactions(ctx context.Context, tenantID string, q dashboard.Query) (*model.TransactionMetrics, error)
	Crm(ctx context.Context, tenantID string, q dashboard.Query) (*model.CrmMetrics, error)
}

// MetricsHandler serves the dashboard under /metrics and /api/metrics, and
// the process counters under /api/admin/metrics.
type MetricsHandler struct {
	dash     Dashboard
	recorder metrics.Snapshotter // optional
	errs     errorResponder
}

func NewMetricsHandler(dash Dashboard, recorder metrics.Snapshotter, logger *slog.Logger) *MetricsHandler {
	return &MetricsHandler{dash: dash, recorder: recorder, errs: newResponder(logger, "metrics")}
}

// query reads from, to, months and refresh.
func dashboardQuery(r *http.Request) (dashboard.Query, error) {
	var q dashboard.Query
	var err error
	if q.From, err = queryTime(r, "from"); err != nil {
		return q, err
	}
	if q.To, err = queryTime(r, "to"); err != nil {
		return q, err
	}
	if raw := queryString(r, "months"); raw != "" {
		if q.Months, err = strconv.Atoi(raw); err != nil || q.Months < 1 {
			return q, badRequest("months must be a positive integer")
		}
	}
	refresh, err := queryBool(r, "refresh")
	if err != nil {
		return q, err
	}
	q.Refresh = refresh != nil && *refresh
	return q, nil
}

// serveMetric adapts one dashboard calculator to an HTTP handler.
func serveMetric[T any](h *MetricsHandler, calc func(context.Context, string, dashboard.Query) (*T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := dashboardQuery(r)
		if err != nil {
			h.errs.fail(w, r, err)
			return
		}
		tenantID, _ := caller(r)
		out, err := calc(r.Context(), tenantID, q)
		if err != nil {
			h.errs.fail(w, r, err)
			return
		}
		dto.OK(w, http.StatusOK, out)
	}
}

// Routes returns the dashboard routes keyed by metric name.
func (h *MetricsHandler) Routes() map[string]http.HandlerFunc {
	return map[string]http.HandlerFunc{
		"overview":     serveMetric(h, h.dash.Overview),
		"investments":  serveMetric(h, h.dash.Investments),
		"applications": serveMetric(h, h.dash.Applications),
		"transactions": serveMetric(h, h.dash.Transactions),
		"crm":          serveMetric(h, h.dash.Crm),
	}
}

// Snapshot returns the in-process counters.
func (h *MetricsHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	if h.recorder == nil {
		dto.Error(w, http.StatusServiceUnavailable, dto.CodeUnavailable, "Metrics are not being recorded")
		return
	}
	dto.OK(w, http.StatusOK, h.recorder.Snapshot())
}
