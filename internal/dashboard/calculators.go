package dashboard

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/solarvest/platform/internal/model"
)

// Overview is the landing dashboard. Its parts are computed concurrently.
func (s *Service) Overview(ctx context.Context, tenantID string, q Query) (*model.OverviewMetrics, error) {
	now := s.now()
	p, err := q.period(now)
	if err != nil {
		return nil, err
	}
	return cached(ctx, s, tenantID, "overview", q.cacheParams(), q.Refresh, func(ctx context.Context) (*model.OverviewMetrics, error) {
		out := &model.OverviewMetrics{Period: p, GeneratedAt: now}
		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			counts, err := s.store.CountByStatus(gctx, tenantID, "investors", nil)
			out.Investors = model.CountsToMap(counts)
			return err
		})
		g.Go(func() error {
			var err error
			out.TotalInvested, out.ActiveInvestments, err = s.store.InvestedTotals(gctx, tenantID)
			return err
		})
		g.Go(func() error {
			counts, err := s.store.CountByStatus(gctx, tenantID, "solar_applications", nil)
			out.Applications = model.CountsToMap(counts)
			return err
		})
		g.Go(func() error {
			var err error
			out.PendingKYC, err = s.store.PendingKYCCount(gctx, tenantID)
			return err
		})
		g.Go(func() error {
			var err error
			out.OpenTickets, out.OverdueTickets, err = s.store.TicketLoad(gctx, tenantID, now)
			return err
		})
		g.Go(func() error {
			var err error
			out.TransactionVolume, err = s.store.TransactionTotals(gctx, tenantID, "type", p, model.TxCompleted)
			return err
		})

		if err := g.Wait(); err != nil {
			return nil, err
		}
		if out.TransactionVolume == nil {
			out.TransactionVolume = []model.AmountBreakdown{}
		}
		return out, nil
	})
}

// Investments is the monthly invested series, oldest month first.
func (s *Service) Investments(ctx context.Context, tenantID string, q Query) (*model.InvestmentMetrics, error) {
	now := s.now()
	months := model.ClampMonths(q.Months)
	return cached(ctx, s, tenantID, "investments", monthsParams(months), q.Refresh, func(ctx context.Context) (*model.InvestmentMetrics, error) {
		since := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(months - 1), 0)
		series, err := s.store.MonthlyInvested(ctx, tenantID, since)
		if err != nil {
			return nil, err
		}
		out := &model.InvestmentMetrics{Months: months, Series: series, GeneratedAt: now}
		if out.Series == nil {
			out.Series = []model.MonthlyAmount{}
		}
		for _, m := range series {
			out.Total += m.Amount
		}
		return out, nil
	})
}

// Applications is the status funnel of applications created in the period.
func (s *Service) Applications(ctx context.Context, tenantID string, q Query) (*model.ApplicationMetrics, error) {
	now := s.now()
	p, err := q.period(now)
	if err != nil {
		return nil, err
	}
	return cached(ctx, s, tenantID, "applications", q.cacheParams(), q.Refresh, func(ctx context.Context) (*model.ApplicationMetrics, error) {
		counts, err := s.store.CountByStatus(ctx, tenantID, "solar_applications", &p)
		if err != nil {
			return nil, err
		}
		funnel := make(map[string]int64, len(model.ApplicationStatuses))
		for _, st := range model.ApplicationStatuses {
			funnel[string(st)] = 0
		}
		var total int64
		for _, c := range counts {
			funnel[c.Status] = c.Count
			total += c.Count
		}
		return &model.ApplicationMetrics{
			Period:       p,
			Funnel:       funnel,
			Total:        total,
			ApprovalRate: model.ApprovalRate(funnel),
			GeneratedAt:  now,
		}, nil
	})
}

// Transactions totals transactions in the period by type (completed only)
// and by status (all).
func (s *Service) Transactions(ctx context.Context, tenantID string, q Query) (*model.TransactionMetrics, error) {
	now := s.now()
	p, err := q.period(now)
	if err != nil {
		return nil, err
	}
	return cached(ctx, s, tenantID, "transactions", q.cacheParams(), q.Refresh, func(ctx context.Context) (*model.TransactionMetrics, error) {
		out := &model.TransactionMetrics{Period: p, GeneratedAt: now}
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			out.ByType, err = s.store.TransactionTotals(gctx, tenantID, "type", p, model.TxCompleted)
			return err
		})
		g.Go(func() error {
			var err error
			out.ByStatus, err = s.store.TransactionTotals(gctx, tenantID, "status", p, "")
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		if out.ByType == nil {
			out.ByType = []model.AmountBreakdown{}
		}
		if out.ByStatus == nil {
			out.ByStatus = []model.AmountBreakdown{}
		}
		out.NetFlow = model.NetFlow(out.ByType)
		return out, nil
	})
}

// Crm summarises contacts, message traffic, automations and agent load.
func (s *Service) Crm(ctx context.Context, tenantID string, q Query) (*model.CrmMetrics, error) {
	now := s.now()
	p, err := q.period(now)
	if err != nil {
		return nil, err
	}
	return cached(ctx, s, tenantID, "crm", q.cacheParams(), q.Refresh, func(ctx context.Context) (*model.CrmMetrics, error) {
		out := &model.CrmMetrics{Period: p, GeneratedAt: now}
		var runs, successes int64
		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			counts, err := s.store.CountByStatus(gctx, tenantID, "crm_contacts", nil)
			out.Contacts = model.CountsToMap(counts)
			return err
		})
		g.Go(func() error {
			var err error
			out.InboundMessages, out.OutboundMessages, err = s.store.MessageVolume(gctx, tenantID, p)
			return err
		})
		g.Go(func() error {
			var err error
			out.AvgResponseSeconds, err = s.store.AvgResponseSeconds(gctx, tenantID, p)
			return err
		})
		g.Go(func() error {
			var err error
			runs, successes, err = s.store.AutomationTotals(gctx, tenantID)
			return err
		})
		g.Go(func() error {
			var err error
			out.Agents, out.AvgUtilization, err = s.agentLoad(gctx, tenantID)
			return err
		})

		if err := g.Wait(); err != nil {
			return nil, err
		}
		out.AutomationRuns = runs
		if runs > 0 {
			out.AutomationSuccessRate = float64(successes) / float64(runs) * 100
		}
		return out, nil
	})
}

func (s *Service) agentLoad(ctx context.Context, tenantID string) ([]model.AssignmentMetricsResponse, float64, error) {
	agents, err := s.store.ListAgents(ctx, tenantID)
	if err != nil || len(agents) == 0 {
		return []model.AssignmentMetricsResponse{}, 0, err
	}
	ids := make([]string, 0, len(agents))
	for _, a := range agents {
		ids = append(ids, a.ID)
	}
	stats, err := s.store.ListAgentMetrics(ctx, tenantID, ids)
	if err != nil {
		return nil, 0, err
	}

	out := make([]model.AssignmentMetricsResponse, 0, len(stats))
	var sum float64
	for _, m := range stats {
		r := m.ToResponse()
		sum += r.Utilization
		out = append(out, r)
	}
	if len(out) == 0 {
		return out, 0, nil
	}
	return out, sum / float64(len(out)), nil
}
