// Package dashboard computes reporting aggregates and caches them per tenant.
package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/solarvest/platform/internal/cache"
	"github.com/solarvest/platform/internal/metrics"
	"github.com/solarvest/platform/internal/model"
)

// ErrInvalidPeriod is returned when from is not before to.
var ErrInvalidPeriod = errors.New("from must be before to")

// Store is the aggregate queries the calculators run.
type Store interface {
	CountByStatus(ctx context.Context, tenantID, table string, period *model.Period) ([]model.StatusCount, error)
	InvestedTotals(ctx context.Context, tenantID string) (float64, int64, error)
	MonthlyInvested(ctx context.Context, tenantID string, since time.Time) ([]model.MonthlyAmount, error)
	TransactionTotals(ctx context.Context, tenantID, groupBy string, period model.Period, status model.TransactionStatus) ([]model.AmountBreakdown, error)
	PendingKYCCount(ctx context.Context, tenantID string) (int64, error)
	TicketLoad(ctx context.Context, tenantID string, now time.Time) (int64, int64, error)
	MessageVolume(ctx context.Context, tenantID string, period model.Period) (int64, int64, error)
	AvgResponseSeconds(ctx context.Context, tenantID string, period model.Period) (float64, error)
	AutomationTotals(ctx context.Context, tenantID string) (int64, int64, error)
	ListAgents(ctx context.Context, tenantID string) ([]*model.User, error)
	ListAgentMetrics(ctx context.Context, tenantID string, agentIDs []string) ([]*model.CrmAssignmentMetrics, error)
}

// Cache stores computed metrics. *cache.Cache satisfies it.
type Cache interface {
	GetDashboard(ctx context.Context, tenantID, metric string, params map[string]string, dst any) error
	SetDashboard(ctx context.Context, tenantID, metric string, params map[string]string, value any, ttl time.Duration) error
	InvalidateDashboard(ctx context.Context, tenantID string) error
}

// Service serves dashboard metrics.
type Service struct {
	store   Store
	cache   Cache
	ttl     time.Duration
	logger  *slog.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

// New creates a dashboard service. cache may be nil to disable caching.
func New(store Store, c Cache, ttl time.Duration, logger *slog.Logger, recorder metrics.Recorder) *Service {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Service{
		store:   store,
		cache:   c,
		ttl:     ttl,
		logger:  logger.With("component", "dashboard"),
		metrics: recorder,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// InvalidateDashboard drops every cached metric of a tenant.
func (s *Service) InvalidateDashboard(ctx context.Context, tenantID string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.InvalidateDashboard(ctx, tenantID)
}

// Query holds the request parameters shared by the metrics.
type Query struct {
	From    *time.Time
	To      *time.Time
	Months  int
	Refresh bool
}

func (q Query) period(now time.Time) (model.Period, error) {
	p := model.NewPeriod(q.From, q.To, now)
	if !p.Valid() {
		return p, ErrInvalidPeriod
	}
	return p, nil
}

// cacheParams keys a period metric by what the caller asked for. Omitted
// bounds stay "default" so the rolling window shares one entry per TTL.
func (q Query) cacheParams() map[string]string {
	bound := func(t *time.Time) string {
		if t == nil {
			return "default"
		}
		return t.UTC().Format(time.RFC3339)
	}
	return map[string]string{"from": bound(q.From), "to": bound(q.To)}
}

// cached returns the stored value for metric unless refresh is set, and
// otherwise computes and stores it. Cache failures only cost a recompute.
func cached[T any](ctx context.Context, s *Service, tenantID, metric string, params map[string]string, refresh bool, compute func(context.Context) (*T, error)) (*T, error) {
	log := s.logger.With("tenant_id", tenantID, "metric", metric)

	if s.cache != nil && !refresh {
		var hit T
		err := s.cache.GetDashboard(ctx, tenantID, metric, params, &hit)
		switch {
		case err == nil:
			s.metrics.IncDashboardCacheHit()
			return &hit, nil
		case !errors.Is(err, cache.ErrCacheMiss):
			log.Warn("dashboard_cache_read_failed", "error", err)
		}
		s.metrics.IncDashboardCacheMiss()
	}

	start := time.Now()
	v, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveDashboardDuration(time.Since(start))

	if s.cache != nil {
		if err := s.cache.SetDashboard(ctx, tenantID, metric, params, v, s.ttl); err != nil {
			log.Warn("dashboard_cache_write_failed", "error", err)
		}
	}
	return v, nil
}

func monthsParams(months int) map[string]string {
	return map[string]string{"months": strconv.Itoa(months)}
}
