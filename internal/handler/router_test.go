package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solarvest/platform/internal/auth"
	"github.com/solarvest/platform/internal/dashboard"
	"github.com/solarvest/platform/internal/handler/dto"
	"github.com/solarvest/platform/internal/metrics"
	"github.com/solarvest/platform/internal/middleware"
	"github.com/solarvest/platform/internal/model"
)

type fakeDashboard struct {
	calls []string
}

func (d *fakeDashboard) Overview(_ context.Context, tenantID string, _ dashboard.Query) (*model.OverviewMetrics, error) {
	d.calls = append(d.calls, "overview:"+tenantID)
	return &model.OverviewMetrics{}, nil
}

func (d *fakeDashboard) Investments(_ context.Context, _ string, q dashboard.Query) (*model.InvestmentMetrics, error) {
	d.calls = append(d.calls, "investments")
	return &model.InvestmentMetrics{}, nil
}

func (d *fakeDashboard) Applications(context.Context, string, dashboard.Query) (*model.ApplicationMetrics, error) {
	return &model.ApplicationMetrics{}, nil
}

func (d *fakeDashboard) Transactions(_ context.Context, _ string, q dashboard.Query) (*model.TransactionMetrics, error) {
	if q.From != nil && q.To != nil && !q.From.Before(*q.To) {
		return nil, dashboard.ErrInvalidPeriod
	}
	return &model.TransactionMetrics{}, nil
}

func (d *fakeDashboard) Crm(context.Context, string, dashboard.Query) (*model.CrmMetrics, error) {
	return &model.CrmMetrics{}, nil
}

type routerFixture struct {
	handler   http.Handler
	tokens    *auth.TokenIssuer
	dash      *fakeDashboard
	investors *fakeInvestors
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	logger := quietLogger()
	tokens := auth.NewTokenIssuer("router-test-secret-0123456789abcdef", time.Hour)
	dash := &fakeDashboard{}
	investors := newFakeInvestors(sampleInvestor())
	recorder := metrics.NewInMemory()
	recorder.IncRecordCreated("investor")

	h := NewRouter(RouterConfig{
		Logger:        logger,
		IsDevelopment: true,
		MaxBodyBytes:  1 << 20,
		CORS:          middleware.DefaultCORSConfig(),
		Auth:          middleware.AuthConfig{Logger: logger, Tokens: tokens},
		RateLimit:     middleware.RateLimitConfig{Logger: logger},

		Health:       NewHealthHandler(logger),
		Accounts:     NewAccountHandler(nil, nil, nil, logger),
		Investors:    NewInvestorHandler(investors, nil, logger),
		Applications: NewApplicationHandler(nil, logger),
		Transactions: NewTransactionHandler(&fakeTransactions{}, logger),
		KYC:          NewKYCHandler(&fakeKYC{}, logger),
		Tickets:      NewTicketHandler(nil, logger),
		CRM:          NewCRMHandler(CRMDeps{}, logger),
		Exports:      NewExportHandler(&fakeExports{}, nil, time.Hour, logger),
		Metrics:      NewMetricsHandler(dash, recorder, logger),
	})
	return &routerFixture{handler: h, tokens: tokens, dash: dash, investors: investors}
}

func (f *routerFixture) token(t *testing.T, role model.Role) string {
	t.Helper()
	tok, _, err := f.tokens.Issue(&model.User{ID: "user-1", TenantID: "tenant-1", Role: role})
	require.NoError(t, err)
	return tok
}

func (f *routerFixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestRouterPublicRoutes(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	rec = f.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/unknown", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, dto.CodeNotFound, decodeEnvelope(t, rec).Error.Code)
}

func TestRouterRequiresAuthentication(t *testing.T) {
	f := newRouterFixture(t)
	for _, path := range []string{"/api/investors", "/metrics/overview", "/api/metrics/overview", "/api/exports/history", "/api/auth/me"} {
		rec := f.do(t, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	rec := f.do(t, http.MethodGet, "/api/investors", "not-a-jwt", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouterRoleGuards(t *testing.T) {
	f := newRouterFixture(t)
	tests := []struct {
		name       string
		role       model.Role
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"viewer lists investors", model.RoleViewer, http.MethodGet, "/api/investors", "", http.StatusOK},
		{"viewer cannot create", model.RoleViewer, http.MethodPost, "/api/investors", `{"first_name":"A","email":"a@example.com"}`, http.StatusForbidden},
		{"agent cannot create investors", model.RoleAgent, http.MethodPost, "/api/investors", `{"first_name":"A","email":"a@example.com"}`, http.StatusForbidden},
		{"agent cannot delete investors", model.RoleAgent, http.MethodDelete, "/api/investors/inv-1", "", http.StatusForbidden},
		{"manager creates investors", model.RoleManager, http.MethodPost, "/api/investors", `{"first_name":"A","email":"a@example.com"}`, http.StatusCreated},
		{"agent passes crm guard", model.RoleAgent, http.MethodPost, "/api/crm/contacts", "{", http.StatusBadRequest},
		{"agent passes ticket guard", model.RoleAgent, http.MethodPost, "/api/tickets", "{", http.StatusBadRequest},
		{"viewer cannot write crm", model.RoleViewer, http.MethodPost, "/api/crm/contacts", "{", http.StatusForbidden},
		{"agent cannot set capacity", model.RoleAgent, http.MethodPut, "/api/crm/assignments/agent-1/capacity", "{", http.StatusForbidden},
		{"agent cannot export", model.RoleAgent, http.MethodGet, "/api/exports/history/h-9", "", http.StatusForbidden},
		{"manager exports", model.RoleManager, http.MethodGet, "/api/exports/history/h-9", "", http.StatusNotFound},
		{"manager cannot manage users", model.RoleManager, http.MethodGet, "/api/users", "", http.StatusForbidden},
		{"admin reads counters", model.RoleAdmin, http.MethodGet, "/api/admin/metrics", "", http.StatusOK},
		{"admin implies read", model.RoleAdmin, http.MethodGet, "/api/investors/inv-1", "", http.StatusOK},
		{"wrong method", model.RoleAdmin, http.MethodPut, "/api/investors/inv-1", "{}", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, f.token(t, tt.role), tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestRouterDashboardMountedTwice(t *testing.T) {
	f := newRouterFixture(t)
	tok := f.token(t, model.RoleViewer)

	for _, path := range []string{"/metrics/overview", "/api/metrics/overview"} {
		rec := f.do(t, http.MethodGet, path, tok, "")
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.True(t, decodeEnvelope(t, rec).Success)
	}
	assert.Equal(t, []string{"overview:tenant-1", "overview:tenant-1"}, f.dash.calls)

	rec := f.do(t, http.MethodGet, "/api/metrics/transactions?from=2026-02-01&to=2026-01-01", tok, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, dto.CodeValidation, decodeEnvelope(t, rec).Error.Code)
}

func TestRouterRejectsOversizeBody(t *testing.T) {
	f := newRouterFixture(t)
	body := `{"first_name":"` + strings.Repeat("x", 2<<20) + `"}`
	rec := f.do(t, http.MethodPost, "/api/investors", f.token(t, model.RoleAdmin), body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
