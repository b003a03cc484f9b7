package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solarvest/platform/internal/dashboard"
	"github.com/solarvest/platform/internal/model"
	"github.com/solarvest/platform/internal/service"
)

type fakeInvestors struct {
	items      map[string]*model.Investor
	lastFilter model.InvestorFilter
	lastPage   model.Page
	lastTenant string
}

func newFakeInvestors(items ...*model.Investor) *fakeInvestors {
	f := &fakeInvestors{items: map[string]*model.Investor{}}
	for _, i := range items {
		f.items[i.ID] = i
	}
	return f
}

func (f *fakeInvestors) Create(_ context.Context, tenantID string, in service.InvestorInput) (*model.Investor, error) {
	inv := &model.Investor{ID: "inv-new", TenantID: tenantID, FirstName: in.FirstName, LastName: in.LastName, Email: in.Email, Type: in.Type, Status: in.Status}
	inv.ApplyDefaults()
	if err := inv.Validate(); err != nil {
		return nil, err
	}
	f.items[inv.ID] = inv
	return inv, nil
}

func (f *fakeInvestors) Get(_ context.Context, tenantID, id string) (*model.Investor, error) {
	f.lastTenant = tenantID
	inv, ok := f.items[id]
	if !ok || inv.TenantID != tenantID {
		return nil, service.ErrInvestorNotFound
	}
	return inv, nil
}

func (f *fakeInvestors) List(_ context.Context, tenantID string, flt model.InvestorFilter, p model.Page) (*service.ListResult[*model.Investor], error) {
	f.lastTenant, f.lastFilter, f.lastPage = tenantID, flt, p
	var out []*model.Investor
	for _, inv := range f.items {
		out = append(out, inv)
	}
	return &service.ListResult[*model.Investor]{Items: out, Total: 45, Page: p}, nil
}

func (f *fakeInvestors) Update(context.Context, string, string, service.InvestorPatch) (*model.Investor, error) {
	return nil, service.ErrConflict
}

func (f *fakeInvestors) Delete(ctx context.Context, tenantID, id string) error {
	if _, err := f.Get(ctx, tenantID, id); err != nil {
		return err
	}
	delete(f.items, id)
	return nil
}

func (f *fakeInvestors) Portfolio(ctx context.Context, tenantID, id string) (*model.Portfolio, error) {
	inv, err := f.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return &model.Portfolio{Investor: inv.ToResponse(), TotalInvested: 25000}, nil
}

func sampleInvestor() *model.Investor {
	return &model.Investor{
		ID:        "inv-1",
		TenantID:  "tenant-1",
		FirstName: "Ada",
		LastName:  "Okafor",
		Email:     "ada@example.com",
		Type:      model.InvestorIndividual,
		Status:    model.InvestorActive,
		KYCStatus: model.KYCVerified,
	}
}

func TestInvestorHandlerList(t *testing.T) {
	investors := newFakeInvestors(sampleInvestor())
	h := NewInvestorHandler(investors, nil, quietLogger())

	req := authed(httptest.NewRequest(http.MethodGet, "/api/investors?status=active&kyc_status=verified&q=ada&page=2&limit=10", nil), manager)
	rec := httptest.NewRecorder()
	h.ListInvestors(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, model.Pagination{Page: 2, Limit: 10, Total: 45, Pages: 5}, *env.Pagination)

	var items []model.InvestorResponse
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "Ada Okafor", items[0].FullName)
	assert.True(t, items[0].CanInvest)

	assert.Equal(t, "tenant-1", investors.lastTenant)
	assert.Equal(t, model.InvestorFilter{Status: model.InvestorActive, KYCStatus: model.KYCVerified, Query: "ada"}, investors.lastFilter)
}

func TestInvestorHandlerCreate(t *testing.T) {
	h := NewInvestorHandler(newFakeInvestors(), nil, quietLogger())

	t.Run("created", func(t *testing.T) {
		body := `{"first_name":"Lena","last_name":"Berg","email":"LENA@example.com"}`
		rec := httptest.NewRecorder()
		h.CreateInvestor(rec, authed(httptest.NewRequest(http.MethodPost, "/api/investors", strings.NewReader(body)), manager))

		require.Equal(t, http.StatusCreated, rec.Code)
		var got model.InvestorResponse
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &got))
		assert.Equal(t, "lena@example.com", got.Email)
		assert.Equal(t, model.InvestorProspect, got.Status)
	})

	t.Run("validation details", func(t *testing.T) {
		body := `{"last_name":"Berg","email":"not-an-email"}`
		rec := httptest.NewRecorder()
		h.CreateInvestor(rec, authed(httptest.NewRequest(http.MethodPost, "/api/investors", strings.NewReader(body)), manager))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		env := decodeEnvelope(t, rec)
		fields := map[string]bool{}
		for _, d := range env.Error.Details {
			fields[d.Field] = true
		}
		assert.True(t, fields["first_name"])
		assert.True(t, fields["email"])
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.CreateInvestor(rec, authed(httptest.NewRequest(http.MethodPost, "/api/investors", strings.NewReader("{")), manager))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestInvestorHandlerTenantScoping(t *testing.T) {
	h := NewInvestorHandler(newFakeInvestors(sampleInvestor()), nil, quietLogger())
	other := &model.AuthContext{TenantID: "tenant-2", UserID: "user-9", Scopes: []string{model.ScopeRead}}

	rec := httptest.NewRecorder()
	h.GetInvestor(rec, authed(httptest.NewRequest(http.MethodGet, "/api/investors/inv-1", nil), other, "id", "inv-1"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "INVESTOR_NOT_FOUND", decodeEnvelope(t, rec).Error.Code)
}

func TestInvestorHandlerPortfolioAndDelete(t *testing.T) {
	h := NewInvestorHandler(newFakeInvestors(sampleInvestor()), nil, quietLogger())

	rec := httptest.NewRecorder()
	h.Portfolio(rec, authed(httptest.NewRequest(http.MethodGet, "/api/investors/inv-1/portfolio", nil), manager, "id", "inv-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	var p model.Portfolio
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &p))
	assert.InDelta(t, 25000, p.TotalInvested, 0.001)

	rec = httptest.NewRecorder()
	h.DeleteInvestor(rec, authed(httptest.NewRequest(http.MethodDelete, "/api/investors/inv-1", nil), manager, "id", "inv-1"))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.DeleteInvestor(rec, authed(httptest.NewRequest(http.MethodDelete, "/api/investors/inv-1", nil), manager, "id", "inv-1"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type fakeTransactions struct {
	TransactionManager
	listed bool
}

func (f *fakeTransactions) List(context.Context, string, model.TransactionFilter, model.Page) (*service.ListResult[*model.Transaction], error) {
	f.listed = true
	return &service.ListResult[*model.Transaction]{Page: model.NewPage(1, 20)}, nil
}

func TestTransactionListRejectsBadDates(t *testing.T) {
	txns := &fakeTransactions{}
	h := NewTransactionHandler(txns, quietLogger())

	rec := httptest.NewRecorder()
	h.List(rec, authed(httptest.NewRequest(http.MethodGet, "/api/transactions?from=last-week", nil), manager))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, txns.listed)

	rec = httptest.NewRecorder()
	h.List(rec, authed(httptest.NewRequest(http.MethodGet, "/api/transactions?from=2026-01-01", nil), manager))
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.JSONEq(t, `[]`, string(env.Data))
	assert.Equal(t, 0, env.Pagination.Pages)
}

type fakeKYC struct {
	KYCManager
	reviewer string
	review   model.KYCReview
}

func (f *fakeKYC) Review(_ context.Context, tenantID, id, reviewerID string, review model.KYCReview) (*model.KYCDocument, error) {
	f.reviewer, f.review = reviewerID, review
	if id != "doc-1" {
		return nil, service.ErrDocumentNotFound
	}
	status := model.DocRejected
	if review.Approve {
		status = model.DocApproved
	}
	return &model.KYCDocument{ID: id, TenantID: tenantID, Status: status}, nil
}

func TestKYCReviewRecordsReviewer(t *testing.T) {
	docs := &fakeKYC{}
	h := NewKYCHandler(docs, quietLogger())

	body := `{"approve":false,"reason":"document expired"}`
	rec := httptest.NewRecorder()
	h.Review(rec, authed(httptest.NewRequest(http.MethodPost, "/api/kyc/doc-1/review", strings.NewReader(body)), manager, "id", "doc-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", docs.reviewer)
	assert.Equal(t, "document expired", docs.review.Reason)
}

type fakeExports struct {
	ExportManager
	history *model.ExportHistory
}

func (f *fakeExports) HistoryEntry(_ context.Context, _, id string) (*model.ExportHistory, error) {
	if f.history == nil || f.history.ID != id {
		return nil, service.ErrExportHistoryNotFound
	}
	return f.history, nil
}

type fakePresigner struct{ key string }

func (p *fakePresigner) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	p.key = key
	return "https://files.example.com/" + key + "?sig=abc", nil
}

func TestExportDownload(t *testing.T) {
	completed := &model.ExportHistory{ID: "h-1", Status: model.ExportCompleted, FileKey: "exports/tenant-1/2026/10/exp_1.csv"}
	processing := &model.ExportHistory{ID: "h-1", Status: model.ExportProcessing}

	tests := []struct {
		name       string
		history    *model.ExportHistory
		files      Presigner
		wantStatus int
	}{
		{"redirects to presigned link", completed, &fakePresigner{}, http.StatusFound},
		{"still running", processing, &fakePresigner{}, http.StatusConflict},
		{"storage not configured", completed, nil, http.StatusServiceUnavailable},
		{"unknown entry", nil, &fakePresigner{}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewExportHandler(&fakeExports{history: tt.history}, tt.files, time.Hour, quietLogger())
			rec := httptest.NewRecorder()
			h.Download(rec, authed(httptest.NewRequest(http.MethodGet, "/api/exports/history/h-1/download", nil), manager, "id", "h-1"))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusFound {
				assert.Contains(t, rec.Header().Get("Location"), completed.FileKey)
			}
		})
	}
}

func TestSetCapacityRejectsNegative(t *testing.T) {
	h := NewCRMHandler(CRMDeps{}, quietLogger())
	rec := httptest.NewRecorder()
	h.SetCapacity(rec, authed(httptest.NewRequest(http.MethodPut, "/api/crm/assignments/agent-1/capacity", strings.NewReader(`{"max_capacity":-1}`)), manager, "id", "agent-1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "max_capacity", decodeEnvelope(t, rec).Error.Details[0].Field)
}

func TestChangePasswordRequiresBothFields(t *testing.T) {
	h := NewAccountHandler(nil, nil, nil, quietLogger())
	rec := httptest.NewRecorder()
	h.ChangePassword(rec, authed(httptest.NewRequest(http.MethodPost, "/api/auth/password", strings.NewReader(`{"new_password":"x"}`)), manager))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "current_password", decodeEnvelope(t, rec).Error.Details[0].Field)
}

func TestDashboardQuery(t *testing.T) {
	t.Parallel()
	tests := []struct {
		query   string
		want    dashboard.Query
		wantErr bool
	}{
		{"", dashboard.Query{}, false},
		{"months=6&refresh=true", dashboard.Query{Months: 6, Refresh: true}, false},
		{"months=0", dashboard.Query{}, true},
		{"months=six", dashboard.Query{}, true},
		{"refresh=sometimes", dashboard.Query{}, true},
		{"from=tomorrow", dashboard.Query{}, true},
	}
	for _, tt := range tests {
		q, err := dashboardQuery(httptest.NewRequest(http.MethodGet, "/metrics/overview?"+tt.query, nil))
		if tt.wantErr {
			assert.Error(t, err, "query %q", tt.query)
			continue
		}
		require.NoError(t, err, "query %q", tt.query)
		assert.Equal(t, tt.want, q, "query %q", tt.query)
	}
}
