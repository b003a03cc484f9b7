package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solarvest/platform/internal/auth"
	"github.com/solarvest/platform/internal/crm"
	"github.com/solarvest/platform/internal/dashboard"
	"github.com/solarvest/platform/internal/export"
	"github.com/solarvest/platform/internal/handler/dto"
	"github.com/solarvest/platform/internal/model"
	"github.com/solarvest/platform/internal/service"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// envelope decodes either response shape.
type envelope struct {
	Success    bool              `json:"success"`
	Data       json.RawMessage   `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
	Error      *dto.ErrorBody    `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env), "body: %s", rec.Body.String())
	return env
}

// authed attaches an AuthContext and optional chi URL params to req.
func authed(req *http.Request, a *model.AuthContext, params ...string) *http.Request {
	ctx := auth.ContextWithAuth(req.Context(), a)
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for i := 0; i+1 < len(params); i += 2 {
			rctx.URLParams.Add(params[i], params[i+1])
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	return req.WithContext(ctx)
}

var manager = &model.AuthContext{
	TenantID: "tenant-1",
	UserID:   "user-1",
	Role:     model.RoleManager,
	Scopes:   model.RoleManager.Scopes(),
}

func TestErrorResponderMapping(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation errors", model.ValidationErrors{{Field: "email", Message: "is required"}}, http.StatusBadRequest, dto.CodeValidation},
		{"single validation error", model.ValidationError{Field: "amount", Message: "must be positive"}, http.StatusBadRequest, dto.CodeValidation},
		{"bad request", badRequest("invalid JSON body"), http.StatusBadRequest, dto.CodeValidation},
		{"invalid period", dashboard.ErrInvalidPeriod, http.StatusBadRequest, dto.CodeValidation},
		{"invalid transition", fmt.Errorf("approve draft: %w", service.ErrInvalidTransition), http.StatusBadRequest, dto.CodeValidation},
		{"template", fmt.Errorf("%w: unknown variable", crm.ErrTemplate), http.StatusBadRequest, dto.CodeValidation},
		{"weak password", auth.ErrWeakPassword, http.StatusBadRequest, dto.CodeValidation},
		{"bad schedule", export.ErrInvalidSchedule, http.StatusBadRequest, dto.CodeValidation},
		{"investor not found", service.ErrInvestorNotFound, http.StatusNotFound, "INVESTOR_NOT_FOUND"},
		{"wrapped not found", fmt.Errorf("load: %w", service.ErrThreadNotFound), http.StatusNotFound, "THREAD_NOT_FOUND"},
		{"scheduled export not found", service.ErrExportNotFound, http.StatusNotFound, "SCHEDULED_EXPORT_NOT_FOUND"},
		{"export history not found", service.ErrExportHistoryNotFound, http.StatusNotFound, "EXPORT_NOT_FOUND"},
		{"credentials", service.ErrInvalidCredentials, http.StatusUnauthorized, dto.CodeUnauthorized},
		{"locked", service.ErrAccountLocked, http.StatusForbidden, dto.CodeForbidden},
		{"delete self", service.ErrCannotDeleteSelf, http.StatusForbidden, dto.CodeForbidden},
		{"duplicate", service.ErrAlreadyExists, http.StatusConflict, dto.CodeConflict},
		{"cannot invest", service.ErrCannotInvest, http.StatusConflict, dto.CodeConflict},
		{"already reviewed", service.ErrAlreadyReviewed, http.StatusConflict, dto.CodeConflict},
		{"inactive export", service.ErrExportInactive, http.StatusConflict, dto.CodeConflict},
		{"no agent", crm.ErrNoAgentAvailable, http.StatusConflict, dto.CodeConflict},
		{"storage missing", export.ErrStorageUnavailable, http.StatusServiceUnavailable, dto.CodeUnavailable},
		{"unknown", errors.New("pq: connection reset by peer"), http.StatusInternalServerError, dto.CodeInternal},
	}

	errs := newResponder(quietLogger(), "test")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			errs.fail(rec, httptest.NewRequest(http.MethodGet, "/api/x", nil), tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			env := decodeEnvelope(t, rec)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
		})
	}
}

func TestErrorResponderHidesInternalErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	newResponder(quietLogger(), "test").fail(rec, httptest.NewRequest(http.MethodGet, "/", nil),
		errors.New("pq: relation \"investors\" does not exist"))

	assert.NotContains(t, rec.Body.String(), "relation")
}

func TestValidationDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	errs := model.ValidationErrors{{Field: "email", Message: "is required"}, {Field: "role", Message: "must be one of admin, manager, agent, viewer"}}
	newResponder(quietLogger(), "test").fail(rec, httptest.NewRequest(http.MethodPost, "/", nil), errs)

	env := decodeEnvelope(t, rec)
	require.Len(t, env.Error.Details, 2)
	assert.Equal(t, "email", env.Error.Details[0].Field)
}

func TestDecode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		body    io.Reader
		wantErr string
	}{
		{"valid", strings.NewReader(`{"name":"x"}`), ""},
		{"empty", strings.NewReader(""), "request body is required"},
		{"nil body", nil, "request body is required"},
		{"malformed", strings.NewReader(`{"name":`), "invalid JSON body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", tt.body)
			if tt.body == nil {
				req.Body = nil
			}
			var v struct{ Name string }
			err := decode(req, &v)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "x", v.Name)
				return
			}
			require.ErrorIs(t, err, errBadRequest)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPageParams(t *testing.T) {
	t.Parallel()
	tests := []struct {
		query     string
		wantPage  int
		wantLimit int
	}{
		{"", 1, 20},
		{"page=3&limit=50", 3, 50},
		{"page=0&limit=0", 1, 20},
		{"page=-2&limit=1000", 1, 100},
		{"page=abc&limit=xyz", 1, 20},
		{"page=4611686018427387904&limit=100", model.MaxPage, 100},
	}
	for _, tt := range tests {
		p := pageParams(httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil))
		assert.Equal(t, tt.wantPage, p.Page, "query %q", tt.query)
		assert.Equal(t, tt.wantLimit, p.Limit, "query %q", tt.query)
		assert.GreaterOrEqual(t, p.Offset(), 0, "query %q", tt.query)
	}
}

func TestQueryTime(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest(http.MethodGet, "/?from=2026-03-01&to=2026-03-31T12:00:00%2B02:00&bad=yesterday", nil)

	from, err := queryTime(req, "from")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), *from)

	to, err := queryTime(req, "to")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 31, 10, 0, 0, 0, time.UTC), *to)

	missing, err := queryTime(req, "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = queryTime(req, "bad")
	assert.ErrorIs(t, err, errBadRequest)
}

func TestQueryBool(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest(http.MethodGet, "/?active=true&unread=0&x=maybe", nil)

	active, err := queryBool(req, "active")
	require.NoError(t, err)
	assert.True(t, *active)

	unread, err := queryBool(req, "unread")
	require.NoError(t, err)
	assert.False(t, *unread)

	_, err = queryBool(req, "x")
	assert.ErrorIs(t, err, errBadRequest)

	none, err := queryBool(req, "none")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	NotFound(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, dto.CodeNotFound, decodeEnvelope(t, rec).Error.Code)

	rec = httptest.NewRecorder()
	MethodNotAllowed(rec, httptest.NewRequest(http.MethodPut, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
