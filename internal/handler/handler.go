// Package handler provides the HTTP handlers of the REST API.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/solarvest/platform/internal/auth"
	"github.com/solarvest/platform/internal/crm"
	"github.com/solarvest/platform/internal/dashboard"
	"github.com/solarvest/platform/internal/export"
	"github.com/solarvest/platform/internal/handler/dto"
	"github.com/solarvest/platform/internal/model"
	"github.com/solarvest/platform/internal/service"
)

// NotFound handles unmatched routes.
func NotFound(w http.ResponseWriter, _ *http.Request) {
	dto.Error(w, http.StatusNotFound, dto.CodeNotFound, "Resource not found")
}

// MethodNotAllowed handles routes matched with the wrong method.
func MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	dto.Error(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
}

// notFoundCodes maps service lookups to their error codes.
var notFoundCodes = []struct {
	err  error
	code string
}{
	{service.ErrUserNotFound, "USER_NOT_FOUND"},
	{service.ErrAPIKeyNotFound, "API_KEY_NOT_FOUND"},
	{service.ErrInvestorNotFound, "INVESTOR_NOT_FOUND"},
	{service.ErrInvestmentNotFound, "INVESTMENT_NOT_FOUND"},
	{service.ErrApplicationNotFound, "APPLICATION_NOT_FOUND"},
	{service.ErrTransactionNotFound, "TRANSACTION_NOT_FOUND"},
	{service.ErrDocumentNotFound, "KYC_DOCUMENT_NOT_FOUND"},
	{service.ErrTicketNotFound, "TICKET_NOT_FOUND"},
	{service.ErrContactNotFound, "CONTACT_NOT_FOUND"},
	{service.ErrThreadNotFound, "THREAD_NOT_FOUND"},
	{service.ErrTemplateNotFound, "TEMPLATE_NOT_FOUND"},
	{service.ErrAutomationNotFound, "AUTOMATION_NOT_FOUND"},
	{service.ErrAgentNotFound, "AGENT_NOT_FOUND"},
	{service.ErrExportNotFound, "SCHEDULED_EXPORT_NOT_FOUND"},
	{service.ErrExportHistoryNotFound, "EXPORT_NOT_FOUND"},
}

// errorResponder writes service errors as envelopes.
type errorResponder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger, component string) errorResponder {
	if logger == nil {
		logger = slog.Default()
	}
	return errorResponder{logger: logger.With("component", "handler."+component)}
}

// fail maps err to a status and code. Unknown errors are logged and hidden.
func (e errorResponder) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verrs model.ValidationErrors
	if errors.As(err, &verrs) {
		dto.ValidationFailed(w, verrs)
		return
	}
	var verr model.ValidationError
	if errors.As(err, &verr) {
		dto.ValidationFailed(w, model.ValidationErrors{verr})
		return
	}
	for _, nf := range notFoundCodes {
		if errors.Is(err, nf.err) {
			dto.Error(w, http.StatusNotFound, nf.code, nf.err.Error())
			return
		}
	}

	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, dashboard.ErrInvalidPeriod),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, crm.ErrTemplate),
		errors.Is(err, crm.ErrInvalidExpression),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, export.ErrInvalidSchedule),
		errors.Is(err, export.ErrUnsupportedType),
		errors.Is(err, export.ErrInvalidURL),
		errors.Is(err, export.ErrInvalidScheme),
		errors.Is(err, export.ErrPrivateIP),
		errors.Is(err, export.ErrLocalhostBlocked):
		dto.Error(w, http.StatusBadRequest, dto.CodeValidation, err.Error())
	case errors.Is(err, export.ErrStorageUnavailable):
		dto.Error(w, http.StatusServiceUnavailable, dto.CodeUnavailable, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		dto.Error(w, http.StatusUnauthorized, dto.CodeUnauthorized, err.Error())
	case errors.Is(err, service.ErrAccountLocked),
		errors.Is(err, service.ErrAccountDisabled),
		errors.Is(err, service.ErrCannotDeleteSelf):
		dto.Error(w, http.StatusForbidden, dto.CodeForbidden, err.Error())
	case errors.Is(err, service.ErrAlreadyExists),
		errors.Is(err, service.ErrConflict),
		errors.Is(err, service.ErrCannotInvest),
		errors.Is(err, service.ErrAlreadyReviewed),
		errors.Is(err, service.ErrExportInactive),
		errors.Is(err, crm.ErrNoAgentAvailable),
		errors.Is(err, crm.ErrTemplateInactive),
		errors.Is(err, crm.ErrNoContact):
		dto.Error(w, http.StatusConflict, dto.CodeConflict, err.Error())
	default:
		e.logger.Error("request_failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		dto.Error(w, http.StatusInternalServerError, dto.CodeInternal, "Internal server error")
	}
}

var errBadRequest = errors.New("bad request")

func badRequest(msg string) error {
	return &requestError{msg: msg}
}

type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }
func (e *requestError) Unwrap() error { return errBadRequest }

// decode reads a JSON body into v.
func decode(r *http.Request, v any) error {
	if r.Body == nil {
		return badRequest("request body is required")
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("request body is required")
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return badRequest("request body too large")
		}
		return badRequest("invalid JSON body: " + err.Error())
	}
	return nil
}

// caller returns the tenant and user of the authenticated request.
func caller(r *http.Request) (tenantID, userID string) {
	a := auth.MustAuthFromContext(r.Context())
	return a.TenantID, a.UserID
}

func pathID(r *http.Request) string {
	return chi.URLParam(r, "id")
}

// pageParams reads page and limit; bad values fall back to defaults.
func pageParams(r *http.Request) model.Page {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return model.NewPage(page, limit)
}

// queryTime accepts RFC 3339 timestamps or plain dates.
func queryTime(r *http.Request, key string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, badRequest(key + " must be an RFC 3339 timestamp or YYYY-MM-DD date")
}

func queryBool(r *http.Request, key string) (*bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, badRequest(key + " must be a boolean")
	}
	return &b, nil
}

func queryString(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

// writeList writes a service page, converting each item.
func writeList[T, R any](w http.ResponseWriter, res *service.ListResult[T], conv func(T) R) {
	out := make([]R, len(res.Items))
	for i, item := range res.Items {
		out[i] = conv(item)
	}
	dto.Page(w, out, res.Total, res.Page)
}

func identity[T any](v T) T { return v }
