// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/solarvest/platform/internal/metrics"
	"github.com/solarvest/platform/internal/model"
	"github.com/solarvest/platform/internal/repository"
)

// Service errors.
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrAPIKeyNotFound      = errors.New("api key not found")
	ErrInvestorNotFound    = errors.New("investor not found")
	ErrInvestmentNotFound  = errors.New("investment not found")
	ErrApplicationNotFound = errors.New("application not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrDocumentNotFound    = errors.New("kyc document not found")
	ErrTicketNotFound      = errors.New("ticket not found")
	ErrContactNotFound     = errors.New("contact not found")
	ErrThreadNotFound      = errors.New("thread not found")
	ErrTemplateNotFound    = errors.New("template not found")
	ErrAutomationNotFound  = errors.New("automation not found")
	ErrAgentNotFound       = errors.New("agent not found")

	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrAccountDisabled    = errors.New("account is disabled")

	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrCannotInvest      = errors.New("investor must be active with verified KYC")
	ErrAlreadyExists     = errors.New("record already exists")
	ErrConflict          = errors.New("record changed concurrently")
	ErrAlreadyReviewed   = errors.New("document has already been reviewed")
	ErrCannotDeleteSelf  = errors.New("cannot delete your own account")
)

// translate maps repository errors to service errors. notFound is returned
// for repository.ErrNotFound.
func translate(err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return notFound
	case errors.Is(err, repository.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, repository.ErrConflict):
		return ErrConflict
	}
	return err
}

// EventDispatcher runs automations for CRM events.
type EventDispatcher interface {
	Dispatch(ctx context.Context, ev model.Event) []model.AutomationRun
}

// DashboardInvalidator drops cached dashboard results for a tenant.
type DashboardInvalidator interface {
	InvalidateDashboard(ctx context.Context, tenantID string) error
}

// Options are the collaborators shared by every service. All are optional.
type Options struct {
	Dashboard DashboardInvalidator
	Events    EventDispatcher
	Metrics   metrics.Recorder
	Logger    *slog.Logger
}

type base struct {
	dashboard DashboardInvalidator
	events    EventDispatcher
	metrics   metrics.Recorder
	logger    *slog.Logger
	now       func() time.Time
}

func newBase(component string, opts Options) base {
	b := base{
		dashboard: opts.Dashboard,
		events:    opts.Events,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	if b.metrics == nil {
		b.metrics = metrics.NewNoop()
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.logger = b.logger.With("component", "service."+component)
	return b
}

// changed records a write and drops the tenant's cached dashboard.
func (b *base) changed(ctx context.Context, tenantID, resource, op string) {
	switch op {
	case "create":
		b.metrics.IncRecordCreated(resource)
	case "delete":
		b.metrics.IncRecordDeleted(resource)
	default:
		b.metrics.IncRecordUpdated(resource)
	}
	if b.dashboard == nil {
		return
	}
	if err := b.dashboard.InvalidateDashboard(ctx, tenantID); err != nil {
		b.logger.Warn("dashboard_invalidate_failed", "tenant_id", tenantID, "error", err)
	}
}

// emit dispatches ev synchronously. Automation failures never fail the caller.
func (b *base) emit(ctx context.Context, ev model.Event) {
	if b.events == nil {
		return
	}
	for _, run := range b.events.Dispatch(ctx, ev) {
		if run.Error != "" {
			b.logger.Warn("automation_run_failed",
				"tenant_id", ev.TenantID,
				"trigger", ev.Trigger,
				"automation_id", run.AutomationID,
				"error", run.Error,
			)
		}
	}
}

// ListResult is a page of records with its total.
type ListResult[T any] struct {
	Items []T
	Total int64
	Page  model.Page
}

func newList[T any](items []T, total int64, p model.Page) *ListResult[T] {
	if items == nil {
		items = []T{}
	}
	return &ListResult[T]{Items: items, Total: total, Page: p}
}
