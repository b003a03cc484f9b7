package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/solarvest/platform/internal/handler/dto"
	"github.com/solarvest/platform/internal/model"
	"github.com/solarvest/platform/internal/service"
)

// InvestorManager manages investors and their portfolios.
type InvestorManager interface {
	Create(ctx context.Context, tenantID string, in service.InvestorInput) (*model.Investor, error)
	Get(ctx context.Context, tenantID, id string) (*model.Investor, error)
	List(ctx context.Context, tenantID string, f model.InvestorFilter, p model.Page) (*service.ListResult[*model.Investor], error)
	Update(ctx context.Context, tenantID, id string, p service.InvestorPatch) (*model.Investor, error)
	Delete(ctx context.Context, tenantID, id string) error
	Portfolio(ctx context.Context, tenantID, id string) (*model.Portfolio, error)
}

// InvestmentManager manages investments.
type InvestmentManager interface {
	Create(ctx context.Context, tenantID string, in service.InvestmentInput) (*model.Investment, error)
	Get(ctx context.Context, tenantID, id string) (*model.Investment, error)
	List(ctx context.Context, tenantID string, f model.InvestmentFilter, p model.Page) (*service.ListResult[*model.Investment], error)
	Update(ctx context.Context, tenantID, id string, p service.InvestmentPatch) (*model.Investment, error)
	Delete(ctx context.Context, tenantID, id string) error
}

// InvestorHandler serves /api/investors and /api/investments.
type InvestorHandler struct {
	investors   InvestorManager
	investments InvestmentManager
	errs        errorResponder
	now         func() time.Time
}

// NewInvestorHandler creates an InvestorHandler.
func NewInvestorHandler(investors InvestorManager, investments InvestmentManager, logger *slog.Logger) *InvestorHandler {
	return &InvestorHandler{
		investors:   investors,
		investments: investments,
		errs:        newResponder(logger, "investor"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (h *InvestorHandler) CreateInvestor(w http.ResponseWriter, r *http.Request) {
	var in service.InvestorInput
	if err := decode(r, &in); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, _ := caller(r)
	inv, err := h.investors.Create(r.Context(), tenantID, in)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusCreated, inv.ToResponse())
}

// ListInvestors supports status, kyc_status, type and q filters.
func (h *InvestorHandler) ListInvestors(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	f := model.InvestorFilter{
		Status:    model.InvestorStatus(queryString(r, "status")),
		KYCStatus: model.KYCStatus(queryString(r, "kyc_status")),
		Type:      model.InvestorType(queryString(r, "type")),
		Query:     queryString(r, "q"),
	}
	res, err := h.investors.List(r.Context(), tenantID, f, pageParams(r))
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	writeList(w, res, (*model.Investor).ToResponse)
}

func (h *InvestorHandler) GetInvestor(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	inv, err := h.investors.Get(r.Context(), tenantID, pathID(r))
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusOK, inv.ToResponse())
}

func (h *InvestorHandler) UpdateInvestor(w http.ResponseWriter, r *http.Request) {
	var p service.InvestorPatch
	if err := decode(r, &p); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, _ := caller(r)
	inv, err := h.investors.Update(r.Context(), tenantID, pathID(r), p)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusOK, inv.ToResponse())
}

func (h *InvestorHandler) DeleteInvestor(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	if err := h.investors.Delete(r.Context(), tenantID, pathID(r)); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Portfolio handles GET /api/investors/{id}/portfolio.
func (h *InvestorHandler) Portfolio(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	p, err := h.investors.Portfolio(r.Context(), tenantID, pathID(r))
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusOK, p)
}

func (h *InvestorHandler) CreateInvestment(w http.ResponseWriter, r *http.Request) {
	var in service.InvestmentInput
	if err := decode(r, &in); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, _ := caller(r)
	inv, err := h.investments.Create(r.Context(), tenantID, in)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusCreated, inv.ToResponse(h.now()))
}

func (h *InvestorHandler) ListInvestments(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	f := model.InvestmentFilter{
		InvestorID: queryString(r, "investor_id"),
		Status:     model.InvestmentStatus(queryString(r, "status")),
	}
	res, err := h.investments.List(r.Context(), tenantID, f, pageParams(r))
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	now := h.now()
	writeList(w, res, func(i *model.Investment) model.InvestmentResponse { return i.ToResponse(now) })
}

func (h *InvestorHandler) GetInvestment(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	inv, err := h.investments.Get(r.Context(), tenantID, pathID(r))
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusOK, inv.ToResponse(h.now()))
}

func (h *InvestorHandler) UpdateInvestment(w http.ResponseWriter, r *http.Request) {
	var p service.InvestmentPatch
	if err := decode(r, &p); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, _ := caller(r)
	inv, err := h.investments.Update(r.Context(), tenantID, pathID(r), p)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusOK, inv.ToResponse(h.now()))
}

func (h *InvestorHandler) DeleteInvestment(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	if err := h.investments.Delete(r.Context(), tenantID, pathID(r)); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
