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

// TransactionManager manages ledger transactions.
type TransactionManager interface {
	Create(ctx context.Context, tenantID string, in service.TransactionInput) (*model.Transaction, error)
	Get(ctx context.Context, tenantID, id string) (*model.Transaction, error)
	List(ctx context.Context, tenantID string, f model.TransactionFilter, p model.Page) (*service.ListResult[*model.Transaction], error)
	UpdateStatus(ctx context.Context, tenantID, id string, status model.TransactionStatus) (*model.Transaction, error)
	Delete(ctx context.Context, tenantID, id string) error
}

// TransactionHandler serves /api/transactions.
type TransactionHandler struct {
	txns TransactionManager
	errs errorResponder
	now  func() time.Time
}

func NewTransactionHandler(txns TransactionManager, logger *slog.Logger) *TransactionHandler {
	return &TransactionHandler{
		txns: txns,
		errs: newResponder(logger, "transaction"),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (h *TransactionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.TransactionInput
	if err := decode(r, &in); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, _ := caller(r)
	t, err := h.txns.Create(r.Context(), tenantID, in)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusCreated, t.ToResponse(h.now()))
}

// List filters by investor, investment, type, status and a from/to window.
func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	from, err := queryTime(r, "from")
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	to, err := queryTime(r, "to")
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, _ := caller(r)
	f := model.TransactionFilter{
		InvestorID:   queryString(r, "investor_id"),
		InvestmentID: queryString(r, "investment_id"),
		Type:         model.TransactionType(queryString(r, "type")),
		Status:       model.TransactionStatus(queryString(r, "status")),
		From:         from,
		To:           to,
	}
	res, err := h.txns.List(r.Context(), tenantID, f, pageParams(r))
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	now := h.now()
	writeList(w, res, func(t *model.Transaction) model.TransactionResponse { return t.ToResponse(now) })
}

func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	t, err := h.txns.Get(r.Context(), tenantID, pathID(r))
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusOK, t.ToResponse(h.now()))
}

type transactionStatusRequest struct {
	Status model.TransactionStatus `json:"status"`
}

// UpdateStatus handles PUT /api/transactions/{id}/status.
func (h *TransactionHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req transactionStatusRequest
	if err := decode(r, &req); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, _ := caller(r)
	t, err := h.txns.UpdateStatus(r.Context(), tenantID, pathID(r), req.Status)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusOK, t.ToResponse(h.now()))
}

func (h *TransactionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	if err := h.txns.Delete(r.Context(), tenantID, pathID(r)); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
