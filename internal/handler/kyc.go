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

// KYCManager manages KYC documents and their review.
type KYCManager interface {
	Create(ctx context.Context, tenantID string, in service.KYCInput) (*model.KYCDocument, error)
	Get(ctx context.Context, tenantID, id string) (*model.KYCDocument, error)
	List(ctx context.Context, tenantID string, f model.KYCFilter, p model.Page) (*service.ListResult[*model.KYCDocument], error)
	Review(ctx context.Context, tenantID, id, reviewerID string, review model.KYCReview) (*model.KYCDocument, error)
	Delete(ctx context.Context, tenantID, id string) error
}

// KYCHandler serves /api/kyc.
type KYCHandler struct {
	docs KYCManager
	errs errorResponder
	now  func() time.Time
}

func NewKYCHandler(docs KYCManager, logger *slog.Logger) *KYCHandler {
	return &KYCHandler{
		docs: docs,
		errs: newResponder(logger, "kyc"),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (h *KYCHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.KYCInput
	if err := decode(r, &in); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, _ := caller(r)
	d, err := h.docs.Create(r.Context(), tenantID, in)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusCreated, d.ToResponse(h.now()))
}

func (h *KYCHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	f := model.KYCFilter{
		OwnerType: model.KYCOwnerType(queryString(r, "owner_type")),
		OwnerID:   queryString(r, "owner_id"),
		Status:    model.DocumentStatus(queryString(r, "status")),
	}
	res, err := h.docs.List(r.Context(), tenantID, f, pageParams(r))
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	now := h.now()
	writeList(w, res, func(d *model.KYCDocument) model.KYCDocumentResponse { return d.ToResponse(now) })
}

func (h *KYCHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	d, err := h.docs.Get(r.Context(), tenantID, pathID(r))
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusOK, d.ToResponse(h.now()))
}

// Review handles PUT /api/kyc/{id}/review. The caller is recorded as reviewer.
func (h *KYCHandler) Review(w http.ResponseWriter, r *http.Request) {
	var review model.KYCReview
	if err := decode(r, &review); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, userID := caller(r)
	d, err := h.docs.Review(r.Context(), tenantID, pathID(r), userID, review)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusOK, d.ToResponse(h.now()))
}

func (h *KYCHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	if err := h.docs.Delete(r.Context(), tenantID, pathID(r)); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
