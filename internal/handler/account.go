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

// Authenticator handles login and the caller's own account.
type Authenticator interface {
	Login(ctx context.Context, in service.LoginInput) (*service.LoginResult, error)
	Me(ctx context.Context, tenantID, userID string) (*model.User, error)
	ChangePassword(ctx context.Context, tenantID, userID, current, next string) error
}

// UserManager manages the users of a tenant.
type UserManager interface {
	Create(ctx context.Context, tenantID string, in service.CreateUserInput) (*model.User, error)
	Get(ctx context.Context, tenantID, id string) (*model.User, error)
	List(ctx context.Context, tenantID string, f model.UserFilter, p model.Page) (*service.ListResult[*model.User], error)
	Update(ctx context.Context, tenantID, id string, p service.UserPatch) (*model.User, error)
	Delete(ctx context.Context, tenantID, callerID, id string) error
}

// KeyManager issues and revokes API keys.
type KeyManager interface {
	Create(ctx context.Context, tenantID, userID string, req model.APIKeyCreateRequest) (*model.APIKeyCreateResponse, error)
	List(ctx context.Context, tenantID string) ([]model.APIKeyResponse, error)
	Revoke(ctx context.Context, tenantID, id string) error
}

// AccountHandler serves /api/auth, /api/users and /api/api-keys.
type AccountHandler struct {
	auth  Authenticator
	users UserManager
	keys  KeyManager
	errs  errorResponder
	now   func() time.Time
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(a Authenticator, users UserManager, keys KeyManager, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		auth:  a,
		users: users,
		keys:  keys,
		errs:  newResponder(logger, "account"),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Login handles POST /api/auth/login.
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in service.LoginInput
	if err := decode(r, &in); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	res, err := h.auth.Login(r.Context(), in)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusOK, res)
}

// Me handles GET /api/auth/me.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	tenantID, userID := caller(r)
	u, err := h.auth.Me(r.Context(), tenantID, userID)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusOK, u.ToResponse(h.now()))
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword handles PUT /api/auth/password.
func (h *AccountHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decode(r, &req); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	var v model.ValidationErrors
	v.Required("current_password", req.CurrentPassword)
	v.Required("new_password", req.NewPassword)
	if err := v.Err(); err != nil {
		h.errs.fail(w, r, err)
		return
	}

	tenantID, userID := caller(r)
	if err := h.auth.ChangePassword(r.Context(), tenantID, userID, req.CurrentPassword, req.NewPassword); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateUser handles POST /api/users.
func (h *AccountHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var in service.CreateUserInput
	if err := decode(r, &in); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, _ := caller(r)
	u, err := h.users.Create(r.Context(), tenantID, in)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusCreated, u.ToResponse(h.now()))
}

// ListUsers handles GET /api/users.
func (h *AccountHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	f := model.UserFilter{
		Role:   model.Role(queryString(r, "role")),
		Status: model.UserStatus(queryString(r, "status")),
		Query:  queryString(r, "q"),
	}
	res, err := h.users.List(r.Context(), tenantID, f, pageParams(r))
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	now := h.now()
	writeList(w, res, func(u *model.User) model.UserResponse { return u.ToResponse(now) })
}

// GetUser handles GET /api/users/{id}.
func (h *AccountHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	u, err := h.users.Get(r.Context(), tenantID, pathID(r))
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusOK, u.ToResponse(h.now()))
}

// UpdateUser handles PATCH /api/users/{id}.
func (h *AccountHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var p service.UserPatch
	if err := decode(r, &p); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, _ := caller(r)
	u, err := h.users.Update(r.Context(), tenantID, pathID(r), p)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusOK, u.ToResponse(h.now()))
}

// DeleteUser handles DELETE /api/users/{id}.
func (h *AccountHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	tenantID, userID := caller(r)
	if err := h.users.Delete(r.Context(), tenantID, userID, pathID(r)); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateKey handles POST /api/api-keys. The plaintext key is returned once.
func (h *AccountHandler) CreateKey(w http.ResponseWriter, r *http.Request) {
	var req model.APIKeyCreateRequest
	if err := decode(r, &req); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	tenantID, userID := caller(r)
	res, err := h.keys.Create(r.Context(), tenantID, userID, req)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	dto.OK(w, http.StatusCreated, res)
}

// ListKeys handles GET /api/api-keys.
func (h *AccountHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	keys, err := h.keys.List(r.Context(), tenantID)
	if err != nil {
		h.errs.fail(w, r, err)
		return
	}
	if keys == nil {
		keys = []model.APIKeyResponse{}
	}
	dto.OK(w, http.StatusOK, keys)
}

// RevokeKey handles DELETE /api/api-keys/{id}.
func (h *AccountHandler) RevokeKey(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := caller(r)
	if err := h.keys.Revoke(r.Context(), tenantID, pathID(r)); err != nil {
		h.errs.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
