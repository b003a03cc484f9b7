package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/solarvest/platform/internal/auth"
	"github.com/solarvest/platform/internal/model"
	"github.com/solarvest/platform/internal/repository"
)

// UserStore is the persistence used by AuthService and UserService.
type UserStore interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, tenantID, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, tenantID, email string) (*model.User, error)
	ListUsers(ctx context.Context, tenantID string, f model.UserFilter, p model.Page) ([]*model.User, int64, error)
	UpdateUser(ctx context.Context, u *model.User) error
	UpdateUserPassword(ctx context.Context, tenantID, id, hash string) error
	RecordLoginFailure(ctx context.Context, tenantID, id string, maxAttempts int, lockUntil time.Time) (*model.User, error)
	RecordLoginSuccess(ctx context.Context, tenantID, id string, at time.Time) error
	DeleteUser(ctx context.Context, tenantID, id string) error
}

// LoginPolicy controls lockout after repeated failures.
type LoginPolicy struct {
	MaxAttempts int
	Lockout     time.Duration
}

// AuthService authenticates admin UI users.
type AuthService struct {
	base
	users  UserStore
	tokens *auth.TokenIssuer
	policy LoginPolicy
}

// NewAuthService creates a new AuthService.
func NewAuthService(users UserStore, tokens *auth.TokenIssuer, policy LoginPolicy, opts Options) *AuthService {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 5
	}
	if policy.Lockout <= 0 {
		policy.Lockout = 15 * time.Minute
	}
	return &AuthService{base: newBase("auth", opts), users: users, tokens: tokens, policy: policy}
}

// LoginInput identifies the account to sign in to.
type LoginInput struct {
	TenantID string `json:"tenant_id"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult carries the session token.
type LoginResult struct {
	Token     string             `json:"token"`
	ExpiresAt time.Time          `json:"expires_at"`
	User      model.UserResponse `json:"user"`
}

// Login checks credentials and issues a JWT. Unknown emails and wrong
// passwords return the same error.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	now := s.now()
	user, err := s.users.GetUserByEmail(ctx, in.TenantID, model.NormalizeEmail(in.Email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.IncLoginAttempt("unknown")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if user.IsLocked(now) {
		s.metrics.IncLoginAttempt("locked")
		return nil, ErrAccountLocked
	}
	if user.Status != model.UserStatusActive {
		s.metrics.IncLoginAttempt("disabled")
		return nil, ErrAccountDisabled
	}

	if err := auth.ComparePassword(user.PasswordHash, in.Password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, fmt.Errorf("failed to compare password: %w", err)
		}
		updated, ferr := s.users.RecordLoginFailure(ctx, user.TenantID, user.ID, s.policy.MaxAttempts, now.Add(s.policy.Lockout))
		if ferr != nil {
			return nil, fmt.Errorf("failed to record login failure: %w", ferr)
		}
		if updated.IsLocked(now) {
			s.logger.Warn("account_locked", "tenant_id", user.TenantID, "user_id", user.ID)
			s.metrics.IncLoginAttempt("locked")
			return nil, ErrAccountLocked
		}
		s.metrics.IncLoginAttempt("failed")
		return nil, ErrInvalidCredentials
	}

	if err := s.users.RecordLoginSuccess(ctx, user.TenantID, user.ID, now); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now

	token, expires, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	s.metrics.IncLoginAttempt("success")
	s.logger.Info("user_login", "tenant_id", user.TenantID, "user_id", user.ID)
	return &LoginResult{Token: token, ExpiresAt: expires, User: user.ToResponse(now)}, nil
}

// Me returns the current user.
func (s *AuthService) Me(ctx context.Context, tenantID, userID string) (*model.User, error) {
	u, err := s.users.GetUser(ctx, tenantID, userID)
	return u, translate(err, ErrUserNotFound)
}

// ChangePassword verifies the current password before setting a new one.
func (s *AuthService) ChangePassword(ctx context.Context, tenantID, userID, current, next string) error {
	u, err := s.users.GetUser(ctx, tenantID, userID)
	if err != nil {
		return translate(err, ErrUserNotFound)
	}
	if err := auth.ComparePassword(u.PasswordHash, current); err != nil {
		return ErrInvalidCredentials
	}
	hash, err := auth.HashPassword(next)
	if err != nil {
		if errors.Is(err, auth.ErrWeakPassword) {
			return model.ValidationErrors{{Field: "new_password", Message: err.Error()}}
		}
		return err
	}
	if err := s.users.UpdateUserPassword(ctx, tenantID, userID, hash); err != nil {
		return translate(err, ErrUserNotFound)
	}
	s.metrics.IncRecordUpdated("user")
	return nil
}
