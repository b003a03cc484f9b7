package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/solarvest/platform/internal/auth"
	"github.com/solarvest/platform/internal/model"
)

// UserService manages operator accounts. Callers must be tenant admins.
type UserService struct {
	base
	users UserStore
}

func NewUserService(users UserStore, opts Options) *UserService {
	return &UserService{base: newBase("user", opts), users: users}
}

// CreateUserInput defines input for creating a user.
type CreateUserInput struct {
	Email     string     `json:"email"`
	Password  string     `json:"password"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Role      model.Role `json:"role"`
}

func (s *UserService) Create(ctx context.Context, tenantID string, in CreateUserInput) (*model.User, error) {
	now := s.now()
	u := &model.User{
		ID:        model.NewID(),
		TenantID:  tenantID,
		Email:     model.NormalizeEmail(in.Email),
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Role:      in.Role,
		Status:    model.UserStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if u.Role == "" {
		u.Role = model.RoleAgent
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		if errors.Is(err, auth.ErrWeakPassword) {
			return nil, model.ValidationErrors{{Field: "password", Message: err.Error()}}
		}
		return nil, err
	}
	u.PasswordHash = hash

	if err := s.users.CreateUser(ctx, u); err != nil {
		return nil, translate(err, ErrUserNotFound)
	}
	s.changed(ctx, tenantID, "user", "create")
	s.logger.Info("user_created", "tenant_id", tenantID, "user_id", u.ID, "role", u.Role)
	return u, nil
}

func (s *UserService) Get(ctx context.Context, tenantID, id string) (*model.User, error) {
	u, err := s.users.GetUser(ctx, tenantID, id)
	return u, translate(err, ErrUserNotFound)
}

func (s *UserService) List(ctx context.Context, tenantID string, f model.UserFilter, p model.Page) (*ListResult[*model.User], error) {
	items, total, err := s.users.ListUsers(ctx, tenantID, f, p)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return newList(items, total, p), nil
}

// UserPatch holds optional user changes.
type UserPatch struct {
	Email     *string           `json:"email"`
	FirstName *string           `json:"first_name"`
	LastName  *string           `json:"last_name"`
	Role      *model.Role       `json:"role"`
	Status    *model.UserStatus `json:"status"`
}

func (s *UserService) Update(ctx context.Context, tenantID, id string, p UserPatch) (*model.User, error) {
	u, err := s.users.GetUser(ctx, tenantID, id)
	if err != nil {
		return nil, translate(err, ErrUserNotFound)
	}
	if p.Email != nil {
		u.Email = model.NormalizeEmail(*p.Email)
	}
	setIf(&u.FirstName, p.FirstName)
	setIf(&u.LastName, p.LastName)
	setIf(&u.Role, p.Role)
	setIf(&u.Status, p.Status)
	u.UpdatedAt = s.now()
	if err := u.Validate(); err != nil {
		return nil, err
	}
	if err := s.users.UpdateUser(ctx, u); err != nil {
		return nil, translate(err, ErrUserNotFound)
	}
	s.changed(ctx, tenantID, "user", "update")
	return u, nil
}

// Delete soft-deletes a user other than the caller.
func (s *UserService) Delete(ctx context.Context, tenantID, callerID, id string) error {
	if callerID == id {
		return ErrCannotDeleteSelf
	}
	if err := s.users.DeleteUser(ctx, tenantID, id); err != nil {
		return translate(err, ErrUserNotFound)
	}
	s.changed(ctx, tenantID, "user", "delete")
	return nil
}

// setIf assigns *src to *dst when src is set.
func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
