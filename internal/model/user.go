package model

import (
	"strings"
	"time"
)

// Role is a user's access level inside a tenant.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleAgent   Role = "agent"
	RoleViewer  Role = "viewer"
)

// Roles lists valid roles.
var Roles = []Role{RoleAdmin, RoleManager, RoleAgent, RoleViewer}

// Scopes returns the scopes a role grants.
func (r Role) Scopes() []string {
	switch r {
	case RoleAdmin:
		return []string{ScopeAdmin}
	case RoleManager:
		return []string{ScopeRead, ScopeWrite, ScopeExport}
	case RoleAgent:
		return []string{ScopeRead, ScopeCRM}
	case RoleViewer:
		return []string{ScopeRead}
	}
	return nil
}

// CanTakeAssignments reports whether users with this role receive CRM work.
func (r Role) CanTakeAssignments() bool {
	return r == RoleAgent || r == RoleManager
}

// UserStatus is the account lifecycle state.
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusInactive  UserStatus = "inactive"
	UserStatusSuspended UserStatus = "suspended"
)

// UserStatuses lists valid user statuses.
var UserStatuses = []UserStatus{UserStatusActive, UserStatusInactive, UserStatusSuspended}

// User is an operator of the admin UI.
type User struct {
	ID                  string     `json:"id" db:"id"`
	TenantID            string     `json:"tenant_id" db:"tenant_id"`
	Email               string     `json:"email" db:"email"`
	PasswordHash        string     `json:"-" db:"password_hash"`
	FirstName           string     `json:"first_name" db:"first_name"`
	LastName            string     `json:"last_name" db:"last_name"`
	Role                Role       `json:"role" db:"role"`
	Status              UserStatus `json:"status" db:"status"`
	FailedLoginAttempts int        `json:"-" db:"failed_login_attempts"`
	LockedUntil         *time.Time `json:"locked_until,omitempty" db:"locked_until"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
	Deleted             bool       `json:"-" db:"deleted"`
	DeletedAt           *time.Time `json:"-" db:"deleted_at"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`
}

// FullName joins first and last name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// IsLocked reports whether login is blocked at now.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// CanLogin reports whether the account may authenticate.
func (u *User) CanLogin(now time.Time) bool {
	return !u.Deleted && u.Status == UserStatusActive && !u.IsLocked(now)
}

// Validate checks field rules.
func (u *User) Validate() error {
	var v ValidationErrors
	v.Required("email", u.Email)
	v.Email("email", u.Email)
	v.Required("first_name", u.FirstName)
	v.MaxLen("first_name", u.FirstName, 100)
	v.MaxLen("last_name", u.LastName, 100)
	OneOf(&v, "role", u.Role, Roles)
	OneOf(&v, "status", u.Status, UserStatuses)
	return v.Err()
}

// UserResponse is the public view of a user, including computed fields.
type UserResponse struct {
	*User
	FullName string `json:"full_name"`
	Locked   bool   `json:"locked"`
}

// ToResponse adds computed fields.
func (u *User) ToResponse(now time.Time) UserResponse {
	return UserResponse{User: u, FullName: u.FullName(), Locked: u.IsLocked(now)}
}

// UserFilter narrows user listings.
type UserFilter struct {
	Role   Role
	Status UserStatus
	Query  string
}
