package repository

import (
	"context"
	"time"

	"github.com/solarvest/platform/internal/model"
)

const userCols = `id, tenant_id, email, password_hash, first_name, last_name, role, status,
	failed_login_attempts, locked_until, last_login_at, deleted, deleted_at, created_at, updated_at`

// CreateUser inserts a new user. Returns ErrDuplicate when the email is taken in the tenant.
func (r *Repository) CreateUser(ctx context.Context, u *model.User) error {
	return insert(ctx, r.db, "create user", `
		INSERT INTO users (id, tenant_id, email, password_hash, first_name, last_name, role, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		u.ID, u.TenantID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Role, u.Status, u.CreatedAt,
	)
}

func (r *Repository) GetUser(ctx context.Context, tenantID, id string) (*model.User, error) {
	return one[model.User](ctx, r.db,
		`SELECT `+userCols+` FROM users WHERE tenant_id = $1 AND id = $2 AND NOT deleted`, tenantID, id)
}

func (r *Repository) GetUserByEmail(ctx context.Context, tenantID, email string) (*model.User, error) {
	return one[model.User](ctx, r.db,
		`SELECT `+userCols+` FROM users WHERE tenant_id = $1 AND email = $2 AND NOT deleted`, tenantID, email)
}

func (r *Repository) ListUsers(ctx context.Context, tenantID string, f model.UserFilter, p model.Page) ([]*model.User, int64, error) {
	w := tenantScope(tenantID)
	eqIf(w, "role", f.Role)
	eqIf(w, "status", f.Status)
	w.search(f.Query, "email", "first_name", "last_name")
	return list[model.User](ctx, r.db, "users", userCols, w, "created_at DESC, id", p)
}

// ListAgents returns active users that can take CRM assignments.
func (r *Repository) ListAgents(ctx context.Context, tenantID string) ([]*model.User, error) {
	return all[model.User](ctx, r.db, `
		SELECT `+userCols+` FROM users
		WHERE tenant_id = $1 AND NOT deleted AND status = 'active' AND role IN ('agent', 'manager')
		ORDER BY id`, tenantID)
}

func (r *Repository) UpdateUser(ctx context.Context, u *model.User) error {
	return execOne(ctx, r.db, "update user", `
		UPDATE users SET email = $3, first_name = $4, last_name = $5, role = $6, status = $7, updated_at = $8
		WHERE tenant_id = $1 AND id = $2 AND NOT deleted`,
		u.TenantID, u.ID, u.Email, u.FirstName, u.LastName, u.Role, u.Status, u.UpdatedAt,
	)
}

func (r *Repository) UpdateUserPassword(ctx context.Context, tenantID, id, hash string) error {
	return execOne(ctx, r.db, "update password", `
		UPDATE users SET password_hash = $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND NOT deleted`, tenantID, id, hash)
}

// RecordLoginFailure increments the failure counter and locks the account
// once maxAttempts is reached. Returns the updated user.
func (r *Repository) RecordLoginFailure(ctx context.Context, tenantID, id string, maxAttempts int, lockUntil time.Time) (*model.User, error) {
	return one[model.User](ctx, r.db, `
		UPDATE users SET
			failed_login_attempts = failed_login_attempts + 1,
			locked_until = CASE WHEN failed_login_attempts + 1 >= $3 THEN $4::timestamptz ELSE locked_until END,
			updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND NOT deleted
		RETURNING `+userCols, tenantID, id, maxAttempts, lockUntil)
}

// RecordLoginSuccess clears the failure counter and lock.
func (r *Repository) RecordLoginSuccess(ctx context.Context, tenantID, id string, at time.Time) error {
	return execOne(ctx, r.db, "record login", `
		UPDATE users SET failed_login_attempts = 0, locked_until = NULL, last_login_at = $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND NOT deleted`, tenantID, id, at)
}

func (r *Repository) DeleteUser(ctx context.Context, tenantID, id string) error {
	return softDelete(ctx, r.db, "users", tenantID, id)
}
