package repository

import (
	"context"
	"time"

	"github.com/solarvest/platform/internal/model"
)

const apiKeyCols = `id, tenant_id, user_id, key_hash, key_prefix, scopes, rate_limit_tier, name, revoked_at, last_used_at, created_at`

// CreateAPIKey inserts a new API key.
func (r *Repository) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	return insert(ctx, r.db, "create API key", `
		INSERT INTO api_keys (id, tenant_id, user_id, key_hash, key_prefix, scopes, rate_limit_tier, name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		key.ID, key.TenantID, key.UserID, key.KeyHash, key.KeyPrefix, key.Scopes, key.RateLimitTier, key.Name, key.CreatedAt,
	)
}

func (r *Repository) GetAPIKey(ctx context.Context, tenantID, id string) (*model.APIKey, error) {
	return one[model.APIKey](ctx, r.db,
		`SELECT `+apiKeyCols+` FROM api_keys WHERE tenant_id = $1 AND id = $2`, tenantID, id)
}

// GetAPIKeysByPrefix returns unrevoked candidates for authentication.
// Prefixes are not tenant-scoped: the tenant is derived from the matching key.
func (r *Repository) GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]*model.APIKey, error) {
	return all[model.APIKey](ctx, r.db,
		`SELECT `+apiKeyCols+` FROM api_keys WHERE key_prefix = $1 AND revoked_at IS NULL`, prefix)
}

func (r *Repository) ListAPIKeys(ctx context.Context, tenantID string) ([]*model.APIKey, error) {
	return all[model.APIKey](ctx, r.db,
		`SELECT `+apiKeyCols+` FROM api_keys WHERE tenant_id = $1 ORDER BY created_at DESC`, tenantID)
}

// RevokeAPIKey sets revoked_at on an active key.
func (r *Repository) RevokeAPIKey(ctx context.Context, tenantID, id string) error {
	return execOne(ctx, r.db, "revoke API key",
		`UPDATE api_keys SET revoked_at = $3 WHERE tenant_id = $1 AND id = $2 AND revoked_at IS NULL`,
		tenantID, id, time.Now())
}

// TouchAPIKey updates last_used_at. Called asynchronously after authentication.
func (r *Repository) TouchAPIKey(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, id, time.Now())
	return err
}
