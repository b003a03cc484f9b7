package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/solarvest/platform/internal/model"
)

const authCacheTTL = 5 * time.Minute

// cachedAuth is the Redis representation of an API key's auth context.
type cachedAuth struct {
	TenantID      string     `json:"tenant_id"`
	KeyID         string     `json:"key_id"`
	KeyPrefix     string     `json:"key_prefix"`
	UserID        string     `json:"user_id"`
	Role          model.Role `json:"role,omitempty"`
	Scopes        []string   `json:"scopes"`
	RateLimitTier string     `json:"rate_limit_tier"`
}

// GetAuthContext returns nil, nil on a miss or a corrupt entry.
func (c *Cache) GetAuthContext(ctx context.Context, cacheKey string) (*model.AuthContext, error) {
	data, err := c.client.Get(ctx, key("auth", cacheKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get auth context: %w", err)
	}

	var cached cachedAuth
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, nil //nolint:nilerr
	}

	return &model.AuthContext{
		TenantID:      cached.TenantID,
		KeyID:         cached.KeyID,
		KeyPrefix:     cached.KeyPrefix,
		UserID:        cached.UserID,
		Role:          cached.Role,
		Scopes:        cached.Scopes,
		RateLimitTier: cached.RateLimitTier,
	}, nil
}

// SetAuthContext caches an auth context and indexes it by key id for revocation.
func (c *Cache) SetAuthContext(ctx context.Context, cacheKey string, auth *model.AuthContext) error {
	data, err := json.Marshal(cachedAuth{
		TenantID:      auth.TenantID,
		KeyID:         auth.KeyID,
		KeyPrefix:     auth.KeyPrefix,
		UserID:        auth.UserID,
		Role:          auth.Role,
		Scopes:        auth.Scopes,
		RateLimitTier: auth.RateLimitTier,
	})
	if err != nil {
		return fmt.Errorf("marshal auth context: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, key("auth", cacheKey), data, authCacheTTL)
	if auth.KeyID != "" {
		pipe.Set(ctx, key("authidx", auth.KeyID), cacheKey, authCacheTTL)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// DeleteAuthContextByKeyID drops the cached context of a revoked key.
func (c *Cache) DeleteAuthContextByKeyID(ctx context.Context, keyID string) error {
	idx := key("authidx", keyID)
	cacheKey, err := c.client.Get(ctx, idx).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	return c.client.Del(ctx, key("auth", cacheKey), idx).Err()
}
