package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by GetDashboard when nothing is cached.
var ErrCacheMiss = errors.New("cache miss")

// DashboardKey builds the cache key for one metric of a tenant. Params are
// sorted so equivalent queries share an entry; the tenant generation lets
// InvalidateDashboard drop every entry with one INCR.
func DashboardKey(tenantID string, generation int64, metric string, params map[string]string) string {
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, k := range names {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(params[k])
		sb.WriteByte('&')
	}
	sum := sha256.Sum256([]byte(sb.String()))

	return key("dash", tenantID, strconv.FormatInt(generation, 10), metric, hex.EncodeToString(sum[:8]))
}

func (c *Cache) dashboardGeneration(ctx context.Context, tenantID string) (int64, error) {
	gen, err := c.client.Get(ctx, key("dashgen", tenantID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// GetDashboard decodes a cached metric into dst.
func (c *Cache) GetDashboard(ctx context.Context, tenantID, metric string, params map[string]string, dst any) error {
	gen, err := c.dashboardGeneration(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("dashboard generation: %w", err)
	}

	data, err := c.client.Get(ctx, DashboardKey(tenantID, gen, metric, params)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("get dashboard: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return ErrCacheMiss
	}
	return nil
}

// SetDashboard stores a computed metric for ttl.
func (c *Cache) SetDashboard(ctx context.Context, tenantID, metric string, params map[string]string, value any, ttl time.Duration) error {
	gen, err := c.dashboardGeneration(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("dashboard generation: %w", err)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal dashboard: %w", err)
	}
	return c.client.Set(ctx, DashboardKey(tenantID, gen, metric, params), data, ttl).Err()
}

// InvalidateDashboard makes all cached metrics of a tenant unreachable.
func (c *Cache) InvalidateDashboard(ctx context.Context, tenantID string) error {
	return c.client.Incr(ctx, key("dashgen", tenantID)).Err()
}
