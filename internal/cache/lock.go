package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if the caller still owns it.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// Lock is a held Redis lock.
type Lock struct {
	cache *Cache
	key   string
	token string
}

// TryLock acquires name for ttl. It returns nil, nil when someone else holds it.
func (c *Cache) TryLock(ctx context.Context, name string, ttl time.Duration) (*Lock, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("lock token: %w", err)
	}
	l := &Lock{cache: c, key: key("lock", name), token: hex.EncodeToString(b)}

	ok, err := c.client.SetNX(ctx, l.key, l.token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, nil
	}
	return l, nil
}

// Release frees the lock if it has not expired and been taken over.
func (l *Lock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.cache.client, []string{l.key}, l.token).Err()
}

// LockFunc adapts TryLock to a callback that acquires name for ttl and
// returns its release. ok is false when another process holds the lock.
func (c *Cache) LockFunc(name string, ttl time.Duration) func(ctx context.Context) (func(), bool, error) {
	return func(ctx context.Context) (func(), bool, error) {
		l, err := c.TryLock(ctx, name, ttl)
		if err != nil || l == nil {
			return nil, false, err
		}
		return func() {
			// Release outlives the tick context.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = l.Release(ctx)
		}, true, nil
	}
}
