package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	rateLimitSubjectTTL = 120 * time.Second
	rateLimitLoginTTL   = 60 * time.Second
)

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// tokenBucketScript refills and consumes a token atomically.
// KEYS[1] bucket; ARGV rate/s, burst, now (s), ttl (s).
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])
	local burst = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])

	local data = redis.call('HMGET', key, 'tokens', 'ts')
	local tokens = tonumber(data[1]) or burst
	local ts = tonumber(data[2]) or now

	tokens = math.min(burst, tokens + (math.max(0, now - ts) * rate))

	local allowed = 0
	local retry_after = 0
	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	else
		retry_after = math.ceil((1 - tokens) / rate)
	end

	redis.call('HSET', key, 'tokens', tokens, 'ts', now)
	redis.call('EXPIRE', key, ttl)

	return {allowed, retry_after, math.floor(tokens)}
`)

// CheckSubjectRateLimit limits an authenticated caller (API key or user).
// ratePerMinute of 0 means unlimited.
func (c *Cache) CheckSubjectRateLimit(ctx context.Context, subject string, ratePerMinute, burst int) (*RateLimitResult, error) {
	if ratePerMinute == 0 {
		return &RateLimitResult{Allowed: true, Remaining: int64(burst), ResetAt: time.Now().Add(time.Minute)}, nil
	}
	return c.checkRateLimit(ctx, key("rl", "sub", subject), float64(ratePerMinute)/60.0, burst, rateLimitSubjectTTL)
}

// CheckLoginRateLimit limits login attempts per client IP. The IP is hashed before use.
func (c *Cache) CheckLoginRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*RateLimitResult, error) {
	return c.checkRateLimit(ctx, key("rl", "login", hashIP(ip)), float64(ratePerSecond), burst, rateLimitLoginTTL)
}

func (c *Cache) checkRateLimit(ctx context.Context, bucket string, rate float64, burst int, ttl time.Duration) (*RateLimitResult, error) {
	now := time.Now()

	res, err := tokenBucketScript.Run(ctx, c.client, []string{bucket},
		rate, burst, now.Unix(), int(ttl.Seconds()),
	).Int64Slice()
	if err != nil {
		// Fail open: Redis trouble should not take the API down.
		return &RateLimitResult{Allowed: true, Remaining: int64(burst), ResetAt: now.Add(time.Minute)}, nil
	}

	return &RateLimitResult{
		Allowed:    res[0] == 1,
		RetryAfter: time.Duration(res[1]) * time.Second,
		Remaining:  res[2],
		ResetAt:    now.Add(time.Duration(float64(time.Second) / rate)),
	}, nil
}

func hashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:8])
}
