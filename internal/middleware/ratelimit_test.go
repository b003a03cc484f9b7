package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/solarvest/platform/internal/auth"
	"github.com/solarvest/platform/internal/cache"
	"github.com/solarvest/platform/internal/handler/dto"
	"github.com/solarvest/platform/internal/model"
)

// countingLimiter allows the first n calls per bucket.
type countingLimiter struct {
	allow    int
	subjects map[string]int
	lastRPM  int
}

func (l *countingLimiter) check(bucket string) *cache.RateLimitResult {
	l.subjects[bucket]++
	if l.subjects[bucket] > l.allow {
		return &cache.RateLimitResult{Allowed: false, RetryAfter: 3 * time.Second, ResetAt: time.Now().Add(time.Minute)}
	}
	return &cache.RateLimitResult{Allowed: true, Remaining: int64(l.allow - l.subjects[bucket]), ResetAt: time.Now().Add(time.Minute)}
}

func (l *countingLimiter) CheckSubjectRateLimit(_ context.Context, subject string, rpm, _ int) (*cache.RateLimitResult, error) {
	l.lastRPM = rpm
	return l.check(subject), nil
}

func (l *countingLimiter) CheckLoginRateLimit(_ context.Context, ip string, _, _ int) (*cache.RateLimitResult, error) {
	return l.check("ip:" + ip), nil
}

func TestRateLimitAPI(t *testing.T) {
	t.Parallel()
	lim := &countingLimiter{allow: 2, subjects: map[string]int{}}
	h := RateLimitAPI(RateLimitConfig{Logger: quietLogger(), Limiter: lim, APIEnabled: true})(okHandler())

	a := &model.AuthContext{TenantID: "t1", KeyID: "k1", RateLimitTier: model.TierStandard}
	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/tickets", nil)
		req = req.WithContext(auth.ContextWithAuth(req.Context(), a))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := do(); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, rec.Code)
		}
	}
	rec := do()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "3" {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
	var body dto.ErrorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Error.Code != dto.CodeRateLimited {
		t.Errorf("code = %q", body.Error.Code)
	}
	if lim.subjects["key:k1"] != 3 || lim.lastRPM != model.TierConfigs[model.TierStandard].RequestsPerMinute {
		t.Errorf("unexpected limiter calls %v rpm=%d", lim.subjects, lim.lastRPM)
	}
}

func TestRateLimitAPIUnlimitedAndDisabled(t *testing.T) {
	t.Parallel()
	lim := &countingLimiter{allow: 0, subjects: map[string]int{}}
	unlimited := &model.AuthContext{TenantID: "t1", UserID: "u1", RateLimitTier: model.TierUnlimited}

	for _, enabled := range []bool{true, false} {
		h := RateLimitAPI(RateLimitConfig{Logger: quietLogger(), Limiter: lim, APIEnabled: enabled})(okHandler())
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(auth.ContextWithAuth(req.Context(), unlimited))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("enabled=%v status = %d", enabled, rec.Code)
		}
	}
	if len(lim.subjects) != 0 {
		t.Errorf("limiter should not be consulted: %v", lim.subjects)
	}
}

func TestRateLimitLogin(t *testing.T) {
	t.Parallel()
	lim := &countingLimiter{allow: 1, subjects: map[string]int{}}
	h := RateLimitLogin(RateLimitConfig{Logger: quietLogger(), Limiter: lim, LoginRPS: 1, LoginBurst: 1})(okHandler())

	codes := make([]int, 0, 3)
	for _, addr := range []string{"203.0.113.7:4000", "203.0.113.7:4001", "198.51.100.2:4000"} {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	want := []int{http.StatusOK, http.StatusTooManyRequests, http.StatusOK}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("codes = %v, want %v", codes, want)
		}
	}
}

func TestGetClientIP(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name       string
		xff        string
		xri        string
		remoteAddr string
		want       string
	}{
		{"forwarded single", "1.2.3.4", "", "127.0.0.1:8080", "1.2.3.4"},
		{"forwarded chain", "1.2.3.4, 5.6.7.8", "", "127.0.0.1:8080", "1.2.3.4"},
		{"real ip", "", "1.2.3.4", "127.0.0.1:8080", "1.2.3.4"},
		{"remote addr", "", "", "192.168.1.1:12345", "192.168.1.1"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.xri != "" {
				req.Header.Set("X-Real-IP", tc.xri)
			}
			req.RemoteAddr = tc.remoteAddr
			if got := getClientIP(req); got != tc.want {
				t.Errorf("getClientIP() = %q, want %q", got, tc.want)
			}
		})
	}
}
