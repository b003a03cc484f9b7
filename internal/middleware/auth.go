package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/solarvest/platform/internal/auth"
	"github.com/solarvest/platform/internal/handler/dto"
	"github.com/solarvest/platform/internal/model"
)

// defaultKeyAuthDuration is the floor for API key verification so that
// unknown prefixes and bad secrets take the same time.
const defaultKeyAuthDuration = 200 * time.Millisecond

// KeyStore looks up API keys for verification.
type KeyStore interface {
	GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]*model.APIKey, error)
	TouchAPIKey(ctx context.Context, id string) error
}

// AuthCache stores verified API key contexts.
type AuthCache interface {
	GetAuthContext(ctx context.Context, cacheKey string) (*model.AuthContext, error)
	SetAuthContext(ctx context.Context, cacheKey string, auth *model.AuthContext) error
}

// TokenParser verifies session tokens.
type TokenParser interface {
	Parse(raw string) (*auth.Claims, error)
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Logger *slog.Logger
	Keys   KeyStore
	Cache  AuthCache // optional
	Tokens TokenParser
	// MinKeyDuration overrides defaultKeyAuthDuration; negative disables the floor.
	MinKeyDuration time.Duration
}

// Auth authenticates a request by API key or session token and injects the
// resulting AuthContext.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	floor := cfg.MinKeyDuration
	if floor == 0 {
		floor = defaultKeyAuthDuration
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := extractCredential(r)
			if credential == "" {
				logAuthFailure(logger, r, "missing_credential")
				writeAuthError(w)
				return
			}

			var (
				authCtx *model.AuthContext
				reason  string
			)
			if auth.LooksLikeAPIKey(credential) {
				start := time.Now()
				authCtx, reason = authenticateKey(r.Context(), cfg, logger, credential)
				if elapsed := time.Since(start); floor > 0 && elapsed < floor {
					time.Sleep(floor - elapsed)
				}
			} else {
				authCtx, reason = authenticateToken(cfg, credential)
			}

			if authCtx == nil {
				logAuthFailure(logger, r, reason)
				writeAuthError(w)
				return
			}

			annotate(r.Context(), authCtx)
			logger.Debug("authenticated",
				slog.String("tenant_id", authCtx.TenantID),
				slog.String("user_id", authCtx.UserID),
				slog.String("key_id", authCtx.KeyID),
				slog.String("request_id", GetRequestID(r.Context())),
			)
			next.ServeHTTP(w, r.WithContext(auth.ContextWithAuth(r.Context(), authCtx)))
		})
	}
}

func authenticateToken(cfg AuthConfig, raw string) (*model.AuthContext, string) {
	if cfg.Tokens == nil {
		return nil, "tokens_disabled"
	}
	claims, err := cfg.Tokens.Parse(raw)
	if err != nil {
		return nil, "invalid_token"
	}
	return claims.AuthContext(), ""
}

func authenticateKey(ctx context.Context, cfg AuthConfig, logger *slog.Logger, key string) (*model.AuthContext, string) {
	parsed, err := auth.ParseAPIKey(key)
	if err != nil {
		return nil, "invalid_format"
	}

	cacheKey := auth.CacheKey(key)
	if cfg.Cache != nil {
		if cached, _ := cfg.Cache.GetAuthContext(ctx, cacheKey); cached != nil {
			return cached, ""
		}
	}
	if cfg.Keys == nil {
		return nil, "keys_disabled"
	}

	candidates, err := cfg.Keys.GetAPIKeysByPrefix(ctx, parsed.Prefix)
	if err != nil {
		logger.Error("api_key_lookup_failed", "error", err)
		return nil, "lookup_failed"
	}

	// Several keys may share a prefix.
	var matched *model.APIKey
	for _, k := range candidates {
		if ok, err := auth.VerifySecret(key, k.KeyHash); err == nil && ok {
			matched = k
			break
		}
	}
	if matched == nil {
		return nil, "invalid_key"
	}

	authCtx := &model.AuthContext{
		TenantID:      matched.TenantID,
		KeyID:         matched.ID,
		KeyPrefix:     matched.KeyPrefix,
		UserID:        matched.UserID,
		Scopes:        matched.Scopes,
		RateLimitTier: matched.RateLimitTier,
	}
	if cfg.Cache != nil {
		_ = cfg.Cache.SetAuthContext(ctx, cacheKey, authCtx)
	}

	go func(id string) {
		tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := cfg.Keys.TouchAPIKey(tctx, id); err != nil {
			logger.Warn("api_key_touch_failed", "key_id", id, "error", err)
		}
	}(matched.ID)

	return authCtx, ""
}

// extractCredential reads "Authorization: Bearer <credential>" or, for API
// keys, "X-API-Key: <key>".
func extractCredential(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func logAuthFailure(logger *slog.Logger, r *http.Request, reason string) {
	logger.Warn("authentication_failed",
		slog.String("reason", reason),
		slog.String("ip", getClientIP(r)),
		slog.String("endpoint", r.Method+" "+r.URL.Path),
		slog.String("request_id", GetRequestID(r.Context())),
	)
}

// writeAuthError uses one message for every failure to prevent enumeration.
func writeAuthError(w http.ResponseWriter) {
	dto.Error(w, http.StatusUnauthorized, dto.CodeUnauthorized, "Invalid or missing credentials")
}
