package middleware

import (
	"net/http"

	"github.com/solarvest/platform/internal/auth"
	"github.com/solarvest/platform/internal/handler/dto"
	"github.com/solarvest/platform/internal/model"
)

// RequireScope returns middleware that enforces scope requirements.
// Must be applied after Auth. Having ANY of the listed scopes is sufficient
// and admin grants everything.
func RequireScope(required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := auth.AuthFromContext(r.Context())
			if authCtx == nil {
				dto.Error(w, http.StatusUnauthorized, dto.CodeUnauthorized, "Authentication required")
				return
			}

			for _, req := range required {
				if authCtx.HasScope(req) {
					next.ServeHTTP(w, r)
					return
				}
			}
			if len(required) == 0 && authCtx.HasScope(model.ScopeAdmin) {
				next.ServeHTTP(w, r)
				return
			}

			scope := model.ScopeAdmin
			if len(required) > 0 {
				scope = required[0]
			}
			dto.Error(w, http.StatusForbidden, dto.CodeForbidden, "Insufficient permissions. Required scope: "+scope)
		})
	}
}

// RequireRead is a convenience middleware for read scope.
func RequireRead() func(http.Handler) http.Handler {
	return RequireScope(model.ScopeRead)
}

// RequireWrite is a convenience middleware for write scope.
func RequireWrite() func(http.Handler) http.Handler {
	return RequireScope(model.ScopeWrite)
}

// RequireCRM guards CRM and ticket writes: crm or general write scope.
func RequireCRM() func(http.Handler) http.Handler {
	return RequireScope(model.ScopeCRM, model.ScopeWrite)
}

// RequireAdmin is a convenience middleware for admin scope.
func RequireAdmin() func(http.Handler) http.Handler {
	return RequireScope(model.ScopeAdmin)
}

// RequireExport guards scheduled and ad-hoc exports.
func RequireExport() func(http.Handler) http.Handler {
	return RequireScope(model.ScopeExport)
}

// RequireUser rejects API keys on routes that act on a signed-in user.
func RequireUser() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := auth.AuthFromContext(r.Context())
			if authCtx == nil {
				dto.Error(w, http.StatusUnauthorized, dto.CodeUnauthorized, "Authentication required")
				return
			}
			if authCtx.KeyID != "" {
				dto.Error(w, http.StatusForbidden, dto.CodeForbidden, "This endpoint requires a user session")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
