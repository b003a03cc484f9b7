package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORS(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		origins    []string
		origin     string
		method     string
		wantStatus int
		wantOrigin string
	}{
		{"nothing configured", nil, "https://admin.solarvest.io", http.MethodGet, http.StatusOK, ""},
		{"exact match", []string{"https://admin.solarvest.io"}, "https://admin.solarvest.io", http.MethodGet, http.StatusOK, "https://admin.solarvest.io"},
		{"case insensitive", []string{"HTTPS://ADMIN.SOLARVEST.IO"}, "https://admin.solarvest.io", http.MethodGet, http.StatusOK, "https://admin.solarvest.io"},
		{"subdomain pattern", []string{"*.solarvest.io"}, "https://ops.solarvest.io", http.MethodGet, http.StatusOK, "https://ops.solarvest.io"},
		{"pattern needs subdomain", []string{"*.solarvest.io"}, "https://evilsolarvest.io", http.MethodGet, http.StatusOK, ""},
		{"preflight from other origin", []string{"https://admin.solarvest.io"}, "https://evil.example", http.MethodOptions, http.StatusForbidden, ""},
		{"preflight allowed", []string{"https://admin.solarvest.io"}, "https://admin.solarvest.io", http.MethodOptions, http.StatusNoContent, "https://admin.solarvest.io"},
		{"same origin", []string{"https://admin.solarvest.io"}, "", http.MethodGet, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultCORSConfig()
			cfg.AllowedOrigins = tt.origins

			req := httptest.NewRequest(tt.method, "/api/investors", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.method == http.MethodOptions {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()
			CORS(cfg)(okHandler()).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
		})
	}
}

func TestCORSPreflightHeaders(t *testing.T) {
	t.Parallel()
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"https://admin.solarvest.io"}

	req := httptest.NewRequest(http.MethodOptions, "/api/exports", nil)
	req.Header.Set("Origin", "https://admin.solarvest.io")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	CORS(cfg)(okHandler()).ServeHTTP(rec, req)

	for _, h := range []string{"Access-Control-Allow-Methods", "Access-Control-Allow-Headers", "Access-Control-Max-Age"} {
		if rec.Header().Get(h) == "" {
			t.Errorf("%s not set on preflight", h)
		}
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), "X-API-Key") {
		t.Error("expected X-API-Key to be allowed")
	}
}

func TestSecurity(t *testing.T) {
	t.Parallel()
	tests := []struct {
		dev    bool
		header string
		want   string
	}{
		{false, "X-Content-Type-Options", "nosniff"},
		{false, "X-Frame-Options", "DENY"},
		{false, "Cache-Control", "no-store"},
		{false, "Strict-Transport-Security", "max-age=31536000; includeSubDomains"},
		{true, "Strict-Transport-Security", ""},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		Security(tt.dev)(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if got := rec.Header().Get(tt.header); got != tt.want {
			t.Errorf("dev=%v %s = %q, want %q", tt.dev, tt.header, got, tt.want)
		}
	}
}

func TestMaxBodySize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name          string
		limit         int64
		contentLength int64
		body          string
		wantStatus    int
	}{
		{"small body", 1024, 10, "small body", http.StatusOK},
		{"declared too large", 10, 100, strings.Repeat("x", 100), http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			req.ContentLength = tt.contentLength
			rec := httptest.NewRecorder()
			MaxBodySize(tt.limit)(okHandler()).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
