package cache

import (
	"strings"
	"testing"
)

func TestHashIP_Deterministic(t *testing.T) {
	t.Parallel()

	if hashIP("192.168.1.100") != hashIP("192.168.1.100") {
		t.Error("Same IP should produce same hash")
	}
}

func TestHashIP_Length(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ip   string
	}{
		{"IPv4", "192.168.1.1"},
		{"IPv6 localhost", "::1"},
		{"IPv6 full", "2001:0db8:85a3:0000:0000:8a2e:0370:7334"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := hashIP(tt.ip); len(got) != 16 {
				t.Errorf("hashIP(%q) length = %d, want 16", tt.ip, len(got))
			}
		})
	}
}

func TestHashIP_Different(t *testing.T) {
	t.Parallel()

	if hashIP("10.0.0.1") == hashIP("10.0.0.2") {
		t.Error("different IPs should produce different hashes")
	}
}

func TestKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		parts []string
		want  string
	}{
		{[]string{"auth", "abc"}, "sv:auth:abc"},
		{[]string{"rl", "sub", "key:01H"}, "sv:rl:sub:key:01H"},
		{[]string{"single"}, "sv:single"},
	}
	for _, tt := range tests {
		if got := key(tt.parts...); got != tt.want {
			t.Errorf("key(%v) = %q, want %q", tt.parts, got, tt.want)
		}
	}
}

func TestDashboardKey(t *testing.T) {
	t.Parallel()

	a := DashboardKey("t1", 0, "overview", map[string]string{"from": "2025-01-01", "to": "2025-02-01"})
	b := DashboardKey("t1", 0, "overview", map[string]string{"to": "2025-02-01", "from": "2025-01-01"})
	if a != b {
		t.Errorf("param order should not matter: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "sv:dash:t1:0:overview:") {
		t.Errorf("unexpected key layout: %s", a)
	}

	tests := []struct {
		name string
		key  string
	}{
		{"other tenant", DashboardKey("t2", 0, "overview", map[string]string{"from": "2025-01-01", "to": "2025-02-01"})},
		{"next generation", DashboardKey("t1", 1, "overview", map[string]string{"from": "2025-01-01", "to": "2025-02-01"})},
		{"other metric", DashboardKey("t1", 0, "crm", map[string]string{"from": "2025-01-01", "to": "2025-02-01"})},
		{"other params", DashboardKey("t1", 0, "overview", map[string]string{"from": "2025-01-02", "to": "2025-02-01"})},
	}
	for _, tt := range tests {
		if tt.key == a {
			t.Errorf("%s: key should differ", tt.name)
		}
	}
}
