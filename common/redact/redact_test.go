package redact_test

import (
	"testing"

	"github.com/bdobrica/Shoukan/common/redact"
)

func TestString(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		secrets []string
		want    string
	}{
		{"single", "Authorization: Bearer syt_abc123 (sync)", []string{"syt_abc123"}, "Authorization: Bearer [REDACTED] (sync)"},
		{"several", "pw=hunter2secret tok=tok_live_xxx", []string{"hunter2secret", "tok_live_xxx"}, "pw=[REDACTED] tok=[REDACTED]"},
		{"short ignored", "abc token", []string{"abc"}, "abc token"},
		{"empty ignored", "nothing here", []string{""}, "nothing here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := redact.String(tt.in, tt.secrets...); got != tt.want {
				t.Errorf("String = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMask(t *testing.T) {
	if redact.Mask("") != "" {
		t.Error("empty value should stay empty")
	}
	if redact.Mask("syt_abc") != redact.Placeholder {
		t.Error("value not masked")
	}
}

func TestMap(t *testing.T) {
	m := map[string]any{
		"user_id":      "@shoukan:example.com",
		"access_token": "syt_123",
		"count":        42,
		"matrix": map[string]any{
			"homeserver":   "https://matrix.example.com",
			"access_token": "syt_456",
		},
	}
	out := redact.Map(m)

	if out["user_id"] != "@shoukan:example.com" || out["count"] != 42 {
		t.Errorf("plain values changed: %v", out)
	}
	if out["access_token"] != redact.Placeholder {
		t.Errorf("access_token = %v", out["access_token"])
	}
	nested := out["matrix"].(map[string]any)
	if nested["access_token"] != redact.Placeholder || nested["homeserver"] != "https://matrix.example.com" {
		t.Errorf("nested = %v", nested)
	}
	if m["access_token"] != "syt_123" {
		t.Error("Map mutated its input")
	}
}

func TestIsSensitiveKey(t *testing.T) {
	for key, want := range map[string]bool{
		"MATRIX_ACCESS_TOKEN": true,
		"db_password":         true,
		"client_secret":       true,
		"resource_group":      false,
		"subscription_id":     false,
	} {
		if got := redact.IsSensitiveKey(key); got != want {
			t.Errorf("IsSensitiveKey(%q) = %v, want %v", key, got, want)
		}
	}
}
