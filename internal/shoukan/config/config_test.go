package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bdobrica/Shoukan/common/environment"
)

const sampleYAML = `
matrix:
  homeserver: https://matrix.example.com
  user_id: "@shoukan:example.com"
  access_token: syt_from_file
  rooms: ["!ops:example.com"]
database_path: /var/lib/shoukan/shoukan.db
context_ttl: 12h
admin_users: ["@root:example.com"]
provisioning:
  resource_group: file-rg
  simulated_latency: 250ms
  enable_docker: true
log:
  level: debug
  format: json
`

func TestDecodeYAML(t *testing.T) {
	cfg := Default()
	if err := cfg.decodeYAML([]byte(sampleYAML)); err != nil {
		t.Fatalf("decodeYAML: %v", err)
	}
	if cfg.Matrix.Homeserver != "https://matrix.example.com" || len(cfg.Matrix.Rooms) != 1 {
		t.Errorf("matrix = %+v", cfg.Matrix)
	}
	if cfg.ContextTTL != 12*time.Hour || cfg.Provisioning.SimulatedLatency != 250*time.Millisecond {
		t.Errorf("durations: ttl=%v latency=%v", cfg.ContextTTL, cfg.Provisioning.SimulatedLatency)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Provisioning.Location != "East US" || cfg.HTTPAddr != ":8080" {
		t.Errorf("defaults lost: %+v", cfg)
	}
	if !cfg.Provisioning.EnableDocker || cfg.Log.Format != "json" {
		t.Errorf("provisioning/log = %+v %+v", cfg.Provisioning, cfg.Log)
	}
}

func TestDecodeYAML_RejectsUnknownKeys(t *testing.T) {
	cfg := Default()
	err := cfg.decodeYAML([]byte("matrix:\n  homeserverr: x\n"))
	if err == nil || !strings.Contains(err.Error(), "homeserverr") {
		t.Errorf("err = %v", err)
	}
}

func TestDecodeYAML_EmptyFile(t *testing.T) {
	cfg := Default()
	if err := cfg.decodeYAML(nil); err != nil {
		t.Errorf("empty file: %v", err)
	}
}

func TestApplyEnv_OverridesFile(t *testing.T) {
	cfg := Default()
	if err := cfg.decodeYAML([]byte(sampleYAML)); err != nil {
		t.Fatal(err)
	}
	err := cfg.applyEnv(environment.FromMap(map[string]string{
		"MATRIX_ACCESS_TOKEN":    "syt_from_env",
		"MATRIX_ROOMS":           "!a:example.com, !b:example.com",
		"CONTEXT_TTL":            "30m",
		"ALLOWED_USERS":          "@alice:example.com",
		"DEFAULT_RESOURCE_GROUP": "env-rg",
		"BREAKER_FAILURES":       "3",
		"CONSOLE":                "1",
		"RATE_LIMIT":             "0",
	}))
	if err != nil {
		t.Fatalf("applyEnv: %v", err)
	}
	if cfg.Matrix.AccessToken != "syt_from_env" || len(cfg.Matrix.Rooms) != 2 {
		t.Errorf("matrix = %+v", cfg.Matrix)
	}
	if cfg.ContextTTL != 30*time.Minute || cfg.Provisioning.ResourceGroup != "env-rg" || cfg.Provisioning.BreakerFailures != 3 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.RateLimit != 0 {
		t.Errorf("RateLimit = %d, want 0", cfg.RateLimit)
	}
	if !cfg.Console || len(cfg.AllowedUsers) != 1 || cfg.AdminUsers[0] != "@root:example.com" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestApplyEnv_ReportsBadValues(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(environment.FromMap(map[string]string{"CONTEXT_TTL": "one day"}))
	if err == nil || !strings.Contains(err.Error(), "CONTEXT_TTL") {
		t.Errorf("err = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   []string
	}{
		{
			name:   "matrix settings required",
			mutate: func(c *Config) {},
			want:   []string{"MATRIX_HOMESERVER", "MATRIX_USER_ID", "MATRIX_ACCESS_TOKEN", "MATRIX_ROOMS"},
		},
		{
			name:   "console needs no matrix",
			mutate: func(c *Config) { c.Console = true },
		},
		{
			name: "bad values",
			mutate: func(c *Config) {
				c.Console = true
				c.ContextTTL = 0
				c.Provisioning.BreakerFailures = 0
				c.Log.Level = "chatty"
				c.Log.Format = "xml"
				c.RateLimit = -1
			},
			want: []string{"CONTEXT_TTL", "BREAKER_FAILURES", "LOG_LEVEL", "LOG_FORMAT", "RATE_LIMIT"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if len(tt.want) == 0 {
				if err != nil {
					t.Errorf("Validate = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error %q does not mention %s", err, w)
				}
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shoukan.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(PathEnv, path)
	t.Setenv("HTTP_ADDR", "127.0.0.1:9090")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != "127.0.0.1:9090" || cfg.Matrix.UserID != "@shoukan:example.com" {
		t.Errorf("cfg = %+v", cfg)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestLogValues_MasksToken(t *testing.T) {
	cfg := Default()
	cfg.Matrix.AccessToken = "syt_secret_value"
	kv := cfg.LogValues()
	for i := 0; i < len(kv); i += 2 {
		if kv[i] == "matrix_access_token" && kv[i+1] != "[REDACTED]" {
			t.Errorf("token logged as %v", kv[i+1])
		}
		if s, ok := kv[i+1].(string); ok && strings.Contains(s, "syt_secret_value") {
			t.Errorf("%v leaks the token", kv[i])
		}
	}
}
