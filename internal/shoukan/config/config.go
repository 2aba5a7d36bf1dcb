// Package config loads Shoukan's settings.
//
// Sources, later ones winning: built-in defaults, an optional YAML file
// (path from SHOUKAN_CONFIG), then environment variables. A .env file in the
// working directory is loaded into the environment first.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/bdobrica/Shoukan/common/environment"
	"github.com/bdobrica/Shoukan/common/redact"
	"github.com/bdobrica/Shoukan/internal/shoukan/observability"
	"github.com/bdobrica/Shoukan/internal/shoukan/provisioning"
)

// PathEnv names the variable holding the YAML file path.
const PathEnv = "SHOUKAN_CONFIG"

// DefaultContextTTL is how long an idle conversation is kept.
const DefaultContextTTL = 24 * time.Hour

// DefaultRateLimit is the per-user message allowance per minute.
const DefaultRateLimit = 20

// Matrix holds the Matrix channel settings.
type Matrix struct {
	Homeserver  string   `yaml:"homeserver"`
	UserID      string   `yaml:"user_id"`
	AccessToken string   `yaml:"access_token"`
	Rooms       []string `yaml:"rooms"`
	// AuditRoom receives provisioning notices. Optional.
	AuditRoom string `yaml:"audit_room"`
}

// Provisioning holds backend settings.
type Provisioning struct {
	ResourceGroup  string `yaml:"resource_group"`
	Location       string `yaml:"location"`
	SubscriptionID string `yaml:"subscription_id"`
	// SimulatedLatency delays every simulated deployment.
	SimulatedLatency time.Duration `yaml:"simulated_latency"`
	BreakerFailures  int           `yaml:"breaker_failures"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`

	// EnableDocker routes container instances to the local Docker Engine.
	EnableDocker  bool   `yaml:"enable_docker"`
	DockerNetwork string `yaml:"docker_network"`
}

// Log holds logging settings.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// File, when set, receives logs with size-based rotation.
	File string `yaml:"file"`
}

// Config is the complete application configuration.
type Config struct {
	Matrix       Matrix        `yaml:"matrix"`
	DatabasePath string        `yaml:"database_path"`
	HTTPAddr     string        `yaml:"http_addr"`
	ContextTTL   time.Duration `yaml:"context_ttl"`
	// AllowedUsers may talk to the bot; empty allows everyone.
	AllowedUsers []string `yaml:"allowed_users"`
	// AdminUsers may also read history and audit entries.
	AdminUsers []string `yaml:"admin_users"`
	// RateLimit caps messages per user per minute. 0 disables the limit.
	RateLimit    int          `yaml:"rate_limit"`
	Provisioning Provisioning `yaml:"provisioning"`
	// Console serves one local conversation on stdin/stdout instead of Matrix.
	Console bool `yaml:"console"`
	Log     Log  `yaml:"log"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		DatabasePath: "./shoukan.db",
		HTTPAddr:     ":8080",
		ContextTTL:   DefaultContextTTL,
		RateLimit:    DefaultRateLimit,
		Provisioning: Provisioning{
			ResourceGroup:   provisioning.DefaultResourceGroup,
			Location:        provisioning.DefaultLocation,
			BreakerFailures: provisioning.DefaultBreakerFailures,
			BreakerCooldown: provisioning.DefaultBreakerCooldown,
			DockerNetwork:   "shoukan",
		},
		Log: Log{Level: "info", Format: "text"},
	}
}

// Load reads .env, the YAML file at path (or $SHOUKAN_CONFIG when path is
// empty) and the environment, then validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path == "" {
		path = os.Getenv(PathEnv)
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := cfg.decodeYAML(b); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(environment.New()); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeYAML overlays b on c. Unknown keys are rejected.
func (c *Config) decodeYAML(b []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv(env *environment.Reader) error {
	env.String("MATRIX_HOMESERVER", &c.Matrix.Homeserver)
	env.String("MATRIX_USER_ID", &c.Matrix.UserID)
	env.String("MATRIX_ACCESS_TOKEN", &c.Matrix.AccessToken)
	env.List("MATRIX_ROOMS", &c.Matrix.Rooms)
	env.String("MATRIX_AUDIT_ROOM", &c.Matrix.AuditRoom)

	env.String("DATABASE_PATH", &c.DatabasePath)
	env.String("HTTP_ADDR", &c.HTTPAddr)
	env.Duration("CONTEXT_TTL", &c.ContextTTL)
	env.List("ALLOWED_USERS", &c.AllowedUsers)
	env.List("ADMIN_USERS", &c.AdminUsers)
	env.Int("RATE_LIMIT", &c.RateLimit)

	env.String("DEFAULT_RESOURCE_GROUP", &c.Provisioning.ResourceGroup)
	env.String("DEFAULT_LOCATION", &c.Provisioning.Location)
	env.String("SUBSCRIPTION_ID", &c.Provisioning.SubscriptionID)
	env.Duration("SIMULATED_LATENCY", &c.Provisioning.SimulatedLatency)
	env.Int("BREAKER_FAILURES", &c.Provisioning.BreakerFailures)
	env.Duration("BREAKER_COOLDOWN", &c.Provisioning.BreakerCooldown)
	env.Bool("ENABLE_DOCKER", &c.Provisioning.EnableDocker)
	env.String("DOCKER_NETWORK", &c.Provisioning.DockerNetwork)

	env.Bool("CONSOLE", &c.Console)
	env.String("LOG_LEVEL", &c.Log.Level)
	env.String("LOG_FORMAT", &c.Log.Format)
	env.String("LOG_FILE", &c.Log.File)
	return env.Err()
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	if !c.Console {
		if c.Matrix.Homeserver == "" {
			errs = append(errs, errors.New("MATRIX_HOMESERVER is required"))
		}
		if c.Matrix.UserID == "" {
			errs = append(errs, errors.New("MATRIX_USER_ID is required"))
		}
		if c.Matrix.AccessToken == "" {
			errs = append(errs, errors.New("MATRIX_ACCESS_TOKEN is required"))
		}
		if len(c.Matrix.Rooms) == 0 {
			errs = append(errs, errors.New("MATRIX_ROOMS is required"))
		}
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("DATABASE_PATH must not be empty"))
	}
	if c.ContextTTL <= 0 {
		errs = append(errs, fmt.Errorf("CONTEXT_TTL must be positive, got %s", c.ContextTTL))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT must not be negative, got %d", c.RateLimit))
	}
	if c.Provisioning.BreakerFailures <= 0 {
		errs = append(errs, fmt.Errorf("BREAKER_FAILURES must be positive, got %d", c.Provisioning.BreakerFailures))
	}
	if c.Provisioning.SimulatedLatency < 0 {
		errs = append(errs, errors.New("SIMULATED_LATENCY must not be negative"))
	}
	if _, err := observability.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// LogValues returns the settings as loggable key/value pairs with secrets
// masked.
func (c *Config) LogValues() []any {
	m := redact.Map(map[string]any{
		"matrix_homeserver":   c.Matrix.Homeserver,
		"matrix_user_id":      c.Matrix.UserID,
		"matrix_access_token": c.Matrix.AccessToken,
		"matrix_rooms":        strings.Join(c.Matrix.Rooms, ","),
		"database_path":       c.DatabasePath,
		"http_addr":           c.HTTPAddr,
		"context_ttl":         c.ContextTTL.String(),
		"resource_group":      c.Provisioning.ResourceGroup,
		"location":            c.Provisioning.Location,
		"docker":              c.Provisioning.EnableDocker,
		"console":             c.Console,
		"rate_limit":          c.RateLimit,
	})
	keys := []string{
		"matrix_homeserver", "matrix_user_id", "matrix_access_token", "matrix_rooms",
		"database_path", "http_addr", "context_ttl", "resource_group", "location",
		"docker", "console", "rate_limit",
	}
	out := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		out = append(out, k, m[k])
	}
	return out
}
