// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, overrides, and validation

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
database:
  path: "./test.db"

auth:
  max_attempts: 3
  lockout_minutes: 15
  min_password_length: 12
  unknown_user_delay: "500ms"

session:
  backend: "redis"
  lifetime: "2h"
  redis:
    addr: "redis:6379"
    db: 2

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Auth.MaxAttempts != 3 {
		t.Errorf("Auth.MaxAttempts = %d, want 3", cfg.Auth.MaxAttempts)
	}
	if cfg.Auth.LockoutMinutes != 15 {
		t.Errorf("Auth.LockoutMinutes = %d, want 15", cfg.Auth.LockoutMinutes)
	}
	if cfg.Auth.MinPasswordLength != 12 {
		t.Errorf("Auth.MinPasswordLength = %d, want 12", cfg.Auth.MinPasswordLength)
	}
	if cfg.Auth.UnknownUserDelay != 500*time.Millisecond {
		t.Errorf("Auth.UnknownUserDelay = %v, want %v", cfg.Auth.UnknownUserDelay, 500*time.Millisecond)
	}
	if cfg.Session.Backend != "redis" {
		t.Errorf("Session.Backend = %q, want %q", cfg.Session.Backend, "redis")
	}
	if cfg.Session.Lifetime != 2*time.Hour {
		t.Errorf("Session.Lifetime = %v, want %v", cfg.Session.Lifetime, 2*time.Hour)
	}
	if cfg.Session.Redis.Addr != "redis:6379" || cfg.Session.Redis.DB != 2 {
		t.Errorf("Session.Redis = %+v, want redis:6379 db 2", cfg.Session.Redis)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want debug/json", cfg.Logging)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[database]
path = "/var/lib/chartguard/records.db"

[auth]
max_attempts = 4

[session]
lifetime = "30m"
`)

	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/var/lib/chartguard/records.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Auth.MaxAttempts != 4 {
		t.Errorf("Auth.MaxAttempts = %d, want 4", cfg.Auth.MaxAttempts)
	}
	if cfg.Session.Lifetime != 30*time.Minute {
		t.Errorf("Session.Lifetime = %v, want 30m", cfg.Session.Lifetime)
	}

	// unset keys keep their defaults
	if cfg.Auth.LockoutMinutes != 30 {
		t.Errorf("Auth.LockoutMinutes = %d, want default 30", cfg.Auth.LockoutMinutes)
	}
	if cfg.Session.Backend != "sqlite" {
		t.Errorf("Session.Backend = %q, want default sqlite", cfg.Session.Backend)
	}
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "chartguard.db" {
		t.Errorf("Database.Path = %q, want chartguard.db", cfg.Database.Path)
	}
	if cfg.Auth.UnknownUserDelay != time.Second {
		t.Errorf("Auth.UnknownUserDelay = %v, want 1s", cfg.Auth.UnknownUserDelay)
	}
	if cfg.Session.Lifetime != 8*time.Hour {
		t.Errorf("Session.Lifetime = %v, want 8h", cfg.Session.Lifetime)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_DATA_DIR", "/srv/data")

	path := writeConfig(t, "config.yml", `
database:
  path: "${TEST_DATA_DIR}/chartguard.db"
`)

	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/srv/data/chartguard.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/srv/data/chartguard.db")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "value")

	tests := []struct {
		in   string
		want string
	}{
		{"${TEST_VAR}", "value"},
		{"prefix-${TEST_VAR}-suffix", "prefix-value-suffix"},
		{"${TEST_UNSET_VAR_XYZ}", ""},
		{"no vars", "no vars"},
	}
	for _, tt := range tests {
		if got := expandEnvVars(tt.in); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CHARTGUARD_DATABASE_PATH", "/override.db")
	t.Setenv("CHARTGUARD_AUTH_MAX_ATTEMPTS", "9")
	t.Setenv("CHARTGUARD_SESSION_LIFETIME", "45m")
	t.Setenv("CHARTGUARD_LOG_LEVEL", "warn")

	path := writeConfig(t, "config.yaml", `
database:
  path: "./file.db"
auth:
  max_attempts: 3
  lockout_minutes: 10
`)

	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/override.db" {
		t.Errorf("Database.Path = %q, want /override.db", cfg.Database.Path)
	}
	if cfg.Auth.MaxAttempts != 9 {
		t.Errorf("Auth.MaxAttempts = %d, want 9", cfg.Auth.MaxAttempts)
	}
	if cfg.Auth.LockoutMinutes != 10 {
		t.Errorf("Auth.LockoutMinutes = %d, want file value 10", cfg.Auth.LockoutMinutes)
	}
	if cfg.Session.Lifetime != 45*time.Minute {
		t.Errorf("Session.Lifetime = %v, want 45m", cfg.Session.Lifetime)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
}

func TestApplyEnv_Lookuper(t *testing.T) {
	cfg := Default()
	lookuper := envconfig.MapLookuper(map[string]string{
		"CHARTGUARD_SESSION_BACKEND":    "redis",
		"CHARTGUARD_SESSION_REDIS_ADDR": "cache:6380",
		"CHARTGUARD_SESSION_REDIS_DB":   "3",
		"SESSION_BACKEND":               "ignored-without-prefix",
	})

	if err := applyEnv(context.Background(), cfg, lookuper); err != nil {
		t.Fatalf("applyEnv() error = %v", err)
	}

	if cfg.Session.Backend != "redis" {
		t.Errorf("Session.Backend = %q, want redis", cfg.Session.Backend)
	}
	if cfg.Session.Redis.Addr != "cache:6380" || cfg.Session.Redis.DB != 3 {
		t.Errorf("Session.Redis = %+v, want cache:6380 db 3", cfg.Session.Redis)
	}
	if cfg.Database.Path != "chartguard.db" {
		t.Errorf("Database.Path = %q, want default kept", cfg.Database.Path)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"missing database path", "c.yaml", "database:\n  path: \"\"\n", "database.path is required"},
		{"bad duration", "c.yaml", "session:\n  lifetime: \"forever\"\n", "parsing lifetime"},
		{"zero lifetime", "c.yaml", "session:\n  lifetime: \"0s\"\n", "session.lifetime must be positive"},
		{"unknown backend", "c.yaml", "session:\n  backend: \"memcached\"\n", "session.backend must be sqlite or redis"},
		{"redis without addr", "c.yaml", "session:\n  backend: redis\n  redis:\n    addr: \"\"\n", "session.redis.addr is required"},
		{"zero attempts", "c.yaml", "auth:\n  max_attempts: 0\n", "auth.max_attempts must be at least 1"},
		{"bad level", "c.yaml", "logging:\n  level: verbose\n", "logging.level"},
		{"bad format", "c.yaml", "logging:\n  format: xml\n", "logging.format"},
		{"invalid yaml", "c.yaml", "database: [unclosed\n", "parsing config file"},
		{"invalid toml", "c.toml", "[database\n", "parsing config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.content)
			_, err := Load(context.Background(), path)
			if err == nil {
				t.Fatal("Load() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	path := writeConfig(t, "config.json", `{}`)

	_, err := Load(context.Background(), path)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Load() error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "reading config file") {
		t.Errorf("Load() error = %v, want reading error", err)
	}
}
