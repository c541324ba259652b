// ABOUTME: Configuration loading and parsing for chartguard
// ABOUTME: Supports YAML or TOML files, ${VAR} expansion, duration parsing and CHARTGUARD_* overrides

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CHARTGUARD_"

// ErrUnsupportedFormat is returned for config files that are neither YAML nor TOML.
var ErrUnsupportedFormat = errors.New("unsupported config format")

// Config represents the complete chartguard configuration
type Config struct {
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Auth     AuthConfig     `yaml:"auth" toml:"auth"`
	Session  SessionConfig  `yaml:"session" toml:"session"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path" env:"DATABASE_PATH"`
}

// AuthConfig holds login and password policy
type AuthConfig struct {
	MaxAttempts       int `yaml:"max_attempts" toml:"max_attempts" env:"AUTH_MAX_ATTEMPTS"`
	LockoutMinutes    int `yaml:"lockout_minutes" toml:"lockout_minutes" env:"AUTH_LOCKOUT_MINUTES"`
	MinPasswordLength int `yaml:"min_password_length" toml:"min_password_length" env:"AUTH_MIN_PASSWORD_LENGTH"`

	UnknownUserDelay time.Duration `yaml:"-" toml:"-"`

	// Raw string value for unmarshaling
	UnknownUserDelayRaw string `yaml:"unknown_user_delay" toml:"unknown_user_delay" env:"AUTH_UNKNOWN_USER_DELAY"`
}

// SessionConfig holds session persistence configuration
type SessionConfig struct {
	Backend string      `yaml:"backend" toml:"backend" env:"SESSION_BACKEND"`
	Redis   RedisConfig `yaml:"redis" toml:"redis"`

	Lifetime time.Duration `yaml:"-" toml:"-"`

	// Raw string value for unmarshaling
	LifetimeRaw string `yaml:"lifetime" toml:"lifetime" env:"SESSION_LIFETIME"`
}

// RedisConfig holds the Redis session backend address
type RedisConfig struct {
	Addr string `yaml:"addr" toml:"addr" env:"SESSION_REDIS_ADDR"`
	DB   int    `yaml:"db" toml:"db" env:"SESSION_REDIS_DB"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" toml:"format" env:"LOG_FORMAT"`
}

// Default returns the configuration used when no file sets a value.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "chartguard.db"},
		Auth: AuthConfig{
			MaxAttempts:         5,
			LockoutMinutes:      30,
			MinPasswordLength:   8,
			UnknownUserDelayRaw: "1s",
		},
		Session: SessionConfig{
			Backend:     "sqlite",
			LifetimeRaw: "8h",
			Redis:       RedisConfig{Addr: "localhost:6379"},
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load builds a Config from defaults, then the file at path (if path is not
// empty), then CHARTGUARD_* environment variables. The file format follows
// its extension: .yaml, .yml or .toml.
func Load(ctx context.Context, path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(ctx, cfg, envconfig.OsLookuper()); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return fmt.Errorf("parsing config file: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return fmt.Errorf("parsing config file: %w", err)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	return nil
}

// applyEnv overlays variables found through l, each prefixed with EnvPrefix.
// Unset variables leave the current value alone.
func applyEnv(ctx context.Context, cfg *Config, l envconfig.Lookuper) error {
	return envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:           cfg,
		Lookuper:         envconfig.PrefixLookuper(EnvPrefix, l),
		DefaultOverwrite: true,
	})
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.MaxAttempts < 1 {
		return fmt.Errorf("auth.max_attempts must be at least 1")
	}
	if c.Auth.LockoutMinutes < 1 {
		return fmt.Errorf("auth.lockout_minutes must be at least 1")
	}
	if c.Auth.MinPasswordLength < 1 {
		return fmt.Errorf("auth.min_password_length must be at least 1")
	}
	if c.Auth.UnknownUserDelay < 0 {
		return fmt.Errorf("auth.unknown_user_delay must not be negative")
	}

	switch c.Session.Backend {
	case "sqlite":
	case "redis":
		if c.Session.Redis.Addr == "" {
			return fmt.Errorf("session.redis.addr is required when session.backend is redis")
		}
	default:
		return fmt.Errorf("session.backend must be sqlite or redis, got %q", c.Session.Backend)
	}
	if c.Session.Lifetime <= 0 {
		return fmt.Errorf("session.lifetime must be positive")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Auth.UnknownUserDelayRaw != "" {
		cfg.Auth.UnknownUserDelay, err = time.ParseDuration(cfg.Auth.UnknownUserDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing unknown_user_delay %q: %w", cfg.Auth.UnknownUserDelayRaw, err)
		}
	}

	if cfg.Session.LifetimeRaw != "" {
		cfg.Session.Lifetime, err = time.ParseDuration(cfg.Session.LifetimeRaw)
		if err != nil {
			return fmt.Errorf("parsing lifetime %q: %w", cfg.Session.LifetimeRaw, err)
		}
	}

	return nil
}
