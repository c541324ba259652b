// Package config handles configuration loading for chartguard.
//
// # Overview
//
// Configuration is layered: built-in defaults, then an optional YAML or TOML
// file, then CHARTGUARD_* environment variables. The result is validated
// before it is returned.
//
// # Configuration File
//
// The format follows the file extension (.yaml, .yml or .toml). Values can
// reference environment variables:
//
//	database:
//	  path: "${CHARTGUARD_DATA_DIR}/chartguard.db"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	auth:
//	  unknown_user_delay: "1s"
//	session:
//	  lifetime: "8h"
//
// # Configuration Sections
//
//	database:
//	  path: "chartguard.db"
//
//	auth:
//	  max_attempts: 5          # failed logins before lockout
//	  lockout_minutes: 30
//	  min_password_length: 8
//	  unknown_user_delay: "1s" # fixed delay on unknown usernames
//
//	session:
//	  backend: "sqlite"        # or "redis"
//	  lifetime: "8h"           # idle lifetime
//	  redis:
//	    addr: "localhost:6379"
//	    db: 0
//
//	logging:
//	  level: "info"            # debug, info, warn, error
//	  format: "text"           # text or json
//
// # Environment Overrides
//
// Each setting has an override named after its path, for example
// CHARTGUARD_DATABASE_PATH, CHARTGUARD_AUTH_MAX_ATTEMPTS,
// CHARTGUARD_SESSION_BACKEND, CHARTGUARD_SESSION_REDIS_ADDR and
// CHARTGUARD_LOG_LEVEL. An override replaces the file value only when the
// variable is set.
package config
