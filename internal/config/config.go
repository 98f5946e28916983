// Package config assembles frozen settings for the daemon from defaults,
// environment variables, and CLI flag overrides.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// JWTConfig holds JWT authentication settings.
type JWTConfig struct {
	Enabled       bool
	Secret        string
	Issuer        string
	Audience      string
	LeewaySeconds int
	ExpireSeconds int
	AdminSecret   string
}

// Config is the central configuration struct for the script daemon.
type Config struct {
	APIPrefix        string
	ScriptsPath      string
	StateDir         string
	LogsDir          string
	Host             string
	Port             int
	Interpreter      string
	TerminateTimeout time.Duration
	JWT              JWTConfig
}

// DefaultConfig returns a Config with the defaults named in the environment
// variable table.
func DefaultConfig() *Config {
	return &Config{
		APIPrefix:        "/v1",
		ScriptsPath:      "",
		StateDir:         ".quant-script-api",
		LogsDir:          "",
		Host:             "127.0.0.1",
		Port:             8000,
		Interpreter:      "python3",
		TerminateTimeout: 10 * time.Second,
		JWT: JWTConfig{
			Enabled:       false,
			Issuer:        "quant-script-api",
			Audience:      "quant-internal",
			LeewaySeconds: 30,
			ExpireSeconds: 3600,
		},
	}
}

// LoadFromEnv applies environment variable overrides to cfg. Unset variables
// leave the existing value (default or flag-applied) untouched.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("SCRIPT_API_PREFIX"); v != "" {
		cfg.APIPrefix = v
	}
	if v := os.Getenv("SCRIPT_SCRIPTS_PATH"); v != "" {
		cfg.ScriptsPath = v
	} else if v := os.Getenv("SCRIPTS_PATH"); v != "" {
		cfg.ScriptsPath = v
	}
	if v := os.Getenv("SCRIPT_STATE_DIR"); v != "" {
		cfg.StateDir = v
	}
	if v := os.Getenv("SCRIPT_LOGS_DIR"); v != "" {
		cfg.LogsDir = v
	}
	if v := os.Getenv("SCRIPT_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("SCRIPT_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("SCRIPT_INTERPRETER"); v != "" {
		cfg.Interpreter = v
	}
	if v := os.Getenv("SCRIPT_JWT_AUTH"); v != "" {
		cfg.JWT.Enabled = parseBool(v)
	}
	if v := os.Getenv("SCRIPT_JWT_SECRET"); v != "" {
		cfg.JWT.Secret = v
	} else if v := os.Getenv("SCRIPT_JWT_SECRETE"); v != "" {
		// common typo
		cfg.JWT.Secret = v
	}
	if v := os.Getenv("SCRIPT_JWT_ISS"); v != "" {
		cfg.JWT.Issuer = v
	}
	if v := os.Getenv("SCRIPT_JWT_AUD"); v != "" {
		cfg.JWT.Audience = v
	}
	if v := os.Getenv("SCRIPT_JWT_LEEWAY_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.JWT.LeewaySeconds = n
		}
	}
	if v := os.Getenv("SCRIPT_JWT_EXPIRE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.JWT.ExpireSeconds = n
		}
	}
	if v := os.Getenv("SCRIPT_JWT_ADMIN_SECRET"); v != "" {
		cfg.JWT.AdminSecret = v
	} else if v := os.Getenv("SCRIPT_JWT_ADMIN_SECRETE"); v != "" {
		// common typo
		cfg.JWT.AdminSecret = v
	}
	if v := os.Getenv("SCRIPT_TERMINATE_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			if n < 1 {
				n = 1
			}
			cfg.TerminateTimeout = time.Duration(n) * time.Second
		}
	}

	if cfg.LogsDir == "" {
		cfg.LogsDir = cfg.StateDir + "/logs"
	}
}

// parseBool parses the bool conventions recognized by the environment
// variable table: 1, true, yes, y, on (case-insensitive).
func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}
