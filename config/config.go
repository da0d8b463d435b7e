// Package config loads runtime settings from the environment and an optional
// .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Backend string

const (
	BackendSupabase Backend = "supabase"
	BackendPostgres Backend = "postgres"
)

// DefaultEnvFile is read when no env file is named. Its absence is not an
// error.
const DefaultEnvFile = ".env"

var ErrInvalid = errors.New("config: invalid configuration")

type Config struct {
	Backend Backend `env:"RECREO_BACKEND,default=supabase"`

	SupabaseURL        string `env:"SUPABASE_URL"`
	SupabaseAnonKey    string `env:"SUPABASE_ANON_KEY"`
	SupabaseStorageURL string `env:"SUPABASE_STORAGE_URL"`

	DatabaseURL string `env:"DATABASE_URL"`
	JWTSecret   string `env:"JWT_SECRET"`

	SessionPath string        `env:"SESSION_PATH,default=recreo-session.db"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT,default=30s"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text"`
}

// Load reads envFile (DefaultEnvFile when empty) into the process
// environment without overriding variables already set, then decodes the
// environment. A missing default file is ignored; a missing named file is
// an error.
func Load(envFile string) (Config, error) {
	path := envFile
	if path == "" {
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if envFile != "" || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("config: decode environment: %w", err)
	}
	cfg.Backend = Backend(strings.ToLower(strings.TrimSpace(string(cfg.Backend))))
	return cfg, nil
}

// Validate checks the settings the selected backend needs.
func (c Config) Validate() error {
	var problems []string

	switch c.Backend {
	case BackendSupabase:
		if c.SupabaseURL == "" {
			problems = append(problems, "SUPABASE_URL is required")
		} else if u, err := url.Parse(c.SupabaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			problems = append(problems, "SUPABASE_URL must be an absolute URL")
		}
		if c.SupabaseAnonKey == "" {
			problems = append(problems, "SUPABASE_ANON_KEY is required")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			problems = append(problems, "DATABASE_URL is required")
		}
		if len(c.JWTSecret) < 16 {
			problems = append(problems, "JWT_SECRET must be at least 16 characters")
		}
	default:
		problems = append(problems, fmt.Sprintf("RECREO_BACKEND %q is not one of supabase, postgres", c.Backend))
	}

	if c.SessionPath == "" {
		problems = append(problems, "SESSION_PATH is required")
	}
	if c.HTTPTimeout <= 0 {
		problems = append(problems, "HTTP_TIMEOUT must be positive")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, fmt.Sprintf("LOG_LEVEL %q is not a log level", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		problems = append(problems, fmt.Sprintf("LOG_FORMAT %q is not one of text, json", c.LogFormat))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// StorageBase is the public object URL prefix, derived from SUPABASE_URL
// unless SUPABASE_STORAGE_URL overrides it.
func (c Config) StorageBase() string {
	if c.SupabaseStorageURL != "" {
		return strings.TrimRight(c.SupabaseStorageURL, "/")
	}
	if c.SupabaseURL == "" {
		return ""
	}
	return strings.TrimRight(c.SupabaseURL, "/") + "/storage/v1/object/public"
}
