package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Config holds runtime configuration sourced from env vars.
type Config struct {
	Port        string
	AppEnv      string
	APIBaseURL  string
	Channel     string
	DatabaseURL string
	CORSOrigins []string

	SessionSecret     string
	SessionIssuer     string
	SessionTTL        time.Duration
	SessionRefreshAge time.Duration
	CookieName        string
	CookieSecure      bool
	LoginPath         string
	AuthBasePath      string

	BackendTimeout time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment and performs minimal validation.
func Load() (Config, error) {
	cfg := Config{
		Port:          fallback(os.Getenv("PORT"), "8080"),
		AppEnv:        strings.ToLower(fallback(os.Getenv("APP_ENV"), EnvDevelopment)),
		Channel:       fallback(os.Getenv("AUTH_CHANNEL"), "ADMIN_WEB"),
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SessionSecret: strings.TrimSpace(os.Getenv("SESSION_SECRET")),
		SessionIssuer: fallback(os.Getenv("SESSION_ISSUER"), "rdbs-admin"),
		CookieName:    fallback(os.Getenv("SESSION_COOKIE_NAME"), "rdbs.session-token"),
		LoginPath:     fallback(os.Getenv("LOGIN_PATH"), "/login"),
		AuthBasePath:  strings.TrimSuffix(fallback(os.Getenv("AUTH_BASE_PATH"), "/api/auth"), "/"),
		CORSOrigins:   parseCSV(os.Getenv("CORS_ALLOWED_ORIGINS")),
		LogLevel:      fallback(os.Getenv("LOG_LEVEL"), "info"),
	}
	cfg.LogFormat = fallback(os.Getenv("LOG_FORMAT"), defaultLogFormat(cfg.AppEnv))

	cfg.SessionTTL = minutes(os.Getenv("SESSION_TTL_MINUTES"), 24*time.Hour)
	cfg.SessionRefreshAge = minutes(os.Getenv("SESSION_REFRESH_MINUTES"), time.Hour)
	cfg.BackendTimeout = seconds(os.Getenv("BACKEND_TIMEOUT_SECONDS"), 15*time.Second)
	cfg.CookieSecure = parseBool(os.Getenv("SESSION_COOKIE_SECURE"), cfg.AppEnv == EnvProduction)

	base, err := resolveBaseURL(cfg.AppEnv)
	if err != nil {
		return Config{}, err
	}
	cfg.APIBaseURL = base

	if cfg.SessionSecret == "" {
		return Config{}, errors.New("SESSION_SECRET is required")
	}
	if cfg.SessionRefreshAge >= cfg.SessionTTL {
		return Config{}, fmt.Errorf("SESSION_REFRESH_MINUTES (%s) must be shorter than SESSION_TTL_MINUTES (%s)", cfg.SessionRefreshAge, cfg.SessionTTL)
	}
	if !strings.HasPrefix(cfg.LoginPath, "/") {
		return Config{}, errors.New("LOGIN_PATH must be an absolute path")
	}
	if strings.HasPrefix(cfg.LoginPath, cfg.AuthBasePath+"/") {
		return Config{}, errors.New("LOGIN_PATH must not live under AUTH_BASE_PATH")
	}

	return cfg, nil
}

// HTTPAddress returns the host:port pair for the HTTP server to bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Development reports whether the service runs with developer defaults.
func (c Config) Development() bool {
	return c.AppEnv == EnvDevelopment
}

func defaultLogFormat(env string) string {
	if env == EnvDevelopment {
		return "console"
	}
	return "json"
}

func resolveBaseURL(env string) (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("API_BASE_URL")); explicit != "" {
		return strings.TrimSuffix(explicit, "/"), nil
	}
	var key string
	switch env {
	case EnvDevelopment:
		key = "DEV_API_BASE_URL"
	case EnvStaging:
		key = "STAGING_API_BASE_URL"
	case EnvProduction:
		key = "PROD_API_BASE_URL"
	default:
		return "", fmt.Errorf("unknown APP_ENV %q", env)
	}
	base := strings.TrimSpace(os.Getenv(key))
	if base == "" {
		return "", fmt.Errorf("API_BASE_URL or %s is required", key)
	}
	return strings.TrimSuffix(base, "/"), nil
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.TrimSpace(value)
}

func minutes(value string, def time.Duration) time.Duration {
	if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && n > 0 {
		return time.Duration(n) * time.Minute
	}
	return def
}

func seconds(value string, def time.Duration) time.Duration {
	if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return def
}

func parseBool(value string, def bool) bool {
	if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
		return b
	}
	return def
}

func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	var out []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
