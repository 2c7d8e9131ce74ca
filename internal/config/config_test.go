package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "APP_ENV", "AUTH_CHANNEL", "DATABASE_URL", "SESSION_SECRET", "SESSION_ISSUER",
		"SESSION_COOKIE_NAME", "SESSION_COOKIE_SECURE", "LOGIN_PATH", "AUTH_BASE_PATH",
		"CORS_ALLOWED_ORIGINS", "LOG_LEVEL", "LOG_FORMAT", "SESSION_TTL_MINUTES",
		"SESSION_REFRESH_MINUTES", "BACKEND_TIMEOUT_SECONDS", "API_BASE_URL",
		"DEV_API_BASE_URL", "STAGING_API_BASE_URL", "PROD_API_BASE_URL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("DEV_API_BASE_URL", "http://localhost:9090/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, EnvDevelopment, cfg.AppEnv)
	assert.Equal(t, "http://localhost:9090", cfg.APIBaseURL)
	assert.Equal(t, "ADMIN_WEB", cfg.Channel)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, time.Hour, cfg.SessionRefreshAge)
	assert.Equal(t, "/login", cfg.LoginPath)
	assert.Equal(t, "/api/auth", cfg.AuthBasePath)
	assert.False(t, cfg.CookieSecure)
	assert.Empty(t, cfg.CORSOrigins)
	assert.Equal(t, ":8080", cfg.HTTPAddress())
	assert.Equal(t, "console", cfg.LogFormat)
}

func TestLogFormatDefaultsPerEnvironment(t *testing.T) {
	tests := []struct {
		env      string
		explicit string
		want     string
	}{
		{env: "development", want: "console"},
		{env: "staging", want: "json"},
		{env: "production", want: "json"},
		{env: "development", explicit: "json", want: "json"},
		{env: "production", explicit: "console", want: "console"},
	}
	for _, tt := range tests {
		t.Run(tt.env+"/"+tt.explicit, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("SESSION_SECRET", "s3cret")
			t.Setenv("API_BASE_URL", "http://localhost:9090")
			t.Setenv("APP_ENV", tt.env)
			t.Setenv("LOG_FORMAT", tt.explicit)

			cfg, err := Load()
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.LogFormat)
		})
	}
}

func TestLoadProductionUsesProdBaseAndSecureCookie(t *testing.T) {
	clearEnv(t)
	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("APP_ENV", "production")
	t.Setenv("DEV_API_BASE_URL", "http://dev")
	t.Setenv("PROD_API_BASE_URL", "https://api.rdbs.example")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://admin.rdbs.example, ,https://ops.rdbs.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://api.rdbs.example", cfg.APIBaseURL)
	assert.True(t, cfg.CookieSecure)
	assert.Equal(t, []string{"https://admin.rdbs.example", "https://ops.rdbs.example"}, cfg.CORSOrigins)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing secret", env: map[string]string{"API_BASE_URL": "http://x"}},
		{name: "missing base url", env: map[string]string{"SESSION_SECRET": "s"}},
		{name: "unknown env", env: map[string]string{"SESSION_SECRET": "s", "APP_ENV": "qa"}},
		{name: "refresh not shorter than ttl", env: map[string]string{
			"SESSION_SECRET": "s", "API_BASE_URL": "http://x",
			"SESSION_TTL_MINUTES": "30", "SESSION_REFRESH_MINUTES": "30",
		}},
		{name: "login path under auth base", env: map[string]string{
			"SESSION_SECRET": "s", "API_BASE_URL": "http://x", "LOGIN_PATH": "/api/auth/signin",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
