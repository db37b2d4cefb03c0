package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "12345678901234567890123456789012"

// clearEnv blanks every variable fromEnv reads so the host environment does
// not leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ENVIRONMENT", "SERVER_HOST", "SERVER_PORT", "OPS_PORT",
		"DATABASE_URL", "DATABASE_MAX_CONNECTIONS", "DATABASE_AUTO_MIGRATE",
		"BETTER_AUTH_SECRET", "BETTER_AUTH_URL", "SESSION_TTL_HOURS",
		"SESSION_UPDATE_AGE_HOURS", "SESSION_COOKIE_NAME", "CORS_ORIGIN",
		"AUTH_BASE_PATH", "RPC_BASE_PATH", "API_BASE_PATH", "DOCS_BASE_PATH",
		"RATE_LIMIT_AUTH", "TRUSTED_PROXY_CIDRS", "LOG_LEVEL", "LOG_FORMAT",
		"TRACING_ENABLED", "TRACING_EXPORTER", "TRACING_SERVICE_NAME",
		"OTLP_ENDPOINT", "TRACING_SAMPLE_RATE", "JOBS_ENABLED",
		"SESSION_CLEANUP_INTERVAL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "sqlite::memory:")
	t.Setenv("BETTER_AUTH_SECRET", "dev-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 9091, cfg.Server.OpsPort)
	assert.Equal(t, "/api/auth", cfg.Paths.Auth)
	assert.Equal(t, "/rpc", cfg.Paths.RPC)
	assert.Equal(t, "/api", cfg.Paths.API)
	assert.Equal(t, "/docs", cfg.Paths.Docs)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, 24*time.Hour, cfg.Auth.SessionUpdateAge)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("BETTER_AUTH_SECRET", "dev-secret")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoad_RequiresSecret(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "sqlite::memory:")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BETTER_AUTH_SECRET")
}

func TestLoad_Production(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name: "short secret",
			env: map[string]string{
				"BETTER_AUTH_SECRET": "short",
				"CORS_ORIGIN":        "https://app.example.com",
			},
			wantErr: "at least 32",
		},
		{
			name: "missing cors origin",
			env: map[string]string{
				"BETTER_AUTH_SECRET": testSecret,
			},
			wantErr: "CORS_ORIGIN",
		},
		{
			name: "relative cors origin",
			env: map[string]string{
				"BETTER_AUTH_SECRET": testSecret,
				"CORS_ORIGIN":        "app.example.com",
			},
			wantErr: "CORS_ORIGIN",
		},
		{
			name: "valid",
			env: map[string]string{
				"BETTER_AUTH_SECRET": testSecret,
				"CORS_ORIGIN":        "https://app.example.com",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("ENVIRONMENT", EnvProduction)
			t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/db")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.False(t, cfg.Database.AutoMigrate, "auto migrate is off by default in production")
			assert.False(t, cfg.IsDevelopment())
		})
	}
}

func TestLoad_SessionWindow(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "sqlite::memory:")
	t.Setenv("BETTER_AUTH_SECRET", "dev-secret")
	t.Setenv("SESSION_TTL_HOURS", "2")
	t.Setenv("SESSION_UPDATE_AGE_HOURS", "3")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SESSION_UPDATE_AGE_HOURS")

	t.Setenv("SESSION_UPDATE_AGE_HOURS", "1")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, time.Hour, cfg.Auth.SessionUpdateAge)
}

func TestLoad_BasePaths(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "sqlite::memory:")
	t.Setenv("BETTER_AUTH_SECRET", "dev-secret")

	t.Setenv("RPC_BASE_PATH", "rpc")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RPC_BASE_PATH")

	t.Setenv("RPC_BASE_PATH", "/rpc/")
	_, err = Load()
	require.Error(t, err)

	t.Setenv("RPC_BASE_PATH", "/v1/rpc")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/v1/rpc", cfg.Paths.RPC)
}

func TestTrustedOrigins(t *testing.T) {
	cfg := Defaults()
	cfg.CORS.Origin = "https://app.example.com"
	cfg.Auth.BaseURL = "https://api.example.com/some/path"
	assert.Equal(t, []string{"https://app.example.com", "https://api.example.com"}, cfg.TrustedOrigins())

	cfg.Auth.BaseURL = "https://app.example.com"
	assert.Equal(t, []string{"https://app.example.com"}, cfg.TrustedOrigins())

	cfg.CORS.Origin = ""
	cfg.Auth.BaseURL = "http://localhost:3000"
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.TrustedOrigins())
}

func TestRedacted(t *testing.T) {
	cfg := Defaults()
	cfg.Auth.Secret = "super-secret-value"
	cfg.Database.URL = "postgres://app:hunter2@db:5432/siteflow"

	out := cfg.Redacted()
	assert.Equal(t, "[redacted]", out.Auth.Secret)
	assert.NotContains(t, out.Database.URL, "hunter2")
	assert.Contains(t, out.Database.URL, "app:")
	assert.Equal(t, "super-secret-value", cfg.Auth.Secret, "original must be untouched")
}

func TestLoadFile(t *testing.T) {
	yamlBody := `
environment: test
database:
  url: "sqlite::memory:"
auth:
  secret: file-secret
  session_ttl: 48h
cors:
  origin: https://app.example.com
logging:
  level: debug
`
	tomlBody := `
environment = "test"

[database]
url = "sqlite::memory:"

[auth]
secret = "file-secret"
session_ttl = "48h"

[cors]
origin = "https://app.example.com"

[logging]
level = "debug"
`
	for name, body := range map[string]string{"siteflow.yaml": yamlBody, "siteflow.toml": tomlBody} {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

			cfg, err := LoadFile(path)
			require.NoError(t, err)
			assert.Equal(t, EnvTest, cfg.Environment)
			assert.Equal(t, "file-secret", cfg.Auth.Secret)
			assert.Equal(t, 48*time.Hour, cfg.Auth.SessionTTL)
			assert.Equal(t, "https://app.example.com", cfg.CORS.Origin)
			assert.Equal(t, "debug", cfg.Logging.Level)
			assert.Equal(t, 3000, cfg.Server.Port, "unset keys keep defaults")
		})
	}
}

func TestLoadFile_EnvOverrides(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "siteflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  url: \"sqlite::memory:\"\nauth:\n  secret: file-secret\n"), 0o600))
	t.Setenv("BETTER_AUTH_SECRET", "env-secret")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.Auth.Secret)
}

func TestLoadFile_Errors(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	ini := filepath.Join(dir, "siteflow.ini")
	require.NoError(t, os.WriteFile(ini, []byte("x=1"), 0o600))
	_, err = LoadFile(ini)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("auth:\n  session_ttl: forever\n"), 0o600))
	_, err = LoadFile(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.session_ttl")

	unquoted := filepath.Join(dir, "unquoted.yaml")
	require.NoError(t, os.WriteFile(unquoted, []byte("database:\n  url: sqlite::memory:\n"), 0o600))
	_, err = LoadFile(unquoted)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quote values")
}
