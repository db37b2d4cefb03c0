package cmd

import (
	"os"
	"testing"
)

// clearConfigEnv unsets every variable config.Load reads so the host
// environment cannot leak into a test.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ENVIRONMENT", "SERVER_HOST", "SERVER_PORT", "OPS_PORT",
		"DATABASE_URL", "DATABASE_MAX_CONNECTIONS", "DATABASE_AUTO_MIGRATE",
		"BETTER_AUTH_SECRET", "BETTER_AUTH_URL", "SESSION_TTL_HOURS", "SESSION_UPDATE_AGE_HOURS", "SESSION_COOKIE_NAME",
		"CORS_ORIGIN", "AUTH_BASE_PATH", "RPC_BASE_PATH", "API_BASE_PATH", "DOCS_BASE_PATH",
		"RATE_LIMIT_AUTH", "TRUSTED_PROXY_CIDRS", "LOG_LEVEL", "LOG_FORMAT",
		"TRACING_ENABLED", "TRACING_EXPORTER", "TRACING_SERVICE_NAME", "OTLP_ENDPOINT", "TRACING_SAMPLE_RATE",
		"JOBS_ENABLED", "SESSION_CLEANUP_INTERVAL",
		"SITEFLOW_URL", "SITEFLOW_TOKEN",
	} {
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("unset %s: %v", key, err)
		}
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
