package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerformHealthCheck(t *testing.T) {
	tests := []struct {
		name         string
		statusCode   int
		responseBody any
		wantStatus   string
		expectError  bool
	}{
		{
			name:         "healthy server",
			statusCode:   http.StatusOK,
			responseBody: HealthResponse{Status: "healthy", Checks: map[string]CheckResult{"database": {Status: "pass"}}},
			wantStatus:   "healthy",
		},
		{
			name:         "degraded server",
			statusCode:   http.StatusOK,
			responseBody: HealthResponse{Status: "degraded", Checks: map[string]CheckResult{"job_queue": {Status: "warn"}}},
			wantStatus:   "degraded",
		},
		{
			name:         "unhealthy server still reports checks",
			statusCode:   http.StatusServiceUnavailable,
			responseBody: HealthResponse{Status: "unhealthy", Checks: map[string]CheckResult{"database": {Status: "fail"}}},
			wantStatus:   "unhealthy",
		},
		{
			name:         "invalid body",
			statusCode:   http.StatusOK,
			responseBody: "not json",
			expectError:  true,
		},
		{
			name:        "unexpected status",
			statusCode:  http.StatusInternalServerError,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				if s, ok := tt.responseBody.(string); ok {
					_, _ = w.Write([]byte(s))
					return
				}
				_ = json.NewEncoder(w).Encode(tt.responseBody)
			}))
			defer srv.Close()

			health, err := performHealthCheck(t.Context(), srv.URL+"/health")
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, health.Status)
		})
	}
}

func TestHealthcheckCommand(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(HealthResponse{Status: "healthy"})
	}))
	defer healthy.Close()
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(HealthResponse{Status: "unhealthy", Checks: map[string]CheckResult{
			"database": {Status: "fail", Message: "connection refused"},
		}})
	}))
	defer failing.Close()

	output, err := execute(t, "", "healthcheck", "--url", healthy.URL)
	require.NoError(t, err)
	assert.Contains(t, output, "healthy")

	output, err = execute(t, "", "healthcheck", "--url", failing.URL)
	require.Error(t, err)
	assert.Contains(t, output, "database: fail connection refused")

	_, err = execute(t, "", "healthcheck", "--url", "http://127.0.0.1:1/health", "--timeout", "500ms")
	assert.Error(t, err)
}
