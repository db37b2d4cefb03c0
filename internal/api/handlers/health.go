package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/siteflow/server/internal/storage"
	"github.com/siteflow/server/internal/storage/postgres"
)

// HealthCheck is the body of the detailed health report.
type HealthCheck struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	GitCommit string                 `json:"git_commit"`
	Dialect   string                 `json:"dialect"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

type CheckResult struct {
	Status    string         `json:"status"`
	Message   string         `json:"message,omitempty"`
	LatencyMs int64          `json:"latency_ms,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

const (
	checkPass = "pass"
	checkWarn = "warn"
	checkFail = "fail"

	checkTimeout = 2 * time.Second
)

type HealthChecker struct {
	store       storage.Store
	databaseURL string
	jobsEnabled bool
	version     string
	gitCommit   string
}

// NewHealthChecker reports on store. jobsEnabled adds the river queue check,
// which only applies to postgres stores.
func NewHealthChecker(store storage.Store, databaseURL string, jobsEnabled bool, version, gitCommit string) *HealthChecker {
	return &HealthChecker{
		store:       store,
		databaseURL: databaseURL,
		jobsEnabled: jobsEnabled,
		version:     version,
		gitCommit:   gitCommit,
	}
}

// Health runs every check and answers 503 if any of them fails.
func (h *HealthChecker) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			respondHealth(w, http.StatusServiceUnavailable, "shutting_down")
			return
		default:
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := map[string]CheckResult{
			"database":   h.checkDatabase(ctx),
			"migrations": h.checkMigrations(),
		}
		if pg, ok := h.store.(*postgres.Store); ok && h.jobsEnabled {
			checks["job_queue"] = checkJobQueue(ctx, pg)
		}

		overall := "healthy"
		statusCode := http.StatusOK
		for _, check := range checks {
			if check.Status == checkFail {
				overall = "unhealthy"
				statusCode = http.StatusServiceUnavailable
				break
			}
			if check.Status == checkWarn {
				overall = "degraded"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(HealthCheck{
			Status:    overall,
			Version:   h.version,
			GitCommit: h.gitCommit,
			Dialect:   h.store.Dialect(),
			Checks:    checks,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func (h *HealthChecker) checkDatabase(ctx context.Context) CheckResult {
	start := time.Now()
	dbCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := h.store.Ping(dbCtx); err != nil {
		message := "Database ping failed"
		if dbCtx.Err() == context.DeadlineExceeded {
			message = "Database ping timed out after 2 seconds"
		}
		return CheckResult{
			Status:    checkFail,
			Message:   message,
			LatencyMs: time.Since(start).Milliseconds(),
			Details:   map[string]any{"error": err.Error()},
		}
	}

	result := CheckResult{
		Status:    checkPass,
		Message:   h.store.Dialect() + " connection successful",
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if pg, ok := h.store.(*postgres.Store); ok {
		stats := pg.Pool().Stat()
		result.Details = map[string]any{
			"max_connections":      stats.MaxConns(),
			"total_connections":    stats.TotalConns(),
			"idle_connections":     stats.IdleConns(),
			"acquired_connections": stats.AcquiredConns(),
		}
	}
	return result
}

func (h *HealthChecker) checkMigrations() CheckResult {
	start := time.Now()
	version, dirty, err := storage.MigrationVersion(h.store, h.databaseURL)
	latency := time.Since(start).Milliseconds()

	switch {
	case err != nil:
		return CheckResult{
			Status:    checkFail,
			Message:   "Failed to read migration version",
			LatencyMs: latency,
			Details:   map[string]any{"error": err.Error()},
		}
	case dirty:
		return CheckResult{
			Status:    checkFail,
			Message:   "Database in dirty migration state - manual intervention required",
			LatencyMs: latency,
			Details:   map[string]any{"version": version, "dirty": true},
		}
	case version == 0:
		return CheckResult{
			Status:    checkFail,
			Message:   "No migrations applied",
			LatencyMs: latency,
			Details:   map[string]any{"remediation": "Run: server migrate up"},
		}
	}
	return CheckResult{
		Status:    checkPass,
		Message:   fmt.Sprintf("Migrations applied (version %d)", version),
		LatencyMs: latency,
		Details:   map[string]any{"version": version, "dirty": false},
	}
}

func checkJobQueue(ctx context.Context, pg *postgres.Store) CheckResult {
	start := time.Now()
	jobCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var tableExists bool
	err := pg.Pool().QueryRow(jobCtx, `SELECT EXISTS (
		SELECT FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = 'river_job'
	)`).Scan(&tableExists)
	if err != nil {
		return CheckResult{
			Status:    checkFail,
			Message:   "Failed to check job queue table",
			LatencyMs: time.Since(start).Milliseconds(),
			Details:   map[string]any{"error": err.Error()},
		}
	}
	if !tableExists {
		return CheckResult{
			Status:    checkWarn,
			Message:   "River job queue table not found",
			LatencyMs: time.Since(start).Milliseconds(),
		}
	}

	var activeJobs int64
	err = pg.Pool().QueryRow(jobCtx, `SELECT COUNT(*) FROM river_job WHERE state = ANY($1)`,
		[]string{"available", "running"}).Scan(&activeJobs)
	if err != nil {
		return CheckResult{
			Status:    checkFail,
			Message:   "Failed to query job queue",
			LatencyMs: time.Since(start).Milliseconds(),
			Details:   map[string]any{"error": err.Error()},
		}
	}
	return CheckResult{
		Status:    checkPass,
		Message:   "River job queue operational",
		LatencyMs: time.Since(start).Milliseconds(),
		Details:   map[string]any{"active_jobs": activeJobs},
	}
}

// Healthz is the liveness probe; it never touches the store.
func Healthz() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondHealth(w, http.StatusOK, "ok")
	})
}

// Readyz answers 503 until the store answers a ping.
func Readyz(store storage.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			respondHealth(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		respondHealth(w, http.StatusOK, "ready")
	})
}

type healthResponse struct {
	Status string `json:"status"`
}

func respondHealth(w http.ResponseWriter, status int, value string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(healthResponse{Status: value})
}
