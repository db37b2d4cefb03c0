package api

import (
	"net/http"

	"github.com/siteflow/server/internal/api/handlers"
	"github.com/siteflow/server/internal/metrics"
	"github.com/siteflow/server/internal/storage"
)

type BuildInfo struct {
	Version   string
	GitCommit string
	BuildDate string
}

// NewOpsRouter serves metrics, probes and build info. It is bound to its own
// port and never exposed through the public dispatcher.
func NewOpsRouter(store storage.Store, databaseURL string, jobsEnabled bool, build BuildInfo) http.Handler {
	checker := handlers.NewHealthChecker(store, databaseURL, jobsEnabled, build.Version, build.GitCommit)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())
	mux.Handle("GET /healthz", handlers.Healthz())
	mux.Handle("GET /readyz", handlers.Readyz(store))
	mux.Handle("GET /health", checker.Health())
	mux.Handle("GET /version", VersionHandler(build.Version, build.GitCommit, build.BuildDate))
	return mux
}
