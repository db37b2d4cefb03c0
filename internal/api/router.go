// Package api assembles the public HTTP surface: the auth endpoints, the RPC
// and REST procedure adapters and the docs, behind one middleware chain.
package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/siteflow/server/internal/api/handlers"
	"github.com/siteflow/server/internal/api/middleware"
	"github.com/siteflow/server/internal/api/problem"
	"github.com/siteflow/server/internal/api/rest"
	"github.com/siteflow/server/internal/api/rpc"
	"github.com/siteflow/server/internal/audit"
	"github.com/siteflow/server/internal/auth"
	"github.com/siteflow/server/internal/config"
	"github.com/siteflow/server/internal/domain/todos"
	"github.com/siteflow/server/internal/domain/users"
	"github.com/siteflow/server/internal/metrics"
	"github.com/siteflow/server/internal/procedure"
	"github.com/siteflow/server/internal/storage"
	"github.com/siteflow/server/internal/telemetry"
)

type Dependencies struct {
	Config  config.Config
	Store   storage.Store
	Logger  zerolog.Logger
	Version string
}

// Router is the public handler. Close releases the auth rate limiter.
type Router struct {
	handler http.Handler
	limiter *middleware.RateLimiter
	Users   *users.Service
	Todos   *procedure.Router
}

func NewRouter(deps Dependencies) (*Router, error) {
	cfg := deps.Config
	logger := deps.Logger

	cookies, bearer, err := auth.NewManagers(cfg.Auth.Secret, cfg.Auth.CookieName, cfg.Auth.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("auth keys: %w", err)
	}

	userSvc := users.NewService(deps.Store.Users(), users.Options{
		SessionTTL: cfg.Auth.SessionTTL,
		UpdateAge:  cfg.Auth.SessionUpdateAge,
	}, logger)
	gate := auth.NewGate(userSvc, cookies, bearer, cfg.TrustedOrigins())

	todoRouter := todos.NewRouter(todos.NewService(deps.Store.Todos(), logger))
	todoRouter.Use(telemetry.ProcedureInterceptor(), metrics.ProcedureInterceptor())

	docs, err := rest.NewDocs(OpenAPIInfo(cfg, deps.Version), todoRouter)
	if err != nil {
		return nil, err
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.AuthPerMinute, cfg.RateLimit.TrustedProxyCIDRs)
	expose := cfg.IsDevelopment()

	authHandler := handlers.NewAuthHandler(handlers.AuthHandlerConfig{
		Prefix:         cfg.Paths.Auth,
		Users:          userSvc,
		Gate:           gate,
		Cookies:        cookies,
		Bearer:         bearer,
		Limiter:        limiter,
		Audit:          audit.NewLogger(logger),
		ExposeInternal: expose,
	})

	d := &dispatcher{
		paths: cfg.Paths,
		auth:  authHandler,
		rpc:   rpc.NewHandler(cfg.Paths.RPC, gate, expose, todoRouter),
		rest:  rest.NewHandler(cfg.Paths.API, gate, expose, docs, todoRouter),
		docs:  docs,
	}

	handler := middleware.Chain(d,
		middleware.CorrelationID(logger),
		middleware.Tracing,
		metrics.HTTPMiddleware,
		middleware.AccessLog,
		middleware.SecurityHeaders(cfg.Environment == config.EnvProduction),
		middleware.CORS(cfg.CORS.Origin, logger),
		middleware.RequestSize(middleware.DefaultMaxBodySize),
	)

	return &Router{
		handler: handler,
		limiter: limiter,
		Users:   userSvc,
		Todos:   todoRouter,
	}, nil
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.handler.ServeHTTP(w, r)
}

func (rt *Router) Close() {
	rt.limiter.Stop()
}

// dispatcher routes by path prefix. The first matching stage answers; the
// RPC, REST and docs stages fall through when nothing under their prefix
// matches.
type dispatcher struct {
	paths config.PathsConfig
	auth  *handlers.AuthHandler
	rpc   *rpc.Handler
	rest  *rest.Handler
	docs  *rest.Docs
}

func (d *dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if underPrefix(path, d.paths.Auth) && (r.Method == http.MethodGet || r.Method == http.MethodPost) {
		d.auth.ServeHTTP(w, r)
		return
	}
	if underPrefix(path, d.paths.RPC) && d.rpc.Handle(w, r) {
		return
	}
	if underPrefix(path, d.paths.API) && d.rest.Handle(w, r) {
		return
	}
	if underPrefix(path, d.paths.Docs) && d.docs.HandlePrefix(w, r, d.paths.Docs) {
		return
	}
	if path == "/" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
		return
	}
	problem.NotFound(w, r)
}

func underPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
