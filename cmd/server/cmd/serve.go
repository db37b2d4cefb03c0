package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/siteflow/server/internal/api"
	"github.com/siteflow/server/internal/config"
	"github.com/siteflow/server/internal/domain/users"
	"github.com/siteflow/server/internal/jobs"
	"github.com/siteflow/server/internal/metrics"
	"github.com/siteflow/server/internal/storage"
	"github.com/siteflow/server/internal/storage/postgres"
	"github.com/siteflow/server/internal/storage/sqlite"
	"github.com/siteflow/server/internal/telemetry"
)

const (
	shutdownTimeout   = 10 * time.Second
	dbCollectInterval = 15 * time.Second
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var (
		serverHost string
		serverPort int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server and begin accepting API requests.

The server will:
- Load configuration from environment variables (or --config file if provided)
- Open the database and apply migrations when DATABASE_AUTO_MIGRATE is set
- Serve the auth, RPC, REST and docs surfaces on SERVER_PORT
- Serve metrics and health probes on OPS_PORT
- Run the session cleanup job when the database is PostgreSQL
- Handle graceful shutdown on SIGINT/SIGTERM

Examples:
  # Start with default configuration (from env vars)
  server serve

  # Start on a specific host and port
  server serve --host 127.0.0.1 --port 9090

  # Start with custom config file
  server serve --config /etc/siteflow/config.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if serverHost != "" {
				cfg.Server.Host = serverHost
			}
			if serverPort != 0 {
				cfg.Server.Port = serverPort
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&serverHost, "host", "", "server host address (default: 0.0.0.0)")
	cmd.Flags().IntVar(&serverPort, "port", 0, "server port (default: 3000)")
	return cmd
}

// runServer serves until ctx is cancelled, then drains both listeners and
// the job workers.
func runServer(ctx context.Context, cfg config.Config) error {
	logger := config.NewLogger(cfg.Logging)
	logger.Info().Str("environment", cfg.Environment).Msg("starting siteflow server")

	metrics.Init(Version, GitCommit, BuildDate)

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error().Err(err).Msg("tracing shutdown error")
		}
	}()

	openCtx, openCancel := context.WithTimeout(ctx, 30*time.Second)
	store, err := storage.Open(openCtx, cfg.Database)
	openCancel()
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer func() { _ = store.Close() }()
	logger.Info().Str("dialect", store.Dialect()).Bool("auto_migrate", cfg.Database.AutoMigrate).Msg("database ready")

	router, err := api.NewRouter(api.Dependencies{
		Config:  cfg,
		Store:   store,
		Logger:  logger,
		Version: Version,
	})
	if err != nil {
		return err
	}
	defer router.Close()

	var riverClient *river.Client[pgx.Tx]
	if pg, ok := store.(*postgres.Store); ok && cfg.Jobs.Enabled {
		riverClient, err = newJobClient(ctx, pg, router.Users, cfg)
		if err != nil {
			return err
		}
	} else if cfg.Jobs.Enabled {
		logger.Info().Msg("background jobs need PostgreSQL; run `server cleanup sessions` periodically instead")
	}

	g, gctx := errgroup.WithContext(ctx)

	switch s := store.(type) {
	case *postgres.Store:
		collector := metrics.NewDBCollector(s.Pool())
		g.Go(func() error {
			collector.Start(gctx, dbCollectInterval)
			return nil
		})
	case *sqlite.Store:
		if err := metrics.RegisterSQLStats(s.DB(), "sqlite"); err != nil {
			logger.Warn().Err(err).Msg("sqlite stats collector not registered")
		}
	}

	if riverClient != nil {
		if err := riverClient.Start(gctx); err != nil {
			return fmt.Errorf("river workers failed to start: %w", err)
		}
		logger.Info().Dur("interval", cfg.Jobs.SessionCleanupInterval).Msg("session cleanup job scheduled")
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := riverClient.Stop(stopCtx); err != nil {
				logger.Error().Err(err).Msg("river workers shutdown error")
			}
			return nil
		})
	}

	servers := []*http.Server{{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           router,
		ReadTimeout:       10 * time.Second, // Total time to read request
		WriteTimeout:      30 * time.Second, // Total time to write response
		ReadHeaderTimeout: 5 * time.Second,  // Time to read headers
		MaxHeaderBytes:    1 << 20,          // 1 MB max header size
	}}
	if cfg.Server.OpsPort > 0 {
		build := api.BuildInfo{Version: Version, GitCommit: GitCommit, BuildDate: BuildDate}
		servers = append(servers, &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.OpsPort)),
			Handler:           api.NewOpsRouter(store, cfg.Database.URL, riverClient != nil, build),
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	for _, srv := range servers {
		g.Go(func() error {
			logger.Info().Str("addr", srv.Addr).Msg("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Str("addr", srv.Addr).Msg("shutdown error")
				return err
			}
			return nil
		})
	}

	<-gctx.Done()
	logger.Info().Msg("shutting down")
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newJobClient migrates River's schema and builds a client running the
// session cleanup job. River logs through slog.
func newJobClient(ctx context.Context, store *postgres.Store, cleaner *users.Service, cfg config.Config) (*river.Client[pgx.Tx], error) {
	if err := jobs.Migrate(ctx, store.Pool()); err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if strings.EqualFold(cfg.Logging.Level, "debug") {
		level = slog.LevelDebug
	}
	slogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).With("component", "river")

	workers, err := jobs.NewWorkers(cleaner, slogger)
	if err != nil {
		return nil, err
	}
	hooks := []rivertype.Hook{metrics.NewRiverMetricsHook()}
	client, err := jobs.NewClient(store.Pool(), workers, slogger, hooks, jobs.NewPeriodicJobs(cfg.Jobs.SessionCleanupInterval))
	if err != nil {
		return nil, fmt.Errorf("create river client: %w", err)
	}
	return client, nil
}
