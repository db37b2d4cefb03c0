package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/siteflow/server/internal/client"
	"github.com/siteflow/server/internal/config"
	"github.com/siteflow/server/internal/mcp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// stdout carries the stdio protocol.
	logger := config.NewStderrLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.New(cfg.ServerURL, client.Options{
		Token:  cfg.Token,
		Origin: cfg.Origin,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	if cfg.Token == "" && cfg.Email != "" {
		if _, err := c.SignIn(ctx, cfg.Email, cfg.Password); err != nil {
			return err
		}
		logger.Info().Str("email", cfg.Email).Msg("signed in")
	}

	srv := mcp.NewServer(mcp.Config{Name: cfg.Name, Version: cfg.Version}, c, logger)
	logger.Info().
		Str("transport", string(cfg.Transport.Type)).
		Str("server_url", cfg.ServerURL).
		Msg("starting mcp server")

	if err := mcp.Serve(ctx, srv.MCPServer(), cfg.Transport, logger); err != nil {
		return err
	}
	logger.Info().Msg("shutdown complete")
	return nil
}
