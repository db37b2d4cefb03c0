// Package mcp exposes the todo list to MCP clients as tools backed by the
// client data layer.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/siteflow/server/internal/api/middleware"
)

type TransportType string

const (
	// TransportStdio is for local agents that spawn the server.
	TransportStdio TransportType = "stdio"
	TransportSSE   TransportType = "sse"
	TransportHTTP  TransportType = "http"
)

const (
	DefaultTransport = TransportStdio
	DefaultPort      = 8080

	GracefulShutdownTimeout = 30 * time.Second
)

type TransportConfig struct {
	Type TransportType
	// Host and Port are ignored for stdio.
	Host string
	Port int
}

// ParseTransport validates a transport name; empty selects stdio.
func ParseTransport(name string) (TransportType, error) {
	switch t := TransportType(name); t {
	case "":
		return DefaultTransport, nil
	case TransportStdio, TransportSSE, TransportHTTP:
		return t, nil
	default:
		return "", fmt.Errorf("invalid transport %q (must be stdio, sse, or http)", name)
	}
}

func (c TransportConfig) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Serve runs srv on the configured transport until ctx is cancelled.
func Serve(ctx context.Context, srv *server.MCPServer, cfg TransportConfig, logger zerolog.Logger) error {
	switch cfg.Type {
	case TransportStdio:
		return serveStdio(ctx, srv, logger)
	case TransportSSE:
		return serveHTTP(ctx, server.NewSSEServer(srv), cfg, logger)
	case TransportHTTP:
		return serveHTTP(ctx, server.NewStreamableHTTPServer(srv), cfg, logger)
	default:
		return fmt.Errorf("unsupported transport type: %s", cfg.Type)
	}
}

// serveStdio never logs to stdout; it carries the protocol.
func serveStdio(ctx context.Context, srv *server.MCPServer, logger zerolog.Logger) error {
	logger.Info().Str("transport", "stdio").Msg("mcp server started")

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ServeStdio(srv)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("context cancelled, stdio server stopping")
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("stdio server: %w", err)
		}
		return nil
	}
}

func serveHTTP(ctx context.Context, handler http.Handler, cfg TransportConfig, logger zerolog.Logger) error {
	httpServer := &http.Server{
		Addr:              cfg.addr(),
		Handler:           WrapHandler(handler, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Info().Str("transport", string(cfg.Type)).Str("addr", httpServer.Addr).Msg("mcp server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), GracefulShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("mcp http shutdown: %w", err)
		}
		logger.Info().Msg("mcp server shutdown complete")
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("mcp http server: %w", err)
		}
		return nil
	}
}

// WrapHandler adds request ids and access logging to an MCP HTTP handler.
func WrapHandler(handler http.Handler, logger zerolog.Logger) http.Handler {
	return middleware.Chain(handler,
		middleware.CorrelationID(logger),
		middleware.AccessLog,
	)
}
