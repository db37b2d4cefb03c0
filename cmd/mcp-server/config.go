package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/siteflow/server/internal/client"
	"github.com/siteflow/server/internal/config"
	"github.com/siteflow/server/internal/mcp"
)

type mcpConfig struct {
	Name      string
	Version   string
	ServerURL string
	Origin    string
	Token     string
	Email     string
	Password  string
	Transport mcp.TransportConfig
	Logging   config.LoggingConfig
}

// loadConfig reads the environment:
//   - SITEFLOW_URL: API server (default http://localhost:3000)
//   - SITEFLOW_TOKEN: bearer token; falls back to the `server todo login` file
//   - SITEFLOW_EMAIL, SITEFLOW_PASSWORD: sign in at start when no token is set
//   - SITEFLOW_ORIGIN: Origin header to send, for servers that require one
//   - MCP_TRANSPORT (stdio, sse, http), HOST, PORT
//   - LOG_LEVEL, LOG_FORMAT
func loadConfig() (mcpConfig, error) {
	transport, err := mcp.ParseTransport(os.Getenv("MCP_TRANSPORT"))
	if err != nil {
		return mcpConfig{}, err
	}

	port := mcp.DefaultPort
	if raw := os.Getenv("PORT"); raw != "" {
		port, err = strconv.Atoi(raw)
		if err != nil || port < 1 || port > 65535 {
			return mcpConfig{}, fmt.Errorf("invalid PORT value: %s (must be between 1 and 65535)", raw)
		}
	}

	token := os.Getenv("SITEFLOW_TOKEN")
	if token == "" {
		if path, err := client.DefaultTokenPath(); err == nil {
			token, err = client.LoadToken(path)
			if err != nil {
				return mcpConfig{}, err
			}
		}
	}

	return mcpConfig{
		Name:      getEnv("MCP_SERVER_NAME", "Siteflow Todos"),
		Version:   getEnv("MCP_SERVER_VERSION", "1.0.0"),
		ServerURL: getEnv("SITEFLOW_URL", "http://localhost:3000"),
		Origin:    os.Getenv("SITEFLOW_ORIGIN"),
		Token:     token,
		Email:     os.Getenv("SITEFLOW_EMAIL"),
		Password:  os.Getenv("SITEFLOW_PASSWORD"),
		Transport: mcp.TransportConfig{
			Type: transport,
			Host: getEnv("HOST", "0.0.0.0"),
			Port: port,
		},
		Logging: config.LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
