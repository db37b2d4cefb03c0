package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Auth        AuthConfig
	CORS        CORSConfig
	Paths       PathsConfig
	RateLimit   RateLimitConfig
	Logging     LoggingConfig
	Tracing     TracingConfig
	Jobs        JobsConfig
	Environment string
}

type ServerConfig struct {
	Host    string
	Port    int
	OpsPort int
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
	AutoMigrate    bool
}

type AuthConfig struct {
	Secret           string
	BaseURL          string
	SessionTTL       time.Duration
	SessionUpdateAge time.Duration
	CookieName       string
}

type CORSConfig struct {
	// Origin is the single trusted origin allowed credentialed cross-origin requests.
	Origin string
}

type PathsConfig struct {
	Auth string
	RPC  string
	API  string
	Docs string
}

type RateLimitConfig struct {
	AuthPerMinute     int
	TrustedProxyCIDRs []string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type TracingConfig struct {
	Enabled      bool
	Exporter     string
	ServiceName  string
	OTLPEndpoint string
	SampleRate   float64
}

type JobsConfig struct {
	Enabled                bool
	SessionCleanupInterval time.Duration
}

const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"

	minProductionSecretLength = 32
)

// Load reads configuration from environment variables.
func Load() (Config, error) {
	return fromEnv(Defaults())
}

// Defaults returns the configuration used when neither a config file nor the
// environment sets a value.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    3000,
			OpsPort: 9091,
		},
		Database: DatabaseConfig{
			MaxConnections: 10,
			AutoMigrate:    true,
		},
		Auth: AuthConfig{
			BaseURL:          "http://localhost:3000",
			SessionTTL:       7 * 24 * time.Hour,
			SessionUpdateAge: 24 * time.Hour,
			CookieName:       "siteflow.session_token",
		},
		Paths: PathsConfig{
			Auth: "/api/auth",
			RPC:  "/rpc",
			API:  "/api",
			Docs: "/docs",
		},
		RateLimit: RateLimitConfig{
			AuthPerMinute: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Exporter:    "stdout",
			ServiceName: "siteflow-server",
			SampleRate:  1.0,
		},
		Jobs: JobsConfig{
			Enabled:                true,
			SessionCleanupInterval: time.Hour,
		},
		Environment: EnvDevelopment,
	}
}

func fromEnv(base Config) (Config, error) {
	cfg := base

	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)

	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("SERVER_PORT", cfg.Server.Port)
	cfg.Server.OpsPort = getEnvInt("OPS_PORT", cfg.Server.OpsPort)

	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxConnections = getEnvInt("DATABASE_MAX_CONNECTIONS", cfg.Database.MaxConnections)
	autoMigrateDefault := cfg.Database.AutoMigrate && cfg.Environment != EnvProduction
	cfg.Database.AutoMigrate = getEnvBool("DATABASE_AUTO_MIGRATE", autoMigrateDefault)

	cfg.Auth.Secret = getEnv("BETTER_AUTH_SECRET", cfg.Auth.Secret)
	cfg.Auth.BaseURL = getEnv("BETTER_AUTH_URL", cfg.Auth.BaseURL)
	cfg.Auth.SessionTTL = getEnvHours("SESSION_TTL_HOURS", cfg.Auth.SessionTTL)
	cfg.Auth.SessionUpdateAge = getEnvHours("SESSION_UPDATE_AGE_HOURS", cfg.Auth.SessionUpdateAge)
	cfg.Auth.CookieName = getEnv("SESSION_COOKIE_NAME", cfg.Auth.CookieName)

	cfg.CORS.Origin = strings.TrimSpace(getEnv("CORS_ORIGIN", cfg.CORS.Origin))

	cfg.Paths.Auth = getEnv("AUTH_BASE_PATH", cfg.Paths.Auth)
	cfg.Paths.RPC = getEnv("RPC_BASE_PATH", cfg.Paths.RPC)
	cfg.Paths.API = getEnv("API_BASE_PATH", cfg.Paths.API)
	cfg.Paths.Docs = getEnv("DOCS_BASE_PATH", cfg.Paths.Docs)

	cfg.RateLimit.AuthPerMinute = getEnvInt("RATE_LIMIT_AUTH", cfg.RateLimit.AuthPerMinute)
	if cidrs := getEnv("TRUSTED_PROXY_CIDRS", ""); cidrs != "" {
		cfg.RateLimit.TrustedProxyCIDRs = splitList(cidrs)
	}

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)

	cfg.Tracing.Enabled = getEnvBool("TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Exporter = getEnv("TRACING_EXPORTER", cfg.Tracing.Exporter)
	cfg.Tracing.ServiceName = getEnv("TRACING_SERVICE_NAME", cfg.Tracing.ServiceName)
	cfg.Tracing.OTLPEndpoint = getEnv("OTLP_ENDPOINT", cfg.Tracing.OTLPEndpoint)
	cfg.Tracing.SampleRate = getEnvFloat("TRACING_SAMPLE_RATE", cfg.Tracing.SampleRate)

	cfg.Jobs.Enabled = getEnvBool("JOBS_ENABLED", cfg.Jobs.Enabled)
	cfg.Jobs.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", cfg.Jobs.SessionCleanupInterval)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required values and cross-field constraints.
func (c Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("BETTER_AUTH_SECRET is required")
	}
	if c.Environment == EnvProduction {
		if len(c.Auth.Secret) < minProductionSecretLength {
			return fmt.Errorf("BETTER_AUTH_SECRET must be at least %d characters in production", minProductionSecretLength)
		}
		if c.CORS.Origin == "" {
			return fmt.Errorf("CORS_ORIGIN is required in production")
		}
	}
	if c.CORS.Origin != "" {
		if _, err := originOf(c.CORS.Origin); err != nil {
			return fmt.Errorf("CORS_ORIGIN: %w", err)
		}
	}
	if _, err := originOf(c.Auth.BaseURL); err != nil {
		return fmt.Errorf("BETTER_AUTH_URL: %w", err)
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL_HOURS must be positive")
	}
	if c.Auth.SessionUpdateAge < 0 || c.Auth.SessionUpdateAge > c.Auth.SessionTTL {
		return fmt.Errorf("SESSION_UPDATE_AGE_HOURS must be between 0 and SESSION_TTL_HOURS")
	}
	for _, cidr := range c.RateLimit.TrustedProxyCIDRs {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("TRUSTED_PROXY_CIDRS: %w", err)
		}
	}
	for name, p := range map[string]string{
		"AUTH_BASE_PATH": c.Paths.Auth,
		"RPC_BASE_PATH":  c.Paths.RPC,
		"API_BASE_PATH":  c.Paths.API,
		"DOCS_BASE_PATH": c.Paths.Docs,
	} {
		if !strings.HasPrefix(p, "/") || p == "/" || strings.HasSuffix(p, "/") {
			return fmt.Errorf("%s must start with / and not end with /, got %q", name, p)
		}
	}
	return nil
}

// TrustedOrigins returns the origins allowed to make credentialed requests:
// the configured CORS origin and the origin the auth endpoints are served from.
func (c Config) TrustedOrigins() []string {
	origins := make([]string, 0, 2)
	if c.CORS.Origin != "" {
		origins = append(origins, c.CORS.Origin)
	}
	if own, err := originOf(c.Auth.BaseURL); err == nil && own != c.CORS.Origin {
		origins = append(origins, own)
	}
	return origins
}

// IsDevelopment reports whether error details may be exposed to clients.
func (c Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment || c.Environment == EnvTest
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	out := c
	if out.Auth.Secret != "" {
		out.Auth.Secret = "[redacted]"
	}
	if u, err := url.Parse(out.Database.URL); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "redacted")
			out.Database.URL = u.String()
		}
	}
	return out
}

func originOf(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%q is not an absolute URL", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvHours(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return time.Duration(parsed) * time.Hour
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
