package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the subset of Config that may be set from a file.
// Durations are written as Go duration strings ("168h").
type fileConfig struct {
	Environment string `yaml:"environment" toml:"environment"`
	Server      struct {
		Host    string `yaml:"host" toml:"host"`
		Port    int    `yaml:"port" toml:"port"`
		OpsPort *int   `yaml:"ops_port" toml:"ops_port"`
	} `yaml:"server" toml:"server"`
	Database struct {
		URL            string `yaml:"url" toml:"url"`
		MaxConnections int    `yaml:"max_connections" toml:"max_connections"`
		AutoMigrate    *bool  `yaml:"auto_migrate" toml:"auto_migrate"`
	} `yaml:"database" toml:"database"`
	Auth struct {
		Secret           string `yaml:"secret" toml:"secret"`
		BaseURL          string `yaml:"base_url" toml:"base_url"`
		SessionTTL       string `yaml:"session_ttl" toml:"session_ttl"`
		SessionUpdateAge string `yaml:"session_update_age" toml:"session_update_age"`
		CookieName       string `yaml:"cookie_name" toml:"cookie_name"`
	} `yaml:"auth" toml:"auth"`
	CORS struct {
		Origin string `yaml:"origin" toml:"origin"`
	} `yaml:"cors" toml:"cors"`
	Paths struct {
		Auth string `yaml:"auth" toml:"auth"`
		RPC  string `yaml:"rpc" toml:"rpc"`
		API  string `yaml:"api" toml:"api"`
		Docs string `yaml:"docs" toml:"docs"`
	} `yaml:"paths" toml:"paths"`
	RateLimit struct {
		AuthPerMinute     int      `yaml:"auth_per_minute" toml:"auth_per_minute"`
		TrustedProxyCIDRs []string `yaml:"trusted_proxy_cidrs" toml:"trusted_proxy_cidrs"`
	} `yaml:"rate_limit" toml:"rate_limit"`
	Logging struct {
		Level  string `yaml:"level" toml:"level"`
		Format string `yaml:"format" toml:"format"`
	} `yaml:"logging" toml:"logging"`
	Tracing struct {
		Enabled      *bool    `yaml:"enabled" toml:"enabled"`
		Exporter     string   `yaml:"exporter" toml:"exporter"`
		ServiceName  string   `yaml:"service_name" toml:"service_name"`
		OTLPEndpoint string   `yaml:"otlp_endpoint" toml:"otlp_endpoint"`
		SampleRate   *float64 `yaml:"sample_rate" toml:"sample_rate"`
	} `yaml:"tracing" toml:"tracing"`
	Jobs struct {
		Enabled                *bool  `yaml:"enabled" toml:"enabled"`
		SessionCleanupInterval string `yaml:"session_cleanup_interval" toml:"session_cleanup_interval"`
	} `yaml:"jobs" toml:"jobs"`
}

// LoadFile reads a YAML (.yaml, .yml) or TOML (.toml) file on top of the
// defaults and then applies environment variables, which take precedence.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return Config{}, fmt.Errorf("parse yaml config %s (quote values containing \": \" or ending in \":\"): %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &fc); err != nil {
			return Config{}, fmt.Errorf("parse toml config %s: %w", path, err)
		}
	default:
		return Config{}, fmt.Errorf("unsupported config file extension %q (use .yaml, .yml or .toml)", filepath.Ext(path))
	}

	base, err := fc.apply(Defaults())
	if err != nil {
		return Config{}, fmt.Errorf("config file %s: %w", path, err)
	}
	return fromEnv(base)
}

func (fc fileConfig) apply(cfg Config) (Config, error) {
	setString(&cfg.Environment, fc.Environment)

	setString(&cfg.Server.Host, fc.Server.Host)
	setInt(&cfg.Server.Port, fc.Server.Port)
	if fc.Server.OpsPort != nil {
		cfg.Server.OpsPort = *fc.Server.OpsPort
	}

	setString(&cfg.Database.URL, fc.Database.URL)
	setInt(&cfg.Database.MaxConnections, fc.Database.MaxConnections)
	if fc.Database.AutoMigrate != nil {
		cfg.Database.AutoMigrate = *fc.Database.AutoMigrate
	}

	setString(&cfg.Auth.Secret, fc.Auth.Secret)
	setString(&cfg.Auth.BaseURL, fc.Auth.BaseURL)
	setString(&cfg.Auth.CookieName, fc.Auth.CookieName)
	if err := setDuration(&cfg.Auth.SessionTTL, "auth.session_ttl", fc.Auth.SessionTTL); err != nil {
		return cfg, err
	}
	if err := setDuration(&cfg.Auth.SessionUpdateAge, "auth.session_update_age", fc.Auth.SessionUpdateAge); err != nil {
		return cfg, err
	}

	setString(&cfg.CORS.Origin, fc.CORS.Origin)

	setString(&cfg.Paths.Auth, fc.Paths.Auth)
	setString(&cfg.Paths.RPC, fc.Paths.RPC)
	setString(&cfg.Paths.API, fc.Paths.API)
	setString(&cfg.Paths.Docs, fc.Paths.Docs)

	setInt(&cfg.RateLimit.AuthPerMinute, fc.RateLimit.AuthPerMinute)
	if len(fc.RateLimit.TrustedProxyCIDRs) > 0 {
		cfg.RateLimit.TrustedProxyCIDRs = append([]string(nil), fc.RateLimit.TrustedProxyCIDRs...)
	}

	setString(&cfg.Logging.Level, fc.Logging.Level)
	setString(&cfg.Logging.Format, fc.Logging.Format)

	if fc.Tracing.Enabled != nil {
		cfg.Tracing.Enabled = *fc.Tracing.Enabled
	}
	setString(&cfg.Tracing.Exporter, fc.Tracing.Exporter)
	setString(&cfg.Tracing.ServiceName, fc.Tracing.ServiceName)
	setString(&cfg.Tracing.OTLPEndpoint, fc.Tracing.OTLPEndpoint)
	if fc.Tracing.SampleRate != nil {
		cfg.Tracing.SampleRate = *fc.Tracing.SampleRate
	}

	if fc.Jobs.Enabled != nil {
		cfg.Jobs.Enabled = *fc.Jobs.Enabled
	}
	if err := setDuration(&cfg.Jobs.SessionCleanupInterval, "jobs.session_cleanup_interval", fc.Jobs.SessionCleanupInterval); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func setInt(dst *int, value int) {
	if value != 0 {
		*dst = value
	}
}

func setDuration(dst *time.Duration, field, value string) error {
	if value == "" {
		return nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = parsed
	return nil
}
