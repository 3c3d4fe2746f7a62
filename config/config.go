package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Pay2Wash   Pay2WashConfig   `yaml:"pay2wash"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are set.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// ServerConfig holds the metrics/API server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	// AllowedOrigins enables CORS on /api for these origins.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Pay2WashConfig holds the upstream site and poller settings.
type Pay2WashConfig struct {
	BaseURL           string        `yaml:"base_url"`
	Email             string        `yaml:"email"`
	Password          Password      `yaml:"password"`
	IntervalSeconds   int           `yaml:"interval_seconds"`
	Interval          time.Duration `yaml:"-"`
	TimeoutSeconds    int           `yaml:"timeout_seconds"`
	Timeout           time.Duration `yaml:"-"`
	MaxRequestsPerSec float64       `yaml:"max_requests_per_sec"`
	HTTPProxy         string        `yaml:"http_proxy"`
}

// DatabaseConfig holds the database connection configuration. An empty DSN
// disables persistence.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// TelemetryConfig configures OTLP trace export. An empty endpoint disables it.
type TelemetryConfig struct {
	ServiceName  string            `yaml:"service_name"`
	HTTPEndpoint string            `yaml:"otlp_http_endpoint"`
	Headers      map[string]string `yaml:"otlp_headers"`
}

const (
	DefaultBaseURL = "https://holland2stay.pay2wash.app"

	envEmail    = "PAY2WASH_EMAIL"
	envPassword = "PAY2WASH_PASSWORD"
)

// Load reads the configuration from the given path. Values from a .env file
// and the process environment override the pay2wash credentials.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "err", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if v, ok := os.LookupEnv(envEmail); ok {
		cfg.Pay2Wash.Email = v
	}
	if v, ok := os.LookupEnv(envPassword); ok {
		cfg.Pay2Wash.Password = Password(v)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 9091
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 30
	}

	if cfg.Pay2Wash.BaseURL == "" {
		cfg.Pay2Wash.BaseURL = DefaultBaseURL
	}
	if cfg.Pay2Wash.IntervalSeconds <= 0 {
		cfg.Pay2Wash.IntervalSeconds = 60
	}
	cfg.Pay2Wash.Interval = time.Duration(cfg.Pay2Wash.IntervalSeconds) * time.Second
	if cfg.Pay2Wash.TimeoutSeconds <= 0 {
		cfg.Pay2Wash.TimeoutSeconds = 30
	}
	cfg.Pay2Wash.Timeout = time.Duration(cfg.Pay2Wash.TimeoutSeconds) * time.Second
	if cfg.Pay2Wash.MaxRequestsPerSec <= 0 {
		cfg.Pay2Wash.MaxRequestsPerSec = 2
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		slog.Info("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "laundryd"
	}
}

// Validate checks the settings the poller cannot run without.
func (cfg *Config) Validate() error {
	var errs []error
	if cfg.Pay2Wash.Email == "" {
		errs = append(errs, fmt.Errorf("pay2wash.email (or %s) is required", envEmail))
	}
	if cfg.Pay2Wash.Password == "" {
		errs = append(errs, fmt.Errorf("pay2wash.password (or %s) is required", envPassword))
	}
	u, err := url.Parse(cfg.Pay2Wash.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("pay2wash.base_url %q is not an absolute url", cfg.Pay2Wash.BaseURL))
	}
	return errors.Join(errs...)
}
