package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Scraper    ScraperConfig    `yaml:"scraper"`
	Projection ProjectionConfig `yaml:"projection"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// ScraperConfig holds the scrape-cycle configuration.
type ScraperConfig struct {
	Enabled         bool          `yaml:"enabled"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"` // Ignored by YAML parser
	LoginURL        string        `yaml:"login_url"`
	DashboardURL    string        `yaml:"dashboard_url"`
	CookieDomain    string        `yaml:"cookie_domain"`
	Timezone        string        `yaml:"timezone"`
	Concurrency     int           `yaml:"concurrency"`
	UpdatePolicy    string        `yaml:"update_policy"` // "forbid" (default) or "allow"
	HTTPProxy       string        `yaml:"http_proxy"`
}

// ProjectionConfig parameterizes the trend projection.
type ProjectionConfig struct {
	// StepCutoverDate is the day the site renumbered its queues. Observations
	// at or after it are de-biased before fitting. Format: 2006-01-02.
	StepCutoverDate string    `yaml:"step_cutover_date"`
	Cutover         time.Time `yaml:"-"`
	SlopeEpsilon    float64   `yaml:"slope_epsilon"`
}

// PushConfig holds the VAPID keys and alerting threshold for web push.
type PushConfig struct {
	PublicKey          string `yaml:"vapid_public_key"`
	PrivateKey         string `yaml:"vapid_private_key"`
	Subject            string `yaml:"subject"`
	TTL                int    `yaml:"ttl"`
	DriftThresholdDays int    `yaml:"drift_threshold_days"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// Load reads the configuration from the given path and applies defaults.
func Load(path string) (*Config, error) {
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

	if cfg.Scraper.IntervalSeconds <= 0 {
		cfg.Scraper.IntervalSeconds = 24 * 60 * 60 // queue positions move daily
	}
	cfg.Scraper.Interval = time.Duration(cfg.Scraper.IntervalSeconds) * time.Second

	if cfg.Scraper.Concurrency <= 0 {
		cfg.Scraper.Concurrency = 4
	}
	switch cfg.Scraper.UpdatePolicy {
	case "":
		cfg.Scraper.UpdatePolicy = "forbid"
	case "forbid", "allow":
	default:
		return nil, fmt.Errorf("invalid scraper.update_policy %q (want forbid or allow)", cfg.Scraper.UpdatePolicy)
	}

	if cfg.Projection.StepCutoverDate == "" {
		cfg.Projection.StepCutoverDate = "2023-11-25"
	}
	cutover, err := time.Parse("2006-01-02", cfg.Projection.StepCutoverDate)
	if err != nil {
		return nil, fmt.Errorf("invalid projection.step_cutover_date %q: %w", cfg.Projection.StepCutoverDate, err)
	}
	cfg.Projection.Cutover = cutover
	if cfg.Projection.SlopeEpsilon <= 0 {
		cfg.Projection.SlopeEpsilon = 1e-8
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}
	if cfg.Push.DriftThresholdDays <= 0 {
		cfg.Push.DriftThresholdDays = 1
	}

	if cfg.WorkerPool.Size <= 0 {
		cfg.WorkerPool.Size = 1
	}

	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
	}

	return &cfg, nil
}
