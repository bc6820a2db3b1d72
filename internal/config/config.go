// Package config loads the coordinator configuration from YAML, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"autotrade-coordinator/internal/logging"
)

// Storage modes.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config is the full coordinator configuration.
type Config struct {
	Log        logging.Config   `yaml:"log"`
	HTTP       HTTPConfig       `yaml:"http"`
	Storage    StorageConfig    `yaml:"storage"`
	MarketData MarketDataConfig `yaml:"marketdata"`
	Executor   ExecutorConfig   `yaml:"executor"`
	Reconcile  ReconcileConfig  `yaml:"reconcile"`
	Reentry    ReentryConfig    `yaml:"reentry"`
	Feed       FeedConfig       `yaml:"feed"`
}

// HTTPConfig controls the admin HTTP server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// StorageConfig selects the backing stores.
// Redis, when set, backs the idempotency gate and position cache;
// ClickHouse, when set, backs the decision log.
type StorageConfig struct {
	Mode            string        `yaml:"mode"` // memory | postgres
	PostgresDSN     string        `yaml:"postgres_dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"` // 0 keeps the pgx default
	ClickhouseDSN   string        `yaml:"clickhouse_dsn"`
	RedisAddr       string        `yaml:"redis_addr"`
	RedisPassword   string        `yaml:"redis_password"`
}

// MarketDataConfig configures the metrics provider and cache.
type MarketDataConfig struct {
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	RateLimit    float64       `yaml:"rate_limit"` // requests per second, 0 = unlimited
	Burst        int           `yaml:"burst"`
}

// ExecutorConfig configures the trade executor client.
type ExecutorConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	DryRun     bool          `yaml:"dry_run"` // record purchases without calling the executor
}

// ReconcileConfig configures the reconciliation scheduler.
type ReconcileConfig struct {
	Interval   time.Duration `yaml:"interval"`
	LockTTL    time.Duration `yaml:"lock_ttl"`
	Workers    int           `yaml:"workers"`
	RunOnStart bool          `yaml:"run_on_start"`
}

// ReentryConfig configures the re-entry handler.
type ReentryConfig struct {
	LockTTL time.Duration `yaml:"lock_ttl"`
	Buffer  int           `yaml:"buffer"`
}

// FeedConfig configures the optional remote position-closed feed.
type FeedConfig struct {
	URL string `yaml:"url"`
}

// Load reads the YAML file at path (skipped when path is empty), loads .env if
// present, applies environment overrides and defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	cfg.SetDefaults()
	return &cfg, nil
}

// applyEnvOverrides overwrites values from environment variables when present.
func applyEnvOverrides(cfg *Config) error {
	str := map[string]*string{
		"LOG_LEVEL":           &cfg.Log.Level,
		"LOG_FORMAT":          &cfg.Log.Format,
		"HTTP_ADDR":           &cfg.HTTP.Addr,
		"STORAGE_MODE":        &cfg.Storage.Mode,
		"POSTGRES_DSN":        &cfg.Storage.PostgresDSN,
		"CLICKHOUSE_DSN":      &cfg.Storage.ClickhouseDSN,
		"REDIS_ADDR":          &cfg.Storage.RedisAddr,
		"REDIS_PASSWORD":      &cfg.Storage.RedisPassword,
		"MARKETDATA_BASE_URL": &cfg.MarketData.BaseURL,
		"MARKETDATA_API_KEY":  &cfg.MarketData.APIKey,
		"EXECUTOR_BASE_URL":   &cfg.Executor.BaseURL,
		"EXECUTOR_API_KEY":    &cfg.Executor.APIKey,
		"FEED_URL":            &cfg.Feed.URL,
	}
	for name, dst := range str {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	dur := map[string]*time.Duration{
		"RECONCILE_INTERVAL": &cfg.Reconcile.Interval,
		"RECONCILE_LOCK_TTL": &cfg.Reconcile.LockTTL,
		"REENTRY_LOCK_TTL":   &cfg.Reentry.LockTTL,
	}
	for name, dst := range dur {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = d
	}

	if v := os.Getenv("EXECUTOR_DRY_RUN"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("EXECUTOR_DRY_RUN: %w", err)
		}
		cfg.Executor.DryRun = b
	}
	return nil
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	c.Log.SetDefaults()
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Storage.Mode == "" {
		c.Storage.Mode = StorageMemory
	}
	if c.MarketData.CacheTTL <= 0 {
		c.MarketData.CacheTTL = 30 * time.Second
	}
	if c.MarketData.FetchTimeout <= 0 {
		c.MarketData.FetchTimeout = 8 * time.Second
	}
	if c.Executor.Timeout <= 0 {
		c.Executor.Timeout = 30 * time.Second
	}
	if c.Reconcile.Interval <= 0 {
		c.Reconcile.Interval = 10 * time.Minute
	}
	if c.Reconcile.LockTTL <= 0 {
		c.Reconcile.LockTTL = 5 * time.Minute
	}
	if c.Reconcile.Workers <= 0 {
		c.Reconcile.Workers = 4
	}
	if c.Reentry.LockTTL <= 0 {
		c.Reentry.LockTTL = time.Hour
	}
	if c.Reentry.Buffer <= 0 {
		c.Reentry.Buffer = 64
	}
}

// Validate checks cross-field constraints. Call after SetDefaults.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Mode {
	case StorageMemory:
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required in postgres mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.mode %q: want %s or %s", c.Storage.Mode, StorageMemory, StoragePostgres))
	}

	if !c.Executor.DryRun && c.Executor.BaseURL == "" {
		errs = append(errs, errors.New("executor.base_url is required unless executor.dry_run is set"))
	}

	if c.Reconcile.LockTTL >= c.Reconcile.Interval {
		errs = append(errs, fmt.Errorf("reconcile.lock_ttl (%s) must be shorter than reconcile.interval (%s)",
			c.Reconcile.LockTTL, c.Reconcile.Interval))
	}

	if c.MarketData.RateLimit < 0 {
		errs = append(errs, errors.New("marketdata.rate_limit must not be negative"))
	}

	return errors.Join(errs...)
}
