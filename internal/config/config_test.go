package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coordinator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  format: json
storage:
  mode: postgres
  postgres_dsn: postgres://localhost/autotrade
  redis_addr: localhost:6379
marketdata:
  base_url: https://metrics.example.com
  cache_ttl: 45s
  rate_limit: 5
  burst: 2
executor:
  base_url: https://executor.example.com
reconcile:
  interval: 15m
  lock_ttl: 7m
  workers: 8
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, StoragePostgres, cfg.Storage.Mode)
	assert.Equal(t, "localhost:6379", cfg.Storage.RedisAddr)
	assert.Equal(t, 45*time.Second, cfg.MarketData.CacheTTL)
	assert.Equal(t, 8*time.Second, cfg.MarketData.FetchTimeout)
	assert.Equal(t, 15*time.Minute, cfg.Reconcile.Interval)
	assert.Equal(t, 7*time.Minute, cfg.Reconcile.LockTTL)
	assert.Equal(t, 8, cfg.Reconcile.Workers)
	assert.Equal(t, time.Hour, cfg.Reentry.LockTTL)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "reconcile:\n  interval: 15m\n")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("EXECUTOR_DRY_RUN", "true")
	t.Setenv("RECONCILE_LOCK_TTL", "2m")
	t.Setenv("FEED_URL", "ws://positions.internal/feed")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.True(t, cfg.Executor.DryRun)
	assert.Equal(t, 2*time.Minute, cfg.Reconcile.LockTTL)
	assert.Equal(t, "ws://positions.internal/feed", cfg.Feed.URL)
}

func TestLoad_BadEnvDuration(t *testing.T) {
	t.Setenv("RECONCILE_INTERVAL", "often")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults with dry run", func(c *Config) {}, false},
		{"lock outlives interval", func(c *Config) { c.Reconcile.LockTTL = c.Reconcile.Interval }, true},
		{"unknown storage mode", func(c *Config) { c.Storage.Mode = "sqlite" }, true},
		{"postgres without dsn", func(c *Config) { c.Storage.Mode = StoragePostgres }, true},
		{"executor required", func(c *Config) { c.Executor.DryRun = false }, true},
		{"negative rate", func(c *Config) { c.MarketData.RateLimit = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Executor: ExecutorConfig{DryRun: true}}
			cfg.SetDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
