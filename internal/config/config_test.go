package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "localhost:6380", cfg.Analytics.Addr)
	assert.Equal(t, time.Hour, cfg.Cache.URLTTL)
	assert.Equal(t, 24*time.Hour, cfg.Cache.ClickTTL)
	assert.Equal(t, int64(1000), cfg.Counter.BatchSize)
	assert.Equal(t, int64(1000000), cfg.Counter.StartValue)
	assert.Equal(t, "url_counter", cfg.Counter.ID)
	assert.Equal(t, 5*time.Minute, cfg.Flush.Interval)
	assert.Equal(t, 50, cfg.Flush.BatchSize)
	assert.Equal(t, RouteLimit{Limit: 100, Window: time.Minute}, cfg.RateLimit.Redirect)
	assert.Equal(t, RouteLimit{Limit: 10, Window: time.Minute}, cfg.RateLimit.Shorten)
	assert.False(t, cfg.OTEL.Enabled)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "Memory")
	t.Setenv("BASE_URL", "https://sho.rt/")
	t.Setenv("REDIS_TTL_URLS", "120")
	t.Setenv("REDIS_TTL_CLICKS", "2h")
	t.Setenv("DB_REPLICA_DSNS", "postgres://r1, ,postgres://r2")
	t.Setenv("FLUSH_LOCK_ENABLED", "false")
	t.Setenv("COUNTER_BATCH_SIZE", "25")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, "https://sho.rt", cfg.Server.BaseURL)
	assert.Equal(t, 2*time.Minute, cfg.Cache.URLTTL)
	assert.Equal(t, 2*time.Hour, cfg.Cache.ClickTTL)
	assert.Equal(t, []string{"postgres://r1", "postgres://r2"}, cfg.Database.ReplicaDSNs)
	assert.False(t, cfg.Flush.LockEnabled)
	assert.Equal(t, int64(25), cfg.Counter.BatchSize)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("FLUSH_BATCH_SIZE", "lots")
	t.Setenv("FLUSH_INTERVAL", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Flush.BatchSize)
	assert.Equal(t, 5*time.Minute, cfg.Flush.Interval)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mongo" }, "unknown STORAGE_DRIVER"},
		{"zero batch", func(c *Config) { c.Counter.BatchSize = 0 }, "COUNTER_BATCH_SIZE"},
		{"negative start", func(c *Config) { c.Counter.StartValue = -1 }, "COUNTER_START_VALUE"},
		{"zero flush batch", func(c *Config) { c.Flush.BatchSize = 0 }, "FLUSH_BATCH_SIZE"},
		{"zero limit", func(c *Config) { c.RateLimit.Shorten.Limit = 0 }, "RATE_LIMIT_SHORTEN"},
		{"bad ratio", func(c *Config) { c.OTEL.SampleRatio = 2 }, "OTEL_SAMPLE_RATIO"},
		{"sqlite without dsn", func(c *Config) {
			c.Storage.Driver = DriverSQLite
			c.Storage.SQLiteDSN = ""
		}, "SQLITE_DSN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_RejectsInvalidConfig(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "cassandra")

	_, err := Load()
	require.Error(t, err)
	assert.Panics(t, func() { MustLoad() })
}
