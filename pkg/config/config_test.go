package config

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(afero.NewMemMapFs(), "")
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowOrigins)
	assert.Equal(t, "http://127.0.0.1:8000", cfg.Remote.BaseURL)
	assert.Equal(t, []string{"m5", "H1"}, cfg.Remote.Timeframes)
	assert.Equal(t, 2*time.Minute, cfg.Sync.AutofillTimeout)
	assert.Equal(t, 3*time.Minute, cfg.Sync.GuardStaleAfter)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, "nop", cfg.Journal.Backend)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/candlesync.yaml", []byte(`
environment: staging
server:
  port: 9090
  cors: false
metrics:
  enabled: false
remote:
  base_url: http://cache.internal:8000
  instrument: EUR/USD
  timeframes: [m1, D1]
sync:
  debounce: 100ms
`), 0o644))

	cfg, err := Load(fs, "/etc/candlesync.yaml")
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.False(t, cfg.Server.CORS)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "EUR/USD", cfg.Remote.Instrument)
	assert.Equal(t, []string{"m1", "D1"}, cfg.Remote.Timeframes)
	assert.Equal(t, 100*time.Millisecond, cfg.Sync.Debounce)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(afero.NewMemMapFs(), "/nope.yaml")
	assert.Error(t, err)
}

func TestLoadRejectsUnknownTimeframe(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "c.yaml", []byte("remote:\n  timeframes: [m5, W1]\n"), 0o644))

	_, err := Load(fs, "c.yaml")
	assert.Error(t, err)
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("CANDLESYNC_SERVER_PORT", "7000")
	t.Setenv("CANDLESYNC_REMOTE_TIMEFRAMES", "H4,D1")
	t.Setenv("CANDLESYNC_SYNC_AUTOFILL_TIMEOUT", "30s")
	t.Setenv("CANDLESYNC_CACHE_REDIS_PREFIX", "cs")

	cfg, err := LoadWithEnv(afero.NewMemMapFs(), "", "does-not-exist.env")
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, []string{"H4", "D1"}, cfg.Remote.Timeframes)
	assert.Equal(t, 30*time.Second, cfg.Sync.AutofillTimeout)
	assert.Equal(t, "cs", cfg.Cache.Redis.Prefix)
}

func TestValidateBackendRequirements(t *testing.T) {
	cfg, err := Load(afero.NewMemMapFs(), "")
	require.NoError(t, err)

	cfg.Journal.Backend = "kafka"
	assert.Error(t, cfg.Validate())
	cfg.Kafka.Brokers = []string{"localhost:9092"}
	assert.NoError(t, cfg.Validate())

	cfg.Journal.Backend = "clickhouse"
	assert.Error(t, cfg.Validate())
	cfg.ClickHouse.Host = "localhost"
	assert.NoError(t, cfg.Validate())

	cfg.Journal.Backend = "nop"
	cfg.Kafka.Brokers = nil
	cfg.Log.Collector.Enabled = true
	assert.Error(t, cfg.Validate())

	cfg.Log.Collector.Enabled = false
	cfg.Cache.Backend = "redis"
	cfg.Cache.Redis.Host = ""
	assert.Error(t, cfg.Validate())
}
