package di

import (
	"testing"

	internalrepo "CandleSync/internal/repository"
	"CandleSync/pkg/cache"
	"CandleSync/pkg/config"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(afero.NewMemMapFs(), "")
	require.NoError(t, err)
	return cfg
}

func TestInitializeAppWithDefaults(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Log.Level = "error"

	app, cleanup, err := InitializeApp(cfg)
	require.NoError(t, err)
	require.NotNil(t, app)
	cleanup()
}

func TestInitializeAppRejectsBadRemoteURL(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Log.Level = "error"
	cfg.Remote.BaseURL = "not a url"

	_, _, err := InitializeApp(cfg)
	assert.Error(t, err)
}

func TestProvideKafkaProducerSkippedWhenUnused(t *testing.T) {
	producer, cleanup, err := ProvideKafkaProducer(defaultConfig(t), ProvideRegistry())
	require.NoError(t, err)
	assert.Nil(t, producer)
	cleanup()
}

func TestProvideCacheBackends(t *testing.T) {
	cfg := defaultConfig(t)

	cfg.Cache.Backend = "none"
	svc, cleanup, err := ProvideCache(cfg)
	require.NoError(t, err)
	assert.Nil(t, svc)
	cleanup()

	cfg.Cache.Backend = "memory"
	svc, cleanup, err = ProvideCache(cfg)
	require.NoError(t, err)
	assert.IsType(t, &cache.MemoryCache{}, svc)
	cleanup()

	cfg.Cache.Backend = "disk"
	_, _, err = ProvideCache(cfg)
	assert.Error(t, err)
}

func TestProvideJournalBackends(t *testing.T) {
	cfg := defaultConfig(t)

	j, err := ProvideJournal(cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, internalrepo.NopJournal{}, j)

	cfg.Journal.Backend = "kafka"
	_, err = ProvideJournal(cfg, nil, nil)
	assert.Error(t, err)

	cfg.Journal.Backend = "clickhouse"
	_, err = ProvideJournal(cfg, nil, nil)
	assert.Error(t, err)
}

func TestProvideOrchestratorParsesTimeframes(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Remote.Timeframes = []string{"H1", "D1"}
	logger, cleanup, err := ProvideLogger(cfg, nil)
	require.NoError(t, err)
	defer cleanup()

	store, err := ProvideRemoteStore(cfg, nil, logger)
	require.NoError(t, err)
	reg := ProvideRegistry()
	hub := ProvideHub(cfg, ProvideLimiter(), logger)

	orch, err := ProvideOrchestrator(cfg, store, hub, ProvideMetrics(reg), internalrepo.NopJournal{}, logger)
	require.NoError(t, err)
	assert.Equal(t, "H1", string(orch.Snapshot().Timeframe))
	assert.Len(t, orch.SupportedTimeframes(), 2)

	cfg.Remote.Timeframes = []string{"W1"}
	_, err = ProvideOrchestrator(cfg, store, hub, ProvideMetrics(ProvideRegistry()), internalrepo.NopJournal{}, logger)
	assert.Error(t, err)
}
