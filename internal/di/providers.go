package di

import (
	"context"
	"fmt"
	"time"

	"CandleSync/internal/domain/models"
	"CandleSync/internal/domain/repository"
	"CandleSync/internal/handler/api"
	"CandleSync/internal/handler/ws"
	mid "CandleSync/internal/middleware"
	internalrepo "CandleSync/internal/repository"
	"CandleSync/internal/service/ratelimit"
	"CandleSync/internal/service/remotestore"
	"CandleSync/internal/usecase"
	"CandleSync/pkg/cache"
	pkgch "CandleSync/pkg/clickhouse"
	"CandleSync/pkg/config"
	xhttp "CandleSync/pkg/http"
	pkgkafka "CandleSync/pkg/kafka"
	applogger "CandleSync/pkg/logger"
	"CandleSync/pkg/metrics"
	"CandleSync/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// ProvideRegistry creates the Prometheus registry served on the metrics path.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) repository.Metrics {
	return metrics.New(reg)
}

// ProvideKafkaProducer creates a Kafka producer. It returns nil when no
// component needs Kafka.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry) (*pkgkafka.Producer, func(), error) {
	if cfg.Journal.Backend != "kafka" && !cfg.Log.Collector.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithBatch(cfg.Kafka.BatchSize, cfg.Kafka.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.WriteTimeout, cfg.Kafka.WriteTimeout),
		pkgkafka.WithAsync(cfg.Kafka.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithAutoCreateTopic(cfg.Kafka.AutoCreateTopic),
		pkgkafka.WithRegisterer(reg),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideLogger creates the app logger and attaches the error collector when enabled.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, func(), error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	if !cfg.Log.Collector.Enabled || producer == nil {
		return l, func() {}, nil
	}
	l.AddCollector(&applogger.CollectionConfig{
		TimeInterval:   cfg.Log.Collector.Interval,
		CountThreshold: cfg.Log.Collector.Threshold,
		Topic:          cfg.Log.Collector.Topic,
		Publisher:      internalrepo.NewKafkaLogPublisher(producer),
	})
	return l, l.RemoveCollector, nil
}

// ProvideCache creates the candle response cache. "none" disables caching.
func ProvideCache(cfg *config.Config) (cache.Service, func(), error) {
	memory := func() *cache.MemoryCache {
		return cache.NewMemoryCache(
			cache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize),
			cache.WithMemoryDefaultTTL(cfg.Cache.TTL),
		)
	}
	redisCache := func() (*cache.RedisCache, error) {
		return cache.NewRedisCache(
			cache.WithRedisHost(cfg.Cache.Redis.Host),
			cache.WithRedisPort(cfg.Cache.Redis.Port),
			cache.WithRedisPassword(cfg.Cache.Redis.Password),
			cache.WithRedisDB(cfg.Cache.Redis.DB),
			cache.WithRedisPrefix(cfg.Cache.Redis.Prefix),
		)
	}

	var svc cache.Service
	switch cfg.Cache.Backend {
	case "none":
		return nil, func() {}, nil
	case "memory":
		svc = memory()
	case "redis":
		rc, err := redisCache()
		if err != nil {
			return nil, nil, fmt.Errorf("redis cache: %w", err)
		}
		svc = rc
	case "layered":
		rc, err := redisCache()
		if err != nil {
			return nil, nil, fmt.Errorf("redis cache: %w", err)
		}
		svc = cache.NewLayeredCache(rc,
			cache.WithLayeredMemorySize(cfg.Cache.MemoryMaxSize),
			cache.WithLayeredMemoryTTL(time.Minute),
		)
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
	return svc, func() { _ = svc.Close() }, nil
}

// ProvideRemoteStore creates the HTTP client for the remote candle cache.
func ProvideRemoteStore(cfg *config.Config, c cache.Service, logger *applogger.Logger) (*remotestore.Client, error) {
	opts := []remotestore.Option{
		remotestore.WithHTTPClient(xhttp.NewClient(xhttp.WithTimeout(cfg.Remote.Timeout))),
		remotestore.WithRetry(cfg.Remote.Retry.Max, cfg.Remote.Retry.Initial, cfg.Remote.Retry.MaxInterval),
		remotestore.WithSharedTimeout(cfg.Remote.Timeout),
		remotestore.WithLogger(logger.With(applogger.String("component", "remotestore"))),
	}
	if c != nil {
		opts = append(opts, remotestore.WithCache(c, cfg.Cache.TTL))
	}
	client, err := remotestore.New(cfg.Remote.BaseURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("remote store: %w", err)
	}
	return client, nil
}

// ProvideLimiter creates the limiter shared by the HTTP and websocket handlers.
func ProvideLimiter() *ratelimit.Limiter {
	return ratelimit.New()
}

// ProvideHub creates the websocket hub that renders candles and reports the viewport.
func ProvideHub(cfg *config.Config, limiter *ratelimit.Limiter, logger *applogger.Logger) *ws.Hub {
	return ws.NewHub(limiter,
		ws.WithLogger(logger.With(applogger.String("component", "ws"))),
		ws.WithPingInterval(cfg.Sync.PingInterval),
		ws.WithViewportRate(cfg.Sync.ViewportBurst, cfg.Sync.ViewportRate),
		ws.WithAllowedOrigins(cfg.Server.AllowOrigins...),
	)
}

// ProvideClickHouseClient connects to ClickHouse when the journal is stored there.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if cfg.Journal.Backend != "clickhouse" {
		return nil, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithAddress(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	if cfg.ClickHouse.InitSchema {
		if err := client.InitSchema(ctx, internalrepo.JournalSchema(journalTable(cfg))); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
		}
	}
	return client, func() { _ = client.Close() }, nil
}

func journalTable(cfg *config.Config) string {
	return cfg.ClickHouse.Database + "." + cfg.Journal.Table
}

// ProvideJournal selects where sync events are recorded.
func ProvideJournal(cfg *config.Config, producer *pkgkafka.Producer, ch *pkgch.Client) (repository.Journal, error) {
	switch cfg.Journal.Backend {
	case "nop":
		return internalrepo.NopJournal{}, nil
	case "kafka":
		if producer == nil {
			return nil, fmt.Errorf("kafka journal: producer is not configured")
		}
		return internalrepo.NewKafkaJournal(producer, cfg.Journal.Topic), nil
	case "clickhouse":
		if ch == nil {
			return nil, fmt.Errorf("clickhouse journal: client is not configured")
		}
		return internalrepo.NewClickHouseJournal(ch.DB(), journalTable(cfg)), nil
	default:
		return nil, fmt.Errorf("unknown journal backend %q", cfg.Journal.Backend)
	}
}

// ProvideOrchestrator creates the sync orchestrator rendering into the hub.
func ProvideOrchestrator(
	cfg *config.Config,
	store repository.RemoteStore,
	hub *ws.Hub,
	m repository.Metrics,
	journal repository.Journal,
	logger *applogger.Logger,
) (*usecase.Orchestrator, error) {
	tfs, err := models.ParseTimeframes(cfg.Remote.Timeframes)
	if err != nil {
		return nil, fmt.Errorf("remote timeframes: %w", err)
	}
	return usecase.NewOrchestrator(store, cfg.Remote.Instrument,
		usecase.WithSink(hub),
		usecase.WithMetrics(m),
		usecase.WithJournal(journal),
		usecase.WithLogger(logger.With(applogger.String("component", "orchestrator"))),
		usecase.WithSupportedTimeframes(tfs...),
		usecase.WithAutofillTimeout(cfg.Sync.AutofillTimeout),
		usecase.WithGuardStaleAfter(cfg.Sync.GuardStaleAfter),
	), nil
}

// ProvideViewportListener connects hub viewport events to the orchestrator.
func ProvideViewportListener(
	cfg *config.Config,
	hub *ws.Hub,
	orch *usecase.Orchestrator,
	m repository.Metrics,
	logger *applogger.Logger,
) *mid.ViewportListener {
	return mid.NewViewportListener(hub, orch,
		mid.WithDebounce(cfg.Sync.Debounce),
		mid.WithListenerMetrics(m),
		mid.WithListenerLogger(logger.With(applogger.String("component", "viewport"))),
	)
}

// ProvideStatusPoller schedules the periodic cache status refresh.
func ProvideStatusPoller(cfg *config.Config, orch *usecase.Orchestrator, logger *applogger.Logger) *usecase.StatusPoller {
	return usecase.NewStatusPoller(cfg.Sync.StatusRefresh, cfg.Sync.RefreshTimeout, orch, logger)
}

// ProvideSyncHandler exposes the orchestrator over HTTP.
func ProvideSyncHandler(cfg *config.Config, orch *usecase.Orchestrator, limiter *ratelimit.Limiter, logger *applogger.Logger) *api.SyncEchoHandler {
	return api.NewSyncEchoHandler(logger, orch, limiter,
		api.WithDownloadRate(cfg.Sync.DownloadBurst, cfg.Sync.DownloadRate),
	)
}

// ProvideHealthHandler registers readiness checks for the configured backends.
func ProvideHealthHandler(c cache.Service, ch *pkgch.Client) *api.HealthEchoHandler {
	h := api.NewHealthEchoHandler(2 * time.Second)
	if ch != nil {
		h.AddCheck("clickhouse", ch.Health)
	}
	switch rc := c.(type) {
	case *cache.RedisCache:
		h.AddCheck("redis", func(ctx context.Context) error { return rc.Client().Ping(ctx).Err() })
	case *cache.LayeredCache:
		h.AddCheck("cache", func(ctx context.Context) error {
			_, err := rc.Exists(ctx, "healthz")
			return err
		})
	}
	return h
}

// ProvideHTTPServer creates the echo server with every route group.
func ProvideHTTPServer(
	cfg *config.Config,
	reg *prometheus.Registry,
	logger *applogger.Logger,
	syncHandler *api.SyncEchoHandler,
	health *api.HealthEchoHandler,
	hub *ws.Hub,
) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS, cfg.Server.AllowOrigins...),
		xhttp.WithLogger(logger),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(reg, cfg.Metrics.Path, cfg.Server.SlowThreshold))
	}
	return xhttp.NewServer(xhttp.Handlers{health, syncHandler, hub}, opts...)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	logger *applogger.Logger,
	orch *usecase.Orchestrator,
	srv *xhttp.Server,
	listener *mid.ViewportListener,
	poller *usecase.StatusPoller,
	hub *ws.Hub,
	journal repository.Journal,
) *server.App {
	return server.New(cfg, logger, orch, srv,
		server.WithWorkers(listener, poller),
		server.WithCloser("ws hub", hub),
		server.WithCloser("journal", journal),
	)
}
