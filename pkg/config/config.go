package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. CANDLESYNC_REMOTE_BASE_URL.
const EnvPrefix = "CANDLESYNC_"

type Config struct {
	Environment string           `yaml:"environment" env:"ENVIRONMENT" default:"development" validate:"oneof=development staging production"`
	Log         LogConfig        `yaml:"log" envPrefix:"LOG_"`
	Server      ServerConfig     `yaml:"server" envPrefix:"SERVER_"`
	Metrics     MetricsConfig    `yaml:"metrics" envPrefix:"METRICS_"`
	Remote      RemoteConfig     `yaml:"remote" envPrefix:"REMOTE_"`
	Sync        SyncConfig       `yaml:"sync" envPrefix:"SYNC_"`
	Cache       CacheConfig      `yaml:"cache" envPrefix:"CACHE_"`
	Journal     JournalConfig    `yaml:"journal" envPrefix:"JOURNAL_"`
	Kafka       KafkaConfig      `yaml:"kafka" envPrefix:"KAFKA_"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse" envPrefix:"CLICKHOUSE_"`
}

type LogConfig struct {
	Level     string          `yaml:"level" env:"LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Format    string          `yaml:"format" env:"FORMAT" default:"console" validate:"oneof=console json"`
	Output    string          `yaml:"output" env:"OUTPUT" default:"stdout"`
	Collector CollectorConfig `yaml:"collector" envPrefix:"COLLECTOR_"`
}

// CollectorConfig enables aggregated error-log publishing to Kafka.
type CollectorConfig struct {
	Enabled   bool          `yaml:"enabled" env:"ENABLED"`
	Topic     string        `yaml:"topic" env:"TOPIC" default:"candlesync.logs"`
	Interval  time.Duration `yaml:"interval" env:"INTERVAL" default:"30s"`
	Threshold int           `yaml:"threshold" env:"THRESHOLD" default:"100" validate:"gt=0"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" env:"HOST" default:"0.0.0.0"`
	Port            int           `yaml:"port" env:"PORT" default:"8080" validate:"min=0,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" default:"3m"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" default:"10s"`
	CORS            bool          `yaml:"cors" env:"CORS" default:"true"`
	AllowOrigins    []string      `yaml:"allow_origins" env:"ALLOW_ORIGINS" default:"[\"*\"]"`
	SlowThreshold   time.Duration `yaml:"slow_threshold" env:"SLOW_THRESHOLD" default:"2s"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED" default:"true"`
	Path    string `yaml:"path" env:"PATH" default:"/metrics" validate:"startswith=/"`
}

// RemoteConfig points at the remote candle cache service.
type RemoteConfig struct {
	BaseURL    string        `yaml:"base_url" env:"BASE_URL" default:"http://127.0.0.1:8000" validate:"required,url"`
	Instrument string        `yaml:"instrument" env:"INSTRUMENT" default:"XAU/USD" validate:"required"`
	Timeframes []string      `yaml:"timeframes" env:"TIMEFRAMES" default:"[\"m5\",\"H1\"]" validate:"min=1,dive,oneof=m1 m5 m15 m30 H1 H4 D1"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT" default:"3m"`
	Retry      RetryConfig   `yaml:"retry" envPrefix:"RETRY_"`
}

type RetryConfig struct {
	Max         int           `yaml:"max" env:"MAX" default:"2" validate:"min=0,max=10"`
	Initial     time.Duration `yaml:"initial" env:"INITIAL" default:"250ms"`
	MaxInterval time.Duration `yaml:"max_interval" env:"MAX_INTERVAL" default:"2s"`
}

type SyncConfig struct {
	AutofillTimeout time.Duration `yaml:"autofill_timeout" env:"AUTOFILL_TIMEOUT" default:"2m"`
	GuardStaleAfter time.Duration `yaml:"guard_stale_after" env:"GUARD_STALE_AFTER" default:"3m"`
	Debounce        time.Duration `yaml:"debounce" env:"DEBOUNCE" default:"250ms"`
	// StatusRefresh is a cron spec; empty disables the periodic refresh.
	StatusRefresh  string        `yaml:"status_refresh" env:"STATUS_REFRESH" default:"@every 1m"`
	RefreshTimeout time.Duration `yaml:"refresh_timeout" env:"REFRESH_TIMEOUT" default:"30s"`
	BootstrapWeeks bool          `yaml:"bootstrap_weeks" env:"BOOTSTRAP_WEEKS" default:"true"`
	DownloadBurst  float64       `yaml:"download_burst" env:"DOWNLOAD_BURST" default:"3" validate:"gte=1"`
	DownloadRate   float64       `yaml:"download_rate" env:"DOWNLOAD_RATE" default:"0.2" validate:"gte=0"`
	ViewportBurst  float64       `yaml:"viewport_burst" env:"VIEWPORT_BURST" default:"10" validate:"gte=1"`
	ViewportRate   float64       `yaml:"viewport_rate" env:"VIEWPORT_RATE" default:"5" validate:"gte=0"`
	PingInterval   time.Duration `yaml:"ping_interval" env:"PING_INTERVAL" default:"30s"`
}

type CacheConfig struct {
	Backend       string        `yaml:"backend" env:"BACKEND" default:"memory" validate:"oneof=none memory redis layered"`
	TTL           time.Duration `yaml:"ttl" env:"TTL" default:"5m"`
	MemoryMaxSize int           `yaml:"memory_max_size" env:"MEMORY_MAX_SIZE" default:"1000" validate:"gt=0"`
	Redis         RedisConfig   `yaml:"redis" envPrefix:"REDIS_"`
}

type RedisConfig struct {
	Host     string `yaml:"host" env:"HOST" default:"localhost"`
	Port     int    `yaml:"port" env:"PORT" default:"6379"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
	Prefix   string `yaml:"prefix" env:"PREFIX" default:"candlesync"`
}

// JournalConfig selects where sync events are recorded.
type JournalConfig struct {
	Backend string `yaml:"backend" env:"BACKEND" default:"nop" validate:"oneof=nop kafka clickhouse"`
	Topic   string `yaml:"topic" env:"TOPIC" default:"candlesync.sync-events"`
	Table   string `yaml:"table" env:"TABLE" default:"sync_events"`
}

type KafkaConfig struct {
	Brokers         []string      `yaml:"brokers" env:"BROKERS"`
	RequiredAcks    int           `yaml:"required_acks" env:"REQUIRED_ACKS" default:"-1"`
	Compression     string        `yaml:"compression" env:"COMPRESSION" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
	MaxAttempts     int           `yaml:"max_attempts" env:"MAX_ATTEMPTS" default:"3"`
	BatchSize       int           `yaml:"batch_size" env:"BATCH_SIZE" default:"100"`
	Linger          time.Duration `yaml:"linger" env:"LINGER" default:"1s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" default:"10s"`
	Async           bool          `yaml:"async" env:"ASYNC"`
	AutoCreateTopic bool          `yaml:"auto_create_topic" env:"AUTO_CREATE_TOPIC"`
}

type ClickHouseConfig struct {
	Host             string        `yaml:"host" env:"HOST"`
	Port             int           `yaml:"port" env:"PORT" default:"9000"`
	Database         string        `yaml:"database" env:"DATABASE" default:"default"`
	User             string        `yaml:"user" env:"USER" default:"default"`
	Password         string        `yaml:"password" env:"PASSWORD"`
	UseHTTP          bool          `yaml:"use_http" env:"USE_HTTP"`
	AsyncInsert      bool          `yaml:"async_insert" env:"ASYNC_INSERT"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert" env:"WAIT_FOR_ASYNC_INSERT"`
	DialTimeout      time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT" default:"10s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" env:"MAX_EXECUTION_TIME" default:"60s"`
	InitSchema       bool          `yaml:"init_schema" env:"INIT_SCHEMA" default:"true"`
}

var validate = validator.New()

// Load builds the configuration from defaults and the YAML file at path.
// An empty path uses defaults only.
func Load(fsys afero.Fs, path string) (*Config, error) {
	c, err := read(fsys, path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads .env files (missing ones are skipped), then the YAML
// file, then applies CANDLESYNC_* environment overrides.
func LoadWithEnv(fsys afero.Fs, path string, envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	c, err := read(fsys, path)
	if err != nil {
		return nil, err
	}
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// read applies defaults first so YAML false/zero values are not overwritten.
func read(fsys afero.Fs, path string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if path == "" {
		return &c, nil
	}
	b, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

// Validate checks field rules and the settings each selected backend needs.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if (c.Journal.Backend == "kafka" || c.Log.Collector.Enabled) && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required by the kafka journal and the log collector")
	}
	if c.Journal.Backend == "clickhouse" && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required by the clickhouse journal")
	}
	if (c.Cache.Backend == "redis" || c.Cache.Backend == "layered") && c.Cache.Redis.Host == "" {
		return fmt.Errorf("cache.redis.host is required by the %s cache", c.Cache.Backend)
	}
	return nil
}
