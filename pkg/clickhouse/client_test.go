package clickhouse

import (
	"context"
	"testing"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/stretchr/testify/assert"
)

func TestOptionsFromConfig(t *testing.T) {
	cfg := defaultClientConfig()
	for _, opt := range []ClientOption{
		WithAddress("ch.local", 8123),
		WithDatabase("candles"),
		WithCredentials("sync", "secret"),
		WithHTTP(true),
		WithAsyncInsert(true, true),
		WithMaxExecutionTime(90 * time.Second),
		WithTimeouts(2*time.Second, 0),
	} {
		opt(cfg)
	}

	opts := cfg.options()
	assert.Equal(t, []string{"ch.local:8123"}, opts.Addr)
	assert.Equal(t, "candles", opts.Auth.Database)
	assert.Equal(t, "sync", opts.Auth.Username)
	assert.Equal(t, "secret", opts.Auth.Password)
	assert.Equal(t, ch.HTTP, opts.Protocol)
	assert.Equal(t, 2*time.Second, opts.DialTimeout)
	assert.Equal(t, 10*time.Second, opts.ReadTimeout)
	assert.Equal(t, 90, opts.Settings["max_execution_time"])
	assert.Equal(t, 1, opts.Settings["async_insert"])
	assert.Equal(t, 1, opts.Settings["wait_for_async_insert"])
}

func TestDefaultOptions(t *testing.T) {
	cfg := defaultClientConfig()
	WithAddress("localhost", 0)(cfg)

	opts := cfg.options()
	assert.Equal(t, []string{"localhost:9000"}, opts.Addr)
	assert.Equal(t, ch.Native, opts.Protocol)
	assert.Equal(t, "default", opts.Auth.Username)
	assert.Empty(t, opts.Settings)
}

func TestNewClientRequiresHost(t *testing.T) {
	_, err := NewClient(context.Background())
	assert.Error(t, err)
}
