package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
	closes int
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	w.closes++
	return nil
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
}

func TestPublishEncodesValues(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w)
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, "sync-events", []byte("XAU/USD"), map[string]string{"op": "download"}))
	require.NoError(t, p.PublishMessage(ctx, "logs", "plain"))
	require.NoError(t, p.PublishBatch(ctx, "logs", nil))

	require.Len(t, w.msgs, 2)
	assert.Equal(t, "sync-events", w.msgs[0].Topic)
	assert.Equal(t, []byte("XAU/USD"), w.msgs[0].Key)
	assert.JSONEq(t, `{"op":"download"}`, string(w.msgs[0].Value))
	assert.Equal(t, "plain", string(w.msgs[1].Value))
	assert.Nil(t, w.msgs[1].Key)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
	assert.Equal(t, 1, w.closes)
}

func TestPublishRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, WithRegisterer(reg), WithCompression("zstd"))
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, "t", nil, "a"))
	w.err = errors.New("broker down")
	err := p.Publish(ctx, "t", nil, "b")
	require.Error(t, err)
	assert.ErrorIs(t, err, w.err)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.msgs.WithLabelValues("t", "zstd", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.msgs.WithLabelValues("t", "zstd", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.errs.WithLabelValues("t")))
}

func TestPublishRejectsUnencodableValue(t *testing.T) {
	p := NewProducerWithWriter(&fakeWriter{})
	assert.Error(t, p.Publish(context.Background(), "t", nil, make(chan int)))
}

func TestParseCompression(t *testing.T) {
	assert.Equal(t, kafka.Snappy, parseCompression("snappy"))
	assert.Equal(t, kafka.Gzip, parseCompression("unknown"))
}
