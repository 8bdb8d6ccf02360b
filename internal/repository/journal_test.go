package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"CandleSync/internal/domain/models"
	pkgkafka "CandleSync/pkg/kafka"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	topic string
	key   []byte
	value interface{}
}

type fakePublisher struct {
	msgs []published
}

func (p *fakePublisher) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	p.msgs = append(p.msgs, published{topic: topic, key: key, value: value})
	return nil
}

type fakeExecer struct {
	query string
	args  []interface{}
	err   error
}

func (e *fakeExecer) ExecContext(_ context.Context, query string, args ...interface{}) (sql.Result, error) {
	e.query = query
	e.args = args
	return nil, e.err
}

type captureWriter struct {
	msgs []kafka.Message
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error { return nil }

func sampleEvent() *models.SyncEvent {
	ev := models.NewSyncEvent("download", "XAU/USD", time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC))
	ev.Timeframes = []models.Timeframe{models.TFm5, models.TFH1}
	ev.Start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ev.End = time.Date(2024, 1, 7, 23, 59, 59, 0, time.UTC)
	ev.Weeks = []string{"2024-W01"}
	ev.DurationMS = 1200
	return ev
}

func TestKafkaJournalKeysByInstrument(t *testing.T) {
	p := &fakePublisher{}
	j := NewKafkaJournal(p, "candlesync.sync-events")
	ev := sampleEvent()

	require.NoError(t, j.Record(context.Background(), ev))
	require.NoError(t, j.Record(context.Background(), nil))
	require.Len(t, p.msgs, 1)
	assert.Equal(t, "candlesync.sync-events", p.msgs[0].topic)
	assert.Equal(t, []byte("XAU/USD"), p.msgs[0].key)
	assert.Same(t, ev, p.msgs[0].value)

	require.NoError(t, j.Close())
}

func TestClickHouseJournalInsertsRow(t *testing.T) {
	db := &fakeExecer{}
	j := NewClickHouseJournal(db, "sync_events")
	ev := sampleEvent()

	require.NoError(t, j.Record(context.Background(), ev))
	assert.True(t, strings.HasPrefix(db.query, "INSERT INTO sync_events ("))
	require.Len(t, db.args, 11)
	assert.Equal(t, ev.ID.String(), db.args[0])
	assert.Equal(t, "XAU/USD", db.args[3])
	assert.Equal(t, []string{"m5", "H1"}, db.args[4])
	assert.Equal(t, []string{"2024-W01"}, db.args[5])
	assert.Equal(t, "ok", db.args[8])
	assert.Equal(t, int64(1200), db.args[10])
}

func TestClickHouseJournalWrapsErrors(t *testing.T) {
	boom := errors.New("table missing")
	j := NewClickHouseJournal(&fakeExecer{err: boom}, "sync_events")
	assert.ErrorIs(t, j.Record(context.Background(), sampleEvent()), boom)
}

func TestJournalSchemaNamesTable(t *testing.T) {
	stmts := JournalSchema("candles.sync_events")
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS candles.sync_events")
	assert.Contains(t, stmts[0], "ENGINE = MergeTree")
}

func TestKafkaLogPublisher(t *testing.T) {
	w := &captureWriter{}
	p := NewKafkaLogPublisher(pkgkafka.NewProducerWithWriter(w))

	require.NoError(t, p.PublishMessage(context.Background(), "candlesync.logs", map[string]int{"count": 3}))
	assert.Error(t, p.PublishMessage(context.Background(), " ", "x"))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "candlesync.logs", w.msgs[0].Topic)
	var body map[string]int
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &body))
	assert.Equal(t, 3, body["count"])
}
