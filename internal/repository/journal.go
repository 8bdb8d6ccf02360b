package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"CandleSync/internal/domain/models"
	domrepo "CandleSync/internal/domain/repository"
	pkgkafka "CandleSync/pkg/kafka"
)

// Publisher is the producer side used by the Kafka journal.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// KafkaJournal publishes sync events keyed by instrument. The producer is
// shared with the log collector and closed by its owner.
type KafkaJournal struct {
	producer Publisher
	topic    string
}

func NewKafkaJournal(producer Publisher, topic string) domrepo.Journal {
	return &KafkaJournal{producer: producer, topic: topic}
}

func (j *KafkaJournal) Record(ctx context.Context, ev *models.SyncEvent) error {
	if ev == nil {
		return nil
	}
	return j.producer.Publish(ctx, j.topic, []byte(ev.Instrument), ev)
}

func (j *KafkaJournal) Close() error { return nil }

// Execer is satisfied by *sql.DB.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// ClickHouseJournal inserts sync events into a MergeTree table.
type ClickHouseJournal struct {
	db    Execer
	table string
}

func NewClickHouseJournal(db Execer, table string) domrepo.Journal {
	return &ClickHouseJournal{db: db, table: table}
}

// JournalSchema returns the DDL for the journal table.
func JournalSchema(table string) []string {
	return []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id UUID,
	at DateTime64(3, 'UTC'),
	op LowCardinality(String),
	instrument LowCardinality(String),
	timeframes Array(LowCardinality(String)),
	weeks Array(String),
	start DateTime('UTC'),
	end DateTime('UTC'),
	result LowCardinality(String),
	error String,
	duration_ms Int64
) ENGINE = MergeTree
ORDER BY (instrument, at)`, table)}
}

func (j *ClickHouseJournal) Record(ctx context.Context, ev *models.SyncEvent) error {
	if ev == nil {
		return nil
	}
	tfs := make([]string, len(ev.Timeframes))
	for i, tf := range ev.Timeframes {
		tfs[i] = string(tf)
	}
	q := fmt.Sprintf("INSERT INTO %s (id, at, op, instrument, timeframes, weeks, start, end, result, error, duration_ms) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", j.table)
	_, err := j.db.ExecContext(ctx, q,
		ev.ID.String(),
		ev.At,
		ev.Op,
		ev.Instrument,
		tfs,
		append([]string{}, ev.Weeks...),
		ev.Start,
		ev.End,
		ev.Result,
		ev.Error,
		ev.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("journal insert: %w", err)
	}
	return nil
}

// Close is a no-op; the pool belongs to the clickhouse client.
func (j *ClickHouseJournal) Close() error { return nil }

// NopJournal drops every event.
type NopJournal struct{}

func (NopJournal) Record(context.Context, *models.SyncEvent) error { return nil }
func (NopJournal) Close() error                                    { return nil }

// KafkaLogPublisher forwards aggregated error logs to Kafka.
type KafkaLogPublisher struct {
	producer *pkgkafka.Producer
}

func NewKafkaLogPublisher(producer *pkgkafka.Producer) *KafkaLogPublisher {
	return &KafkaLogPublisher{producer: producer}
}

func (p *KafkaLogPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	if strings.TrimSpace(topic) == "" {
		return fmt.Errorf("log topic is empty")
	}
	return p.producer.PublishMessage(ctx, topic, payload)
}
