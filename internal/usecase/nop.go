package usecase

import (
	"context"

	"CandleSync/internal/domain/models"
)

type nopSink struct{}

func (nopSink) Render([]models.Candle) {}

type nopMetrics struct{}

func (nopMetrics) RecordSync(string, string)     {}
func (nopMetrics) RecordError(string)            {}
func (nopMetrics) RecordLatency(string, float64) {}
func (nopMetrics) RecordInFlight(bool)           {}
func (nopMetrics) RecordDedupSkip()              {}

type nopJournal struct{}

func (nopJournal) Record(context.Context, *models.SyncEvent) error { return nil }
func (nopJournal) Close() error                                    { return nil }
