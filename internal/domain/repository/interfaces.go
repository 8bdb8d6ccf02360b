package repository

import (
	"context"

	"CandleSync/internal/domain/models"
)

// RemoteStore is the partitioned candle cache the client synchronizes against.
type RemoteStore interface {
	CacheStatus(ctx context.Context, instrument string) ([]models.CacheStatusEntry, error)
	WeekPartitions(ctx context.Context, q models.WeekQuery) ([]models.WeekPartition, error)
	Candles(ctx context.Context, q models.CandleQuery) ([]models.RawCandle, error)
	Download(ctx context.Context, req models.DownloadRequest) (*models.DownloadResult, error)
}

// RenderSink receives the full ordered candle sequence on every change.
type RenderSink interface {
	Render(candles []models.Candle)
}

// ViewportSource notifies observers of visible-range changes. The returned
// func removes the observer.
type ViewportSource interface {
	SubscribeViewport(fn func(models.VisibleRange)) (unsubscribe func())
}

// Journal records remote side effects of the sync engine.
type Journal interface {
	Record(ctx context.Context, ev *models.SyncEvent) error
	Close() error
}

type Metrics interface {
	RecordSync(op, result string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordInFlight(inFlight bool)
	RecordDedupSkip()
}
