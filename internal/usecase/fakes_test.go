package usecase

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"CandleSync/internal/domain/models"
)

type fakeStore struct {
	mu sync.Mutex

	status      []models.CacheStatusEntry
	statusErr   error
	weeks       []models.WeekPartition
	weeksErr    error
	candles     []models.RawCandle
	candlesErr  error
	downloadErr error

	// beforeDownload runs outside the lock, e.g. to block a download.
	beforeDownload func(models.DownloadRequest)
	// afterDownload mutates remote state as a real download would.
	afterDownload func(s *fakeStore)
	// beforeCandles runs outside the lock before a candle query is answered.
	beforeCandles func(models.CandleQuery)

	statusCalls   int
	weekCalls     int
	candleCalls   int
	downloads     []models.DownloadRequest
	candleQueries []models.CandleQuery
	weekQueries   []models.WeekQuery
}

func (f *fakeStore) CacheStatus(_ context.Context, _ string) ([]models.CacheStatusEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return append([]models.CacheStatusEntry(nil), f.status...), nil
}

func (f *fakeStore) WeekPartitions(_ context.Context, q models.WeekQuery) ([]models.WeekPartition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.weekCalls++
	f.weekQueries = append(f.weekQueries, q)
	if f.weeksErr != nil {
		return nil, f.weeksErr
	}
	return append([]models.WeekPartition(nil), f.weeks...), nil
}

func (f *fakeStore) Candles(_ context.Context, q models.CandleQuery) ([]models.RawCandle, error) {
	f.mu.Lock()
	hook := f.beforeCandles
	f.mu.Unlock()
	if hook != nil {
		hook(q)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.candleCalls++
	f.candleQueries = append(f.candleQueries, q)
	if f.candlesErr != nil {
		return nil, f.candlesErr
	}
	return append([]models.RawCandle(nil), f.candles...), nil
}

func (f *fakeStore) Download(_ context.Context, req models.DownloadRequest) (*models.DownloadResult, error) {
	f.mu.Lock()
	f.downloads = append(f.downloads, req)
	hook := f.beforeDownload
	f.mu.Unlock()

	if hook != nil {
		hook(req)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	if f.afterDownload != nil {
		f.afterDownload(f)
	}
	saved := make([]models.SavedPartition, 0, len(req.Timeframes))
	for _, tf := range req.Timeframes {
		saved = append(saved, models.SavedPartition{Timeframe: tf, Path: "data/" + string(tf)})
	}
	return &models.DownloadResult{Saved: saved}, nil
}

func (f *fakeStore) downloadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.downloads)
}

func (f *fakeStore) counts() (status, weeks, candles, downloads int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls, f.weekCalls, f.candleCalls, len(f.downloads)
}

func (f *fakeStore) set(fn func(s *fakeStore)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

type recordingSink struct {
	mu      sync.Mutex
	renders [][]models.Candle
}

func (r *recordingSink) Render(c []models.Candle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renders = append(r.renders, c)
}

func (r *recordingSink) last() []models.Candle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.renders) == 0 {
		return nil
	}
	return r.renders[len(r.renders)-1]
}

func rawAt(ts int64, closePrice float64) models.RawCandle {
	return models.RawCandle{
		Time:  json.RawMessage(strconv.FormatInt(ts, 10)),
		Open:  closePrice,
		High:  closePrice,
		Low:   closePrice,
		Close: closePrice,
	}
}

func rawAtString(ts string, closePrice float64) models.RawCandle {
	b, _ := json.Marshal(ts)
	return models.RawCandle{Time: b, Open: closePrice, High: closePrice, Low: closePrice, Close: closePrice}
}

func rawSeries(from, to, step int64) []models.RawCandle {
	var out []models.RawCandle
	for ts := from; ts <= to; ts += step {
		out = append(out, rawAt(ts, float64(ts)))
	}
	return out
}

func candleTimes(cs []models.Candle) []int64 {
	out := make([]int64, len(cs))
	for i, c := range cs {
		out[i] = c.Time
	}
	return out
}
