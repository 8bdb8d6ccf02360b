package remotestore

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"CandleSync/internal/domain/models"
	"CandleSync/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	opts = append([]Option{WithRetry(2, time.Millisecond, 5*time.Millisecond)}, opts...)
	c, err := New(srv.URL+"/", opts...)
	require.NoError(t, err)
	return c
}

func TestNewRejectsInvalidURL(t *testing.T) {
	_, err := New("not a url")
	require.Error(t, err)
	_, err = New("localhost:8000")
	require.Error(t, err)
}

func TestCacheStatus(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/cache", r.URL.Path)
		assert.Equal(t, "XAU/USD", r.URL.Query().Get("instrument"))
		_, _ = io.WriteString(w, `{"instrument":"XAU/USD","timeframes":[
			{"timeframe":"m5","cached":true,"rows":2016,"last_modified":"2024-01-08T10:00:00.123456+00:00","partitions":1,"path":"data/XAU_USD/m5"},
			{"timeframe":"H1","cached":false,"rows":0,"last_modified":null,"partitions":0,"path":"data/XAU_USD/H1"}]}`)
	}))

	entries, err := c.CacheStatus(context.Background(), "XAU/USD")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.TFm5, entries[0].Timeframe)
	assert.True(t, entries[0].Cached)
	assert.Equal(t, 2016, entries[0].Rows)
	require.NotNil(t, entries[0].LastModified)
	assert.Equal(t, 2024, entries[0].LastModified.Year())
	assert.Nil(t, entries[1].LastModified)
}

func TestWeekPartitionsDerivesBoundsFromKey(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/weeks/m5", r.URL.Path)
		assert.Equal(t, "2024-01-01T00:00:00", r.URL.Query().Get("start"))
		assert.Empty(t, r.URL.Query().Get("end"))
		_, _ = io.WriteString(w, `{"weeks":[
			{"key":"2024-W01","start":"bogus","end":"bogus","cached":true},
			{"key":"2024-W99","cached":false},
			{"key":"garbage","cached":false}]}`)
	}))

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	weeks, err := c.WeekPartitions(context.Background(), models.WeekQuery{
		Instrument: "XAU/USD",
		Timeframe:  models.TFm5,
		Filter:     models.WeekFilter{Start: &start},
	})
	require.NoError(t, err)
	require.Len(t, weeks, 1)
	assert.Equal(t, "2024-W01", weeks[0].Key)
	assert.Equal(t, start, weeks[0].Start)
	assert.Equal(t, time.Date(2024, 1, 7, 23, 59, 59, 0, time.UTC), weeks[0].End)
	assert.True(t, weeks[0].Cached)
}

func TestCandlesUsesCacheUntilDownload(t *testing.T) {
	var previews, downloads atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/preview/m5", func(w http.ResponseWriter, r *http.Request) {
		previews.Add(1)
		assert.Equal(t, "2024-01-01T00:00:00", r.URL.Query().Get("start"))
		assert.Equal(t, "2024-01-07T23:59:59", r.URL.Query().Get("end"))
		_, _ = io.WriteString(w, `{"instrument":"XAU/USD","timeframe":"m5","candles":[
			{"time":"2024-01-01T00:00:00","open":1,"high":2,"low":0.5,"close":1.5},
			{"time":1704067500,"open":1.5,"high":2,"low":1,"close":1.8}]}`)
	})
	mux.HandleFunc("/api/download", func(w http.ResponseWriter, r *http.Request) {
		downloads.Add(1)
		var req models.DownloadRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []models.Timeframe{models.TFm5}, req.Timeframes)
		_, _ = io.WriteString(w, `{"saved":[{"timeframe":"m5","path":"data/XAU_USD/m5/2024-W01.parquet"}]}`)
	})

	mc := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	defer mc.Close()
	c := newTestClient(t, mux, WithCache(mc, time.Minute))
	ctx := context.Background()

	q := models.CandleQuery{
		Instrument: "XAU/USD",
		Timeframe:  models.TFm5,
		Window: models.TimeWindow{
			Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 1, 7, 23, 59, 59, 0, time.UTC),
		},
	}

	first, err := c.Candles(ctx, q)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.JSONEq(t, `"2024-01-01T00:00:00"`, string(first[0].Time))

	second, err := c.Candles(ctx, q)
	require.NoError(t, err)
	assert.Len(t, second, 2)
	assert.Equal(t, int32(1), previews.Load())

	res, err := c.Download(ctx, models.DownloadRequest{
		Instrument: "XAU/USD",
		Timeframes: []models.Timeframe{models.TFm5},
		Start:      "2024-01-01T00:00:00",
		End:        "2024-01-07T23:59:59",
	})
	require.NoError(t, err)
	require.Len(t, res.Saved, 1)

	_, err = c.Candles(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, int32(2), previews.Load())
	assert.Equal(t, int32(1), downloads.Load())
}

func TestGetRetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"instrument":"XAU/USD","timeframes":[]}`)
	}))

	_, err := c.CacheStatus(context.Background(), "XAU/USD")
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
}

func TestGetGivesUpAfterMaxRetries(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, `{"detail":"upstream down"}`)
	}))

	_, err := c.CacheStatus(context.Background(), "XAU/USD")
	var re *models.RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusBadGateway, re.Status)
	assert.Equal(t, "upstream down", re.Detail)
	assert.Equal(t, int32(3), hits.Load())
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"detail":"Cache not found"}`)
	}))

	_, err := c.Candles(context.Background(), models.CandleQuery{Instrument: "XAU/USD", Timeframe: models.TFH1})
	var re *models.RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "Cache not found", re.Detail)
	assert.Equal(t, int32(1), hits.Load())
}

func TestDownloadIsNotRetriedAndSurfacesDetail(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"detail":"ForexConnect login failed"}`)
	}))

	_, err := c.Download(context.Background(), models.DownloadRequest{Instrument: "XAU/USD", Timeframes: []models.Timeframe{models.TFm5}})
	var re *models.RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "ForexConnect login failed", re.Detail)
	assert.Equal(t, int32(1), hits.Load())
}

func TestDetailOf(t *testing.T) {
	assert.Equal(t, "plain", detailOf([]byte(`{"detail":"plain"}`)))
	assert.Equal(t, `[{"loc":["body","start"],"msg":"invalid"}]`, detailOf([]byte(`{"detail":[{"loc":["body","start"],"msg":"invalid"}]}`)))
	assert.Equal(t, "Internal Server Error", detailOf([]byte("Internal Server Error\n")))
	assert.Equal(t, "", detailOf(nil))
}

func TestConcurrentGetsShareOneRequest(t *testing.T) {
	var hits atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		once.Do(func() { close(entered) })
		<-release
		_, _ = io.WriteString(w, `{"instrument":"XAU/USD","timeframes":[{"timeframe":"m5","cached":true}]}`)
	}))

	const callers = 5
	var wg sync.WaitGroup
	results := make(chan int, callers)
	call := func() {
		defer wg.Done()
		entries, err := c.CacheStatus(context.Background(), "XAU/USD")
		if assert.NoError(t, err) {
			results <- len(entries)
		}
	}

	wg.Add(1)
	go call()
	<-entered
	for i := 1; i < callers; i++ {
		wg.Add(1)
		go call()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	for n := range results {
		assert.Equal(t, 1, n)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestSharedGetSurvivesCancelledStarter(t *testing.T) {
	var hits atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		once.Do(func() { close(entered) })
		<-release
		_, _ = io.WriteString(w, `{"instrument":"XAU/USD","timeframes":[{"timeframe":"H1","cached":true}]}`)
	}))

	starterCtx, cancel := context.WithCancel(context.Background())
	starterErr := make(chan error, 1)
	go func() {
		_, err := c.CacheStatus(starterCtx, "XAU/USD")
		starterErr <- err
	}()
	<-entered

	waiterDone := make(chan []models.CacheStatusEntry, 1)
	go func() {
		entries, err := c.CacheStatus(context.Background(), "XAU/USD")
		assert.NoError(t, err)
		waiterDone <- entries
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	require.ErrorIs(t, <-starterErr, context.Canceled)
	close(release)

	entries := <-waiterDone
	require.Len(t, entries, 1)
	assert.Equal(t, models.TFH1, entries[0].Timeframe)
	assert.Equal(t, int32(1), hits.Load())
}
