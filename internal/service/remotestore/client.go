package remotestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"CandleSync/internal/domain/models"
	"CandleSync/pkg/cache"
	xhttp "CandleSync/pkg/http"
	applogger "CandleSync/pkg/logger"
	"CandleSync/pkg/util"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"
)

// maxDetail caps a non-JSON error body surfaced as a detail message.
const maxDetail = 512

// Client talks to the remote candle cache over HTTP/JSON. Idempotent GETs are
// collapsed per URL and retried with bounded backoff; downloads are sent once.
type Client struct {
	baseURL string
	http    *xhttp.Client
	logger  *applogger.Logger

	cache    cache.Service
	cacheTTL time.Duration

	retries         int
	initialInterval time.Duration
	maxInterval     time.Duration
	sharedTimeout   time.Duration

	group singleflight.Group
}

type Option func(*Client)

// WithCache keeps candle responses in c for ttl. Downloads invalidate the
// entries of their instrument.
func WithCache(c cache.Service, ttl time.Duration) Option {
	return func(cl *Client) {
		cl.cache = c
		cl.cacheTTL = ttl
	}
}

// WithRetry sets how many times a failed GET is retried and the backoff bounds.
func WithRetry(maxRetries int, initial, maxInterval time.Duration) Option {
	return func(cl *Client) {
		cl.retries = maxRetries
		cl.initialInterval = initial
		cl.maxInterval = maxInterval
	}
}

func WithLogger(l *applogger.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// WithSharedTimeout bounds a GET shared among callers. It runs detached from
// the caller that started it, so one cancelled caller does not fail the rest.
func WithSharedTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.sharedTimeout = d
		}
	}
}

// WithHTTPClient sets the transport client.
func WithHTTPClient(c *xhttp.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// New creates a client for the remote store at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("remote store base url %q is invalid", baseURL)
	}

	c := &Client{
		baseURL:         u.String(),
		logger:          applogger.Nop(),
		retries:         2,
		initialInterval: 250 * time.Millisecond,
		maxInterval:     2 * time.Second,
		sharedTimeout:   3 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = xhttp.NewClient()
	}
	return c, nil
}

type cacheStatusResponse struct {
	Instrument string                    `json:"instrument"`
	Timeframes []models.CacheStatusEntry `json:"timeframes"`
}

type candlesResponse struct {
	Candles []models.RawCandle `json:"candles"`
}

type weekDTO struct {
	Key    string `json:"key"`
	Cached bool   `json:"cached"`
}

type weeksResponse struct {
	Weeks []weekDTO `json:"weeks"`
}

type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

// CacheStatus returns the per-timeframe cache summary of instrument.
func (c *Client) CacheStatus(ctx context.Context, instrument string) ([]models.CacheStatusEntry, error) {
	var resp cacheStatusResponse
	q := url.Values{"instrument": {instrument}}
	if err := c.get(ctx, "/api/cache", q, &resp); err != nil {
		return nil, err
	}
	return resp.Timeframes, nil
}

// WeekPartitions lists the week partitions of one timeframe. Bounds are
// re-derived from each key; malformed keys are skipped.
func (c *Client) WeekPartitions(ctx context.Context, wq models.WeekQuery) ([]models.WeekPartition, error) {
	q := url.Values{"instrument": {wq.Instrument}}
	if wq.Filter.Start != nil {
		q.Set("start", util.FormatNaive(*wq.Filter.Start))
	}
	if wq.Filter.End != nil {
		q.Set("end", util.FormatNaive(*wq.Filter.End))
	}

	var resp weeksResponse
	if err := c.get(ctx, "/api/weeks/"+url.PathEscape(string(wq.Timeframe)), q, &resp); err != nil {
		return nil, err
	}

	out := make([]models.WeekPartition, 0, len(resp.Weeks))
	for _, w := range resp.Weeks {
		start, end, ok := util.WeekToRange(w.Key)
		if !ok {
			c.logger.Debug("skipping malformed week key", applogger.String("key", w.Key))
			continue
		}
		out = append(out, models.WeekPartition{Key: w.Key, Start: start, End: end, Cached: w.Cached})
	}
	return out, nil
}

// Candles returns the cached candles of one timeframe within the query window.
func (c *Client) Candles(ctx context.Context, cq models.CandleQuery) ([]models.RawCandle, error) {
	start := util.FormatNaive(cq.Window.Start)
	end := util.FormatNaive(cq.Window.End)
	key := cache.GenerateKeyWithParams("candles", cq.Instrument, cq.Timeframe, start, end)

	if c.cache != nil {
		var hit []models.RawCandle
		if err := c.cache.Get(ctx, key, &hit); err == nil {
			return hit, nil
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Debug("candle cache read failed", applogger.String("key", key), applogger.Error(err))
		}
	}

	q := url.Values{
		"instrument": {cq.Instrument},
		"start":      {start},
		"end":        {end},
	}
	var resp candlesResponse
	if err := c.get(ctx, "/api/preview/"+url.PathEscape(string(cq.Timeframe)), q, &resp); err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, resp.Candles, c.cacheTTL); err != nil {
			c.logger.Debug("candle cache write failed", applogger.String("key", key), applogger.Error(err))
		}
	}
	return resp.Candles, nil
}

// Download asks the remote store to fetch and persist a range. It is not retried.
func (c *Client) Download(ctx context.Context, req models.DownloadRequest) (*models.DownloadResult, error) {
	var res models.DownloadResult
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    c.baseURL + "/api/download",
		Body:   req,
	}, &res)

	// Files may have been written even when the call failed.
	c.invalidate(ctx, req.Instrument)

	if err != nil {
		return nil, c.remoteError(err)
	}
	return &res, nil
}

func (c *Client) invalidate(ctx context.Context, instrument string) {
	if c.cache == nil {
		return
	}
	pattern := cache.BuildPattern(cache.GenerateKeyWithParams("candles", instrument) + ":")
	if err := c.cache.DeleteByPattern(context.WithoutCancel(ctx), pattern); err != nil {
		c.logger.Warn("candle cache invalidation failed", applogger.String("pattern", pattern), applogger.Error(err))
	}
}

// get shares one in-flight request among callers with the same URL. The
// shared request is bounded by sharedTimeout only; each caller stops waiting
// when its own context is done.
func (c *Client) get(ctx context.Context, path string, q url.Values, dest interface{}) error {
	target := c.baseURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	ch := c.group.DoChan(target, func() (interface{}, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.sharedTimeout)
		defer cancel()
		return c.getWithRetry(sctx, target)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return fmt.Errorf("remote store: %w", ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		return c.remoteError(res.Err)
	}
	if res.Shared {
		c.logger.Debug("shared in-flight request", applogger.String("url", target))
	}

	body := res.Val.([]byte)
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) getWithRetry(ctx context.Context, target string) ([]byte, error) {
	var body []byte
	op := func() error {
		b, err := c.http.SendAndRead(ctx, &xhttp.RequestOptions{Method: xhttp.MethodGet, URL: target})
		if err != nil {
			var se *xhttp.StatusError
			if errors.As(err, &se) && !se.Temporary() {
				return backoff.Permanent(err)
			}
			return err
		}
		body = b
		return nil
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.initialInterval
	exp.MaxInterval = c.maxInterval
	exp.MaxElapsedTime = 0

	var policy backoff.BackOff = exp
	if c.retries >= 0 {
		policy = backoff.WithMaxRetries(exp, uint64(c.retries))
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("remote store request failed, retrying",
			applogger.String("url", target),
			applogger.Duration("wait_ms", wait),
			applogger.Error(err),
		)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(policy, ctx), notify); err != nil {
		return nil, err
	}
	return body, nil
}

// remoteError turns a non-2xx answer into *models.RemoteError carrying the
// server's detail message.
func (c *Client) remoteError(err error) error {
	var se *xhttp.StatusError
	if !errors.As(err, &se) {
		return fmt.Errorf("remote store: %w", err)
	}
	return &models.RemoteError{Status: se.Code, Detail: detailOf(se.Body)}
}

func detailOf(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && len(er.Detail) > 0 && string(er.Detail) != "null" {
		var s string
		if err := json.Unmarshal(er.Detail, &s); err == nil {
			return s
		}
		return string(er.Detail)
	}
	detail := strings.TrimSpace(string(body))
	if len(detail) > maxDetail {
		detail = detail[:maxDetail]
	}
	return detail
}
