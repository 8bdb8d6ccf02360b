package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"CandleSync/internal/domain/models"
	domrepo "CandleSync/internal/domain/repository"
	applogger "CandleSync/pkg/logger"
	"CandleSync/pkg/util"

	"github.com/benbjohnson/clock"
)

// Orchestrator drives cache status, week listing, downloads, previews and
// viewport gap-fills against the remote store. All state lives in one
// snapshot changed only through the transitions in state.go; the mutex is
// never held across remote calls.
type Orchestrator struct {
	store     domrepo.RemoteStore
	status    *StatusBook
	guard     *DedupGuard
	sink      domrepo.RenderSink
	metrics   domrepo.Metrics
	journal   domrepo.Journal
	logger    *applogger.Logger
	clock     clock.Clock
	supported []models.Timeframe

	autofillTimeout time.Duration
	guardStaleAfter time.Duration

	mu       sync.Mutex
	state    models.Snapshot
	lastGood models.Snapshot
}

type Option func(*Orchestrator)

// WithSink sets the render target for candle sequences.
func WithSink(sink domrepo.RenderSink) Option {
	return func(o *Orchestrator) {
		if sink != nil {
			o.sink = sink
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m domrepo.Metrics) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithJournal sets the sync event journal.
func WithJournal(j domrepo.Journal) Option {
	return func(o *Orchestrator) {
		if j != nil {
			o.journal = j
		}
	}
}

func WithLogger(l *applogger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithSupportedTimeframes limits selectable timeframes. The first is the initial one.
func WithSupportedTimeframes(tfs ...models.Timeframe) Option {
	return func(o *Orchestrator) {
		if len(tfs) > 0 {
			o.supported = append([]models.Timeframe(nil), tfs...)
		}
	}
}

// WithAutofillTimeout bounds a whole viewport gap-fill (download plus refetch).
func WithAutofillTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.autofillTimeout = d }
}

// WithGuardStaleAfter lets a new gap-fill start once the running one is older than d.
func WithGuardStaleAfter(d time.Duration) Option {
	return func(o *Orchestrator) { o.guardStaleAfter = d }
}

func NewOrchestrator(store domrepo.RemoteStore, instrument string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:           store,
		sink:            nopSink{},
		metrics:         nopMetrics{},
		journal:         nopJournal{},
		logger:          applogger.Nop(),
		clock:           clock.New(),
		supported:       []models.Timeframe{models.TFm5, models.TFH1},
		autofillTimeout: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(o)
	}

	o.status = NewStatusBook(store, o.supported)
	o.guard = NewDedupGuard(o.clock, o.guardStaleAfter)
	o.state = models.Snapshot{
		State:      models.StateIdle,
		Instrument: instrument,
		Timeframe:  o.supported[0],
	}
	o.lastGood = o.state.Clone()
	return o
}

// Snapshot returns a copy of the current state.
func (o *Orchestrator) Snapshot() models.Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Clone()
}

// Guard exposes the gap-fill dedup guard.
func (o *Orchestrator) Guard() *DedupGuard { return o.guard }

// SupportedTimeframes returns the selectable timeframes.
func (o *Orchestrator) SupportedTimeframes() []models.Timeframe {
	return append([]models.Timeframe(nil), o.supported...)
}

// SetInstrument switches instrument and drops everything derived from the old one.
func (o *Orchestrator) SetInstrument(instrument string) error {
	instrument = strings.TrimSpace(instrument)
	if instrument == "" {
		return o.reject(validationErrorf("instrument is required"))
	}

	o.mu.Lock()
	if o.state.Instrument == instrument {
		o.mu.Unlock()
		return nil
	}
	o.state = instrumentChanged(instrument)(o.state)
	o.lastGood = o.state.Clone()
	o.mu.Unlock()

	o.status.Reset()
	o.guard.Reset()
	o.logger.Info("instrument changed", applogger.String("instrument", instrument))
	return nil
}

// SelectTimeframe switches timeframe and clears the rendered view and week selection.
func (o *Orchestrator) SelectTimeframe(tf models.Timeframe) error {
	if !o.supports(tf) {
		return o.reject(validationErrorf("timeframe %s is not supported", tf))
	}

	o.mu.Lock()
	if o.state.Timeframe == tf {
		o.mu.Unlock()
		return nil
	}
	o.state = timeframeChanged(tf)(o.state)
	o.lastGood = o.state.Clone()
	o.mu.Unlock()

	o.guard.Reset()
	return nil
}

// LoadStatus refreshes the cache status model and applies the timeframe default policy.
func (o *Orchestrator) LoadStatus(ctx context.Context) error {
	started := o.clock.Now()
	snap := o.apply(enter(models.StateLoading))

	if _, err := o.status.Refresh(ctx, snap.Instrument); err != nil {
		return o.fail("load_status", newSyncError(KindStatusFetch, "failed to load cache status", err))
	}

	entries := o.status.Entries()
	tf := o.status.DefaultTimeframe(snap.Timeframe)
	if tf != snap.Timeframe {
		o.guard.Reset()
	}
	o.commit(statusLoaded(entries, tf))
	o.observe("load_status", started)
	return nil
}

// RefreshStatus reloads the cache status in the background. It leaves the
// sync state and any reported error untouched; on failure the previous
// status stays in place.
func (o *Orchestrator) RefreshStatus(ctx context.Context) error {
	started := o.clock.Now()
	instrument := o.Snapshot().Instrument
	if _, err := o.status.Refresh(ctx, instrument); err != nil {
		o.metrics.RecordSync("refresh_status", "error")
		return newSyncError(KindStatusFetch, "failed to refresh cache status", err)
	}

	entries := o.status.Entries()
	o.mu.Lock()
	if o.state.Instrument != instrument {
		o.mu.Unlock()
		return nil
	}
	tf := o.status.DefaultTimeframe(o.state.Timeframe)
	changed := tf != o.state.Timeframe
	o.state = statusRefreshed(entries, tf)(o.state)
	o.lastGood = statusRefreshed(entries, tf)(o.lastGood)
	o.mu.Unlock()

	if changed {
		o.guard.Reset()
	}
	o.observe("refresh_status", started)
	return nil
}

// LoadWeeks lists week partitions for the current timeframe and drops a
// selection that is no longer listed.
func (o *Orchestrator) LoadWeeks(ctx context.Context, filter models.WeekFilter) error {
	started := o.clock.Now()
	filter = filter.Normalized()
	snap := o.apply(enter(models.StateLoading))

	weeks, err := o.store.WeekPartitions(ctx, models.WeekQuery{
		Instrument: snap.Instrument,
		Timeframe:  snap.Timeframe,
		Filter:     filter,
	})
	if err != nil {
		return o.fail("load_weeks", remoteFailure(KindWeekListFetch, "failed to load week partitions", err),
			weeksCleared,
			func(s models.Snapshot) models.Snapshot {
				s.WeekFilter = filter
				s.WeekView = true
				return s
			})
	}

	o.commit(weeksLoaded(weeks, filter))
	o.observe("load_weeks", started)
	return nil
}

// SelectWeek selects a listed week partition.
func (o *Orchestrator) SelectWeek(key string) error {
	o.mu.Lock()
	w := findWeek(o.state.Weeks, key)
	if w == nil {
		o.mu.Unlock()
		return o.reject(validationErrorf("week %s is not in the partition list", key))
	}
	o.state = weekSelected(*w)(o.state)
	o.lastGood = o.state.Clone()
	o.mu.Unlock()
	return nil
}

// SelectRange selects a manual date range instead of a week.
func (o *Orchestrator) SelectRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return o.reject(validationErrorf("range start and end are required"))
	}
	if end.Before(start) {
		return o.reject(validationErrorf("range end %s is before start %s", util.FormatNaive(end), util.FormatNaive(start)))
	}
	o.commit(rangeSelected(models.TimeWindow{Start: start.UTC(), End: end.UTC()}))
	return nil
}

// RequestDownload asks the remote store to materialize the selected window.
// Status and, when shown, the week list are re-fetched afterwards whatever the outcome.
func (o *Orchestrator) RequestDownload(ctx context.Context, tfs ...models.Timeframe) (*models.DownloadResult, error) {
	snap := o.Snapshot()
	window, label, ok := selectionWindow(snap)
	if !ok {
		return nil, o.reject(validationErrorf("select a week or a date range before downloading"))
	}
	if len(tfs) == 0 {
		tfs = []models.Timeframe{snap.Timeframe}
	}
	for _, tf := range tfs {
		if !o.supports(tf) {
			return nil, o.reject(validationErrorf("timeframe %s is not supported", tf))
		}
	}

	started := o.clock.Now()
	res, err := o.download(ctx, "download", snap.Instrument, tfs, window)
	if err != nil {
		return nil, err
	}
	o.commit(noticed("downloaded %s (%d file(s))", label, len(res.Saved)))
	o.observe("download", started)
	return res, nil
}

// RequestPreview renders cached candles for window, or for the current
// selection when window is nil. The timeframe must be cached remotely.
func (o *Orchestrator) RequestPreview(ctx context.Context, window *models.TimeWindow) error {
	snap := o.Snapshot()
	entry, ok := o.status.StatusFor(snap.Timeframe)
	if !ok || !entry.Cached {
		return o.reject(validationErrorf("timeframe %s has no cached data, download it first", snap.Timeframe))
	}

	var w models.TimeWindow
	if window != nil {
		if window.End.Before(window.Start) {
			return o.reject(validationErrorf("preview end is before start"))
		}
		w = *window
	} else if w, _, ok = selectionWindow(snap); !ok {
		return o.reject(validationErrorf("select a week or a date range to preview"))
	}

	started := o.clock.Now()
	o.apply(enter(models.StateLoading))
	candles, err := o.fetchCandles(ctx, snap.Instrument, snap.Timeframe, w)
	if err != nil {
		return o.fail("preview", remoteFailure(KindCandleFetch, "failed to load candles", err))
	}
	if o.render(snap, candles) {
		o.commit(noticed("loaded %d candles", len(candles)))
	}
	o.observe("preview", started)
	return nil
}

// OnViewportChanged fills data missing on either side of the visible range.
// It reports whether a gap-fill ran. A fill with the same request key as the
// previous one, or while another is in flight, is skipped.
func (o *Orchestrator) OnViewportChanged(ctx context.Context, r models.VisibleRange) (bool, error) {
	if r.From <= 0 || r.To < r.From {
		return false, o.reject(validationErrorf("invalid visible range [%d, %d]", r.From, r.To))
	}

	snap := o.Snapshot()
	if snap.DataRange == nil {
		return false, nil
	}
	if DetectGaps(snap.DataRange, r).Empty() {
		return false, nil
	}

	union := UnionRange(snap.DataRange, r)
	key := BuildSyncKey(snap.Timeframe, union)
	release, ok := o.guard.TryAcquire(key)
	if !ok {
		o.metrics.RecordDedupSkip()
		return false, nil
	}
	defer release()

	o.metrics.RecordInFlight(true)
	defer o.metrics.RecordInFlight(false)

	if o.autofillTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.autofillTimeout)
		defer cancel()
	}

	started := o.clock.Now()
	window := models.WindowFromRange(union)
	o.logger.Info("filling viewport gap",
		applogger.String("key", key),
		applogger.String("start", util.FormatNaive(window.Start)),
		applogger.String("end", util.FormatNaive(window.End)),
	)

	if _, err := o.download(ctx, "autofill", snap.Instrument, []models.Timeframe{snap.Timeframe}, window); err != nil {
		return true, err
	}

	o.apply(enter(models.StateRefetching))
	candles, err := o.fetchCandles(ctx, snap.Instrument, snap.Timeframe, window)
	if err != nil {
		return true, o.fail("autofill", remoteFailure(KindCandleFetch, "failed to reload candles", err))
	}
	o.render(snap, candles)
	o.observe("autofill", started)
	return true, nil
}

func (o *Orchestrator) download(ctx context.Context, op, instrument string, tfs []models.Timeframe, window models.TimeWindow) (*models.DownloadResult, error) {
	started := o.clock.Now()
	o.apply(enter(models.StateDownloading))

	ev := models.NewSyncEvent(op, instrument, started)
	ev.Timeframes = tfs
	ev.Start, ev.End = window.Start, window.End
	ev.Weeks = util.WeekKeysBetween(window.Start, window.End)

	res, err := o.store.Download(ctx, models.DownloadRequest{
		Instrument: instrument,
		Timeframes: tfs,
		Start:      util.FormatNaive(window.Start),
		End:        util.FormatNaive(window.End),
	})
	o.record(ctx, ev, started, err)

	refreshErr := o.refreshAfterDownload(ctx)
	if err != nil {
		return nil, o.fail(op, remoteFailure(KindDownload, "download failed", err))
	}
	if refreshErr != nil {
		return nil, refreshErr
	}
	if res == nil {
		res = &models.DownloadResult{}
	}
	return res, nil
}

func (o *Orchestrator) refreshAfterDownload(ctx context.Context) error {
	if err := o.LoadStatus(ctx); err != nil {
		return err
	}
	if snap := o.Snapshot(); snap.WeekView {
		return o.LoadWeeks(ctx, snap.WeekFilter)
	}
	return nil
}

func (o *Orchestrator) fetchCandles(ctx context.Context, instrument string, tf models.Timeframe, w models.TimeWindow) ([]models.Candle, error) {
	raw, err := o.store.Candles(ctx, models.CandleQuery{Instrument: instrument, Timeframe: tf, Window: w})
	if err != nil {
		return nil, err
	}
	return NormalizeCandles(raw), nil
}

// render replaces the displayed sequence unless the instrument or timeframe
// changed since the fetch started. A discarded fetch still ends in Ready.
func (o *Orchestrator) render(basis models.Snapshot, candles []models.Candle) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Instrument != basis.Instrument || o.state.Timeframe != basis.Timeframe {
		o.logger.Debug("discarding stale candles",
			applogger.String("instrument", basis.Instrument),
			applogger.String("timeframe", string(basis.Timeframe)),
		)
		o.state = enter(models.StateReady)(o.state)
		o.lastGood = o.state.Clone()
		return false
	}
	o.state = candlesRendered(candles)(o.state)
	o.lastGood = o.state.Clone()
	o.sink.Render(append([]models.Candle(nil), candles...))
	return true
}

func (o *Orchestrator) apply(t transition) models.Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = t(o.state)
	return o.state.Clone()
}

func (o *Orchestrator) commit(t transition) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = t(o.state)
	o.lastGood = o.state.Clone()
}

func (o *Orchestrator) fail(op string, err *SyncError, adjust ...transition) error {
	o.mu.Lock()
	for _, t := range adjust {
		o.lastGood = t(o.lastGood)
	}
	o.state = failed(o.lastGood, err)
	o.mu.Unlock()

	o.metrics.RecordError(string(err.Kind))
	o.metrics.RecordSync(op, "error")
	o.logger.Error("sync operation failed",
		applogger.String("op", op),
		applogger.String("kind", string(err.Kind)),
		applogger.Error(err),
	)
	return err
}

func (o *Orchestrator) reject(err *SyncError) error {
	o.apply(rejected(err))
	o.metrics.RecordError(string(err.Kind))
	o.logger.Warn("sync request rejected", applogger.String("reason", err.Message))
	return err
}

func (o *Orchestrator) observe(op string, started time.Time) {
	o.metrics.RecordSync(op, "ok")
	o.metrics.RecordLatency(op, o.clock.Since(started).Seconds())
}

func (o *Orchestrator) record(ctx context.Context, ev *models.SyncEvent, started time.Time, err error) {
	ev.DurationMS = o.clock.Since(started).Milliseconds()
	if err != nil {
		ev.Result = "error"
		ev.Error = err.Error()
	}
	if jerr := o.journal.Record(context.WithoutCancel(ctx), ev); jerr != nil {
		o.logger.Warn("journal record failed", applogger.String("op", ev.Op), applogger.Error(jerr))
	}
}

func (o *Orchestrator) supports(tf models.Timeframe) bool {
	for _, s := range o.supported {
		if s == tf {
			return true
		}
	}
	return false
}
