package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"CandleSync/internal/domain/models"
	domrepo "CandleSync/internal/domain/repository"
	applogger "CandleSync/pkg/logger"

	"github.com/benbjohnson/clock"
)

// ViewportHandler is the part of the orchestrator the listener drives.
type ViewportHandler interface {
	OnViewportChanged(ctx context.Context, r models.VisibleRange) (bool, error)
}

// ViewportListener sits between the chart's viewport notifications and the
// orchestrator. It validates ranges, drops repeats, debounces bursts and
// forwards only the latest range from a single worker.
type ViewportListener struct {
	source   domrepo.ViewportSource
	handler  ViewportHandler
	metrics  domrepo.Metrics
	logger   *applogger.Logger
	clock    clock.Clock
	debounce time.Duration

	mu          sync.Mutex
	started     bool
	last        *models.VisibleRange
	pending     models.VisibleRange
	timer       *clock.Timer
	gen         uint64
	unsubscribe func()
	cancel      context.CancelFunc

	wakeCh chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
}

type ListenerOption func(*ViewportListener)

// WithDebounce sets the quiet period after the last event before it is
// forwarded. Zero forwards immediately.
func WithDebounce(d time.Duration) ListenerOption {
	return func(l *ViewportListener) {
		if d >= 0 {
			l.debounce = d
		}
	}
}

func WithListenerClock(c clock.Clock) ListenerOption {
	return func(l *ViewportListener) {
		if c != nil {
			l.clock = c
		}
	}
}

func WithListenerLogger(lg *applogger.Logger) ListenerOption {
	return func(l *ViewportListener) {
		if lg != nil {
			l.logger = lg
		}
	}
}

func WithListenerMetrics(m domrepo.Metrics) ListenerOption {
	return func(l *ViewportListener) {
		if m != nil {
			l.metrics = m
		}
	}
}

// NewViewportListener creates a listener. Nothing is subscribed until Start.
func NewViewportListener(source domrepo.ViewportSource, handler ViewportHandler, opts ...ListenerOption) *ViewportListener {
	l := &ViewportListener{
		source:   source,
		handler:  handler,
		logger:   applogger.Nop(),
		clock:    clock.New(),
		debounce: 250 * time.Millisecond,
		wakeCh:   make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start subscribes to the viewport source and launches the worker. ctx bounds
// every forwarded call.
func (l *ViewportListener) Start(ctx context.Context) error {
	if l.source == nil || l.handler == nil {
		return fmt.Errorf("viewport listener: source and handler are required")
	}

	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return nil
	}
	select {
	case <-l.stopCh:
		l.mu.Unlock()
		return fmt.Errorf("viewport listener: already stopped")
	default:
	}
	l.started = true
	workerCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.mu.Unlock()

	l.wg.Add(1)
	go l.run(workerCtx)

	unsubscribe := l.source.SubscribeViewport(l.onEvent)
	l.mu.Lock()
	l.unsubscribe = unsubscribe
	l.mu.Unlock()
	return nil
}

// Stop unsubscribes, cancels a pending debounce and waits for the worker.
func (l *ViewportListener) Stop() {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return
	}
	l.started = false
	unsubscribe := l.unsubscribe
	l.unsubscribe = nil
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.gen++
	cancel := l.cancel
	l.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	close(l.stopCh)
	cancel()
	l.wg.Wait()
}

func (l *ViewportListener) onEvent(r models.VisibleRange) {
	if err := validateRange(r); err != nil {
		if l.metrics != nil {
			l.metrics.RecordError("viewport_invalid")
		}
		l.logger.Debug("dropping viewport event", applogger.Error(err))
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.started {
		return
	}
	if l.last != nil && *l.last == r {
		return
	}
	l.last = &r
	l.pending = r

	if l.debounce <= 0 {
		l.wake()
		return
	}
	if l.timer != nil {
		l.timer.Stop()
	}
	l.gen++
	gen := l.gen
	l.timer = l.clock.AfterFunc(l.debounce, func() { l.fire(gen) })
}

// fire ignores timers superseded by a later event or by Stop.
func (l *ViewportListener) fire(gen uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.started || gen != l.gen {
		return
	}
	l.timer = nil
	l.wake()
}

// wake must be called with l.mu held.
func (l *ViewportListener) wake() {
	select {
	case l.wakeCh <- struct{}{}:
	default:
	}
}

func (l *ViewportListener) run(ctx context.Context) {
	defer l.wg.Done()
	for {
		select {
		case <-l.stopCh:
			return
		case <-l.wakeCh:
			l.mu.Lock()
			r := l.pending
			l.mu.Unlock()

			started := l.clock.Now()
			filled, err := l.handler.OnViewportChanged(ctx, r)
			if err != nil {
				l.logger.Warn("viewport gap-fill failed",
					applogger.Int64("from", r.From),
					applogger.Int64("to", r.To),
					applogger.Error(err),
				)
				continue
			}
			if filled && l.metrics != nil {
				l.metrics.RecordLatency("viewport_fill", l.clock.Since(started).Seconds())
			}
		}
	}
}

func validateRange(r models.VisibleRange) error {
	if r.From <= 0 || r.To <= 0 {
		return fmt.Errorf("non-positive bound in [%d, %d]", r.From, r.To)
	}
	if r.To < r.From {
		return fmt.Errorf("inverted range [%d, %d]", r.From, r.To)
	}
	return nil
}
