package server

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"CandleSync/internal/domain/models"
	"CandleSync/pkg/config"
	xhttp "CandleSync/pkg/http"
	applogger "CandleSync/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Bootstrapper loads the initial cache status and week list.
type Bootstrapper interface {
	LoadStatus(ctx context.Context) error
	LoadWeeks(ctx context.Context, filter models.WeekFilter) error
}

// Worker is a background component started with the app and stopped on shutdown.
type Worker interface {
	Start(ctx context.Context) error
	Stop()
}

type namedCloser struct {
	name string
	c    io.Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg     *config.Config
	logger  *applogger.Logger
	sync    Bootstrapper
	http    *xhttp.Server
	workers []Worker
	closers []namedCloser
}

type Option func(*App)

// WithWorkers adds background workers, started in order.
func WithWorkers(ws ...Worker) Option {
	return func(a *App) {
		for _, w := range ws {
			if w != nil {
				a.workers = append(a.workers, w)
			}
		}
	}
}

// WithCloser registers a resource closed after the workers stop. Closers run
// in reverse registration order.
func WithCloser(name string, c io.Closer) Option {
	return func(a *App) {
		if c != nil {
			a.closers = append(a.closers, namedCloser{name: name, c: c})
		}
	}
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, logger *applogger.Logger, sync Bootstrapper, srv *xhttp.Server, opts ...Option) *App {
	if logger == nil {
		logger = applogger.Nop()
	}
	a := &App{cfg: cfg, logger: logger, sync: sync, http: srv}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Serve(ctx)
}

// Serve starts every component and blocks until ctx is done or the HTTP
// server fails to listen.
func (a *App) Serve(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.http.Start(); err != nil {
		return err
	}

	started := make([]Worker, 0, len(a.workers))
	for _, w := range a.workers {
		if err := w.Start(runCtx); err != nil {
			a.logger.Error("worker start failed", applogger.Error(err))
			cancel()
			return errors.Join(err, a.shutdown(started))
		}
		started = append(started, w)
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		a.bootstrap(gctx)
		return nil
	})

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-a.http.Errors():
		a.logger.Error("http server stopped", applogger.Error(runErr))
	}

	cancel()
	_ = g.Wait()
	return errors.Join(runErr, a.shutdown(started))
}

// bootstrap mirrors what a client does on first load. Failures leave the
// orchestrator in its error state and are not fatal.
func (a *App) bootstrap(ctx context.Context) {
	if a.sync == nil {
		return
	}
	if err := a.sync.LoadStatus(ctx); err != nil {
		a.logger.Warn("initial status load failed", applogger.Error(err))
		return
	}
	if a.cfg != nil && !a.cfg.Sync.BootstrapWeeks {
		return
	}
	if err := a.sync.LoadWeeks(ctx, models.WeekFilter{}); err != nil {
		a.logger.Warn("initial week list load failed", applogger.Error(err))
	}
}

// shutdown stops the HTTP server and workers concurrently, then closes resources.
func (a *App) shutdown(workers []Worker) error {
	a.logger.Info("shutting down...")

	timeout := 10 * time.Second
	if a.cfg != nil && a.cfg.Server.ShutdownTimeout > 0 {
		timeout = a.cfg.Server.ShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		return a.http.Stop(ctx)
	})
	for _, w := range workers {
		g.Go(func() error {
			w.Stop()
			return nil
		})
	}
	err := g.Wait()
	if err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		nc := a.closers[i]
		if cerr := nc.c.Close(); cerr != nil {
			a.logger.Warn("close error", applogger.String("resource", nc.name), applogger.Error(cerr))
			err = errors.Join(err, cerr)
		}
	}

	a.logger.Info("shutdown complete")
	return err
}
