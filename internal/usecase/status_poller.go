package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	applogger "CandleSync/pkg/logger"

	"github.com/robfig/cron/v3"
)

// StatusRefresher is the part of the orchestrator the poller drives.
type StatusRefresher interface {
	RefreshStatus(ctx context.Context) error
}

// StatusPoller refreshes the cache status on a cron schedule so downloads made
// by other clients show up without user action.
type StatusPoller struct {
	spec    string
	timeout time.Duration
	target  StatusRefresher
	logger  *applogger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewStatusPoller creates a poller. An empty spec disables polling.
func NewStatusPoller(spec string, timeout time.Duration, target StatusRefresher, logger *applogger.Logger) *StatusPoller {
	if logger == nil {
		logger = applogger.Nop()
	}
	return &StatusPoller{
		spec:    spec,
		timeout: timeout,
		target:  target,
		logger:  logger,
	}
}

// Start schedules the refresh job. It returns an error for an invalid spec.
func (p *StatusPoller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running || p.spec == "" {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(p.spec, func() { p.tick(ctx) }); err != nil {
		return fmt.Errorf("status poller schedule %q: %w", p.spec, err)
	}
	c.Start()
	p.cron = c
	p.running = true
	p.logger.Info("status poller started", applogger.String("schedule", p.spec))
	return nil
}

// Stop halts scheduling and waits for a running refresh.
func (p *StatusPoller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	c := p.cron
	p.running = false
	p.mu.Unlock()

	<-c.Stop().Done()
}

func (p *StatusPoller) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	if err := p.target.RefreshStatus(ctx); err != nil {
		p.logger.Warn("scheduled status refresh failed", applogger.Error(err))
	}
}
