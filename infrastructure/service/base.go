// Package service provides the shared process lifecycle every cmd/* binary
// in the transactional core is built on: graceful stop, background ticker
// workers (the delivery-tracker republish sweep), and a health/readiness
// surface.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/kugelpos/transactional-core/infrastructure/logging"
)

// BaseService wires the worker/lifecycle/health plumbing shared by every
// producer service (Terminal, Cart) and consumer service (Report, Stock).
type BaseService struct {
	name      string
	logger    *logging.Logger
	startTime time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	healthMu sync.RWMutex
	healthFn func(ctx context.Context) error
}

// NewBase constructs a BaseService for the named process.
func NewBase(name string, logger *logging.Logger) *BaseService {
	if logger == nil {
		logger = logging.NewFromEnv(name)
	}
	return &BaseService{
		name:      name,
		logger:    logger,
		startTime: time.Now(),
		stopCh:    make(chan struct{}),
	}
}

func (b *BaseService) Name() string { return b.name }

func (b *BaseService) Logger() *logging.Logger { return b.logger }

func (b *BaseService) Uptime() time.Duration { return time.Since(b.startTime) }

// WithHealthCheck installs the function used by CheckHealth.
func (b *BaseService) WithHealthCheck(fn func(ctx context.Context) error) *BaseService {
	b.healthMu.Lock()
	defer b.healthMu.Unlock()
	b.healthFn = fn
	return b
}

// CheckHealth runs the installed health function, or reports healthy if none was set.
func (b *BaseService) CheckHealth(ctx context.Context) error {
	b.healthMu.RLock()
	fn := b.healthFn
	b.healthMu.RUnlock()
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// AddTickerWorker launches fn on every tick of interval until Stop is
// called, running it once immediately first. The cart and terminal
// services use it for the republish sweep; the stock snapshot cron runs on
// stock.SnapshotScheduler instead.
func (b *BaseService) AddTickerWorker(interval time.Duration, fn func(ctx context.Context)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx := context.Background()
		b.runWorkerTick(ctx, fn)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				b.runWorkerTick(ctx, fn)
			case <-b.stopCh:
				return
			}
		}
	}()
}

func (b *BaseService) runWorkerTick(ctx context.Context, fn func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithField("panic", r).Error("background worker panicked")
		}
	}()
	fn(ctx)
}

// StopChan exposes the shutdown signal for workers that need a select arm
// the ticker loop above does not cover.
func (b *BaseService) StopChan() <-chan struct{} { return b.stopCh }

// Stop signals every worker to exit and waits for them to drain.
func (b *BaseService) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
	b.wg.Wait()
}
