package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/clusterview/internal/logger"
	"github.com/MrSnakeDoc/clusterview/internal/metrics"
)

// Task is one poll cycle. It must return when ctx is cancelled.
type Task func(ctx context.Context) error

// Poller runs a task on a fixed interval.
//
// Ticks that fire while a cycle is running are dropped. Trigger cancels the
// running cycle, if any, and starts a new one immediately.
type Poller struct {
	name     string
	interval time.Duration
	task     Task
	logger   logger.Logger

	trigger  chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	dropped  atomic.Int64

	mu        sync.Mutex
	gen       uint64
	running   bool
	cancelRun context.CancelFunc
}

// NewPoller creates a poller; name labels its logs and metrics.
func NewPoller(name string, interval time.Duration, task Task, log logger.Logger) *Poller {
	return &Poller{
		name:     name,
		interval: interval,
		task:     task,
		logger:   log,
		trigger:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
}

// Start fires a first cycle immediately, then one per interval until Stop or
// ctx cancellation.
func (p *Poller) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer ticker.Stop()
		defer p.cancelCurrent()

		p.tick(ctx)
		for {
			select {
			case <-ticker.C:
				p.tick(ctx)
			case <-p.trigger:
				p.logger.Debug("poll triggered", logger.String("poller", p.name))
				p.supersede(ctx)
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Trigger requests an immediate cycle superseding the running one.
// It returns false if a trigger is already pending.
func (p *Poller) Trigger() bool {
	select {
	case p.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Stop ends the loop, cancels the running cycle and waits for it.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

// Running reports whether a cycle is in flight.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Dropped returns the number of ticks ignored while a cycle was running.
func (p *Poller) Dropped() int64 {
	return p.dropped.Load()
}

func (p *Poller) tick(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		p.dropped.Add(1)
		metrics.ObserveDropped(p.name)
		p.logger.Debug("poll tick dropped, cycle in flight", logger.String("poller", p.name))
		return
	}
	p.launchLocked(ctx)
	p.mu.Unlock()
}

func (p *Poller) supersede(ctx context.Context) {
	p.mu.Lock()
	if p.cancelRun != nil {
		p.cancelRun()
	}
	p.launchLocked(ctx)
	p.mu.Unlock()
}

// launchLocked starts a cycle. Callers hold p.mu.
func (p *Poller) launchLocked(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.gen++
	gen := p.gen
	p.running = true
	p.cancelRun = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer cancel()

		start := time.Now()
		err := p.task(runCtx)
		elapsed := time.Since(start)

		switch {
		case err == nil:
			metrics.ObserveFetch(p.name, metrics.OutcomeSuccess, elapsed)
		case runCtx.Err() != nil:
			metrics.ObserveFetch(p.name, metrics.OutcomeCancelled, elapsed)
		default:
			metrics.ObserveFetch(p.name, metrics.OutcomeError, elapsed)
			p.logger.Warn("poll cycle failed",
				logger.String("poller", p.name),
				logger.Duration("elapsed", elapsed),
				logger.Error(err))
		}

		p.mu.Lock()
		if p.gen == gen {
			p.running = false
			p.cancelRun = nil
		}
		p.mu.Unlock()
	}()
}

func (p *Poller) cancelCurrent() {
	p.mu.Lock()
	if p.cancelRun != nil {
		p.cancelRun()
	}
	p.mu.Unlock()
}
