// Package worker runs background tasks on a fixed schedule.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Varun5711/shortlink/internal/logger"
	"github.com/Varun5711/shortlink/internal/metrics"
)

var ErrAlreadyRunning = errors.New("task already running")

type Task func(ctx context.Context) error

// Periodic runs a task every interval. At most one invocation is in flight at
// a time; a tick that fires while a run is still going is dropped.
type Periodic struct {
	name     string
	interval time.Duration
	task     Task
	log      *logger.Logger

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPeriodic(name string, interval time.Duration, task Task, log *logger.Logger) *Periodic {
	if log == nil {
		log = logger.Nop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Periodic{
		name:     name,
		interval: interval,
		task:     task,
		log:      log,
	}
}

// Start launches the schedule. Calling Start twice is a no-op.
func (p *Periodic) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.loop(ctx, p.done)

	p.log.Info("Started %s every %s", p.name, p.interval)
}

// Stop ends the schedule and waits for an in-flight run to return.
func (p *Periodic) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if done == nil {
		return
	}

	cancel()
	<-done
	p.log.Info("Stopped %s", p.name)
}

func (p *Periodic) Running() bool {
	return p.running.Load()
}

// RunNow executes the task immediately under the same single-flight guard
// as the schedule.
func (p *Periodic) RunNow(ctx context.Context) error {
	return p.Do(ctx, p.task)
}

// Do runs fn in place of the scheduled task, sharing its guard. It returns
// ErrAlreadyRunning without calling fn when a run is in flight.
func (p *Periodic) Do(ctx context.Context, fn Task) (err error) {
	if !p.running.CompareAndSwap(false, true) {
		metrics.PeriodicRuns.WithLabelValues(p.name, "overlap").Inc()
		return ErrAlreadyRunning
	}
	defer p.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			metrics.PeriodicRuns.WithLabelValues(p.name, "panic").Inc()
			err = fmt.Errorf("%s panicked: %v", p.name, r)
		}
	}()

	if err := fn(ctx); err != nil {
		metrics.PeriodicRuns.WithLabelValues(p.name, "error").Inc()
		return err
	}
	metrics.PeriodicRuns.WithLabelValues(p.name, "ok").Inc()
	return nil
}

func (p *Periodic) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := p.RunNow(ctx)
			switch {
			case errors.Is(err, ErrAlreadyRunning):
				p.log.Warn("Skipping %s tick, previous run still in progress", p.name)
			case err != nil:
				p.log.Error("%s failed: %v", p.name, err)
			}
		}
	}
}
