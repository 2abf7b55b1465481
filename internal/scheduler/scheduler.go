// Package scheduler drives detection passes on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/seawhisper/alert-monitor/internal/detector"
	"github.com/seawhisper/alert-monitor/internal/observability"
)

// ErrAlreadyRunning is returned by Start when the scheduler is running.
var ErrAlreadyRunning = errors.New("scheduler already running")

// Runner executes one detection pass.
type Runner interface {
	RunPass(ctx context.Context) (detector.PassResult, error)
}

// PassLock coordinates passes across replicas. Acquire reports false without
// an error when another holder owns the lock.
type PassLock interface {
	Acquire(ctx context.Context) (release func(context.Context) error, acquired bool, err error)
}

// Scheduler runs a Runner every interval with at most one pass in flight.
type Scheduler struct {
	runner     Runner
	interval   time.Duration
	logger     *slog.Logger
	metrics    *observability.Metrics
	clock      clockwork.Clock
	lock       PassLock
	runOnStart bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	passes   sync.WaitGroup
	inFlight atomic.Bool
	ready    atomic.Bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock the interval ticker is created from.
func WithClock(c clockwork.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithRunOnStart runs one pass immediately when the scheduler starts.
func WithRunOnStart(enabled bool) Option {
	return func(s *Scheduler) { s.runOnStart = enabled }
}

// WithLock requires each pass to hold l.
func WithLock(l PassLock) Option {
	return func(s *Scheduler) { s.lock = l }
}

// New creates a stopped Scheduler.
func New(runner Runner, interval time.Duration, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logger,
		metrics:  metrics,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins ticking. Cancelling ctx has the same effect as Stop except
// that it does not wait for an in-flight pass.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("invalid check interval %s", s.interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runningLocked() {
		return ErrAlreadyRunning
	}
	if s.cancel != nil {
		// The loop ended because the parent context was cancelled.
		s.cancel()
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	ticker := s.clock.NewTicker(s.interval)

	s.metrics.SchedulerRunning.Set(1)
	s.logger.Info("scheduler started", "interval", s.interval, "run_on_start", s.runOnStart)

	go s.loop(loopCtx, ticker, s.done)
	return nil
}

// Stop halts future ticks and waits for an in-flight pass to finish.
// Calling Stop on a stopped scheduler does nothing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return
	}

	s.cancel()
	<-s.done
	s.passes.Wait()
	s.cancel = nil
	s.done = nil

	s.metrics.SchedulerRunning.Set(0)
	s.logger.Info("scheduler stopped")
}

// IsRunning reports whether the scheduler is ticking.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningLocked()
}

// runningLocked is false once the loop has exited, whether through Stop or
// cancellation of the Start context. Callers hold s.mu.
func (s *Scheduler) runningLocked() bool {
	if s.cancel == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// CheckReadiness returns nil once a pass has completed without error.
func (s *Scheduler) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("no detection pass has completed yet")
	}
	return nil
}

func (s *Scheduler) loop(ctx context.Context, ticker clockwork.Ticker, done chan struct{}) {
	defer close(done)
	defer s.metrics.SchedulerRunning.Set(0)
	defer ticker.Stop()

	if s.runOnStart {
		s.tick(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.tick(ctx)
		}
	}
}

// tick launches a pass unless one is still running.
func (s *Scheduler) tick(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.metrics.PassesSkipped.WithLabelValues("overlap").Inc()
		s.logger.Warn("previous detection pass still running, skipping tick")
		return
	}

	s.passes.Add(1)
	go func() {
		defer s.passes.Done()
		defer s.inFlight.Store(false)
		s.runLocked(context.WithoutCancel(ctx))
	}()
}

func (s *Scheduler) runLocked(ctx context.Context) {
	if s.lock == nil {
		s.run(ctx)
		return
	}

	release, acquired, err := s.lock.Acquire(ctx)
	if err != nil {
		s.metrics.PassesSkipped.WithLabelValues("lock_error").Inc()
		s.logger.Error("acquire pass lock failed, skipping tick", "error", err)
		return
	}
	if !acquired {
		s.metrics.PassesSkipped.WithLabelValues("lock_held").Inc()
		s.logger.Debug("pass lock held by another instance, skipping tick")
		return
	}
	defer func() {
		if err := release(ctx); err != nil {
			s.logger.Warn("release pass lock failed", "error", err)
		}
	}()

	s.run(ctx)
}

// run executes one pass, recording its outcome. Panics are recovered so the
// ticker keeps firing.
func (s *Scheduler) run(ctx context.Context) {
	start := s.clock.Now()
	defer func() {
		s.metrics.PassDuration.Observe(s.clock.Since(start).Seconds())
		if r := recover(); r != nil {
			s.metrics.PassesTotal.WithLabelValues("panic").Inc()
			s.logger.Error("detection pass panicked", "panic", r)
		}
	}()

	res, err := s.runner.RunPass(ctx)
	if err != nil {
		s.metrics.PassesTotal.WithLabelValues("failed").Inc()
		s.logger.Error("detection pass failed", "error", err)
		return
	}

	s.metrics.PassesTotal.WithLabelValues("success").Inc()
	s.ready.Store(true)
	s.logger.Info("detection pass complete",
		"readings", res.Readings,
		"created", res.Created,
		"deduplicated", res.Deduplicated,
		"failed", res.Failed,
	)
}
