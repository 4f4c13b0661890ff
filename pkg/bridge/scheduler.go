// Package bridge lets a synchronous caller drive an asynchronous AMQP engine.
//
// A Scheduler owns the goroutines engine work runs on. Every synchronous
// entry point submits its work to a Scheduler and blocks until it finishes.
// A CallContext pairs a Scheduler with a one-slot error holder: a failing
// call overwrites the slot, and nothing clears it implicitly.
//
// The protocol facades (Connection, Session, Sender, Receiver, Management,
// ClaimsBasedSecurity) wrap engine objects behind the Engine interfaces in
// engine.go. The Receiver owns the only long-running task in the package: a
// pump that drains deliveries into a bounded channel for Poll and Wait.
package bridge

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/snehjoshi/amqpbridge/internal/metrics"
)

// Scheduler runs engine operations to completion on its own goroutines. It
// bounds how many synchronous calls run at once; background tasks are not
// counted against the bound.
type Scheduler struct {
	workers int64
	sem     *semaphore.Weighted
	log     *zap.Logger
	metrics *metrics.Registry

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex // guards closed against wg.Add
	wg     sync.WaitGroup
	closed bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger every facade using the scheduler logs through.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics sets the registry the scheduler and its facades count into.
func WithMetrics(r *metrics.Registry) Option {
	return func(s *Scheduler) {
		if r != nil {
			s.metrics = r
		}
	}
}

// WithWorkers bounds the number of synchronous calls running at once.
func WithWorkers(n int) Option {
	return func(s *Scheduler) { s.workers = int64(n) }
}

// NewScheduler creates a scheduler. The default worker bound is GOMAXPROCS
// times four.
func NewScheduler(opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		workers: int64(runtime.GOMAXPROCS(0) * 4),
		log:     zap.NewNop(),
		metrics: new(metrics.Registry),
	}
	for _, o := range opts {
		o(s)
	}
	if s.workers < 1 {
		return nil, fmt.Errorf("bridge: scheduler needs at least one worker, got %d", s.workers)
	}
	s.sem = semaphore.NewWeighted(s.workers)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// Logger returns the scheduler's logger.
func (s *Scheduler) Logger() *zap.Logger { return s.log }

// Metrics returns the scheduler's counter registry.
func (s *Scheduler) Metrics() *metrics.Registry { return s.metrics }

// Close aborts every background task, waits for running calls and tasks to
// return, and rejects further work.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
	s.log.Debug("scheduler closed")
}

func (s *Scheduler) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// enter registers one unit of work unless the scheduler is closed. The
// caller must call s.wg.Done when the work ends.
func (s *Scheduler) enter() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

// Run submits fn to s and blocks until it returns. It is the only way a
// synchronous caller obtains the result of engine work. A panic in fn is
// returned as an error.
func Run[T any](s *Scheduler, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if !s.enter() {
		return zero, ErrSchedulerClosed
	}
	if err := s.sem.Acquire(s.ctx, 1); err != nil {
		s.wg.Done()
		return zero, ErrSchedulerClosed
	}
	s.metrics.Calls.Inc(op)

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer s.wg.Done()
		defer s.sem.Release(1)
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("bridge: %s panicked: %v", op, p)}
			}
		}()
		v, err := fn(s.ctx)
		done <- result{v: v, err: err}
	}()
	r := <-done
	if r.err != nil {
		s.log.Debug("call failed", zap.String("op", op), zap.Error(r.err))
	}
	return r.v, r.err
}

// Task is a background task spawned on a Scheduler.
type Task struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
}

// Spawn starts fn on its own goroutine. fn must return once ctx is done.
func (s *Scheduler) Spawn(name string, fn func(ctx context.Context)) (*Task, error) {
	if !s.enter() {
		return nil, ErrSchedulerClosed
	}
	ctx, cancel := context.WithCancel(s.ctx)
	t := &Task{name: name, cancel: cancel, done: make(chan struct{})}
	s.metrics.Tasks.Inc(name)
	go func() {
		defer s.wg.Done()
		defer close(t.done)
		defer cancel()
		fn(ctx)
	}()
	s.log.Debug("task spawned", zap.String("task", name))
	return t, nil
}

// Abort asks the task to stop. It does not wait; use Done to join.
func (t *Task) Abort() { t.cancel() }

// Done is closed once the task's function has returned.
func (t *Task) Done() <-chan struct{} { return t.done }

// Name returns the name the task was spawned with.
func (t *Task) Name() string { return t.name }
