package bridge

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/snehjoshi/amqpbridge/internal/metrics"
)

// CallContext carries a Scheduler and a slot holding at most one error. A
// failed call overwrites the slot. Reading the slot does not clear it, and a
// later successful call leaves it alone.
//
// A CallContext drives one call at a time; it must not be shared by
// concurrent callers.
type CallContext struct {
	s *Scheduler

	mu  sync.Mutex
	err *Error
}

// NewCallContext borrows s, which must outlive the CallContext.
func NewCallContext(s *Scheduler) *CallContext {
	return &CallContext{s: s}
}

// Scheduler returns the scheduler calls run on.
func (c *CallContext) Scheduler() *Scheduler { return c.s }

// SetError overwrites the error slot. A nil err empties it.
func (c *CallContext) SetError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = classify("", err)
}

// Err returns a copy of the last error, or nil when the slot is empty.
func (c *CallContext) Err() *Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		return nil
	}
	cp := *c.err
	return &cp
}

func (c *CallContext) log() *zap.Logger { return c.s.log }

// fail records err in the slot and the failure counters and returns it.
func (c *CallContext) fail(op string, err error) *Error {
	e := classify(op, err)
	c.s.metrics.CallFailures.Inc(metrics.FailureKey(op, string(e.Kind)))
	c.mu.Lock()
	c.err = e
	c.mu.Unlock()
	return e
}

// call runs fn on the context's scheduler and records any failure.
func call[T any](c *CallContext, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	v, err := Run(c.s, op, fn)
	if err != nil {
		return v, c.fail(op, err)
	}
	return v, nil
}

// detachTimeout bounds closes that run without a scheduler.
const detachTimeout = 5 * time.Second

// closeOutside runs fn on the calling goroutine under detachTimeout.
func closeOutside(fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), detachTimeout)
	defer cancel()
	return fn(ctx)
}

// detach is exec for teardown. Once the scheduler has closed, fn still runs
// directly so the engine object is not left open.
func detach(c *CallContext, op string, fn func(ctx context.Context) error) error {
	if !c.s.isClosed() {
		return exec(c, op, fn)
	}
	if err := closeOutside(fn); err != nil {
		return c.fail(op, err)
	}
	return nil
}

// exec is call for operations with no result.
func exec(c *CallContext, op string, fn func(ctx context.Context) error) error {
	_, err := call(c, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
