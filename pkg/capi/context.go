package capi

import (
	"go.uber.org/zap"

	"github.com/snehjoshi/amqpbridge/internal/metrics"
	"github.com/snehjoshi/amqpbridge/pkg/bridge"
)

type scheduler struct{ s *bridge.Scheduler }

func (s *scheduler) destroy() { s.s.Close() }

// SchedulerCreate creates a scheduler with workers concurrent calls; 0 means
// the default bound. It returns Null when the scheduler cannot be created.
func SchedulerCreate(workers int) Handle {
	return SchedulerCreateWith(workers, nil, nil)
}

// SchedulerCreateWith is SchedulerCreate with a logger and a metrics
// registry. Either may be nil.
func SchedulerCreateWith(workers int, log *zap.Logger, reg *metrics.Registry) Handle {
	opts := []bridge.Option{bridge.WithLogger(log), bridge.WithMetrics(reg)}
	if workers > 0 {
		opts = append(opts, bridge.WithWorkers(workers))
	}
	s, err := bridge.NewScheduler(opts...)
	if err != nil {
		return Null
	}
	return newHandle(&scheduler{s: s})
}

// CallContextCreate creates a call context over a scheduler, which it
// borrows. The scheduler must outlive the context.
func CallContextCreate(sched Handle) Handle {
	s, ok := lookup[*scheduler](sched)
	if !ok {
		return Null
	}
	return newHandle(bridge.NewCallContext(s.s))
}

// CallContextGetError returns a new error handle holding a copy of the last
// error recorded in the context, or Null when there is none. Reading does not
// clear the slot.
func CallContextGetError(ctx Handle) Handle {
	cc, ok := lookup[*bridge.CallContext](ctx)
	if !ok {
		return Null
	}
	e := cc.Err()
	if e == nil {
		return Null
	}
	return newHandle(e)
}

// CallContextClearError empties the context's error slot.
func CallContextClearError(ctx Handle) Status {
	cc, ok := lookup[*bridge.CallContext](ctx)
	if !ok {
		return StatusError
	}
	cc.SetError(nil)
	return StatusOK
}

// ErrorKind mirrors bridge.Kind as an integer.
type ErrorKind int32

const (
	ErrorKindUnknown ErrorKind = iota
	ErrorKindArgument
	ErrorKindEncoding
	ErrorKindEngine
	ErrorKindLifecycle
)

var errorKinds = map[bridge.Kind]ErrorKind{
	bridge.KindArgument:  ErrorKindArgument,
	bridge.KindEncoding:  ErrorKindEncoding,
	bridge.KindEngine:    ErrorKindEngine,
	bridge.KindLifecycle: ErrorKindLifecycle,
}

// ErrorGetKind returns the category of an error handle.
func ErrorGetKind(h Handle) (ErrorKind, Status) {
	e, ok := lookup[*bridge.Error](h)
	if !ok {
		return ErrorKindUnknown, StatusError
	}
	return errorKinds[e.Kind], StatusOK
}

// ErrorGetDescription returns the full message of an error handle as an
// owned string.
func ErrorGetDescription(h Handle) Handle {
	e, ok := lookup[*bridge.Error](h)
	if !ok {
		return Null
	}
	return newString(e.Error())
}

// ErrorGetOperation returns the name of the failed operation as an owned
// string.
func ErrorGetOperation(h Handle) Handle {
	e, ok := lookup[*bridge.Error](h)
	if !ok {
		return Null
	}
	return newString(e.Op)
}

// callContext looks up the context for an operation.
func callContext(ctx Handle) (*bridge.CallContext, bool) {
	return lookup[*bridge.CallContext](ctx)
}
