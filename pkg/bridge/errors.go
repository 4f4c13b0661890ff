package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/snehjoshi/amqpbridge/pkg/model"
	"github.com/snehjoshi/amqpbridge/pkg/value"
)

// Kind categorizes a bridge error.
type Kind string

const (
	// KindArgument covers invalid handles, nil inputs and wrongly shaped values.
	KindArgument Kind = "argument"
	// KindEncoding covers malformed or unsupported AMQP bytes.
	KindEncoding Kind = "encoding"
	// KindEngine covers failures reported by the protocol engine.
	KindEngine Kind = "engine"
	// KindLifecycle covers operations rejected because of object state.
	KindLifecycle Kind = "lifecycle"
)

// Lifecycle causes. Match them with errors.Is.
var (
	ErrAlreadyOpen     = errors.New("bridge: already open")
	ErrNotOpen         = errors.New("bridge: not open")
	ErrAlreadyAttached = errors.New("bridge: already attached")
	ErrNotAttached     = errors.New("bridge: no channel, receiver is not attached")
	ErrStillShared     = errors.New("bridge: link is still referenced elsewhere")
	ErrPumpStopped     = errors.New("bridge: pump stopped")
	ErrReleased        = errors.New("bridge: handle already released")
	ErrSchedulerClosed = errors.New("bridge: scheduler closed")
)

// Error is the structured error stored in a CallContext. errors.Is matches
// an *Error target on Kind alone, so ErrEngine and friends work as classes.
type Error struct {
	Kind   Kind
	Op     string
	Detail string
	Cause  error
}

// Class targets for errors.Is.
var (
	ErrArgument  = &Error{Kind: KindArgument}
	ErrEncoding  = &Error{Kind: KindEncoding}
	ErrEngine    = &Error{Kind: KindEngine}
	ErrLifecycle = &Error{Kind: KindLifecycle}
)

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("bridge: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	} else if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Op == "" || t.Op == e.Op)
}

func newError(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Cause: cause}
}

func argumentError(op, format string, args ...any) *Error {
	return &Error{Kind: KindArgument, Op: op, Detail: fmt.Sprintf(format, args...)}
}

func lifecycleError(op string, cause error) *Error {
	return newError(KindLifecycle, op, cause)
}

// classify turns any error returned inside an operation into an *Error.
// Engine errors keep their full debug formatting as the detail.
func classify(op string, err error) *Error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		if be.Op == "" {
			cp := *be
			cp.Op = op
			return &cp
		}
		return be
	}
	switch {
	case errors.Is(err, value.ErrMalformed),
		errors.Is(err, value.ErrUnsupported),
		errors.Is(err, value.ErrBufferTooSmall):
		return newError(KindEncoding, op, err)
	case errors.Is(err, value.ErrTypeMismatch),
		errors.Is(err, value.ErrIndexOutOfRange),
		errors.Is(err, value.ErrKeyNotFound),
		errors.Is(err, value.ErrInvalidDescriptor),
		errors.Is(err, value.ErrHeterogeneousArray),
		errors.Is(err, model.ErrShape),
		errors.Is(err, model.ErrDescriptorMismatch),
		errors.Is(err, model.ErrInvalidArgument),
		errors.Is(err, model.ErrBuilderConsumed):
		return newError(KindArgument, op, err)
	case errors.Is(err, ErrSchedulerClosed):
		return newError(KindLifecycle, op, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newError(KindEngine, op, err)
	}
	return &Error{Kind: KindEngine, Op: op, Detail: fmt.Sprintf("%+v", err), Cause: err}
}
