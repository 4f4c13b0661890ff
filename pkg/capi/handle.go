// Package capi exposes the bridge as a flat, C-shaped API.
//
// Every object crossing the API is named by an opaque Handle. Create calls
// return a fresh handle, or Null on failure. Destroy consumes a handle once;
// destroying it again or using it afterwards is outside the contract and is
// reported as an invalid handle rather than detected as a double free.
// Accessors borrow handles. A few calls (the *Build functions, the
// DetachAndRelease calls, LinkRefRelease) consume the handle they are given.
//
// Calls return a Status. Calls that take a call context also record the
// failure in that context's error slot, retrievable with
// CallContextGetError. Value, record and builder calls take no context and
// report status only; RecordFromValue is the context-taking form of the
// record conversions. No panic escapes an exported function.
//
// Every sub-value handed out (list items, map entries, record fields) is a
// deep copy with its own handle.
package capi

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/snehjoshi/amqpbridge/pkg/bridge"
)

// Handle is an opaque object reference. The zero Handle is Null.
type Handle uint64

// Null is the handle returned by failed creations.
const Null Handle = 0

// Status is the result of a call.
type Status int32

const (
	// StatusOK means the call succeeded.
	StatusOK Status = 0
	// StatusError means the call failed or a value had another kind.
	StatusError Status = -1
	// StatusNotPresent means a record field is absent and has no default.
	StatusNotPresent Status = 1
)

var (
	nextHandle atomic.Uint64
	objects    sync.Map // Handle → object
)

func newHandle(obj any) Handle {
	h := Handle(nextHandle.Add(1))
	objects.Store(h, obj)
	return h
}

// lookup borrows the object behind h.
func lookup[T any](h Handle) (T, bool) {
	var zero T
	v, ok := objects.Load(h)
	if !ok {
		return zero, false
	}
	obj, ok := v.(T)
	return obj, ok
}

// take consumes h when it holds a T. h stays live when it holds anything else.
func take[T any](h Handle) (T, bool) {
	obj, ok := lookup[T](h)
	if !ok {
		return obj, false
	}
	if !objects.CompareAndDelete(h, any(obj)) {
		var zero T
		return zero, false
	}
	return obj, true
}

// destroyer is implemented by objects that hold resources beyond memory.
type destroyer interface{ destroy() }

// discarder is implemented by the bridge objects that own engine state.
type discarder interface{ Discard() error }

// Destroy consumes h. Schedulers are closed, which stops every background
// task spawned on them. Open connections and sessions are closed, attached
// links are detached, and a receiver's pump is stopped and joined first. A
// receiver link still held by a link reference is detached when that
// reference is released.
func Destroy(h Handle) {
	defer func() { _ = recover() }()
	v, ok := objects.LoadAndDelete(h)
	if !ok {
		return
	}
	switch o := v.(type) {
	case destroyer:
		o.destroy()
	case discarder:
		_ = o.Discard()
	}
}

// LiveHandles returns the number of handles not yet destroyed or consumed.
func LiveHandles() int {
	n := 0
	objects.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

// ─── owned strings ────────────────────────────────────────────────────────────

type ownedString struct{ s string }

func newString(s string) Handle { return newHandle(&ownedString{s: s}) }

// StringGet returns the text of a string handle returned by this package.
func StringGet(h Handle) (string, Status) {
	s, ok := lookup[*ownedString](h)
	if !ok {
		return "", StatusError
	}
	return s.s, StatusOK
}

// StringRelease consumes a string handle. It is the only way to free strings
// returned by this package.
func StringRelease(h Handle) { take[*ownedString](h) }

// ─── failure reporting ────────────────────────────────────────────────────────

// invalid is the error recorded for a handle of the wrong type.
func invalid(op, name string, h Handle) error {
	return &bridge.Error{Kind: bridge.KindArgument, Op: op, Detail: fmt.Sprintf("invalid %s handle %d", name, h)}
}

func argument(op, format string, args ...any) error {
	return &bridge.Error{Kind: bridge.KindArgument, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// report records err in cc when cc is usable and returns StatusError.
func report(cc *bridge.CallContext, err error) Status {
	if cc != nil && err != nil {
		cc.SetError(err)
	}
	return StatusError
}

// record stores err in cc and returns it, for failures found inside
// onObject callbacks.
func record(cc *bridge.CallContext, err error) error {
	cc.SetError(err)
	return err
}

// recovered converts a panic into a failure status. It must be deferred
// directly.
func recovered(cc *bridge.CallContext, op string, status *Status) {
	if p := recover(); p != nil {
		*status = report(cc, argument(op, "panic: %v", p))
	}
}

// onObject resolves the call context and a borrowed T and runs fn. A bad
// object handle is recorded in the context; a bad context handle is only
// reported through the status.
func onObject[T any](ctx, h Handle, op, name string, fn func(cc *bridge.CallContext, obj T) error) (st Status) {
	cc, ok := callContext(ctx)
	if !ok {
		return StatusError
	}
	defer recovered(cc, op, &st)
	obj, ok := lookup[T](h)
	if !ok {
		return report(cc, invalid(op, name, h))
	}
	return status(fn(cc, obj))
}

// optional borrows a T that may be Null.
func optional[T any](h Handle) (T, bool) {
	if h == Null {
		var zero T
		return zero, true
	}
	return lookup[T](h)
}

func status(err error) Status {
	if err != nil {
		return StatusError
	}
	return StatusOK
}
