package capi_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/snehjoshi/amqpbridge/pkg/bridge"
	"github.com/snehjoshi/amqpbridge/pkg/capi"
	"github.com/snehjoshi/amqpbridge/pkg/model"
)

// ─── fake engine ──────────────────────────────────────────────────────────────

// loopEngine dials a connection whose senders deliver straight into the
// session's single receiver.
type loopEngine struct {
	recv *loopReceiver

	connClosed    atomic.Bool
	closeCond     atomic.Pointer[bridge.ErrorCondition]
	sessionClosed atomic.Bool
	sendersClosed atomic.Int32
}

func newLoopEngine() *loopEngine {
	return &loopEngine{recv: &loopReceiver{deliveries: make(chan *loopDelivery, 16)}}
}

func (e *loopEngine) Dial(context.Context, string, string, *bridge.ConnectionOptions) (bridge.EngineConn, error) {
	return loopConn{e}, nil
}

type loopConn struct{ e *loopEngine }

func (c loopConn) NewSession(context.Context, *bridge.SessionOptions) (bridge.EngineSession, error) {
	return loopSession{c.e}, nil
}

func (c loopConn) Close(_ context.Context, cond *bridge.ErrorCondition) error {
	c.e.connClosed.Store(true)
	c.e.closeCond.Store(cond)
	return nil
}

type loopSession struct{ e *loopEngine }

func (s loopSession) NewSender(context.Context, *model.Target, *bridge.SenderOptions) (bridge.EngineSender, error) {
	return loopSender{s.e}, nil
}

func (s loopSession) NewReceiver(context.Context, *model.Source, *bridge.ReceiverOptions) (bridge.EngineReceiver, error) {
	return s.e.recv, nil
}

func (s loopSession) Close(context.Context) error {
	s.e.sessionClosed.Store(true)
	return nil
}

type loopSender struct{ e *loopEngine }

func (s loopSender) Send(_ context.Context, msg *model.Message) error {
	s.e.recv.deliveries <- &loopDelivery{msg: msg}
	return nil
}

func (loopSender) MaxMessageSize() uint64 { return 4096 }
func (loopSender) LinkName() string       { return "loop-sender" }

func (s loopSender) Close(context.Context) error {
	s.e.sendersClosed.Add(1)
	return nil
}

type loopReceiver struct {
	deliveries chan *loopDelivery
	closed     atomic.Bool
}

func (r *loopReceiver) Receive(ctx context.Context) (bridge.Delivery, error) {
	select {
	case d := <-r.deliveries:
		return d, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (*loopReceiver) IssueCredit(uint32) error { return nil }
func (*loopReceiver) LinkName() string         { return "loop-receiver" }

func (r *loopReceiver) Close(context.Context) error {
	r.closed.Store(true)
	return nil
}

type loopDelivery struct {
	msg      *model.Message
	accepted atomic.Bool
}

func (d *loopDelivery) Message() *model.Message { return d.msg }

func (d *loopDelivery) Accept(context.Context) error {
	d.accepted.Store(true)
	return nil
}

// ─── helpers ──────────────────────────────────────────────────────────────────

// newContext returns a call context over a fresh scheduler.
func newContext(t *testing.T) capi.Handle {
	t.Helper()
	sched := capi.SchedulerCreate(2)
	if sched == capi.Null {
		t.Fatal("SchedulerCreate: got Null")
	}
	ctx := capi.CallContextCreate(sched)
	if ctx == capi.Null {
		t.Fatal("CallContextCreate: got Null")
	}
	// Contexts go before their scheduler.
	t.Cleanup(func() {
		capi.Destroy(ctx)
		capi.Destroy(sched)
	})
	return ctx
}

// openLoopSession opens a connection and session on a loop engine.
func openLoopSession(t *testing.T, ctx capi.Handle) (capi.Handle, *loopEngine) {
	t.Helper()
	e := newLoopEngine()
	conn := mustHandle(t, capi.ConnectionCreateWithEngine(e), "connection")
	mustOK(t, capi.ConnectionOpen(ctx, conn, "amqp://loop", "container-1", capi.Null), "ConnectionOpen")
	sess := mustHandle(t, capi.SessionCreate(), "session")
	mustOK(t, capi.SessionBegin(ctx, sess, conn, capi.Null), "SessionBegin")
	return sess, e
}

func newSourceHandle(t *testing.T, address string) capi.Handle {
	t.Helper()
	b := capi.SourceBuilderCreate()
	mustOK(t, capi.SourceBuilderSetAddress(b, address), "SourceBuilderSetAddress")
	return mustHandle(t, capi.SourceBuilderBuild(b), "source")
}

func newTargetHandle(t *testing.T, address string) capi.Handle {
	t.Helper()
	b := capi.TargetBuilderCreate()
	mustOK(t, capi.TargetBuilderSetAddress(b, address), "TargetBuilderSetAddress")
	return mustHandle(t, capi.TargetBuilderBuild(b), "target")
}

func textMessage(t *testing.T, body string) capi.Handle {
	t.Helper()
	v := mustHandle(t, capi.ValueCreateString(body), "body")
	b := capi.MessageBuilderCreate()
	mustOK(t, capi.MessageBuilderSetBodyValue(b, v), "MessageBuilderSetBodyValue")
	return mustHandle(t, capi.MessageBuilderBuild(b), "message")
}

// lastError returns the kind and description in the context's slot.
func lastError(t *testing.T, ctx capi.Handle) (capi.ErrorKind, string) {
	t.Helper()
	e := capi.CallContextGetError(ctx)
	if e == capi.Null {
		t.Fatal("expected an error in the context slot, got none")
	}
	defer capi.Destroy(e)
	kind, st := capi.ErrorGetKind(e)
	mustOK(t, st, "ErrorGetKind")
	sh := capi.ErrorGetDescription(e)
	defer capi.StringRelease(sh)
	desc, st := capi.StringGet(sh)
	mustOK(t, st, "StringGet")
	return kind, desc
}
