package bridge_test

import (
	"errors"
	"testing"

	"github.com/snehjoshi/amqpbridge/pkg/bridge"
	"github.com/snehjoshi/amqpbridge/pkg/value"
)

// ─── Connection ───────────────────────────────────────────────────────────────

func TestConnection_OpenPassesArguments(t *testing.T) {
	cc := newCallContext(t)
	e := &fakeEngine{}
	conn := bridge.NewConnection(e)

	opts := &bridge.ConnectionOptions{MaxFrameSize: 4096}
	if err := conn.Open(cc, "amqp://broker:5672", "container-1", opts); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if e.url != "amqp://broker:5672" || e.containerID != "container-1" {
		t.Errorf("want url and container passed through, got %q %q", e.url, e.containerID)
	}
	if e.opts.MaxFrameSize != 4096 {
		t.Errorf("want max frame size 4096, got %d", e.opts.MaxFrameSize)
	}
	if !conn.IsOpen() {
		t.Error("want open connection")
	}
}

func TestConnection_DoubleOpenRejected(t *testing.T) {
	cc := newCallContext(t)
	conn := bridge.NewConnection(&fakeEngine{})

	if err := conn.Open(cc, "amqp://broker", "c", nil); err != nil {
		t.Fatal(err)
	}
	err := conn.Open(cc, "amqp://broker", "c", nil)
	if !errors.Is(err, bridge.ErrAlreadyOpen) {
		t.Fatalf("want ErrAlreadyOpen, got %v", err)
	}
}

func TestConnection_Close(t *testing.T) {
	cc := newCallContext(t)
	e := &fakeEngine{}
	conn := bridge.NewConnection(e)
	if err := conn.Open(cc, "amqp://broker", "c", nil); err != nil {
		t.Fatal(err)
	}

	if err := conn.Close(cc); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !e.conn.closed || e.conn.cond != nil {
		t.Errorf("want clean engine close, got closed=%v cond=%v", e.conn.closed, e.conn.cond)
	}
	if err := conn.Close(cc); !errors.Is(err, bridge.ErrNotOpen) {
		t.Fatalf("want ErrNotOpen on second close, got %v", err)
	}
}

func TestConnection_CloseWithError(t *testing.T) {
	cc := newCallContext(t)
	e := &fakeEngine{}
	conn := bridge.NewConnection(e)
	if err := conn.Open(cc, "amqp://broker", "c", nil); err != nil {
		t.Fatal(err)
	}

	info := value.NewMap()
	_ = info.Insert(value.Symbol("reason"), value.String("shutdown"))
	if err := conn.CloseWithError(cc, "amqp:internal-error", "going away", info); err != nil {
		t.Fatalf("CloseWithError: %v", err)
	}
	cond := e.conn.cond
	if cond == nil || cond.Condition != "amqp:internal-error" || cond.Description != "going away" {
		t.Fatalf("want condition passed through, got %+v", cond)
	}
	if got, err := cond.Info.Lookup(value.Symbol("reason")); err != nil || !got.Equal(value.String("shutdown")) {
		t.Errorf("want info reason=shutdown, got %v, %v", got, err)
	}
}

func TestConnection_CloseWithErrorRejectsNonSymbolKeys(t *testing.T) {
	cc := newCallContext(t)
	e := &fakeEngine{}
	conn := bridge.NewConnection(e)
	if err := conn.Open(cc, "amqp://broker", "c", nil); err != nil {
		t.Fatal(err)
	}

	info := value.NewMap()
	_ = info.Insert(value.String("reason"), value.String("shutdown"))
	err := conn.CloseWithError(cc, "amqp:internal-error", "", info)
	if !errors.Is(err, bridge.ErrArgument) {
		t.Fatalf("want argument error, got %v", err)
	}
	if !conn.IsOpen() {
		t.Error("rejected close must leave the connection open")
	}
}

// ─── Session ──────────────────────────────────────────────────────────────────

func TestSession_BeginNeedsOpenConnection(t *testing.T) {
	cc := newCallContext(t)
	sess := bridge.NewSession()

	err := sess.Begin(cc, bridge.NewConnection(&fakeEngine{}), nil)
	if !errors.Is(err, bridge.ErrNotOpen) {
		t.Fatalf("want ErrNotOpen, got %v", err)
	}
}

func TestSession_BeginAndEnd(t *testing.T) {
	cc := newCallContext(t)
	sess, e := openSession(t, cc)

	if err := sess.End(cc); err != nil {
		t.Fatalf("End: %v", err)
	}
	if !e.conn.session.closed {
		t.Error("want engine session closed")
	}
	if err := sess.End(cc); !errors.Is(err, bridge.ErrNotOpen) {
		t.Fatalf("want ErrNotOpen, got %v", err)
	}
}

// ─── Sender ───────────────────────────────────────────────────────────────────

func TestSender_AttachSendDetach(t *testing.T) {
	cc := newCallContext(t)
	sess, e := openSession(t, cc)
	snd := bridge.NewSender()

	if err := snd.Attach(cc, sess, newTarget(t, "orders"), nil); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := snd.Attach(cc, sess, newTarget(t, "orders"), nil); !errors.Is(err, bridge.ErrAlreadyAttached) {
		t.Fatalf("want ErrAlreadyAttached, got %v", err)
	}
	if err := snd.Send(cc, textMessage(t, "hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	limit, err := snd.MaxMessageSize(cc)
	if err != nil || limit != 1<<20 {
		t.Fatalf("want max 1MiB, got %d, %v", limit, err)
	}

	fs := e.conn.session.senders[0]
	if len(fs.sent) != 1 || bodyOf(t, fs.sent[0]) != "hello" {
		t.Fatalf("want one hello sent, got %d", len(fs.sent))
	}
	if got := cc.Scheduler().Metrics().Sent.Load("sender-orders"); got != 1 {
		t.Errorf("want 1 sent counted, got %d", got)
	}

	if err := snd.DetachAndRelease(cc); err != nil {
		t.Fatalf("DetachAndRelease: %v", err)
	}
	if !fs.closed {
		t.Error("want engine sender closed")
	}
	if err := snd.Send(cc, textMessage(t, "late")); !errors.Is(err, bridge.ErrReleased) {
		t.Fatalf("want ErrReleased, got %v", err)
	}
}

func TestSender_SendBeforeAttach(t *testing.T) {
	cc := newCallContext(t)
	err := bridge.NewSender().Send(cc, textMessage(t, "x"))
	if !errors.Is(err, bridge.ErrNotAttached) {
		t.Fatalf("want ErrNotAttached, got %v", err)
	}
}

func TestSender_EngineErrorIsCaptured(t *testing.T) {
	cc := newCallContext(t)
	sess, e := openSession(t, cc)
	snd := bridge.NewSender()
	if err := snd.Attach(cc, sess, newTarget(t, "orders"), nil); err != nil {
		t.Fatal(err)
	}
	e.conn.session.senders[0].sendErr = errors.New("amqp:resource-limit-exceeded")

	if err := snd.Send(cc, textMessage(t, "x")); !errors.Is(err, bridge.ErrEngine) {
		t.Fatalf("want engine error, got %v", err)
	}
	if got := cc.Err(); got == nil || got.Detail != "amqp:resource-limit-exceeded" {
		t.Fatalf("want engine detail in slot, got %v", got)
	}
}

func TestSender_DiscardClosesLink(t *testing.T) {
	cc := newCallContext(t)
	sess, e := openSession(t, cc)
	snd := bridge.NewSender()
	if err := snd.Attach(cc, sess, newTarget(t, "orders"), nil); err != nil {
		t.Fatal(err)
	}

	if err := snd.Discard(); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if fs := e.conn.session.senders[0]; !fs.closed {
		t.Error("want engine sender closed")
	}
	if err := snd.Send(cc, textMessage(t, "late")); !errors.Is(err, bridge.ErrReleased) {
		t.Fatalf("want ErrReleased, got %v", err)
	}
}

func TestSender_DetachAfterSchedulerClosed(t *testing.T) {
	cc := newCallContext(t)
	sess, e := openSession(t, cc)
	snd := bridge.NewSender()
	if err := snd.Attach(cc, sess, newTarget(t, "orders"), nil); err != nil {
		t.Fatal(err)
	}
	cc.Scheduler().Close()

	if err := snd.DetachAndRelease(cc); err != nil {
		t.Fatalf("DetachAndRelease: %v", err)
	}
	if fs := e.conn.session.senders[0]; !fs.closed {
		t.Error("want engine sender closed")
	}
}

func TestConnection_DiscardClosesCleanly(t *testing.T) {
	cc := newCallContext(t)
	_, e := openSession(t, cc)
	conn := bridge.NewConnection(e)
	if err := conn.Open(cc, "amqp://localhost:5672", "container-2", nil); err != nil {
		t.Fatal(err)
	}

	if err := conn.Discard(); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if conn.IsOpen() {
		t.Error("want closed connection")
	}
	if !e.conn.closed || e.conn.cond != nil {
		t.Errorf("want a clean engine close, got closed=%t cond=%v", e.conn.closed, e.conn.cond)
	}
}
