package capi_test

import (
	"net"
	"strings"
	"testing"

	"github.com/snehjoshi/amqpbridge/pkg/capi"
)

// ─── handle discipline ───────────────────────────────────────────────────────

func TestHandles_CreateDestroyLeavesNothing(t *testing.T) {
	before := capi.LiveHandles()
	creators := map[string]func() capi.Handle{
		"scheduler":          func() capi.Handle { return capi.SchedulerCreate(1) },
		"connection":         capi.ConnectionCreate,
		"session":            capi.SessionCreate,
		"sender":             capi.SenderCreate,
		"receiver":           capi.ReceiverCreate,
		"management":         capi.ManagementCreate,
		"cbs":                capi.CBSCreate,
		"value":              capi.ValueCreateList,
		"header builder":     capi.HeaderBuilderCreate,
		"properties builder": capi.PropertiesBuilderCreate,
		"source builder":     capi.SourceBuilderCreate,
		"target builder":     capi.TargetBuilderCreate,
		"message builder":    capi.MessageBuilderCreate,
		"connection options": capi.ConnectionOptionsBuilderCreate,
		"session options":    capi.SessionOptionsBuilderCreate,
		"sender options":     capi.SenderOptionsBuilderCreate,
		"receiver options":   capi.ReceiverOptionsBuilderCreate,
	}
	for name, create := range creators {
		h := create()
		if h == capi.Null {
			t.Errorf("%s: got Null handle", name)
			continue
		}
		capi.Destroy(h)
	}
	if after := capi.LiveHandles(); after != before {
		t.Errorf("want %d live handles, got %d", before, after)
	}
}

func TestHandles_DestroyUnknownIsNoop(t *testing.T) {
	capi.Destroy(capi.Null)
	capi.Destroy(capi.Handle(1 << 62))
}

func TestHandles_WrongTypeIsReported(t *testing.T) {
	ctx := newContext(t)
	v := mustHandle(t, capi.ValueCreateInt(1), "value")

	if st := capi.SessionEnd(ctx, v); st != capi.StatusError {
		t.Fatalf("expected StatusError, got %d", st)
	}
	kind, desc := lastError(t, ctx)
	if kind != capi.ErrorKindArgument {
		t.Errorf("want argument error, got kind %d", kind)
	}
	if !strings.Contains(desc, "invalid session handle") {
		t.Errorf("want an invalid handle description, got %q", desc)
	}
}

// ─── call context ────────────────────────────────────────────────────────────

func TestCallContext_SlotSurvivesLaterSuccess(t *testing.T) {
	ctx := newContext(t)
	if e := capi.CallContextGetError(ctx); e != capi.Null {
		capi.Destroy(e)
		t.Fatal("expected an empty slot on a new context")
	}

	conn := mustHandle(t, capi.ConnectionCreateWithEngine(newLoopEngine()), "connection")
	if st := capi.ConnectionClose(ctx, conn); st != capi.StatusError {
		t.Fatalf("closing an unopened connection: want StatusError, got %d", st)
	}
	kind, _ := lastError(t, ctx)
	if kind != capi.ErrorKindLifecycle {
		t.Errorf("want lifecycle error, got kind %d", kind)
	}

	mustOK(t, capi.ConnectionOpen(ctx, conn, "amqp://loop", "c", capi.Null), "ConnectionOpen")
	if kind, _ := lastError(t, ctx); kind != capi.ErrorKindLifecycle {
		t.Errorf("slot changed by a successful call: got kind %d", kind)
	}

	mustOK(t, capi.CallContextClearError(ctx), "CallContextClearError")
	if e := capi.CallContextGetError(ctx); e != capi.Null {
		capi.Destroy(e)
		t.Error("expected an empty slot after clearing")
	}
	mustOK(t, capi.ConnectionClose(ctx, conn), "ConnectionClose")
}

func TestCallContext_ErrorOperation(t *testing.T) {
	ctx := newContext(t)
	rcv := mustHandle(t, capi.ReceiverCreate(), "receiver")
	if _, st := capi.ReceiverPoll(ctx, rcv); st != capi.StatusError {
		t.Fatalf("expected StatusError, got %d", st)
	}
	e := capi.CallContextGetError(ctx)
	if e == capi.Null {
		t.Fatal("expected an error")
	}
	defer capi.Destroy(e)
	sh := capi.ErrorGetOperation(e)
	defer capi.StringRelease(sh)
	if op, _ := capi.StringGet(sh); op != "receiver.poll" {
		t.Errorf("want operation receiver.poll, got %q", op)
	}
}

func TestCallContext_BadContextHandle(t *testing.T) {
	if st := capi.SessionEnd(capi.Null, capi.Null); st != capi.StatusError {
		t.Errorf("expected StatusError for a Null context, got %d", st)
	}
	if h := capi.CallContextCreate(capi.Null); h != capi.Null {
		capi.Destroy(h)
		t.Error("expected Null creating a context without a scheduler")
	}
}

// ─── end to end ──────────────────────────────────────────────────────────────

func TestConnection_OpenUnreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()

	ctx := newContext(t)
	conn := capi.ConnectionCreate()
	if conn == capi.Null {
		t.Fatal("ConnectionCreate: got Null")
	}
	if st := capi.ConnectionOpen(ctx, conn, "amqp://"+addr, "container-1", capi.Null); st == capi.StatusOK {
		t.Fatal("expected a failure status against a closed port")
	}
	kind, desc := lastError(t, ctx)
	if kind != capi.ErrorKindEngine {
		t.Errorf("want engine error, got kind %d", kind)
	}
	if desc == "" {
		t.Error("expected a populated description")
	}
	if capi.ConnectionIsOpen(conn) {
		t.Error("connection must stay closed")
	}
	if st := capi.ConnectionClose(ctx, conn); st != capi.StatusError {
		t.Errorf("closing a never-opened connection: want StatusError, got %d", st)
	}
	capi.Destroy(conn)
}

func TestConnection_OptionsAndCloseWithError(t *testing.T) {
	ctx := newContext(t)
	ob := capi.ConnectionOptionsBuilderCreate()
	mustOK(t, capi.ConnectionOptionsBuilderSetIdleTimeout(ob, 30_000), "SetIdleTimeout")
	if st := capi.ConnectionOptionsBuilderSetMaxFrameSize(ob, 100); st != capi.StatusError {
		t.Errorf("frame size 100: want StatusError, got %d", st)
	}
	opts := mustHandle(t, capi.ConnectionOptionsBuilderBuild(ob), "options")
	if ms, _ := capi.ConnectionOptionsGetIdleTimeout(opts); ms != 30_000 {
		t.Errorf("idle timeout: want 30000, got %d", ms)
	}

	e := newLoopEngine()
	conn := mustHandle(t, capi.ConnectionCreateWithEngine(e), "connection")
	mustOK(t, capi.ConnectionOpen(ctx, conn, "amqp://loop", "c", opts), "ConnectionOpen")
	if !capi.ConnectionIsOpen(conn) {
		t.Fatal("want open connection")
	}
	info := mustHandle(t, capi.ValueCreateMap(), "info")
	k := mustHandle(t, capi.ValueCreateString("not-a-symbol"), "key")
	v := mustHandle(t, capi.ValueCreateInt(1), "val")
	mustOK(t, capi.ValueSetMapValue(info, k, v), "ValueSetMapValue")
	if st := capi.ConnectionCloseWithError(ctx, conn, "amqp:internal-error", "boom", info); st != capi.StatusError {
		t.Errorf("string info keys: want StatusError, got %d", st)
	}
	mustOK(t, capi.ConnectionCloseWithError(ctx, conn, "amqp:internal-error", "boom", capi.Null), "ConnectionCloseWithError")
	if capi.ConnectionIsOpen(conn) {
		t.Error("want closed connection")
	}
	cond := e.closeCond.Load()
	if cond == nil || cond.Condition != "amqp:internal-error" || cond.Description != "boom" {
		t.Errorf("want the condition handed to the engine, got %+v", cond)
	}
}

func TestDestroy_ClosesOpenConnectionAndSession(t *testing.T) {
	ctx := newContext(t)
	e := newLoopEngine()
	conn := mustHandle(t, capi.ConnectionCreateWithEngine(e), "connection")
	mustOK(t, capi.ConnectionOpen(ctx, conn, "amqp://loop", "c", capi.Null), "ConnectionOpen")
	sess := mustHandle(t, capi.SessionCreate(), "session")
	mustOK(t, capi.SessionBegin(ctx, sess, conn, capi.Null), "SessionBegin")

	capi.Destroy(sess)
	if !e.sessionClosed.Load() {
		t.Error("expected Destroy to end the session")
	}
	capi.Destroy(conn)
	if !e.connClosed.Load() || e.closeCond.Load() != nil {
		t.Error("expected Destroy to close the connection cleanly")
	}
}
