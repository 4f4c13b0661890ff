package bridge_test

import (
	"errors"
	"testing"

	"github.com/snehjoshi/amqpbridge/internal/metrics"
	"github.com/snehjoshi/amqpbridge/pkg/bridge"
)

func TestCallContext_SlotSurvivesLaterSuccess(t *testing.T) {
	cc := newCallContext(t)
	e := &fakeEngine{dialErr: errors.New("connection refused")}
	conn := bridge.NewConnection(e)

	if err := conn.Open(cc, "amqp://localhost:25672", "container-1", nil); err == nil {
		t.Fatal("want dial failure")
	}
	first := cc.Err()
	if first == nil {
		t.Fatal("want error in slot after failure")
	}
	if !errors.Is(first, bridge.ErrEngine) {
		t.Errorf("want engine kind, got %s", first.Kind)
	}

	e.dialErr = nil
	if err := conn.Open(cc, "amqp://localhost:25672", "container-1", nil); err != nil {
		t.Fatalf("second Open: %v", err)
	}
	after := cc.Err()
	if after == nil || after.Error() != first.Error() {
		t.Fatalf("want slot unchanged by success, got %v", after)
	}
}

func TestCallContext_FailureOverwrites(t *testing.T) {
	cc := newCallContext(t)
	conn := bridge.NewConnection(&fakeEngine{})

	_ = conn.Open(cc, "", "c", nil)
	if err := cc.Err(); !errors.Is(err, bridge.ErrArgument) {
		t.Fatalf("want argument error, got %v", err)
	}
	_ = conn.Close(cc)
	err := cc.Err()
	if !errors.Is(err, bridge.ErrLifecycle) || !errors.Is(err, bridge.ErrNotOpen) {
		t.Fatalf("want not-open lifecycle error, got %v", err)
	}
	if err.Op != "connection.close" {
		t.Errorf("want op connection.close, got %q", err.Op)
	}
}

func TestCallContext_SetError(t *testing.T) {
	cc := newCallContext(t)

	cc.SetError(errors.New("caller supplied"))
	if cc.Err() == nil {
		t.Fatal("want error after SetError")
	}
	cc.SetError(nil)
	if err := cc.Err(); err != nil {
		t.Fatalf("want empty slot, got %v", err)
	}
}

func TestCallContext_ErrReturnsCopy(t *testing.T) {
	cc := newCallContext(t)
	cc.SetError(errors.New("original"))

	cp := cc.Err()
	cp.Detail = "mutated"
	if cc.Err().Detail == "mutated" {
		t.Fatal("want Err to return a copy")
	}
}

func TestCallContext_CountsFailures(t *testing.T) {
	reg := new(metrics.Registry)
	s, err := bridge.NewScheduler(bridge.WithMetrics(reg))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	cc := bridge.NewCallContext(s)

	_ = bridge.NewConnection(&fakeEngine{}).Close(cc)
	if got := reg.CallFailures.Load(metrics.FailureKey("connection.close", "lifecycle")); got != 1 {
		t.Errorf("want 1 lifecycle failure, got %d", got)
	}
}

func TestError_IsMatchesKindAndOp(t *testing.T) {
	err := &bridge.Error{Kind: bridge.KindEngine, Op: "sender.send"}
	if !errors.Is(err, &bridge.Error{Kind: bridge.KindEngine, Op: "sender.send"}) {
		t.Error("want match on kind and op")
	}
	if errors.Is(err, &bridge.Error{Kind: bridge.KindEngine, Op: "receiver.poll"}) {
		t.Error("want no match on a different op")
	}
	if errors.Is(err, bridge.ErrArgument) {
		t.Error("want no match on a different kind")
	}
}
