package capi_test

import (
	"strings"
	"testing"

	"github.com/snehjoshi/amqpbridge/pkg/capi"
	"github.com/snehjoshi/amqpbridge/pkg/model"
)

// ─── header ──────────────────────────────────────────────────────────────────

func TestHeader_WrongDescriptorIsNotFatal(t *testing.T) {
	d := mustHandle(t, capi.ValueCreateUlong(0x99), "descriptor")
	c := mustHandle(t, capi.ValueCreateComposite(d, 5), "composite")
	yes := mustHandle(t, capi.ValueCreateBoolean(true), "durable")
	mustOK(t, capi.ValueSetCompositeItem(c, 0, yes), "ValueSetCompositeItem")

	h, st := capi.ValueGetHeader(c)
	if st != capi.StatusError || h != capi.Null {
		capi.Destroy(h)
		t.Fatalf("expected Null and StatusError, got %d (%d)", h, st)
	}
}

func TestRecordFromValue_RecordsMismatch(t *testing.T) {
	ctx := newContext(t)
	d := mustHandle(t, capi.ValueCreateUlong(0x99), "descriptor")
	c := mustHandle(t, capi.ValueCreateComposite(d, 1), "composite")

	h, st := capi.RecordFromValue(ctx, c, capi.RecordHeader)
	if st != capi.StatusError || h != capi.Null {
		capi.Destroy(h)
		t.Fatalf("expected Null and StatusError, got %d (%d)", h, st)
	}
	kind, desc := lastError(t, ctx)
	if kind != capi.ErrorKindArgument {
		t.Errorf("want argument error, got kind %d", kind)
	}
	if !strings.Contains(desc, "descriptor mismatch") || !strings.Contains(desc, "0x99") {
		t.Errorf("want the mismatch described, got %q", desc)
	}

	b := capi.TargetBuilderCreate()
	mustOK(t, capi.TargetBuilderSetAddress(b, "orders"), "TargetBuilderSetAddress")
	tgt := mustHandle(t, capi.TargetBuilderBuild(b), "target")
	tv := mustHandle(t, capi.ValueCreateTarget(tgt), "target value")
	back := mustHandle(t, mustRecord(t, ctx, tv, capi.RecordTarget), "target again")
	if addr, _ := capi.TargetGetAddress(back); addr != "orders" {
		t.Errorf("want address orders, got %q", addr)
	}
	if _, st := capi.RecordFromValue(ctx, tv, capi.RecordSource); st != capi.StatusError {
		t.Errorf("target as source: want StatusError, got %d", st)
	}
}

func mustRecord(t *testing.T, ctx, v capi.Handle, kind capi.RecordKind) capi.Handle {
	t.Helper()
	h, st := capi.RecordFromValue(ctx, v, kind)
	mustOK(t, st, "RecordFromValue")
	return h
}

func TestHeader_WrongShapeIsNotFatal(t *testing.T) {
	// A header field holding a map instead of a boolean.
	d := mustHandle(t, capi.ValueCreateUlong(0x70), "descriptor")
	c := mustHandle(t, capi.ValueCreateComposite(d, 1), "composite")
	m := mustHandle(t, capi.ValueCreateMap(), "map")
	mustOK(t, capi.ValueSetCompositeItem(c, 0, m), "ValueSetCompositeItem")

	if h, st := capi.ValueGetHeader(c); st != capi.StatusError {
		capi.Destroy(h)
		t.Fatalf("expected StatusError, got %d", st)
	}
}

func TestHeader_BuildAndDefaults(t *testing.T) {
	b := capi.HeaderBuilderCreate()
	mustOK(t, capi.HeaderBuilderSetDurable(b, true), "SetDurable")
	mustOK(t, capi.HeaderBuilderSetTTL(b, 1500), "SetTTL")
	h := mustHandle(t, capi.HeaderBuilderBuild(b), "HeaderBuilderBuild")

	if d, _ := capi.HeaderGetDurable(h); !d {
		t.Error("durable: want true, got false")
	}
	if ttl, st := capi.HeaderGetTTL(h); st != capi.StatusOK || ttl != 1500 {
		t.Errorf("ttl: want 1500, got %d (%d)", ttl, st)
	}
	if p, st := capi.HeaderGetPriority(h); st != capi.StatusOK || p != 4 {
		t.Errorf("priority: want default 4, got %d (%d)", p, st)
	}

	empty := mustHandle(t, capi.HeaderBuilderBuild(capi.HeaderBuilderCreate()), "empty header")
	if _, st := capi.HeaderGetTTL(empty); st != capi.StatusNotPresent {
		t.Errorf("absent ttl: want StatusNotPresent, got %d", st)
	}
}

func TestHeader_ValueRoundTrip(t *testing.T) {
	b := capi.HeaderBuilderCreate()
	mustOK(t, capi.HeaderBuilderSetPriority(b, 9), "SetPriority")
	mustOK(t, capi.HeaderBuilderSetDeliveryCount(b, 3), "SetDeliveryCount")
	h := mustHandle(t, capi.HeaderBuilderBuild(b), "header")

	v := mustHandle(t, capi.ValueCreateHeader(h), "ValueCreateHeader")
	back, st := capi.ValueGetHeader(roundTrip(t, v))
	mustOK(t, st, "ValueGetHeader")
	track(t, back)
	if p, _ := capi.HeaderGetPriority(back); p != 9 {
		t.Errorf("priority: want 9, got %d", p)
	}
	if n, _ := capi.HeaderGetDeliveryCount(back); n != 3 {
		t.Errorf("delivery count: want 3, got %d", n)
	}
}

func TestBuilder_ConsumedByBuild(t *testing.T) {
	b := capi.HeaderBuilderCreate()
	mustHandle(t, capi.HeaderBuilderBuild(b), "build")
	if st := capi.HeaderBuilderSetDurable(b, true); st != capi.StatusError {
		t.Errorf("expected StatusError on a consumed builder, got %d", st)
	}
	if again := capi.HeaderBuilderBuild(b); again != capi.Null {
		capi.Destroy(again)
		t.Error("expected Null building a consumed builder")
	}
}

// ─── properties ──────────────────────────────────────────────────────────────

func TestProperties_Fields(t *testing.T) {
	b := capi.PropertiesBuilderCreate()
	id := mustHandle(t, capi.ValueCreateString("msg-1"), "id")
	mustOK(t, capi.PropertiesBuilderSetMessageID(b, id), "SetMessageID")
	mustOK(t, capi.PropertiesBuilderSetSubject(b, "greeting"), "SetSubject")
	mustOK(t, capi.PropertiesBuilderSetCreationTime(b, 1_700_000_000_500), "SetCreationTime")
	mustOK(t, capi.PropertiesBuilderSetGroupSequence(b, 7), "SetGroupSequence")
	p := mustHandle(t, capi.PropertiesBuilderBuild(b), "properties")

	gotID, st := capi.PropertiesGetMessageID(p)
	mustOK(t, st, "GetMessageID")
	track(t, gotID)
	if !capi.ValueAreEqual(gotID, id) {
		t.Error("message id does not read back")
	}
	if s, _ := capi.PropertiesGetSubject(p); s != "greeting" {
		t.Errorf("subject: want greeting, got %q", s)
	}
	if ms, _ := capi.PropertiesGetCreationTime(p); ms != 1_700_000_000_500 {
		t.Errorf("creation time: want 1700000000500, got %d", ms)
	}
	if n, _ := capi.PropertiesGetGroupSequence(p); n != 7 {
		t.Errorf("group sequence: want 7, got %d", n)
	}
	if _, st := capi.PropertiesGetReplyTo(p); st != capi.StatusNotPresent {
		t.Errorf("reply-to: want StatusNotPresent, got %d", st)
	}
}

func TestProperties_RejectsInvalidMessageID(t *testing.T) {
	b := capi.PropertiesBuilderCreate()
	track(t, b)
	bad := mustHandle(t, capi.ValueCreateBoolean(true), "id")
	if st := capi.PropertiesBuilderSetMessageID(b, bad); st != capi.StatusError {
		t.Errorf("expected StatusError for a boolean message id, got %d", st)
	}
}

// ─── termini ─────────────────────────────────────────────────────────────────

func TestSource_RoundTrip(t *testing.T) {
	b := capi.SourceBuilderCreate()
	mustOK(t, capi.SourceBuilderSetAddress(b, "orders"), "SetAddress")
	mustOK(t, capi.SourceBuilderSetDurable(b, model.DurabilityUnsettledState), "SetDurable")
	mustOK(t, capi.SourceBuilderSetDistributionMode(b, model.DistributionCopy), "SetDistributionMode")
	mustOK(t, capi.SourceBuilderSetCapabilities(b, []string{"queue"}), "SetCapabilities")
	src := mustHandle(t, capi.SourceBuilderBuild(b), "source")

	v := mustHandle(t, capi.ValueCreateSource(src), "ValueCreateSource")
	back, st := capi.ValueGetSource(roundTrip(t, v))
	mustOK(t, st, "ValueGetSource")
	track(t, back)

	if a, _ := capi.SourceGetAddress(back); a != "orders" {
		t.Errorf("address: want orders, got %q", a)
	}
	if d, _ := capi.SourceGetDurable(back); d != model.DurabilityUnsettledState {
		t.Errorf("durable: want %v, got %v", model.DurabilityUnsettledState, d)
	}
	if m, _ := capi.SourceGetDistributionMode(back); m != model.DistributionCopy {
		t.Errorf("distribution mode: want %v, got %v", model.DistributionCopy, m)
	}
	if caps, _ := capi.SourceGetCapabilities(back); len(caps) != 1 || caps[0] != "queue" {
		t.Errorf("capabilities: want [queue], got %v", caps)
	}
	if _, st := capi.SourceGetFilter(back); st != capi.StatusNotPresent {
		t.Errorf("filter: want StatusNotPresent, got %d", st)
	}
}

func TestTarget_CloneIsIndependent(t *testing.T) {
	b := capi.TargetBuilderCreate()
	mustOK(t, capi.TargetBuilderSetAddress(b, "events"), "SetAddress")
	mustOK(t, capi.TargetBuilderSetTimeout(b, 30), "SetTimeout")
	tgt := mustHandle(t, capi.TargetBuilderBuild(b), "target")
	cp := mustHandle(t, capi.TargetClone(tgt), "clone")
	capi.Destroy(tgt)

	if a, st := capi.TargetGetAddress(cp); st != capi.StatusOK || a != "events" {
		t.Errorf("clone address: want events, got %q (%d)", a, st)
	}
	if n, _ := capi.TargetGetTimeout(cp); n != 30 {
		t.Errorf("clone timeout: want 30, got %d", n)
	}
}

// ─── message ─────────────────────────────────────────────────────────────────

func TestMessage_BuildSerializeDeserialize(t *testing.T) {
	hb := capi.HeaderBuilderCreate()
	mustOK(t, capi.HeaderBuilderSetDurable(hb, true), "SetDurable")
	header := mustHandle(t, capi.HeaderBuilderBuild(hb), "header")

	props := mustHandle(t, capi.ValueCreateMap(), "app props")
	k := mustHandle(t, capi.ValueCreateString("region"), "key")
	v := mustHandle(t, capi.ValueCreateString("eu"), "val")
	mustOK(t, capi.ValueSetMapValue(props, k, v), "ValueSetMapValue")

	mb := capi.MessageBuilderCreate()
	mustOK(t, capi.MessageBuilderSetHeader(mb, header), "SetHeader")
	mustOK(t, capi.MessageBuilderSetApplicationProperties(mb, props), "SetApplicationProperties")
	mustOK(t, capi.MessageBuilderAddBodyData(mb, []byte("one")), "AddBodyData")
	mustOK(t, capi.MessageBuilderAddBodyData(mb, []byte("two")), "AddBodyData")
	body := mustHandle(t, capi.ValueCreateInt(1), "value body")
	if st := capi.MessageBuilderSetBodyValue(mb, body); st != capi.StatusError {
		t.Errorf("expected StatusError mixing value and data bodies, got %d", st)
	}
	msg := mustHandle(t, capi.MessageBuilderBuild(mb), "message")

	buf, st := capi.MessageSerialize(msg)
	mustOK(t, st, "MessageSerialize")
	back, st := capi.MessageDeserialize(buf)
	mustOK(t, st, "MessageDeserialize")
	track(t, back)

	if kind, _ := capi.MessageGetBodyType(back); kind != model.BodyData {
		t.Errorf("body kind: want data, got %v", kind)
	}
	if n, _ := capi.MessageGetBodyDataCount(back); n != 2 {
		t.Fatalf("want 2 data sections, got %d", n)
	}
	if d, _ := capi.MessageGetBodyData(back, 1); string(d) != "two" {
		t.Errorf("section 1: want two, got %q", d)
	}
	if _, st := capi.MessageGetBodyData(back, 2); st != capi.StatusNotPresent {
		t.Errorf("section 2: want StatusNotPresent, got %d", st)
	}
	h, st := capi.MessageGetHeader(back)
	mustOK(t, st, "MessageGetHeader")
	track(t, h)
	if d, _ := capi.HeaderGetDurable(h); !d {
		t.Error("header durable: want true, got false")
	}
	if _, st := capi.MessageGetProperties(back); st != capi.StatusNotPresent {
		t.Errorf("properties: want StatusNotPresent, got %d", st)
	}
	ap, st := capi.MessageGetApplicationProperties(back)
	mustOK(t, st, "MessageGetApplicationProperties")
	track(t, ap)
	if !capi.ValueAreEqual(ap, props) {
		t.Error("application properties do not read back")
	}
}

func TestMessage_DeserializeGarbage(t *testing.T) {
	h, st := capi.MessageDeserialize([]byte{0x00, 0x53, 0x99, 0x45})
	if st != capi.StatusError || h != capi.Null {
		capi.Destroy(h)
		t.Errorf("expected Null and StatusError, got %d (%d)", h, st)
	}
}
