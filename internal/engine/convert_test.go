package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/Azure/go-amqp"
	"github.com/google/uuid"

	"github.com/snehjoshi/amqpbridge/pkg/model"
	"github.com/snehjoshi/amqpbridge/pkg/value"
)

func mustArray(t *testing.T, items ...*value.Value) *value.Value {
	t.Helper()
	a, err := value.NewArray(items...)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

// ─── values ───────────────────────────────────────────────────────────────────

func TestValueRoundTripThroughEngineTypes(t *testing.T) {
	m := value.NewMap()
	_ = m.Insert(value.Symbol("k"), value.Long(-7))
	cases := map[string]*value.Value{
		"null":      value.Null(),
		"bool":      value.Boolean(true),
		"ubyte":     value.Ubyte(200),
		"ushort":    value.Ushort(60000),
		"uint":      value.Uint(4_000_000_000),
		"ulong":     value.Ulong(1 << 63),
		"byte":      value.Byte(-100),
		"short":     value.Short(-30000),
		"int":       value.Int(-2_000_000_000),
		"long":      value.Long(-1 << 62),
		"float":     value.Float(1.5),
		"double":    value.Double(-2.25),
		"timestamp": value.TimestampMillis(1_700_000_000_123),
		"uuid":      value.UUID(uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")),
		"binary":    value.Binary([]byte{1, 2, 3}),
		"string":    value.String("héllo"),
		"symbol":    value.Symbol("amqp:accepted"),
		"list":      value.NewList(value.Int(1), value.String("two"), value.NewList()),
		"map":       m,
		"ints":      mustArray(t, value.Int(1), value.Int(2)),
		"symbols":   mustArray(t, value.Symbol("a"), value.Symbol("b")),
		"uuids":     mustArray(t, value.UUID(uuid.New())),
	}
	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			a, err := toAny(v)
			if err != nil {
				t.Fatalf("toAny: %v", err)
			}
			back, err := fromAny(a)
			if err != nil {
				t.Fatalf("fromAny: %v", err)
			}
			if !back.Equal(v) {
				t.Fatalf("want %s, got %s", v, back)
			}
		})
	}
}

func TestToAny_RejectsUnrepresentable(t *testing.T) {
	described, _ := value.NewDescribed(value.Ulong(0x99), value.String("x"))
	composite, _ := value.NewComposite(value.Ulong(0x70), 1)
	for name, v := range map[string]*value.Value{
		"char":      value.Char('x'),
		"described": described,
		"composite": composite,
		"nested":    value.NewList(value.Char('y')),
	} {
		if _, err := toAny(v); !errors.Is(err, value.ErrUnsupported) {
			t.Errorf("%s: want ErrUnsupported, got %v", name, err)
		}
	}
}

func TestFromAny_DecodedForms(t *testing.T) {
	v, err := fromAny(map[string]any{"n": int64(3)})
	if err != nil {
		t.Fatal(err)
	}
	if got, err := v.Lookup(value.String("n")); err != nil || !got.Equal(value.Long(3)) {
		t.Errorf("want n=3, got %v, %v", got, err)
	}

	ts := time.UnixMilli(1_700_000_000_000).UTC()
	v, err = fromAny(ts)
	if err != nil {
		t.Fatal(err)
	}
	if ms, _ := v.AsTimestampMillis(); ms != 1_700_000_000_000 {
		t.Errorf("want millis preserved, got %d", ms)
	}

	if _, err := fromAny(struct{}{}); !errors.Is(err, value.ErrUnsupported) {
		t.Errorf("want ErrUnsupported for unknown type, got %v", err)
	}
}

func TestSymbolKeyed_RejectsStringKeys(t *testing.T) {
	m := value.NewMap()
	_ = m.Insert(value.String("plain"), value.Null())
	if _, err := symbolKeyed(m); !errors.Is(err, model.ErrShape) {
		t.Fatalf("want ErrShape, got %v", err)
	}
}

func TestLinkFilters(t *testing.T) {
	selector, _ := value.NewDescribed(value.Ulong(0x468C00000004), value.String("color = 'red'"))
	f := value.NewMap()
	_ = f.Insert(value.Symbol("apache.org:selector-filter:string"), selector)

	filters, err := linkFilters(f)
	if err != nil {
		t.Fatalf("linkFilters: %v", err)
	}
	if len(filters) != 1 {
		t.Fatalf("want 1 filter, got %d", len(filters))
	}

	bad := value.NewMap()
	_ = bad.Insert(value.Symbol("plain"), value.String("not described"))
	if _, err := linkFilters(bad); !errors.Is(err, value.ErrUnsupported) {
		t.Fatalf("want ErrUnsupported for undescribed filter, got %v", err)
	}
}

// ─── messages ─────────────────────────────────────────────────────────────────

func fullMessage(t *testing.T) *model.Message {
	t.Helper()
	hb := model.NewHeaderBuilder()
	_ = hb.SetDurable(true)
	_ = hb.SetPriority(7)
	_ = hb.SetTTL(1500 * time.Millisecond)
	header, _ := hb.Build()

	pb := model.NewPropertiesBuilder()
	_ = pb.SetMessageID(value.Ulong(42))
	_ = pb.SetCorrelationID(value.String("corr"))
	_ = pb.SetTo("orders")
	_ = pb.SetSubject("new")
	_ = pb.SetContentType("application/json")
	_ = pb.SetCreationTime(time.UnixMilli(1_700_000_000_000))
	_ = pb.SetGroupSequence(9)
	props, _ := pb.Build()

	ann := value.NewMap()
	_ = ann.Insert(value.Symbol("x-opt-partition"), value.Int(3))
	_ = ann.Insert(value.Ulong(17), value.String("numbered"))
	app := value.NewMap()
	_ = app.Insert(value.String("tenant"), value.String("acme"))

	mb := model.NewMessageBuilder()
	_ = mb.SetHeader(header)
	_ = mb.SetProperties(props)
	_ = mb.SetMessageAnnotations(ann)
	_ = mb.SetApplicationProperties(app)
	_ = mb.AddData([]byte("part-1"))
	_ = mb.AddData([]byte("part-2"))
	msg, err := mb.Build()
	if err != nil {
		t.Fatal(err)
	}
	return msg
}

func TestMessageRoundTripThroughEngineTypes(t *testing.T) {
	msg := fullMessage(t)

	raw, err := toMessage(msg)
	if err != nil {
		t.Fatalf("toMessage: %v", err)
	}
	if raw.Header.Priority != 7 || raw.Header.TTL != 1500*time.Millisecond {
		t.Errorf("want header carried, got %+v", raw.Header)
	}
	if raw.Properties.To == nil || *raw.Properties.To != "orders" {
		t.Errorf("want to=orders, got %v", raw.Properties.To)
	}
	if raw.Annotations["x-opt-partition"] != int32(3) || raw.Annotations[uint64(17)] != "numbered" {
		t.Errorf("want annotations carried, got %v", raw.Annotations)
	}

	back, err := fromMessage(raw)
	if err != nil {
		t.Fatalf("fromMessage: %v", err)
	}
	if !back.Header().ToValue().Equal(msg.Header().ToValue()) {
		t.Errorf("want header %s, got %s", msg.Header().ToValue(), back.Header().ToValue())
	}
	if !back.Properties().ToValue().Equal(msg.Properties().ToValue()) {
		t.Errorf("want properties %s, got %s", msg.Properties().ToValue(), back.Properties().ToValue())
	}
	ann, _ := back.MessageAnnotations()
	if v, err := ann.Lookup(value.Ulong(17)); err != nil || !v.Equal(value.String("numbered")) {
		t.Errorf("want ulong annotation key kept, got %v, %v", v, err)
	}
	if v, err := ann.Lookup(value.Symbol("x-opt-partition")); err != nil || !v.Equal(value.Int(3)) {
		t.Errorf("want symbol annotation key kept, got %v, %v", v, err)
	}
	app, _ := back.ApplicationProperties()
	if v, err := app.Lookup(value.String("tenant")); err != nil || !v.Equal(value.String("acme")) {
		t.Errorf("want tenant=acme, got %v, %v", v, err)
	}
	if data := back.Data(); len(data) != 2 || string(data[1]) != "part-2" {
		t.Errorf("want two data sections, got %q", data)
	}
}

func TestMessageBodies(t *testing.T) {
	mb := model.NewMessageBuilder()
	_ = mb.AddSequence(value.NewList(value.Int(1), value.Int(2)))
	seq, _ := mb.Build()
	raw, err := toMessage(seq)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw.Sequence) != 1 || len(raw.Sequence[0]) != 2 {
		t.Fatalf("want one sequence of two, got %v", raw.Sequence)
	}

	back, err := fromMessage(&amqp.Message{Value: "plain"})
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := back.Value(); !ok || !v.Equal(value.String("plain")) {
		t.Errorf("want value body plain, got %v", v)
	}

	mb = model.NewMessageBuilder()
	_ = mb.SetValue(value.Char('z'))
	bad, _ := mb.Build()
	if _, err := toMessage(bad); !errors.Is(err, value.ErrUnsupported) {
		t.Errorf("want ErrUnsupported for char body, got %v", err)
	}
}
