package value_test

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/snehjoshi/amqpbridge/pkg/value"
)

func mustRoundTrip(t *testing.T, v *value.Value) *value.Value {
	t.Helper()
	size, err := value.EncodedSize(v)
	if err != nil {
		t.Fatalf("EncodedSize(%s): %v", v, err)
	}
	buf := make([]byte, size)
	n, err := value.Encode(v, buf)
	if err != nil {
		t.Fatalf("Encode(%s): %v", v, err)
	}
	if n != size {
		t.Fatalf("Encode(%s): wrote %d, EncodedSize said %d", v, n, size)
	}
	got, err := value.Unmarshal(buf)
	if err != nil {
		t.Fatalf("Unmarshal(%s): %v", v, err)
	}
	return got
}

func nestedListOfMaps() *value.Value {
	l := value.NewList()
	for i := int32(0); i < 3; i++ {
		m := value.NewMap()
		_ = m.Insert(value.Symbol("n"), value.Int(i))
		_ = m.Insert(value.String("tags"), value.NewList(value.String("a"), value.Null()))
		_ = l.Append(m)
	}
	return l
}

func sparseComposite() *value.Value {
	c, _ := value.NewComposite(value.Ulong(0x73), 13)
	_ = c.SetField(4, value.String("reply-queue"))
	return c
}

// ─── round trip ───────────────────────────────────────────────────────────────

func TestCodec_RoundTrip(t *testing.T) {
	ints, _ := value.NewArray(value.Int(1), value.Int(-70000), value.Int(3))
	syms, _ := value.NewArray(value.Symbol("a"), value.Symbol("bb"))
	lists, _ := value.NewArray(value.NewList(value.Int(1)), value.NewList())
	empty, _ := value.NewArray()
	described, _ := value.NewDescribed(value.Symbol("com.example:thing"), value.Long(99))

	tests := []struct {
		name string
		v    *value.Value
	}{
		{"null", value.Null()},
		{"true", value.Boolean(true)},
		{"false", value.Boolean(false)},
		{"ubyte", value.Ubyte(200)},
		{"ushort", value.Ushort(60000)},
		{"uint zero", value.Uint(0)},
		{"uint small", value.Uint(200)},
		{"uint wide", value.Uint(math.MaxUint32)},
		{"ulong zero", value.Ulong(0)},
		{"ulong small", value.Ulong(7)},
		{"ulong wide", value.Ulong(1 << 40)},
		{"byte", value.Byte(-100)},
		{"short", value.Short(-30000)},
		{"int small", value.Int(-5)},
		{"int wide", value.Int(math.MinInt32)},
		{"long small", value.Long(127)},
		{"long wide", value.Long(math.MaxInt64)},
		{"float", value.Float(3.25)},
		{"double", value.Double(math.Inf(-1))},
		{"char", value.Char('€')},
		{"timestamp", value.TimestampMillis(1_700_000_000_123)},
		{"timestamp negative", value.TimestampMillis(-1)},
		{"uuid", value.UUID(uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479"))},
		{"binary empty", value.Binary(nil)},
		{"binary", value.Binary([]byte{0, 1, 2, 0xff})},
		{"binary wide", value.Binary(bytes.Repeat([]byte{7}, 300))},
		{"string utf8", value.String("grüße, 世界")},
		{"string wide", value.String(strings.Repeat("x", 1000))},
		{"symbol", value.Symbol("amqp:not-found")},
		{"empty list", value.NewList()},
		{"nested list of maps", nestedListOfMaps()},
		{"sparse composite", sparseComposite()},
		{"described", described},
		{"int array", ints},
		{"symbol array", syms},
		{"list array", lists},
		{"empty array", empty},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := mustRoundTrip(t, tc.v)
			if !got.Equal(tc.v) {
				t.Errorf("round trip: want %s, got %s", tc.v, got)
			}
			if got.Kind() != tc.v.Kind() {
				t.Errorf("round trip kind: want %s, got %s", tc.v.Kind(), got.Kind())
			}
		})
	}
}

func TestCodec_SparseCompositeKeepsAbsentFields(t *testing.T) {
	got := mustRoundTrip(t, sparseComposite())
	n, _ := got.Count()
	if n != 5 {
		t.Fatalf("Count: want 5, got %d", n)
	}
	for i := 0; i < 4; i++ {
		f, _ := got.Field(i)
		if !f.IsNull() {
			t.Errorf("Field(%d): want null, got %s", i, f)
		}
	}
}

func TestCodec_LargeList(t *testing.T) {
	l := value.NewList()
	for i := 0; i < 300; i++ {
		_ = l.Append(value.Uint(uint32(i)))
	}
	got := mustRoundTrip(t, l)
	if !got.Equal(l) {
		t.Error("300-item list did not survive the round trip")
	}
}

// ─── exact bytes ──────────────────────────────────────────────────────────────

func TestCodec_CompactForms(t *testing.T) {
	header, _ := value.NewComposite(value.Ulong(0x70), 0)
	_ = header.SetField(0, value.Boolean(true))
	empty, _ := value.NewArray()

	tests := []struct {
		name string
		v    *value.Value
		want []byte
	}{
		{"uint0", value.Uint(0), []byte{0x43}},
		{"smallulong", value.Ulong(5), []byte{0x53, 0x05}},
		{"smallint", value.Int(-1), []byte{0x54, 0xff}},
		{"str8", value.String("hi"), []byte{0xa1, 0x02, 'h', 'i'}},
		{"sym8", value.Symbol("x"), []byte{0xa3, 0x01, 'x'}},
		{"list0", value.NewList(), []byte{0x45}},
		{"header", header, []byte{0x00, 0x53, 0x70, 0xc0, 0x02, 0x01, 0x41}},
		{"empty array", empty, []byte{0xe0, 0x02, 0x00, 0x40}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := value.Marshal(tc.v)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if !bytes.Equal(got, tc.want) {
				t.Errorf("Marshal: want % x, got % x", tc.want, got)
			}
		})
	}
}

func TestCodec_DecodeReportsConsumed(t *testing.T) {
	buf := []byte{0x53, 0x05, 0x40}
	v, n, err := value.Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if n != 2 {
		t.Errorf("Decode consumed: want 2, got %d", n)
	}
	if got, _ := v.AsUlong(); got != 5 {
		t.Errorf("Decode: want 5, got %s", v)
	}
}

func TestCodec_EncodeBufferTooSmall(t *testing.T) {
	_, err := value.Encode(value.String("hello"), make([]byte, 3))
	if !errors.Is(err, value.ErrBufferTooSmall) {
		t.Errorf("Encode: want ErrBufferTooSmall, got %v", err)
	}
}

// ─── malformed input ──────────────────────────────────────────────────────────

func TestCodec_Malformed(t *testing.T) {
	deep := bytes.Repeat([]byte{0x00, 0x53, 0x01}, 200)
	deep = append(deep, 0x40)

	tests := []struct {
		name string
		buf  []byte
		want error
	}{
		{"empty", nil, value.ErrMalformed},
		{"unknown code", []byte{0x01}, value.ErrMalformed},
		{"truncated str8", []byte{0xa1, 0x05, 'a'}, value.ErrMalformed},
		{"truncated uint", []byte{0x70, 0x00, 0x01}, value.ErrMalformed},
		{"bad boolean", []byte{0x56, 0x02}, value.ErrMalformed},
		{"list size past end", []byte{0xc0, 0x10, 0x01, 0x40}, value.ErrMalformed},
		{"list count past size", []byte{0xc0, 0x02, 0x05, 0x40}, value.ErrMalformed},
		{"map odd count", []byte{0xc1, 0x02, 0x01, 0x40}, value.ErrMalformed},
		{"string descriptor", []byte{0x00, 0xa1, 0x01, 'x', 0x40}, value.ErrMalformed},
		{"trailing bytes", []byte{0x40, 0x40}, value.ErrMalformed},
		{"hostile null array", []byte{0xf0, 0x00, 0x00, 0x00, 0x05, 0xff, 0xff, 0xff, 0xff, 0x40}, value.ErrMalformed},
		{"too deep", deep, value.ErrMalformed},
		{"decimal", []byte{0x74, 0, 0, 0, 0}, value.ErrUnsupported},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v, err := value.Unmarshal(tc.buf)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Unmarshal: want %v, got %v (value %s)", tc.want, err, v)
			}
			if v != nil {
				t.Errorf("Unmarshal: want nil value on error, got %s", v)
			}
		})
	}
}
