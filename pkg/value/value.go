// Package value implements the AMQP 1.0 value tree: a tagged union over every
// AMQP primitive, the three collection kinds, and the two descriptor-carrying
// kinds (described and composite).
//
// A tree is owned exclusively by whoever holds its root. Every operation that
// stores a node into a collection stores a deep copy, and every operation that
// reads a node out of a collection returns a deep copy, so two trees never
// share a node.
//
// # Getters
//
// Scalar getters use the comma-ok form. A kind mismatch is an ordinary
// outcome, not a fault:
//
//	if n, ok := v.AsInt(); ok {
//	    ...
//	}
//
// # Timestamps
//
// Timestamps are held as milliseconds since the Unix epoch. AsTimestamp
// converts back to a wall-clock time.Time in UTC.
package value

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrTypeMismatch is returned when an operation is applied to a node of the wrong kind.
	ErrTypeMismatch = errors.New("value: type mismatch")
	// ErrIndexOutOfRange is returned when a positional read or write is past the end.
	ErrIndexOutOfRange = errors.New("value: index out of range")
	// ErrKeyNotFound is returned by Lookup when the map has no such key.
	ErrKeyNotFound = errors.New("value: key not found")
	// ErrInvalidDescriptor is returned when a descriptor is neither a ulong nor a symbol.
	ErrInvalidDescriptor = errors.New("value: invalid descriptor")
	// ErrHeterogeneousArray is returned when an array item does not match the array's element kind.
	ErrHeterogeneousArray = errors.New("value: array items must share one kind")
)

// Kind identifies which member of the tagged union a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBoolean
	KindUbyte
	KindUshort
	KindUint
	KindUlong
	KindByte
	KindShort
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindChar
	KindTimestamp
	KindUUID
	KindBinary
	KindString
	KindSymbol
	KindList
	KindMap
	KindArray
	KindDescribed
	KindComposite
)

var kindNames = [...]string{
	KindNull:      "null",
	KindBoolean:   "boolean",
	KindUbyte:     "ubyte",
	KindUshort:    "ushort",
	KindUint:      "uint",
	KindUlong:     "ulong",
	KindByte:      "byte",
	KindShort:     "short",
	KindInt:       "int",
	KindLong:      "long",
	KindFloat:     "float",
	KindDouble:    "double",
	KindChar:      "char",
	KindTimestamp: "timestamp",
	KindUUID:      "uuid",
	KindBinary:    "binary",
	KindString:    "string",
	KindSymbol:    "symbol",
	KindList:      "list",
	KindMap:       "map",
	KindArray:     "array",
	KindDescribed: "described",
	KindComposite: "composite",
}

// String returns the AMQP type name of the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Value is one node of an AMQP value tree. The zero Value is null.
type Value struct {
	kind  Kind
	bits  uint64    // boolean, integers, IEEE float bits, char, timestamp millis
	id    uuid.UUID // uuid
	bytes []byte    // binary
	text  string    // string, symbol
	items []*Value  // list, array, composite fields
	pairs []pair    // map, in insertion order
	desc  *Value    // descriptor of described and composite nodes
	inner *Value    // payload of described nodes
}

type pair struct {
	key *Value
	val *Value
}

// ─── constructors ─────────────────────────────────────────────────────────────

// Null returns an absent value.
func Null() *Value { return &Value{kind: KindNull} }

// Boolean returns a boolean node.
func Boolean(b bool) *Value {
	v := &Value{kind: KindBoolean}
	if b {
		v.bits = 1
	}
	return v
}

func Ubyte(n uint8) *Value   { return &Value{kind: KindUbyte, bits: uint64(n)} }
func Ushort(n uint16) *Value { return &Value{kind: KindUshort, bits: uint64(n)} }
func Uint(n uint32) *Value   { return &Value{kind: KindUint, bits: uint64(n)} }
func Ulong(n uint64) *Value  { return &Value{kind: KindUlong, bits: n} }
func Byte(n int8) *Value     { return &Value{kind: KindByte, bits: uint64(int64(n))} }
func Short(n int16) *Value   { return &Value{kind: KindShort, bits: uint64(int64(n))} }
func Int(n int32) *Value     { return &Value{kind: KindInt, bits: uint64(int64(n))} }
func Long(n int64) *Value    { return &Value{kind: KindLong, bits: uint64(n)} }

// Float returns a single precision node.
func Float(f float32) *Value { return &Value{kind: KindFloat, bits: uint64(math.Float32bits(f))} }

// Double returns a double precision node.
func Double(f float64) *Value { return &Value{kind: KindDouble, bits: math.Float64bits(f)} }

// Char returns a single Unicode scalar node.
func Char(r rune) *Value { return &Value{kind: KindChar, bits: uint64(uint32(r))} }

// Timestamp returns a timestamp node truncated to millisecond precision.
func Timestamp(t time.Time) *Value { return TimestampMillis(t.UnixMilli()) }

// TimestampMillis returns a timestamp node from milliseconds since the Unix epoch.
func TimestampMillis(ms int64) *Value { return &Value{kind: KindTimestamp, bits: uint64(ms)} }

// UUID returns a 128-bit identifier node.
func UUID(id uuid.UUID) *Value { return &Value{kind: KindUUID, id: id} }

// Binary returns an opaque byte sequence node holding a copy of b.
func Binary(b []byte) *Value {
	return &Value{kind: KindBinary, bytes: append([]byte{}, b...)}
}

// String returns a UTF-8 string node.
func String(s string) *Value { return &Value{kind: KindString, text: s} }

// Symbol returns an interned symbol node.
func Symbol(s string) *Value { return &Value{kind: KindSymbol, text: s} }

// NewList returns a list holding copies of items.
func NewList(items ...*Value) *Value {
	return &Value{kind: KindList, items: cloneAll(items)}
}

// NewMap returns an empty insertion-ordered map.
func NewMap() *Value { return &Value{kind: KindMap} }

// NewArray returns an array holding copies of items. All items must share one kind.
func NewArray(items ...*Value) (*Value, error) {
	a := &Value{kind: KindArray}
	for _, it := range items {
		if err := a.Append(it); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// NewDescribed wraps a copy of v with descriptor, which must be a ulong or a symbol.
func NewDescribed(descriptor, v *Value) (*Value, error) {
	if descriptor == nil || (descriptor.kind != KindUlong && descriptor.kind != KindSymbol) {
		return nil, ErrInvalidDescriptor
	}
	if v == nil {
		v = Null()
	}
	return &Value{kind: KindDescribed, desc: descriptor.Clone(), inner: v.Clone()}, nil
}

// NewComposite returns a composite with an empty positional field list
// preallocated for capacity fields. The descriptor may be a ulong, a symbol,
// or a string, which is promoted to a symbol.
func NewComposite(descriptor *Value, capacity int) (*Value, error) {
	if descriptor == nil {
		return nil, ErrInvalidDescriptor
	}
	var d *Value
	switch descriptor.kind {
	case KindUlong, KindSymbol:
		d = descriptor.Clone()
	case KindString:
		d = Symbol(descriptor.text)
	default:
		return nil, ErrInvalidDescriptor
	}
	if capacity < 0 {
		capacity = 0
	}
	return &Value{kind: KindComposite, desc: d, items: make([]*Value, 0, capacity)}, nil
}

// ─── scalar getters ───────────────────────────────────────────────────────────

// Kind reports which member of the union v holds.
func (v *Value) Kind() Kind { return v.kind }

// IsNull reports whether v is absent.
func (v *Value) IsNull() bool { return v == nil || v.kind == KindNull }

func (v *Value) AsBoolean() (bool, bool) { return v.bits == 1, v.kind == KindBoolean }

func (v *Value) AsUbyte() (uint8, bool)   { return uint8(v.bits), v.kind == KindUbyte }
func (v *Value) AsUshort() (uint16, bool) { return uint16(v.bits), v.kind == KindUshort }
func (v *Value) AsUint() (uint32, bool)   { return uint32(v.bits), v.kind == KindUint }
func (v *Value) AsUlong() (uint64, bool)  { return v.bits, v.kind == KindUlong }
func (v *Value) AsByte() (int8, bool)     { return int8(v.bits), v.kind == KindByte }
func (v *Value) AsShort() (int16, bool)   { return int16(v.bits), v.kind == KindShort }
func (v *Value) AsInt() (int32, bool)     { return int32(v.bits), v.kind == KindInt }
func (v *Value) AsLong() (int64, bool)    { return int64(v.bits), v.kind == KindLong }

func (v *Value) AsFloat() (float32, bool) {
	return math.Float32frombits(uint32(v.bits)), v.kind == KindFloat
}

func (v *Value) AsDouble() (float64, bool) {
	return math.Float64frombits(v.bits), v.kind == KindDouble
}

func (v *Value) AsChar() (rune, bool) { return rune(uint32(v.bits)), v.kind == KindChar }

// AsTimestamp returns the timestamp as a UTC wall-clock time.
func (v *Value) AsTimestamp() (time.Time, bool) {
	if v.kind != KindTimestamp {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(v.bits)).UTC(), true
}

// AsTimestampMillis returns the timestamp as milliseconds since the Unix epoch.
func (v *Value) AsTimestampMillis() (int64, bool) { return int64(v.bits), v.kind == KindTimestamp }

func (v *Value) AsUUID() (uuid.UUID, bool) { return v.id, v.kind == KindUUID }

// AsBinary returns a copy of the byte sequence.
func (v *Value) AsBinary() ([]byte, bool) {
	if v.kind != KindBinary {
		return nil, false
	}
	return append([]byte{}, v.bytes...), true
}

func (v *Value) AsString() (string, bool) { return v.text, v.kind == KindString }
func (v *Value) AsSymbol() (string, bool) { return v.text, v.kind == KindSymbol }

func cloneAll(items []*Value) []*Value {
	if items == nil {
		return nil
	}
	out := make([]*Value, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}
