package value

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrMalformed is returned when a byte sequence is not a valid AMQP encoding.
var ErrMalformed = errors.New("value: malformed encoding")

const (
	maxDepth = 100
	// maxZeroWidth bounds arrays whose elements occupy no bytes, such as an
	// array of null.
	maxZeroWidth = 1 << 16
)

// Unmarshal decodes exactly one value from buf. Trailing bytes are an error.
func Unmarshal(buf []byte) (*Value, error) {
	v, n, err := Decode(buf)
	if err != nil {
		return nil, err
	}
	if n != len(buf) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(buf)-n)
	}
	return v, nil
}

// Decode decodes the first value in buf and reports how many bytes it used.
// A composite is produced for every described value whose payload is a list.
func Decode(buf []byte) (*Value, int, error) {
	d := decoder{buf: buf}
	v, err := d.value(0)
	if err != nil {
		return nil, 0, err
	}
	return v, d.off, nil
}

type decoder struct {
	buf []byte
	off int
}

func (d *decoder) need(n int) ([]byte, error) {
	if n < 0 || len(d.buf)-d.off < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrMalformed, n, d.off, len(d.buf)-d.off)
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *decoder) u8() (byte, error) {
	b, err := d.need(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) u16() (uint16, error) {
	b, err := d.need(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (d *decoder) u32() (uint32, error) {
	b, err := d.need(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (d *decoder) u64() (uint64, error) {
	b, err := d.need(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (d *decoder) value(depth int) (*Value, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: nesting deeper than %d", ErrMalformed, maxDepth)
	}
	code, err := d.u8()
	if err != nil {
		return nil, err
	}
	if code == codeDescribed {
		return d.described(depth)
	}
	return d.body(code, depth)
}

func (d *decoder) described(depth int) (*Value, error) {
	desc, err := d.value(depth + 1)
	if err != nil {
		return nil, err
	}
	if desc.kind != KindUlong && desc.kind != KindSymbol {
		return nil, fmt.Errorf("%w: descriptor of kind %s", ErrMalformed, desc.kind)
	}
	inner, err := d.value(depth + 1)
	if err != nil {
		return nil, err
	}
	if inner.kind == KindList {
		return &Value{kind: KindComposite, desc: desc, items: inner.items}, nil
	}
	return &Value{kind: KindDescribed, desc: desc, inner: inner}, nil
}

// body decodes the payload that follows constructor code.
func (d *decoder) body(code byte, depth int) (*Value, error) {
	switch code {
	case codeNull:
		return Null(), nil
	case codeTrue:
		return Boolean(true), nil
	case codeFalse:
		return Boolean(false), nil
	case codeBool:
		b, err := d.u8()
		if err != nil {
			return nil, err
		}
		if b > 1 {
			return nil, fmt.Errorf("%w: boolean byte 0x%02x", ErrMalformed, b)
		}
		return Boolean(b == 1), nil
	case codeUint0:
		return Uint(0), nil
	case codeUlong0:
		return Ulong(0), nil
	case codeList0:
		return NewList(), nil
	case codeUbyte, codeByte, codeSmallUint, codeSmallUlong, codeSmallInt, codeSmallLong:
		b, err := d.u8()
		if err != nil {
			return nil, err
		}
		switch code {
		case codeUbyte:
			return Ubyte(b), nil
		case codeByte:
			return Byte(int8(b)), nil
		case codeSmallUint:
			return Uint(uint32(b)), nil
		case codeSmallUlong:
			return Ulong(uint64(b)), nil
		case codeSmallInt:
			return Int(int32(int8(b))), nil
		}
		return Long(int64(int8(b))), nil
	case codeUshort, codeShort:
		n, err := d.u16()
		if err != nil {
			return nil, err
		}
		if code == codeUshort {
			return Ushort(n), nil
		}
		return Short(int16(n)), nil
	case codeUint, codeInt, codeFloat, codeChar:
		n, err := d.u32()
		if err != nil {
			return nil, err
		}
		switch code {
		case codeUint:
			return Uint(n), nil
		case codeInt:
			return Int(int32(n)), nil
		case codeFloat:
			return &Value{kind: KindFloat, bits: uint64(n)}, nil
		}
		return Char(rune(n)), nil
	case codeUlong, codeLong, codeDouble, codeTimestamp:
		n, err := d.u64()
		if err != nil {
			return nil, err
		}
		switch code {
		case codeUlong:
			return Ulong(n), nil
		case codeLong:
			return Long(int64(n)), nil
		case codeDouble:
			return &Value{kind: KindDouble, bits: n}, nil
		}
		return TimestampMillis(int64(n)), nil
	case codeUUID:
		b, err := d.need(16)
		if err != nil {
			return nil, err
		}
		var id uuid.UUID
		copy(id[:], b)
		return UUID(id), nil
	case codeVbin8, codeStr8, codeSym8, codeVbin32, codeStr32, codeSym32:
		return d.variable(code)
	case codeList8, codeList32, codeMap8, codeMap32:
		return d.compound(code, depth)
	case codeArray8, codeArray32:
		return d.array(code, depth)
	case codeDecimal32, codeDecimal64, codeDecimal128:
		return nil, fmt.Errorf("%w: decimal format 0x%02x", ErrUnsupported, code)
	}
	return nil, fmt.Errorf("%w: unknown format code 0x%02x", ErrMalformed, code)
}

func (d *decoder) variable(code byte) (*Value, error) {
	var n int
	if code&0xf0 == 0xa0 {
		b, err := d.u8()
		if err != nil {
			return nil, err
		}
		n = int(b)
	} else {
		b, err := d.u32()
		if err != nil {
			return nil, err
		}
		n = int(b)
	}
	data, err := d.need(n)
	if err != nil {
		return nil, err
	}
	switch code {
	case codeVbin8, codeVbin32:
		return Binary(data), nil
	case codeStr8, codeStr32:
		return String(string(data)), nil
	}
	return Symbol(string(data)), nil
}

// header reads the size and count of a list, map, or array and checks that
// size fits in the remaining input. It returns the offset where the
// compound ends.
func (d *decoder) header(wide bool) (count, end int, err error) {
	var size uint32
	if wide {
		if size, err = d.u32(); err != nil {
			return 0, 0, err
		}
	} else {
		b, err := d.u8()
		if err != nil {
			return 0, 0, err
		}
		size = uint32(b)
	}
	if uint64(size) > uint64(len(d.buf)-d.off) {
		return 0, 0, fmt.Errorf("%w: size %d exceeds remaining %d bytes", ErrMalformed, size, len(d.buf)-d.off)
	}
	end = d.off + int(size)
	var c uint32
	if wide {
		if c, err = d.u32(); err != nil {
			return 0, 0, err
		}
	} else {
		b, err := d.u8()
		if err != nil {
			return 0, 0, err
		}
		c = uint32(b)
	}
	if d.off > end {
		return 0, 0, fmt.Errorf("%w: size too small for count", ErrMalformed)
	}
	return int(c), end, nil
}

func (d *decoder) compound(code byte, depth int) (*Value, error) {
	count, end, err := d.header(code == codeList32 || code == codeMap32)
	if err != nil {
		return nil, err
	}
	// every element needs at least one byte
	if count > end-d.off {
		return nil, fmt.Errorf("%w: count %d exceeds size", ErrMalformed, count)
	}
	items := make([]*Value, 0, count)
	for i := 0; i < count; i++ {
		it, err := d.value(depth + 1)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if d.off != end {
		return nil, fmt.Errorf("%w: compound size mismatch", ErrMalformed)
	}
	if code == codeList8 || code == codeList32 {
		return &Value{kind: KindList, items: items}, nil
	}
	if count%2 != 0 {
		return nil, fmt.Errorf("%w: map with odd element count %d", ErrMalformed, count)
	}
	m := NewMap()
	for i := 0; i < count; i += 2 {
		m.pairs = append(m.pairs, pair{key: items[i], val: items[i+1]})
	}
	return m, nil
}

func (d *decoder) array(code byte, depth int) (*Value, error) {
	count, end, err := d.header(code == codeArray32)
	if err != nil {
		return nil, err
	}
	ctor, err := d.u8()
	if err != nil {
		return nil, err
	}
	if ctor == codeDescribed {
		return nil, fmt.Errorf("%w: array of described elements", ErrUnsupported)
	}
	if zeroWidth(ctor) {
		if count > maxZeroWidth {
			return nil, fmt.Errorf("%w: null array count %d", ErrMalformed, count)
		}
	} else if count > end-d.off {
		return nil, fmt.Errorf("%w: count %d exceeds size", ErrMalformed, count)
	}
	a := &Value{kind: KindArray, items: make([]*Value, 0, count)}
	for i := 0; i < count; i++ {
		it, err := d.body(ctor, depth+1)
		if err != nil {
			return nil, err
		}
		if len(a.items) > 0 && a.items[0].kind != it.kind {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, ErrHeterogeneousArray)
		}
		a.items = append(a.items, it)
	}
	if d.off != end {
		return nil, fmt.Errorf("%w: array size mismatch", ErrMalformed)
	}
	return a, nil
}

func zeroWidth(ctor byte) bool {
	switch ctor {
	case codeNull, codeTrue, codeFalse, codeUint0, codeUlong0, codeList0:
		return true
	}
	return false
}
