package value

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// AMQP 1.0 format codes (OASIS AMQP 1.0, part 1, section 1.6).
const (
	codeDescribed  = 0x00
	codeNull       = 0x40
	codeTrue       = 0x41
	codeFalse      = 0x42
	codeUint0      = 0x43
	codeUlong0     = 0x44
	codeList0      = 0x45
	codeUbyte      = 0x50
	codeByte       = 0x51
	codeSmallUint  = 0x52
	codeSmallUlong = 0x53
	codeSmallInt   = 0x54
	codeSmallLong  = 0x55
	codeBool       = 0x56
	codeUshort     = 0x60
	codeShort      = 0x61
	codeUint       = 0x70
	codeInt        = 0x71
	codeFloat      = 0x72
	codeChar       = 0x73
	codeDecimal32  = 0x74
	codeUlong      = 0x80
	codeLong       = 0x81
	codeDouble     = 0x82
	codeTimestamp  = 0x83
	codeDecimal64  = 0x84
	codeDecimal128 = 0x94
	codeUUID       = 0x98
	codeVbin8      = 0xa0
	codeStr8       = 0xa1
	codeSym8       = 0xa3
	codeVbin32     = 0xb0
	codeStr32      = 0xb1
	codeSym32      = 0xb3
	codeList8      = 0xc0
	codeMap8       = 0xc1
	codeList32     = 0xd0
	codeMap32      = 0xd1
	codeArray8     = 0xe0
	codeArray32    = 0xf0
)

var (
	// ErrBufferTooSmall is returned by Encode when the destination cannot hold the encoding.
	ErrBufferTooSmall = errors.New("value: buffer too small")
	// ErrUnsupported is returned for encodings this codec does not produce or accept.
	ErrUnsupported = errors.New("value: unsupported encoding")
)

// Marshal returns the AMQP 1.0 encoding of v.
func Marshal(v *Value) ([]byte, error) {
	return appendValue(nil, v)
}

// EncodedSize returns the number of bytes Marshal would produce for v.
func EncodedSize(v *Value) (int, error) {
	b, err := Marshal(v)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

// Encode writes the encoding of v into buf and returns the number of bytes written.
func Encode(v *Value, buf []byte) (int, error) {
	b, err := Marshal(v)
	if err != nil {
		return 0, err
	}
	if len(buf) < len(b) {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrBufferTooSmall, len(b), len(buf))
	}
	return copy(buf, b), nil
}

func appendValue(b []byte, v *Value) ([]byte, error) {
	if v == nil {
		return append(b, codeNull), nil
	}
	switch v.kind {
	case KindNull:
		return append(b, codeNull), nil
	case KindBoolean:
		if v.bits == 1 {
			return append(b, codeTrue), nil
		}
		return append(b, codeFalse), nil
	case KindUbyte:
		return append(b, codeUbyte, byte(v.bits)), nil
	case KindUshort:
		return binary.BigEndian.AppendUint16(append(b, codeUshort), uint16(v.bits)), nil
	case KindUint:
		switch {
		case v.bits == 0:
			return append(b, codeUint0), nil
		case v.bits <= math.MaxUint8:
			return append(b, codeSmallUint, byte(v.bits)), nil
		}
		return binary.BigEndian.AppendUint32(append(b, codeUint), uint32(v.bits)), nil
	case KindUlong:
		switch {
		case v.bits == 0:
			return append(b, codeUlong0), nil
		case v.bits <= math.MaxUint8:
			return append(b, codeSmallUlong, byte(v.bits)), nil
		}
		return binary.BigEndian.AppendUint64(append(b, codeUlong), v.bits), nil
	case KindByte:
		return append(b, codeByte, byte(v.bits)), nil
	case KindShort:
		return binary.BigEndian.AppendUint16(append(b, codeShort), uint16(v.bits)), nil
	case KindInt:
		if n := int32(v.bits); n >= math.MinInt8 && n <= math.MaxInt8 {
			return append(b, codeSmallInt, byte(int8(n))), nil
		}
		return binary.BigEndian.AppendUint32(append(b, codeInt), uint32(v.bits)), nil
	case KindLong:
		if n := int64(v.bits); n >= math.MinInt8 && n <= math.MaxInt8 {
			return append(b, codeSmallLong, byte(int8(n))), nil
		}
		return binary.BigEndian.AppendUint64(append(b, codeLong), v.bits), nil
	case KindFloat:
		return binary.BigEndian.AppendUint32(append(b, codeFloat), uint32(v.bits)), nil
	case KindDouble:
		return binary.BigEndian.AppendUint64(append(b, codeDouble), v.bits), nil
	case KindChar:
		return binary.BigEndian.AppendUint32(append(b, codeChar), uint32(v.bits)), nil
	case KindTimestamp:
		return binary.BigEndian.AppendUint64(append(b, codeTimestamp), v.bits), nil
	case KindUUID:
		return append(append(b, codeUUID), v.id[:]...), nil
	case KindBinary:
		return appendVariable(b, codeVbin8, codeVbin32, v.bytes), nil
	case KindString:
		return appendVariable(b, codeStr8, codeStr32, []byte(v.text)), nil
	case KindSymbol:
		return appendVariable(b, codeSym8, codeSym32, []byte(v.text)), nil
	case KindList:
		return appendList(b, v.items)
	case KindComposite, KindDescribed:
		b, err := appendValue(append(b, codeDescribed), v.desc)
		if err != nil {
			return nil, err
		}
		if v.kind == KindComposite {
			return appendList(b, v.items)
		}
		return appendValue(b, v.inner)
	case KindMap:
		return appendMap(b, v.pairs)
	case KindArray:
		return appendArray(b, v.items)
	}
	return nil, fmt.Errorf("%w: kind %s", ErrUnsupported, v.kind)
}

func appendVariable(b []byte, code8, code32 byte, data []byte) []byte {
	if len(data) <= math.MaxUint8 {
		b = append(b, code8, byte(len(data)))
	} else {
		b = binary.BigEndian.AppendUint32(append(b, code32), uint32(len(data)))
	}
	return append(b, data...)
}

// appendCompound writes a list or map header followed by body. count is the
// number of encoded elements (for maps, keys plus values).
func appendCompound(b []byte, code8, code32 byte, count int, body []byte) []byte {
	if count <= math.MaxUint8 && len(body)+1 <= math.MaxUint8 {
		b = append(b, code8, byte(len(body)+1), byte(count))
		return append(b, body...)
	}
	b = append(b, code32)
	b = binary.BigEndian.AppendUint32(b, uint32(len(body)+4))
	b = binary.BigEndian.AppendUint32(b, uint32(count))
	return append(b, body...)
}

func appendList(b []byte, items []*Value) ([]byte, error) {
	if len(items) == 0 {
		return append(b, codeList0), nil
	}
	var body []byte
	for _, it := range items {
		var err error
		if body, err = appendValue(body, it); err != nil {
			return nil, err
		}
	}
	return appendCompound(b, codeList8, codeList32, len(items), body), nil
}

func appendMap(b []byte, pairs []pair) ([]byte, error) {
	var body []byte
	for _, p := range pairs {
		var err error
		if body, err = appendValue(body, p.key); err != nil {
			return nil, err
		}
		if body, err = appendValue(body, p.val); err != nil {
			return nil, err
		}
	}
	return appendCompound(b, codeMap8, codeMap32, 2*len(pairs), body), nil
}

// arrayConstructor returns the fixed-width format code used for every
// element of an array of kind k.
func arrayConstructor(k Kind) (byte, error) {
	switch k {
	case KindNull:
		return codeNull, nil
	case KindBoolean:
		return codeBool, nil
	case KindUbyte:
		return codeUbyte, nil
	case KindUshort:
		return codeUshort, nil
	case KindUint:
		return codeUint, nil
	case KindUlong:
		return codeUlong, nil
	case KindByte:
		return codeByte, nil
	case KindShort:
		return codeShort, nil
	case KindInt:
		return codeInt, nil
	case KindLong:
		return codeLong, nil
	case KindFloat:
		return codeFloat, nil
	case KindDouble:
		return codeDouble, nil
	case KindChar:
		return codeChar, nil
	case KindTimestamp:
		return codeTimestamp, nil
	case KindUUID:
		return codeUUID, nil
	case KindBinary:
		return codeVbin32, nil
	case KindString:
		return codeStr32, nil
	case KindSymbol:
		return codeSym32, nil
	case KindList:
		return codeList32, nil
	case KindMap:
		return codeMap32, nil
	case KindArray:
		return codeArray32, nil
	}
	return 0, fmt.Errorf("%w: array of %s", ErrUnsupported, k)
}

func appendArray(b []byte, items []*Value) ([]byte, error) {
	elem := KindNull
	if len(items) > 0 {
		elem = items[0].kind
	}
	ctor, err := arrayConstructor(elem)
	if err != nil {
		return nil, err
	}
	body := []byte{ctor}
	for _, it := range items {
		if body, err = appendArrayElement(body, ctor, it); err != nil {
			return nil, err
		}
	}
	// body carries the constructor, which the size field counts but the
	// element count does not.
	if len(items) <= math.MaxUint8 && len(body)+1 <= math.MaxUint8 {
		b = append(b, codeArray8, byte(len(body)+1), byte(len(items)))
		return append(b, body...), nil
	}
	b = append(b, codeArray32)
	b = binary.BigEndian.AppendUint32(b, uint32(len(body)+4))
	b = binary.BigEndian.AppendUint32(b, uint32(len(items)))
	return append(b, body...), nil
}

// appendArrayElement writes one element without its constructor.
func appendArrayElement(b []byte, ctor byte, v *Value) ([]byte, error) {
	switch ctor {
	case codeNull:
		return b, nil
	case codeBool:
		return append(b, byte(v.bits)), nil
	case codeUbyte, codeByte:
		return append(b, byte(v.bits)), nil
	case codeUshort, codeShort:
		return binary.BigEndian.AppendUint16(b, uint16(v.bits)), nil
	case codeUint, codeInt, codeFloat, codeChar:
		return binary.BigEndian.AppendUint32(b, uint32(v.bits)), nil
	case codeUlong, codeLong, codeDouble, codeTimestamp:
		return binary.BigEndian.AppendUint64(b, v.bits), nil
	case codeUUID:
		return append(b, v.id[:]...), nil
	case codeVbin32:
		return append(binary.BigEndian.AppendUint32(b, uint32(len(v.bytes))), v.bytes...), nil
	case codeStr32, codeSym32:
		return append(binary.BigEndian.AppendUint32(b, uint32(len(v.text))), v.text...), nil
	}
	// Compound elements: encode with the 32-bit form and strip the constructor.
	var enc []byte
	var err error
	switch ctor {
	case codeList32:
		enc, err = appendList32(nil, v.items)
	case codeMap32:
		enc, err = appendMap32(nil, v.pairs)
	case codeArray32:
		enc, err = appendArray32(nil, v.items)
	default:
		return nil, fmt.Errorf("%w: array constructor 0x%02x", ErrUnsupported, ctor)
	}
	if err != nil {
		return nil, err
	}
	return append(b, enc[1:]...), nil
}

func appendList32(b []byte, items []*Value) ([]byte, error) {
	var body []byte
	for _, it := range items {
		var err error
		if body, err = appendValue(body, it); err != nil {
			return nil, err
		}
	}
	b = append(b, codeList32)
	b = binary.BigEndian.AppendUint32(b, uint32(len(body)+4))
	b = binary.BigEndian.AppendUint32(b, uint32(len(items)))
	return append(b, body...), nil
}

func appendMap32(b []byte, pairs []pair) ([]byte, error) {
	var body []byte
	for _, p := range pairs {
		var err error
		if body, err = appendValue(body, p.key); err != nil {
			return nil, err
		}
		if body, err = appendValue(body, p.val); err != nil {
			return nil, err
		}
	}
	b = append(b, codeMap32)
	b = binary.BigEndian.AppendUint32(b, uint32(len(body)+4))
	b = binary.BigEndian.AppendUint32(b, uint32(2*len(pairs)))
	return append(b, body...), nil
}

func appendArray32(b []byte, items []*Value) ([]byte, error) {
	enc, err := appendArray(nil, items)
	if err != nil {
		return nil, err
	}
	if enc[0] == codeArray32 {
		return append(b, enc...), nil
	}
	// Re-frame the array8 encoding as array32.
	count := int(enc[2])
	body := enc[3:]
	b = append(b, codeArray32)
	b = binary.BigEndian.AppendUint32(b, uint32(len(body)+4))
	b = binary.BigEndian.AppendUint32(b, uint32(count))
	return append(b, body...), nil
}
