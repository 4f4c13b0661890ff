package value

import (
	"encoding/hex"
	"math"
	"strconv"
	"strings"
	"time"
)

// Clone returns a deep copy of v with an independent lifetime. Cloning nil
// yields null.
func (v *Value) Clone() *Value {
	if v == nil {
		return Null()
	}
	c := &Value{kind: v.kind, bits: v.bits, id: v.id, text: v.text}
	if v.bytes != nil {
		c.bytes = append([]byte{}, v.bytes...)
	}
	c.items = cloneAll(v.items)
	if v.pairs != nil {
		c.pairs = make([]pair, len(v.pairs))
		for i, p := range v.pairs {
			c.pairs[i] = pair{key: p.key.Clone(), val: p.val.Clone()}
		}
	}
	if v.desc != nil {
		c.desc = v.desc.Clone()
	}
	if v.inner != nil {
		c.inner = v.inner.Clone()
	}
	return c
}

// Equal reports whether two trees are structurally equal. A composite equals
// a described node with the same descriptor whose payload is a list of the
// same fields, since both have the same wire form. Floating point nodes
// compare by bit pattern.
func (v *Value) Equal(o *Value) bool {
	if v == nil || o == nil {
		return v.IsNull() && o.IsNull()
	}
	if v.kind != o.kind {
		a, b := v.asComposite(), o.asComposite()
		if a == nil || b == nil {
			return false
		}
		return a.Equal(b)
	}
	switch v.kind {
	case KindNull:
		return true
	case KindUUID:
		return v.id == o.id
	case KindBinary:
		return string(v.bytes) == string(o.bytes)
	case KindString, KindSymbol:
		return v.text == o.text
	case KindList, KindArray:
		return equalItems(v.items, o.items)
	case KindComposite:
		return v.desc.Equal(o.desc) && equalItems(v.items, o.items)
	case KindDescribed:
		return v.desc.Equal(o.desc) && v.inner.Equal(o.inner)
	case KindMap:
		if len(v.pairs) != len(o.pairs) {
			return false
		}
		for i := range v.pairs {
			if !v.pairs[i].key.Equal(o.pairs[i].key) || !v.pairs[i].val.Equal(o.pairs[i].val) {
				return false
			}
		}
		return true
	}
	return v.bits == o.bits
}

// asComposite views v as a composite without copying, or returns nil.
func (v *Value) asComposite() *Value {
	switch {
	case v.kind == KindComposite:
		return v
	case v.kind == KindDescribed && v.inner.kind == KindList:
		return &Value{kind: KindComposite, desc: v.desc, items: v.inner.items}
	}
	return nil
}

func equalItems(a, b []*Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// String renders v for debugging. The format is not stable.
func (v *Value) String() string {
	var b strings.Builder
	v.render(&b)
	return b.String()
}

func (v *Value) render(b *strings.Builder) {
	if v == nil {
		b.WriteString("null")
		return
	}
	switch v.kind {
	case KindNull:
		b.WriteString("null")
	case KindBoolean:
		b.WriteString(strconv.FormatBool(v.bits == 1))
	case KindUbyte, KindUshort, KindUint, KindUlong:
		b.WriteString(strconv.FormatUint(v.bits, 10))
	case KindByte, KindShort, KindInt, KindLong:
		b.WriteString(strconv.FormatInt(int64(v.bits), 10))
	case KindFloat:
		b.WriteString(strconv.FormatFloat(float64(math.Float32frombits(uint32(v.bits))), 'g', -1, 32))
	case KindDouble:
		b.WriteString(strconv.FormatFloat(math.Float64frombits(v.bits), 'g', -1, 64))
	case KindChar:
		b.WriteString(strconv.QuoteRune(rune(uint32(v.bits))))
	case KindTimestamp:
		b.WriteString(time.UnixMilli(int64(v.bits)).UTC().Format(time.RFC3339Nano))
	case KindUUID:
		b.WriteString(v.id.String())
	case KindBinary:
		b.WriteString("0x")
		b.WriteString(hex.EncodeToString(v.bytes))
	case KindString:
		b.WriteString(strconv.Quote(v.text))
	case KindSymbol:
		b.WriteByte(':')
		b.WriteString(v.text)
	case KindList:
		renderItems(b, "[", v.items, "]")
	case KindArray:
		renderItems(b, "array[", v.items, "]")
	case KindMap:
		b.WriteByte('{')
		for i, p := range v.pairs {
			if i > 0 {
				b.WriteString(", ")
			}
			p.key.render(b)
			b.WriteString(": ")
			p.val.render(b)
		}
		b.WriteByte('}')
	case KindDescribed:
		b.WriteString("described(")
		v.renderDescriptor(b)
		b.WriteString(", ")
		v.inner.render(b)
		b.WriteByte(')')
	case KindComposite:
		b.WriteString("composite(")
		v.renderDescriptor(b)
		b.WriteByte(')')
		renderItems(b, "[", v.items, "]")
	}
}

func (v *Value) renderDescriptor(b *strings.Builder) {
	if code, ok := v.desc.AsUlong(); ok {
		b.WriteString("0x")
		b.WriteString(strconv.FormatUint(code, 16))
		return
	}
	v.desc.render(b)
}

func renderItems(b *strings.Builder, open string, items []*Value, end string) {
	b.WriteString(open)
	for i, it := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		it.render(b)
	}
	b.WriteString(end)
}
