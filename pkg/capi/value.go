package capi

import (
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/snehjoshi/amqpbridge/pkg/value"
)

// onValue runs fn on the value behind h.
func onValue(h Handle, fn func(v *value.Value) error) (st Status) {
	defer recovered(nil, "", &st)
	v, ok := lookup[*value.Value](h)
	if !ok {
		return StatusError
	}
	return status(fn(v))
}

// derive runs fn on the value behind h and returns a handle to its result.
func derive(h Handle, fn func(v *value.Value) (*value.Value, error)) (out Handle) {
	defer func() {
		if recover() != nil {
			out = Null
		}
	}()
	v, ok := lookup[*value.Value](h)
	if !ok {
		return Null
	}
	r, err := fn(v)
	if err != nil || r == nil {
		return Null
	}
	return newHandle(r)
}

// with2 runs fn on the values behind a and b.
func with2(a, b Handle, fn func(x, y *value.Value) error) Status {
	y, ok := lookup[*value.Value](b)
	if !ok {
		return StatusError
	}
	return onValue(a, func(x *value.Value) error { return fn(x, y) })
}

func get[T any](h Handle, as func(*value.Value) (T, bool)) (T, Status) {
	var out T
	st := onValue(h, func(v *value.Value) error {
		x, ok := as(v)
		if !ok {
			return value.ErrTypeMismatch
		}
		out = x
		return nil
	})
	return out, st
}

func ofKind(v *value.Value, k value.Kind) error {
	if v.Kind() != k {
		return fmt.Errorf("%w: want %s, got %s", value.ErrTypeMismatch, k, v.Kind())
	}
	return nil
}

// ─── generic ──────────────────────────────────────────────────────────────────

// ValueGetType returns the kind of the value behind h.
func ValueGetType(h Handle) (value.Kind, Status) {
	return get(h, func(v *value.Value) (value.Kind, bool) { return v.Kind(), true })
}

// ValueClone returns a handle to a deep copy.
func ValueClone(h Handle) Handle {
	return derive(h, func(v *value.Value) (*value.Value, error) { return v.Clone(), nil })
}

// ValueAreEqual reports structural equality. Invalid handles are never equal.
func ValueAreEqual(a, b Handle) bool {
	equal := false
	with2(a, b, func(x, y *value.Value) error {
		equal = x.Equal(y)
		return nil
	})
	return equal
}

// ValueToString renders the value for debugging. The result must be freed
// with StringRelease.
func ValueToString(h Handle) Handle {
	v, ok := lookup[*value.Value](h)
	if !ok {
		return Null
	}
	return newString(v.String())
}

// ─── scalars ──────────────────────────────────────────────────────────────────

func ValueCreateNull() Handle              { return newHandle(value.Null()) }
func ValueCreateBoolean(b bool) Handle     { return newHandle(value.Boolean(b)) }
func ValueCreateUbyte(n uint8) Handle      { return newHandle(value.Ubyte(n)) }
func ValueCreateUshort(n uint16) Handle    { return newHandle(value.Ushort(n)) }
func ValueCreateUint(n uint32) Handle      { return newHandle(value.Uint(n)) }
func ValueCreateUlong(n uint64) Handle     { return newHandle(value.Ulong(n)) }
func ValueCreateByte(n int8) Handle        { return newHandle(value.Byte(n)) }
func ValueCreateShort(n int16) Handle      { return newHandle(value.Short(n)) }
func ValueCreateInt(n int32) Handle        { return newHandle(value.Int(n)) }
func ValueCreateLong(n int64) Handle       { return newHandle(value.Long(n)) }
func ValueCreateFloat(f float32) Handle    { return newHandle(value.Float(f)) }
func ValueCreateDouble(f float64) Handle   { return newHandle(value.Double(f)) }
func ValueCreateString(s string) Handle    { return newHandle(value.String(s)) }
func ValueCreateSymbol(s string) Handle    { return newHandle(value.Symbol(s)) }
func ValueCreateBinary(b []byte) Handle    { return newHandle(value.Binary(b)) }
func ValueCreateUUID(id [16]byte) Handle   { return newHandle(value.UUID(uuid.UUID(id))) }
func ValueCreateTimestamp(ms int64) Handle { return newHandle(value.TimestampMillis(ms)) }

// ValueCreateChar returns Null when c is not a Unicode scalar value.
func ValueCreateChar(c uint32) Handle {
	if c > utf8.MaxRune || !utf8.ValidRune(rune(c)) {
		return Null
	}
	return newHandle(value.Char(rune(c)))
}

// The getters return StatusError when the value holds another kind. That is
// an expected outcome, not a fault.

func ValueGetBoolean(h Handle) (bool, Status)  { return get(h, (*value.Value).AsBoolean) }
func ValueGetUbyte(h Handle) (uint8, Status)   { return get(h, (*value.Value).AsUbyte) }
func ValueGetUshort(h Handle) (uint16, Status) { return get(h, (*value.Value).AsUshort) }
func ValueGetUint(h Handle) (uint32, Status)   { return get(h, (*value.Value).AsUint) }
func ValueGetUlong(h Handle) (uint64, Status)  { return get(h, (*value.Value).AsUlong) }
func ValueGetByte(h Handle) (int8, Status)     { return get(h, (*value.Value).AsByte) }
func ValueGetShort(h Handle) (int16, Status)   { return get(h, (*value.Value).AsShort) }
func ValueGetInt(h Handle) (int32, Status)     { return get(h, (*value.Value).AsInt) }
func ValueGetLong(h Handle) (int64, Status)    { return get(h, (*value.Value).AsLong) }
func ValueGetFloat(h Handle) (float32, Status) { return get(h, (*value.Value).AsFloat) }
func ValueGetDouble(h Handle) (float64, Status) {
	return get(h, (*value.Value).AsDouble)
}
func ValueGetString(h Handle) (string, Status) { return get(h, (*value.Value).AsString) }
func ValueGetSymbol(h Handle) (string, Status) { return get(h, (*value.Value).AsSymbol) }
func ValueGetBinary(h Handle) ([]byte, Status) { return get(h, (*value.Value).AsBinary) }

// ValueGetTimestamp returns milliseconds since the Unix epoch.
func ValueGetTimestamp(h Handle) (int64, Status) {
	return get(h, (*value.Value).AsTimestampMillis)
}

func ValueGetChar(h Handle) (uint32, Status) {
	return get(h, func(v *value.Value) (uint32, bool) {
		r, ok := v.AsChar()
		return uint32(r), ok
	})
}

func ValueGetUUID(h Handle) ([16]byte, Status) {
	return get(h, func(v *value.Value) ([16]byte, bool) {
		id, ok := v.AsUUID()
		return [16]byte(id), ok
	})
}

// ─── list ─────────────────────────────────────────────────────────────────────

func ValueCreateList() Handle { return newHandle(value.NewList()) }

// ValueAddListItem appends a copy of item.
func ValueAddListItem(list, item Handle) Status {
	return with2(list, item, func(l, it *value.Value) error {
		if err := ofKind(l, value.KindList); err != nil {
			return err
		}
		return l.Append(it)
	})
}

// ValueSetListItem replaces an existing item with a copy of item.
func ValueSetListItem(list Handle, index uint32, item Handle) Status {
	return with2(list, item, func(l, it *value.Value) error { return l.SetItem(int(index), it) })
}

// ValueGetListItem returns a copy of the item at index, or Null.
func ValueGetListItem(list Handle, index uint32) Handle {
	return derive(list, func(l *value.Value) (*value.Value, error) {
		if err := ofKind(l, value.KindList); err != nil {
			return nil, err
		}
		return l.Item(int(index))
	})
}

func ValueGetListItemCount(list Handle) (uint32, Status) {
	return count(list, value.KindList)
}

// ValueSetListItemCount resizes the list. Growth fills with null items.
func ValueSetListItemCount(list Handle, n uint32) Status {
	return onValue(list, func(l *value.Value) error { return l.SetCount(int(n)) })
}

func count(h Handle, k value.Kind) (uint32, Status) {
	var n int
	st := onValue(h, func(v *value.Value) error {
		if err := ofKind(v, k); err != nil {
			return err
		}
		var err error
		n, err = v.Count()
		return err
	})
	return uint32(n), st
}

// ─── array ────────────────────────────────────────────────────────────────────

func ValueCreateArray() Handle {
	a, _ := value.NewArray()
	return newHandle(a)
}

// ValueAddArrayItem appends a copy of item. Every item must have the kind of
// the first.
func ValueAddArrayItem(array, item Handle) Status {
	return with2(array, item, func(a, it *value.Value) error {
		if err := ofKind(a, value.KindArray); err != nil {
			return err
		}
		return a.Append(it)
	})
}

func ValueGetArrayItem(array Handle, index uint32) Handle {
	return derive(array, func(a *value.Value) (*value.Value, error) {
		if err := ofKind(a, value.KindArray); err != nil {
			return nil, err
		}
		return a.Item(int(index))
	})
}

func ValueGetArrayItemCount(array Handle) (uint32, Status) {
	return count(array, value.KindArray)
}

// ─── map ──────────────────────────────────────────────────────────────────────

func ValueCreateMap() Handle { return newHandle(value.NewMap()) }

// ValueSetMapValue stores copies of key and val. An equal key is replaced in
// place; a new key goes to the end.
func ValueSetMapValue(m, key, val Handle) Status {
	k, ok := lookup[*value.Value](key)
	if !ok {
		return StatusError
	}
	return with2(m, val, func(mv, v *value.Value) error { return mv.Insert(k, v) })
}

// ValueGetMapValue returns a copy of the value stored under key, or Null.
func ValueGetMapValue(m, key Handle) Handle {
	k, ok := lookup[*value.Value](key)
	if !ok {
		return Null
	}
	return derive(m, func(mv *value.Value) (*value.Value, error) { return mv.Lookup(k) })
}

func ValueGetMapPairCount(m Handle) (uint32, Status) {
	return count(m, value.KindMap)
}

// ValueGetMapKeyValuePair returns copies of the pair at index in insertion
// order.
func ValueGetMapKeyValuePair(m Handle, index uint32) (key, val Handle, st Status) {
	var k, v *value.Value
	st = onValue(m, func(mv *value.Value) error {
		var err error
		k, v, err = mv.Pair(int(index))
		return err
	})
	if st != StatusOK {
		return Null, Null, st
	}
	return newHandle(k), newHandle(v), StatusOK
}

// ─── described / composite ────────────────────────────────────────────────────

// ValueCreateDescribed wraps a copy of val. The descriptor must be a ulong or
// a symbol; anything else yields Null.
func ValueCreateDescribed(descriptor, val Handle) Handle {
	v, ok := lookup[*value.Value](val)
	if !ok {
		return Null
	}
	return derive(descriptor, func(d *value.Value) (*value.Value, error) { return value.NewDescribed(d, v) })
}

// ValueGetDescriptor returns a copy of the descriptor of a described or
// composite value.
func ValueGetDescriptor(h Handle) Handle {
	return derive(h, (*value.Value).Descriptor)
}

// ValueGetDescribedValue returns a copy of the payload of a described value.
func ValueGetDescribedValue(h Handle) Handle {
	return derive(h, (*value.Value).DescribedValue)
}

// ValueCreateComposite returns a composite with room for capacity fields and
// none set. The descriptor may be a ulong, a symbol, or a string.
func ValueCreateComposite(descriptor Handle, capacity uint32) Handle {
	return derive(descriptor, func(d *value.Value) (*value.Value, error) {
		return value.NewComposite(d, int(capacity))
	})
}

// ValueSetCompositeItem assigns field index. The field list grows to index+1
// and skipped fields read back as null.
func ValueSetCompositeItem(h Handle, index uint32, item Handle) Status {
	return with2(h, item, func(c, it *value.Value) error { return c.SetField(int(index), it) })
}

func ValueGetCompositeItem(h Handle, index uint32) Handle {
	return derive(h, func(c *value.Value) (*value.Value, error) { return c.Field(int(index)) })
}

func ValueGetCompositeItemCount(h Handle) (uint32, Status) {
	return count(h, value.KindComposite)
}

// ─── encoding ─────────────────────────────────────────────────────────────────

// ValueGetEncodedSize returns the number of bytes ValueEncode writes.
func ValueGetEncodedSize(h Handle) (int, Status) {
	var n int
	st := onValue(h, func(v *value.Value) error {
		var err error
		n, err = value.EncodedSize(v)
		return err
	})
	return n, st
}

// ValueEncode writes the AMQP encoding into buf, which must be at least
// ValueGetEncodedSize bytes.
func ValueEncode(h Handle, buf []byte) Status {
	return onValue(h, func(v *value.Value) error {
		_, err := value.Encode(v, buf)
		return err
	})
}

// ValueDecode decodes exactly one value from buf. Malformed bytes yield Null
// and StatusError.
func ValueDecode(buf []byte) (h Handle, st Status) {
	defer recovered(nil, "", &st)
	v, err := value.Unmarshal(buf)
	if err != nil {
		return Null, StatusError
	}
	return newHandle(v), StatusOK
}
