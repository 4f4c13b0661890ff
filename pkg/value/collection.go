package value

import "fmt"

// Count returns the number of items of a list or array, the number of pairs
// of a map, or the number of fields of a composite.
func (v *Value) Count() (int, error) {
	switch v.kind {
	case KindList, KindArray, KindComposite:
		return len(v.items), nil
	case KindMap:
		return len(v.pairs), nil
	}
	return 0, fmt.Errorf("%w: count of %s", ErrTypeMismatch, v.kind)
}

// Append adds a copy of item to the end of a list or array. Array items must
// have the same kind as the items already present.
func (v *Value) Append(item *Value) error {
	if item == nil {
		item = Null()
	}
	switch v.kind {
	case KindList:
	case KindArray:
		if len(v.items) > 0 && v.items[0].kind != item.kind {
			return fmt.Errorf("%w: have %s, got %s", ErrHeterogeneousArray, v.items[0].kind, item.kind)
		}
	default:
		return fmt.Errorf("%w: append to %s", ErrTypeMismatch, v.kind)
	}
	v.items = append(v.items, item.Clone())
	return nil
}

// Item returns a copy of the item at index i of a list, array, or composite.
func (v *Value) Item(i int) (*Value, error) {
	switch v.kind {
	case KindList, KindArray, KindComposite:
	default:
		return nil, fmt.Errorf("%w: item of %s", ErrTypeMismatch, v.kind)
	}
	if i < 0 || i >= len(v.items) {
		return nil, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(v.items))
	}
	return v.items[i].Clone(), nil
}

// SetItem replaces the list item at index i with a copy of item. The index
// must already exist; use SetCount to grow the list first.
func (v *Value) SetItem(i int, item *Value) error {
	if v.kind != KindList {
		return fmt.Errorf("%w: set item of %s", ErrTypeMismatch, v.kind)
	}
	if i < 0 || i >= len(v.items) {
		return fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(v.items))
	}
	if item == nil {
		item = Null()
	}
	v.items[i] = item.Clone()
	return nil
}

// SetCount resizes a list to n items. Growth fills with null; shrinking drops
// trailing items.
func (v *Value) SetCount(n int) error {
	if v.kind != KindList {
		return fmt.Errorf("%w: set count of %s", ErrTypeMismatch, v.kind)
	}
	if n < 0 {
		return fmt.Errorf("%w: negative count %d", ErrIndexOutOfRange, n)
	}
	v.items = resize(v.items, n)
	return nil
}

func resize(items []*Value, n int) []*Value {
	if n <= len(items) {
		return items[:n]
	}
	for len(items) < n {
		items = append(items, Null())
	}
	return items
}

// ─── map ──────────────────────────────────────────────────────────────────────

// Insert stores copies of key and val. An existing equal key keeps its
// position and has its value replaced.
func (v *Value) Insert(key, val *Value) error {
	if v.kind != KindMap {
		return fmt.Errorf("%w: insert into %s", ErrTypeMismatch, v.kind)
	}
	if key == nil {
		key = Null()
	}
	if val == nil {
		val = Null()
	}
	for i := range v.pairs {
		if v.pairs[i].key.Equal(key) {
			v.pairs[i].val = val.Clone()
			return nil
		}
	}
	v.pairs = append(v.pairs, pair{key: key.Clone(), val: val.Clone()})
	return nil
}

// Lookup returns a copy of the value stored under key.
func (v *Value) Lookup(key *Value) (*Value, error) {
	if v.kind != KindMap {
		return nil, fmt.Errorf("%w: lookup in %s", ErrTypeMismatch, v.kind)
	}
	for _, p := range v.pairs {
		if p.key.Equal(key) {
			return p.val.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
}

// Pair returns copies of the i-th key and value in insertion order.
func (v *Value) Pair(i int) (key, val *Value, err error) {
	if v.kind != KindMap {
		return nil, nil, fmt.Errorf("%w: pair of %s", ErrTypeMismatch, v.kind)
	}
	if i < 0 || i >= len(v.pairs) {
		return nil, nil, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(v.pairs))
	}
	return v.pairs[i].key.Clone(), v.pairs[i].val.Clone(), nil
}

// Range calls fn for every pair in insertion order without copying. fn must
// not retain or mutate the nodes it is given. Iteration stops at the first
// non-nil error, which Range returns.
func (v *Value) Range(fn func(key, val *Value) error) error {
	if v.kind != KindMap {
		return fmt.Errorf("%w: range over %s", ErrTypeMismatch, v.kind)
	}
	for _, p := range v.pairs {
		if err := fn(p.key, p.val); err != nil {
			return err
		}
	}
	return nil
}

// ─── described / composite ────────────────────────────────────────────────────

// Descriptor returns a copy of the descriptor of a described or composite
// node: a ulong for numeric descriptors, a symbol for named ones.
func (v *Value) Descriptor() (*Value, error) {
	if v.kind != KindDescribed && v.kind != KindComposite {
		return nil, fmt.Errorf("%w: descriptor of %s", ErrTypeMismatch, v.kind)
	}
	return v.desc.Clone(), nil
}

// DescriptorCode returns the numeric descriptor of a described or composite
// node. ok is false for any other node and for named descriptors.
func (v *Value) DescriptorCode() (code uint64, ok bool) {
	if v.kind != KindDescribed && v.kind != KindComposite {
		return 0, false
	}
	return v.desc.AsUlong()
}

// DescribedValue returns a copy of the payload of a described node.
func (v *Value) DescribedValue() (*Value, error) {
	if v.kind != KindDescribed {
		return nil, fmt.Errorf("%w: described value of %s", ErrTypeMismatch, v.kind)
	}
	return v.inner.Clone(), nil
}

// SetField assigns a copy of item to composite field i. The field list grows
// to i+1 entries when needed and every gap is filled with null, so fields may
// be assigned in any order.
func (v *Value) SetField(i int, item *Value) error {
	if v.kind != KindComposite {
		return fmt.Errorf("%w: set field of %s", ErrTypeMismatch, v.kind)
	}
	if i < 0 {
		return fmt.Errorf("%w: negative field %d", ErrIndexOutOfRange, i)
	}
	if item == nil {
		item = Null()
	}
	if i >= len(v.items) {
		v.items = resize(v.items, i+1)
	}
	v.items[i] = item.Clone()
	return nil
}

// Field returns a copy of composite field i.
func (v *Value) Field(i int) (*Value, error) {
	if v.kind != KindComposite {
		return nil, fmt.Errorf("%w: field of %s", ErrTypeMismatch, v.kind)
	}
	return v.Item(i)
}

// Fields returns copies of the positional fields of a composite, or of the
// items of the list payload of a described node.
func (v *Value) Fields() ([]*Value, error) {
	switch {
	case v.kind == KindComposite:
		return cloneAll(v.items), nil
	case v.kind == KindDescribed && v.inner.kind == KindList:
		return cloneAll(v.inner.items), nil
	}
	return nil, fmt.Errorf("%w: fields of %s", ErrTypeMismatch, v.kind)
}
