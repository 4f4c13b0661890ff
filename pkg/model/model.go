// Package model holds the AMQP 1.0 records that ride on top of the value
// tree: the message header and properties, link source and target, and the
// message itself with all of its sections.
//
// Every record is a view over a positional field list. Converting a value
// tree into a record checks the descriptor, the payload shape, and the kind
// of every present field, and reports a mismatch as an error. Converting
// back always produces a composite carrying the record's numeric descriptor.
//
// Builders mutate in place. Each setter returns an error, and Build consumes
// the builder: any later call returns ErrBuilderConsumed.
package model

import (
	"errors"
	"fmt"

	"github.com/snehjoshi/amqpbridge/pkg/value"
)

var (
	// ErrDescriptorMismatch is returned when a described node carries a descriptor other than the record's.
	ErrDescriptorMismatch = errors.New("model: descriptor mismatch")
	// ErrShape is returned when a node or one of its fields has the wrong kind.
	ErrShape = errors.New("model: unexpected value shape")
	// ErrBuilderConsumed is returned by every builder call after Build.
	ErrBuilderConsumed = errors.New("model: builder already built")
	// ErrInvalidArgument is returned by setters given a value outside the field's domain.
	ErrInvalidArgument = errors.New("model: invalid argument")
)

// Descriptor codes of the records and sections in this package.
const (
	DescriptorAccepted              uint64 = 0x24
	DescriptorRejected              uint64 = 0x25
	DescriptorReleased              uint64 = 0x26
	DescriptorModified              uint64 = 0x27
	DescriptorSource                uint64 = 0x28
	DescriptorTarget                uint64 = 0x29
	DescriptorHeader                uint64 = 0x70
	DescriptorDeliveryAnnotations   uint64 = 0x71
	DescriptorMessageAnnotations    uint64 = 0x72
	DescriptorProperties            uint64 = 0x73
	DescriptorApplicationProperties uint64 = 0x74
	DescriptorData                  uint64 = 0x75
	DescriptorSequence              uint64 = 0x76
	DescriptorValue                 uint64 = 0x77
	DescriptorFooter                uint64 = 0x78
)

// descriptorNames maps numeric descriptors to their symbolic form, which
// peers may send instead.
var descriptorNames = map[uint64]string{
	DescriptorAccepted:              "amqp:accepted:list",
	DescriptorRejected:              "amqp:rejected:list",
	DescriptorReleased:              "amqp:released:list",
	DescriptorModified:              "amqp:modified:list",
	DescriptorSource:                "amqp:source:list",
	DescriptorTarget:                "amqp:target:list",
	DescriptorHeader:                "amqp:header:list",
	DescriptorDeliveryAnnotations:   "amqp:delivery-annotations:map",
	DescriptorMessageAnnotations:    "amqp:message-annotations:map",
	DescriptorProperties:            "amqp:properties:list",
	DescriptorApplicationProperties: "amqp:application-properties:map",
	DescriptorData:                  "amqp:data:binary",
	DescriptorSequence:              "amqp:amqp-sequence:list",
	DescriptorValue:                 "amqp:amqp-value:*",
	DescriptorFooter:                "amqp:footer:map",
}

// descriptorOf returns the numeric descriptor of a described or composite
// node, resolving known symbolic descriptors.
func descriptorOf(v *value.Value) (uint64, error) {
	if v == nil {
		return 0, fmt.Errorf("%w: nil node", ErrShape)
	}
	if code, ok := v.DescriptorCode(); ok {
		return code, nil
	}
	d, err := v.Descriptor()
	if err != nil {
		return 0, fmt.Errorf("%w: %s is not described", ErrShape, v.Kind())
	}
	name, _ := d.AsSymbol()
	for code, n := range descriptorNames {
		if n == name {
			return code, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown descriptor %s", ErrDescriptorMismatch, d)
}

// ─── positional fields ────────────────────────────────────────────────────────

type fields []*value.Value

// get returns field i, or null when it is absent.
func (f fields) get(i int) *value.Value {
	if i >= len(f) || f[i] == nil {
		return value.Null()
	}
	return f[i]
}

func (f fields) present(i int) bool { return !f.get(i).IsNull() }

func (f *fields) set(i int, v *value.Value) {
	for len(*f) <= i {
		*f = append(*f, nil)
	}
	(*f)[i] = v
}

func (f fields) clone() fields {
	out := make(fields, len(f))
	for i, v := range f {
		if v != nil {
			out[i] = v.Clone()
		}
	}
	return out
}

// composite renders the fields under code. Trailing absent fields are
// dropped, the rest become null.
func (f fields) composite(code uint64) *value.Value {
	n := len(f)
	for n > 0 && f.get(n-1).IsNull() {
		n--
	}
	c, _ := value.NewComposite(value.Ulong(code), n)
	for i := 0; i < n; i++ {
		_ = c.SetField(i, f.get(i))
	}
	return c
}

// fieldCheck validates one present field and may normalise it.
type fieldCheck func(*value.Value) (*value.Value, error)

// decodeFields checks that v is a list-shaped record carrying code and that
// every present field passes its check. Fields past the end of checks are
// ignored.
func decodeFields(v *value.Value, code uint64, name string, checks []fieldCheck) (fields, error) {
	got, err := descriptorOf(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if got != code {
		return nil, fmt.Errorf("%w: %s wants 0x%02x, got 0x%02x", ErrDescriptorMismatch, name, code, got)
	}
	items, err := v.Fields()
	if err != nil {
		return nil, fmt.Errorf("%w: %s payload is not a list", ErrShape, name)
	}
	if len(items) > len(checks) {
		items = items[:len(checks)]
	}
	out := make(fields, len(items))
	for i, it := range items {
		if it.IsNull() {
			continue
		}
		norm, err := checks[i](it)
		if err != nil {
			return nil, fmt.Errorf("%w: %s field %d: %v", ErrShape, name, i, err)
		}
		out[i] = norm
	}
	return out, nil
}

// ─── field checks ─────────────────────────────────────────────────────────────

func kindOf(kinds ...value.Kind) fieldCheck {
	return func(v *value.Value) (*value.Value, error) {
		for _, k := range kinds {
			if v.Kind() == k {
				return v, nil
			}
		}
		return nil, fmt.Errorf("want %v, got %s", kinds, v.Kind())
	}
}

// symbols accepts a single symbol or an array of symbols and normalises to
// an array.
func symbols(v *value.Value) (*value.Value, error) {
	if s, ok := v.AsSymbol(); ok {
		return value.NewArray(value.Symbol(s))
	}
	if v.Kind() != value.KindArray {
		return nil, fmt.Errorf("want symbol or array of symbol, got %s", v.Kind())
	}
	n, _ := v.Count()
	if n > 0 {
		first, _ := v.Item(0)
		if first.Kind() != value.KindSymbol {
			return nil, fmt.Errorf("want array of symbol, got array of %s", first.Kind())
		}
	}
	return v, nil
}

// symbolMap accepts a map whose keys are all symbols. String keys are
// promoted to symbols when promote is set.
func symbolMap(promote bool) fieldCheck {
	return func(v *value.Value) (*value.Value, error) {
		return normaliseKeys(v, func(k *value.Value) (*value.Value, error) {
			if _, ok := k.AsSymbol(); ok {
				return k, nil
			}
			if s, ok := k.AsString(); ok && promote {
				return value.Symbol(s), nil
			}
			return nil, fmt.Errorf("map key must be a symbol, got %s", k.Kind())
		})
	}
}

// annotationMap accepts a map keyed by symbols or ulongs.
func annotationMap(v *value.Value) (*value.Value, error) {
	return normaliseKeys(v, func(k *value.Value) (*value.Value, error) {
		switch k.Kind() {
		case value.KindSymbol, value.KindUlong:
			return k, nil
		}
		return nil, fmt.Errorf("annotation key must be a symbol or ulong, got %s", k.Kind())
	})
}

// stringMap accepts a map keyed by strings, as application properties are.
func stringMap(v *value.Value) (*value.Value, error) {
	return normaliseKeys(v, func(k *value.Value) (*value.Value, error) {
		if _, ok := k.AsString(); ok {
			return k, nil
		}
		return nil, fmt.Errorf("application property key must be a string, got %s", k.Kind())
	})
}

func normaliseKeys(v *value.Value, key func(*value.Value) (*value.Value, error)) (*value.Value, error) {
	if v == nil || v.Kind() != value.KindMap {
		kind := value.KindNull
		if v != nil {
			kind = v.Kind()
		}
		return nil, fmt.Errorf("want map, got %s", kind)
	}
	out := value.NewMap()
	err := v.Range(func(k, val *value.Value) error {
		nk, err := key(k)
		if err != nil {
			return err
		}
		return out.Insert(nk, val)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SymbolMap copies m with every key checked to be a symbol. String keys are
// promoted to symbols when promote is set; any other key kind is an error.
func SymbolMap(m *value.Value, promote bool) (*value.Value, error) {
	out, err := symbolMap(promote)(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShape, err)
	}
	return out, nil
}

// AnnotationMap copies m with every key checked to be a symbol or a ulong.
func AnnotationMap(m *value.Value) (*value.Value, error) {
	out, err := annotationMap(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShape, err)
	}
	return out, nil
}

// ─── builder state ────────────────────────────────────────────────────────────

type builder struct {
	f     fields
	built bool
}

func (b *builder) set(i int, v *value.Value) error {
	if b.built {
		return ErrBuilderConsumed
	}
	b.f.set(i, v)
	return nil
}

func (b *builder) take() (fields, error) {
	if b.built {
		return nil, ErrBuilderConsumed
	}
	b.built = true
	f := b.f
	b.f = nil
	return f, nil
}

func symbolArray(names []string) *value.Value {
	a, _ := value.NewArray()
	for _, n := range names {
		_ = a.Append(value.Symbol(n))
	}
	return a
}

func symbolList(v *value.Value) []string {
	n, err := v.Count()
	if err != nil {
		return nil
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		it, _ := v.Item(i)
		s, _ := it.AsSymbol()
		out = append(out, s)
	}
	return out
}
