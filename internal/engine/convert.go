package engine

import (
	"fmt"
	"time"

	"github.com/Azure/go-amqp"
	"github.com/google/uuid"

	"github.com/snehjoshi/amqpbridge/pkg/model"
	"github.com/snehjoshi/amqpbridge/pkg/value"
)

// ─── value tree → go-amqp ─────────────────────────────────────────────────────

// toAny converts a value tree into the Go types go-amqp marshals. Chars and
// described nodes have no go-amqp representation and are rejected.
func toAny(v *value.Value) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch v.Kind() {
	case value.KindNull:
		return nil, nil
	case value.KindBoolean:
		b, _ := v.AsBoolean()
		return b, nil
	case value.KindUbyte:
		n, _ := v.AsUbyte()
		return n, nil
	case value.KindUshort:
		n, _ := v.AsUshort()
		return n, nil
	case value.KindUint:
		n, _ := v.AsUint()
		return n, nil
	case value.KindUlong:
		n, _ := v.AsUlong()
		return n, nil
	case value.KindByte:
		n, _ := v.AsByte()
		return n, nil
	case value.KindShort:
		n, _ := v.AsShort()
		return n, nil
	case value.KindInt:
		n, _ := v.AsInt()
		return n, nil
	case value.KindLong:
		n, _ := v.AsLong()
		return n, nil
	case value.KindFloat:
		f, _ := v.AsFloat()
		return f, nil
	case value.KindDouble:
		f, _ := v.AsDouble()
		return f, nil
	case value.KindTimestamp:
		ts, _ := v.AsTimestamp()
		return ts, nil
	case value.KindUUID:
		id, _ := v.AsUUID()
		return amqp.UUID(id), nil
	case value.KindBinary:
		b, _ := v.AsBinary()
		return b, nil
	case value.KindString:
		s, _ := v.AsString()
		return s, nil
	case value.KindSymbol:
		s, _ := v.AsSymbol()
		return amqp.Symbol(s), nil
	case value.KindList:
		n, _ := v.Count()
		out := make([]any, n)
		for i := range out {
			item, _ := v.Item(i)
			a, err := toAny(item)
			if err != nil {
				return nil, fmt.Errorf("list item %d: %w", i, err)
			}
			out[i] = a
		}
		return out, nil
	case value.KindMap:
		out := make(map[any]any)
		err := v.Range(func(k, val *value.Value) error {
			ka, err := toAny(k)
			if err != nil {
				return fmt.Errorf("map key: %w", err)
			}
			va, err := toAny(val)
			if err != nil {
				return fmt.Errorf("map value: %w", err)
			}
			out[ka] = va
			return nil
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	case value.KindArray:
		return arrayToAny(v)
	}
	return nil, fmt.Errorf("%w: %s has no engine representation", value.ErrUnsupported, v.Kind())
}

// arrayToAny maps an array onto the typed slice go-amqp encodes as an AMQP
// array of the same element type.
func arrayToAny(v *value.Value) (any, error) {
	n, _ := v.Count()
	items := make([]*value.Value, n)
	for i := range items {
		items[i], _ = v.Item(i)
	}
	if n == 0 {
		return []amqp.Symbol{}, nil
	}
	switch items[0].Kind() {
	case value.KindBoolean:
		return typedSlice(items, (*value.Value).AsBoolean), nil
	case value.KindUshort:
		return typedSlice(items, (*value.Value).AsUshort), nil
	case value.KindUint:
		return typedSlice(items, (*value.Value).AsUint), nil
	case value.KindUlong:
		return typedSlice(items, (*value.Value).AsUlong), nil
	case value.KindByte:
		return typedSlice(items, (*value.Value).AsByte), nil
	case value.KindShort:
		return typedSlice(items, (*value.Value).AsShort), nil
	case value.KindInt:
		return typedSlice(items, (*value.Value).AsInt), nil
	case value.KindLong:
		return typedSlice(items, (*value.Value).AsLong), nil
	case value.KindFloat:
		return typedSlice(items, (*value.Value).AsFloat), nil
	case value.KindDouble:
		return typedSlice(items, (*value.Value).AsDouble), nil
	case value.KindTimestamp:
		return typedSlice(items, (*value.Value).AsTimestamp), nil
	case value.KindBinary:
		return typedSlice(items, (*value.Value).AsBinary), nil
	case value.KindString:
		return typedSlice(items, (*value.Value).AsString), nil
	case value.KindSymbol:
		out := make([]amqp.Symbol, n)
		for i, item := range items {
			s, _ := item.AsSymbol()
			out[i] = amqp.Symbol(s)
		}
		return out, nil
	case value.KindUUID:
		out := make([]amqp.UUID, n)
		for i, item := range items {
			id, _ := item.AsUUID()
			out[i] = amqp.UUID(id)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: array of %s has no engine representation", value.ErrUnsupported, items[0].Kind())
}

func typedSlice[T any](items []*value.Value, get func(*value.Value) (T, bool)) []T {
	out := make([]T, len(items))
	for i, item := range items {
		out[i], _ = get(item)
	}
	return out
}

// ─── go-amqp → value tree ─────────────────────────────────────────────────────

// fromAny converts a value decoded by go-amqp back into a value tree.
func fromAny(a any) (*value.Value, error) {
	switch x := a.(type) {
	case nil:
		return value.Null(), nil
	case bool:
		return value.Boolean(x), nil
	case uint8:
		return value.Ubyte(x), nil
	case uint16:
		return value.Ushort(x), nil
	case uint32:
		return value.Uint(x), nil
	case uint64:
		return value.Ulong(x), nil
	case int8:
		return value.Byte(x), nil
	case int16:
		return value.Short(x), nil
	case int32:
		return value.Int(x), nil
	case int64:
		return value.Long(x), nil
	case int:
		return value.Long(int64(x)), nil
	case uint:
		return value.Ulong(uint64(x)), nil
	case float32:
		return value.Float(x), nil
	case float64:
		return value.Double(x), nil
	case time.Time:
		return value.Timestamp(x), nil
	case amqp.UUID:
		return value.UUID(uuid.UUID(x)), nil
	case []byte:
		return value.Binary(x), nil
	case string:
		return value.String(x), nil
	case amqp.Symbol:
		return value.Symbol(string(x)), nil
	case []any:
		list := value.NewList()
		for i, item := range x {
			v, err := fromAny(item)
			if err != nil {
				return nil, fmt.Errorf("list item %d: %w", i, err)
			}
			_ = list.Append(v)
		}
		return list, nil
	case map[any]any:
		return mapFromAny(x)
	case amqp.Annotations:
		return mapFromAny(x)
	case map[string]any:
		m := value.NewMap()
		for k, item := range x {
			v, err := fromAny(item)
			if err != nil {
				return nil, fmt.Errorf("map value %q: %w", k, err)
			}
			_ = m.Insert(value.String(k), v)
		}
		return m, nil
	case map[amqp.Symbol]any:
		m := value.NewMap()
		for k, item := range x {
			v, err := fromAny(item)
			if err != nil {
				return nil, fmt.Errorf("map value %q: %w", k, err)
			}
			_ = m.Insert(value.Symbol(string(k)), v)
		}
		return m, nil
	case []bool:
		return arrayFrom(x, value.Boolean)
	case []uint16:
		return arrayFrom(x, value.Ushort)
	case []uint32:
		return arrayFrom(x, value.Uint)
	case []uint64:
		return arrayFrom(x, value.Ulong)
	case []int8:
		return arrayFrom(x, value.Byte)
	case []int16:
		return arrayFrom(x, value.Short)
	case []int32:
		return arrayFrom(x, value.Int)
	case []int64:
		return arrayFrom(x, value.Long)
	case []float32:
		return arrayFrom(x, value.Float)
	case []float64:
		return arrayFrom(x, value.Double)
	case []time.Time:
		return arrayFrom(x, value.Timestamp)
	case [][]byte:
		return arrayFrom(x, value.Binary)
	case []string:
		return arrayFrom(x, value.String)
	case []amqp.Symbol:
		return arrayFrom(x, func(s amqp.Symbol) *value.Value { return value.Symbol(string(s)) })
	case []amqp.UUID:
		return arrayFrom(x, func(id amqp.UUID) *value.Value { return value.UUID(uuid.UUID(id)) })
	}
	return nil, fmt.Errorf("%w: engine value of type %T", value.ErrUnsupported, a)
}

func mapFromAny(x map[any]any) (*value.Value, error) {
	m := value.NewMap()
	for k, item := range x {
		kv, err := fromAny(k)
		if err != nil {
			return nil, fmt.Errorf("map key: %w", err)
		}
		v, err := fromAny(item)
		if err != nil {
			return nil, fmt.Errorf("map value: %w", err)
		}
		_ = m.Insert(kv, v)
	}
	return m, nil
}

func arrayFrom[T any](xs []T, mk func(T) *value.Value) (*value.Value, error) {
	items := make([]*value.Value, len(xs))
	for i, x := range xs {
		items[i] = mk(x)
	}
	return value.NewArray(items...)
}

// ─── maps with restricted keys ────────────────────────────────────────────────

// symbolKeyed converts a symbol-keyed map into the string-keyed form go-amqp
// uses for link and connection properties.
func symbolKeyed(m *value.Value) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	out := make(map[string]any)
	err := m.Range(func(k, v *value.Value) error {
		name, ok := k.AsSymbol()
		if !ok {
			return fmt.Errorf("%w: property key must be a symbol, got %s", model.ErrShape, k.Kind())
		}
		a, err := toAny(v)
		if err != nil {
			return err
		}
		out[name] = a
		return nil
	})
	return out, err
}

// annotations converts an annotation map. Symbol keys become strings, which
// go-amqp writes back as symbols; ulong keys stay numeric.
func annotations(m *value.Value) (amqp.Annotations, error) {
	if m == nil {
		return nil, nil
	}
	out := make(amqp.Annotations)
	err := m.Range(func(k, v *value.Value) error {
		var key any
		if s, ok := k.AsSymbol(); ok {
			key = s
		} else if n, ok := k.AsUlong(); ok {
			key = n
		} else {
			return fmt.Errorf("%w: annotation key %s", model.ErrShape, k.Kind())
		}
		a, err := toAny(v)
		if err != nil {
			return err
		}
		out[key] = a
		return nil
	})
	return out, err
}

func annotationsFrom(a amqp.Annotations) (*value.Value, error) {
	m := value.NewMap()
	for k, item := range a {
		var key *value.Value
		switch x := k.(type) {
		case string:
			key = value.Symbol(x)
		case amqp.Symbol:
			key = value.Symbol(string(x))
		case uint64:
			key = value.Ulong(x)
		case int64:
			key = value.Ulong(uint64(x))
		case int:
			key = value.Ulong(uint64(x))
		default:
			return nil, fmt.Errorf("%w: annotation key of type %T", value.ErrUnsupported, k)
		}
		v, err := fromAny(item)
		if err != nil {
			return nil, err
		}
		_ = m.Insert(key, v)
	}
	return m, nil
}

// ─── messages ─────────────────────────────────────────────────────────────────

// toMessage converts a model message into go-amqp's representation.
func toMessage(m *model.Message) (*amqp.Message, error) {
	out := &amqp.Message{}
	if h := m.Header(); h != nil {
		out.Header = &amqp.MessageHeader{
			Durable:       h.Durable(),
			Priority:      h.Priority(),
			FirstAcquirer: h.FirstAcquirer(),
			DeliveryCount: h.DeliveryCount(),
		}
		if ttl, ok := h.TTL(); ok {
			out.Header.TTL = ttl
		}
	}
	if p := m.Properties(); p != nil {
		props, err := toProperties(p)
		if err != nil {
			return nil, err
		}
		out.Properties = props
	}

	var err error
	if v, ok := m.DeliveryAnnotations(); ok {
		if out.DeliveryAnnotations, err = annotations(v); err != nil {
			return nil, fmt.Errorf("delivery annotations: %w", err)
		}
	}
	if v, ok := m.MessageAnnotations(); ok {
		if out.Annotations, err = annotations(v); err != nil {
			return nil, fmt.Errorf("message annotations: %w", err)
		}
	}
	if v, ok := m.Footer(); ok {
		if out.Footer, err = annotations(v); err != nil {
			return nil, fmt.Errorf("footer: %w", err)
		}
	}
	if v, ok := m.ApplicationProperties(); ok {
		out.ApplicationProperties = make(map[string]any)
		err := v.Range(func(k, item *value.Value) error {
			name, _ := k.AsString()
			a, err := toAny(item)
			if err != nil {
				return fmt.Errorf("application property %q: %w", name, err)
			}
			out.ApplicationProperties[name] = a
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	switch m.BodyKind() {
	case model.BodyData:
		out.Data = m.Data()
	case model.BodySequence:
		for i, section := range m.Sequence() {
			a, err := toAny(section)
			if err != nil {
				return nil, fmt.Errorf("sequence section %d: %w", i, err)
			}
			out.Sequence = append(out.Sequence, a.([]any))
		}
	case model.BodyValue:
		v, _ := m.Value()
		a, err := toAny(v)
		if err != nil {
			return nil, fmt.Errorf("value body: %w", err)
		}
		out.Value = a
	}
	return out, nil
}

func toProperties(p *model.Properties) (*amqp.MessageProperties, error) {
	out := &amqp.MessageProperties{}
	if id, ok := p.MessageID(); ok {
		a, err := toAny(id)
		if err != nil {
			return nil, fmt.Errorf("message-id: %w", err)
		}
		out.MessageID = a
	}
	if id, ok := p.CorrelationID(); ok {
		a, err := toAny(id)
		if err != nil {
			return nil, fmt.Errorf("correlation-id: %w", err)
		}
		out.CorrelationID = a
	}
	if b, ok := p.UserID(); ok {
		out.UserID = b
	}
	out.To = optString(p.To())
	out.Subject = optString(p.Subject())
	out.ReplyTo = optString(p.ReplyTo())
	out.ContentType = optString(p.ContentType())
	out.ContentEncoding = optString(p.ContentEncoding())
	out.GroupID = optString(p.GroupID())
	out.ReplyToGroupID = optString(p.ReplyToGroupID())
	if t, ok := p.AbsoluteExpiryTime(); ok {
		out.AbsoluteExpiryTime = &t
	}
	if t, ok := p.CreationTime(); ok {
		out.CreationTime = &t
	}
	if n, ok := p.GroupSequence(); ok {
		out.GroupSequence = &n
	}
	return out, nil
}

func optString(s string, ok bool) *string {
	if !ok {
		return nil
	}
	return &s
}

// fromMessage converts a received go-amqp message into the model.
func fromMessage(m *amqp.Message) (*model.Message, error) {
	b := model.NewMessageBuilder()
	if h := m.Header; h != nil {
		// Fields at their AMQP default stay absent.
		hb := model.NewHeaderBuilder()
		if h.Durable {
			_ = hb.SetDurable(true)
		}
		if h.Priority != model.DefaultPriority {
			_ = hb.SetPriority(h.Priority)
		}
		if h.FirstAcquirer {
			_ = hb.SetFirstAcquirer(true)
		}
		if h.DeliveryCount > 0 {
			_ = hb.SetDeliveryCount(h.DeliveryCount)
		}
		if h.TTL > 0 {
			if err := hb.SetTTL(h.TTL); err != nil {
				return nil, err
			}
		}
		header, _ := hb.Build()
		if err := b.SetHeader(header); err != nil {
			return nil, err
		}
	}
	if p := m.Properties; p != nil {
		props, err := fromProperties(p)
		if err != nil {
			return nil, err
		}
		if err := b.SetProperties(props); err != nil {
			return nil, err
		}
	}
	for _, s := range []struct {
		src amqp.Annotations
		set func(*value.Value) error
	}{
		{m.DeliveryAnnotations, b.SetDeliveryAnnotations},
		{m.Annotations, b.SetMessageAnnotations},
		{m.Footer, b.SetFooter},
	} {
		if s.src == nil {
			continue
		}
		v, err := annotationsFrom(s.src)
		if err != nil {
			return nil, err
		}
		if err := s.set(v); err != nil {
			return nil, err
		}
	}
	if m.ApplicationProperties != nil {
		v, err := fromAny(m.ApplicationProperties)
		if err != nil {
			return nil, fmt.Errorf("application properties: %w", err)
		}
		if err := b.SetApplicationProperties(v); err != nil {
			return nil, err
		}
	}

	switch {
	case len(m.Data) > 0:
		for _, d := range m.Data {
			if err := b.AddData(d); err != nil {
				return nil, err
			}
		}
	case len(m.Sequence) > 0:
		for i, section := range m.Sequence {
			v, err := fromAny(section)
			if err != nil {
				return nil, fmt.Errorf("sequence section %d: %w", i, err)
			}
			if err := b.AddSequence(v); err != nil {
				return nil, err
			}
		}
	case m.Value != nil:
		v, err := fromAny(m.Value)
		if err != nil {
			return nil, fmt.Errorf("value body: %w", err)
		}
		if err := b.SetValue(v); err != nil {
			return nil, err
		}
	}
	return b.Build()
}

func fromProperties(p *amqp.MessageProperties) (*model.Properties, error) {
	b := model.NewPropertiesBuilder()
	if p.MessageID != nil {
		v, err := fromAny(p.MessageID)
		if err != nil {
			return nil, fmt.Errorf("message-id: %w", err)
		}
		if err := b.SetMessageID(v); err != nil {
			return nil, err
		}
	}
	if p.CorrelationID != nil {
		v, err := fromAny(p.CorrelationID)
		if err != nil {
			return nil, fmt.Errorf("correlation-id: %w", err)
		}
		if err := b.SetCorrelationID(v); err != nil {
			return nil, err
		}
	}
	if p.UserID != nil {
		_ = b.SetUserID(p.UserID)
	}
	for _, s := range []struct {
		src *string
		set func(string) error
	}{
		{p.To, b.SetTo},
		{p.Subject, b.SetSubject},
		{p.ReplyTo, b.SetReplyTo},
		{p.ContentType, b.SetContentType},
		{p.ContentEncoding, b.SetContentEncoding},
		{p.GroupID, b.SetGroupID},
		{p.ReplyToGroupID, b.SetReplyToGroupID},
	} {
		if s.src != nil {
			_ = s.set(*s.src)
		}
	}
	if p.AbsoluteExpiryTime != nil {
		_ = b.SetAbsoluteExpiryTime(*p.AbsoluteExpiryTime)
	}
	if p.CreationTime != nil {
		_ = b.SetCreationTime(*p.CreationTime)
	}
	if p.GroupSequence != nil {
		_ = b.SetGroupSequence(*p.GroupSequence)
	}
	return b.Build()
}
