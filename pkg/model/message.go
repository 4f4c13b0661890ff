package model

import (
	"fmt"

	"github.com/snehjoshi/amqpbridge/pkg/value"
)

// BodyKind says which of the three AMQP body forms a message carries.
type BodyKind uint8

const (
	BodyNone BodyKind = iota
	BodyData
	BodySequence
	BodyValue
)

func (k BodyKind) String() string {
	switch k {
	case BodyNone:
		return "none"
	case BodyData:
		return "data"
	case BodySequence:
		return "sequence"
	case BodyValue:
		return "value"
	}
	return "unknown"
}

// Message is an immutable AMQP message. Accessors return copies.
type Message struct {
	header                *Header
	deliveryAnnotations   *value.Value
	messageAnnotations    *value.Value
	properties            *Properties
	applicationProperties *value.Value
	footer                *value.Value

	bodyKind BodyKind
	data     [][]byte
	sequence []*value.Value
	body     *value.Value
}

// Header returns the header, or nil when the message has none.
func (m *Message) Header() *Header {
	if m.header == nil {
		return nil
	}
	return m.header.Clone()
}

// Properties returns the properties, or nil when the message has none.
func (m *Message) Properties() *Properties {
	if m.properties == nil {
		return nil
	}
	return m.properties.Clone()
}

func (m *Message) DeliveryAnnotations() (*value.Value, bool) { return optional(m.deliveryAnnotations) }
func (m *Message) MessageAnnotations() (*value.Value, bool)  { return optional(m.messageAnnotations) }
func (m *Message) ApplicationProperties() (*value.Value, bool) {
	return optional(m.applicationProperties)
}
func (m *Message) Footer() (*value.Value, bool) { return optional(m.footer) }

func optional(v *value.Value) (*value.Value, bool) {
	if v == nil {
		return nil, false
	}
	return v.Clone(), true
}

func (m *Message) BodyKind() BodyKind { return m.bodyKind }

// Data returns copies of the data sections.
func (m *Message) Data() [][]byte {
	out := make([][]byte, len(m.data))
	for i, d := range m.data {
		out[i] = append([]byte{}, d...)
	}
	return out
}

// Sequence returns copies of the sequence sections, each a list.
func (m *Message) Sequence() []*value.Value {
	out := make([]*value.Value, len(m.sequence))
	for i, s := range m.sequence {
		out[i] = s.Clone()
	}
	return out
}

// Value returns the single value body.
func (m *Message) Value() (*value.Value, bool) {
	if m.bodyKind != BodyValue {
		return nil, false
	}
	return m.body.Clone(), true
}

// Sections returns the message as the ordered list of described sections
// that make up its wire form.
func (m *Message) Sections() []*value.Value {
	var out []*value.Value
	if m.header != nil {
		out = append(out, m.header.ToValue())
	}
	if m.deliveryAnnotations != nil {
		out = append(out, described(DescriptorDeliveryAnnotations, m.deliveryAnnotations))
	}
	if m.messageAnnotations != nil {
		out = append(out, described(DescriptorMessageAnnotations, m.messageAnnotations))
	}
	if m.properties != nil {
		out = append(out, m.properties.ToValue())
	}
	if m.applicationProperties != nil {
		out = append(out, described(DescriptorApplicationProperties, m.applicationProperties))
	}
	for _, d := range m.data {
		out = append(out, described(DescriptorData, value.Binary(d)))
	}
	for _, s := range m.sequence {
		out = append(out, described(DescriptorSequence, s))
	}
	if m.bodyKind == BodyValue {
		out = append(out, described(DescriptorValue, m.body))
	}
	if m.footer != nil {
		out = append(out, described(DescriptorFooter, m.footer))
	}
	return out
}

func described(code uint64, v *value.Value) *value.Value {
	d, _ := value.NewDescribed(value.Ulong(code), v)
	return d
}

// Marshal returns the wire form of m: its sections encoded back to back.
func (m *Message) Marshal() ([]byte, error) {
	var out []byte
	for _, s := range m.Sections() {
		b, err := value.Marshal(s)
		if err != nil {
			return nil, fmt.Errorf("message: encode section: %w", err)
		}
		out = append(out, b...)
	}
	return out, nil
}

// UnmarshalMessage decodes a sequence of message sections. Sections must
// appear in AMQP order; only data and sequence sections may repeat.
func UnmarshalMessage(buf []byte) (*Message, error) {
	m := &Message{}
	var last uint64
	for off := 0; off < len(buf); {
		v, n, err := value.Decode(buf[off:])
		if err != nil {
			return nil, fmt.Errorf("message: section at offset %d: %w", off, err)
		}
		code, err := descriptorOf(v)
		if err != nil {
			return nil, fmt.Errorf("message: section at offset %d: %w", off, err)
		}
		if code < DescriptorHeader || code > DescriptorFooter {
			return nil, fmt.Errorf("%w: 0x%02x is not a message section", ErrDescriptorMismatch, code)
		}
		if code < last || (code == last && code != DescriptorData && code != DescriptorSequence) {
			return nil, fmt.Errorf("%w: section 0x%02x out of order at offset %d", ErrShape, code, off)
		}
		if err := m.addSection(code, v); err != nil {
			return nil, err
		}
		last = code
		off += n
	}
	return m, nil
}

func (m *Message) addSection(code uint64, v *value.Value) error {
	var err error
	switch code {
	case DescriptorHeader:
		m.header, err = HeaderFromValue(v)
	case DescriptorProperties:
		m.properties, err = PropertiesFromValue(v)
	case DescriptorDeliveryAnnotations:
		m.deliveryAnnotations, err = sectionMap(v, "delivery-annotations", annotationMap)
	case DescriptorMessageAnnotations:
		m.messageAnnotations, err = sectionMap(v, "message-annotations", annotationMap)
	case DescriptorApplicationProperties:
		m.applicationProperties, err = sectionMap(v, "application-properties", stringMap)
	case DescriptorFooter:
		m.footer, err = sectionMap(v, "footer", annotationMap)
	case DescriptorData:
		var payload *value.Value
		if payload, err = v.DescribedValue(); err != nil {
			return fmt.Errorf("%w: data section: %v", ErrShape, err)
		}
		b, ok := payload.AsBinary()
		if !ok {
			return fmt.Errorf("%w: data section holds %s", ErrShape, payload.Kind())
		}
		err = m.setBody(BodyData)
		m.data = append(m.data, b)
	case DescriptorSequence:
		var items []*value.Value
		if items, err = v.Fields(); err != nil {
			return fmt.Errorf("%w: sequence section is not a list", ErrShape)
		}
		err = m.setBody(BodySequence)
		m.sequence = append(m.sequence, value.NewList(items...))
	case DescriptorValue:
		// a list payload decodes as a composite; turn it back into a list
		if v.Kind() == value.KindComposite {
			items, _ := v.Fields()
			m.body = value.NewList(items...)
		} else if m.body, err = v.DescribedValue(); err != nil {
			return fmt.Errorf("%w: value section: %v", ErrShape, err)
		}
		err = m.setBody(BodyValue)
	}
	return err
}

func (m *Message) setBody(k BodyKind) error {
	if m.bodyKind != BodyNone && m.bodyKind != k {
		return fmt.Errorf("%w: %s section in a message with a %s body", ErrShape, k, m.bodyKind)
	}
	m.bodyKind = k
	return nil
}

func sectionMap(v *value.Value, name string, check fieldCheck) (*value.Value, error) {
	payload, err := v.DescribedValue()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrShape, name, err)
	}
	m, err := check(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrShape, name, err)
	}
	return m, nil
}

// ─── builder ──────────────────────────────────────────────────────────────────

// MessageBuilder assembles a Message.
type MessageBuilder struct {
	m     *Message
	built bool
}

func NewMessageBuilder() *MessageBuilder { return &MessageBuilder{m: &Message{}} }

func (mb *MessageBuilder) check() error {
	if mb.built {
		return ErrBuilderConsumed
	}
	return nil
}

func (mb *MessageBuilder) SetHeader(h *Header) error {
	if err := mb.check(); err != nil {
		return err
	}
	if h == nil {
		mb.m.header = nil
		return nil
	}
	mb.m.header = h.Clone()
	return nil
}

func (mb *MessageBuilder) SetProperties(p *Properties) error {
	if err := mb.check(); err != nil {
		return err
	}
	if p == nil {
		mb.m.properties = nil
		return nil
	}
	mb.m.properties = p.Clone()
	return nil
}

// SetDeliveryAnnotations sets the delivery annotations. Keys must be symbols or ulongs.
func (mb *MessageBuilder) SetDeliveryAnnotations(annotations *value.Value) error {
	return mb.setMap(&mb.m.deliveryAnnotations, annotations, annotationMap)
}

// SetMessageAnnotations sets the message annotations. Keys must be symbols or ulongs.
func (mb *MessageBuilder) SetMessageAnnotations(annotations *value.Value) error {
	return mb.setMap(&mb.m.messageAnnotations, annotations, annotationMap)
}

// SetApplicationProperties sets the application properties. Keys must be strings.
func (mb *MessageBuilder) SetApplicationProperties(props *value.Value) error {
	return mb.setMap(&mb.m.applicationProperties, props, stringMap)
}

// SetFooter sets the footer. Keys must be symbols or ulongs.
func (mb *MessageBuilder) SetFooter(footer *value.Value) error {
	return mb.setMap(&mb.m.footer, footer, annotationMap)
}

func (mb *MessageBuilder) setMap(dst **value.Value, v *value.Value, check fieldCheck) error {
	if err := mb.check(); err != nil {
		return err
	}
	m, err := check(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	*dst = m
	return nil
}

// AddData appends a data section. A message body holds one form only.
func (mb *MessageBuilder) AddData(data []byte) error {
	if err := mb.check(); err != nil {
		return err
	}
	if err := mb.m.setBody(BodyData); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	mb.m.data = append(mb.m.data, append([]byte{}, data...))
	return nil
}

// AddSequence appends a sequence section, which must be a list.
func (mb *MessageBuilder) AddSequence(list *value.Value) error {
	if err := mb.check(); err != nil {
		return err
	}
	if list == nil || list.Kind() != value.KindList {
		return fmt.Errorf("%w: sequence section must be a list", ErrInvalidArgument)
	}
	if err := mb.m.setBody(BodySequence); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	mb.m.sequence = append(mb.m.sequence, list.Clone())
	return nil
}

// SetValue sets the body to a single value, replacing any earlier value body.
func (mb *MessageBuilder) SetValue(v *value.Value) error {
	if err := mb.check(); err != nil {
		return err
	}
	if err := mb.m.setBody(BodyValue); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	mb.m.body = v.Clone()
	return nil
}

// Build returns the message and consumes the builder.
func (mb *MessageBuilder) Build() (*Message, error) {
	if err := mb.check(); err != nil {
		return nil, err
	}
	mb.built = true
	m := mb.m
	mb.m = nil
	return m, nil
}
