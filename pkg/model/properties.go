package model

import (
	"fmt"
	"time"

	"github.com/snehjoshi/amqpbridge/pkg/value"
)

const (
	propMessageID = iota
	propUserID
	propTo
	propSubject
	propReplyTo
	propCorrelationID
	propContentType
	propContentEncoding
	propAbsoluteExpiryTime
	propCreationTime
	propGroupID
	propGroupSequence
	propReplyToGroupID
)

// messageID accepts the four kinds AMQP allows for message and correlation
// ids: ulong, uuid, binary and string.
var messageID = kindOf(value.KindUlong, value.KindUUID, value.KindBinary, value.KindString)

var propertiesChecks = []fieldCheck{
	messageID,
	kindOf(value.KindBinary),
	kindOf(value.KindString),
	kindOf(value.KindString),
	kindOf(value.KindString),
	messageID,
	kindOf(value.KindSymbol),
	kindOf(value.KindSymbol),
	kindOf(value.KindTimestamp),
	kindOf(value.KindTimestamp),
	kindOf(value.KindString),
	kindOf(value.KindUint),
	kindOf(value.KindString),
}

// Properties is the immutable bare-message properties section. Every getter
// reports ok=false when the field is absent.
type Properties struct {
	f fields
}

// MessageID returns a copy of the message id.
func (p *Properties) MessageID() (*value.Value, bool) { return p.id(propMessageID) }

// CorrelationID returns a copy of the correlation id.
func (p *Properties) CorrelationID() (*value.Value, bool) { return p.id(propCorrelationID) }

func (p *Properties) id(i int) (*value.Value, bool) {
	if !p.f.present(i) {
		return nil, false
	}
	return p.f.get(i).Clone(), true
}

func (p *Properties) UserID() ([]byte, bool)          { return p.f.get(propUserID).AsBinary() }
func (p *Properties) To() (string, bool)              { return p.f.get(propTo).AsString() }
func (p *Properties) Subject() (string, bool)         { return p.f.get(propSubject).AsString() }
func (p *Properties) ReplyTo() (string, bool)         { return p.f.get(propReplyTo).AsString() }
func (p *Properties) ContentType() (string, bool)     { return p.f.get(propContentType).AsSymbol() }
func (p *Properties) ContentEncoding() (string, bool) { return p.f.get(propContentEncoding).AsSymbol() }
func (p *Properties) GroupID() (string, bool)         { return p.f.get(propGroupID).AsString() }
func (p *Properties) GroupSequence() (uint32, bool)   { return p.f.get(propGroupSequence).AsUint() }
func (p *Properties) ReplyToGroupID() (string, bool)  { return p.f.get(propReplyToGroupID).AsString() }

func (p *Properties) AbsoluteExpiryTime() (time.Time, bool) {
	return p.f.get(propAbsoluteExpiryTime).AsTimestamp()
}

func (p *Properties) CreationTime() (time.Time, bool) {
	return p.f.get(propCreationTime).AsTimestamp()
}

// Clone returns an independent copy of p.
func (p *Properties) Clone() *Properties { return &Properties{f: p.f.clone()} }

// ToValue returns p as a composite with descriptor 0x73.
func (p *Properties) ToValue() *value.Value { return p.f.composite(DescriptorProperties) }

// PropertiesFromValue converts a properties composite into Properties.
func PropertiesFromValue(v *value.Value) (*Properties, error) {
	f, err := decodeFields(v, DescriptorProperties, "properties", propertiesChecks)
	if err != nil {
		return nil, err
	}
	return &Properties{f: f}, nil
}

// PropertiesBuilder assembles Properties.
type PropertiesBuilder struct{ b builder }

func NewPropertiesBuilder() *PropertiesBuilder { return &PropertiesBuilder{} }

// SetMessageID sets the message id, which must be a ulong, uuid, binary or string.
func (pb *PropertiesBuilder) SetMessageID(id *value.Value) error {
	return pb.setID(propMessageID, id)
}

// SetCorrelationID sets the correlation id under the same rules as SetMessageID.
func (pb *PropertiesBuilder) SetCorrelationID(id *value.Value) error {
	return pb.setID(propCorrelationID, id)
}

func (pb *PropertiesBuilder) setID(i int, id *value.Value) error {
	if id == nil {
		return fmt.Errorf("%w: nil id", ErrInvalidArgument)
	}
	if _, err := messageID(id); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return pb.b.set(i, id.Clone())
}

func (pb *PropertiesBuilder) SetUserID(id []byte) error {
	return pb.b.set(propUserID, value.Binary(id))
}

func (pb *PropertiesBuilder) SetTo(to string) error {
	return pb.b.set(propTo, value.String(to))
}

func (pb *PropertiesBuilder) SetSubject(subject string) error {
	return pb.b.set(propSubject, value.String(subject))
}

func (pb *PropertiesBuilder) SetReplyTo(replyTo string) error {
	return pb.b.set(propReplyTo, value.String(replyTo))
}

func (pb *PropertiesBuilder) SetContentType(contentType string) error {
	return pb.b.set(propContentType, value.Symbol(contentType))
}

func (pb *PropertiesBuilder) SetContentEncoding(encoding string) error {
	return pb.b.set(propContentEncoding, value.Symbol(encoding))
}

func (pb *PropertiesBuilder) SetAbsoluteExpiryTime(t time.Time) error {
	return pb.b.set(propAbsoluteExpiryTime, value.Timestamp(t))
}

func (pb *PropertiesBuilder) SetCreationTime(t time.Time) error {
	return pb.b.set(propCreationTime, value.Timestamp(t))
}

func (pb *PropertiesBuilder) SetGroupID(id string) error {
	return pb.b.set(propGroupID, value.String(id))
}

func (pb *PropertiesBuilder) SetGroupSequence(seq uint32) error {
	return pb.b.set(propGroupSequence, value.Uint(seq))
}

func (pb *PropertiesBuilder) SetReplyToGroupID(id string) error {
	return pb.b.set(propReplyToGroupID, value.String(id))
}

// Build returns the properties and consumes the builder.
func (pb *PropertiesBuilder) Build() (*Properties, error) {
	f, err := pb.b.take()
	if err != nil {
		return nil, err
	}
	return &Properties{f: f}, nil
}
