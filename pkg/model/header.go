package model

import (
	"fmt"
	"math"
	"time"

	"github.com/snehjoshi/amqpbridge/pkg/value"
)

// DefaultPriority is the priority of a message whose header carries none.
const DefaultPriority uint8 = 4

const (
	headerDurable = iota
	headerPriority
	headerTTL
	headerFirstAcquirer
	headerDeliveryCount
)

var headerChecks = []fieldCheck{
	kindOf(value.KindBoolean),
	kindOf(value.KindUbyte),
	kindOf(value.KindUint),
	kindOf(value.KindBoolean),
	kindOf(value.KindUint),
}

// Header is the transport header of a message. Absent fields read back as
// their AMQP defaults, except TTL which has none.
type Header struct {
	f fields
}

func (h *Header) Durable() bool {
	b, _ := h.f.get(headerDurable).AsBoolean()
	return b
}

func (h *Header) Priority() uint8 {
	if p, ok := h.f.get(headerPriority).AsUbyte(); ok {
		return p
	}
	return DefaultPriority
}

// TTL returns the time to live. ok is false when the header carries none.
func (h *Header) TTL() (ttl time.Duration, ok bool) {
	ms, ok := h.f.get(headerTTL).AsUint()
	return time.Duration(ms) * time.Millisecond, ok
}

func (h *Header) FirstAcquirer() bool {
	b, _ := h.f.get(headerFirstAcquirer).AsBoolean()
	return b
}

func (h *Header) DeliveryCount() uint32 {
	n, _ := h.f.get(headerDeliveryCount).AsUint()
	return n
}

// Clone returns an independent copy of h.
func (h *Header) Clone() *Header { return &Header{f: h.f.clone()} }

// ToValue returns h as a composite with descriptor 0x70.
func (h *Header) ToValue() *value.Value { return h.f.composite(DescriptorHeader) }

// HeaderFromValue converts a header composite into a Header.
func HeaderFromValue(v *value.Value) (*Header, error) {
	f, err := decodeFields(v, DescriptorHeader, "header", headerChecks)
	if err != nil {
		return nil, err
	}
	return &Header{f: f}, nil
}

// HeaderBuilder assembles a Header.
type HeaderBuilder struct{ b builder }

func NewHeaderBuilder() *HeaderBuilder { return &HeaderBuilder{} }

func (hb *HeaderBuilder) SetDurable(durable bool) error {
	return hb.b.set(headerDurable, value.Boolean(durable))
}

func (hb *HeaderBuilder) SetPriority(priority uint8) error {
	return hb.b.set(headerPriority, value.Ubyte(priority))
}

// SetTTL sets the time to live, carried on the wire in whole milliseconds.
func (hb *HeaderBuilder) SetTTL(ttl time.Duration) error {
	ms := ttl.Milliseconds()
	if ms < 0 || ms > math.MaxUint32 {
		return fmt.Errorf("%w: ttl %s out of range", ErrInvalidArgument, ttl)
	}
	return hb.b.set(headerTTL, value.Uint(uint32(ms)))
}

func (hb *HeaderBuilder) SetFirstAcquirer(first bool) error {
	return hb.b.set(headerFirstAcquirer, value.Boolean(first))
}

func (hb *HeaderBuilder) SetDeliveryCount(n uint32) error {
	return hb.b.set(headerDeliveryCount, value.Uint(n))
}

// Build returns the header and consumes the builder.
func (hb *HeaderBuilder) Build() (*Header, error) {
	f, err := hb.b.take()
	if err != nil {
		return nil, err
	}
	return &Header{f: f}, nil
}
