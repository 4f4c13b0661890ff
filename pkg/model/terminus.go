package model

import (
	"fmt"

	"github.com/snehjoshi/amqpbridge/pkg/value"
)

// TerminusDurability says what terminus state survives a link detach.
type TerminusDurability uint32

const (
	DurabilityNone TerminusDurability = iota
	DurabilityConfiguration
	DurabilityUnsettledState
)

// ExpiryPolicy says when an orphaned terminus expires.
type ExpiryPolicy string

const (
	ExpiryLinkDetach      ExpiryPolicy = "link-detach"
	ExpirySessionEnd      ExpiryPolicy = "session-end"
	ExpiryConnectionClose ExpiryPolicy = "connection-close"
	ExpiryNever           ExpiryPolicy = "never"
)

func (p ExpiryPolicy) valid() bool {
	switch p {
	case ExpiryLinkDetach, ExpirySessionEnd, ExpiryConnectionClose, ExpiryNever:
		return true
	}
	return false
}

// DistributionMode says whether a source moves or copies messages to a link.
type DistributionMode string

const (
	DistributionMove DistributionMode = "move"
	DistributionCopy DistributionMode = "copy"
)

// Outcome is a terminal delivery state.
type Outcome uint64

const (
	OutcomeAccepted = Outcome(DescriptorAccepted)
	OutcomeRejected = Outcome(DescriptorRejected)
	OutcomeReleased = Outcome(DescriptorReleased)
	OutcomeModified = Outcome(DescriptorModified)
)

func (o Outcome) valid() bool { return o >= OutcomeAccepted && o <= OutcomeModified }

// Symbol returns the symbolic descriptor of the outcome.
func (o Outcome) Symbol() string { return descriptorNames[uint64(o)] }

func (o Outcome) toValue() *value.Value {
	c, _ := value.NewComposite(value.Ulong(uint64(o)), 0)
	return c
}

func outcome(v *value.Value) (*value.Value, error) {
	code, err := descriptorOf(v)
	if err != nil {
		return nil, err
	}
	if !Outcome(code).valid() {
		return nil, fmt.Errorf("descriptor 0x%02x is not an outcome", code)
	}
	return Outcome(code).toValue(), nil
}

func expiryPolicy(v *value.Value) (*value.Value, error) {
	s, ok := v.AsSymbol()
	if !ok || !ExpiryPolicy(s).valid() {
		return nil, fmt.Errorf("invalid expiry policy %s", v)
	}
	return v, nil
}

func distributionMode(v *value.Value) (*value.Value, error) {
	s, ok := v.AsSymbol()
	if !ok || (DistributionMode(s) != DistributionMove && DistributionMode(s) != DistributionCopy) {
		return nil, fmt.Errorf("invalid distribution mode %s", v)
	}
	return v, nil
}

func durability(v *value.Value) (*value.Value, error) {
	n, ok := v.AsUint()
	if !ok || n > uint32(DurabilityUnsettledState) {
		return nil, fmt.Errorf("invalid terminus durability %s", v)
	}
	return v, nil
}

// Source and target share their first six fields.
const (
	termAddress = iota
	termDurable
	termExpiryPolicy
	termTimeout
	termDynamic
	termDynamicNodeProperties
)

const (
	sourceDistributionMode = iota + termDynamicNodeProperties + 1
	sourceFilter
	sourceDefaultOutcome
	sourceOutcomes
	sourceCapabilities
)

const targetCapabilities = termDynamicNodeProperties + 1

var terminusChecks = []fieldCheck{
	kindOf(value.KindString),
	durability,
	expiryPolicy,
	kindOf(value.KindUint),
	kindOf(value.KindBoolean),
	symbolMap(false),
}

var sourceChecks = append(append([]fieldCheck{}, terminusChecks...),
	distributionMode,
	symbolMap(false),
	outcome,
	symbols,
	symbols,
)

var targetChecks = append(append([]fieldCheck{}, terminusChecks...),
	symbols,
)

// terminus holds the fields sources and targets have in common.
type terminus struct {
	f fields
}

func (t *terminus) Address() (string, bool) { return t.f.get(termAddress).AsString() }

// Durable defaults to DurabilityNone.
func (t *terminus) Durable() TerminusDurability {
	n, _ := t.f.get(termDurable).AsUint()
	return TerminusDurability(n)
}

// ExpiryPolicy defaults to ExpirySessionEnd.
func (t *terminus) ExpiryPolicy() ExpiryPolicy {
	if s, ok := t.f.get(termExpiryPolicy).AsSymbol(); ok {
		return ExpiryPolicy(s)
	}
	return ExpirySessionEnd
}

// Timeout is the expiry timeout in seconds.
func (t *terminus) Timeout() uint32 {
	n, _ := t.f.get(termTimeout).AsUint()
	return n
}

func (t *terminus) Dynamic() bool {
	b, _ := t.f.get(termDynamic).AsBoolean()
	return b
}

// DynamicNodeProperties returns a copy of the symbol-keyed property map.
func (t *terminus) DynamicNodeProperties() (*value.Value, bool) {
	return t.optional(termDynamicNodeProperties)
}

func (t *terminus) optional(i int) (*value.Value, bool) {
	if !t.f.present(i) {
		return nil, false
	}
	return t.f.get(i).Clone(), true
}

// Source is the source terminus of a link.
type Source struct{ terminus }

// DistributionMode returns the distribution mode. ok is false when unset.
func (s *Source) DistributionMode() (DistributionMode, bool) {
	m, ok := s.f.get(sourceDistributionMode).AsSymbol()
	return DistributionMode(m), ok
}

// Filter returns a copy of the symbol-keyed filter set.
func (s *Source) Filter() (*value.Value, bool) { return s.optional(sourceFilter) }

// DefaultOutcome returns the outcome applied to unsettled deliveries.
func (s *Source) DefaultOutcome() (Outcome, bool) {
	code, ok := s.f.get(sourceDefaultOutcome).DescriptorCode()
	return Outcome(code), ok
}

func (s *Source) Outcomes() []string     { return symbolList(s.f.get(sourceOutcomes)) }
func (s *Source) Capabilities() []string { return symbolList(s.f.get(sourceCapabilities)) }

func (s *Source) Clone() *Source { return &Source{terminus{f: s.f.clone()}} }

// ToValue returns s as a composite with descriptor 0x28.
func (s *Source) ToValue() *value.Value { return s.f.composite(DescriptorSource) }

// SourceFromValue converts a source composite into a Source.
func SourceFromValue(v *value.Value) (*Source, error) {
	f, err := decodeFields(v, DescriptorSource, "source", sourceChecks)
	if err != nil {
		return nil, err
	}
	return &Source{terminus{f: f}}, nil
}

// Target is the target terminus of a link.
type Target struct{ terminus }

func (t *Target) Capabilities() []string { return symbolList(t.f.get(targetCapabilities)) }

func (t *Target) Clone() *Target { return &Target{terminus{f: t.f.clone()}} }

// ToValue returns t as a composite with descriptor 0x29.
func (t *Target) ToValue() *value.Value { return t.f.composite(DescriptorTarget) }

// TargetFromValue converts a target composite into a Target.
func TargetFromValue(v *value.Value) (*Target, error) {
	f, err := decodeFields(v, DescriptorTarget, "target", targetChecks)
	if err != nil {
		return nil, err
	}
	return &Target{terminus{f: f}}, nil
}

// ─── builders ─────────────────────────────────────────────────────────────────

type terminusBuilder struct{ b builder }

func (tb *terminusBuilder) SetAddress(address string) error {
	return tb.b.set(termAddress, value.String(address))
}

func (tb *terminusBuilder) SetDurable(d TerminusDurability) error {
	if d > DurabilityUnsettledState {
		return fmt.Errorf("%w: terminus durability %d", ErrInvalidArgument, d)
	}
	return tb.b.set(termDurable, value.Uint(uint32(d)))
}

func (tb *terminusBuilder) SetExpiryPolicy(p ExpiryPolicy) error {
	if !p.valid() {
		return fmt.Errorf("%w: expiry policy %q", ErrInvalidArgument, p)
	}
	return tb.b.set(termExpiryPolicy, value.Symbol(string(p)))
}

// SetTimeout sets the expiry timeout in seconds.
func (tb *terminusBuilder) SetTimeout(seconds uint32) error {
	return tb.b.set(termTimeout, value.Uint(seconds))
}

func (tb *terminusBuilder) SetDynamic(dynamic bool) error {
	return tb.b.set(termDynamic, value.Boolean(dynamic))
}

// SetDynamicNodeProperties sets the node property map. Keys must be symbols
// or strings, which are promoted to symbols.
func (tb *terminusBuilder) SetDynamicNodeProperties(props *value.Value) error {
	m, err := symbolMap(true)(props)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return tb.b.set(termDynamicNodeProperties, m)
}

// SourceBuilder assembles a Source.
type SourceBuilder struct{ terminusBuilder }

func NewSourceBuilder() *SourceBuilder { return &SourceBuilder{} }

func (sb *SourceBuilder) SetDistributionMode(m DistributionMode) error {
	if m != DistributionMove && m != DistributionCopy {
		return fmt.Errorf("%w: distribution mode %q", ErrInvalidArgument, m)
	}
	return sb.b.set(sourceDistributionMode, value.Symbol(string(m)))
}

// SetFilter sets the filter set. Keys must be symbols or strings.
func (sb *SourceBuilder) SetFilter(filter *value.Value) error {
	m, err := symbolMap(true)(filter)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return sb.b.set(sourceFilter, m)
}

func (sb *SourceBuilder) SetDefaultOutcome(o Outcome) error {
	if !o.valid() {
		return fmt.Errorf("%w: outcome 0x%02x", ErrInvalidArgument, uint64(o))
	}
	return sb.b.set(sourceDefaultOutcome, o.toValue())
}

func (sb *SourceBuilder) SetOutcomes(outcomes []string) error {
	return sb.b.set(sourceOutcomes, symbolArray(outcomes))
}

func (sb *SourceBuilder) SetCapabilities(caps []string) error {
	return sb.b.set(sourceCapabilities, symbolArray(caps))
}

// Build returns the source and consumes the builder.
func (sb *SourceBuilder) Build() (*Source, error) {
	f, err := sb.b.take()
	if err != nil {
		return nil, err
	}
	return &Source{terminus{f: f}}, nil
}

// TargetBuilder assembles a Target.
type TargetBuilder struct{ terminusBuilder }

func NewTargetBuilder() *TargetBuilder { return &TargetBuilder{} }

func (tb *TargetBuilder) SetCapabilities(caps []string) error {
	return tb.b.set(targetCapabilities, symbolArray(caps))
}

// Build returns the target and consumes the builder.
func (tb *TargetBuilder) Build() (*Target, error) {
	f, err := tb.b.take()
	if err != nil {
		return nil, err
	}
	return &Target{terminus{f: f}}, nil
}
