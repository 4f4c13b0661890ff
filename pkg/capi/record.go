package capi

import (
	"time"

	"github.com/snehjoshi/amqpbridge/pkg/bridge"
	"github.com/snehjoshi/amqpbridge/pkg/model"
	"github.com/snehjoshi/amqpbridge/pkg/value"
)

// Builders follow one convention throughout the package: setters mutate the
// builder in place and return a Status, and Build consumes the builder
// whether or not it succeeds.
//
// Record getters, builder setters and Build take no call context and report
// through the status alone. A getter or Build fails only on a bad handle; a
// setter also fails on an argument its doc rules out. Conversions from a
// value can fail on a value built elsewhere, so RecordFromValue offers them
// with a structured error in a call context.

// field reads a field that always has a value.
func field[R, T any](h Handle, fn func(R) T) (out T, st Status) {
	defer recovered(nil, "", &st)
	r, ok := lookup[R](h)
	if !ok {
		return out, StatusError
	}
	return fn(r), StatusOK
}

// optionalField reads a field that may be absent.
func optionalField[R, T any](h Handle, fn func(R) (T, bool)) (out T, st Status) {
	defer recovered(nil, "", &st)
	r, ok := lookup[R](h)
	if !ok {
		return out, StatusError
	}
	out, ok = fn(r)
	if !ok {
		return out, StatusNotPresent
	}
	return out, StatusOK
}

// optionalValue reads an optional value-shaped field into a new handle.
func optionalValue[R any](h Handle, fn func(R) (*value.Value, bool)) (Handle, Status) {
	v, st := optionalField(h, fn)
	if st != StatusOK {
		return Null, st
	}
	return newHandle(v), StatusOK
}

// apply runs fn on the object behind h.
func apply[B any](h Handle, fn func(B) error) (st Status) {
	defer recovered(nil, "", &st)
	b, ok := lookup[B](h)
	if !ok {
		return StatusError
	}
	return status(fn(b))
}

// setValue applies a setter taking a value handle.
func setValue[B any](h, v Handle, fn func(B, *value.Value) error) Status {
	val, ok := lookup[*value.Value](v)
	if !ok {
		return StatusError
	}
	return apply(h, func(b B) error { return fn(b, val) })
}

// build consumes the builder behind h and returns a handle to the result.
func build[B, R any](h Handle, fn func(B) (R, error)) (out Handle) {
	defer func() {
		if recover() != nil {
			out = Null
		}
	}()
	b, ok := take[B](h)
	if !ok {
		return Null
	}
	r, err := fn(b)
	if err != nil {
		return Null
	}
	return newHandle(r)
}

// fromValue converts the value behind v into a record handle.
func fromValue[R any](v Handle, fn func(*value.Value) (R, error)) (Handle, Status) {
	var r R
	st := onValue(v, func(val *value.Value) error {
		var err error
		r, err = fn(val)
		return err
	})
	if st != StatusOK {
		return Null, st
	}
	return newHandle(r), StatusOK
}

// RecordKind selects the record RecordFromValue converts to.
type RecordKind int32

const (
	RecordHeader RecordKind = iota
	RecordProperties
	RecordSource
	RecordTarget
)

// RecordFromValue is ValueGetHeader, ValueGetProperties, ValueGetSource or
// ValueGetTarget with the failure recorded in ctx. A wrong descriptor or
// shape is an argument error whose description names the mismatch.
func RecordFromValue(ctx, v Handle, kind RecordKind) (Handle, Status) {
	const op = "record.from_value"
	out := Null
	st := onObject(ctx, v, op, "value", func(cc *bridge.CallContext, val *value.Value) error {
		var (
			r   any
			err error
		)
		switch kind {
		case RecordHeader:
			r, err = model.HeaderFromValue(val)
		case RecordProperties:
			r, err = model.PropertiesFromValue(val)
		case RecordSource:
			r, err = model.SourceFromValue(val)
		case RecordTarget:
			r, err = model.TargetFromValue(val)
		default:
			return record(cc, argument(op, "unknown record kind %d", kind))
		}
		if err != nil {
			return record(cc, &bridge.Error{Kind: bridge.KindArgument, Op: op, Detail: err.Error(), Cause: err})
		}
		out = newHandle(r)
		return nil
	})
	return out, st
}

func toValue[R interface{ ToValue() *value.Value }](h Handle) Handle {
	r, ok := lookup[R](h)
	if !ok {
		return Null
	}
	return newHandle(r.ToValue())
}

func clone[R interface{ Clone() R }](h Handle) Handle {
	r, ok := lookup[R](h)
	if !ok {
		return Null
	}
	return newHandle(r.Clone())
}

// ─── header ───────────────────────────────────────────────────────────────────

// ValueGetHeader converts a described or composite value with the header
// descriptor. Any other descriptor or shape is StatusError.
func ValueGetHeader(v Handle) (Handle, Status) { return fromValue(v, model.HeaderFromValue) }

// ValueCreateHeader returns the header as a composite value.
func ValueCreateHeader(h Handle) Handle { return toValue[*model.Header](h) }

func HeaderClone(h Handle) Handle { return clone[*model.Header](h) }

// Absent durable and first-acquirer read back false, priority 4 and delivery
// count 0. TTL has no default and reads back StatusNotPresent.

func HeaderGetDurable(h Handle) (bool, Status) { return field(h, (*model.Header).Durable) }
func HeaderGetPriority(h Handle) (uint8, Status) {
	return field(h, (*model.Header).Priority)
}
func HeaderGetFirstAcquirer(h Handle) (bool, Status) {
	return field(h, (*model.Header).FirstAcquirer)
}
func HeaderGetDeliveryCount(h Handle) (uint32, Status) {
	return field(h, (*model.Header).DeliveryCount)
}

// HeaderGetTTL returns the time to live in milliseconds.
func HeaderGetTTL(h Handle) (uint32, Status) {
	return optionalField(h, func(hd *model.Header) (uint32, bool) {
		ttl, ok := hd.TTL()
		return uint32(ttl.Milliseconds()), ok
	})
}

func HeaderBuilderCreate() Handle { return newHandle(model.NewHeaderBuilder()) }

func HeaderBuilderSetDurable(b Handle, durable bool) Status {
	return apply(b, func(hb *model.HeaderBuilder) error { return hb.SetDurable(durable) })
}

func HeaderBuilderSetPriority(b Handle, priority uint8) Status {
	return apply(b, func(hb *model.HeaderBuilder) error { return hb.SetPriority(priority) })
}

// HeaderBuilderSetTTL sets the time to live in milliseconds.
func HeaderBuilderSetTTL(b Handle, ms uint32) Status {
	return apply(b, func(hb *model.HeaderBuilder) error {
		return hb.SetTTL(time.Duration(ms) * time.Millisecond)
	})
}

func HeaderBuilderSetFirstAcquirer(b Handle, first bool) Status {
	return apply(b, func(hb *model.HeaderBuilder) error { return hb.SetFirstAcquirer(first) })
}

func HeaderBuilderSetDeliveryCount(b Handle, n uint32) Status {
	return apply(b, func(hb *model.HeaderBuilder) error { return hb.SetDeliveryCount(n) })
}

// HeaderBuilderBuild consumes the builder.
func HeaderBuilderBuild(b Handle) Handle { return build(b, (*model.HeaderBuilder).Build) }

// ─── properties ───────────────────────────────────────────────────────────────

func ValueGetProperties(v Handle) (Handle, Status) {
	return fromValue(v, model.PropertiesFromValue)
}

func ValueCreateProperties(h Handle) Handle { return toValue[*model.Properties](h) }

func PropertiesClone(h Handle) Handle { return clone[*model.Properties](h) }

func PropertiesGetMessageID(h Handle) (Handle, Status) {
	return optionalValue(h, (*model.Properties).MessageID)
}

func PropertiesGetCorrelationID(h Handle) (Handle, Status) {
	return optionalValue(h, (*model.Properties).CorrelationID)
}

func PropertiesGetUserID(h Handle) ([]byte, Status) {
	return optionalField(h, (*model.Properties).UserID)
}

func PropertiesGetTo(h Handle) (string, Status) {
	return optionalField(h, (*model.Properties).To)
}

func PropertiesGetSubject(h Handle) (string, Status) {
	return optionalField(h, (*model.Properties).Subject)
}

func PropertiesGetReplyTo(h Handle) (string, Status) {
	return optionalField(h, (*model.Properties).ReplyTo)
}

func PropertiesGetContentType(h Handle) (string, Status) {
	return optionalField(h, (*model.Properties).ContentType)
}

func PropertiesGetContentEncoding(h Handle) (string, Status) {
	return optionalField(h, (*model.Properties).ContentEncoding)
}

// PropertiesGetAbsoluteExpiryTime returns milliseconds since the Unix epoch.
func PropertiesGetAbsoluteExpiryTime(h Handle) (int64, Status) {
	return optionalField(h, millis((*model.Properties).AbsoluteExpiryTime))
}

// PropertiesGetCreationTime returns milliseconds since the Unix epoch.
func PropertiesGetCreationTime(h Handle) (int64, Status) {
	return optionalField(h, millis((*model.Properties).CreationTime))
}

func PropertiesGetGroupID(h Handle) (string, Status) {
	return optionalField(h, (*model.Properties).GroupID)
}

func PropertiesGetGroupSequence(h Handle) (uint32, Status) {
	return optionalField(h, (*model.Properties).GroupSequence)
}

func PropertiesGetReplyToGroupID(h Handle) (string, Status) {
	return optionalField(h, (*model.Properties).ReplyToGroupID)
}

func millis(fn func(*model.Properties) (time.Time, bool)) func(*model.Properties) (int64, bool) {
	return func(p *model.Properties) (int64, bool) {
		t, ok := fn(p)
		return t.UnixMilli(), ok
	}
}

func PropertiesBuilderCreate() Handle { return newHandle(model.NewPropertiesBuilder()) }

// PropertiesBuilderSetMessageID accepts a ulong, uuid, binary or string value.
func PropertiesBuilderSetMessageID(b, id Handle) Status {
	return setValue(b, id, (*model.PropertiesBuilder).SetMessageID)
}

func PropertiesBuilderSetCorrelationID(b, id Handle) Status {
	return setValue(b, id, (*model.PropertiesBuilder).SetCorrelationID)
}

func PropertiesBuilderSetUserID(b Handle, id []byte) Status {
	return apply(b, func(pb *model.PropertiesBuilder) error { return pb.SetUserID(id) })
}

func PropertiesBuilderSetTo(b Handle, to string) Status {
	return apply(b, func(pb *model.PropertiesBuilder) error { return pb.SetTo(to) })
}

func PropertiesBuilderSetSubject(b Handle, subject string) Status {
	return apply(b, func(pb *model.PropertiesBuilder) error { return pb.SetSubject(subject) })
}

func PropertiesBuilderSetReplyTo(b Handle, replyTo string) Status {
	return apply(b, func(pb *model.PropertiesBuilder) error { return pb.SetReplyTo(replyTo) })
}

func PropertiesBuilderSetContentType(b Handle, contentType string) Status {
	return apply(b, func(pb *model.PropertiesBuilder) error { return pb.SetContentType(contentType) })
}

func PropertiesBuilderSetContentEncoding(b Handle, encoding string) Status {
	return apply(b, func(pb *model.PropertiesBuilder) error { return pb.SetContentEncoding(encoding) })
}

func PropertiesBuilderSetAbsoluteExpiryTime(b Handle, ms int64) Status {
	return apply(b, func(pb *model.PropertiesBuilder) error {
		return pb.SetAbsoluteExpiryTime(time.UnixMilli(ms))
	})
}

func PropertiesBuilderSetCreationTime(b Handle, ms int64) Status {
	return apply(b, func(pb *model.PropertiesBuilder) error {
		return pb.SetCreationTime(time.UnixMilli(ms))
	})
}

func PropertiesBuilderSetGroupID(b Handle, id string) Status {
	return apply(b, func(pb *model.PropertiesBuilder) error { return pb.SetGroupID(id) })
}

func PropertiesBuilderSetGroupSequence(b Handle, seq uint32) Status {
	return apply(b, func(pb *model.PropertiesBuilder) error { return pb.SetGroupSequence(seq) })
}

func PropertiesBuilderSetReplyToGroupID(b Handle, id string) Status {
	return apply(b, func(pb *model.PropertiesBuilder) error { return pb.SetReplyToGroupID(id) })
}

func PropertiesBuilderBuild(b Handle) Handle {
	return build(b, (*model.PropertiesBuilder).Build)
}

// ─── source ───────────────────────────────────────────────────────────────────

func ValueGetSource(v Handle) (Handle, Status) { return fromValue(v, model.SourceFromValue) }
func ValueCreateSource(h Handle) Handle        { return toValue[*model.Source](h) }
func SourceClone(h Handle) Handle              { return clone[*model.Source](h) }

func SourceGetAddress(h Handle) (string, Status) {
	return optionalField(h, (*model.Source).Address)
}

func SourceGetDurable(h Handle) (model.TerminusDurability, Status) {
	return field(h, (*model.Source).Durable)
}

func SourceGetExpiryPolicy(h Handle) (model.ExpiryPolicy, Status) {
	return field(h, (*model.Source).ExpiryPolicy)
}

// SourceGetTimeout returns the expiry timeout in seconds.
func SourceGetTimeout(h Handle) (uint32, Status) { return field(h, (*model.Source).Timeout) }
func SourceGetDynamic(h Handle) (bool, Status)   { return field(h, (*model.Source).Dynamic) }

func SourceGetDynamicNodeProperties(h Handle) (Handle, Status) {
	return optionalValue(h, (*model.Source).DynamicNodeProperties)
}

func SourceGetDistributionMode(h Handle) (model.DistributionMode, Status) {
	return optionalField(h, (*model.Source).DistributionMode)
}

func SourceGetFilter(h Handle) (Handle, Status) {
	return optionalValue(h, (*model.Source).Filter)
}

func SourceGetDefaultOutcome(h Handle) (model.Outcome, Status) {
	return optionalField(h, (*model.Source).DefaultOutcome)
}

func SourceGetOutcomes(h Handle) ([]string, Status) {
	return field(h, (*model.Source).Outcomes)
}

func SourceGetCapabilities(h Handle) ([]string, Status) {
	return field(h, (*model.Source).Capabilities)
}

func SourceBuilderCreate() Handle { return newHandle(model.NewSourceBuilder()) }

func SourceBuilderSetAddress(b Handle, address string) Status {
	return apply(b, func(sb *model.SourceBuilder) error { return sb.SetAddress(address) })
}

func SourceBuilderSetDurable(b Handle, d model.TerminusDurability) Status {
	return apply(b, func(sb *model.SourceBuilder) error { return sb.SetDurable(d) })
}

func SourceBuilderSetExpiryPolicy(b Handle, p model.ExpiryPolicy) Status {
	return apply(b, func(sb *model.SourceBuilder) error { return sb.SetExpiryPolicy(p) })
}

func SourceBuilderSetTimeout(b Handle, seconds uint32) Status {
	return apply(b, func(sb *model.SourceBuilder) error { return sb.SetTimeout(seconds) })
}

func SourceBuilderSetDynamic(b Handle, dynamic bool) Status {
	return apply(b, func(sb *model.SourceBuilder) error { return sb.SetDynamic(dynamic) })
}

func SourceBuilderSetDynamicNodeProperties(b, props Handle) Status {
	return setValue(b, props, (*model.SourceBuilder).SetDynamicNodeProperties)
}

func SourceBuilderSetDistributionMode(b Handle, m model.DistributionMode) Status {
	return apply(b, func(sb *model.SourceBuilder) error { return sb.SetDistributionMode(m) })
}

// SourceBuilderSetFilter sets the filter set, a map with symbol keys.
func SourceBuilderSetFilter(b, filter Handle) Status {
	return setValue(b, filter, (*model.SourceBuilder).SetFilter)
}

func SourceBuilderSetDefaultOutcome(b Handle, o model.Outcome) Status {
	return apply(b, func(sb *model.SourceBuilder) error { return sb.SetDefaultOutcome(o) })
}

func SourceBuilderSetOutcomes(b Handle, outcomes []string) Status {
	return apply(b, func(sb *model.SourceBuilder) error { return sb.SetOutcomes(outcomes) })
}

func SourceBuilderSetCapabilities(b Handle, caps []string) Status {
	return apply(b, func(sb *model.SourceBuilder) error { return sb.SetCapabilities(caps) })
}

func SourceBuilderBuild(b Handle) Handle { return build(b, (*model.SourceBuilder).Build) }

// ─── target ───────────────────────────────────────────────────────────────────

func ValueGetTarget(v Handle) (Handle, Status) { return fromValue(v, model.TargetFromValue) }
func ValueCreateTarget(h Handle) Handle        { return toValue[*model.Target](h) }
func TargetClone(h Handle) Handle              { return clone[*model.Target](h) }

func TargetGetAddress(h Handle) (string, Status) {
	return optionalField(h, (*model.Target).Address)
}

func TargetGetDurable(h Handle) (model.TerminusDurability, Status) {
	return field(h, (*model.Target).Durable)
}

func TargetGetExpiryPolicy(h Handle) (model.ExpiryPolicy, Status) {
	return field(h, (*model.Target).ExpiryPolicy)
}

func TargetGetTimeout(h Handle) (uint32, Status) { return field(h, (*model.Target).Timeout) }
func TargetGetDynamic(h Handle) (bool, Status)   { return field(h, (*model.Target).Dynamic) }

func TargetGetDynamicNodeProperties(h Handle) (Handle, Status) {
	return optionalValue(h, (*model.Target).DynamicNodeProperties)
}

func TargetGetCapabilities(h Handle) ([]string, Status) {
	return field(h, (*model.Target).Capabilities)
}

func TargetBuilderCreate() Handle { return newHandle(model.NewTargetBuilder()) }

func TargetBuilderSetAddress(b Handle, address string) Status {
	return apply(b, func(tb *model.TargetBuilder) error { return tb.SetAddress(address) })
}

func TargetBuilderSetDurable(b Handle, d model.TerminusDurability) Status {
	return apply(b, func(tb *model.TargetBuilder) error { return tb.SetDurable(d) })
}

func TargetBuilderSetExpiryPolicy(b Handle, p model.ExpiryPolicy) Status {
	return apply(b, func(tb *model.TargetBuilder) error { return tb.SetExpiryPolicy(p) })
}

func TargetBuilderSetTimeout(b Handle, seconds uint32) Status {
	return apply(b, func(tb *model.TargetBuilder) error { return tb.SetTimeout(seconds) })
}

func TargetBuilderSetDynamic(b Handle, dynamic bool) Status {
	return apply(b, func(tb *model.TargetBuilder) error { return tb.SetDynamic(dynamic) })
}

func TargetBuilderSetDynamicNodeProperties(b, props Handle) Status {
	return setValue(b, props, (*model.TargetBuilder).SetDynamicNodeProperties)
}

func TargetBuilderSetCapabilities(b Handle, caps []string) Status {
	return apply(b, func(tb *model.TargetBuilder) error { return tb.SetCapabilities(caps) })
}

func TargetBuilderBuild(b Handle) Handle { return build(b, (*model.TargetBuilder).Build) }
