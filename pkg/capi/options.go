package capi

import (
	"time"

	"github.com/snehjoshi/amqpbridge/pkg/bridge"
	"github.com/snehjoshi/amqpbridge/pkg/model"
)

// ─── connection options ───────────────────────────────────────────────────────

func ConnectionOptionsBuilderCreate() Handle {
	return newHandle(bridge.NewConnectionOptionsBuilder())
}

// ConnectionOptionsBuilderSetIdleTimeout sets the idle timeout in
// milliseconds.
func ConnectionOptionsBuilderSetIdleTimeout(b Handle, ms uint32) Status {
	return apply(b, func(cb *bridge.ConnectionOptionsBuilder) error {
		return cb.SetIdleTimeout(time.Duration(ms) * time.Millisecond)
	})
}

// ConnectionOptionsBuilderSetMaxFrameSize rejects sizes below 512.
func ConnectionOptionsBuilderSetMaxFrameSize(b Handle, n uint32) Status {
	return apply(b, func(cb *bridge.ConnectionOptionsBuilder) error { return cb.SetMaxFrameSize(n) })
}

func ConnectionOptionsBuilderSetChannelMax(b Handle, n uint16) Status {
	return apply(b, func(cb *bridge.ConnectionOptionsBuilder) error { return cb.SetChannelMax(n) })
}

func ConnectionOptionsBuilderSetOutgoingLocales(b Handle, locales []string) Status {
	return apply(b, func(cb *bridge.ConnectionOptionsBuilder) error { return cb.SetOutgoingLocales(locales) })
}

func ConnectionOptionsBuilderSetIncomingLocales(b Handle, locales []string) Status {
	return apply(b, func(cb *bridge.ConnectionOptionsBuilder) error { return cb.SetIncomingLocales(locales) })
}

func ConnectionOptionsBuilderSetOfferedCapabilities(b Handle, caps []string) Status {
	return apply(b, func(cb *bridge.ConnectionOptionsBuilder) error { return cb.SetOfferedCapabilities(caps) })
}

func ConnectionOptionsBuilderSetDesiredCapabilities(b Handle, caps []string) Status {
	return apply(b, func(cb *bridge.ConnectionOptionsBuilder) error { return cb.SetDesiredCapabilities(caps) })
}

// ConnectionOptionsBuilderSetProperties takes a map whose keys are symbols or
// strings.
func ConnectionOptionsBuilderSetProperties(b, props Handle) Status {
	return setValue(b, props, (*bridge.ConnectionOptionsBuilder).SetProperties)
}

func ConnectionOptionsBuilderSetBufferSize(b Handle, n int) Status {
	return apply(b, func(cb *bridge.ConnectionOptionsBuilder) error { return cb.SetBufferSize(n) })
}

// ConnectionOptionsBuilderBuild consumes the builder.
func ConnectionOptionsBuilderBuild(b Handle) Handle {
	return build(b, (*bridge.ConnectionOptionsBuilder).Build)
}

// ConnectionOptionsGetIdleTimeout returns the idle timeout in milliseconds.
func ConnectionOptionsGetIdleTimeout(h Handle) (uint32, Status) {
	return field(h, func(o *bridge.ConnectionOptions) uint32 { return uint32(o.IdleTimeout.Milliseconds()) })
}

func ConnectionOptionsGetMaxFrameSize(h Handle) (uint32, Status) {
	return field(h, func(o *bridge.ConnectionOptions) uint32 { return o.MaxFrameSize })
}

func ConnectionOptionsGetChannelMax(h Handle) (uint16, Status) {
	return field(h, func(o *bridge.ConnectionOptions) uint16 { return o.ChannelMax })
}

func ConnectionOptionsGetProperties(h Handle) (Handle, Status) {
	return optionalField(h, func(o *bridge.ConnectionOptions) (Handle, bool) {
		if o.Properties == nil {
			return Null, false
		}
		return newHandle(o.Properties.Clone()), true
	})
}

// ─── session options ──────────────────────────────────────────────────────────

func SessionOptionsBuilderCreate() Handle { return newHandle(bridge.NewSessionOptionsBuilder()) }

func SessionOptionsBuilderSetIncomingWindow(b Handle, n uint32) Status {
	return apply(b, func(sb *bridge.SessionOptionsBuilder) error { return sb.SetIncomingWindow(n) })
}

func SessionOptionsBuilderSetOutgoingWindow(b Handle, n uint32) Status {
	return apply(b, func(sb *bridge.SessionOptionsBuilder) error { return sb.SetOutgoingWindow(n) })
}

func SessionOptionsBuilderSetNextOutgoingID(b Handle, n uint32) Status {
	return apply(b, func(sb *bridge.SessionOptionsBuilder) error { return sb.SetNextOutgoingID(n) })
}

func SessionOptionsBuilderSetHandleMax(b Handle, n uint32) Status {
	return apply(b, func(sb *bridge.SessionOptionsBuilder) error { return sb.SetHandleMax(n) })
}

func SessionOptionsBuilderSetOfferedCapabilities(b Handle, caps []string) Status {
	return apply(b, func(sb *bridge.SessionOptionsBuilder) error { return sb.SetOfferedCapabilities(caps) })
}

func SessionOptionsBuilderSetDesiredCapabilities(b Handle, caps []string) Status {
	return apply(b, func(sb *bridge.SessionOptionsBuilder) error { return sb.SetDesiredCapabilities(caps) })
}

func SessionOptionsBuilderSetProperties(b, props Handle) Status {
	return setValue(b, props, (*bridge.SessionOptionsBuilder).SetProperties)
}

func SessionOptionsBuilderSetBufferSize(b Handle, n int) Status {
	return apply(b, func(sb *bridge.SessionOptionsBuilder) error { return sb.SetBufferSize(n) })
}

func SessionOptionsBuilderBuild(b Handle) Handle {
	return build(b, (*bridge.SessionOptionsBuilder).Build)
}

// ─── sender options ───────────────────────────────────────────────────────────

func SenderOptionsBuilderCreate() Handle { return newHandle(bridge.NewSenderOptionsBuilder()) }

func SenderOptionsBuilderSetName(b Handle, name string) Status {
	return apply(b, func(sb *bridge.SenderOptionsBuilder) error { return sb.SetName(name) })
}

func SenderOptionsBuilderSetSenderSettleMode(b Handle, m bridge.SenderSettleMode) Status {
	return apply(b, func(sb *bridge.SenderOptionsBuilder) error { return sb.SetSenderSettleMode(m) })
}

func SenderOptionsBuilderSetReceiverSettleMode(b Handle, m bridge.ReceiverSettleMode) Status {
	return apply(b, func(sb *bridge.SenderOptionsBuilder) error { return sb.SetReceiverSettleMode(m) })
}

// SenderOptionsBuilderSetSource borrows the source; the options keep a copy.
func SenderOptionsBuilderSetSource(b, source Handle) Status {
	src, ok := lookup[*model.Source](source)
	if !ok {
		return StatusError
	}
	return apply(b, func(sb *bridge.SenderOptionsBuilder) error { return sb.SetSource(src) })
}

func SenderOptionsBuilderSetOfferedCapabilities(b Handle, caps []string) Status {
	return apply(b, func(sb *bridge.SenderOptionsBuilder) error { return sb.SetOfferedCapabilities(caps) })
}

func SenderOptionsBuilderSetDesiredCapabilities(b Handle, caps []string) Status {
	return apply(b, func(sb *bridge.SenderOptionsBuilder) error { return sb.SetDesiredCapabilities(caps) })
}

func SenderOptionsBuilderSetProperties(b, props Handle) Status {
	return setValue(b, props, (*bridge.SenderOptionsBuilder).SetProperties)
}

func SenderOptionsBuilderSetInitialDeliveryCount(b Handle, n uint32) Status {
	return apply(b, func(sb *bridge.SenderOptionsBuilder) error { return sb.SetInitialDeliveryCount(n) })
}

func SenderOptionsBuilderSetMaxMessageSize(b Handle, n uint64) Status {
	return apply(b, func(sb *bridge.SenderOptionsBuilder) error { return sb.SetMaxMessageSize(n) })
}

func SenderOptionsBuilderBuild(b Handle) Handle {
	return build(b, (*bridge.SenderOptionsBuilder).Build)
}

// ─── receiver options ─────────────────────────────────────────────────────────

// ReceiverOptionsBuilderCreate starts from auto-accept and the default
// channel capacity.
func ReceiverOptionsBuilderCreate() Handle { return newHandle(bridge.NewReceiverOptionsBuilder()) }

func ReceiverOptionsBuilderSetName(b Handle, name string) Status {
	return apply(b, func(rb *bridge.ReceiverOptionsBuilder) error { return rb.SetName(name) })
}

func ReceiverOptionsBuilderSetReceiverSettleMode(b Handle, m bridge.ReceiverSettleMode) Status {
	return apply(b, func(rb *bridge.ReceiverOptionsBuilder) error { return rb.SetReceiverSettleMode(m) })
}

func ReceiverOptionsBuilderSetSenderSettleMode(b Handle, m bridge.SenderSettleMode) Status {
	return apply(b, func(rb *bridge.ReceiverOptionsBuilder) error { return rb.SetSenderSettleMode(m) })
}

func ReceiverOptionsBuilderSetTarget(b, target Handle) Status {
	t, ok := lookup[*model.Target](target)
	if !ok {
		return StatusError
	}
	return apply(b, func(rb *bridge.ReceiverOptionsBuilder) error { return rb.SetTarget(t) })
}

// ReceiverOptionsBuilderSetCreditMode selects manual credit when manual is
// set and ignores credit; otherwise credit must be positive.
func ReceiverOptionsBuilderSetCreditMode(b Handle, manual bool, credit uint32) Status {
	return apply(b, func(rb *bridge.ReceiverOptionsBuilder) error {
		if manual {
			return rb.SetCreditModeManual()
		}
		return rb.SetCreditModeAuto(credit)
	})
}

func ReceiverOptionsBuilderSetAutoAccept(b Handle, auto bool) Status {
	return apply(b, func(rb *bridge.ReceiverOptionsBuilder) error { return rb.SetAutoAccept(auto) })
}

func ReceiverOptionsBuilderSetProperties(b, props Handle) Status {
	return setValue(b, props, (*bridge.ReceiverOptionsBuilder).SetProperties)
}

func ReceiverOptionsBuilderSetChannelCapacity(b Handle, n int) Status {
	return apply(b, func(rb *bridge.ReceiverOptionsBuilder) error { return rb.SetChannelCapacity(n) })
}

func ReceiverOptionsBuilderBuild(b Handle) Handle {
	return build(b, (*bridge.ReceiverOptionsBuilder).Build)
}
