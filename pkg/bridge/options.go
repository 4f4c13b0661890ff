package bridge

import (
	"fmt"
	"time"

	"github.com/snehjoshi/amqpbridge/pkg/model"
	"github.com/snehjoshi/amqpbridge/pkg/value"
)

// SenderSettleMode is the settlement policy of a sending link.
type SenderSettleMode uint8

const (
	SenderSettleUnsettled SenderSettleMode = iota
	SenderSettleSettled
	SenderSettleMixed
)

// ReceiverSettleMode is the settlement policy of a receiving link.
type ReceiverSettleMode uint8

const (
	ReceiverSettleFirst ReceiverSettleMode = iota
	ReceiverSettleSecond
)

// DefaultChannelCapacity is the receive pump channel size when none is set.
const DefaultChannelCapacity = 128

// ConnectionOptions tune an AMQP connection. Zero fields take the engine's
// defaults.
type ConnectionOptions struct {
	IdleTimeout         time.Duration
	MaxFrameSize        uint32
	ChannelMax          uint16
	OutgoingLocales     []string
	IncomingLocales     []string
	OfferedCapabilities []string
	DesiredCapabilities []string
	Properties          *value.Value // symbol keys
	BufferSize          int
}

// SessionOptions tune an AMQP session.
type SessionOptions struct {
	IncomingWindow      uint32
	OutgoingWindow      uint32
	NextOutgoingID      uint32
	HandleMax           uint32
	OfferedCapabilities []string
	DesiredCapabilities []string
	Properties          *value.Value // symbol keys
	BufferSize          int
}

// SenderOptions tune a sending link.
type SenderOptions struct {
	Name                 string
	SenderSettleMode     *SenderSettleMode
	ReceiverSettleMode   *ReceiverSettleMode
	Source               *model.Source
	OfferedCapabilities  []string
	DesiredCapabilities  []string
	Properties           *value.Value // symbol keys
	InitialDeliveryCount uint32
	MaxMessageSize       uint64
}

// ReceiverOptions tune a receiving link and its pump.
type ReceiverOptions struct {
	Name               string
	ReceiverSettleMode *ReceiverSettleMode
	SenderSettleMode   *SenderSettleMode
	Target             *model.Target
	// Credit is the window the engine keeps topped up. ManualCredit turns
	// that off and credit must be issued with Receiver.IssueCredit.
	Credit       uint32
	ManualCredit bool
	// AutoAccept makes the pump accept every delivery before queueing it.
	AutoAccept      bool
	Properties      *value.Value // symbol keys
	ChannelCapacity int
}

// DefaultReceiverOptions returns the options a receiver attaches with when
// given none.
func DefaultReceiverOptions() *ReceiverOptions {
	return &ReceiverOptions{AutoAccept: true, ChannelCapacity: DefaultChannelCapacity}
}

// ─── builders ─────────────────────────────────────────────────────────────────

// optionsBuilder is the mutating builder shared by every option type: each
// setter edits the pending value and Build hands it over exactly once.
type optionsBuilder[T any] struct {
	opts  T
	built bool
}

func (b *optionsBuilder[T]) set(fn func(*T) error) error {
	if b.built {
		return model.ErrBuilderConsumed
	}
	return fn(&b.opts)
}

func (b *optionsBuilder[T]) build() (*T, error) {
	if b.built {
		return nil, model.ErrBuilderConsumed
	}
	b.built = true
	out := b.opts
	return &out, nil
}

// symbolProperties copies a property map whose keys must be symbols or
// strings; strings are promoted.
func symbolProperties(props *value.Value) (*value.Value, error) {
	m, err := model.SymbolMap(props, true)
	if err != nil {
		return nil, fmt.Errorf("%w: properties: %v", model.ErrInvalidArgument, err)
	}
	return m, nil
}

// ConnectionOptionsBuilder assembles ConnectionOptions.
type ConnectionOptionsBuilder struct{ b optionsBuilder[ConnectionOptions] }

func NewConnectionOptionsBuilder() *ConnectionOptionsBuilder { return &ConnectionOptionsBuilder{} }

func (cb *ConnectionOptionsBuilder) SetIdleTimeout(d time.Duration) error {
	return cb.b.set(func(o *ConnectionOptions) error {
		if d < 0 {
			return fmt.Errorf("%w: negative idle timeout", model.ErrInvalidArgument)
		}
		o.IdleTimeout = d
		return nil
	})
}

func (cb *ConnectionOptionsBuilder) SetMaxFrameSize(n uint32) error {
	return cb.b.set(func(o *ConnectionOptions) error {
		if n != 0 && n < 512 {
			return fmt.Errorf("%w: max frame size %d below the AMQP minimum of 512", model.ErrInvalidArgument, n)
		}
		o.MaxFrameSize = n
		return nil
	})
}

func (cb *ConnectionOptionsBuilder) SetChannelMax(n uint16) error {
	return cb.b.set(func(o *ConnectionOptions) error { o.ChannelMax = n; return nil })
}

func (cb *ConnectionOptionsBuilder) SetOutgoingLocales(locales []string) error {
	return cb.b.set(func(o *ConnectionOptions) error { o.OutgoingLocales = append([]string{}, locales...); return nil })
}

func (cb *ConnectionOptionsBuilder) SetIncomingLocales(locales []string) error {
	return cb.b.set(func(o *ConnectionOptions) error { o.IncomingLocales = append([]string{}, locales...); return nil })
}

func (cb *ConnectionOptionsBuilder) SetOfferedCapabilities(caps []string) error {
	return cb.b.set(func(o *ConnectionOptions) error { o.OfferedCapabilities = append([]string{}, caps...); return nil })
}

func (cb *ConnectionOptionsBuilder) SetDesiredCapabilities(caps []string) error {
	return cb.b.set(func(o *ConnectionOptions) error { o.DesiredCapabilities = append([]string{}, caps...); return nil })
}

func (cb *ConnectionOptionsBuilder) SetProperties(props *value.Value) error {
	return cb.b.set(func(o *ConnectionOptions) error {
		m, err := symbolProperties(props)
		if err != nil {
			return err
		}
		o.Properties = m
		return nil
	})
}

func (cb *ConnectionOptionsBuilder) SetBufferSize(n int) error {
	return cb.b.set(func(o *ConnectionOptions) error {
		if n < 0 {
			return fmt.Errorf("%w: negative buffer size", model.ErrInvalidArgument)
		}
		o.BufferSize = n
		return nil
	})
}

// Build returns the options and consumes the builder.
func (cb *ConnectionOptionsBuilder) Build() (*ConnectionOptions, error) { return cb.b.build() }

// SessionOptionsBuilder assembles SessionOptions.
type SessionOptionsBuilder struct{ b optionsBuilder[SessionOptions] }

func NewSessionOptionsBuilder() *SessionOptionsBuilder { return &SessionOptionsBuilder{} }

func (sb *SessionOptionsBuilder) SetIncomingWindow(n uint32) error {
	return sb.b.set(func(o *SessionOptions) error { o.IncomingWindow = n; return nil })
}

func (sb *SessionOptionsBuilder) SetOutgoingWindow(n uint32) error {
	return sb.b.set(func(o *SessionOptions) error { o.OutgoingWindow = n; return nil })
}

func (sb *SessionOptionsBuilder) SetNextOutgoingID(n uint32) error {
	return sb.b.set(func(o *SessionOptions) error { o.NextOutgoingID = n; return nil })
}

func (sb *SessionOptionsBuilder) SetHandleMax(n uint32) error {
	return sb.b.set(func(o *SessionOptions) error { o.HandleMax = n; return nil })
}

func (sb *SessionOptionsBuilder) SetOfferedCapabilities(caps []string) error {
	return sb.b.set(func(o *SessionOptions) error { o.OfferedCapabilities = append([]string{}, caps...); return nil })
}

func (sb *SessionOptionsBuilder) SetDesiredCapabilities(caps []string) error {
	return sb.b.set(func(o *SessionOptions) error { o.DesiredCapabilities = append([]string{}, caps...); return nil })
}

func (sb *SessionOptionsBuilder) SetProperties(props *value.Value) error {
	return sb.b.set(func(o *SessionOptions) error {
		m, err := symbolProperties(props)
		if err != nil {
			return err
		}
		o.Properties = m
		return nil
	})
}

func (sb *SessionOptionsBuilder) SetBufferSize(n int) error {
	return sb.b.set(func(o *SessionOptions) error {
		if n < 0 {
			return fmt.Errorf("%w: negative buffer size", model.ErrInvalidArgument)
		}
		o.BufferSize = n
		return nil
	})
}

// Build returns the options and consumes the builder.
func (sb *SessionOptionsBuilder) Build() (*SessionOptions, error) { return sb.b.build() }

// SenderOptionsBuilder assembles SenderOptions.
type SenderOptionsBuilder struct{ b optionsBuilder[SenderOptions] }

func NewSenderOptionsBuilder() *SenderOptionsBuilder { return &SenderOptionsBuilder{} }

func (sb *SenderOptionsBuilder) SetName(name string) error {
	return sb.b.set(func(o *SenderOptions) error { o.Name = name; return nil })
}

func (sb *SenderOptionsBuilder) SetSenderSettleMode(m SenderSettleMode) error {
	return sb.b.set(func(o *SenderOptions) error {
		if m > SenderSettleMixed {
			return fmt.Errorf("%w: sender settle mode %d", model.ErrInvalidArgument, m)
		}
		o.SenderSettleMode = &m
		return nil
	})
}

func (sb *SenderOptionsBuilder) SetReceiverSettleMode(m ReceiverSettleMode) error {
	return sb.b.set(func(o *SenderOptions) error {
		if m > ReceiverSettleSecond {
			return fmt.Errorf("%w: receiver settle mode %d", model.ErrInvalidArgument, m)
		}
		o.ReceiverSettleMode = &m
		return nil
	})
}

func (sb *SenderOptionsBuilder) SetSource(src *model.Source) error {
	return sb.b.set(func(o *SenderOptions) error {
		if src == nil {
			return fmt.Errorf("%w: nil source", model.ErrInvalidArgument)
		}
		o.Source = src.Clone()
		return nil
	})
}

func (sb *SenderOptionsBuilder) SetOfferedCapabilities(caps []string) error {
	return sb.b.set(func(o *SenderOptions) error { o.OfferedCapabilities = append([]string{}, caps...); return nil })
}

func (sb *SenderOptionsBuilder) SetDesiredCapabilities(caps []string) error {
	return sb.b.set(func(o *SenderOptions) error { o.DesiredCapabilities = append([]string{}, caps...); return nil })
}

func (sb *SenderOptionsBuilder) SetProperties(props *value.Value) error {
	return sb.b.set(func(o *SenderOptions) error {
		m, err := symbolProperties(props)
		if err != nil {
			return err
		}
		o.Properties = m
		return nil
	})
}

func (sb *SenderOptionsBuilder) SetInitialDeliveryCount(n uint32) error {
	return sb.b.set(func(o *SenderOptions) error { o.InitialDeliveryCount = n; return nil })
}

func (sb *SenderOptionsBuilder) SetMaxMessageSize(n uint64) error {
	return sb.b.set(func(o *SenderOptions) error { o.MaxMessageSize = n; return nil })
}

// Build returns the options and consumes the builder.
func (sb *SenderOptionsBuilder) Build() (*SenderOptions, error) { return sb.b.build() }

// ReceiverOptionsBuilder assembles ReceiverOptions, starting from
// DefaultReceiverOptions.
type ReceiverOptionsBuilder struct{ b optionsBuilder[ReceiverOptions] }

func NewReceiverOptionsBuilder() *ReceiverOptionsBuilder {
	return &ReceiverOptionsBuilder{b: optionsBuilder[ReceiverOptions]{opts: *DefaultReceiverOptions()}}
}

func (rb *ReceiverOptionsBuilder) SetName(name string) error {
	return rb.b.set(func(o *ReceiverOptions) error { o.Name = name; return nil })
}

func (rb *ReceiverOptionsBuilder) SetReceiverSettleMode(m ReceiverSettleMode) error {
	return rb.b.set(func(o *ReceiverOptions) error {
		if m > ReceiverSettleSecond {
			return fmt.Errorf("%w: receiver settle mode %d", model.ErrInvalidArgument, m)
		}
		o.ReceiverSettleMode = &m
		return nil
	})
}

func (rb *ReceiverOptionsBuilder) SetSenderSettleMode(m SenderSettleMode) error {
	return rb.b.set(func(o *ReceiverOptions) error {
		if m > SenderSettleMixed {
			return fmt.Errorf("%w: sender settle mode %d", model.ErrInvalidArgument, m)
		}
		o.SenderSettleMode = &m
		return nil
	})
}

func (rb *ReceiverOptionsBuilder) SetTarget(t *model.Target) error {
	return rb.b.set(func(o *ReceiverOptions) error {
		if t == nil {
			return fmt.Errorf("%w: nil target", model.ErrInvalidArgument)
		}
		o.Target = t.Clone()
		return nil
	})
}

// SetCreditModeAuto keeps credit topped up to credit outstanding deliveries.
func (rb *ReceiverOptionsBuilder) SetCreditModeAuto(credit uint32) error {
	return rb.b.set(func(o *ReceiverOptions) error {
		if credit == 0 {
			return fmt.Errorf("%w: auto credit must be positive", model.ErrInvalidArgument)
		}
		o.Credit, o.ManualCredit = credit, false
		return nil
	})
}

// SetCreditModeManual leaves credit to Receiver.IssueCredit.
func (rb *ReceiverOptionsBuilder) SetCreditModeManual() error {
	return rb.b.set(func(o *ReceiverOptions) error { o.Credit, o.ManualCredit = 0, true; return nil })
}

func (rb *ReceiverOptionsBuilder) SetAutoAccept(auto bool) error {
	return rb.b.set(func(o *ReceiverOptions) error { o.AutoAccept = auto; return nil })
}

func (rb *ReceiverOptionsBuilder) SetProperties(props *value.Value) error {
	return rb.b.set(func(o *ReceiverOptions) error {
		m, err := symbolProperties(props)
		if err != nil {
			return err
		}
		o.Properties = m
		return nil
	})
}

func (rb *ReceiverOptionsBuilder) SetChannelCapacity(n int) error {
	return rb.b.set(func(o *ReceiverOptions) error {
		if n < 1 {
			return fmt.Errorf("%w: channel capacity must be positive", model.ErrInvalidArgument)
		}
		o.ChannelCapacity = n
		return nil
	})
}

// Build returns the options and consumes the builder.
func (rb *ReceiverOptionsBuilder) Build() (*ReceiverOptions, error) { return rb.b.build() }
