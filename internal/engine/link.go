package engine

import (
	"context"
	"fmt"

	"github.com/Azure/go-amqp"
	"go.uber.org/zap"

	"github.com/snehjoshi/amqpbridge/pkg/bridge"
	"github.com/snehjoshi/amqpbridge/pkg/model"
	"github.com/snehjoshi/amqpbridge/pkg/value"
)

var (
	senderSettle = map[bridge.SenderSettleMode]amqp.SenderSettleMode{
		bridge.SenderSettleUnsettled: amqp.SenderSettleModeUnsettled,
		bridge.SenderSettleSettled:   amqp.SenderSettleModeSettled,
		bridge.SenderSettleMixed:     amqp.SenderSettleModeMixed,
	}
	receiverSettle = map[bridge.ReceiverSettleMode]amqp.ReceiverSettleMode{
		bridge.ReceiverSettleFirst:  amqp.ReceiverSettleModeFirst,
		bridge.ReceiverSettleSecond: amqp.ReceiverSettleModeSecond,
	}
	durabilities = map[model.TerminusDurability]amqp.Durability{
		model.DurabilityNone:           amqp.DurabilityNone,
		model.DurabilityConfiguration:  amqp.DurabilityConfiguration,
		model.DurabilityUnsettledState: amqp.DurabilityUnsettledState,
	}
	expiryPolicies = map[model.ExpiryPolicy]amqp.ExpiryPolicy{
		model.ExpiryLinkDetach:      amqp.ExpiryPolicyLinkDetach,
		model.ExpirySessionEnd:      amqp.ExpiryPolicySessionEnd,
		model.ExpiryConnectionClose: amqp.ExpiryPolicyConnectionClose,
		model.ExpiryNever:           amqp.ExpiryPolicyNever,
	}
)

// ─── sender ───────────────────────────────────────────────────────────────────

func (s *session) NewSender(ctx context.Context, target *model.Target, opts *bridge.SenderOptions) (bridge.EngineSender, error) {
	addr, _ := target.Address()
	so := &amqp.SenderOptions{
		Capabilities:   target.Capabilities(),
		Durability:     durabilities[target.Durable()],
		DynamicAddress: target.Dynamic(),
		ExpiryPolicy:   expiryPolicies[target.ExpiryPolicy()],
		ExpiryTimeout:  target.Timeout(),
	}
	if opts != nil {
		so.Name = opts.Name
		if opts.SenderSettleMode != nil {
			so.SettlementMode = senderSettle[*opts.SenderSettleMode].Ptr()
		}
		if opts.ReceiverSettleMode != nil {
			so.RequestedReceiverSettleMode = receiverSettle[*opts.ReceiverSettleMode].Ptr()
		}
		if opts.Source != nil {
			so.SourceAddress, _ = opts.Source.Address()
		}
		props, err := symbolKeyed(opts.Properties)
		if err != nil {
			return nil, fmt.Errorf("engine: sender properties: %w", err)
		}
		so.Properties = props
		logIgnored(s.log, "sender",
			len(opts.OfferedCapabilities) > 0, "offered_capabilities",
			len(opts.DesiredCapabilities) > 0, "desired_capabilities",
			opts.InitialDeliveryCount > 0, "initial_delivery_count",
			opts.MaxMessageSize > 0, "max_message_size",
		)
	}
	snd, err := s.s.NewSender(ctx, addr, so)
	if err != nil {
		return nil, err
	}
	return &sender{s: snd}, nil
}

type sender struct {
	s *amqp.Sender
}

func (s *sender) Send(ctx context.Context, msg *model.Message) error {
	m, err := toMessage(msg)
	if err != nil {
		return err
	}
	return s.s.Send(ctx, m, nil)
}

func (s *sender) MaxMessageSize() uint64           { return s.s.MaxMessageSize() }
func (s *sender) LinkName() string                 { return s.s.LinkName() }
func (s *sender) Close(ctx context.Context) error { return s.s.Close(ctx) }

// ─── receiver ─────────────────────────────────────────────────────────────────

func (s *session) NewReceiver(ctx context.Context, source *model.Source, opts *bridge.ReceiverOptions) (bridge.EngineReceiver, error) {
	addr, _ := source.Address()
	ro := &amqp.ReceiverOptions{
		Capabilities:   source.Capabilities(),
		Durability:     durabilities[source.Durable()],
		DynamicAddress: source.Dynamic(),
		ExpiryPolicy:   expiryPolicies[source.ExpiryPolicy()],
		ExpiryTimeout:  source.Timeout(),
	}
	if f, ok := source.Filter(); ok {
		filters, err := linkFilters(f)
		if err != nil {
			return nil, fmt.Errorf("engine: source filter: %w", err)
		}
		ro.Filters = filters
	}
	if opts != nil {
		ro.Name = opts.Name
		switch {
		case opts.ManualCredit:
			ro.Credit = -1
		case opts.Credit > 0:
			ro.Credit = int32(min(opts.Credit, 1<<31-1))
		}
		if opts.ReceiverSettleMode != nil {
			ro.SettlementMode = receiverSettle[*opts.ReceiverSettleMode].Ptr()
		}
		if opts.SenderSettleMode != nil {
			ro.RequestedSenderSettleMode = senderSettle[*opts.SenderSettleMode].Ptr()
		}
		if opts.Target != nil {
			ro.TargetAddress, _ = opts.Target.Address()
		}
		props, err := symbolKeyed(opts.Properties)
		if err != nil {
			return nil, fmt.Errorf("engine: receiver properties: %w", err)
		}
		ro.Properties = props
	}
	r, err := s.s.NewReceiver(ctx, addr, ro)
	if err != nil {
		return nil, err
	}
	return &receiver{r: r, log: s.log}, nil
}

// linkFilters turns a source filter map into go-amqp filters. Every entry
// must be a described value with a numeric descriptor.
func linkFilters(f *value.Value) ([]amqp.LinkFilter, error) {
	var out []amqp.LinkFilter
	err := f.Range(func(k, v *value.Value) error {
		name, _ := k.AsSymbol()
		code, ok := v.DescriptorCode()
		if !ok {
			return fmt.Errorf("%w: filter %q needs a numeric descriptor", value.ErrUnsupported, name)
		}
		inner, err := v.DescribedValue()
		if err != nil {
			return fmt.Errorf("%w: filter %q: %v", value.ErrUnsupported, name, err)
		}
		a, err := toAny(inner)
		if err != nil {
			return fmt.Errorf("filter %q: %w", name, err)
		}
		out = append(out, amqp.NewLinkFilter(name, code, a))
		return nil
	})
	return out, err
}

type receiver struct {
	r   *amqp.Receiver
	log *zap.Logger
}

func (r *receiver) Receive(ctx context.Context) (bridge.Delivery, error) {
	raw, err := r.r.Receive(ctx, nil)
	if err != nil {
		return nil, err
	}
	msg, err := fromMessage(raw)
	if err != nil {
		if rerr := r.r.ReleaseMessage(ctx, raw); rerr != nil {
			r.log.Warn("release of undecodable message failed", zap.Error(rerr))
		}
		return nil, fmt.Errorf("engine: decode delivery: %w", err)
	}
	return &delivery{r: r.r, raw: raw, msg: msg}, nil
}

func (r *receiver) IssueCredit(n uint32) error      { return r.r.IssueCredit(n) }
func (r *receiver) LinkName() string                { return r.r.LinkName() }
func (r *receiver) Close(ctx context.Context) error { return r.r.Close(ctx) }

type delivery struct {
	r   *amqp.Receiver
	raw *amqp.Message
	msg *model.Message
}

func (d *delivery) Message() *model.Message { return d.msg }

func (d *delivery) Accept(ctx context.Context) error { return d.r.AcceptMessage(ctx, d.raw) }
