package capi

import (
	"errors"
	"time"

	"github.com/snehjoshi/amqpbridge/pkg/bridge"
	"github.com/snehjoshi/amqpbridge/pkg/model"
)

// ─── sender ───────────────────────────────────────────────────────────────────

func SenderCreate() Handle { return newHandle(bridge.NewSender()) }

// SenderAttach attaches toward target on a begun session. opts may be Null.
func SenderAttach(ctx, snd, sess, target, opts Handle) Status {
	const op = "sender.attach"
	return onObject(ctx, snd, op, "sender", func(cc *bridge.CallContext, s *bridge.Sender) error {
		se, ok := lookup[*bridge.Session](sess)
		if !ok {
			return record(cc, invalid(op, "session", sess))
		}
		t, ok := lookup[*model.Target](target)
		if !ok {
			return record(cc, invalid(op, "target", target))
		}
		o, ok := optional[*bridge.SenderOptions](opts)
		if !ok {
			return record(cc, invalid(op, "sender options", opts))
		}
		return s.Attach(cc, se, t, o)
	})
}

// SenderSend sends msg, which stays owned by the caller, and waits for the
// peer to settle it.
func SenderSend(ctx, snd, msg Handle) Status {
	const op = "sender.send"
	return onObject(ctx, snd, op, "sender", func(cc *bridge.CallContext, s *bridge.Sender) error {
		m, ok := lookup[*model.Message](msg)
		if !ok {
			return record(cc, invalid(op, "message", msg))
		}
		return s.Send(cc, m)
	})
}

// SenderGetMaxMessageSize returns the peer's limit; 0 means unlimited.
func SenderGetMaxMessageSize(ctx, snd Handle) (uint64, Status) {
	var n uint64
	st := onObject(ctx, snd, "sender.max_message_size", "sender", func(cc *bridge.CallContext, s *bridge.Sender) error {
		var err error
		n, err = s.MaxMessageSize(cc)
		return err
	})
	return n, st
}

// SenderDetachAndRelease detaches the link and consumes snd, whatever the
// outcome of the detach.
func SenderDetachAndRelease(ctx, snd Handle) Status {
	st := onObject(ctx, snd, "sender.detach", "sender", func(cc *bridge.CallContext, s *bridge.Sender) error {
		return s.DetachAndRelease(cc)
	})
	if _, ok := callContext(ctx); ok {
		take[*bridge.Sender](snd)
	}
	return st
}

// ─── receiver ─────────────────────────────────────────────────────────────────

func ReceiverCreate() Handle { return newHandle(bridge.NewReceiver()) }

// ReceiverAttach attaches from source on a begun session and starts the
// receive pump. opts may be Null.
func ReceiverAttach(ctx, rcv, sess, source, opts Handle) Status {
	const op = "receiver.attach"
	return onObject(ctx, rcv, op, "receiver", func(cc *bridge.CallContext, r *bridge.Receiver) error {
		se, ok := lookup[*bridge.Session](sess)
		if !ok {
			return record(cc, invalid(op, "session", sess))
		}
		src, ok := lookup[*model.Source](source)
		if !ok {
			return record(cc, invalid(op, "source", source))
		}
		o, ok := optional[*bridge.ReceiverOptions](opts)
		if !ok {
			return record(cc, invalid(op, "receiver options", opts))
		}
		return r.Attach(cc, se, src, o)
	})
}

// receive runs one of the receiver's draining calls and wraps its message.
func receive(ctx, rcv Handle, op string, fn func(*bridge.Receiver, *bridge.CallContext) (*model.Message, error)) (Handle, Status) {
	out := Null
	st := onObject(ctx, rcv, op, "receiver", func(cc *bridge.CallContext, r *bridge.Receiver) error {
		msg, err := fn(r, cc)
		if err != nil {
			return err
		}
		if msg != nil {
			out = newHandle(msg)
		}
		return nil
	})
	return out, st
}

// ReceiverPoll returns the next queued message without blocking. It returns
// Null and StatusOK when nothing is queued.
func ReceiverPoll(ctx, rcv Handle) (Handle, Status) {
	return receive(ctx, rcv, "receiver.poll", (*bridge.Receiver).Poll)
}

// ReceiverWait blocks until a message arrives or the pump stops.
func ReceiverWait(ctx, rcv Handle) (Handle, Status) {
	return receive(ctx, rcv, "receiver.wait", (*bridge.Receiver).Wait)
}

// ReceiverWaitTimeout is ReceiverWait bounded by ms milliseconds. It returns
// Null and StatusOK on timeout.
func ReceiverWaitTimeout(ctx, rcv Handle, ms uint32) (Handle, Status) {
	return receive(ctx, rcv, "receiver.wait", func(r *bridge.Receiver, cc *bridge.CallContext) (*model.Message, error) {
		return r.WaitTimeout(cc, time.Duration(ms)*time.Millisecond)
	})
}

// ReceiverAccept settles msg on a receiver attached without auto-accept.
func ReceiverAccept(ctx, rcv, msg Handle) Status {
	const op = "receiver.accept"
	return onObject(ctx, rcv, op, "receiver", func(cc *bridge.CallContext, r *bridge.Receiver) error {
		m, ok := lookup[*model.Message](msg)
		if !ok {
			return record(cc, invalid(op, "message", msg))
		}
		return r.Accept(cc, m)
	})
}

// ReceiverIssueCredit grants n more deliveries on a manual-credit receiver.
func ReceiverIssueCredit(ctx, rcv Handle, n uint32) Status {
	return onObject(ctx, rcv, "receiver.issue_credit", "receiver", func(cc *bridge.CallContext, r *bridge.Receiver) error {
		return r.IssueCredit(cc, n)
	})
}

// ReceiverRetainLink returns a link reference handle. The receiver cannot
// be detached until it is released with LinkRefRelease.
func ReceiverRetainLink(ctx, rcv Handle) Handle {
	out := Null
	onObject(ctx, rcv, "receiver.retain", "receiver", func(cc *bridge.CallContext, r *bridge.Receiver) error {
		ref, err := r.Retain()
		if err != nil {
			return record(cc, err)
		}
		out = newHandle(ref)
		return nil
	})
	return out
}

// LinkRefGetName returns the name of the referenced link.
func LinkRefGetName(ref Handle) (string, Status) {
	return field(ref, (*bridge.LinkRef).LinkName)
}

// LinkRefRelease consumes ref.
func LinkRefRelease(ref Handle) {
	defer func() { _ = recover() }()
	if r, ok := take[*bridge.LinkRef](ref); ok {
		r.Release()
	}
}

// ReceiverDetachAndRelease stops the pump and detaches the link. rcv is
// consumed unless a link reference is still held, in which case the call
// fails and rcv stays valid for a retry.
func ReceiverDetachAndRelease(ctx, rcv Handle) Status {
	var shared bool
	st := onObject(ctx, rcv, "receiver.detach", "receiver", func(cc *bridge.CallContext, r *bridge.Receiver) error {
		err := r.DetachAndRelease(cc)
		shared = errors.Is(err, bridge.ErrStillShared)
		return err
	})
	if _, ok := callContext(ctx); ok && !shared {
		take[*bridge.Receiver](rcv)
	}
	return st
}
