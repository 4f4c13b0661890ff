package bridge

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/snehjoshi/amqpbridge/pkg/model"
)

// Sender is a sending link handle. Attach it once, send on it, then
// DetachAndRelease it.
type Sender struct {
	mu       sync.Mutex
	link     EngineSender
	released bool
}

// NewSender returns an unattached sender.
func NewSender() *Sender { return &Sender{} }

// Attach attaches the link on session toward target. opts may be nil.
func (s *Sender) Attach(cc *CallContext, session *Session, target *model.Target, opts *SenderOptions) error {
	const op = "sender.attach"
	if session == nil || target == nil {
		return cc.fail(op, argumentError(op, "nil session or target"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.released:
		return cc.fail(op, lifecycleError(op, ErrReleased))
	case s.link != nil:
		return cc.fail(op, lifecycleError(op, ErrAlreadyAttached))
	}
	es, err := session.engineSession(op)
	if err != nil {
		return cc.fail(op, err)
	}
	if opts == nil {
		opts = &SenderOptions{}
	}
	link, err := call(cc, op, func(ctx context.Context) (EngineSender, error) {
		return es.NewSender(ctx, target, opts)
	})
	if err != nil {
		return err
	}
	s.link = link
	addr, _ := target.Address()
	cc.log().Debug("sender attached", zap.String("link", link.LinkName()), zap.String("target", addr))
	return nil
}

func (s *Sender) attached(op string) (EngineSender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.released:
		return nil, lifecycleError(op, ErrReleased)
	case s.link == nil:
		return nil, lifecycleError(op, ErrNotAttached)
	}
	return s.link, nil
}

// Send transfers msg and waits for the peer to settle it.
func (s *Sender) Send(cc *CallContext, msg *model.Message) error {
	const op = "sender.send"
	if msg == nil {
		return cc.fail(op, argumentError(op, "nil message"))
	}
	link, err := s.attached(op)
	if err != nil {
		return cc.fail(op, err)
	}
	if err := exec(cc, op, func(ctx context.Context) error { return link.Send(ctx, msg) }); err != nil {
		return err
	}
	cc.s.metrics.Sent.Inc(link.LinkName())
	return nil
}

// MaxMessageSize returns the largest message the peer accepts on this link.
// Zero means no limit.
func (s *Sender) MaxMessageSize(cc *CallContext) (uint64, error) {
	const op = "sender.max_message_size"
	link, err := s.attached(op)
	if err != nil {
		return 0, cc.fail(op, err)
	}
	return link.MaxMessageSize(), nil
}

// DetachAndRelease detaches the link. The handle is released even when the
// engine reports a detach error.
func (s *Sender) DetachAndRelease(cc *CallContext) error {
	const op = "sender.detach"
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return cc.fail(op, lifecycleError(op, ErrReleased))
	}
	s.released = true
	link := s.link
	s.link = nil
	if link == nil {
		return nil
	}
	return detach(cc, op, link.Close)
}

// Discard releases the sender without a call context, closing its link.
func (s *Sender) Discard() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true
	link := s.link
	s.link = nil
	if link == nil {
		return nil
	}
	return closeOutside(link.Close)
}
