package bridge

import (
	"context"
	"sync"
)

// Session is an AMQP session handle.
type Session struct {
	mu   sync.Mutex
	sess EngineSession
}

// NewSession returns a session that has not begun.
func NewSession() *Session { return &Session{} }

// Begin starts the session on conn. opts may be nil.
func (s *Session) Begin(cc *CallContext, conn *Connection, opts *SessionOptions) error {
	const op = "session.begin"
	if conn == nil {
		return cc.fail(op, argumentError(op, "nil connection"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess != nil {
		return cc.fail(op, lifecycleError(op, ErrAlreadyOpen))
	}
	ec, err := conn.engineConn(op)
	if err != nil {
		return cc.fail(op, err)
	}
	if opts == nil {
		opts = &SessionOptions{}
	}
	sess, err := call(cc, op, func(ctx context.Context) (EngineSession, error) {
		return ec.NewSession(ctx, opts)
	})
	if err != nil {
		return err
	}
	s.sess = sess
	return nil
}

// End ends the session.
func (s *Session) End(cc *CallContext) error {
	const op = "session.end"
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return cc.fail(op, lifecycleError(op, ErrNotOpen))
	}
	sess := s.sess
	s.sess = nil
	return detach(cc, op, sess.Close)
}

// Discard ends a begun session without a call context.
func (s *Session) Discard() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return nil
	}
	sess := s.sess
	s.sess = nil
	return closeOutside(sess.Close)
}

func (s *Session) engineSession(op string) (EngineSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return nil, lifecycleError(op, ErrNotOpen)
	}
	return s.sess, nil
}
