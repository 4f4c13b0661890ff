package bridge_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/snehjoshi/amqpbridge/pkg/bridge"
	"github.com/snehjoshi/amqpbridge/pkg/model"
	"github.com/snehjoshi/amqpbridge/pkg/value"
)

var errLinkDetached = errors.New("fake: link detached by peer")

// ─── fake engine ──────────────────────────────────────────────────────────────

type fakeEngine struct {
	dialErr error

	mu          sync.Mutex
	url         string
	containerID string
	opts        *bridge.ConnectionOptions
	conn        *fakeConn
}

func (e *fakeEngine) Dial(_ context.Context, url, containerID string, opts *bridge.ConnectionOptions) (bridge.EngineConn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dialErr != nil {
		return nil, e.dialErr
	}
	e.url, e.containerID, e.opts = url, containerID, opts
	e.conn = &fakeConn{session: newFakeSession()}
	return e.conn, nil
}

type fakeConn struct {
	session *fakeSession

	mu     sync.Mutex
	closed bool
	cond   *bridge.ErrorCondition
}

func (c *fakeConn) NewSession(context.Context, *bridge.SessionOptions) (bridge.EngineSession, error) {
	return c.session, nil
}

func (c *fakeConn) Close(_ context.Context, cond *bridge.ErrorCondition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed, c.cond = true, cond
	return nil
}

type fakeSession struct {
	attachErr error
	// receiver is handed to the next NewReceiver call when set.
	receiver *fakeReceiver
	// respond turns a sent request into a reply for the management tests.
	respond func(req *model.Message) *model.Message

	mu       sync.Mutex
	senders  []*fakeSender
	sources  []*model.Source
	recvOpts []*bridge.ReceiverOptions
	closed   bool
}

func newFakeSession() *fakeSession { return &fakeSession{} }

func (s *fakeSession) NewSender(_ context.Context, target *model.Target, opts *bridge.SenderOptions) (bridge.EngineSender, error) {
	if s.attachErr != nil {
		return nil, s.attachErr
	}
	addr, _ := target.Address()
	snd := &fakeSender{name: "sender-" + addr, session: s, max: 1 << 20}
	s.mu.Lock()
	s.senders = append(s.senders, snd)
	s.mu.Unlock()
	return snd, nil
}

func (s *fakeSession) NewReceiver(_ context.Context, source *model.Source, opts *bridge.ReceiverOptions) (bridge.EngineReceiver, error) {
	if s.attachErr != nil {
		return nil, s.attachErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources = append(s.sources, source)
	s.recvOpts = append(s.recvOpts, opts)
	r := s.receiver
	if r == nil {
		r = newFakeReceiver("receiver")
	}
	s.receiver = r
	return r, nil
}

func (s *fakeSession) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type fakeSender struct {
	name    string
	session *fakeSession
	max     uint64
	sendErr error

	mu     sync.Mutex
	sent   []*model.Message
	closed bool
}

func (s *fakeSender) Send(_ context.Context, msg *model.Message) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	if s.session.respond != nil {
		if reply := s.session.respond(msg); reply != nil {
			s.session.receiver.push(reply)
		}
	}
	return nil
}

func (s *fakeSender) MaxMessageSize() uint64 { return s.max }
func (s *fakeSender) LinkName() string       { return s.name }

func (s *fakeSender) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type fakeReceiver struct {
	name       string
	deliveries chan *fakeDelivery
	credit     atomic.Int64
	closed     atomic.Bool
	closeErr   error
}

func newFakeReceiver(name string) *fakeReceiver {
	return &fakeReceiver{name: name, deliveries: make(chan *fakeDelivery, 64)}
}

func (r *fakeReceiver) push(msg *model.Message) *fakeDelivery {
	d := &fakeDelivery{msg: msg}
	r.deliveries <- d
	return d
}

// fail makes the next Receive return err.
func (r *fakeReceiver) fail(err error) { r.deliveries <- &fakeDelivery{err: err} }

func (r *fakeReceiver) Receive(ctx context.Context) (bridge.Delivery, error) {
	select {
	case d := <-r.deliveries:
		if d.err != nil {
			return nil, d.err
		}
		return d, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *fakeReceiver) IssueCredit(n uint32) error {
	r.credit.Add(int64(n))
	return nil
}

func (r *fakeReceiver) LinkName() string { return r.name }

func (r *fakeReceiver) Close(context.Context) error {
	r.closed.Store(true)
	return r.closeErr
}

type fakeDelivery struct {
	msg      *model.Message
	err      error
	accepted atomic.Bool
}

func (d *fakeDelivery) Message() *model.Message { return d.msg }

func (d *fakeDelivery) Accept(context.Context) error {
	d.accepted.Store(true)
	return nil
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func newCallContext(t *testing.T) *bridge.CallContext {
	t.Helper()
	s, err := bridge.NewScheduler(bridge.WithWorkers(4))
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	t.Cleanup(s.Close)
	return bridge.NewCallContext(s)
}

// openSession returns a begun session on a fresh fake engine.
func openSession(t *testing.T, cc *bridge.CallContext) (*bridge.Session, *fakeEngine) {
	t.Helper()
	e := &fakeEngine{}
	conn := bridge.NewConnection(e)
	if err := conn.Open(cc, "amqp://localhost:5672", "container-1", nil); err != nil {
		t.Fatalf("Open: %v", err)
	}
	sess := bridge.NewSession()
	if err := sess.Begin(cc, conn, nil); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	return sess, e
}

func newSource(t *testing.T, address string) *model.Source {
	t.Helper()
	b := model.NewSourceBuilder()
	if err := b.SetAddress(address); err != nil {
		t.Fatal(err)
	}
	src, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	return src
}

func newTarget(t *testing.T, address string) *model.Target {
	t.Helper()
	b := model.NewTargetBuilder()
	if err := b.SetAddress(address); err != nil {
		t.Fatal(err)
	}
	tgt, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	return tgt
}

func textMessage(t *testing.T, body string) *model.Message {
	t.Helper()
	b := model.NewMessageBuilder()
	if err := b.SetValue(value.String(body)); err != nil {
		t.Fatal(err)
	}
	msg, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	return msg
}

func bodyOf(t *testing.T, msg *model.Message) string {
	t.Helper()
	v, ok := msg.Value()
	if !ok {
		t.Fatalf("message has no value body")
	}
	s, ok := v.AsString()
	if !ok {
		t.Fatalf("want string body, got %s", v.Kind())
	}
	return s
}
