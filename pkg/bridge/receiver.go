package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/snehjoshi/amqpbridge/internal/metrics"
	"github.com/snehjoshi/amqpbridge/pkg/model"
)

// Receiver is a receiving link plus the pump that feeds it to synchronous
// callers.
//
// Attach spawns a background task that receives deliveries, accepts them
// when AutoAccept is set, and queues the messages on a bounded channel. The
// first receive error is queued too and the task exits; it never retries.
// Poll and Wait drain the channel. Once the task has exited and the channel
// is empty they report ErrPumpStopped.
//
// DetachAndRelease stops the task, joins it, and detaches the link only when
// no LinkRef obtained through Retain is still held.
type Receiver struct {
	mu       sync.Mutex
	link     *sharedLink
	ch       chan pumped
	task     *Task
	manual   bool
	released bool

	// unsettled holds deliveries the pump did not accept, keyed by message.
	unsettled sync.Map
}

type pumped struct {
	msg *model.Message
	err error
}

// sharedLink counts the holders of an engine receiver. The Receiver holds
// one reference and the pump task another while it runs.
type sharedLink struct {
	r    EngineReceiver
	refs atomic.Int32

	// orphaned is set once the owning Receiver is discarded. Whoever then
	// drops the last reference closes the link.
	orphaned  atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func (l *sharedLink) closeOutside() error {
	l.closeOnce.Do(func() { l.closeErr = closeOutside(l.r.Close) })
	return l.closeErr
}

// drop gives up the owner's reference.
func (l *sharedLink) drop() error {
	l.orphaned.Store(true)
	if l.refs.Add(-1) == 0 {
		return l.closeOutside()
	}
	return nil
}

// LinkRef is an extra reference to a receiver's link. While any LinkRef is
// unreleased the link cannot be detached.
type LinkRef struct {
	link *sharedLink
	once sync.Once
}

// LinkName returns the name of the referenced link.
func (r *LinkRef) LinkName() string { return r.link.r.LinkName() }

// Release drops the reference. Calling it again does nothing.
func (r *LinkRef) Release() {
	r.once.Do(func() {
		if r.link.refs.Add(-1) == 0 && r.link.orphaned.Load() {
			_ = r.link.closeOutside()
		}
	})
}

// NewReceiver returns an unattached receiver.
func NewReceiver() *Receiver { return &Receiver{} }

// Attach attaches the link on session from source and starts the pump. opts
// may be nil, meaning DefaultReceiverOptions. On failure no task or channel
// is created and the receiver stays unattached.
func (r *Receiver) Attach(cc *CallContext, session *Session, source *model.Source, opts *ReceiverOptions) error {
	const op = "receiver.attach"
	if session == nil || source == nil {
		return cc.fail(op, argumentError(op, "nil session or source"))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.released:
		return cc.fail(op, lifecycleError(op, ErrReleased))
	case r.link != nil:
		return cc.fail(op, lifecycleError(op, ErrAlreadyAttached))
	}
	es, err := session.engineSession(op)
	if err != nil {
		return cc.fail(op, err)
	}
	if opts == nil {
		opts = DefaultReceiverOptions()
	}
	capacity := opts.ChannelCapacity
	if capacity < 1 {
		capacity = DefaultChannelCapacity
	}

	er, err := call(cc, op, func(ctx context.Context) (EngineReceiver, error) {
		return es.NewReceiver(ctx, source, opts)
	})
	if err != nil {
		return err
	}

	link := &sharedLink{r: er}
	link.refs.Store(2)
	ch := make(chan pumped, capacity)
	p := &pump{
		link:       link,
		ch:         ch,
		autoAccept: opts.AutoAccept,
		unsettled:  &r.unsettled,
		log:        cc.log().With(zap.String("link", er.LinkName())),
		metrics:    cc.s.metrics,
	}
	task, err := cc.s.Spawn("receiver.pump", p.run)
	if err != nil {
		_ = er.Close(context.Background())
		return cc.fail(op, err)
	}
	r.link, r.ch, r.task, r.manual = link, ch, task, opts.ManualCredit
	cc.log().Debug("receiver attached", zap.String("link", er.LinkName()), zap.Int("capacity", capacity))
	return nil
}

type pump struct {
	link       *sharedLink
	ch         chan<- pumped
	autoAccept bool
	unsettled  *sync.Map
	log        *zap.Logger
	metrics    *metrics.Registry
}

func (p *pump) run(ctx context.Context) {
	defer p.link.refs.Add(-1)
	defer close(p.ch)
	name := p.link.r.LinkName()
	for {
		d, err := p.link.r.Receive(ctx)
		if err == nil && p.autoAccept {
			err = d.Accept(ctx)
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.metrics.PumpErrors.Inc(name)
			p.log.Warn("receive pump stopped", zap.Error(err))
			select {
			case p.ch <- pumped{err: err}:
			case <-ctx.Done():
			}
			return
		}
		msg := d.Message()
		if !p.autoAccept {
			p.unsettled.Store(msg, d)
		}
		select {
		case p.ch <- pumped{msg: msg}:
			p.metrics.Pumped.Inc(name)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Receiver) channel(op string) (<-chan pumped, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.released:
		return nil, lifecycleError(op, ErrReleased)
	case r.ch == nil:
		return nil, lifecycleError(op, ErrNotAttached)
	}
	return r.ch, nil
}

func (r *Receiver) take(cc *CallContext, op string, p pumped, ok bool) (*model.Message, error) {
	if !ok {
		return nil, cc.fail(op, lifecycleError(op, ErrPumpStopped))
	}
	if p.err != nil {
		return nil, cc.fail(op, p.err)
	}
	return p.msg, nil
}

// Poll returns the next queued message without blocking. It returns nil and
// no error when nothing is queued, leaving the error slot untouched.
func (r *Receiver) Poll(cc *CallContext) (*model.Message, error) {
	const op = "receiver.poll"
	ch, err := r.channel(op)
	if err != nil {
		return nil, cc.fail(op, err)
	}
	select {
	case p, ok := <-ch:
		return r.take(cc, op, p, ok)
	default:
		return nil, nil
	}
}

// Wait blocks until a message or the pump's error is queued.
func (r *Receiver) Wait(cc *CallContext) (*model.Message, error) {
	const op = "receiver.wait"
	ch, err := r.channel(op)
	if err != nil {
		return nil, cc.fail(op, err)
	}
	p, ok := <-ch
	return r.take(cc, op, p, ok)
}

// WaitTimeout is Wait bounded by d. It returns nil and no error on timeout.
func (r *Receiver) WaitTimeout(cc *CallContext, d time.Duration) (*model.Message, error) {
	const op = "receiver.wait"
	ch, err := r.channel(op)
	if err != nil {
		return nil, cc.fail(op, err)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case p, ok := <-ch:
		return r.take(cc, op, p, ok)
	case <-timer.C:
		return nil, nil
	}
}

// Accept settles msg when the receiver was attached without AutoAccept. msg
// must have come from this receiver's Poll or Wait.
func (r *Receiver) Accept(cc *CallContext, msg *model.Message) error {
	const op = "receiver.accept"
	if _, err := r.channel(op); err != nil {
		return cc.fail(op, err)
	}
	d, ok := r.unsettled.LoadAndDelete(msg)
	if !ok {
		return cc.fail(op, argumentError(op, "message is not an unsettled delivery of this receiver"))
	}
	return exec(cc, op, d.(Delivery).Accept)
}

// IssueCredit grants the peer n more deliveries. Only receivers attached
// with ManualCredit take explicit credit.
func (r *Receiver) IssueCredit(cc *CallContext, n uint32) error {
	const op = "receiver.issue_credit"
	r.mu.Lock()
	link, manual := r.link, r.manual
	released := r.released
	r.mu.Unlock()
	switch {
	case released:
		return cc.fail(op, lifecycleError(op, ErrReleased))
	case link == nil:
		return cc.fail(op, lifecycleError(op, ErrNotAttached))
	case !manual:
		return cc.fail(op, argumentError(op, "receiver manages its own credit"))
	case n == 0:
		return cc.fail(op, argumentError(op, "credit must be positive"))
	}
	return exec(cc, op, func(context.Context) error { return link.r.IssueCredit(n) })
}

// Retain returns a new reference to the attached link. Detach is refused
// until it is released.
func (r *Receiver) Retain() (*LinkRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.link == nil {
		return nil, lifecycleError("receiver.retain", ErrNotAttached)
	}
	r.link.refs.Add(1)
	return &LinkRef{link: r.link}, nil
}

// DetachAndRelease stops the pump, waits for it to exit, and detaches the
// link. When another reference to the link is still held it fails with
// ErrStillShared and the receiver is not released: the caller keeps it and
// may retry. The pump stays stopped either way. Any other outcome releases
// the receiver, including an engine detach error.
func (r *Receiver) DetachAndRelease(cc *CallContext) error {
	const op = "receiver.detach"
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return cc.fail(op, lifecycleError(op, ErrReleased))
	}
	if r.link == nil {
		r.released = true
		return nil
	}
	r.task.Abort()
	<-r.task.Done()
	if n := r.link.refs.Load(); n != 1 {
		cc.log().Debug("detach refused", zap.String("link", r.link.r.LinkName()), zap.Int32("refs", n))
		return cc.fail(op, lifecycleError(op, ErrStillShared))
	}
	link := r.link
	r.link, r.task, r.released = nil, nil, true
	r.unsettled.Clear()
	return detach(cc, op, link.r.Close)
}

// Discard releases the receiver without a call context. It stops and joins
// the pump like DetachAndRelease, then closes the link, or leaves that to
// the last outstanding LinkRef's Release. Discarding a released receiver
// does nothing.
func (r *Receiver) Discard() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return nil
	}
	r.released = true
	if r.link == nil {
		return nil
	}
	r.task.Abort()
	<-r.task.Done()
	link := r.link
	r.link, r.task = nil, nil
	r.unsettled.Clear()
	return link.drop()
}
