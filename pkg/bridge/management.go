package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/snehjoshi/amqpbridge/internal/node"
	"github.com/snehjoshi/amqpbridge/pkg/model"
	"github.com/snehjoshi/amqpbridge/pkg/value"
)

// DefaultManagementNode is the address management requests go to.
const DefaultManagementNode = "$management"

// ErrManagementStatus is wrapped by every non-2xx management response.
var ErrManagementStatus = errors.New("bridge: management request failed")

// ManagementRequest is one request to a management node.
type ManagementRequest struct {
	Operation string
	Type      string
	Locales   string
	// Body is sent as an AMQP value section. It may be nil.
	Body *value.Value
	// ApplicationProperties are merged under the operation, type and
	// locales entries. Keys must be strings.
	ApplicationProperties *value.Value
}

// ManagementResponse is a successful reply.
type ManagementResponse struct {
	StatusCode  int64
	Description string
	Message     *model.Message
}

// Management is a request/response client for an AMQP management node. It
// sends on one link and reads correlated replies on a second link with a
// private reply address.
type Management struct {
	mu       sync.Mutex
	node     string
	replyTo  string
	sender   EngineSender
	receiver EngineReceiver
}

// NewManagement returns a closed client for the default management node.
func NewManagement() *Management { return &Management{node: DefaultManagementNode} }

// Open attaches both links on session. An empty node means the default.
func (m *Management) Open(cc *CallContext, session *Session, nodeAddr string) error {
	const op = "management.open"
	if session == nil {
		return cc.fail(op, argumentError(op, "nil session"))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sender != nil {
		return cc.fail(op, lifecycleError(op, ErrAlreadyOpen))
	}
	es, err := session.engineSession(op)
	if err != nil {
		return cc.fail(op, err)
	}
	if nodeAddr != "" {
		m.node = nodeAddr
	}
	replyTo := node.LinkName("reply")
	target, source, err := managementTermini(m.node, replyTo)
	if err != nil {
		return cc.fail(op, err)
	}

	type links struct {
		s EngineSender
		r EngineReceiver
	}
	l, err := call(cc, op, func(ctx context.Context) (links, error) {
		s, err := es.NewSender(ctx, target, &SenderOptions{Name: node.LinkName("mgmt-sender")})
		if err != nil {
			return links{}, err
		}
		opts := DefaultReceiverOptions()
		opts.Name = node.LinkName("mgmt-receiver")
		opts.Target = replyTarget(replyTo)
		r, err := es.NewReceiver(ctx, source, opts)
		if err != nil {
			_ = s.Close(ctx)
			return links{}, err
		}
		return links{s, r}, nil
	})
	if err != nil {
		return err
	}
	m.sender, m.receiver, m.replyTo = l.s, l.r, replyTo
	cc.log().Debug("management links attached", zap.String("node", m.node), zap.String("reply_to", replyTo))
	return nil
}

func managementTermini(nodeAddr, replyTo string) (*model.Target, *model.Source, error) {
	tb := model.NewTargetBuilder()
	if err := tb.SetAddress(nodeAddr); err != nil {
		return nil, nil, err
	}
	target, err := tb.Build()
	if err != nil {
		return nil, nil, err
	}
	sb := model.NewSourceBuilder()
	if err := sb.SetAddress(nodeAddr); err != nil {
		return nil, nil, err
	}
	source, err := sb.Build()
	if err != nil {
		return nil, nil, err
	}
	return target, source, nil
}

func replyTarget(replyTo string) *model.Target {
	tb := model.NewTargetBuilder()
	_ = tb.SetAddress(replyTo)
	t, _ := tb.Build()
	return t
}

// Call sends req and waits for the reply whose correlation id matches the
// request's message id. Replies to other requests are accepted and dropped.
// A status code outside 200-299 is an engine error carrying the status
// description.
func (m *Management) Call(cc *CallContext, req *ManagementRequest) (*ManagementResponse, error) {
	const op = "management.call"
	if req == nil || req.Operation == "" {
		return nil, cc.fail(op, argumentError(op, "request needs an operation"))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sender == nil {
		return nil, cc.fail(op, lifecycleError(op, ErrNotOpen))
	}
	id := node.MustNewID()
	msg, err := m.request(id, req)
	if err != nil {
		return nil, cc.fail(op, err)
	}
	sender, receiver := m.sender, m.receiver
	return call(cc, op, func(ctx context.Context) (*ManagementResponse, error) {
		if err := sender.Send(ctx, msg); err != nil {
			return nil, err
		}
		for {
			d, err := receiver.Receive(ctx)
			if err != nil {
				return nil, err
			}
			if err := d.Accept(ctx); err != nil {
				return nil, err
			}
			reply := d.Message()
			if !correlates(reply, id) {
				cc.log().Debug("dropping uncorrelated management reply", zap.String("want", id))
				continue
			}
			return response(reply)
		}
	})
}

func (m *Management) request(id string, req *ManagementRequest) (*model.Message, error) {
	props := value.NewMap()
	if req.ApplicationProperties != nil {
		if err := req.ApplicationProperties.Range(func(k, v *value.Value) error {
			return props.Insert(k, v)
		}); err != nil {
			return nil, fmt.Errorf("%w: application properties: %v", model.ErrInvalidArgument, err)
		}
	}
	for _, kv := range [][2]string{{"operation", req.Operation}, {"type", req.Type}, {"locales", req.Locales}} {
		if kv[1] == "" {
			continue
		}
		if err := props.Insert(value.String(kv[0]), value.String(kv[1])); err != nil {
			return nil, err
		}
	}

	pb := model.NewPropertiesBuilder()
	if err := pb.SetMessageID(value.String(id)); err != nil {
		return nil, err
	}
	if err := pb.SetReplyTo(m.replyTo); err != nil {
		return nil, err
	}
	p, err := pb.Build()
	if err != nil {
		return nil, err
	}

	mb := model.NewMessageBuilder()
	if err := mb.SetProperties(p); err != nil {
		return nil, err
	}
	if err := mb.SetApplicationProperties(props); err != nil {
		return nil, err
	}
	if req.Body != nil {
		if err := mb.SetValue(req.Body); err != nil {
			return nil, err
		}
	}
	return mb.Build()
}

func correlates(reply *model.Message, id string) bool {
	p := reply.Properties()
	if p == nil {
		return false
	}
	cid, ok := p.CorrelationID()
	if !ok {
		return false
	}
	s, ok := cid.AsString()
	return ok && s == id
}

// response reads the status out of a reply's application properties. Both
// the camel-case and the dashed spellings are accepted.
func response(reply *model.Message) (*ManagementResponse, error) {
	props, _ := reply.ApplicationProperties()
	code, ok := lookupInt(props, "statusCode", "status-code")
	if !ok {
		return nil, fmt.Errorf("%w: reply carries no status code", ErrManagementStatus)
	}
	desc := lookupString(props, "statusDescription", "status-description")
	if code < 200 || code > 299 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrManagementStatus, code, desc)
	}
	return &ManagementResponse{StatusCode: code, Description: desc, Message: reply}, nil
}

func lookup(props *value.Value, keys ...string) (*value.Value, bool) {
	if props == nil {
		return nil, false
	}
	for _, k := range keys {
		if v, err := props.Lookup(value.String(k)); err == nil {
			return v, true
		}
	}
	return nil, false
}

func lookupInt(props *value.Value, keys ...string) (int64, bool) {
	v, ok := lookup(props, keys...)
	if !ok {
		return 0, false
	}
	switch v.Kind() {
	case value.KindInt:
		n, _ := v.AsInt()
		return int64(n), true
	case value.KindLong:
		n, _ := v.AsLong()
		return n, true
	case value.KindShort:
		n, _ := v.AsShort()
		return int64(n), true
	case value.KindUint:
		n, _ := v.AsUint()
		return int64(n), true
	case value.KindUshort:
		n, _ := v.AsUshort()
		return int64(n), true
	case value.KindUlong:
		n, _ := v.AsUlong()
		return int64(n), true
	}
	return 0, false
}

func lookupString(props *value.Value, keys ...string) string {
	v, ok := lookup(props, keys...)
	if !ok {
		return ""
	}
	s, _ := v.AsString()
	return s
}

// Close detaches both links.
func (m *Management) Close(cc *CallContext) error {
	const op = "management.close"
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sender == nil {
		return cc.fail(op, lifecycleError(op, ErrNotOpen))
	}
	sender, receiver := m.sender, m.receiver
	m.sender, m.receiver = nil, nil
	return detach(cc, op, func(ctx context.Context) error {
		return errors.Join(sender.Close(ctx), receiver.Close(ctx))
	})
}

// Discard detaches both links without a call context.
func (m *Management) Discard() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sender == nil {
		return nil
	}
	sender, receiver := m.sender, m.receiver
	m.sender, m.receiver = nil, nil
	return closeOutside(func(ctx context.Context) error {
		return errors.Join(sender.Close(ctx), receiver.Close(ctx))
	})
}
