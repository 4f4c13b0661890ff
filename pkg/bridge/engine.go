package bridge

import (
	"context"

	"github.com/snehjoshi/amqpbridge/pkg/model"
	"github.com/snehjoshi/amqpbridge/pkg/value"
)

// Engine is the protocol engine the bridge delegates to. Every method may
// block; the bridge only calls them from scheduler goroutines.
type Engine interface {
	Dial(ctx context.Context, url, containerID string, opts *ConnectionOptions) (EngineConn, error)
}

// EngineConn is an open AMQP connection.
type EngineConn interface {
	NewSession(ctx context.Context, opts *SessionOptions) (EngineSession, error)
	// Close closes the connection. cond is nil for a clean close.
	Close(ctx context.Context, cond *ErrorCondition) error
}

// EngineSession is a begun AMQP session.
type EngineSession interface {
	NewSender(ctx context.Context, target *model.Target, opts *SenderOptions) (EngineSender, error)
	NewReceiver(ctx context.Context, source *model.Source, opts *ReceiverOptions) (EngineReceiver, error)
	Close(ctx context.Context) error
}

// EngineSender is an attached sending link.
type EngineSender interface {
	Send(ctx context.Context, msg *model.Message) error
	MaxMessageSize() uint64
	LinkName() string
	Close(ctx context.Context) error
}

// EngineReceiver is an attached receiving link.
type EngineReceiver interface {
	Receive(ctx context.Context) (Delivery, error)
	IssueCredit(credit uint32) error
	LinkName() string
	Close(ctx context.Context) error
}

// Delivery is one received message awaiting settlement.
type Delivery interface {
	Message() *model.Message
	Accept(ctx context.Context) error
}

// ErrorCondition is the error a connection is closed with. Info keys must
// be symbols.
type ErrorCondition struct {
	Condition   string
	Description string
	Info        *value.Value
}
