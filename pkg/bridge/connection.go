package bridge

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/snehjoshi/amqpbridge/pkg/model"
	"github.com/snehjoshi/amqpbridge/pkg/value"
)

// Connection is an AMQP connection handle. It starts closed; Open dials and
// Close or CloseWithError tears the connection down.
type Connection struct {
	engine Engine

	mu   sync.Mutex
	conn EngineConn
	url  string
}

// NewConnection returns a closed connection that will dial through e.
func NewConnection(e Engine) *Connection {
	return &Connection{engine: e}
}

// Open dials url with the given container id. opts may be nil.
func (c *Connection) Open(cc *CallContext, url, containerID string, opts *ConnectionOptions) error {
	const op = "connection.open"
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return cc.fail(op, lifecycleError(op, ErrAlreadyOpen))
	}
	if url == "" {
		return cc.fail(op, argumentError(op, "empty url"))
	}
	if opts == nil {
		opts = &ConnectionOptions{}
	}
	conn, err := call(cc, op, func(ctx context.Context) (EngineConn, error) {
		return c.engine.Dial(ctx, url, containerID, opts)
	})
	if err != nil {
		return err
	}
	c.conn, c.url = conn, url
	cc.log().Info("connection opened", zap.String("url", url), zap.String("container_id", containerID))
	return nil
}

// Close closes the connection cleanly.
func (c *Connection) Close(cc *CallContext) error {
	return c.close(cc, "connection.close", nil)
}

// CloseWithError closes the connection with an error condition. info may be
// nil; otherwise it must be a map whose keys are all symbols. Whether the
// condition reaches the peer is up to the Engine; internal/engine only logs
// it.
func (c *Connection) CloseWithError(cc *CallContext, condition, description string, info *value.Value) error {
	const op = "connection.close_with_error"
	if condition == "" {
		return cc.fail(op, argumentError(op, "empty error condition"))
	}
	cond := &ErrorCondition{Condition: condition, Description: description}
	if info != nil {
		m, err := model.SymbolMap(info, false)
		if err != nil {
			return cc.fail(op, argumentError(op, "info: %v", err))
		}
		cond.Info = m
	}
	return c.close(cc, op, cond)
}

func (c *Connection) close(cc *CallContext, op string, cond *ErrorCondition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return cc.fail(op, lifecycleError(op, ErrNotOpen))
	}
	conn := c.conn
	c.conn = nil
	err := detach(cc, op, func(ctx context.Context) error { return conn.Close(ctx, cond) })
	cc.log().Info("connection closed", zap.String("url", c.url), zap.Error(err))
	return err
}

// Discard closes an open connection cleanly without a call context.
func (c *Connection) Discard() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	conn := c.conn
	c.conn = nil
	return closeOutside(func(ctx context.Context) error { return conn.Close(ctx, nil) })
}

// IsOpen reports whether Open succeeded and no close has been attempted.
func (c *Connection) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Connection) engineConn(op string) (EngineConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, lifecycleError(op, ErrNotOpen)
	}
	return c.conn, nil
}
