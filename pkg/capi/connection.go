package capi

import (
	"github.com/snehjoshi/amqpbridge/internal/engine"
	"github.com/snehjoshi/amqpbridge/pkg/bridge"
	"github.com/snehjoshi/amqpbridge/pkg/value"
)

// ConnectionCreate returns a closed connection over the default engine.
func ConnectionCreate() Handle {
	return ConnectionCreateWithEngine(engine.New())
}

// ConnectionCreateWithEngine returns a closed connection that dials through
// e. It returns Null when e is nil.
func ConnectionCreateWithEngine(e bridge.Engine) Handle {
	if e == nil {
		return Null
	}
	return newHandle(bridge.NewConnection(e))
}

// ConnectionOpen dials url. opts may be Null. Destroying an open connection
// closes it cleanly.
func ConnectionOpen(ctx, conn Handle, url, containerID string, opts Handle) Status {
	const op = "connection.open"
	return onObject(ctx, conn, op, "connection", func(cc *bridge.CallContext, c *bridge.Connection) error {
		o, ok := optional[*bridge.ConnectionOptions](opts)
		if !ok {
			return record(cc, invalid(op, "connection options", opts))
		}
		return c.Open(cc, url, containerID, o)
	})
}

func ConnectionClose(ctx, conn Handle) Status {
	return onObject(ctx, conn, "connection.close", "connection", func(cc *bridge.CallContext, c *bridge.Connection) error {
		return c.Close(cc)
	})
}

// ConnectionCloseWithError closes with an error condition. info may be Null
// or a map whose keys are all symbols.
//
// The condition is handed to the engine. The go-amqp engine behind
// ConnectionCreate cannot put a condition on the close frame: it logs the
// condition at warn level and closes cleanly, so the peer never sees it.
func ConnectionCloseWithError(ctx, conn Handle, condition, description string, info Handle) Status {
	const op = "connection.close_with_error"
	return onObject(ctx, conn, op, "connection", func(cc *bridge.CallContext, c *bridge.Connection) error {
		v, ok := optional[*value.Value](info)
		if !ok {
			return record(cc, invalid(op, "value", info))
		}
		return c.CloseWithError(cc, condition, description, v)
	})
}

// ConnectionIsOpen reports false for anything but an open connection.
func ConnectionIsOpen(conn Handle) bool {
	c, ok := lookup[*bridge.Connection](conn)
	return ok && c.IsOpen()
}

// ─── session ──────────────────────────────────────────────────────────────────

func SessionCreate() Handle { return newHandle(bridge.NewSession()) }

// SessionBegin begins the session on an open connection. opts may be Null.
func SessionBegin(ctx, sess, conn, opts Handle) Status {
	const op = "session.begin"
	return onObject(ctx, sess, op, "session", func(cc *bridge.CallContext, s *bridge.Session) error {
		c, ok := lookup[*bridge.Connection](conn)
		if !ok {
			return record(cc, invalid(op, "connection", conn))
		}
		o, ok := optional[*bridge.SessionOptions](opts)
		if !ok {
			return record(cc, invalid(op, "session options", opts))
		}
		return s.Begin(cc, c, o)
	})
}

func SessionEnd(ctx, sess Handle) Status {
	return onObject(ctx, sess, "session.end", "session", func(cc *bridge.CallContext, s *bridge.Session) error {
		return s.End(cc)
	})
}
