package engine

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"
	"time"

	gorillaws "github.com/gorilla/websocket"
)

// Subprotocol is the WebSocket subprotocol AMQP 1.0 is carried under.
const Subprotocol = "amqp"

type wsDialer struct {
	d *gorillaws.Dialer
}

func newWSDialer(cfg *tls.Config) *wsDialer {
	return &wsDialer{d: &gorillaws.Dialer{
		Subprotocols:     []string{Subprotocol},
		TLSClientConfig:  cfg,
		HandshakeTimeout: 30 * time.Second,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}}
}

func (w *wsDialer) dial(ctx context.Context, u *url.URL) (net.Conn, error) {
	// Credentials travel in SASL, not in the upgrade request.
	target := *u
	target.User = nil
	ws, resp, err := w.d.DialContext(ctx, target.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("engine: websocket dial %s: %w", target.Host, err)
	}
	if ws.Subprotocol() != Subprotocol {
		ws.Close()
		return nil, fmt.Errorf("engine: websocket peer refused subprotocol %q", Subprotocol)
	}
	return newWSConn(ws), nil
}

// wsConn presents a WebSocket as a byte stream. Each Write is sent as one
// binary message; Read drains messages in order regardless of framing.
type wsConn struct {
	ws *gorillaws.Conn

	rmu sync.Mutex
	r   io.Reader

	wmu sync.Mutex
}

func newWSConn(ws *gorillaws.Conn) *wsConn { return &wsConn{ws: ws} }

func (c *wsConn) Read(p []byte) (int, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()
	for {
		if c.r == nil {
			typ, r, err := c.ws.NextReader()
			if err != nil {
				if gorillaws.IsCloseError(err, gorillaws.CloseNormalClosure) {
					return 0, io.EOF
				}
				return 0, err
			}
			if typ != gorillaws.BinaryMessage {
				return 0, fmt.Errorf("engine: unexpected websocket message type %d", typ)
			}
			c.r = r
		}
		n, err := c.r.Read(p)
		if err == io.EOF {
			c.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.ws.WriteMessage(gorillaws.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	c.wmu.Lock()
	_ = c.ws.WriteControl(gorillaws.CloseMessage,
		gorillaws.FormatCloseMessage(gorillaws.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.wmu.Unlock()
	return c.ws.Close()
}

func (c *wsConn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *wsConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }
