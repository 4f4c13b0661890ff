// Package engine implements the bridge's engine interfaces on top of
// github.com/Azure/go-amqp.
//
// amqp:// and amqps:// URLs are dialed by go-amqp directly. ws:// and wss://
// URLs are dialed with gorilla/websocket and the resulting stream is handed
// to go-amqp as a net.Conn.
//
// Options go-amqp has no knob for (locales, session windows, initial
// delivery count and the like) are logged at debug level and ignored.
package engine

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"

	"github.com/Azure/go-amqp"
	"go.uber.org/zap"

	"github.com/snehjoshi/amqpbridge/pkg/bridge"
)

// Engine dials AMQP connections. The zero value is not usable; call New.
type Engine struct {
	log       *zap.Logger
	tlsConfig *tls.Config
	sasl      amqp.SASLType
	ws        *wsDialer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger engine objects log through.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithTLSConfig sets the TLS configuration for amqps:// and wss:// URLs.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(e *Engine) { e.tlsConfig = cfg }
}

// WithSASLPlain authenticates with SASL PLAIN. Credentials in the URL's user
// info are used when this option is absent.
func WithSASLPlain(username, password string) Option {
	return func(e *Engine) { e.sasl = amqp.SASLTypePlain(username, password) }
}

// WithSASLAnonymous forces SASL ANONYMOUS.
func WithSASLAnonymous() Option {
	return func(e *Engine) { e.sasl = amqp.SASLTypeAnonymous() }
}

// New returns an engine.
func New(opts ...Option) *Engine {
	e := &Engine{log: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}
	e.ws = newWSDialer(e.tlsConfig)
	return e
}

var _ bridge.Engine = (*Engine)(nil)

// Dial opens a connection to rawURL.
func (e *Engine) Dial(ctx context.Context, rawURL, containerID string, opts *bridge.ConnectionOptions) (bridge.EngineConn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("engine: parse url: %w", err)
	}
	co, err := e.connOptions(u, containerID, opts)
	if err != nil {
		return nil, err
	}

	var conn *amqp.Conn
	switch u.Scheme {
	case "amqp", "amqps":
		conn, err = amqp.Dial(ctx, rawURL, co)
	case "ws", "wss":
		nc, werr := e.ws.dial(ctx, u)
		if werr != nil {
			return nil, werr
		}
		conn, err = amqp.NewConn(ctx, nc, co)
		if err != nil {
			_ = nc.Close()
		}
	default:
		return nil, fmt.Errorf("engine: unsupported url scheme %q", u.Scheme)
	}
	if err != nil {
		return nil, err
	}
	e.log.Debug("amqp connection established", zap.String("host", u.Host), zap.String("scheme", u.Scheme))
	return &connection{conn: conn, log: e.log}, nil
}

func (e *Engine) connOptions(u *url.URL, containerID string, opts *bridge.ConnectionOptions) (*amqp.ConnOptions, error) {
	co := &amqp.ConnOptions{
		ContainerID: containerID,
		HostName:    u.Hostname(),
		TLSConfig:   e.tlsConfig,
		SASLType:    e.sasl,
	}
	if co.SASLType == nil && u.User != nil && (u.Scheme == "ws" || u.Scheme == "wss") {
		// go-amqp only reads user info from URLs it dials itself.
		pw, _ := u.User.Password()
		co.SASLType = amqp.SASLTypePlain(u.User.Username(), pw)
	}
	if opts == nil {
		return co, nil
	}
	co.IdleTimeout = opts.IdleTimeout
	co.MaxFrameSize = opts.MaxFrameSize
	co.MaxSessions = opts.ChannelMax
	props, err := symbolKeyed(opts.Properties)
	if err != nil {
		return nil, fmt.Errorf("engine: connection properties: %w", err)
	}
	co.Properties = props
	e.ignored("connection",
		len(opts.OutgoingLocales) > 0, "outgoing_locales",
		len(opts.IncomingLocales) > 0, "incoming_locales",
		len(opts.OfferedCapabilities) > 0, "offered_capabilities",
		len(opts.DesiredCapabilities) > 0, "desired_capabilities",
		opts.BufferSize > 0, "buffer_size",
	)
	return co, nil
}

// ignored logs the options in pairs of (set, name) that go-amqp cannot honour.
func (e *Engine) ignored(object string, pairs ...any) {
	logIgnored(e.log, object, pairs...)
}

func logIgnored(log *zap.Logger, object string, pairs ...any) {
	var names []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if set, _ := pairs[i].(bool); set {
			names = append(names, pairs[i+1].(string))
		}
	}
	if len(names) > 0 {
		log.Debug("options not supported by the engine, ignored", zap.String("object", object), zap.Strings("options", names))
	}
}

// ─── connection / session ─────────────────────────────────────────────────────

type connection struct {
	conn *amqp.Conn
	log  *zap.Logger
}

func (c *connection) NewSession(ctx context.Context, opts *bridge.SessionOptions) (bridge.EngineSession, error) {
	so := &amqp.SessionOptions{}
	if opts != nil {
		if opts.HandleMax > 0 && opts.HandleMax < ^uint32(0) {
			so.MaxLinks = opts.HandleMax + 1
		}
		logIgnored(c.log, "session",
			opts.IncomingWindow > 0, "incoming_window",
			opts.OutgoingWindow > 0, "outgoing_window",
			opts.NextOutgoingID > 0, "next_outgoing_id",
			len(opts.OfferedCapabilities) > 0, "offered_capabilities",
			len(opts.DesiredCapabilities) > 0, "desired_capabilities",
			opts.Properties != nil, "properties",
			opts.BufferSize > 0, "buffer_size",
		)
	}
	s, err := c.conn.NewSession(ctx, so)
	if err != nil {
		return nil, err
	}
	return &session{s: s, log: c.log}, nil
}

// Close closes the connection. go-amqp always closes cleanly, so an error
// condition is logged and then dropped.
func (c *connection) Close(_ context.Context, cond *bridge.ErrorCondition) error {
	if cond != nil {
		fields := []zap.Field{zap.String("condition", cond.Condition), zap.String("description", cond.Description)}
		if cond.Info != nil {
			fields = append(fields, zap.Stringer("info", cond.Info))
		}
		c.log.Warn("closing connection with error condition", fields...)
	}
	return c.conn.Close()
}

type session struct {
	s   *amqp.Session
	log *zap.Logger
}

func (s *session) Close(ctx context.Context) error { return s.s.Close(ctx) }
