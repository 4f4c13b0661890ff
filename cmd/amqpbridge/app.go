package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/snehjoshi/amqpbridge/internal/config"
	"github.com/snehjoshi/amqpbridge/internal/engine"
	"github.com/snehjoshi/amqpbridge/internal/logging"
	"github.com/snehjoshi/amqpbridge/internal/metrics"
	"github.com/snehjoshi/amqpbridge/internal/node"
	"github.com/snehjoshi/amqpbridge/pkg/bridge"
	"github.com/snehjoshi/amqpbridge/pkg/value"
)

// app is an open connection and session plus everything around them.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	reg   *metrics.Registry
	sched *bridge.Scheduler
	cc    *bridge.CallContext
	conn  *bridge.Connection
	sess  *bridge.Session

	metricsSrv *http.Server
}

// connect builds the logger, scheduler and metrics endpoint, then opens a
// connection and begins a session on it.
func connect(cfg *config.Config) (*app, error) {
	// ── 1. Logger ────────────────────────────────────────────────────────────
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &app{cfg: cfg, log: log, reg: &metrics.Registry{}}

	// ── 2. Container identity ────────────────────────────────────────────────
	n, err := node.New(cfg.DataDir, cfg.Connection.ContainerID)
	if err != nil {
		return nil, fmt.Errorf("init node: %w", err)
	}

	// ── 3. Scheduler and call context ────────────────────────────────────────
	opts := []bridge.Option{bridge.WithLogger(log), bridge.WithMetrics(a.reg)}
	if cfg.Scheduler.Workers > 0 {
		opts = append(opts, bridge.WithWorkers(cfg.Scheduler.Workers))
	}
	a.sched, err = bridge.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("init scheduler: %w", err)
	}
	a.cc = bridge.NewCallContext(a.sched)

	// ── 4. Metrics endpoint ──────────────────────────────────────────────────
	if cfg.Metrics.Enabled {
		a.serveMetrics()
	}

	// ── 5. Connection and session ────────────────────────────────────────────
	connOpts, err := connectionOptions(cfg.Connection)
	if err != nil {
		a.close()
		return nil, err
	}
	a.conn = bridge.NewConnection(newEngine(cfg.Connection, log))
	if err := a.conn.Open(a.cc, cfg.Connection.URL, n.ContainerID().String(), connOpts); err != nil {
		a.close()
		return nil, err
	}
	sessOpts, err := sessionOptions(cfg.Session)
	if err != nil {
		a.close()
		return nil, err
	}
	a.sess = bridge.NewSession()
	if err := a.sess.Begin(a.cc, a.conn, sessOpts); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) serveMetrics() {
	a.metricsSrv = &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           a.reg.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.log.Info("metrics server listening", zap.String("addr", a.cfg.Metrics.Addr))
		if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("metrics server error", zap.Error(err))
		}
	}()
}

// close ends whatever connect managed to open, in reverse order.
func (a *app) close() {
	if a.sess != nil {
		if err := a.sess.End(a.cc); err != nil {
			a.log.Warn("session end", zap.Error(err))
		}
	}
	if a.conn != nil && a.conn.IsOpen() {
		if err := a.conn.Close(a.cc); err != nil {
			a.log.Warn("connection close", zap.Error(err))
		}
	}
	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.metricsSrv.Shutdown(ctx)
	}
	if a.sched != nil {
		a.sched.Close()
	}
	_ = a.log.Sync()
}

func newEngine(c config.ConnectionConfig, log *zap.Logger) *engine.Engine {
	opts := []engine.Option{engine.WithLogger(log)}
	if c.Username != "" {
		opts = append(opts, engine.WithSASLPlain(c.Username, c.Password))
	}
	if c.InsecureSkipVerify {
		opts = append(opts, engine.WithTLSConfig(&tls.Config{InsecureSkipVerify: true})) //nolint:gosec // opt-in for test brokers
	}
	return engine.New(opts...)
}

func connectionOptions(c config.ConnectionConfig) (*bridge.ConnectionOptions, error) {
	b := bridge.NewConnectionOptionsBuilder()
	if err := b.SetIdleTimeout(time.Duration(c.IdleTimeoutMs) * time.Millisecond); err != nil {
		return nil, err
	}
	if err := b.SetMaxFrameSize(c.MaxFrameSize); err != nil {
		return nil, err
	}
	if err := b.SetChannelMax(c.ChannelMax); err != nil {
		return nil, err
	}
	if len(c.Properties) > 0 {
		props := value.NewMap()
		for k, v := range c.Properties {
			if err := props.Insert(value.Symbol(k), value.String(v)); err != nil {
				return nil, err
			}
		}
		if err := b.SetProperties(props); err != nil {
			return nil, err
		}
	}
	return b.Build()
}

func sessionOptions(c config.SessionConfig) (*bridge.SessionOptions, error) {
	b := bridge.NewSessionOptionsBuilder()
	if err := b.SetIncomingWindow(c.IncomingWindow); err != nil {
		return nil, err
	}
	if err := b.SetOutgoingWindow(c.OutgoingWindow); err != nil {
		return nil, err
	}
	if c.HandleMax > 0 {
		if err := b.SetHandleMax(c.HandleMax); err != nil {
			return nil, err
		}
	}
	return b.Build()
}
