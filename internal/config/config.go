// Package config holds the configuration types and loading logic for the
// amqpbridge command.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	// DataDir holds the persisted container id and the spool database.
	DataDir    string           `yaml:"data_dir"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Connection ConnectionConfig `yaml:"connection"`
	Session    SessionConfig    `yaml:"session"`
	Receiver   ReceiverConfig   `yaml:"receiver"`
	Sender     SenderConfig     `yaml:"sender"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Spool      SpoolConfig      `yaml:"spool"`
}

// SchedulerConfig bounds the worker pool synchronous calls run on.
type SchedulerConfig struct {
	// Workers of 0 means GOMAXPROCS times four.
	Workers int `yaml:"workers"`
}

// ConnectionConfig describes the broker connection.
type ConnectionConfig struct {
	URL string `yaml:"url"`
	// ContainerID is used verbatim. "auto" generates one and persists it
	// under data_dir.
	ContainerID   string            `yaml:"container_id"`
	IdleTimeoutMs int               `yaml:"idle_timeout_ms"`
	MaxFrameSize  uint32            `yaml:"max_frame_size"`
	ChannelMax    uint16            `yaml:"channel_max"`
	Properties    map[string]string `yaml:"properties"`
	// Username and Password select SASL PLAIN when set.
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// InsecureSkipVerify disables TLS certificate checks for amqps and wss.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// SessionConfig tunes the session every link is attached on.
type SessionConfig struct {
	IncomingWindow uint32 `yaml:"incoming_window"`
	OutgoingWindow uint32 `yaml:"outgoing_window"`
	HandleMax      uint32 `yaml:"handle_max"`
}

// SettleMode is the receiver settle mode name.
type SettleMode string

const (
	SettleFirst  SettleMode = "first"
	SettleSecond SettleMode = "second"
)

// ReceiverConfig tunes receiving links.
type ReceiverConfig struct {
	Name string `yaml:"name"`
	// Credit of 0 selects manual credit; the command then issues credit
	// itself one message at a time.
	Credit          uint32     `yaml:"credit"`
	SettleMode      SettleMode `yaml:"settle_mode"`
	AutoAccept      bool       `yaml:"auto_accept"`
	ChannelCapacity int        `yaml:"channel_capacity"`
}

// SenderConfig tunes sending links.
type SenderConfig struct {
	Name string `yaml:"name"`
	// Rate is messages per second; 0 means unlimited.
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console | json
	// Output is stdout, stderr, or a file path.
	Output     string `yaml:"output"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// MetricsConfig controls the Prometheus text endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// SpoolConfig controls the journal of received messages.
type SpoolConfig struct {
	Enabled bool `yaml:"enabled"`
	// MaxEntries bounds the journal; the oldest entries are pruned. 0 keeps
	// everything.
	MaxEntries int `yaml:"max_entries"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		DataDir:   "./data",
		Scheduler: SchedulerConfig{Workers: 0},
		Connection: ConnectionConfig{
			URL:           "amqp://localhost:5672",
			ContainerID:   "auto",
			IdleTimeoutMs: 60_000,
			MaxFrameSize:  65_536,
		},
		Session: SessionConfig{
			IncomingWindow: 5_000,
			OutgoingWindow: 5_000,
		},
		Receiver: ReceiverConfig{
			Credit:          100,
			SettleMode:      SettleFirst,
			AutoAccept:      true,
			ChannelCapacity: 128,
		},
		Sender: SenderConfig{
			Rate:  0,
			Burst: 1,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stderr",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
		Spool: SpoolConfig{
			Enabled:    false,
			MaxEntries: 10_000,
		},
	}
}

// Load reads a YAML file at path over Default. A missing file is not an
// error. Environment overrides are applied last:
//
//	AMQPBRIDGE_URL           connection.url
//	AMQPBRIDGE_CONTAINER_ID  connection.container_id
//	AMQPBRIDGE_LOG_LEVEL     log.level
//	AMQPBRIDGE_DATA_DIR      data_dir
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("AMQPBRIDGE_URL"); v != "" {
		cfg.Connection.URL = v
	}
	if v := os.Getenv("AMQPBRIDGE_CONTAINER_ID"); v != "" {
		cfg.Connection.ContainerID = v
	}
	if v := os.Getenv("AMQPBRIDGE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("AMQPBRIDGE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
}

// Validate returns the first inconsistency found.
func (c *Config) Validate() error {
	if c.Connection.URL == "" {
		return errors.New("connection.url must not be empty")
	}
	scheme, _, ok := strings.Cut(c.Connection.URL, "://")
	if !ok {
		return fmt.Errorf("connection.url %q has no scheme", c.Connection.URL)
	}
	switch scheme {
	case "amqp", "amqps", "ws", "wss":
	default:
		return fmt.Errorf(`connection.url scheme must be one of "amqp", "amqps", "ws", "wss", got %q`, scheme)
	}
	if c.Connection.ContainerID == "auto" && c.DataDir == "" {
		return errors.New("data_dir must not be empty when connection.container_id is auto")
	}
	if c.Connection.IdleTimeoutMs < 0 {
		return errors.New("connection.idle_timeout_ms must be >= 0")
	}
	if c.Connection.MaxFrameSize != 0 && c.Connection.MaxFrameSize < 512 {
		return errors.New("connection.max_frame_size must be 0 or at least 512")
	}
	if c.Scheduler.Workers < 0 {
		return errors.New("scheduler.workers must be >= 0")
	}
	switch c.Receiver.SettleMode {
	case SettleFirst, SettleSecond:
	default:
		return errors.New(`receiver.settle_mode must be one of "first", "second"`)
	}
	if c.Receiver.ChannelCapacity < 1 {
		return errors.New("receiver.channel_capacity must be at least 1")
	}
	if c.Sender.Rate < 0 {
		return errors.New("sender.rate must be >= 0")
	}
	if c.Sender.Rate > 0 && c.Sender.Burst < 1 {
		return errors.New("sender.burst must be at least 1 when sender.rate is set")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return errors.New(`log.format must be one of "console", "json"`)
	}
	if c.Log.Output == "" {
		return errors.New("log.output must not be empty")
	}
	if c.Spool.Enabled && c.DataDir == "" {
		return errors.New("data_dir must not be empty when the spool is enabled")
	}
	if c.Spool.MaxEntries < 0 {
		return errors.New("spool.max_entries must be >= 0")
	}
	return nil
}
