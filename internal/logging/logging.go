// Package logging builds the zap logger used by the amqpbridge command.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/snehjoshi/amqpbridge/internal/config"
)

// New builds a logger from c. File outputs are rotated by lumberjack. The
// caller should defer logger.Sync().
func New(c config.LogConfig) (*zap.Logger, error) {
	level, err := ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder
	switch strings.ToLower(c.Format) {
	case "json":
		encoder = zapcore.NewJSONEncoder(encCfg)
	case "console", "":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, fmt.Errorf("logging: unknown format %q", c.Format)
	}

	ws, err := writer(c)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(encoder, ws, level)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel)), nil
}

// ParseLevel maps a config level name onto a zap level. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zap.DebugLevel, nil
	case "info", "":
		return zap.InfoLevel, nil
	case "warn", "warning":
		return zap.WarnLevel, nil
	case "error":
		return zap.ErrorLevel, nil
	default:
		return zap.InfoLevel, fmt.Errorf("logging: unknown level %q", s)
	}
}

func writer(c config.LogConfig) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(c.Output) {
	case "stdout":
		return zapcore.Lock(os.Stdout), nil
	case "stderr", "":
		return zapcore.Lock(os.Stderr), nil
	}
	if dir := filepath.Dir(c.Output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("logging: create %s: %w", dir, err)
		}
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   c.Output,
		MaxSize:    max(c.MaxSizeMB, 1),
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAgeDays,
		Compress:   c.Compress,
	}), nil
}
