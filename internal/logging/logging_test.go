package logging_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/snehjoshi/amqpbridge/internal/config"
	"github.com/snehjoshi/amqpbridge/internal/logging"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zap.DebugLevel,
		"INFO":    zap.InfoLevel,
		"":        zap.InfoLevel,
		"warning": zap.WarnLevel,
		"error":   zap.ErrorLevel,
	}
	for in, want := range cases {
		got, err := logging.ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q): want %v, got %v (%v)", in, want, got, err)
		}
	}
	if _, err := logging.ParseLevel("loud"); err == nil {
		t.Error("want error for unknown level")
	}
}

func TestNew_RejectsUnknownFormat(t *testing.T) {
	c := config.Default().Log
	c.Format = "xml"
	if _, err := logging.New(c); err == nil {
		t.Fatal("want error for unknown format")
	}
}

func TestNew_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bridge.log")
	c := config.Default().Log
	c.Format = "json"
	c.Output = path
	c.Level = "warn"

	log, err := logging.New(c)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info("dropped")
	log.Warn("kept", zap.String("link", "receiver-1"))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("want 1 line above warn level, got %d: %q", len(lines), data)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("want json line, got %q: %v", lines[0], err)
	}
	if entry["msg"] != "kept" || entry["link"] != "receiver-1" {
		t.Errorf("want msg=kept link=receiver-1, got %v", entry)
	}
}
