// Package node gives a bridge process its AMQP container identity and hands
// out the ULIDs used for link names and management message ids.
//
// The container id is generated on first start and kept in the data
// directory, so a restarted process reattaches durable links under the same
// container.
package node

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	containerIDFile = "container_id"
	containerPrefix = "amqpbridge-"
)

// ContainerID is the AMQP container id a connection is opened with.
type ContainerID string

func (id ContainerID) String() string { return string(id) }

// IsZero reports whether the id is the zero value.
func (id ContainerID) IsZero() bool { return id == "" }

// Node holds the persistent identity of this bridge process.
type Node struct {
	id      ContainerID
	dataDir string
}

// New returns a Node whose container id is read from dataDir/container_id,
// or generated and written there when the file is absent. An override other
// than "" or "auto" is used verbatim and nothing is persisted.
func New(dataDir string, override string) (*Node, error) {
	if override != "" && override != "auto" {
		if strings.TrimSpace(override) != override {
			return nil, fmt.Errorf("node: container id override %q has surrounding whitespace", override)
		}
		return &Node{id: ContainerID(override), dataDir: dataDir}, nil
	}
	if dataDir == "" {
		return nil, errors.New("node: dataDir must not be empty")
	}
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("node: create data dir: %w", err)
	}
	id, err := loadOrGenerate(dataDir)
	if err != nil {
		return nil, err
	}
	return &Node{id: id, dataDir: dataDir}, nil
}

// ContainerID returns the process's container id.
func (n *Node) ContainerID() ContainerID { return n.id }

// DataDir returns the directory the identity lives in.
func (n *Node) DataDir() string { return n.dataDir }

func loadOrGenerate(dataDir string) (ContainerID, error) {
	path := filepath.Join(dataDir, containerIDFile)

	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if err := validateContainerID(id); err != nil {
			return "", fmt.Errorf("node: persisted container id %q is invalid: %w", id, err)
		}
		return ContainerID(id), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("node: read container id: %w", err)
	}

	raw, err := NewID()
	if err != nil {
		return "", fmt.Errorf("node: generate container id: %w", err)
	}
	id := ContainerID(containerPrefix + raw)
	if err := os.WriteFile(path, []byte(id.String()+"\n"), 0o640); err != nil {
		return "", fmt.Errorf("node: persist container id: %w", err)
	}
	return id, nil
}

// validateContainerID accepts only ids this package generated.
func validateContainerID(s string) error {
	raw, ok := strings.CutPrefix(s, containerPrefix)
	if !ok {
		return fmt.Errorf("missing %q prefix", containerPrefix)
	}
	_, err := ulid.ParseStrict(raw)
	return err
}

// Shared monotonic entropy keeps ids ordered within one millisecond.
var (
	monoMu      sync.Mutex
	monoEntropy io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a fresh time-ordered ULID string.
func NewID() (string, error) {
	monoMu.Lock()
	defer monoMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(time.Now()), monoEntropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// MustNewID is like NewID but panics on error.
func MustNewID() string {
	id, err := NewID()
	if err != nil {
		panic(fmt.Sprintf("node.MustNewID: %v", err))
	}
	return id
}

// LinkName returns a unique link name starting with prefix.
func LinkName(prefix string) string {
	return prefix + "-" + MustNewID()
}
