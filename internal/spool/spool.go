// Package spool is a bbolt-backed journal of messages taken off a receive
// pump. Entries are keyed by a monotonically increasing sequence number so
// iteration yields them in arrival order.
package spool

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/snehjoshi/amqpbridge/pkg/model"
)

var bucketEntries = []byte("entries")

// ErrCorrupt is returned for an entry that cannot be decoded.
var ErrCorrupt = errors.New("spool: corrupt entry")

// Entry is one journalled message.
type Entry struct {
	Seq        uint64
	Link       string
	ReceivedAt time.Time
	// Message is the AMQP encoding of the message sections.
	Message []byte
}

// Decode parses the stored message bytes.
func (e Entry) Decode() (*model.Message, error) {
	return model.UnmarshalMessage(e.Message)
}

// Spool is safe for concurrent use; bbolt serialises writers.
type Spool struct {
	db         *bbolt.DB
	maxEntries int
	now        func() time.Time
}

// Open opens (or creates) the journal at path. maxEntries bounds the number of
// kept entries; 0 keeps everything.
func Open(path string, maxEntries int) (*Spool, error) {
	if maxEntries < 0 {
		return nil, fmt.Errorf("spool: max entries must be >= 0, got %d", maxEntries)
	}
	db, err := bbolt.Open(path, 0o640, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("spool: open %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEntries)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("spool: init bucket: %w", err)
	}
	return &Spool{db: db, maxEntries: maxEntries, now: time.Now}, nil
}

// Append journals msg as received on link and returns its sequence number.
// When the journal is full the oldest entries are pruned in the same
// transaction.
func (s *Spool) Append(link string, msg *model.Message) (uint64, error) {
	body, err := msg.Marshal()
	if err != nil {
		return 0, fmt.Errorf("spool: encode message: %w", err)
	}
	if len(link) > 0xFFFF {
		return 0, fmt.Errorf("spool: link name too long (%d bytes)", len(link))
	}

	var seq uint64
	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		var err error
		if seq, err = b.NextSequence(); err != nil {
			return err
		}
		val := marshalEntry(Entry{Link: link, ReceivedAt: s.now(), Message: body})
		if err := b.Put(seqKey(seq), val); err != nil {
			return err
		}
		return s.prune(b)
	})
	if err != nil {
		return 0, fmt.Errorf("spool: append: %w", err)
	}
	return seq, nil
}

func (s *Spool) prune(b *bbolt.Bucket) error {
	if s.maxEntries == 0 {
		return nil
	}
	excess := countKeys(b) - s.maxEntries
	if excess <= 0 {
		return nil
	}
	c := b.Cursor()
	for k, _ := c.First(); k != nil && excess > 0; k, _ = c.First() {
		if err := c.Delete(); err != nil {
			return err
		}
		excess--
	}
	return nil
}

// countKeys walks b with a cursor. Bucket.Stats only sees committed pages,
// so it misses writes made earlier in the same transaction.
func countKeys(b *bbolt.Bucket) int {
	n := 0
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		n++
	}
	return n
}

// ForEach calls fn for every entry in arrival order. Iteration stops at the
// first error fn returns.
func (s *Spool) ForEach(fn func(Entry) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEntries).ForEach(func(k, v []byte) error {
			e, err := unmarshalEntry(v)
			if err != nil {
				return err
			}
			e.Seq = binary.BigEndian.Uint64(k)
			return fn(e)
		})
	})
}

// Len returns the number of kept entries.
func (s *Spool) Len() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = countKeys(tx.Bucket(bucketEntries))
		return nil
	})
	return n, err
}

// Close closes the underlying database.
func (s *Spool) Close() error {
	return s.db.Close()
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

// ---- serialisation ---------------------------------------------------------
//
//	[receivedAtMs : 8 bytes, int64 ]
//	[linkLen      : 2 bytes, uint16]
//	[link         : linkLen bytes  ]
//	[message      : remaining bytes]

func marshalEntry(e Entry) []byte {
	buf := make([]byte, 10+len(e.Link)+len(e.Message))
	binary.BigEndian.PutUint64(buf[0:], uint64(e.ReceivedAt.UnixMilli()))
	binary.BigEndian.PutUint16(buf[8:], uint16(len(e.Link)))
	copy(buf[10:], e.Link)
	copy(buf[10+len(e.Link):], e.Message)
	return buf
}

func unmarshalEntry(buf []byte) (Entry, error) {
	if len(buf) < 10 {
		return Entry{}, fmt.Errorf("%w: %d bytes", ErrCorrupt, len(buf))
	}
	linkLen := int(binary.BigEndian.Uint16(buf[8:]))
	if linkLen > len(buf)-10 {
		return Entry{}, fmt.Errorf("%w: link length %d exceeds buffer", ErrCorrupt, linkLen)
	}
	msg := make([]byte, len(buf)-10-linkLen)
	copy(msg, buf[10+linkLen:])
	return Entry{
		Link:       string(buf[10 : 10+linkLen]),
		ReceivedAt: time.UnixMilli(int64(binary.BigEndian.Uint64(buf[0:]))),
		Message:    msg,
	}, nil
}
