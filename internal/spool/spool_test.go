package spool_test

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/snehjoshi/amqpbridge/internal/spool"
	"github.com/snehjoshi/amqpbridge/pkg/model"
	"github.com/snehjoshi/amqpbridge/pkg/value"
)

// ---- helpers ----------------------------------------------------------------

func openSpool(t *testing.T, maxEntries int) *spool.Spool {
	t.Helper()
	s, err := spool.Open(filepath.Join(t.TempDir(), "spool.db"), maxEntries)
	if err != nil {
		t.Fatalf("spool.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func textMessage(t *testing.T, body string) *model.Message {
	t.Helper()
	mb := model.NewMessageBuilder()
	if err := mb.SetValue(value.String(body)); err != nil {
		t.Fatal(err)
	}
	m, err := mb.Build()
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func collect(t *testing.T, s *spool.Spool) []spool.Entry {
	t.Helper()
	var out []spool.Entry
	if err := s.ForEach(func(e spool.Entry) error {
		out = append(out, e)
		return nil
	}); err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	return out
}

// ---- tests ------------------------------------------------------------------

func TestSpool_AppendAndForEach(t *testing.T) {
	s := openSpool(t, 0)
	for i := range 3 {
		if _, err := s.Append("receiver-1", textMessage(t, fmt.Sprintf("m%d", i))); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	entries := collect(t, s)
	if len(entries) != 3 {
		t.Fatalf("want 3 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Seq != uint64(i+1) {
			t.Errorf("entry %d: want seq %d, got %d", i, i+1, e.Seq)
		}
		if e.Link != "receiver-1" || e.ReceivedAt.IsZero() {
			t.Errorf("entry %d: want link and time, got %+v", i, e)
		}
		m, err := e.Decode()
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if v, ok := m.Value(); !ok || !v.Equal(value.String(fmt.Sprintf("m%d", i))) {
			t.Errorf("entry %d: want body m%d, got %v", i, i, v)
		}
	}
}

func TestSpool_PrunesOldest(t *testing.T) {
	s := openSpool(t, 2)
	for i := range 5 {
		if _, err := s.Append("r", textMessage(t, fmt.Sprint(i))); err != nil {
			t.Fatal(err)
		}
	}
	if n, _ := s.Len(); n != 2 {
		t.Fatalf("want 2 kept entries, got %d", n)
	}
	entries := collect(t, s)
	if entries[0].Seq != 4 || entries[1].Seq != 5 {
		t.Errorf("want newest entries 4 and 5, got %d and %d", entries[0].Seq, entries[1].Seq)
	}
}

func TestSpool_CapHoldsAfterEveryAppend(t *testing.T) {
	s := openSpool(t, 1)
	for i := range 3 {
		seq, err := s.Append("r", textMessage(t, fmt.Sprint(i)))
		if err != nil {
			t.Fatal(err)
		}
		entries := collect(t, s)
		if len(entries) != 1 {
			t.Fatalf("append %d: want 1 kept entry, got %d", i, len(entries))
		}
		if entries[0].Seq != seq {
			t.Errorf("append %d: want newest seq %d kept, got %d", i, seq, entries[0].Seq)
		}
	}
}

func TestSpool_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spool.db")
	s, err := spool.Open(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Append("r", textMessage(t, "kept")); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	s, err = spool.Open(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	seq, err := s.Append("r", textMessage(t, "next"))
	if err != nil {
		t.Fatal(err)
	}
	if seq != 2 {
		t.Errorf("want sequence to continue at 2, got %d", seq)
	}
}

func TestSpool_ForEachStopsOnError(t *testing.T) {
	s := openSpool(t, 0)
	_, _ = s.Append("r", textMessage(t, "a"))
	_, _ = s.Append("r", textMessage(t, "b"))

	stop := errors.New("stop")
	calls := 0
	err := s.ForEach(func(spool.Entry) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Fatalf("want one call and stop error, got %d calls, %v", calls, err)
	}
}

func TestOpen_RejectsNegativeMax(t *testing.T) {
	if _, err := spool.Open(filepath.Join(t.TempDir(), "x.db"), -1); err == nil {
		t.Fatal("want error for negative max entries")
	}
}
