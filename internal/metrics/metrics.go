// Package metrics provides a lightweight Prometheus-compatible metrics
// registry for the bridge. Counters are lock-free and label-keyed, so one
// Registry can be shared by every scheduler, facade and receive pump in a
// process.
//
// # Counter naming convention
//
// Every counter uses a tab-separated string as its label key so that a single
// sync.Map can hold all label combinations without additional map nesting.
//
//	Calls                          →  key = "op"
//	CallFailures                   →  key = "op\tkind"
//	Tasks                          →  key = "task"
//	Pumped / PumpErrors / Sent     →  key = "link"
//
// # Prometheus text output
//
// Calling Registry.Handler() returns an http.Handler that renders all counters
// in the Prometheus exposition format (text/plain; version=0.0.4).
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
)

// ─── labelCounter ─────────────────────────────────────────────────────────────

// labelCounter is a lock-free, label-keyed counter map backed by sync.Map and
// atomic.Int64 values.
type labelCounter struct {
	vals sync.Map // key string → *atomic.Int64
}

func (lc *labelCounter) get(key string) *atomic.Int64 {
	v, _ := lc.vals.LoadOrStore(key, new(atomic.Int64))
	return v.(*atomic.Int64)
}

// Inc increments the counter for key by 1.
func (lc *labelCounter) Inc(key string) { lc.get(key).Add(1) }

// Add increments the counter for key by n.
func (lc *labelCounter) Add(key string, n int64) { lc.get(key).Add(n) }

// Load returns the current value for key.
func (lc *labelCounter) Load(key string) int64 {
	v, ok := lc.vals.Load(key)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

// Each calls fn for every key/value pair. The order is non-deterministic.
func (lc *labelCounter) Each(fn func(key string, val int64)) {
	lc.vals.Range(func(k, v any) bool {
		fn(k.(string), v.(*atomic.Int64).Load())
		return true
	})
}

// ─── Registry ─────────────────────────────────────────────────────────────────

// Registry holds the bridge counters. The zero value is ready to use.
type Registry struct {
	// Synchronous calls run to completion on a scheduler.  key = "op"
	Calls labelCounter
	// Failed calls.  key = "op\tkind"
	CallFailures labelCounter
	// Background tasks spawned.  key = "task"
	Tasks labelCounter

	// Link-level counters.  key = "link"
	Pumped     labelCounter // deliveries pushed into a receive pump channel
	PumpErrors labelCounter // pumps stopped by a receive error
	Sent       labelCounter // messages sent on a sender link
}

// ─── Prometheus text serialisation ────────────────────────────────────────────

// Handler returns an http.Handler that renders all metrics in the Prometheus
// plain-text exposition format (text/plain; version=0.0.4).
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_ = r.Render(w)
	})
}

// Render renders every non-empty counter family to w.
func (r *Registry) Render(w io.Writer) error {
	var b strings.Builder

	writeFamily(&b, "amqpbridge_calls_total",
		"Total synchronous calls run to completion", "counter",
		oneLabel(&r.Calls, "op"))

	writeFamily(&b, "amqpbridge_call_failures_total",
		"Total synchronous calls that returned an error, by error kind", "counter",
		func(fn func(labels, val string)) {
			r.CallFailures.Each(func(key string, val int64) {
				op, kind := splitTwo(key)
				fn(fmt.Sprintf(`op=%q,kind=%q`, op, kind), fmt.Sprintf("%d", val))
			})
		})

	writeFamily(&b, "amqpbridge_tasks_spawned_total",
		"Total background tasks spawned", "counter",
		oneLabel(&r.Tasks, "task"))

	writeFamily(&b, "amqpbridge_pump_deliveries_total",
		"Total deliveries pushed into receive pump channels", "counter",
		oneLabel(&r.Pumped, "link"))

	writeFamily(&b, "amqpbridge_pump_errors_total",
		"Total receive pumps stopped by a receive error", "counter",
		oneLabel(&r.PumpErrors, "link"))

	writeFamily(&b, "amqpbridge_messages_sent_total",
		"Total messages sent on sender links", "counter",
		oneLabel(&r.Sent, "link"))

	_, err := io.WriteString(w, b.String())
	return err
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func oneLabel(lc *labelCounter, label string) func(fn func(labels, val string)) {
	return func(fn func(labels, val string)) {
		lc.Each(func(key string, val int64) {
			fn(fmt.Sprintf(`%s=%q`, label, key), fmt.Sprintf("%d", val))
		})
	}
}

// writeFamily writes a single Prometheus metric family to b.
// fill is called with a writer function that appends individual label+value lines.
func writeFamily(
	b *strings.Builder,
	name, help, typ string,
	fill func(fn func(labels, val string)),
) {
	// Buffer individual metric lines so we can skip the header when empty.
	var lines []string
	fill(func(labels, val string) {
		lines = append(lines, fmt.Sprintf("%s{%s} %s\n", name, labels, val))
	})
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s %s\n", name, typ)
	for _, l := range lines {
		b.WriteString(l)
	}
}

// splitTwo splits a tab-delimited key of the form "a\tb" into (a, b).
// If there is no tab, the whole string is returned as the first component.
func splitTwo(key string) (string, string) {
	i := strings.IndexByte(key, '\t')
	if i < 0 {
		return key, ""
	}
	return key[:i], key[i+1:]
}

// FailureKey builds the label key used by CallFailures.
func FailureKey(op, kind string) string {
	return op + "\t" + kind
}
