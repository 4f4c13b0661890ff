package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/snehjoshi/amqpbridge/internal/metrics"
)

// ─── labelCounter ─────────────────────────────────────────────────────────────

func TestRegistry_CallCounters(t *testing.T) {
	var reg metrics.Registry

	reg.Calls.Inc("connection.open")
	reg.Calls.Inc("connection.open")
	reg.Calls.Add("connection.open", 3)

	if got := reg.Calls.Load("connection.open"); got != 5 {
		t.Fatalf("Calls = %d, want 5", got)
	}
	if got := reg.Calls.Load("session.begin"); got != 0 {
		t.Fatalf("Calls for unseen op = %d, want 0", got)
	}
}

func TestRegistry_FailureKey(t *testing.T) {
	var reg metrics.Registry
	reg.CallFailures.Inc(metrics.FailureKey("receiver.attach", "engine"))

	seen := false
	reg.CallFailures.Each(func(k string, v int64) {
		if k == "receiver.attach\tengine" && v == 1 {
			seen = true
		}
	})
	if !seen {
		t.Fatal("CallFailures: key not recorded")
	}
}

// ─── Prometheus output format ─────────────────────────────────────────────────

func scrape(t *testing.T, reg *metrics.Registry) string {
	t.Helper()
	srv := httptest.NewServer(reg.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/plain") {
		t.Fatalf("Content-Type = %q, want text/plain", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	return string(body)
}

func TestHandler_EmptyRegistry(t *testing.T) {
	var reg metrics.Registry
	if body := scrape(t, &reg); body != "" {
		t.Fatalf("expected empty body for empty registry, got:\n%s", body)
	}
}

func TestHandler_Families(t *testing.T) {
	var reg metrics.Registry

	reg.Calls.Inc("sender.send")
	reg.CallFailures.Inc(metrics.FailureKey("sender.send", "engine"))
	reg.Tasks.Inc("receive-pump")
	reg.Pumped.Add("orders-rx", 10)
	reg.PumpErrors.Inc("orders-rx")
	reg.Sent.Add("orders-tx", 4)

	body := scrape(t, &reg)

	mustContain(t, body, "# HELP amqpbridge_calls_total")
	mustContain(t, body, "# TYPE amqpbridge_calls_total counter")
	mustContain(t, body, `amqpbridge_calls_total{op="sender.send"} 1`)
	mustContain(t, body, `amqpbridge_call_failures_total{op="sender.send",kind="engine"} 1`)
	mustContain(t, body, `amqpbridge_tasks_spawned_total{task="receive-pump"} 1`)
	mustContain(t, body, `amqpbridge_pump_deliveries_total{link="orders-rx"} 10`)
	mustContain(t, body, `amqpbridge_pump_errors_total{link="orders-rx"} 1`)
	mustContain(t, body, `amqpbridge_messages_sent_total{link="orders-tx"} 4`)
}

func TestRender_SkipsEmptyFamilies(t *testing.T) {
	var reg metrics.Registry
	reg.Sent.Inc("tx")

	var b strings.Builder
	if err := reg.Render(&b); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(b.String(), "amqpbridge_calls_total") {
		t.Errorf("empty family rendered:\n%s", b.String())
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func mustContain(t *testing.T, body, substr string) {
	t.Helper()
	if !strings.Contains(body, substr) {
		t.Errorf("expected body to contain %q\nbody:\n%s", substr, body)
	}
}

// ─── Concurrent safety ────────────────────────────────────────────────────────

func TestRegistry_ConcurrentInc(t *testing.T) {
	var reg metrics.Registry

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg.Pumped.Inc("rx")
		}()
	}
	wg.Wait()

	if got := reg.Pumped.Load("rx"); got != 100 {
		t.Fatalf("concurrent Inc: got %d, want 100", got)
	}
}
