package metrics

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"angelbot/internal/bus"

	"go.uber.org/goleak"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func render(t *testing.T, c *Collector) string {
	t.Helper()
	var sb strings.Builder
	if _, err := c.WriteTo(&sb); err != nil {
		t.Fatal(err)
	}
	return sb.String()
}

func TestCollector_Exposition(t *testing.T) {
	c := NewCollector("test")
	c.Counter("test_events_total", "Events", `kind="a"`).Add(3)
	c.Counter("test_events_total", "Events", `kind="b"`).Inc()
	c.Gauge("test_depth", "Depth", "").Set(7)
	h := c.Histogram("test_latency_seconds", "Latency", "", []float64{1, 0.1})
	h.Observe(0.0625)
	h.Observe(0.5)
	h.Observe(4)

	out := render(t, c)
	for _, want := range []string{
		"# TYPE test_uptime_seconds gauge",
		"# TYPE test_events_total counter",
		`test_events_total{kind="a"} 3`,
		`test_events_total{kind="b"} 1`,
		"test_depth 7",
		`test_latency_seconds_bucket{le="0.1"} 1`,
		`test_latency_seconds_bucket{le="1"} 2`,
		`test_latency_seconds_bucket{le="+Inf"} 3`,
		"test_latency_seconds_sum 4.5625",
		"test_latency_seconds_count 3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "# HELP test_events_total") != 1 {
		t.Errorf("HELP line should be written once per metric name:\n%s", out)
	}
}

func TestCollector_SameSeriesReturned(t *testing.T) {
	c := NewCollector("test")
	if c.Counter("x", "", "") != c.Counter("x", "", "") {
		t.Fatal("expected the same counter instance")
	}
	if c.Gauge("g", "", `a="1"`) == c.Gauge("g", "", `a="2"`) {
		t.Fatal("different labels must be different series")
	}
}

func TestRelay_Subscribe(t *testing.T) {
	eb := bus.NewEventBus(testLogger())
	m := NewRelay()
	ids := m.Subscribe(eb)
	if len(ids) != 9 {
		t.Fatalf("expected 9 handlers, got %d", len(ids))
	}

	eb.Emit(bus.Event{Type: bus.EventMessageCaptured})
	eb.Emit(bus.Event{Type: bus.EventMessageCaptured})
	eb.Emit(bus.Event{Type: bus.EventStoreEvicted, Count: 4})
	eb.Emit(bus.Event{Type: bus.EventStoreCycle, Count: 12, Duration: 3 * time.Millisecond})
	eb.Emit(bus.Event{Type: bus.EventRelaySent})
	eb.Emit(bus.Event{Type: bus.EventRelayFailed})
	eb.Emit(bus.Event{Type: bus.EventRelayMissed})
	eb.Emit(bus.Event{Type: bus.EventPipelineError})
	eb.Emit(bus.Event{Type: bus.EventGatewayDropped})
	eb.Emit(bus.Event{Type: bus.EventRelaySkipped, Outcome: "unconfigured"})
	eb.Emit(bus.Event{Type: bus.EventRelaySkipped, Outcome: "unconfigured"})
	eb.Emit(bus.Event{Type: bus.EventRelaySkipped, Outcome: "empty"})

	checks := []struct {
		name string
		got  int64
		want int64
	}{
		{"captured", m.Captured.Value(), 2},
		{"evicted", m.Evicted.Value(), 4},
		{"stored", m.StoredEntries.Value(), 12},
		{"cycles", m.StoreCycle.Count(), 1},
		{"sent", m.RelaysSent.Value(), 1},
		{"failed", m.RelaysFailed.Value(), 1},
		{"missed", m.RelaysMissed.Value(), 1},
		{"pipeline errors", m.PipelineErrors.Value(), 1},
		{"gateway dropped", m.GatewayDropped.Value(), 1},
		{"unconfigured", m.RelaysSkipped["unconfigured"].Value(), 2},
		{"empty", m.RelaysSkipped["empty"].Value(), 1},
		{"skipped", m.RelaysSkipped["skipped"].Value(), 0},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}

	out := render(t, m.Collector)
	for _, want := range []string{
		`angelbot_relays_total{outcome="sent"} 1`,
		`angelbot_relays_total{outcome="unconfigured"} 2`,
		`angelbot_relays_total{outcome="empty"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %s:\n%s", want, out)
		}
	}
}

func TestHandler(t *testing.T) {
	m := NewRelay()
	m.Captured.Inc()

	rec := httptest.NewRecorder()
	m.Collector.Handler()(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "angelbot_messages_captured_total 1") {
		t.Errorf("unexpected body:\n%s", rec.Body.String())
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"), goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- serve(ctx, ln, NewRelay().Collector, ServerConfig{Endpoint: "/metrics", Logger: testLogger()})
	}()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + ln.Addr().String() + "/metrics")
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "angelbot_uptime_seconds") {
		t.Errorf("unexpected scrape body:\n%s", body)
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
