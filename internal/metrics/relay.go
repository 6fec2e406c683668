package metrics

import (
	"angelbot/internal/bus"
)

// Relay holds the bot's pipeline metrics.
type Relay struct {
	Collector *Collector

	Captured       *Counter
	Evicted        *Counter
	RelaysSent     *Counter
	RelaysFailed   *Counter
	RelaysMissed   *Counter
	RelaysSkipped  map[string]*Counter // by outcome
	PipelineErrors *Counter
	GatewayDropped *Counter
	StoredEntries  *Gauge
	StoreCycle     *Histogram
}

func NewRelay() *Relay {
	c := NewCollector("angelbot")
	const relays = "angelbot_relays_total"
	const relaysHelp = "Deletion notices handled, by outcome"
	return &Relay{
		Collector:      c,
		Captured:       c.Counter("angelbot_messages_captured_total", "Messages from the watched user written to the store", ""),
		Evicted:        c.Counter("angelbot_messages_evicted_total", "Stored messages dropped for exceeding the retention window", ""),
		RelaysSent:     c.Counter(relays, relaysHelp, `outcome="sent"`),
		RelaysFailed:   c.Counter(relays, relaysHelp, `outcome="failed"`),
		RelaysMissed:   c.Counter(relays, relaysHelp, `outcome="not_found"`),
		RelaysSkipped: map[string]*Counter{
			"skipped":      c.Counter(relays, relaysHelp, `outcome="skipped"`),
			"unconfigured": c.Counter(relays, relaysHelp, `outcome="unconfigured"`),
			"empty":        c.Counter(relays, relaysHelp, `outcome="empty"`),
		},
		PipelineErrors: c.Counter("angelbot_pipeline_errors_total", "Store or config failures while handling an event", ""),
		GatewayDropped: c.Counter("angelbot_gateway_dropped_total", "Gateway events discarded because the dispatcher queue stayed full", ""),
		StoredEntries:  c.Gauge("angelbot_store_entries", "Entries retained after the last capture", ""),
		StoreCycle: c.Histogram("angelbot_store_cycle_seconds", "Duration of a capture load-evict-save cycle", "",
			[]float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1}),
	}
}

// Subscribe feeds the metrics from pipeline events. It returns the handler
// ids so callers can detach.
func (m *Relay) Subscribe(eb *bus.EventBus) []string {
	return []string{
		eb.On(bus.EventMessageCaptured, func(bus.Event) { m.Captured.Inc() }),
		eb.On(bus.EventStoreEvicted, func(e bus.Event) { m.Evicted.Add(int64(e.Count)) }),
		eb.On(bus.EventStoreCycle, func(e bus.Event) {
			m.StoredEntries.Set(int64(e.Count))
			m.StoreCycle.Observe(e.Duration.Seconds())
		}),
		eb.On(bus.EventRelaySent, func(bus.Event) { m.RelaysSent.Inc() }),
		eb.On(bus.EventRelayFailed, func(bus.Event) { m.RelaysFailed.Inc() }),
		eb.On(bus.EventRelayMissed, func(bus.Event) { m.RelaysMissed.Inc() }),
		eb.On(bus.EventRelaySkipped, func(e bus.Event) { m.skipped(e.Outcome).Inc() }),
		eb.On(bus.EventPipelineError, func(bus.Event) { m.PipelineErrors.Inc() }),
		eb.On(bus.EventGatewayDropped, func(bus.Event) { m.GatewayDropped.Inc() }),
	}
}

// skipped returns the counter for a skip outcome, registering unknown ones
// on first use.
func (m *Relay) skipped(outcome string) *Counter {
	if c, ok := m.RelaysSkipped[outcome]; ok {
		return c
	}
	return m.Collector.Counter("angelbot_relays_total", "Deletion notices handled, by outcome", `outcome="`+outcome+`"`)
}
