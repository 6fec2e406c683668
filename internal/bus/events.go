package bus

import (
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"
)

// Well-known event types emitted by the watcher pipelines.
const (
	EventMessageCaptured = "message.captured"
	EventStoreEvicted    = "store.evicted"
	EventStoreCycle      = "store.cycle"
	EventRelaySent       = "relay.sent"
	EventRelayFailed     = "relay.failed"
	EventRelayMissed     = "relay.missed"
	EventRelaySkipped    = "relay.skipped" // Outcome says why
	EventPipelineError   = "pipeline.error"
	EventGatewayDropped  = "gateway.dropped"
)

// Event is an internal notification about what a pipeline did.
// Fields that do not apply to a type are left zero.
type Event struct {
	Type        string
	MessageID   string
	GuildID     string
	ChannelID   string // source channel of the message
	Destination string // relay target channel
	AuthorID    string
	Content     string
	Outcome     string // relay.skipped reason
	CapturedAt  time.Time
	Count       int           // evicted entries, or retained entries after a cycle
	Duration    time.Duration // store cycle latency
	Err         error
	Timestamp   time.Time
}

// EventHandler is a callback for events.
type EventHandler func(Event)

// EventBus is a topic-based publish/subscribe bus for internal events. "*"
// subscribes to every type. Each event type keeps its own bounded history,
// so a burst of one type never pushes another out.
type EventBus struct {
	mu         sync.RWMutex
	handlers   map[string][]namedHandler
	seq        int
	history    map[string][]Event
	maxHistory int // per event type
	logger     *slog.Logger
}

type namedHandler struct {
	ID      string
	Handler EventHandler
}

func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		handlers:   make(map[string][]namedHandler),
		history:    make(map[string][]Event),
		maxHistory: 500,
		logger:     logger,
	}
}

// On registers a handler and returns its ID for Off.
func (eb *EventBus) On(eventType string, handler EventHandler) string {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.seq++
	id := eventType + "-" + strconv.Itoa(eb.seq)
	eb.handlers[eventType] = append(eb.handlers[eventType], namedHandler{ID: id, Handler: handler})
	return id
}

// Off removes a handler by its ID.
func (eb *EventBus) Off(eventType, handlerID string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	handlers := eb.handlers[eventType]
	for i, h := range handlers {
		if h.ID == handlerID {
			eb.handlers[eventType] = append(handlers[:i:i], handlers[i+1:]...)
			return
		}
	}
}

// Emit calls every matching handler synchronously, in registration order.
// A panicking handler is logged and does not affect the others.
func (eb *EventBus) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	eb.mu.Lock()
	ring := eb.history[event.Type]
	if len(ring) >= eb.maxHistory {
		ring = ring[1:]
	}
	eb.history[event.Type] = append(ring, event)
	handlers := make([]namedHandler, 0, len(eb.handlers[event.Type])+len(eb.handlers["*"]))
	handlers = append(handlers, eb.handlers[event.Type]...)
	handlers = append(handlers, eb.handlers["*"]...)
	eb.mu.Unlock()

	for _, h := range handlers {
		eb.call(h, event)
	}
}

func (eb *EventBus) call(h namedHandler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.logger.Error("event handler panic", "event", event.Type, "handler", h.ID, "panic", r)
		}
	}()
	h.Handler(event)
}

// Replay returns retained events emitted at or after since, oldest first.
// With no types given every event matches.
func (eb *EventBus) Replay(since time.Time, types ...string) []Event {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if len(types) == 0 {
		types = slices.Collect(maps.Keys(eb.history))
	}
	var result []Event
	for _, t := range slices.Compact(slices.Sorted(slices.Values(types))) {
		for _, e := range eb.history[t] {
			if !e.Timestamp.Before(since) {
				result = append(result, e)
			}
		}
	}
	slices.SortStableFunc(result, func(a, b Event) int { return a.Timestamp.Compare(b.Timestamp) })
	return result
}
