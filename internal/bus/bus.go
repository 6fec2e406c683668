package bus

import (
	"log/slog"
	"sync"
	"time"

	"angelbot/internal/domain"
)

// GatewayOptions tunes the gateway queue. Zero values pick the defaults.
type GatewayOptions struct {
	Buffer int
	// MaxWait bounds how long Publish blocks on a full queue before dropping.
	MaxWait time.Duration
	// OnDrop is called for every event discarded after MaxWait.
	OnDrop func(domain.Event)
}

// InMemoryBus queues gateway events for the dispatcher on a buffered channel.
// A full queue applies backpressure to the gateway goroutine for up to
// MaxWait instead of dropping straight away.
type InMemoryBus struct {
	queue   chan domain.Event
	maxWait time.Duration
	onDrop  func(domain.Event)
	logger  *slog.Logger

	done     chan struct{} // closed first by Close to release waiting publishers
	stopOnce sync.Once

	mu     sync.RWMutex
	closed bool
}

// New returns a queue holding up to bufferSize events.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	return NewWithOptions(GatewayOptions{Buffer: bufferSize}, logger)
}

func NewWithOptions(opts GatewayOptions, logger *slog.Logger) *InMemoryBus {
	if opts.Buffer <= 0 {
		opts.Buffer = 100
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = 10 * time.Second
	}
	return &InMemoryBus{
		queue:   make(chan domain.Event, opts.Buffer),
		maxWait: opts.MaxWait,
		onDrop:  opts.OnDrop,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

func (b *InMemoryBus) Publish(ev domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.logger.Warn("gateway event after shutdown", "kind", ev.Kind())
		return
	}

	select {
	case b.queue <- ev:
		return
	default:
	}

	b.logger.Warn("gateway queue full", "kind", ev.Kind(), "pending", len(b.queue))
	timer := time.NewTimer(b.maxWait)
	defer timer.Stop()
	select {
	case b.queue <- ev:
	case <-b.done:
		b.logger.Warn("gateway event discarded at shutdown", "kind", ev.Kind())
	case <-timer.C:
		b.logger.Error("gateway event dropped", "kind", ev.Kind(), "waited", b.maxWait)
		if b.onDrop != nil {
			b.onDrop(ev)
		}
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.Event { return b.queue }

// Close stops the queue. Events already queued are still delivered, and a
// Publish blocked on a full queue returns without waiting out MaxWait.
func (b *InMemoryBus) Close() {
	b.stopOnce.Do(func() { close(b.done) })

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.queue)
}

var _ domain.EventBus = (*InMemoryBus)(nil)
