package bus

import (
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestEventBus_EmitAndReceive(t *testing.T) {
	eb := NewEventBus(testLogger())

	var got Event
	eb.On(EventRelaySent, func(e Event) { got = e })

	eb.Emit(Event{Type: EventRelaySent, MessageID: "42", Destination: "C9"})

	if got.MessageID != "42" || got.Destination != "C9" {
		t.Fatalf("unexpected event delivered: %+v", got)
	}
	if got.Timestamp.IsZero() {
		t.Error("timestamp should be auto-set")
	}
}

func TestEventBus_WildcardHandler(t *testing.T) {
	eb := NewEventBus(testLogger())

	var count int32
	eb.On("*", func(e Event) { atomic.AddInt32(&count, 1) })

	eb.Emit(Event{Type: EventMessageCaptured})
	eb.Emit(Event{Type: EventRelayMissed})

	if atomic.LoadInt32(&count) != 2 {
		t.Errorf("expected 2, got %d", count)
	}
}

func TestEventBus_Off(t *testing.T) {
	eb := NewEventBus(testLogger())

	var first, second int32
	id := eb.On(EventRelaySent, func(e Event) { atomic.AddInt32(&first, 1) })
	eb.On(EventRelaySent, func(e Event) { atomic.AddInt32(&second, 1) })

	eb.Emit(Event{Type: EventRelaySent})
	eb.Off(EventRelaySent, id)
	eb.Emit(Event{Type: EventRelaySent})

	if atomic.LoadInt32(&first) != 1 {
		t.Errorf("removed handler: expected 1 call, got %d", first)
	}
	if atomic.LoadInt32(&second) != 2 {
		t.Errorf("remaining handler: expected 2 calls, got %d", second)
	}
}

func TestEventBus_HandlerIDsUniqueAfterOff(t *testing.T) {
	eb := NewEventBus(testLogger())

	a := eb.On("x", func(Event) {})
	eb.Off("x", a)
	b := eb.On("x", func(Event) {})
	c := eb.On("x", func(Event) {})

	if a == b || b == c || a == c {
		t.Fatalf("handler IDs collide: %q %q %q", a, b, c)
	}
}

func TestEventBus_ReplaySince(t *testing.T) {
	eb := NewEventBus(testLogger())

	eb.Emit(Event{Type: EventRelaySent, Timestamp: time.Now().Add(-time.Hour)})
	threshold := time.Now()
	eb.Emit(Event{Type: EventRelaySent})
	eb.Emit(Event{Type: EventRelayMissed})

	if n := len(eb.Replay(threshold, EventRelaySent)); n != 1 {
		t.Errorf("expected 1 relay.sent since threshold, got %d", n)
	}
	if n := len(eb.Replay(threshold, EventRelaySent, EventRelayMissed)); n != 2 {
		t.Errorf("expected 2 relay events since threshold, got %d", n)
	}
	if n := len(eb.Replay(time.Time{})); n != 3 {
		t.Errorf("expected 3 total events, got %d", n)
	}
}

func TestEventBus_HistoryLimit(t *testing.T) {
	eb := NewEventBus(testLogger())
	eb.maxHistory = 5

	for i := 0; i < 10; i++ {
		eb.Emit(Event{Type: EventMessageCaptured})
	}

	if n := len(eb.Replay(time.Time{})); n != 5 {
		t.Errorf("expected 5, got %d", n)
	}
}

func TestEventBus_HistoryIsPerType(t *testing.T) {
	eb := NewEventBus(testLogger())
	eb.maxHistory = 5

	base := time.Now().Add(-time.Hour)
	eb.Emit(Event{Type: EventRelaySent, GuildID: "G1", Timestamp: base})
	for i := 0; i < 50; i++ {
		eb.Emit(Event{Type: EventRelayMissed, Timestamp: base.Add(time.Duration(i+1) * time.Second)})
		eb.Emit(Event{Type: EventStoreCycle, Timestamp: base.Add(time.Duration(i+1) * time.Second)})
	}

	sent := eb.Replay(time.Time{}, EventRelaySent)
	if len(sent) != 1 || sent[0].GuildID != "G1" {
		t.Fatalf("relay.sent evicted by other types: %+v", sent)
	}
	all := eb.Replay(time.Time{})
	if len(all) != 11 {
		t.Fatalf("expected 11 retained events, got %d", len(all))
	}
	if all[0].Type != EventRelaySent {
		t.Errorf("expected oldest event first, got %s", all[0].Type)
	}
	for i := 1; i < len(all); i++ {
		if all[i].Timestamp.Before(all[i-1].Timestamp) {
			t.Fatalf("replay out of order at %d", i)
		}
	}
}

func TestEventBus_PanicRecovery(t *testing.T) {
	eb := NewEventBus(testLogger())

	var after int32
	eb.On(EventRelayFailed, func(e Event) { panic("boom") })
	eb.On(EventRelayFailed, func(e Event) { atomic.AddInt32(&after, 1) })

	eb.Emit(Event{Type: EventRelayFailed})

	if atomic.LoadInt32(&after) != 1 {
		t.Error("handler after a panicking one should still run")
	}
}
