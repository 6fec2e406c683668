package bus

import (
	"testing"
	"time"

	"angelbot/internal/domain"

	"go.uber.org/goleak"
)

func TestInMemoryBus_PublishSubscribe(t *testing.T) {
	b := New(4, testLogger())
	defer b.Close()

	b.Publish(domain.Event{Deleted: &domain.MessageDeleted{ID: "42", GuildID: "G1"}})

	ev := <-b.Subscribe()
	if ev.Deleted == nil || ev.Deleted.ID != "42" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Kind() != "message_delete" {
		t.Errorf("expected message_delete, got %s", ev.Kind())
	}
}

func TestInMemoryBus_PublishAfterClose(t *testing.T) {
	b := New(1, testLogger())
	b.Close()
	b.Close()

	// Must not panic on a closed channel.
	b.Publish(domain.Event{Created: &domain.MessageCreated{}})

	if _, ok := <-b.Subscribe(); ok {
		t.Fatal("expected closed channel")
	}
}

func TestInMemoryBus_DefaultBufferSize(t *testing.T) {
	b := New(0, testLogger())
	defer b.Close()
	if cap(b.queue) != 100 {
		t.Fatalf("expected default buffer 100, got %d", cap(b.queue))
	}
}

func TestInMemoryBus_DropsAfterMaxWait(t *testing.T) {
	var dropped []string
	b := NewWithOptions(GatewayOptions{
		Buffer:  1,
		MaxWait: 10 * time.Millisecond,
		OnDrop:  func(ev domain.Event) { dropped = append(dropped, ev.Deleted.ID) },
	}, testLogger())
	defer b.Close()

	b.Publish(domain.Event{Deleted: &domain.MessageDeleted{ID: "1"}})
	b.Publish(domain.Event{Deleted: &domain.MessageDeleted{ID: "2"}})

	if n := len(b.queue); n != 1 {
		t.Fatalf("expected 1 queued, got %d", n)
	}
	if len(dropped) != 1 || dropped[0] != "2" {
		t.Fatalf("expected event 2 dropped, got %v", dropped)
	}
	if ev := <-b.Subscribe(); ev.Deleted.ID != "1" {
		t.Errorf("expected event 1 delivered, got %s", ev.Deleted.ID)
	}
}

func TestInMemoryBus_WaitsForRoom(t *testing.T) {
	b := NewWithOptions(GatewayOptions{Buffer: 1, MaxWait: time.Second}, testLogger())
	defer b.Close()

	b.Publish(domain.Event{Deleted: &domain.MessageDeleted{ID: "1"}})
	go func() {
		time.Sleep(20 * time.Millisecond)
		<-b.Subscribe()
	}()
	b.Publish(domain.Event{Deleted: &domain.MessageDeleted{ID: "2"}})

	if ev := <-b.Subscribe(); ev.Deleted.ID != "2" {
		t.Errorf("expected event 2 after wait, got %s", ev.Deleted.ID)
	}
}

func TestInMemoryBus_CloseReleasesBlockedPublish(t *testing.T) {
	defer goleak.VerifyNone(t)

	var dropped int
	b := NewWithOptions(GatewayOptions{
		Buffer:  1,
		MaxWait: time.Hour,
		OnDrop:  func(domain.Event) { dropped++ },
	}, testLogger())
	b.Publish(domain.Event{Deleted: &domain.MessageDeleted{ID: "1"}})

	published := make(chan struct{})
	go func() {
		defer close(published)
		b.Publish(domain.Event{Deleted: &domain.MessageDeleted{ID: "2"}})
	}()
	time.Sleep(20 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		b.Close()
	}()

	for name, ch := range map[string]chan struct{}{"publish": published, "close": closed} {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("%s still blocked after Close", name)
		}
	}
	if dropped != 0 {
		t.Errorf("shutdown discard should not count as a drop, got %d", dropped)
	}
	if ev, ok := <-b.Subscribe(); !ok || ev.Deleted.ID != "1" {
		t.Errorf("queued event should still be delivered, got %+v ok=%v", ev, ok)
	}
}
