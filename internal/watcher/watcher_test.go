package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"angelbot/internal/bus"
	"angelbot/internal/domain"
	"angelbot/internal/store"
)

const (
	watchedUser = "1001"
	otherUser   = "2002"
)

var fixedNow = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeSnapshots struct {
	snap domain.Snapshot
	err  error
}

func (f *fakeSnapshots) Snapshot() (domain.Snapshot, error) { return f.snap, f.err }

type sentMessage struct {
	channelID string
	content   string
	deadline  bool
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []sentMessage
	err   error
	panic bool
}

func (f *fakeSender) Send(ctx context.Context, channelID, content string) error {
	if f.panic {
		panic("sender exploded")
	}
	_, hasDeadline := ctx.Deadline()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{channelID: channelID, content: content, deadline: hasDeadline})
	return f.err
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type recorder struct {
	mu     sync.Mutex
	events []bus.Event
}

func (r *recorder) Emit(ev bus.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) ofType(typ string) []bus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []bus.Event
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type harness struct {
	w      *Watcher
	store  *store.File
	snap   *fakeSnapshots
	sender *fakeSender
	events *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store: store.NewFile(filepath.Join(t.TempDir(), "message_storage.json")),
		snap: &fakeSnapshots{snap: domain.Snapshot{
			ObservedUserID: watchedUser,
			Destinations:   map[string]string{"G1": "C9"},
			Retention:      48 * time.Hour,
			SendTimeout:    5 * time.Second,
		}},
		sender: &fakeSender{},
		events: &recorder{},
	}
	h.w = New(Config{
		Store:     h.store,
		Snapshots: h.snap,
		Sender:    h.sender,
		Events:    h.events,
		Logger:    testLogger(),
		Now:       func() time.Time { return fixedNow },
	})
	return h
}

func (h *harness) seed(t *testing.T, entries ...domain.StoredMessage) {
	t.Helper()
	if err := store.Save(h.store.Path(), entries); err != nil {
		t.Fatalf("seed store: %v", err)
	}
}

func (h *harness) stored(t *testing.T) []domain.StoredMessage {
	t.Helper()
	msgs, err := store.Load(h.store.Path())
	if err != nil {
		t.Fatalf("load store: %v", err)
	}
	return msgs
}

func message(id, author, content string) domain.Message {
	return domain.Message{
		ID:        id,
		ChannelID: "C1",
		GuildID:   "G1",
		AuthorID:  author,
		Content:   content,
		Timestamp: fixedNow,
	}
}

func writeGarbage(path string) error {
	return os.WriteFile(path, []byte("{not json"), 0o644)
}
