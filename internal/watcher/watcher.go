// Package watcher captures messages from the observed user and relays their
// content when the platform reports them deleted.
package watcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"angelbot/internal/bus"
	"angelbot/internal/domain"
)

// Store is the serialized message store both pipelines share.
type Store interface {
	Path() string
	Update(ctx context.Context, fn func([]domain.StoredMessage) ([]domain.StoredMessage, error)) error
	View(ctx context.Context, fn func([]domain.StoredMessage) error) error
}

// SnapshotSource yields the configuration view for one event.
type SnapshotSource interface {
	Snapshot() (domain.Snapshot, error)
}

// Emitter receives pipeline notifications (metrics, relay log).
type Emitter interface {
	Emit(event bus.Event)
}

type Config struct {
	Store     Store
	Snapshots SnapshotSource
	Sender    domain.Sender
	Events    Emitter // optional
	Logger    *slog.Logger
	Now       func() time.Time // optional, defaults to time.Now
}

type Watcher struct {
	store     Store
	snapshots SnapshotSource
	sender    domain.Sender
	events    Emitter
	logger    *slog.Logger
	now       func() time.Time

	wg sync.WaitGroup
}

func New(cfg Config) *Watcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Watcher{
		store:     cfg.Store,
		snapshots: cfg.Snapshots,
		sender:    cfg.Sender,
		events:    cfg.Events,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
}

func (w *Watcher) emit(ev bus.Event) {
	if w.events != nil {
		w.events.Emit(ev)
	}
}
