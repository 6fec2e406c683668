package watcher

import (
	"context"
	"fmt"
	"time"

	"angelbot/internal/bus"
	"angelbot/internal/domain"
	"angelbot/internal/retention"
)

// Capture retains a newly created message when it comes from the observed
// user, then evicts everything older than the retention window.
// Messages from anyone else are ignored without touching the store.
func (w *Watcher) Capture(ctx context.Context, ev domain.MessageCreated) error {
	snap, err := w.snapshots.Snapshot()
	if err != nil {
		return fmt.Errorf("load config snapshot: %w", err)
	}

	msg := ev.Message
	if snap.ObservedUserID == "" || msg.AuthorID != snap.ObservedUserID {
		return nil
	}

	now := w.now()
	policy := retention.New(snap.Retention)
	var evicted []domain.StoredMessage
	var retained int

	start := time.Now()
	err = w.store.Update(ctx, func(msgs []domain.StoredMessage) ([]domain.StoredMessage, error) {
		msgs = append(msgs, domain.StoredMessage{CapturedAt: now, Message: msg})
		kept, old := policy.Evict(msgs, now)
		evicted = old
		retained = len(kept)
		return kept, nil
	})
	if err != nil {
		return fmt.Errorf("capture message %s into %s: %w", msg.ID, w.store.Path(), err)
	}

	w.emit(bus.Event{Type: bus.EventStoreCycle, Count: retained, Duration: time.Since(start)})
	w.emit(bus.Event{
		Type:       bus.EventMessageCaptured,
		MessageID:  msg.ID,
		GuildID:    msg.GuildID,
		ChannelID:  msg.ChannelID,
		AuthorID:   msg.AuthorID,
		CapturedAt: now,
	})
	if len(evicted) > 0 {
		w.emit(bus.Event{Type: bus.EventStoreEvicted, Count: len(evicted)})
		w.logger.Debug("evicted expired messages", "count", len(evicted), "window", policy.Window)
	}

	w.logger.Debug("message captured",
		"message_id", msg.ID,
		"guild_id", msg.GuildID,
		"retained", retained,
	)
	return nil
}
