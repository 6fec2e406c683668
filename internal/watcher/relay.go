package watcher

import (
	"context"
	"fmt"
	"strings"

	"angelbot/internal/bus"
	"angelbot/internal/domain"
	"angelbot/internal/store"
)

// RelayOutcome says how a deletion notice was handled.
type RelayOutcome int

const (
	RelaySkipped      RelayOutcome = iota // no guild context
	RelayNotFound                         // not in the store
	RelayUnconfigured                     // no destination for the guild
	RelayEmpty                            // nothing to send
	RelaySent
	RelayFailed
)

func (o RelayOutcome) String() string {
	switch o {
	case RelaySkipped:
		return "skipped"
	case RelayNotFound:
		return "not_found"
	case RelayUnconfigured:
		return "unconfigured"
	case RelayEmpty:
		return "empty"
	case RelaySent:
		return "sent"
	case RelayFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Relay looks the deleted message up in the store and forwards its content
// to the guild's destination channel. The stored entry is left in place.
func (w *Watcher) Relay(ctx context.Context, ev domain.MessageDeleted) (RelayOutcome, error) {
	if ev.GuildID == "" {
		return w.skip(RelaySkipped, ev), nil
	}

	snap, err := w.snapshots.Snapshot()
	if err != nil {
		return RelayFailed, fmt.Errorf("load config snapshot: %w", err)
	}

	var found domain.StoredMessage
	var ok bool
	err = w.store.View(ctx, func(msgs []domain.StoredMessage) error {
		found, ok = store.Find(msgs, ev.ID)
		return nil
	})
	if err != nil {
		return RelayFailed, fmt.Errorf("look up message %s in %s: %w", ev.ID, w.store.Path(), err)
	}

	if !ok {
		w.logger.Info("message not found in store",
			"message_id", ev.ID,
			"guild_id", ev.GuildID,
			"channel_id", ev.ChannelID,
		)
		w.emit(bus.Event{Type: bus.EventRelayMissed, MessageID: ev.ID, GuildID: ev.GuildID, ChannelID: ev.ChannelID})
		return RelayNotFound, nil
	}

	dest, ok := snap.Destination(ev.GuildID)
	if !ok {
		w.logger.Debug("no relay destination configured", "guild_id", ev.GuildID)
		return w.skip(RelayUnconfigured, ev), nil
	}

	content := RelayContent(found.Message)
	if content == "" {
		w.logger.Warn("deleted message has no content to relay", "message_id", ev.ID, "guild_id", ev.GuildID)
		return w.skip(RelayEmpty, ev), nil
	}

	sendCtx := ctx
	if snap.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, snap.SendTimeout)
		defer cancel()
	}

	relayed := bus.Event{
		MessageID:   ev.ID,
		GuildID:     ev.GuildID,
		ChannelID:   found.Message.ChannelID,
		Destination: dest,
		AuthorID:    found.Message.AuthorID,
		Content:     content,
		CapturedAt:  found.CapturedAt,
	}

	if err := w.sender.Send(sendCtx, dest, content); err != nil {
		relayed.Type = bus.EventRelayFailed
		relayed.Err = err
		w.emit(relayed)
		return RelayFailed, fmt.Errorf("relay message %s to channel %s: %w: %w", ev.ID, dest, domain.ErrPlatform, err)
	}

	relayed.Type = bus.EventRelaySent
	w.emit(relayed)
	w.logger.Info("deleted message relayed",
		"message_id", ev.ID,
		"guild_id", ev.GuildID,
		"destination", dest,
	)
	return RelaySent, nil
}

func (w *Watcher) skip(outcome RelayOutcome, ev domain.MessageDeleted) RelayOutcome {
	w.emit(bus.Event{
		Type:      bus.EventRelaySkipped,
		MessageID: ev.ID,
		GuildID:   ev.GuildID,
		ChannelID: ev.ChannelID,
		Outcome:   outcome.String(),
	})
	return outcome
}

// RelayContent is the text forwarded for a deleted message: its content
// followed by one attachment URL per line.
func RelayContent(m domain.Message) string {
	parts := make([]string, 0, 1+len(m.Attachments))
	if strings.TrimSpace(m.Content) != "" {
		parts = append(parts, m.Content)
	}
	for _, a := range m.Attachments {
		if a.URL != "" {
			parts = append(parts, a.URL)
		}
	}
	return strings.Join(parts, "\n")
}
