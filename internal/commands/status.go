package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"angelbot/internal/bus"
	"angelbot/internal/domain"

	"github.com/bwmarrin/discordgo"
)

const StatusCommandName = "status"

type SnapshotSource interface {
	Snapshot() (domain.Snapshot, error)
}

type MessageViewer interface {
	View(ctx context.Context, fn func([]domain.StoredMessage) error) error
}

// RelayCounter counts deleted messages relayed to a guild since a point in time.
type RelayCounter interface {
	CountRelayed(ctx context.Context, guildID string, since time.Time) (int, error)
}

// EventReplayer is the part of bus.EventBus that ReplayCounter reads.
type EventReplayer interface {
	Replay(since time.Time, types ...string) []bus.Event
}

// ReplayCounter counts relays from the in-memory event history. It is used
// when the relay log is disabled.
type ReplayCounter struct {
	Events EventReplayer
}

func (r ReplayCounter) CountRelayed(_ context.Context, guildID string, since time.Time) (int, error) {
	n := 0
	for _, e := range r.Events.Replay(since, bus.EventRelaySent) {
		if e.GuildID == guildID {
			n++
		}
	}
	return n, nil
}

const activityWindow = 24 * time.Hour

// StatusCommand reports what the bot is watching and where it relays.
type StatusCommand struct {
	Snapshots SnapshotSource
	Messages  MessageViewer
	Activity  RelayCounter // optional
	Now       func() time.Time
}

func (c *StatusCommand) Definition() *discordgo.ApplicationCommand {
	dm := false
	return &discordgo.ApplicationCommand{
		Name:         StatusCommandName,
		Description:  "Show the relay status for this server",
		DMPermission: &dm,
	}
}

func (c *StatusCommand) Execute(ctx context.Context, inv Invocation) (string, error) {
	snap, err := c.Snapshots.Snapshot()
	if err != nil {
		return "", fmt.Errorf("status: %w", err)
	}

	retained := 0
	if err := c.Messages.View(ctx, func(msgs []domain.StoredMessage) error {
		retained = len(msgs)
		return nil
	}); err != nil {
		return "", fmt.Errorf("status: read store: %w", err)
	}

	var b strings.Builder
	if snap.ObservedUserID == "" {
		b.WriteString("Watching: nobody\n")
	} else {
		fmt.Fprintf(&b, "Watching: <@%s>\n", snap.ObservedUserID)
	}
	if dest, ok := snap.Destination(inv.GuildID); ok {
		fmt.Fprintf(&b, "Relaying to: <#%s>\n", dest)
	} else {
		b.WriteString("Relaying to: not configured (use /config)\n")
	}
	fmt.Fprintf(&b, "Retained messages: %d", retained)
	if c.Activity != nil {
		now := time.Now
		if c.Now != nil {
			now = c.Now
		}
		sent, err := c.Activity.CountRelayed(ctx, inv.GuildID, now().Add(-activityWindow))
		if err != nil {
			return "", fmt.Errorf("status: count relays: %w", err)
		}
		fmt.Fprintf(&b, "\nRelayed in the last 24h: %d", sent)
	}
	return b.String(), nil
}
