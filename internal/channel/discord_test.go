package channel

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestSplitMessage(t *testing.T) {
	if got := splitMessage("short", 10); len(got) != 1 || got[0] != "short" {
		t.Fatalf("unexpected split: %q", got)
	}

	long := strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 8)
	got := splitMessage(long, 10)
	if len(got) != 2 || got[0] != strings.Repeat("a", 8)+"\n" || got[1] != strings.Repeat("b", 8) {
		t.Fatalf("expected newline split, got %q", got)
	}

	// Multi-byte runes are never cut in half.
	runes := strings.Repeat("é", 10)
	for _, chunk := range splitMessage(runes, 5) {
		if len(chunk) > 5 || strings.Trim(chunk, "é") != "" {
			t.Fatalf("chunk split a rune: %q", chunk)
		}
	}

	total := 0
	for _, chunk := range splitMessage(strings.Repeat("x", 4500), discordMaxMsgLen) {
		if len(chunk) > discordMaxMsgLen {
			t.Fatalf("chunk too long: %d", len(chunk))
		}
		total += len(chunk)
	}
	if total != 4500 {
		t.Fatalf("lost content: %d", total)
	}
}

func TestToMessage(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m := &discordgo.Message{
		ID:        "42",
		ChannelID: "C1",
		GuildID:   "G1",
		Content:   "hello",
		Timestamp: ts,
		Author:    &discordgo.User{ID: "1001", Username: "angel"},
		Attachments: []*discordgo.MessageAttachment{
			{ID: "a1", Filename: "cat.png", URL: "https://cdn.example/cat.png"},
			nil,
		},
	}

	got := toMessage(m)
	if got.ID != "42" || got.ChannelID != "C1" || got.GuildID != "G1" || got.Content != "hello" {
		t.Errorf("unexpected message: %+v", got)
	}
	if got.AuthorID != "1001" || got.AuthorName != "angel" || !got.Timestamp.Equal(ts) {
		t.Errorf("unexpected author/timestamp: %+v", got)
	}
	if len(got.Attachments) != 1 || got.Attachments[0].URL != "https://cdn.example/cat.png" {
		t.Errorf("unexpected attachments: %+v", got.Attachments)
	}
}

func TestCreatedEvent_Filters(t *testing.T) {
	d := NewDiscord(DiscordConfig{GuildID: "G1", Logger: testLogger()})

	msg := &discordgo.Message{ID: "1", GuildID: "G1", Author: &discordgo.User{ID: "1001"}}
	ev, ok := d.createdEvent(msg, "BOT")
	if !ok || ev.Created == nil || ev.Created.Message.ID != "1" {
		t.Fatalf("expected created event, got %+v %v", ev, ok)
	}
	if ev.Kind() != "message_create" {
		t.Errorf("kind = %s", ev.Kind())
	}

	if _, ok := d.createdEvent(&discordgo.Message{ID: "2", GuildID: "G1", Author: &discordgo.User{ID: "BOT"}}, "BOT"); ok {
		t.Error("own messages must be ignored")
	}
	if _, ok := d.createdEvent(&discordgo.Message{ID: "3", GuildID: "G2", Author: &discordgo.User{ID: "1001"}}, "BOT"); ok {
		t.Error("other guilds must be ignored when a guild filter is set")
	}
	if _, ok := d.createdEvent(&discordgo.Message{ID: "4"}, "BOT"); ok {
		t.Error("messages without an author must be ignored")
	}
}

func TestDeletedEvent(t *testing.T) {
	d := NewDiscord(DiscordConfig{Logger: testLogger()})

	ev, ok := d.deletedEvent(&discordgo.MessageDelete{Message: &discordgo.Message{ID: "42", ChannelID: "C1", GuildID: "G1"}})
	if !ok || ev.Deleted == nil {
		t.Fatal("expected deleted event")
	}
	if ev.Deleted.ID != "42" || ev.Deleted.GuildID != "G1" || ev.Deleted.ChannelID != "C1" {
		t.Errorf("unexpected deletion: %+v", ev.Deleted)
	}

	// DMs carry no guild; the relay pipeline decides what to do with them.
	ev, ok = d.deletedEvent(&discordgo.MessageDelete{Message: &discordgo.Message{ID: "43", ChannelID: "D1"}})
	if !ok || ev.Deleted.GuildID != "" {
		t.Fatalf("expected guild-less deletion, got %+v %v", ev, ok)
	}

	if _, ok := d.deletedEvent(&discordgo.MessageDelete{}); ok {
		t.Error("empty payload must be ignored")
	}
}

func TestToInvocation(t *testing.T) {
	i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:      discordgo.InteractionApplicationCommand,
		GuildID:   "G1",
		ChannelID: "C1",
		Member:    &discordgo.Member{User: &discordgo.User{ID: "U1"}},
		Data: discordgo.ApplicationCommandInteractionData{
			Name: "config",
			Options: []*discordgo.ApplicationCommandInteractionDataOption{
				{Name: "target-channel", Type: discordgo.ApplicationCommandOptionChannel, Value: "C9"},
			},
		},
	}}

	inv, name, ok := toInvocation(i)
	if !ok || name != "config" {
		t.Fatalf("got %q %v", name, ok)
	}
	if inv.GuildID != "G1" || inv.UserID != "U1" || inv.Options["target-channel"] != "C9" {
		t.Errorf("unexpected invocation: %+v", inv)
	}

	dm := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionApplicationCommand,
		User: &discordgo.User{ID: "U1"},
		Data: discordgo.ApplicationCommandInteractionData{Name: "config"},
	}}
	if _, _, ok := toInvocation(dm); ok {
		t.Error("DM interactions must be ignored")
	}
}

func TestSend_NotConnected(t *testing.T) {
	d := NewDiscord(DiscordConfig{Logger: testLogger()})
	if err := d.Send(context.Background(), "C9", "hello"); err == nil {
		t.Fatal("expected error before the session is open")
	}
}

func TestStart_EmptyToken(t *testing.T) {
	d := NewDiscord(DiscordConfig{Logger: testLogger()})
	if err := d.Start(context.Background()); err == nil {
		t.Fatal("expected error for empty token")
	}
}
