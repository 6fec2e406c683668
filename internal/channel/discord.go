// Package channel holds the Discord gateway adapter.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"angelbot/internal/commands"
	"angelbot/internal/domain"
	"angelbot/internal/reaction"

	"github.com/bwmarrin/discordgo"
)

const (
	discordMaxMsgLen   = 2000
	interactionTimeout = 10 * time.Second
)

var errNotConnected = errors.New("discord session not connected")

// Discord turns gateway events into domain events and delivers relays.
type Discord struct {
	token     string
	guildID   string
	bus       domain.EventBus
	commands  *commands.Registry
	reactions []reaction.Rule
	logger    *slog.Logger

	mu      sync.RWMutex
	session *discordgo.Session
}

// DiscordConfig configures the Discord adapter.
type DiscordConfig struct {
	Token     string
	GuildID   string // optional: only this guild's events, guild-scoped commands
	Bus       domain.EventBus
	Commands  *commands.Registry // optional
	Reactions []reaction.Rule
	Logger    *slog.Logger
}

func NewDiscord(cfg DiscordConfig) *Discord {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Discord{
		token:     cfg.Token,
		guildID:   cfg.GuildID,
		bus:       cfg.Bus,
		commands:  cfg.Commands,
		reactions: cfg.Reactions,
		logger:    cfg.Logger,
	}
}

func (d *Discord) Name() string { return "discord" }

// Start connects to the gateway and blocks until ctx is cancelled.
func (d *Discord) Start(ctx context.Context) error {
	if d.token == "" {
		return fmt.Errorf("discord: %w: bot token is empty", domain.ErrPlatform)
	}

	session, err := discordgo.New("Bot " + d.token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	session.AddHandler(d.onReady)
	session.AddHandler(d.onMessageCreate)
	session.AddHandler(d.onMessageDelete)
	session.AddHandler(d.onInteraction)

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w: %w", domain.ErrPlatform, err)
	}

	d.mu.Lock()
	d.session = session
	d.mu.Unlock()

	d.logger.Info("discord bot connected", "user", session.State.User.Username)

	<-ctx.Done()
	d.logger.Info("discord bot disconnecting")

	d.mu.Lock()
	d.session = nil
	d.mu.Unlock()
	return session.Close()
}

// Send posts content to a channel, split into chunks the API accepts.
func (d *Discord) Send(ctx context.Context, channelID, content string) error {
	d.mu.RLock()
	session := d.session
	d.mu.RUnlock()
	if session == nil {
		return errNotConnected
	}

	for _, chunk := range splitMessage(content, discordMaxMsgLen) {
		if _, err := session.ChannelMessageSend(channelID, chunk, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("discord send to %s: %w", channelID, err)
		}
	}
	return nil
}

func (d *Discord) onReady(s *discordgo.Session, r *discordgo.Ready) {
	d.logger.Info("discord session ready", "guilds", len(r.Guilds))
	if d.commands == nil {
		return
	}

	defs := d.commands.Definitions()
	created, err := s.ApplicationCommandBulkOverwrite(r.User.ID, d.guildID, defs)
	if err != nil {
		d.logger.Warn("failed to register slash commands", "guild_id", d.guildID, "err", err)
		return
	}
	d.logger.Info("registered slash commands", "count", len(created), "guild_id", d.guildID)
}

func (d *Discord) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	selfID := ""
	if s.State != nil && s.State.User != nil {
		selfID = s.State.User.ID
	}
	ev, ok := d.createdEvent(m.Message, selfID)
	if !ok {
		return
	}

	for _, e := range reaction.Match(d.reactions, m.Content) {
		if err := s.MessageReactionAdd(m.ChannelID, m.ID, e.APIName()); err != nil {
			d.logger.Warn("failed to add reaction", "message_id", m.ID, "emoji", e.APIName(), "err", err)
		}
	}

	d.bus.Publish(ev)
}

func (d *Discord) onMessageDelete(_ *discordgo.Session, m *discordgo.MessageDelete) {
	if ev, ok := d.deletedEvent(m); ok {
		d.bus.Publish(ev)
	}
}

func (d *Discord) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand || d.commands == nil {
		return
	}
	inv, name, ok := toInvocation(i)
	if !ok {
		return
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		d.logger.Warn("failed to acknowledge interaction", "command", name, "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
	defer cancel()

	reply, err := d.commands.Dispatch(ctx, name, inv)
	if err != nil {
		d.logger.Error("slash command failed", "command", name, "guild_id", inv.GuildID, "user_id", inv.UserID, "err", err)
		reply = "Something went wrong: " + err.Error()
	} else {
		d.logger.Info("slash command handled", "command", name, "guild_id", inv.GuildID, "user_id", inv.UserID)
	}

	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &reply}); err != nil {
		d.logger.Warn("failed to send command reply", "command", name, "err", err)
	}
}

func (d *Discord) createdEvent(m *discordgo.Message, selfID string) (domain.Event, bool) {
	if m == nil || m.Author == nil {
		return domain.Event{}, false
	}
	if selfID != "" && m.Author.ID == selfID {
		return domain.Event{}, false
	}
	if !d.allowGuild(m.GuildID) {
		return domain.Event{}, false
	}
	return domain.Event{Created: &domain.MessageCreated{Message: toMessage(m)}}, true
}

func (d *Discord) deletedEvent(m *discordgo.MessageDelete) (domain.Event, bool) {
	if m == nil || m.Message == nil || m.ID == "" {
		return domain.Event{}, false
	}
	if !d.allowGuild(m.GuildID) {
		return domain.Event{}, false
	}
	return domain.Event{Deleted: &domain.MessageDeleted{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
	}}, true
}

func (d *Discord) allowGuild(guildID string) bool {
	return d.guildID == "" || guildID == d.guildID
}

func toMessage(m *discordgo.Message) domain.Message {
	msg := domain.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
		msg.AuthorName = m.Author.Username
	}
	for _, a := range m.Attachments {
		if a == nil {
			continue
		}
		msg.Attachments = append(msg.Attachments, domain.Attachment{ID: a.ID, Filename: a.Filename, URL: a.URL})
	}
	return msg
}

// toInvocation extracts a guild slash command call. Calls from DMs are
// rejected.
func toInvocation(i *discordgo.InteractionCreate) (commands.Invocation, string, bool) {
	if i.GuildID == "" || i.Member == nil || i.Member.User == nil {
		return commands.Invocation{}, "", false
	}
	data := i.ApplicationCommandData()
	inv := commands.Invocation{
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		UserID:    i.Member.User.ID,
		Options:   make(map[string]string, len(data.Options)),
	}
	for _, opt := range data.Options {
		inv.Options[opt.Name] = fmt.Sprint(opt.Value)
	}
	return inv, data.Name, true
}

// splitMessage splits a message into chunks that fit within the max length,
// trying to split on newlines when possible.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}

		cut := maxLen
		if idx := strings.LastIndex(msg[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		} else {
			for cut > 0 && !utf8.RuneStart(msg[cut]) {
				cut--
			}
		}

		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}
