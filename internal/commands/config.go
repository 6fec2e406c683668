package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

const (
	ConfigCommandName    = "config"
	OptionTargetChannel  = "target-channel"
	configUpdatedMessage = "Updated!"
)

// DestinationSetter persists a guild's relay destination.
type DestinationSetter interface {
	SetDestination(guildID, channelID string) error
}

// ConfigCommand sets the calling guild's relay destination.
type ConfigCommand struct {
	Destinations DestinationSetter
}

func (c *ConfigCommand) Definition() *discordgo.ApplicationCommand {
	perms := int64(discordgo.PermissionManageGuild)
	dm := false
	return &discordgo.ApplicationCommand{
		Name:                     ConfigCommandName,
		Description:              "Configure where deleted messages are relayed in this server",
		DefaultMemberPermissions: &perms,
		DMPermission:             &dm,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:         discordgo.ApplicationCommandOptionChannel,
				Name:         OptionTargetChannel,
				Description:  "Channel that receives relayed messages",
				ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
				Required:     true,
			},
		},
	}
}

func (c *ConfigCommand) Execute(_ context.Context, inv Invocation) (string, error) {
	if inv.GuildID == "" {
		return "", fmt.Errorf("config: command used outside a server")
	}
	channelID, err := ParseChannelID(inv.Options[OptionTargetChannel])
	if err != nil {
		return "", fmt.Errorf("config: %w", err)
	}
	if err := c.Destinations.SetDestination(inv.GuildID, channelID); err != nil {
		return "", fmt.Errorf("config: save destination: %w", err)
	}
	return configUpdatedMessage, nil
}

// ParseChannelID accepts a bare id or a channel mention like <#123>.
func ParseChannelID(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "<#") && strings.HasSuffix(s, ">") {
		s = s[2 : len(s)-1]
	}
	if s == "" {
		return "", fmt.Errorf("missing channel")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("invalid channel id %q", raw)
		}
	}
	return s, nil
}
