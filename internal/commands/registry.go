// Package commands implements the bot's slash commands.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Invocation is one slash command call, already stripped of gateway types.
type Invocation struct {
	GuildID   string
	ChannelID string
	UserID    string
	Options   map[string]string
}

// Command is a single slash command.
type Command interface {
	Definition() *discordgo.ApplicationCommand
	Execute(ctx context.Context, inv Invocation) (string, error)
}

// Registry holds all slash commands keyed by name.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Command
	logger   *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		commands: make(map[string]Command),
		logger:   logger,
	}
}

// Register adds a command. Names must be unique.
func (r *Registry) Register(c Command) error {
	name := c.Definition().Name
	if name == "" {
		return fmt.Errorf("register command: empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[name]; exists {
		return fmt.Errorf("register command: duplicate name %q", name)
	}
	r.commands[name] = c
	r.logger.Debug("registered command", "name", name)
	return nil
}

func (r *Registry) Get(name string) Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.commands[name]
}

// Definitions returns the application command payloads sorted by name.
func (r *Registry) Definitions() []*discordgo.ApplicationCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*discordgo.ApplicationCommand, 0, len(r.commands))
	for _, c := range r.commands {
		defs = append(defs, c.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.commands))
	for n := range r.commands {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs the named command and returns its reply.
func (r *Registry) Dispatch(ctx context.Context, name string, inv Invocation) (string, error) {
	c := r.Get(name)
	if c == nil {
		return "", fmt.Errorf("unknown command: %s (available: %v)", name, r.Names())
	}
	return c.Execute(ctx, inv)
}
