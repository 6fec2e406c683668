package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"angelbot/internal/bus"
	"angelbot/internal/channel"
	"angelbot/internal/commands"
	"angelbot/internal/config"
	"angelbot/internal/domain"
	"angelbot/internal/metrics"
	"angelbot/internal/reaction"
	"angelbot/internal/relaylog"
	"angelbot/internal/store"
	"angelbot/internal/watcher"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to Discord and start relaying",
		Long:  "Connects to the Discord gateway, captures the watched user's messages and relays them when deleted. Press Ctrl+C to stop.",
		RunE:  runBot,
	}
}

func runBot(cmd *cobra.Command, args []string) error {
	cfgStore := config.NewStore(resolveConfigPath())
	cfg, err := cfgStore.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Discord.Token == "" {
		return fmt.Errorf("discord token missing: set %s or discord.token in %s", config.EnvToken, cfgStore.Path())
	}

	closeLog, err := setupRunLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	if cfg.Watch.ObservedUserID == "" {
		logger.Warn("watch.observedUserId is empty, nothing will be captured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := bus.NewEventBus(logger)

	var relayMetrics *metrics.Relay
	if cfg.Metrics.Enabled {
		relayMetrics = metrics.NewRelay()
		relayMetrics.Subscribe(events)
	}

	var activity commands.RelayCounter = commands.ReplayCounter{Events: events}
	if cfg.RelayLog.Enabled {
		history, err := relaylog.Open(cfg.RelayLog.DBPath, logger)
		if err != nil {
			return fmt.Errorf("relay log: %w", err)
		}
		defer history.Close()
		history.Attach(events)
		activity = history
	}

	messages := store.NewFile(cfg.Watch.StoragePath)
	if err := messages.View(ctx, func([]domain.StoredMessage) error { return nil }); err != nil {
		return fmt.Errorf("message store: %w", err)
	}

	var rules []reaction.Rule
	if cfg.Reactions.Enabled {
		rules, err = reaction.LoadRules(cfg.Reactions.RulesFile, logger)
		if err != nil {
			return err
		}
	}

	registry := commands.NewRegistry(logger)
	for _, c := range []commands.Command{
		&commands.ConfigCommand{Destinations: cfgStore},
		&commands.StatusCommand{Snapshots: cfgStore, Messages: messages, Activity: activity},
	} {
		if err := registry.Register(c); err != nil {
			return err
		}
	}

	gateway := bus.NewWithOptions(bus.GatewayOptions{
		Buffer: 100,
		OnDrop: func(ev domain.Event) {
			dropped := bus.Event{Type: bus.EventGatewayDropped}
			if ev.Deleted != nil {
				dropped.MessageID, dropped.GuildID = ev.Deleted.ID, ev.Deleted.GuildID
			}
			events.Emit(dropped)
		},
	}, logger)
	inbound := gateway.Subscribe()

	discord := channel.NewDiscord(channel.DiscordConfig{
		Token:     cfg.Discord.Token,
		GuildID:   cfg.Discord.GuildID,
		Bus:       gateway,
		Commands:  registry,
		Reactions: rules,
		Logger:    logger,
	})

	w := watcher.New(watcher.Config{
		Store:     messages,
		Snapshots: cfgStore,
		Sender:    discord,
		Events:    events,
		Logger:    logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	// The dispatcher stops reading on shutdown, so release gateway handlers
	// blocked on a full queue right away.
	context.AfterFunc(gctx, gateway.Close)
	g.Go(func() error {
		defer gateway.Close()
		return discord.Start(gctx)
	})
	g.Go(func() error {
		w.Run(gctx, inbound)
		return nil
	})
	if relayMetrics != nil {
		g.Go(func() error {
			return metrics.Serve(gctx, relayMetrics.Collector, metrics.ServerConfig{
				Addr:     cfg.Metrics.Addr,
				Endpoint: cfg.Metrics.Endpoint,
				Logger:   logger,
			})
		})
	}

	logger.Info("angelbot started",
		"version", version,
		"observed_user", cfg.Watch.ObservedUserID,
		"store", messages.Path(),
		"destinations", len(cfg.Destinations),
	)

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// setupRunLogger applies the configured level and, when general.logFile is
// set, tees log output into it.
func setupRunLogger(cfg *config.Config) (func(), error) {
	level := cfg.General.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	if cfg.General.LogFile == "" {
		logger = newLogger(os.Stderr, level)
		return func() {}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	logger = newLogger(io.MultiWriter(os.Stderr, f), level)
	return func() { f.Close() }, nil
}
