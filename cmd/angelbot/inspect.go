package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"angelbot/internal/config"
	"angelbot/internal/relaylog"
	"angelbot/internal/retention"
	"angelbot/internal/store"

	"github.com/spf13/cobra"
)

func destinationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "destinations",
		Aliases: []string{"dest"},
		Short:   "Manage where each server's deleted messages are relayed",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List guild -> channel mappings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewStore(resolveConfigPath()).Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if len(cfg.Destinations) == 0 {
				fmt.Println("No destinations configured. Use '/config' in Discord or 'angelbot destinations set'.")
				return nil
			}
			guilds := make([]string, 0, len(cfg.Destinations))
			for g := range cfg.Destinations {
				guilds = append(guilds, g)
			}
			sort.Strings(guilds)

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "GUILD\tCHANNEL")
			for _, g := range guilds {
				fmt.Fprintf(tw, "%s\t%s\n", g, cfg.Destinations[g])
			}
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [guild] [channel]",
		Short: "Relay a guild's deleted messages to a channel",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := config.NewStore(resolveConfigPath())
			if err := s.SetDestination(args[0], args[1]); err != nil {
				return err
			}
			logger.Info("destination updated", "guild_id", args[0], "channel_id", args[1], "file", s.Path())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove [guild]",
		Short: "Stop relaying for a guild",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := config.NewStore(resolveConfigPath())
			existed, err := s.RemoveDestination(args[0])
			if err != nil {
				return err
			}
			if !existed {
				return fmt.Errorf("no destination configured for guild %s", args[0])
			}
			logger.Info("destination removed", "guild_id", args[0], "file", s.Path())
			return nil
		},
	})

	return cmd
}

func storeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Inspect the message store",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List retained messages with their age",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewStore(resolveConfigPath()).Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			msgs, err := store.Load(cfg.Watch.StoragePath)
			if err != nil {
				return err
			}
			if len(msgs) == 0 {
				fmt.Printf("No messages in %s\n", cfg.Watch.StoragePath)
				return nil
			}

			policy := retention.New(time.Duration(cfg.Watch.RetentionHours) * time.Hour)
			now := time.Now()
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tGUILD\tAGE\tCONTENT")
			for _, m := range msgs {
				age := now.Sub(m.CapturedAt).Truncate(time.Second).String()
				if policy.Expired(now, m.CapturedAt) {
					age += " (expired)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.Message.ID, m.Message.GuildID, age, preview(m.Message.Content, 60))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Printf("\n%d message(s), retention window %s\n", len(msgs), policy.Window)
			return nil
		},
	})

	return cmd
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent relays from the relay log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewStore(resolveConfigPath()).Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if !cfg.RelayLog.Enabled {
				return fmt.Errorf("relay log is disabled (set relayLog.enabled to true)")
			}
			db, err := relaylog.Open(cfg.RelayLog.DBPath, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			entries, err := db.Recent(ctx, limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No relays recorded yet.")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tSTATUS\tGUILD\tCHANNEL\tAGE\tCONTENT")
			for _, e := range entries {
				status := e.Status
				if e.Error != "" {
					status += ": " + preview(e.Error, 30)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.RelayedAt.Local().Format("2006-01-02 15:04:05"), status, e.GuildID, e.Destination,
					e.Age().Truncate(time.Second), preview(e.Content, 50))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	return cmd
}

// preview flattens content onto one line and cuts it to maxRunes.
func preview(s string, maxRunes int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return string(r[:maxRunes-1]) + "…"
}
