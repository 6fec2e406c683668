package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"angelbot/internal/config"
	"angelbot/internal/reaction"
	"angelbot/internal/relaylog"
	"angelbot/internal/store"

	"github.com/spf13/cobra"
)

type doctorReport struct {
	passed, warned, failed int
}

func (r *doctorReport) pass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
	r.passed++
}

func (r *doctorReport) fail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
	r.failed++
}

func (r *doctorReport) warn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
	r.warned++
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your angelbot installation",
		Long: `Verifies that angelbot's configuration, token, message store and relay
database are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("angelbot doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			r := &doctorReport{}

			if _, err := os.Stat(cfgPath); err != nil {
				r.fail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'angelbot init' to create a default configuration.\n")
				return fmt.Errorf("config file missing")
			}
			r.pass("Config file", cfgPath)

			cfg, err := config.Load(cfgPath)
			if err != nil {
				r.fail("Config validation", err.Error())
				return fmt.Errorf("%d check(s) failed", r.failed)
			}
			r.pass("Config validation", "valid")

			runDoctorChecks(r, cfg)

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
			if r.failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running angelbot.\n")
				return fmt.Errorf("%d check(s) failed", r.failed)
			}
			if r.warned > 0 {
				fmt.Printf("\nangelbot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! angelbot is ready to run.\n")
			}
			return nil
		},
	}
}

func runDoctorChecks(r *doctorReport, cfg *config.Config) {
	if cfg.Discord.Token == "" {
		r.fail("Discord token", "not set (export "+config.EnvToken+")")
	} else {
		r.pass("Discord token", "set")
	}

	if cfg.Watch.ObservedUserID == "" {
		r.warn("Watched user", "watch.observedUserId is empty, nothing will be captured")
	} else {
		r.pass("Watched user", cfg.Watch.ObservedUserID)
	}

	if msgs, err := store.Load(cfg.Watch.StoragePath); err != nil {
		r.fail("Message store", err.Error())
	} else {
		r.pass("Message store", fmt.Sprintf("%s (%d entries)", cfg.Watch.StoragePath, len(msgs)))
	}

	if len(cfg.Destinations) == 0 {
		r.warn("Destinations", "none configured, deleted messages will not be relayed")
	} else {
		r.pass("Destinations", fmt.Sprintf("%d guild(s)", len(cfg.Destinations)))
	}

	if cfg.RelayLog.Enabled {
		if n, err := checkRelayLog(cfg.RelayLog.DBPath); err != nil {
			r.fail("Relay log", err.Error())
		} else {
			r.pass("Relay log", fmt.Sprintf("%s (%d relays)", cfg.RelayLog.DBPath, n))
		}
	}

	if cfg.Reactions.Enabled {
		if rules, err := reaction.LoadRules(cfg.Reactions.RulesFile, logger); err != nil {
			r.fail("Reaction rules", err.Error())
		} else {
			r.pass("Reaction rules", fmt.Sprintf("%d rule(s)", len(rules)))
		}
	}

	if cfg.Metrics.Enabled {
		if err := checkAddr(cfg.Metrics.Addr); err != nil {
			r.warn("Metrics address", fmt.Sprintf("%s may be in use: %v", cfg.Metrics.Addr, err))
		} else {
			r.pass("Metrics address", cfg.Metrics.Addr+" available")
		}
	}

	if cfg.General.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
			r.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
		} else {
			r.pass("Log file", cfg.General.LogFile)
		}
	}
}

func checkRelayLog(dbPath string) (int, error) {
	db, err := relaylog.Open(dbPath, logger)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return db.Count(ctx, "")
}

func checkAddr(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ln.Close()
}
