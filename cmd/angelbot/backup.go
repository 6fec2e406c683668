package main

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"angelbot/internal/config"

	"github.com/spf13/cobra"
)

// backupSet maps archive names to the files they come from and restore to.
type backupSet map[string]string

func newBackupSet(cfgPath string, cfg *config.Config) backupSet {
	set := backupSet{"config.json": cfgPath}
	if cfg != nil {
		set["message_storage.json"] = cfg.Watch.StoragePath
		if cfg.RelayLog.DBPath != "" {
			set["relays.db"] = cfg.RelayLog.DBPath
			set["relays.db-wal"] = cfg.RelayLog.DBPath + "-wal"
			set["relays.db-shm"] = cfg.RelayLog.DBPath + "-shm"
		}
	}
	return set
}

func loadBackupSet() (backupSet, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return newBackupSet(cfgPath, cfg), nil
}

func backupCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create a backup of angelbot data (config, message store, relay log)",
		Long: `Creates a compressed .tar.gz archive containing the config file, the
message store and the relay database. The backup is timestamped by default.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := loadBackupSet()
			if err != nil {
				return err
			}

			if outputPath == "" {
				backupDir := filepath.Join(config.DefaultConfigDir(), "backups")
				if err := os.MkdirAll(backupDir, 0o755); err != nil {
					return fmt.Errorf("cannot create backup directory: %w", err)
				}
				ts := time.Now().Format("20060102-150405")
				outputPath = filepath.Join(backupDir, fmt.Sprintf("angelbot-backup-%s.tar.gz", ts))
			}

			n, err := createTarGz(outputPath, set)
			if err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}
			if n == 0 {
				os.Remove(outputPath)
				return fmt.Errorf("no files to back up")
			}
			fmt.Printf("Backup created: %s (%d files)\n", outputPath, n)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file path (default: ~/.angelbot/backups/angelbot-backup-<timestamp>.tar.gz)")
	return cmd
}

func restoreCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "restore [file.tar.gz]",
		Short: "Restore angelbot data from a backup archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := loadBackupSet()
			if err != nil {
				// A broken config is a reason to restore; fall back to the default layout.
				cfg := config.Defaults()
				cfg.Watch.StoragePath = config.ExpandPath(cfg.Watch.StoragePath)
				cfg.RelayLog.DBPath = config.ExpandPath(cfg.RelayLog.DBPath)
				set = newBackupSet(resolveConfigPath(), cfg)
			}

			if !force {
				for _, path := range set {
					if _, err := os.Stat(path); err == nil {
						fmt.Printf("WARNING: %s exists and will be overwritten.\n", path)
						return fmt.Errorf("restore aborted (use --force to proceed)")
					}
				}
			}

			restored, err := extractTarGz(args[0], set)
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}
			fmt.Printf("Restore completed from: %s\n", args[0])
			for _, f := range restored {
				fmt.Printf("  - %s\n", f)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing data without warning")
	return cmd
}

// createTarGz archives every file of set that exists and returns how many
// were written.
func createTarGz(outputPath string, set backupSet) (int, error) {
	outFile, err := os.Create(outputPath)
	if err != nil {
		return 0, err
	}
	defer outFile.Close()

	gzWriter := gzip.NewWriter(outFile)
	tarWriter := tar.NewWriter(gzWriter)

	n := 0
	for name, path := range set {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := addFileToTar(tarWriter, name, path); err != nil {
			return n, fmt.Errorf("add %s: %w", path, err)
		}
		n++
	}

	if err := tarWriter.Close(); err != nil {
		return n, err
	}
	if err := gzWriter.Close(); err != nil {
		return n, err
	}
	return n, outFile.Close()
}

func addFileToTar(tw *tar.Writer, name, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = name

	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tw, file)
	return err
}

// extractTarGz restores the archive members named in set. Unknown members
// are skipped.
func extractTarGz(archivePath string, set backupSet) ([]string, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("not a valid gzip file: %w", err)
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)
	var restored []string
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return restored, err
		}

		target, ok := set[filepath.Base(header.Name)]
		if !ok || header.Typeflag != tar.TypeReg {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return restored, err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return restored, fmt.Errorf("create %s: %w", target, err)
		}
		if _, err := io.Copy(out, tarReader); err != nil {
			out.Close()
			return restored, fmt.Errorf("extract %s: %w", target, err)
		}
		if err := out.Close(); err != nil {
			return restored, err
		}
		restored = append(restored, target)
	}
	return restored, nil
}
