package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// EnvToken overrides discord.token when set.
	EnvToken = "ANGEL_BOT_TOKEN"
	// EnvConfigFile points at the config file when --config is not given.
	EnvConfigFile = "ANGEL_BOT_CONFIGFILE"
)

// Config is the root configuration for angelbot.
type Config struct {
	General      GeneralConfig     `json:"general"`
	Discord      DiscordConfig     `json:"discord"`
	Watch        WatchConfig       `json:"watch"`
	Destinations map[string]string `json:"destinations"` // guild ID -> channel ID
	Reactions    ReactionsConfig   `json:"reactions"`
	RelayLog     RelayLogConfig    `json:"relayLog"`
	Metrics      MetricsConfig     `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"`
	LogFile  string `json:"logFile,omitempty"`
}

type DiscordConfig struct {
	Token   string `json:"token"`
	GuildID string `json:"guildId,omitempty"` // optional: restrict events and commands to one guild
}

// WatchConfig describes whose messages are retained and for how long.
type WatchConfig struct {
	ObservedUserID     string `json:"observedUserId"`
	StoragePath        string `json:"storagePath"`
	RetentionHours     int    `json:"retentionHours"`
	SendTimeoutSeconds int    `json:"sendTimeoutSeconds"`
}

type ReactionsConfig struct {
	Enabled   bool   `json:"enabled"`
	RulesFile string `json:"rulesFile,omitempty"` // YAML; empty = built-in rules
}

type RelayLogConfig struct {
	Enabled bool   `json:"enabled"`
	DBPath  string `json:"dbPath"`
}

// MetricsConfig configures the Prometheus text endpoint.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Endpoint string `json:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.angelbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".angelbot"
	}
	return filepath.Join(home, ".angelbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// ResolvePath picks the config file: explicit flag, then $ANGEL_BOT_CONFIGFILE, then the default.
func ResolvePath(flag string) string {
	if flag != "" {
		return ExpandPath(flag)
	}
	if env := os.Getenv(EnvConfigFile); env != "" {
		return ExpandPath(env)
	}
	return DefaultConfigPath()
}

// Load reads, expands and validates the config at path.
func Load(path string) (*Config, error) {
	cfg, err := read(ExpandPath(path), true)
	if err != nil {
		return nil, err
	}

	if tok := os.Getenv(EnvToken); tok != "" {
		cfg.Discord.Token = tok
	}
	cfg.Watch.StoragePath = ExpandPath(cfg.Watch.StoragePath)
	cfg.RelayLog.DBPath = ExpandPath(cfg.RelayLog.DBPath)
	cfg.Reactions.RulesFile = ExpandPath(cfg.Reactions.RulesFile)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// read parses the file over Defaults. With expand=false the raw text is kept,
// which is what writers use so ${VAR} references survive a save.
func read(path string, expand bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}
	if expand {
		data = []byte(ExpandEnvVars(string(data)))
	}

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	if cfg.Destinations == nil {
		cfg.Destinations = make(map[string]string)
	}
	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty; an unset
// variable without a default is left as written.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match
		}
		return val
	})
}

// Save writes cfg to path atomically.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("cannot write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("cannot replace config: %w", err)
	}
	return nil
}

// Validate checks that the config has usable values.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Watch.StoragePath == "" {
		errs = append(errs, "watch.storagePath is required")
	}
	if cfg.Watch.RetentionHours < 1 {
		errs = append(errs, "watch.retentionHours must be >= 1")
	}
	if cfg.Watch.SendTimeoutSeconds < 1 || cfg.Watch.SendTimeoutSeconds > 300 {
		errs = append(errs, "watch.sendTimeoutSeconds must be between 1 and 300")
	}
	if cfg.Watch.ObservedUserID != "" && !isSnowflake(cfg.Watch.ObservedUserID) {
		errs = append(errs, "watch.observedUserId must be a numeric Discord ID")
	}

	for guild, channel := range cfg.Destinations {
		if !isSnowflake(guild) {
			errs = append(errs, fmt.Sprintf("destinations: guild key %q is not a numeric Discord ID", guild))
		}
		if channel != "" && !isSnowflake(channel) {
			errs = append(errs, fmt.Sprintf("destinations.%s: channel %q is not a numeric Discord ID", guild, channel))
		}
	}

	if cfg.RelayLog.Enabled && cfg.RelayLog.DBPath == "" {
		errs = append(errs, "relayLog.dbPath is required when relayLog is enabled")
	}
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Addr == "" {
			errs = append(errs, "metrics.addr is required when metrics are enabled")
		}
		if !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
			errs = append(errs, "metrics.endpoint must start with /")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func isSnowflake(s string) bool {
	if s == "" || len(s) > 20 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
