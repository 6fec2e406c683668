package config

// Defaults returns the configuration used when a key is absent from the file.
func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Discord: DiscordConfig{
			Token: "",
		},
		Watch: WatchConfig{
			StoragePath:        "~/.angelbot/message_storage.json",
			RetentionHours:     48,
			SendTimeoutSeconds: 10,
		},
		Destinations: map[string]string{},
		Reactions: ReactionsConfig{
			Enabled: true,
		},
		RelayLog: RelayLogConfig{
			Enabled: true,
			DBPath:  "~/.angelbot/relays.db",
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Addr:     "127.0.0.1:9464",
			Endpoint: "/metrics",
		},
	}
}
