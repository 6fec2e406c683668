package config

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"angelbot/internal/domain"
)

// Store owns the config file at runtime. Readers get a fresh copy on every
// call so edits made by the /config command apply to the next event without
// a restart. Writes are serialized and keep ${VAR} references unexpanded.
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: ExpandPath(path)}
}

func (s *Store) Path() string { return s.path }

// ensure writes the defaults when no config file exists yet.
func (s *Store) ensure() error {
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		if err := Save(s.path, Defaults()); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrIO, err)
		}
	}
	return nil
}

// Load returns the current validated config.
func (s *Store) Load() (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensure(); err != nil {
		return nil, err
	}
	return Load(s.path)
}

// Snapshot returns the read-only view the watcher pipelines consume.
func (s *Store) Snapshot() (domain.Snapshot, error) {
	cfg, err := s.Load()
	if err != nil {
		return domain.Snapshot{}, err
	}
	return SnapshotOf(cfg), nil
}

// SnapshotOf converts a loaded config into a watcher snapshot.
func SnapshotOf(cfg *Config) domain.Snapshot {
	dest := make(map[string]string, len(cfg.Destinations))
	for g, c := range cfg.Destinations {
		dest[g] = c
	}
	return domain.Snapshot{
		ObservedUserID: cfg.Watch.ObservedUserID,
		Destinations:   dest,
		Retention:      time.Duration(cfg.Watch.RetentionHours) * time.Hour,
		SendTimeout:    time.Duration(cfg.Watch.SendTimeoutSeconds) * time.Second,
	}
}

// Update applies fn to the raw config and saves it.
func (s *Store) Update(fn func(*Config) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensure(); err != nil {
		return err
	}

	cfg, err := read(s.path, false)
	if err != nil {
		return err
	}
	if err := fn(cfg); err != nil {
		return err
	}
	return Save(s.path, cfg)
}

// SetDestination points relays for guildID at channelID, replacing any
// previous channel.
func (s *Store) SetDestination(guildID, channelID string) error {
	if !isSnowflake(guildID) {
		return fmt.Errorf("invalid guild ID %q", guildID)
	}
	if !isSnowflake(channelID) {
		return fmt.Errorf("invalid channel ID %q", channelID)
	}
	return s.Update(func(cfg *Config) error {
		cfg.Destinations[guildID] = channelID
		return nil
	})
}

// RemoveDestination stops relaying for guildID. It reports whether an entry existed.
func (s *Store) RemoveDestination(guildID string) (bool, error) {
	var existed bool
	err := s.Update(func(cfg *Config) error {
		_, existed = cfg.Destinations[guildID]
		delete(cfg.Destinations, guildID)
		return nil
	})
	return existed, err
}
