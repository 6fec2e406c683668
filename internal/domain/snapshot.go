package domain

import "time"

// Snapshot is the read-only view of the configuration taken for one event.
type Snapshot struct {
	ObservedUserID string
	Destinations   map[string]string // guild ID -> channel ID
	Retention      time.Duration
	SendTimeout    time.Duration
}

// Destination returns the relay channel configured for a guild.
func (s Snapshot) Destination(guildID string) (string, bool) {
	ch, ok := s.Destinations[guildID]
	if !ok || ch == "" {
		return "", false
	}
	return ch, true
}
