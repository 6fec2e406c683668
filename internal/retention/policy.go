// Package retention decides when a captured message has aged out of the store.
package retention

import (
	"time"

	"angelbot/internal/domain"
)

// DefaultWindow is how long a captured message is kept.
const DefaultWindow = 48 * time.Hour

// Policy evicts entries older than Window, measured from capture time.
type Policy struct {
	Window time.Duration
}

// New returns a policy for window, falling back to DefaultWindow when window <= 0.
func New(window time.Duration) Policy {
	if window <= 0 {
		window = DefaultWindow
	}
	return Policy{Window: window}
}

// Expired reports whether an entry captured at capturedAt must go.
// An entry exactly Window old is still retained.
func (p Policy) Expired(now, capturedAt time.Time) bool {
	return now.Sub(capturedAt) > p.Window
}

// Evict splits entries into the ones to keep and the ones that aged out.
// Every input entry lands in exactly one of the two slices and relative
// order is preserved in both.
func (p Policy) Evict(entries []domain.StoredMessage, now time.Time) (kept, evicted []domain.StoredMessage) {
	kept = make([]domain.StoredMessage, 0, len(entries))
	for _, e := range entries {
		if p.Expired(now, e.CapturedAt) {
			evicted = append(evicted, e)
			continue
		}
		kept = append(kept, e)
	}
	return kept, evicted
}
