package domain

import "context"

// Sender delivers text to a platform channel.
type Sender interface {
	Send(ctx context.Context, channelID string, content string) error
}
