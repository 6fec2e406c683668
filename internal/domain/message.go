package domain

import "time"

// Message is the platform-independent copy of a chat message kept by the store.
type Message struct {
	ID          string       `json:"id"`
	ChannelID   string       `json:"channel_id"`
	GuildID     string       `json:"guild_id,omitempty"`
	AuthorID    string       `json:"author_id"`
	AuthorName  string       `json:"author_name,omitempty"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

type Attachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// StoredMessage pairs a message with the moment the bot observed it.
// Retention is measured from CapturedAt, never from the platform timestamp.
type StoredMessage struct {
	CapturedAt time.Time `json:"captured_at"`
	Message    Message   `json:"message"`
}

// MessageCreated is published for every message the gateway delivers.
type MessageCreated struct {
	Message Message
}

// MessageDeleted carries only identifiers; the content is gone on the platform side.
type MessageDeleted struct {
	ID        string
	ChannelID string
	GuildID   string // empty outside a guild (DMs)
}

// Event is one inbound gateway event. Exactly one field is set.
type Event struct {
	Created *MessageCreated
	Deleted *MessageDeleted
}

// Kind returns a short label for logging.
func (e Event) Kind() string {
	switch {
	case e.Created != nil:
		return "message_create"
	case e.Deleted != nil:
		return "message_delete"
	default:
		return "unknown"
	}
}
