// Package relaylog keeps a SQLite history of relay attempts.
package relaylog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"angelbot/internal/bus"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"

	recordTimeout = 5 * time.Second

	// Fixed-width so relayed_at sorts lexically.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Entry is one relay attempt.
type Entry struct {
	ID          string
	MessageID   string
	GuildID     string
	ChannelID   string
	Destination string
	AuthorID    string
	Content     string
	Status      string
	Error       string
	CapturedAt  time.Time
	RelayedAt   time.Time
}

// Age is how long the message existed in the store before it was relayed.
func (e Entry) Age() time.Duration {
	if e.CapturedAt.IsZero() {
		return 0
	}
	return e.RelayedAt.Sub(e.CapturedAt)
}

type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open creates or opens the relay database at path and migrates it.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return &Store{db: db, path: path, logger: logger}, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Close() error { return s.db.Close() }

// Record inserts an entry, assigning an id and timestamp when missing.
func (s *Store) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.RelayedAt.IsZero() {
		e.RelayedAt = time.Now().UTC()
	}
	captured := ""
	if !e.CapturedAt.IsZero() {
		captured = e.CapturedAt.UTC().Format(timeLayout)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relays (id, message_id, guild_id, channel_id, destination, author_id, content, status, error, captured_at, relayed_at, age_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.MessageID, e.GuildID, e.ChannelID, e.Destination, e.AuthorID, e.Content,
		e.Status, e.Error, captured, e.RelayedAt.UTC().Format(timeLayout), e.Age().Milliseconds(),
	)
	if err != nil {
		return e, fmt.Errorf("record relay %s: %w", e.MessageID, err)
	}
	return e, nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, guild_id, channel_id, destination, author_id, content, status, error, captured_at, relayed_at
		FROM relays ORDER BY relayed_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query relays: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var captured, relayed string
		if err := rows.Scan(&e.ID, &e.MessageID, &e.GuildID, &e.ChannelID, &e.Destination,
			&e.AuthorID, &e.Content, &e.Status, &e.Error, &captured, &relayed); err != nil {
			return nil, fmt.Errorf("scan relay: %w", err)
		}
		e.CapturedAt = parseTime(captured)
		e.RelayedAt = parseTime(relayed)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of recorded attempts with the given status, or
// all attempts when status is empty.
func (s *Store) Count(ctx context.Context, status string) (int, error) {
	var n int
	var err error
	if status == "" {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM relays").Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM relays WHERE status = ?", status).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count relays: %w", err)
	}
	return n, nil
}

// CountRelayed returns how many relays to guildID were sent at or after since.
func (s *Store) CountRelayed(ctx context.Context, guildID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM relays WHERE guild_id = ? AND status = ? AND relayed_at >= ?",
		guildID, StatusSent, since.UTC().Format(timeLayout),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count relays for guild %s: %w", guildID, err)
	}
	return n, nil
}

// Attach records every relay.sent and relay.failed event. It returns the
// handler ids.
func (s *Store) Attach(eb *bus.EventBus) []string {
	record := func(status string) bus.EventHandler {
		return func(ev bus.Event) {
			e := Entry{
				MessageID:   ev.MessageID,
				GuildID:     ev.GuildID,
				ChannelID:   ev.ChannelID,
				Destination: ev.Destination,
				AuthorID:    ev.AuthorID,
				Content:     ev.Content,
				Status:      status,
				CapturedAt:  ev.CapturedAt,
				RelayedAt:   ev.Timestamp,
			}
			if ev.Err != nil {
				e.Error = ev.Err.Error()
			}
			ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
			defer cancel()
			if _, err := s.Record(ctx, e); err != nil {
				s.logger.Warn("failed to record relay", "message_id", ev.MessageID, "db", s.path, "err", err)
			}
		}
	}
	return []string{
		eb.On(bus.EventRelaySent, record(StatusSent)),
		eb.On(bus.EventRelayFailed, record(StatusFailed)),
	}
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
