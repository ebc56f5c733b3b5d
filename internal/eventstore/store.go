// Package eventstore persists conversation timelines: messages
// exchanged with the chat backend and the speech events derived from
// them.
package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/voxkit/voxd/internal/config"
	_ "modernc.org/sqlite"
)

// Event kinds recorded on a conversation timeline.
const (
	KindUserMessage      = "user.message"
	KindAssistantMessage = "assistant.message"
	KindSpeechChunk      = "speech.chunk"
	KindSpeechError      = "speech.error"
)

// Event is one recorded timeline entry.
type Event struct {
	ID             int64
	ConversationID string
	Kind           string
	Voice          string
	Content        string
	CreatedAt      time.Time
}

// Store wraps a SQLite-backed conversation timeline.
type Store struct {
	db    *sql.DB
	cfg   config.EventStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the store according to config. Ephemeral retention
// mode keeps no database at all; every Append becomes a no-op.
func Open(ctx context.Context, cfg config.EventStoreConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("event store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("event store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS conversations (
    conversation_id TEXT PRIMARY KEY,
    voice TEXT,
    model TEXT,
    created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    voice TEXT,
    content TEXT,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(conversation_id) REFERENCES conversations(conversation_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_events_conversation_created ON events(conversation_id, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AppendConversation ensures a conversation row exists.
func (s *Store) AppendConversation(ctx context.Context, conversationID, voice, model string) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations(conversation_id, voice, model, created_at)
		 VALUES(?, ?, ?, ?)
		 ON CONFLICT(conversation_id) DO UPDATE SET voice=excluded.voice, model=excluded.model`,
		conversationID, voice, model, s.clock().UTC())
	return err
}

// AppendEvent writes an event onto a conversation timeline.
func (s *Store) AppendEvent(ctx context.Context, evt Event) error {
	if s.db == nil {
		return nil
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events(conversation_id, kind, voice, content, created_at)
		 VALUES(?, ?, ?, ?, ?)`,
		evt.ConversationID, evt.Kind, evt.Voice, evt.Content, evt.CreatedAt)
	return err
}

// ListEvents retrieves up to limit events for a conversation in time order.
func (s *Store) ListEvents(ctx context.Context, conversationID string, limit int) ([]Event, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, kind, voice, content, created_at
		 FROM events WHERE conversation_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`,
		conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var created string
		if err := rows.Scan(&e.ID, &e.ConversationID, &e.Kind, &e.Voice, &e.Content, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = ts
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Prune applies the configured retention: drop conversations past the
// age cutoff and beyond the conversation count cap.
func (s *Store) Prune(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour).UTC()
		if _, err = tx.ExecContext(ctx, `DELETE FROM events WHERE created_at < ?`, cutoff); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM conversations WHERE created_at < ?`, cutoff); err != nil {
			return err
		}
	}
	if s.cfg.MaxConversations > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM conversations WHERE conversation_id IN (
			SELECT conversation_id FROM conversations ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxConversations)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}
