// Package store is the append-only SQLite log of classified Telegram
// messages: the Message Store component.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ThreatTypes enumerates the seven risk verdicts a classified message can carry.
var ThreatTypes = []string{"safe", "toxicity", "threat", "scam", "recruitment", "drugs", "terrorism"}

func isKnownType(t string) bool {
	for _, v := range ThreatTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Message is one row of the messages table.
type Message struct {
	ID                int64
	TelegramMessageID sql.NullInt64
	TelegramChatID    sql.NullString
	MessageTS         int64 // seconds epoch
	ReceivedTS        int64 // ms epoch at insert
	Chat              string
	Sender            string
	Text              string
	Type              string
	Score             float64
}

// Stats is the per-category count map returned by readStats, guaranteed to
// carry all seven categories (zero when absent).
type Stats map[string]int64

// Store wraps the messages.sqlite3 database.
type Store struct {
	db *sql.DB
}

// DefaultDBPath returns the default location of the SQLite file under homeDir.
func DefaultDBPath(homeDir string) string {
	return filepath.Join(homeDir, "messages.sqlite3")
}

// Open creates (if needed) and migrates the messages database at path,
// configuring WAL journaling and NORMAL synchronous durability.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store: empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite3: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.configurePragmas(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) configurePragmas(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) initSchema(ctx context.Context) error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		telegram_message_id INTEGER NULL,
		telegram_chat_id TEXT NULL,
		message_ts INTEGER NOT NULL,
		received_ts INTEGER NOT NULL,
		chat TEXT NOT NULL,
		sender TEXT NOT NULL,
		text TEXT NOT NULL,
		type TEXT NOT NULL,
		score REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_received_ts ON messages(received_ts DESC);
	CREATE INDEX IF NOT EXISTS idx_messages_type ON messages(type);
	`
	_, err := s.db.ExecContext(ctx, ddl)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// retryOnBusy retries f when SQLite returns BUSY or LOCKED, using bounded
// exponential backoff with jitter on top of the driver's busy_timeout.
func retryOnBusy(ctx context.Context, maxRetries int, f func() error) error {
	const baseDelay = 50 * time.Millisecond
	const maxDelay = 500 * time.Millisecond

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = f()
		if err == nil {
			return nil
		}
		if !isSQLiteBusy(err) {
			return err
		}
		if attempt == maxRetries {
			return err
		}
		delay := baseDelay * time.Duration(math.Pow(2, float64(attempt)))
		if delay > maxDelay {
			delay = maxDelay
		}
		jitter := time.Duration(rand.IntN(int(delay/2) + 1))
		delay = delay - delay/4 + jitter

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "(5)") ||
		strings.Contains(msg, "(6)")
}

// NewEntry is the input to Store; it mirrors Message but lets callers omit
// the autoincrement id and leave MessageTS/ReceivedTS to be coerced/defaulted.
type NewEntry struct {
	TelegramMessageID *int64
	TelegramChatID    *string
	MessageTS         int64 // seconds epoch; <=0 or absent means "now"
	Chat              string
	Sender            string
	Text              string
	Type              string
	Score             float64
}

// StoreMessage inserts one row. Failures are the caller's concern to log and
// swallow (the ingestion path must not halt on storage errors); StoreMessage
// itself always returns whatever database/sql reports.
func (s *Store) StoreMessage(ctx context.Context, e NewEntry) error {
	messageTS := e.MessageTS
	if messageTS < 0 || !isFiniteInt64(messageTS) {
		messageTS = 0
	}
	if messageTS == 0 {
		messageTS = time.Now().Unix()
	}

	score := e.Score
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	typ := e.Type
	if !isKnownType(typ) {
		typ = "safe"
	}

	receivedTS := time.Now().UnixMilli()

	return retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO messages
				(telegram_message_id, telegram_chat_id, message_ts, received_ts, chat, sender, text, type, score)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, nullableInt64(e.TelegramMessageID), nullableString(e.TelegramChatID), messageTS, receivedTS, e.Chat, e.Sender, e.Text, typ, score)
		return err
	})
}

// ReadRecent returns rows ordered by received_ts DESC, limit clamped to [1,1000].
func (s *Store) ReadRecent(ctx context.Context, limit int) ([]Message, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 1000 {
		limit = 1000
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, telegram_message_id, telegram_chat_id, message_ts, received_ts, chat, sender, text, type, score
		FROM messages
		ORDER BY received_ts DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.TelegramMessageID, &m.TelegramChatID, &m.MessageTS, &m.ReceivedTS, &m.Chat, &m.Sender, &m.Text, &m.Type, &m.Score); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ReadStats returns counts grouped by type, with all seven categories present.
func (s *Store) ReadStats(ctx context.Context) (Stats, error) {
	stats := make(Stats, len(ThreatTypes))
	for _, t := range ThreatTypes {
		stats[t] = 0
	}

	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM messages GROUP BY type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var typ string
		var count int64
		if err := rows.Scan(&typ, &count); err != nil {
			return nil, err
		}
		if isKnownType(typ) {
			stats[typ] = count
		}
	}
	return stats, rows.Err()
}

func isFiniteInt64(v int64) bool {
	return v != math.MinInt64 && v != math.MaxInt64
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
