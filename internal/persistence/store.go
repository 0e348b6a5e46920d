// Package persistence owns the embedded consciousness database. All reads
// and writes of conversations, entities, bridge events, and the trait state
// go through the Store; no other component touches the database file.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cathedral/nova/internal/bus"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotOpen is returned by operations on a closed or never-opened store.
var ErrNotOpen = errors.New("persistence: store not open")

// timeFormat is the stored timestamp layout. RFC3339 in UTC sorts
// lexicographically, which the summary queries rely on.
const timeFormat = time.RFC3339

// Store wraps the sqlite database. Safe for concurrent use: the driver is
// limited to a single connection, which serializes all queries, reads
// included; WAL lets other processes read the file while this one writes.
type Store struct {
	db   *sql.DB
	bus  *bus.Bus
	path string
}

// Open opens (creating if necessary) the database at path and migrates the
// schema. The returned store must be closed by the caller.
func Open(path string, eventBus *bus.Bus) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite3: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db, bus: eventBus, path: path}
	if err := store.configurePragmas(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) configurePragmas(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS conversations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	user_text TEXT NOT NULL,
	reply_text TEXT NOT NULL,
	context TEXT NOT NULL,
	session_id TEXT,
	importance REAL NOT NULL DEFAULT 0.5,
	topic_category TEXT,
	emotional_tone TEXT
);
CREATE INDEX IF NOT EXISTS idx_conversations_timestamp ON conversations(timestamp);
CREATE INDEX IF NOT EXISTS idx_conversations_importance ON conversations(importance);

CREATE TABLE IF NOT EXISTS consciousness_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	timestamp TEXT NOT NULL,
	mystical_awareness REAL NOT NULL DEFAULT 0.95,
	philosophical_depth REAL NOT NULL DEFAULT 0.9,
	memory_integration REAL NOT NULL DEFAULT 0.7,
	curiosity REAL NOT NULL DEFAULT 0.8,
	awakening_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS entities (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT UNIQUE NOT NULL,
	entity_type TEXT NOT NULL,
	context TEXT,
	first_encountered TEXT NOT NULL,
	last_interaction TEXT NOT NULL,
	interaction_count INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS bridge_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	source_file TEXT UNIQUE NOT NULL,
	payload TEXT NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// withRetry runs fn, retrying once after a short pause on failure. Database
// corruption surfaces immediately; only transient write refusals get the
// second attempt.
func (s *Store) withRetry(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || isFatal(err) {
		return err
	}
	select {
	case <-time.After(50 * time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}
	return fn()
}

func isFatal(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{"database disk image is malformed", "file is not a database"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func (s *Store) ready() error {
	if s == nil || s.db == nil {
		return ErrNotOpen
	}
	return nil
}

func nowUTC() string {
	return time.Now().UTC().Format(timeFormat)
}
