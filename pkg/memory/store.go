package memory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store is the relational store of record for turns and important entries.
// The vector index is a derived artifact keyed off the rowids this store
// hands out; on any disagreement the store wins.
type Store struct {
	db *sql.DB

	// tsMu serializes timestamp assignment so timestamps strictly
	// increase even if the wall clock steps backwards.
	tsMu   sync.Mutex
	lastUS int64
}

// NewStore creates/opens the memory database at path.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create memory db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Single-process library. One shared connection avoids writer lock
	// contention with SQLite under concurrent goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT NOT NULL UNIQUE,
			author TEXT NOT NULL,
			user_input TEXT NOT NULL,
			assistant_response TEXT NOT NULL,
			timestamp_us INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS conversations_ts_idx ON conversations(timestamp_us DESC);`,
		`CREATE TABLE IF NOT EXISTS important (
			id TEXT NOT NULL UNIQUE,
			content TEXT NOT NULL,
			timestamp_us INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS important_ts_idx ON important(timestamp_us ASC);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init sqlite schema: %w", err)
		}
	}
	return nil
}

// nextTimestampUS assigns a write timestamp in microseconds, clamped so it
// strictly increases across inserts even when the wall clock stalls or
// steps backwards. Chronological ordering then matches insertion order
// without relying on rowid tie-breaks.
func (s *Store) nextTimestampUS() int64 {
	s.tsMu.Lock()
	defer s.tsMu.Unlock()
	now := time.Now().UnixMicro()
	if now <= s.lastUS {
		now = s.lastUS + 1
	}
	s.lastUS = now
	return now
}

// InsertTurn records a completed exchange and returns the new row's internal
// identity (the vector index key) alongside the stored turn.
func (s *Store) InsertTurn(ctx context.Context, author, userInput, assistantResponse string) (int64, ConversationTurn, error) {
	turn := ConversationTurn{
		ID:                uuid.NewString(),
		Author:            author,
		UserInput:         userInput,
		AssistantResponse: assistantResponse,
		TimestampUS:       s.nextTimestampUS(),
	}

	res, err := s.db.ExecContext(ctx, `
INSERT INTO conversations(id, author, user_input, assistant_response, timestamp_us)
VALUES(?, ?, ?, ?, ?)`,
		turn.ID, turn.Author, turn.UserInput, turn.AssistantResponse, turn.TimestampUS)
	if err != nil {
		return 0, ConversationTurn{}, fmt.Errorf("insert turn: %w", err)
	}
	rowid, err := res.LastInsertId()
	if err != nil {
		return 0, ConversationTurn{}, fmt.Errorf("insert turn rowid: %w", err)
	}
	return rowid, turn, nil
}

// RecentTurns returns the newest n turns in chronological (oldest-first)
// order.
func (s *Store) RecentTurns(ctx context.Context, n int) ([]ConversationTurn, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, author, user_input, assistant_response, timestamp_us
FROM conversations
ORDER BY timestamp_us DESC, rowid DESC
LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("recent turns: %w", err)
	}
	defer rows.Close()

	turns, err := scanTurns(rows)
	if err != nil {
		return nil, fmt.Errorf("recent turns: %w", err)
	}
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// TurnsByRowIDs resolves internal identities back to turns. Missing rowids
// are silently skipped: the index may carry keys for rows that no longer
// resolve, and the store is authoritative.
func (s *Store) TurnsByRowIDs(ctx context.Context, rowids []uint64) ([]ConversationTurn, error) {
	if len(rowids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(rowids))
	args := make([]interface{}, len(rowids))
	for i, id := range rowids {
		placeholders[i] = "?"
		args[i] = int64(id)
	}

	query := fmt.Sprintf(`
SELECT id, author, user_input, assistant_response, timestamp_us
FROM conversations
WHERE rowid IN (%s)
ORDER BY timestamp_us ASC, rowid ASC`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("turns by rowid: %w", err)
	}
	defer rows.Close()

	turns, err := scanTurns(rows)
	if err != nil {
		return nil, fmt.Errorf("turns by rowid: %w", err)
	}
	return turns, nil
}

func scanTurns(rows *sql.Rows) ([]ConversationTurn, error) {
	var turns []ConversationTurn
	for rows.Next() {
		var t ConversationTurn
		if err := rows.Scan(&t.ID, &t.Author, &t.UserInput, &t.AssistantResponse, &t.TimestampUS); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// InsertImportant stores a new important entry with a short public id.
func (s *Store) InsertImportant(ctx context.Context, content string) (ImportantEntry, error) {
	entry := ImportantEntry{
		ID:          uuid.NewString()[:8],
		Content:     content,
		TimestampUS: s.nextTimestampUS(),
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO important(id, content, timestamp_us) VALUES(?, ?, ?)`,
		entry.ID, entry.Content, entry.TimestampUS)
	if err != nil {
		return ImportantEntry{}, fmt.Errorf("insert important entry: %w", err)
	}
	return entry, nil
}

// ListImportant returns all important entries oldest-first.
func (s *Store) ListImportant(ctx context.Context) ([]ImportantEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, content, timestamp_us FROM important ORDER BY timestamp_us ASC, rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("list important entries: %w", err)
	}
	defer rows.Close()

	var entries []ImportantEntry
	for rows.Next() {
		var e ImportantEntry
		if err := rows.Scan(&e.ID, &e.Content, &e.TimestampUS); err != nil {
			return nil, fmt.Errorf("list important entries: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list important entries: %w", err)
	}
	return entries, nil
}

// DeleteImportant removes an entry by its public id. Returns false without
// error when the id does not exist.
func (s *Store) DeleteImportant(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM important WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete important entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete important entry: %w", err)
	}
	return affected > 0, nil
}
