// Package memory provides long-term memory storage for the agent.
// Memories are short free-text facts the model chooses to save and
// recall across conversations.
package memory

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Memory is one saved fact.
type Memory struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	Category       string    `json:"category,omitempty"`
	Source         string    `json:"source,omitempty"` // e.g. "chat", "scheduled"
	ConversationID string    `json:"conversation_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Store is a SQLite-backed memory store.
type Store struct {
	db *sql.DB
}

// NewStore creates a memory store with SQLite backend.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		conversation_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_memories_category ON memories(category);
	CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// newID generates a new UUIDv7.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails
		return uuid.New().String()
	}
	return id.String()
}

// Save persists a new memory and returns it with ID and timestamps set.
func (s *Store) Save(m *Memory) error {
	if m.Content == "" {
		return fmt.Errorf("memory content is required")
	}
	if m.ID == "" {
		m.ID = newID()
	}
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO memories (id, content, category, source, conversation_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.Content, m.Category, m.Source, m.ConversationID,
		m.CreatedAt.Format(time.RFC3339Nano), m.UpdatedAt.Format(time.RFC3339Nano))

	return err
}

// Search returns memories whose content matches the query (substring,
// case-insensitive), newest first. An empty category matches all.
func (s *Store) Search(query, category string, limit int) ([]*Memory, error) {
	if limit <= 0 {
		limit = 10
	}

	q := `SELECT id, content, category, source, conversation_id, created_at, updated_at
		FROM memories WHERE content LIKE ? ESCAPE '\'`
	args := []any{"%" + escapeLike(query) + "%"}

	if category != "" {
		q += ` AND category = ?`
		args = append(args, category)
	}
	q += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMemories(rows)
}

// List returns the most recent memories, optionally filtered by category.
func (s *Store) List(category string, limit int) ([]*Memory, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `SELECT id, content, category, source, conversation_id, created_at, updated_at FROM memories`
	var args []any
	if category != "" {
		q += ` WHERE category = ?`
		args = append(args, category)
	}
	q += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMemories(rows)
}

// Get retrieves a memory by ID. Returns nil, nil when not found.
func (s *Store) Get(id string) (*Memory, error) {
	row := s.db.QueryRow(`
		SELECT id, content, category, source, conversation_id, created_at, updated_at
		FROM memories WHERE id = ?
	`, id)

	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// Forget deletes a memory by ID. Returns false when no row matched.
func (s *Store) Forget(id string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Count returns the total number of stored memories.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM memories`).Scan(&n)
	return n, err
}

// escapeLike escapes LIKE metacharacters in user-supplied queries.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Helper scan functions

func scanMemory(row *sql.Row) (*Memory, error) {
	var m Memory
	var createdAt, updatedAt string

	err := row.Scan(&m.ID, &m.Content, &m.Category, &m.Source, &m.ConversationID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	m.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &m, nil
}

func scanMemories(rows *sql.Rows) ([]*Memory, error) {
	var memories []*Memory
	for rows.Next() {
		var m Memory
		var createdAt, updatedAt string

		err := rows.Scan(&m.ID, &m.Content, &m.Category, &m.Source, &m.ConversationID, &createdAt, &updatedAt)
		if err != nil {
			return nil, err
		}

		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		m.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		memories = append(memories, &m)
	}
	return memories, rows.Err()
}
