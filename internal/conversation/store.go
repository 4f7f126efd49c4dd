// Package conversation provides persistent conversation and message
// storage. Every loop iteration writes through here so a crash
// mid-turn loses at most the in-flight provider call.
package conversation

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/zhukov123/openfang/internal/llm"
)

// Origin values for conversations.
const (
	OriginChat  = "chat"
	OriginBotDM = "bot-dm"
)

// ReuseWindow is how recently a bot-dm conversation must have been
// updated to be continued instead of starting a new one.
const ReuseWindow = 6 * time.Hour

// TitleMaxLen is the character cap for auto-generated titles.
const TitleMaxLen = 80

// Conversation is one persisted conversation.
type Conversation struct {
	ID               string    `json:"id"`
	Origin           string    `json:"origin"`
	ExternalUserID   string    `json:"external_user_id,omitempty"`
	ExternalUsername string    `json:"external_username,omitempty"`
	Title            string    `json:"title,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// StoredMessage is one persisted message with its storage metadata.
type StoredMessage struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	Message        llm.Message `json:"message"`
	Model          string      `json:"model,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// messageContent is the JSON shape stored in the content column. The
// role lives in its own column for querying; everything else rides here.
type messageContent struct {
	Content     string           `json:"content,omitempty"`
	ToolCalls   []llm.ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []llm.ToolResult `json:"tool_results,omitempty"`
}

// Store handles conversation and message persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a conversation store with SQLite backend.
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
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		origin TEXT NOT NULL,
		external_user_id TEXT NOT NULL DEFAULT '',
		external_username TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(origin, external_user_id, updated_at);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// NewID generates a new UUIDv7.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails
		return uuid.New().String()
	}
	return id.String()
}

// FindOrCreate resolves the conversation for an incoming message.
//
// An explicit ID wins when it exists. For bot-dm origins, the user's most
// recent conversation is continued if it was updated within ReuseWindow;
// anything older gets a fresh conversation. Chat origins without an
// explicit ID always start fresh.
func (s *Store) FindOrCreate(origin, externalUserID, externalUsername, explicitID string) (*Conversation, error) {
	if explicitID != "" {
		c, err := s.Get(explicitID)
		if err != nil {
			return nil, err
		}
		if c != nil {
			return c, nil
		}
		// Fall through: an unknown explicit ID creates a conversation
		// with that ID so clients can pick their own.
		return s.create(explicitID, origin, externalUserID, externalUsername)
	}

	if origin == OriginBotDM && externalUserID != "" {
		row := s.db.QueryRow(`
			SELECT id, origin, external_user_id, external_username, title, created_at, updated_at
			FROM conversations
			WHERE origin = ? AND external_user_id = ?
			ORDER BY updated_at DESC LIMIT 1
		`, origin, externalUserID)

		c, err := scanConversation(row)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		if c != nil && time.Since(c.UpdatedAt) < ReuseWindow {
			return c, nil
		}
	}

	return s.create(NewID(), origin, externalUserID, externalUsername)
}

func (s *Store) create(id, origin, externalUserID, externalUsername string) (*Conversation, error) {
	now := time.Now()
	c := &Conversation{
		ID:               id,
		Origin:           origin,
		ExternalUserID:   externalUserID,
		ExternalUsername: externalUsername,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	_, err := s.db.Exec(`
		INSERT INTO conversations (id, origin, external_user_id, external_username, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, '', ?, ?)
	`, c.ID, c.Origin, c.ExternalUserID, c.ExternalUsername,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	return c, nil
}

// Get retrieves a conversation by ID. Returns nil, nil when not found.
func (s *Store) Get(id string) (*Conversation, error) {
	row := s.db.QueryRow(`
		SELECT id, origin, external_user_id, external_username, title, created_at, updated_at
		FROM conversations WHERE id = ?
	`, id)

	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// List returns conversations, most recently updated first.
func (s *Store) List(limit int) ([]*Conversation, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT id, origin, external_user_id, external_username, title, created_at, updated_at
		FROM conversations ORDER BY updated_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		c, err := scanConversationRow(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// AppendMessage persists a message and bumps the conversation's
// updated_at so the reuse window tracks activity.
func (s *Store) AppendMessage(conversationID string, msg llm.Message, model string) error {
	content, err := json.Marshal(messageContent{
		Content:     msg.Content,
		ToolCalls:   msg.ToolCalls,
		ToolResults: msg.ToolResults,
	})
	if err != nil {
		return fmt.Errorf("marshal message content: %w", err)
	}

	now := time.Now().Format(time.RFC3339Nano)

	_, err = s.db.Exec(`
		INSERT INTO messages (id, conversation_id, role, content, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, NewID(), conversationID, msg.Role, string(content), model, now)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	_, err = s.db.Exec(`UPDATE conversations SET updated_at = ? WHERE id = ?`, now, conversationID)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}

	return nil
}

// RecentHistory returns the conversation's last limit messages in
// chronological order, ready to send to a provider.
func (s *Store) RecentHistory(conversationID string, limit int) ([]llm.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	// Grab the newest N, then reverse into chronological order.
	rows, err := s.db.Query(`
		SELECT role, content FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?
	`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var newest []llm.Message
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, err
		}

		var mc messageContent
		if err := json.Unmarshal([]byte(content), &mc); err != nil {
			return nil, fmt.Errorf("unmarshal message content: %w", err)
		}
		newest = append(newest, llm.Message{
			Role:        role,
			Content:     mc.Content,
			ToolCalls:   mc.ToolCalls,
			ToolResults: mc.ToolResults,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(newest)-1; i < j; i, j = i+1, j-1 {
		newest[i], newest[j] = newest[j], newest[i]
	}
	return newest, nil
}

// Messages returns all stored messages for a conversation in
// chronological order, including storage metadata.
func (s *Store) Messages(conversationID string) ([]*StoredMessage, error) {
	rows, err := s.db.Query(`
		SELECT id, conversation_id, role, content, model, created_at
		FROM messages WHERE conversation_id = ?
		ORDER BY created_at ASC, id ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*StoredMessage
	for rows.Next() {
		var m StoredMessage
		var role, content, createdAt string

		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &content, &m.Model, &createdAt); err != nil {
			return nil, err
		}

		var mc messageContent
		if err := json.Unmarshal([]byte(content), &mc); err != nil {
			return nil, fmt.Errorf("unmarshal message content: %w", err)
		}
		m.Message = llm.Message{
			Role:        role,
			Content:     mc.Content,
			ToolCalls:   mc.ToolCalls,
			ToolResults: mc.ToolResults,
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

// SetTitleIfMissing backfills the conversation title from the first user
// message. Existing titles are never overwritten.
func (s *Store) SetTitleIfMissing(conversationID, text string) error {
	_, err := s.db.Exec(`
		UPDATE conversations SET title = ? WHERE id = ? AND title = ''
	`, TruncateTitle(text), conversationID)
	return err
}

// Delete removes a conversation and its messages.
func (s *Store) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM conversations WHERE id = ?`, id)
	return err
}

// TruncateTitle caps a title at TitleMaxLen characters, appending "..."
// when the source text was longer.
func TruncateTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= TitleMaxLen {
		return text
	}
	return string(runes[:TitleMaxLen]) + "..."
}

// Helper scan functions

func scanConversation(row *sql.Row) (*Conversation, error) {
	var c Conversation
	var createdAt, updatedAt string

	err := row.Scan(&c.ID, &c.Origin, &c.ExternalUserID, &c.ExternalUsername, &c.Title, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &c, nil
}

func scanConversationRow(rows *sql.Rows) (*Conversation, error) {
	var c Conversation
	var createdAt, updatedAt string

	err := rows.Scan(&c.ID, &c.Origin, &c.ExternalUserID, &c.ExternalUsername, &c.Title, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &c, nil
}
