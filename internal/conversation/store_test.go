package conversation

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zhukov123/openfang/internal/llm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "conversation_test.db")
	s, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFindOrCreate_ExplicitID(t *testing.T) {
	s := newTestStore(t)

	c1, err := s.FindOrCreate(OriginChat, "", "", "my-conversation")
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	if c1.ID != "my-conversation" {
		t.Errorf("ID = %q, want explicit ID", c1.ID)
	}

	c2, err := s.FindOrCreate(OriginChat, "", "", "my-conversation")
	if err != nil {
		t.Fatalf("FindOrCreate again: %v", err)
	}
	if c2.ID != c1.ID {
		t.Error("explicit ID should reuse the existing conversation")
	}
}

func TestFindOrCreate_ChatAlwaysFresh(t *testing.T) {
	s := newTestStore(t)

	c1, _ := s.FindOrCreate(OriginChat, "", "", "")
	c2, _ := s.FindOrCreate(OriginChat, "", "", "")
	if c1.ID == c2.ID {
		t.Error("chat origin without explicit ID should create new conversations")
	}
}

func TestFindOrCreate_BotDMReusesRecent(t *testing.T) {
	s := newTestStore(t)

	c1, err := s.FindOrCreate(OriginBotDM, "user42", "alice", "")
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}

	// Activity keeps updated_at fresh, so the next DM continues it.
	if err := s.AppendMessage(c1.ID, llm.Message{Role: llm.RoleUser, Content: "hi"}, ""); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	c2, err := s.FindOrCreate(OriginBotDM, "user42", "alice", "")
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	if c2.ID != c1.ID {
		t.Error("recent bot-dm conversation should be reused")
	}
}

func TestFindOrCreate_BotDMExpiresAfterWindow(t *testing.T) {
	s := newTestStore(t)

	c1, _ := s.FindOrCreate(OriginBotDM, "user42", "alice", "")

	// Backdate updated_at past the reuse window.
	old := time.Now().Add(-ReuseWindow - time.Minute).Format(time.RFC3339Nano)
	if _, err := s.db.Exec(`UPDATE conversations SET updated_at = ? WHERE id = ?`, old, c1.ID); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	c2, err := s.FindOrCreate(OriginBotDM, "user42", "alice", "")
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	if c2.ID == c1.ID {
		t.Error("stale bot-dm conversation should not be reused")
	}
}

func TestFindOrCreate_BotDMDifferentUsers(t *testing.T) {
	s := newTestStore(t)

	c1, _ := s.FindOrCreate(OriginBotDM, "user1", "", "")
	c2, _ := s.FindOrCreate(OriginBotDM, "user2", "", "")
	if c1.ID == c2.ID {
		t.Error("different users must not share conversations")
	}
}

func TestAppendAndHistory(t *testing.T) {
	s := newTestStore(t)
	c, _ := s.FindOrCreate(OriginChat, "", "", "")

	msgs := []llm.Message{
		{Role: llm.RoleUser, Content: "What's 2+2?"},
		{
			Role:    llm.RoleAssistant,
			Content: "Let me check.",
			ToolCalls: []llm.ToolCall{{
				ID:    "t1",
				Name:  "calculator",
				Input: map[string]any{"expression": "2+2"},
			}},
		},
		{
			Role:        llm.RoleToolResult,
			ToolResults: []llm.ToolResult{{ToolID: "t1", Content: "4"}},
		},
		{Role: llm.RoleAssistant, Content: "It's 4."},
	}
	for _, m := range msgs {
		if err := s.AppendMessage(c.ID, m, "test-model"); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	history, err := s.RecentHistory(c.ID, 50)
	if err != nil {
		t.Fatalf("RecentHistory: %v", err)
	}
	if len(history) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(history))
	}
	if history[0].Content != "What's 2+2?" {
		t.Errorf("history not chronological: first = %q", history[0].Content)
	}
	if len(history[1].ToolCalls) != 1 || history[1].ToolCalls[0].Name != "calculator" {
		t.Errorf("tool calls not round-tripped: %+v", history[1])
	}
	if len(history[2].ToolResults) != 1 || history[2].ToolResults[0].Content != "4" {
		t.Errorf("tool results not round-tripped: %+v", history[2])
	}
}

func TestRecentHistory_Limit(t *testing.T) {
	s := newTestStore(t)
	c, _ := s.FindOrCreate(OriginChat, "", "", "")

	for i := 0; i < 10; i++ {
		s.AppendMessage(c.ID, llm.Message{Role: llm.RoleUser, Content: strings.Repeat("x", i+1)}, "")
	}

	history, err := s.RecentHistory(c.ID, 3)
	if err != nil {
		t.Fatalf("RecentHistory: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(history))
	}
	// Should be the newest three, oldest of them first.
	if len(history[0].Content) != 8 || len(history[2].Content) != 10 {
		t.Errorf("wrong window: lens %d, %d, %d",
			len(history[0].Content), len(history[1].Content), len(history[2].Content))
	}
}

func TestSetTitleIfMissing(t *testing.T) {
	s := newTestStore(t)
	c, _ := s.FindOrCreate(OriginChat, "", "", "")

	if err := s.SetTitleIfMissing(c.ID, "First question"); err != nil {
		t.Fatalf("SetTitleIfMissing: %v", err)
	}
	got, _ := s.Get(c.ID)
	if got.Title != "First question" {
		t.Errorf("Title = %q", got.Title)
	}

	// Second call must not overwrite.
	s.SetTitleIfMissing(c.ID, "Different text")
	got, _ = s.Get(c.ID)
	if got.Title != "First question" {
		t.Errorf("existing title was overwritten: %q", got.Title)
	}
}

func TestTruncateTitle(t *testing.T) {
	short := "hello"
	if got := TruncateTitle(short); got != short {
		t.Errorf("short title changed: %q", got)
	}

	long := strings.Repeat("a", 100)
	got := TruncateTitle(long)
	if got != strings.Repeat("a", 80)+"..." {
		t.Errorf("long title = %q", got)
	}

	exact := strings.Repeat("b", 80)
	if got := TruncateTitle(exact); got != exact {
		t.Errorf("80-char title should be untouched: %q", got)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	c, _ := s.FindOrCreate(OriginChat, "", "", "")
	s.AppendMessage(c.ID, llm.Message{Role: llm.RoleUser, Content: "hi"}, "")

	if err := s.Delete(c.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	got, _ := s.Get(c.ID)
	if got != nil {
		t.Error("conversation should be gone")
	}
	msgs, _ := s.Messages(c.ID)
	if len(msgs) != 0 {
		t.Error("messages should be gone")
	}
}
