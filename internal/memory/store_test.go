package memory

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "memory_test.db")
	s, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGet(t *testing.T) {
	s := newTestStore(t)

	m := &Memory{Content: "User prefers metric units", Category: "preferences"}
	if err := s.Save(m); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if m.ID == "" {
		t.Fatal("expected generated ID")
	}

	got, err := s.Get(m.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("expected memory, got nil")
	}
	if got.Content != m.Content {
		t.Errorf("Content = %q, want %q", got.Content, m.Content)
	}
	if got.Category != "preferences" {
		t.Errorf("Category = %q", got.Category)
	}
}

func TestSave_EmptyContent(t *testing.T) {
	s := newTestStore(t)

	if err := s.Save(&Memory{}); err == nil {
		t.Fatal("expected error for empty content")
	}
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Get("nonexistent")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestSearch(t *testing.T) {
	s := newTestStore(t)

	for _, content := range []string{
		"User's birthday is March 3rd",
		"User prefers dark roast coffee",
		"Project deadline is Friday",
	} {
		if err := s.Save(&Memory{Content: content}); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	got, err := s.Search("coffee", "", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 match, got %d", len(got))
	}
	if !strings.Contains(got[0].Content, "coffee") {
		t.Errorf("unexpected match: %q", got[0].Content)
	}
}

func TestSearch_CategoryFilter(t *testing.T) {
	s := newTestStore(t)

	s.Save(&Memory{Content: "likes tea", Category: "preferences"})
	s.Save(&Memory{Content: "likes hiking", Category: "hobbies"})

	got, err := s.Search("likes", "hobbies", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Category != "hobbies" {
		t.Errorf("category filter failed: %+v", got)
	}
}

func TestSearch_LikeMetacharactersLiteral(t *testing.T) {
	s := newTestStore(t)

	s.Save(&Memory{Content: "discount is 50% off"})
	s.Save(&Memory{Content: "discount is 50 percent off"})

	got, err := s.Search("50%", "", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected %% to match literally, got %d results", len(got))
	}
}

func TestList_NewestFirst(t *testing.T) {
	s := newTestStore(t)

	s.Save(&Memory{Content: "first"})
	s.Save(&Memory{Content: "second"})

	got, err := s.List("", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 memories, got %d", len(got))
	}
	// UUIDv7 IDs are time-ordered, so created_at DESC puts "second" first.
	if got[0].Content != "second" {
		t.Errorf("expected newest first, got %q", got[0].Content)
	}
}

func TestForget(t *testing.T) {
	s := newTestStore(t)

	m := &Memory{Content: "temporary"}
	s.Save(m)

	deleted, err := s.Forget(m.ID)
	if err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if !deleted {
		t.Error("expected deleted = true")
	}

	deleted, err = s.Forget(m.ID)
	if err != nil {
		t.Fatalf("Forget again: %v", err)
	}
	if deleted {
		t.Error("second delete should report false")
	}

	n, _ := s.Count()
	if n != 0 {
		t.Errorf("Count = %d, want 0", n)
	}
}

func TestMemoryTools(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	byName := map[string]func(context.Context, map[string]any) (string, error){}
	for _, tool := range Tools(s) {
		byName[tool.Name] = tool.Handler
	}

	out, err := byName["save_memory"](ctx, map[string]any{"content": "user likes jazz", "category": "preferences"})
	if err != nil {
		t.Fatalf("save_memory: %v", err)
	}
	if !strings.HasPrefix(out, "Saved memory ") {
		t.Errorf("unexpected save output: %q", out)
	}

	out, err = byName["recall_memory"](ctx, map[string]any{"query": "jazz"})
	if err != nil {
		t.Fatalf("recall_memory: %v", err)
	}
	if !strings.Contains(out, "user likes jazz") {
		t.Errorf("recall output missing memory: %q", out)
	}

	out, err = byName["list_memories"](ctx, map[string]any{})
	if err != nil {
		t.Fatalf("list_memories: %v", err)
	}
	if !strings.Contains(out, "preferences") {
		t.Errorf("list output missing category: %q", out)
	}

	memories, _ := s.List("", 0)
	out, err = byName["forget_memory"](ctx, map[string]any{"id": memories[0].ID})
	if err != nil {
		t.Fatalf("forget_memory: %v", err)
	}
	if out != "Memory deleted." {
		t.Errorf("unexpected forget output: %q", out)
	}

	if _, err := byName["forget_memory"](ctx, map[string]any{"id": "missing"}); err == nil {
		t.Error("forgetting a missing memory should error")
	}
}
