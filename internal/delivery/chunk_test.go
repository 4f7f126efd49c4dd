package delivery

import (
	"strings"
	"testing"
	"unicode"
)

func TestChunk_FitsAsIs(t *testing.T) {
	got := Chunk("short message", 100)
	if len(got) != 1 || got[0] != "short message" {
		t.Errorf("got %q", got)
	}
}

func TestChunk_BreaksAtNewline(t *testing.T) {
	// Newline at position 12, limit 20: in the second half of the window.
	text := "first line.\nsecond line follows here"
	got := Chunk(text, 20)

	if got[0] != "first line." {
		t.Errorf("first chunk = %q", got[0])
	}
	if strings.HasPrefix(got[1], "\n") || strings.HasPrefix(got[1], " ") {
		t.Errorf("second chunk not trimmed: %q", got[1])
	}
}

func TestChunk_BreaksAtSpace(t *testing.T) {
	text := "alpha beta gamma delta epsilon"
	got := Chunk(text, 16)

	for _, c := range got {
		if strings.Contains(c, "  ") {
			t.Errorf("chunk %q has doubled spaces", c)
		}
	}
	if got[0] != "alpha beta gamma" && got[0] != "alpha beta" {
		t.Errorf("first chunk = %q", got[0])
	}
	// No chunk may start or end mid-word where a space was available.
	if strings.HasPrefix(got[1], " ") {
		t.Errorf("second chunk not trimmed: %q", got[1])
	}
}

func TestChunk_IgnoresBreakInFirstHalf(t *testing.T) {
	// The only space is at position 3, in the first half of a 20-char
	// window, so the cut is a hard one at the limit.
	text := "abc " + strings.Repeat("x", 40)
	got := Chunk(text, 20)

	if len([]rune(got[0])) != 20 {
		t.Errorf("expected hard cut at limit, got len %d: %q", len([]rune(got[0])), got[0])
	}
}

func TestChunk_NewlineExactlyAtLimit(t *testing.T) {
	// The first line is exactly limit runes, with the newline sitting at
	// the limit itself. That newline is a clean break, not a hard cut.
	line := "aaaa bbbb cccc dddd!" // 20 runes
	got := Chunk(line+"\ntail", 20)

	if len(got) != 2 {
		t.Fatalf("chunks = %q", got)
	}
	if got[0] != line {
		t.Errorf("first chunk = %q, want the full first line", got[0])
	}
	if got[1] != "tail" {
		t.Errorf("second chunk = %q", got[1])
	}
}

func TestChunk_SpaceExactlyAtLimit(t *testing.T) {
	// Space at index 20 beats the earlier space at 15: the break search
	// is inclusive of the limit position.
	text := "aaaaaaaaaaaaaaa bbbb cccc"
	got := Chunk(text, 20)

	if got[0] != "aaaaaaaaaaaaaaa bbbb" {
		t.Errorf("first chunk = %q", got[0])
	}
	if got[1] != "cccc" {
		t.Errorf("second chunk = %q", got[1])
	}
}

func TestChunk_LimitOneNoEmptyChunks(t *testing.T) {
	for _, text := range []string{"a\nb", "\nab", "a b c"} {
		got := Chunk(text, 1)
		for i, c := range got {
			if c == "" {
				t.Errorf("Chunk(%q, 1) chunk %d is empty: %q", text, i, got)
			}
			if len([]rune(c)) > 1 {
				t.Errorf("Chunk(%q, 1) chunk %d over limit: %q", text, i, c)
			}
		}
	}
}

func TestChunk_HardCutNoWhitespace(t *testing.T) {
	text := strings.Repeat("a", 45)
	got := Chunk(text, 20)

	if len(got) != 3 {
		t.Fatalf("chunks = %d", len(got))
	}
	// Hard cuts lose nothing: plain concatenation restores the text.
	if strings.Join(got, "") != text {
		t.Error("hard-cut chunks should rejoin exactly")
	}
}

func TestChunk_RejoinProperty(t *testing.T) {
	texts := []string{
		"one two three four five six seven eight nine ten eleven twelve",
		"line one\nline two\nline three\nline four\nline five\nline six",
		strings.Repeat("word ", 50),
		strings.Repeat("z", 100),
		"mixed content with\nnewlines and spaces " + strings.Repeat("y", 30),
	}

	strip := func(s string) string {
		return strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) {
				return -1
			}
			return r
		}, s)
	}

	for _, text := range texts {
		for _, limit := range []int{10, 16, 25, 40} {
			chunks := Chunk(text, limit)
			for i, c := range chunks {
				if n := len([]rune(c)); n > limit {
					t.Errorf("limit %d chunk %d has %d chars", limit, i, n)
				}
			}
			if strip(strings.Join(chunks, "")) != strip(text) {
				t.Errorf("limit %d: content lost for %q", limit, text)
			}
		}
	}
}

func TestSplit_SingleMessage(t *testing.T) {
	got := Split("hello", 100)
	if len(got) != 1 || got[0].Content != "hello" || got[0].File != nil {
		t.Errorf("got %+v", got)
	}
}

func TestSplit_Chunked(t *testing.T) {
	// Between 1x and 3x the limit: chunked, no attachment.
	text := strings.Repeat("some words here ", 10) // 160 chars
	got := Split(text, 100)

	if len(got) < 2 {
		t.Fatalf("expected multiple messages, got %d", len(got))
	}
	for _, m := range got {
		if m.File != nil {
			t.Error("chunked messages must not carry attachments")
		}
		if len([]rune(m.Content)) > 100 {
			t.Errorf("message too long: %d", len(m.Content))
		}
	}
}

func TestSplit_LongTextAttached(t *testing.T) {
	text := strings.Repeat("x", 1000)
	got := Split(text, 100)

	if len(got) != 1 {
		t.Fatalf("expected one summary message, got %d", len(got))
	}
	m := got[0]
	if len([]rune(m.Content)) > 100 {
		t.Errorf("summary too long: %d", len(m.Content))
	}
	if m.File == nil || m.File.Name != "response.txt" {
		t.Fatalf("file = %+v", m.File)
	}
	if string(m.File.Data) != text {
		t.Error("attachment must carry the full text")
	}
}

func TestSplit_ZeroLimitUsesDefault(t *testing.T) {
	got := Split("hi", 0)
	if len(got) != 1 || got[0].Content != "hi" {
		t.Errorf("got %+v", got)
	}
}
