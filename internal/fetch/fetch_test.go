package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExtractPage(t *testing.T) {
	raw := `<!DOCTYPE html>
<html>
<head><title>  Test   Page </title></head>
<body>
<nav>Navigation stuff</nav>
<script>var x = 1;</script>
<style>.foo { color: red; }</style>
<main>
<h1>Hello World</h1>
<p>This is a test paragraph with <strong>bold text</strong>.</p>
<p>Second paragraph.</p>
</main>
<aside>Sidebar stuff</aside>
<footer>Footer stuff</footer>
</body>
</html>`

	title, text := extractPage(raw)

	if title != "Test Page" {
		t.Errorf("title = %q", title)
	}
	for _, want := range []string{"Hello World", "bold text", "Second paragraph."} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q:\n%s", want, text)
		}
	}
	for _, banned := range []string{"var x = 1", "color: red", "Navigation stuff", "Sidebar stuff", "Footer stuff"} {
		if strings.Contains(text, banned) {
			t.Errorf("text leaked %q:\n%s", banned, text)
		}
	}
	// Headings and paragraphs are separated, and blank lines never stack.
	if !strings.Contains(text, "Hello World\n\n") {
		t.Errorf("heading not followed by a paragraph break:\n%s", text)
	}
	if strings.Contains(text, "\n\n\n") {
		t.Errorf("blank lines stack:\n%s", text)
	}
}

func TestExtractPage_ListMarkers(t *testing.T) {
	raw := `<html><body><ul><li>first item</li><li>second item</li></ul></body></html>`

	_, text := extractPage(raw)

	if !strings.Contains(text, "- first item") || !strings.Contains(text, "- second item") {
		t.Errorf("list items lost their markers:\n%s", text)
	}
}

func TestFetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "OpenFang/") {
			t.Errorf("User-Agent = %q", ua)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><title>Test</title></head><body><p>Hello from test server</p></body></html>`))
	}))
	defer ts.Close()

	page, err := New().Fetch(context.Background(), ts.URL, 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if page.Title != "Test" {
		t.Errorf("title = %q", page.Title)
	}
	if !strings.Contains(page.Text, "Hello from test server") {
		t.Errorf("text = %q", page.Text)
	}
	if page.Truncated {
		t.Error("short page must not be truncated")
	}
}

func TestFetch_PlainText(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("Just plain text content\n"))
	}))
	defer ts.Close()

	page, err := New().Fetch(context.Background(), ts.URL, 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if page.Text != "Just plain text content" {
		t.Errorf("text = %q", page.Text)
	}
}

func TestFetch_CharBudget(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(strings.Repeat("x", 1000)))
	}))
	defer ts.Close()

	// Per-call limit below the fetcher budget.
	page, err := New().Fetch(context.Background(), ts.URL, 100)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !page.Truncated || len([]rune(page.Text)) != 100 {
		t.Errorf("truncated = %v, len = %d", page.Truncated, len([]rune(page.Text)))
	}

	// Fetcher budget applies when the call asks for more.
	page, err = New(WithCharBudget(50)).Fetch(context.Background(), ts.URL, 500)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !page.Truncated || len([]rune(page.Text)) != 50 {
		t.Errorf("truncated = %v, len = %d", page.Truncated, len([]rune(page.Text)))
	}
}

func TestFetch_HTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone fishing", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	_, err := New().Fetch(context.Background(), ts.URL, 0)
	if err == nil {
		t.Fatal("expected error for 503")
	}
	if !strings.Contains(err.Error(), "503") || !strings.Contains(err.Error(), "gone fishing") {
		t.Errorf("err = %v", err)
	}
}

func TestFetch_BinaryContent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 0x50, 0x4e, 0x47})
	}))
	defer ts.Close()

	_, err := New().Fetch(context.Background(), ts.URL, 0)
	if err == nil || !strings.Contains(err.Error(), "image/png") {
		t.Errorf("err = %v", err)
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "example.com/page", want: "https://example.com/page"},
		{in: "http://example.com", want: "http://example.com"},
		{in: "", wantErr: true},
		{in: "ftp://example.com/file", wantErr: true},
		{in: "https://", wantErr: true},
	}

	for _, tt := range tests {
		got, err := normalizeURL(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("normalizeURL(%q) should error, got %q", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("normalizeURL(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("normalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTool(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Tool Test</title></head><body><p>Content here</p></body></html>`))
	}))
	defer ts.Close()

	tool := Tool(New())
	if tool.Name != "web_read" {
		t.Errorf("tool name = %q", tool.Name)
	}

	result, err := tool.Handler(context.Background(), map[string]any{"url": ts.URL})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	// Plain text rendering: title first, then the page text.
	if !strings.HasPrefix(result, "Tool Test\n") {
		t.Errorf("result should lead with the title: %q", result)
	}
	if !strings.Contains(result, "Content here") {
		t.Errorf("result = %q", result)
	}
}

func TestToolMissingURL(t *testing.T) {
	tool := Tool(New())

	if _, err := tool.Handler(context.Background(), map[string]any{}); err == nil {
		t.Error("expected error for missing URL")
	}
}
