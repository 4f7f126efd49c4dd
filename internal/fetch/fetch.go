// Package fetch implements the web_read tool: it downloads a page and
// reduces it to plain text sized for a model's context window.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zhukov123/openfang/internal/httpkit"
)

const (
	// DefaultTimeout bounds the whole fetch.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxBytes caps how much of a response body is read (5 MB).
	DefaultMaxBytes int64 = 5 << 20

	// DefaultCharBudget caps extracted text. Tool output goes straight
	// back into the model's context, so the ceiling sits well under the
	// context window rather than at "whatever the page had".
	DefaultCharBudget = 12000
)

// Page is the readable form of a fetched document.
type Page struct {
	URL         string
	Title       string
	Text        string
	ContentType string
	Truncated   bool
}

// Fetcher downloads pages and reduces them to readable text.
type Fetcher struct {
	client     *http.Client
	maxBytes   int64
	charBudget int
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithCharBudget overrides the extracted-text ceiling.
func WithCharBudget(n int) Option {
	return func(f *Fetcher) { f.charBudget = n }
}

// WithMaxBytes overrides the response body read cap.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) { f.maxBytes = n }
}

// New creates a Fetcher with the default budget and timeouts.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:     httpkit.NewClient(httpkit.WithTimeout(DefaultTimeout)),
		maxBytes:   DefaultMaxBytes,
		charBudget: DefaultCharBudget,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads rawURL and returns its readable form. maxChars trims
// the text below the fetcher's budget; zero means the full budget.
// Non-2xx statuses and non-text content are errors, so the failed tool
// result tells the model what went wrong with the page.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, maxChars int) (*Page, error) {
	target, err := normalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	budget := f.charBudget
	if maxChars > 0 && maxChars < budget {
		budget = maxChars
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("web_read: invalid url: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web_read: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return nil, fmt.Errorf("web_read: %s returned %d: %s", target, resp.StatusCode, body)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("web_read: read response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	page := &Page{URL: target, ContentType: contentType}

	switch {
	case strings.Contains(strings.ToLower(contentType), "html"):
		page.Title, page.Text = extractPage(string(body))
	case textLike(contentType):
		page.Text = strings.TrimSpace(string(body))
	default:
		return nil, fmt.Errorf("web_read: %s is %s, not a text document", target, contentType)
	}

	if r := []rune(page.Text); len(r) > budget {
		page.Text = string(r[:budget])
		page.Truncated = true
	}

	return page, nil
}

// normalizeURL fills in a missing scheme and rejects anything that is
// not plain http(s).
func normalizeURL(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("web_read: url is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("web_read: invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("web_read: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("web_read: url %q has no host", raw)
	}
	return u.String(), nil
}

// textLike reports whether a content type can be passed through as-is.
func textLike(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.HasPrefix(ct, "text/") ||
		strings.Contains(ct, "json") ||
		strings.Contains(ct, "xml")
}
