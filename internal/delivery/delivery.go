package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/zhukov123/openfang/internal/httpkit"
)

// Deliverer sends one message to a recipient.
type Deliverer interface {
	Deliver(ctx context.Context, recipient string, msg Message) error
}

// Sender splits text into messages and delivers them in order. It is the
// text-level entry point used by the scheduler.
type Sender struct {
	deliverer Deliverer
	limit     int
}

// NewSender creates a sender with the given per-message limit (0 means
// DefaultLimit).
func NewSender(d Deliverer, limit int) *Sender {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Sender{deliverer: d, limit: limit}
}

// Send splits text and delivers each resulting message in order, stopping
// at the first failure.
func (s *Sender) Send(ctx context.Context, recipient, text string) error {
	for _, msg := range Split(text, s.limit) {
		if err := s.deliverer.Deliver(ctx, recipient, msg); err != nil {
			return err
		}
	}
	return nil
}

// Webhook delivers messages as JSON POSTs to a configured URL.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a webhook deliverer for the given URL.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:    url,
		client: httpkit.NewClient(httpkit.WithTimeout(15 * time.Second)),
	}
}

type webhookPayload struct {
	Recipient string `json:"recipient,omitempty"`
	Content   string `json:"content"`
	File      *File  `json:"file,omitempty"`
}

// Deliver posts the message to the webhook URL.
func (w *Webhook) Deliver(ctx context.Context, recipient string, msg Message) error {
	body, err := json.Marshal(webhookPayload{
		Recipient: recipient,
		Content:   msg.Content,
		File:      msg.File,
	})
	if err != nil {
		return fmt.Errorf("delivery: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("delivery: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivery: post: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("delivery: webhook returned %d: %s",
			resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 512))
	}
	return nil
}

// Log is a fallback deliverer that writes messages to the log. Used when
// no webhook is configured so scheduled output is not silently dropped.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a log deliverer.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Deliver logs the message.
func (l *Log) Deliver(ctx context.Context, recipient string, msg Message) error {
	attrs := []any{"content", msg.Content}
	if recipient != "" {
		attrs = append(attrs, "recipient", recipient)
	}
	if msg.File != nil {
		attrs = append(attrs, "attachment", msg.File.Name, "attachment_bytes", len(msg.File.Data))
	}
	l.logger.Info("delivery", attrs...)
	return nil
}
