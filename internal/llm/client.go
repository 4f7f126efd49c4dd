package llm

import "context"

// Request is a provider-neutral completion request.
type Request struct {
	Model     string
	System    string
	Messages  []Message
	Tools     []ToolSpec
	MaxTokens int
}

// DefaultMaxTokens is used when Request.MaxTokens is zero.
const DefaultMaxTokens = 4096

// Client is the interface all provider clients implement.
type Client interface {
	// Complete sends one completion request and returns the normalized
	// result. Transport, status, and decode failures are returned as
	// errors; callers treat them as fatal for the current turn.
	Complete(ctx context.Context, req Request) (*Completion, error)

	// Ping checks if the provider is reachable and credentials work.
	Ping(ctx context.Context) error
}
