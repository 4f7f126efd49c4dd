package agent

import (
	"encoding/json"
	"time"

	"github.com/zhukov123/openfang/internal/llm"
)

// EventKind discriminates stream event variants. The string values are
// the wire names used by the SSE chat endpoint.
type EventKind string

const (
	// EventTextDelta carries a chunk of assistant prose as it arrives.
	EventTextDelta EventKind = "text-delta"
	// EventToolStarted announces a tool execution about to run.
	EventToolStarted EventKind = "tool-started"
	// EventToolCompleted carries a finished tool execution's outcome.
	EventToolCompleted EventKind = "tool-completed"
	// EventTurnComplete is the successful terminal event for a turn.
	EventTurnComplete EventKind = "turn-complete"
	// EventError is the failing terminal event for a turn.
	EventError EventKind = "error"
)

// Event is one entry in a turn's ordered event stream. Exactly one of
// EventTurnComplete or EventError ends every stream.
type Event struct {
	Kind EventKind

	// Text is the delta for EventTextDelta and the full assembled
	// response for EventTurnComplete.
	Text string

	// Tool fields, set for EventToolStarted and EventToolCompleted.
	ToolID   string
	ToolName string
	Input    map[string]any
	Result   string
	Duration time.Duration
	IsError  bool

	// Usage totals across the whole turn, set for EventTurnComplete.
	Usage llm.Usage

	// Message is the failure description for EventError.
	Message string
}

// MarshalJSON renders the event in its wire shape: a flat object with a
// "type" tag and only the fields relevant to that kind.
func (e Event) MarshalJSON() ([]byte, error) {
	out := map[string]any{"type": string(e.Kind)}

	switch e.Kind {
	case EventTextDelta:
		out["text"] = e.Text
	case EventToolStarted:
		out["toolId"] = e.ToolID
		out["toolName"] = e.ToolName
		out["input"] = e.Input
	case EventToolCompleted:
		out["toolId"] = e.ToolID
		out["result"] = e.Result
		out["durationMs"] = e.Duration.Milliseconds()
		out["isError"] = e.IsError
	case EventTurnComplete:
		out["text"] = e.Text
		out["inputTokens"] = e.Usage.InputTokens
		out["outputTokens"] = e.Usage.OutputTokens
	case EventError:
		out["message"] = e.Message
	}

	return json.Marshal(out)
}
