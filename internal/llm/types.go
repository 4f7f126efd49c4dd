// Package llm provides clients for LLM provider APIs behind a single
// provider-neutral interface. Each backend speaks its own wire protocol
// (Anthropic content blocks, OpenAI tool_calls); the types here are the
// normalized form the rest of OpenFang works with.
package llm

// Role values for Message.
const (
	RoleUser       = "user"
	RoleAssistant  = "assistant"
	RoleToolResult = "tool_result"
)

// Message is one element of conversation history, independent of any
// provider's wire format. An assistant message may carry tool calls
// alongside its text; a tool_result message carries the paired results.
type Message struct {
	Role        string       `json:"role"`
	Content     string       `json:"content,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// ToolResult is the outcome of executing a ToolCall, keyed by the
// call's provider-assigned ID.
type ToolResult struct {
	ToolID  string `json:"tool_id"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// ToolSpec describes a tool exposed to the model. InputSchema is a JSON
// Schema object.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Usage is token accounting for a single completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates another completion's usage into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Continuation signals whether the model expects the caller to come back
// with tool results.
type Continuation int

const (
	// ContinueStop means the model considers its turn finished.
	ContinueStop Continuation = iota
	// ContinueMore means the model requested tool use and expects results.
	ContinueMore
)

func (c Continuation) String() string {
	if c == ContinueMore {
		return "more"
	}
	return "stop"
}

// SegmentKind discriminates Segment variants.
type SegmentKind int

const (
	// SegmentText is a chunk of assistant prose.
	SegmentText SegmentKind = iota
	// SegmentToolUse is a tool invocation request.
	SegmentToolUse
)

// Segment is one ordered piece of a model response: either text or a
// tool invocation. Order is preserved exactly as the provider emitted it.
type Segment struct {
	Kind     SegmentKind
	Text     string   // set when Kind == SegmentText
	ToolCall ToolCall // set when Kind == SegmentToolUse
}

// Completion is the normalized result of one provider call.
type Completion struct {
	Segments     []Segment
	Usage        Usage
	Continuation Continuation
	Model        string
}

// Text concatenates the completion's text segments.
func (c *Completion) Text() string {
	var out string
	for _, seg := range c.Segments {
		if seg.Kind == SegmentText {
			out += seg.Text
		}
	}
	return out
}

// ToolCalls returns the completion's tool invocations in order.
func (c *Completion) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, seg := range c.Segments {
		if seg.Kind == SegmentToolUse {
			calls = append(calls, seg.ToolCall)
		}
	}
	return calls
}
