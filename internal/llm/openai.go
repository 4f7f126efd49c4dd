package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/zhukov123/openfang/internal/config"
	"github.com/zhukov123/openfang/internal/httpkit"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIClient is a client for OpenAI-compatible Chat Completions APIs.
// Any endpoint implementing the protocol works via baseURL.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenAIClient creates a new OpenAI client. baseURL may be empty to use
// the public API.
func NewOpenAIClient(apiKey, baseURL string, logger *slog.Logger) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = 120 * time.Second

	return &OpenAIClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		logger:  logger.With("provider", "openai"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(0),
			httpkit.WithTransport(t),
		),
	}
}

// OpenAI request/response types

type openaiRequest struct {
	Model     string          `json:"model"`
	Messages  []openaiMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens,omitempty"`
	Tools     []openaiTool    `json:"tools,omitempty"`
}

type openaiMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openaiToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"` // string-encoded JSON
	} `json:"function"`
}

type openaiTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
		Parameters  any    `json:"parameters"`
	} `json:"function"`
}

type openaiResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int           `json:"index"`
		Message      openaiMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete sends one Chat Completions request and normalizes the response.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	msgs := convertToOpenAI(req.System, req.Messages)

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}

	apiReq := openaiRequest{
		Model:     req.Model,
		Messages:  msgs,
		MaxTokens: maxTokens,
		Tools:     convertToolsToOpenAI(req.Tools),
	}

	c.logger.Debug("preparing request",
		"model", req.Model,
		"messages", len(msgs),
		"tools", len(apiReq.Tools),
	)

	jsonData, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Log(ctx, config.LevelTrace, "request payload", "json", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		c.logger.Error("API error", "status", resp.StatusCode, "body", errBody)
		return nil, fmt.Errorf("openai API error %d: %s", resp.StatusCode, errBody)
	}

	var apiResp openaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("openai response has no choices")
	}

	result := convertFromOpenAI(&apiResp)

	c.logger.Debug("response received",
		"model", result.Model,
		"finish_reason", apiResp.Choices[0].FinishReason,
		"input_tokens", result.Usage.InputTokens,
		"output_tokens", result.Usage.OutputTokens,
		"segments", len(result.Segments),
	)
	c.logger.Log(ctx, config.LevelTrace, "response content", "content", result.Text())

	return result, nil
}

// Ping checks if the OpenAI API is reachable.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("invalid API key")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status from OpenAI API: %d", resp.StatusCode)
	}
	return nil
}

// convertToOpenAI converts neutral history to Chat Completions messages.
// The system prompt becomes a leading system message; tool results become
// individual role:"tool" messages keyed by tool_call_id.
func convertToOpenAI(system string, messages []Message) []openaiMessage {
	var result []openaiMessage

	if system != "" {
		result = append(result, openaiMessage{Role: "system", Content: system})
	}

	for _, msg := range messages {
		switch msg.Role {
		case RoleAssistant:
			out := openaiMessage{Role: "assistant", Content: msg.Content}
			for _, tc := range msg.ToolCalls {
				args, err := json.Marshal(tc.Input)
				if err != nil {
					args = []byte("{}")
				}
				call := openaiToolCall{ID: tc.ID, Type: "function"}
				call.Function.Name = tc.Name
				call.Function.Arguments = string(args)
				out.ToolCalls = append(out.ToolCalls, call)
			}
			result = append(result, out)

		case RoleToolResult:
			for _, tr := range msg.ToolResults {
				result = append(result, openaiMessage{
					Role:       "tool",
					Content:    tr.Content,
					ToolCallID: tr.ToolID,
				})
			}

		case RoleUser:
			result = append(result, openaiMessage{Role: "user", Content: msg.Content})
		}
	}

	return result
}

// convertToolsToOpenAI converts neutral tool specs to function tools.
func convertToolsToOpenAI(tools []ToolSpec) []openaiTool {
	if len(tools) == 0 {
		return nil
	}

	result := make([]openaiTool, 0, len(tools))
	for _, tool := range tools {
		schema := any(tool.InputSchema)
		if tool.InputSchema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out := openaiTool{Type: "function"}
		out.Function.Name = tool.Name
		out.Function.Description = tool.Description
		out.Function.Parameters = schema
		result = append(result, out)
	}
	return result
}

// convertFromOpenAI normalizes a Chat Completions response. The protocol
// has no interleaving: any text comes first, then the tool calls in list
// order. Continuation is signaled by the presence of tool calls rather
// than by finish_reason, which some compatible backends omit or misreport.
func convertFromOpenAI(resp *openaiResponse) *Completion {
	choice := resp.Choices[0]

	var segments []Segment
	if choice.Message.Content != "" {
		segments = append(segments, Segment{
			Kind: SegmentText,
			Text: choice.Message.Content,
		})
	}

	for _, tc := range choice.Message.ToolCalls {
		segments = append(segments, Segment{
			Kind: SegmentToolUse,
			ToolCall: ToolCall{
				ID:    tc.ID,
				Name:  tc.Function.Name,
				Input: parseToolArguments(tc.Function.Arguments),
			},
		})
	}

	continuation := ContinueStop
	if len(choice.Message.ToolCalls) > 0 {
		continuation = ContinueMore
	}

	return &Completion{
		Segments:     segments,
		Continuation: continuation,
		Model:        resp.Model,
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
}

// parseToolArguments decodes the string-encoded JSON arguments of an OpenAI
// tool call. Malformed JSON is preserved under "_raw_arguments" so the tool
// handler (and the model, via the error result) can see what was sent.
// Valid JSON that is not an object is wrapped under "value".
func parseToolArguments(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}

	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return map[string]any{"_raw_arguments": raw}
	}

	if obj, ok := parsed.(map[string]any); ok {
		return obj
	}
	return map[string]any{"value": parsed}
}
