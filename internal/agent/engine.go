// Package agent implements the conversation loop engine: the iterative
// completion/tool-execution cycle at the heart of OpenFang.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/zhukov123/openfang/internal/conversation"
	"github.com/zhukov123/openfang/internal/llm"
	"github.com/zhukov123/openfang/internal/tools"
)

// MaxIterations caps provider calls per turn. A model stuck requesting
// tools forever gets cut off here; the accumulated text is still
// returned as the response.
const MaxIterations = 10

// streamBuffer is the event channel capacity. Small on purpose: a
// consumer that stops reading applies backpressure to the loop instead
// of letting events pile up unboundedly.
const streamBuffer = 16

// Config holds the engine's dependencies and settings.
type Config struct {
	Logger       *slog.Logger
	Client       llm.Client
	Registry     *tools.Registry
	Store        *conversation.Store
	Model        string
	SystemPrompt string
	// MaxContextMessages caps history sent per request (default 50).
	MaxContextMessages int
	MaxTokens          int
}

// Engine runs conversation turns against a provider and the tool registry.
type Engine struct {
	logger     *slog.Logger
	client     llm.Client
	registry   *tools.Registry
	store      *conversation.Store
	model      string
	system     string
	maxContext int
	maxTokens  int
}

// NewEngine creates an engine from config.
func NewEngine(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxContext := cfg.MaxContextMessages
	if maxContext <= 0 {
		maxContext = 50
	}
	return &Engine{
		logger:     logger,
		client:     cfg.Client,
		registry:   cfg.Registry,
		store:      cfg.Store,
		model:      cfg.Model,
		system:     cfg.SystemPrompt,
		maxContext: maxContext,
		maxTokens:  cfg.MaxTokens,
	}
}

// Model returns the engine's configured model name.
func (e *Engine) Model() string { return e.model }

// Ping checks that the configured provider is reachable and the
// credentials work. Used at startup so a bad key is reported before the
// first real turn.
func (e *Engine) Ping(ctx context.Context) error {
	return e.client.Ping(ctx)
}

// Stream runs one persisted conversation turn and returns the event
// channel. Events arrive in execution order; the channel closes after
// the terminal event. The producer blocks when the consumer lags, so a
// slow reader slows the loop rather than dropping events. Cancelling
// ctx aborts the turn.
func (e *Engine) Stream(ctx context.Context, conversationID, userText string) <-chan Event {
	ch := make(chan Event, streamBuffer)

	go func() {
		defer close(ch)

		emit := func(ev Event) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		start := time.Now()
		e.logger.Info("turn started",
			"conversation", conversationID,
			"model", e.model,
			"input_len", len(userText),
		)

		// The user message is persisted before anything can fail, so a
		// crashed turn still leaves the question on record.
		userMsg := llm.Message{Role: llm.RoleUser, Content: userText}
		if err := e.store.AppendMessage(conversationID, userMsg, ""); err != nil {
			emit(Event{Kind: EventError, Message: "persist user message: " + err.Error()})
			return
		}

		history, err := e.store.RecentHistory(conversationID, e.maxContext)
		if err != nil {
			emit(Event{Kind: EventError, Message: "load history: " + err.Error()})
			return
		}

		persist := func(msg llm.Message) error {
			return e.store.AppendMessage(conversationID, msg, e.model)
		}

		result, err := e.run(ctx, history, e.system, e.registry.Specs(), persist, emit)
		if err != nil {
			e.logger.Error("turn failed", "conversation", conversationID, "error", err)
			emit(Event{Kind: EventError, Message: err.Error()})
			return
		}

		e.logger.Info("turn complete",
			"conversation", conversationID,
			"iterations", result.iterations,
			"input_tokens", result.usage.InputTokens,
			"output_tokens", result.usage.OutputTokens,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)

		// Title backfill happens only once a turn has completed; a turn
		// that dies on an adapter error leaves the conversation untitled.
		if err := e.store.SetTitleIfMissing(conversationID, userText); err != nil {
			e.logger.Warn("title backfill failed", "conversation", conversationID, "error", err)
		}

		emit(Event{Kind: EventTurnComplete, Text: result.text, Usage: result.usage})
	}()

	return ch
}

// RunOnceOptions configures an ephemeral run.
type RunOnceOptions struct {
	// ToolsEnabled exposes the registry to the model. Disabled runs are
	// pure text completion.
	ToolsEnabled bool
	// SystemNote is appended to the system prompt, e.g. to mark the run
	// as unattended.
	SystemNote string
}

// RunOnce executes a single-turn prompt with no persistence and no event
// stream, returning the final text. Used for scheduled prompts and the
// ask subcommand.
func (e *Engine) RunOnce(ctx context.Context, prompt string, opts RunOnceOptions) (string, error) {
	system := e.system
	if opts.SystemNote != "" {
		if system != "" {
			system += "\n\n"
		}
		system += opts.SystemNote
	}

	var specs []llm.ToolSpec
	if opts.ToolsEnabled {
		specs = e.registry.Specs()
	}

	history := []llm.Message{{Role: llm.RoleUser, Content: prompt}}
	discard := func(Event) bool { return true }
	keep := func(llm.Message) error { return nil }

	result, err := e.run(ctx, history, system, specs, keep, discard)
	if err != nil {
		return "", err
	}
	return result.text, nil
}

type turnResult struct {
	text       string
	usage      llm.Usage
	iterations int
}

// run is the iterative loop shared by Stream and RunOnce. Each iteration
// makes one provider call, walks the segments in order, executes tool
// calls sequentially, and persists the assistant message (and the paired
// tool results, when tools ran) before the next call.
func (e *Engine) run(
	ctx context.Context,
	history []llm.Message,
	system string,
	specs []llm.ToolSpec,
	persist func(llm.Message) error,
	emit func(Event) bool,
) (*turnResult, error) {
	var finalText strings.Builder
	var usage llm.Usage

	iterations := 0
	for iter := 0; iter < MaxIterations; iter++ {
		iterations++

		completion, err := e.client.Complete(ctx, llm.Request{
			Model:     e.model,
			System:    system,
			Messages:  history,
			Tools:     specs,
			MaxTokens: e.maxTokens,
		})
		if err != nil {
			return nil, err
		}
		usage.Add(completion.Usage)

		assistant := llm.Message{Role: llm.RoleAssistant}
		var results []llm.ToolResult
		toolsRan := false

		for _, seg := range completion.Segments {
			switch seg.Kind {
			case llm.SegmentText:
				if seg.Text == "" {
					continue
				}
				finalText.WriteString(seg.Text)
				assistant.Content += seg.Text
				if !emit(Event{Kind: EventTextDelta, Text: seg.Text}) {
					return nil, ctx.Err()
				}

			case llm.SegmentToolUse:
				toolsRan = true
				call := seg.ToolCall
				assistant.ToolCalls = append(assistant.ToolCalls, call)

				if !emit(Event{
					Kind:     EventToolStarted,
					ToolID:   call.ID,
					ToolName: call.Name,
					Input:    call.Input,
				}) {
					return nil, ctx.Err()
				}

				started := time.Now()
				output, execErr := e.registry.Execute(ctx, call.Name, call.Input)
				elapsed := time.Since(started)

				result := llm.ToolResult{ToolID: call.ID, Content: output}
				if execErr != nil {
					// Tool failures are recoverable: the model sees the
					// error text and can retry or answer without it.
					var te *tools.ExecutionError
					if !errors.As(execErr, &te) && ctx.Err() != nil {
						return nil, ctx.Err()
					}
					result.Content = "Error: " + execErr.Error()
					result.IsError = true
					e.logger.Warn("tool failed",
						"tool", call.Name,
						"duration_ms", elapsed.Milliseconds(),
						"error", execErr,
					)
				} else {
					e.logger.Debug("tool completed",
						"tool", call.Name,
						"duration_ms", elapsed.Milliseconds(),
						"result_len", len(result.Content),
					)
				}
				results = append(results, result)

				if !emit(Event{
					Kind:     EventToolCompleted,
					ToolID:   call.ID,
					Result:   result.Content,
					Duration: elapsed,
					IsError:  result.IsError,
				}) {
					return nil, ctx.Err()
				}
			}
		}

		// Persist the assistant message, then its tool results, before
		// the next provider call. A tool-calling assistant message is
		// never left without its paired results.
		if err := persist(assistant); err != nil {
			return nil, err
		}
		history = append(history, assistant)

		if toolsRan {
			resultMsg := llm.Message{Role: llm.RoleToolResult, ToolResults: results}
			if err := persist(resultMsg); err != nil {
				return nil, err
			}
			history = append(history, resultMsg)
		}

		if !toolsRan || completion.Continuation == llm.ContinueStop {
			break
		}
	}

	return &turnResult{
		text:       finalText.String(),
		usage:      usage,
		iterations: iterations,
	}, nil
}
