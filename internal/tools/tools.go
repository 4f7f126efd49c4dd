// Package tools defines the tools available to the agent and the
// registry that executes them.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/zhukov123/openfang/internal/llm"
)

// Tool represents a callable tool. Parameters is a JSON Schema object
// describing the tool's input.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Handler     func(ctx context.Context, args map[string]any) (string, error)
}

// Registry holds available tools. Tools register at startup; enablement
// can change per config without re-registering.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]*Tool
	disabled map[string]bool
	logger   *slog.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:    make(map[string]*Tool),
		disabled: make(map[string]bool),
		logger:   logger,
	}
}

// Register adds a tool to the registry, replacing any previous tool with
// the same name.
func (r *Registry) Register(t *Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
}

// SetEnabled toggles a tool's availability without unregistering it.
func (r *Registry) SetEnabled(name string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disabled[name] = !enabled
}

// Names returns the names of all enabled tools, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		if !r.disabled[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Specs returns specs for all enabled tools, sorted by name so the tool
// list presented to the model is deterministic.
func (r *Registry) Specs() []llm.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]llm.ToolSpec, 0, len(r.tools))
	for name, t := range r.tools {
		if r.disabled[name] {
			continue
		}
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		specs = append(specs, llm.ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: params,
		})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Execute runs the named tool. Every failure path returns an
// *ExecutionError so callers can distinguish tool failures (recoverable,
// fed back to the model) from infrastructure errors.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	disabled := r.disabled[name]
	r.mu.RUnlock()

	if !ok {
		return "", &ExecutionError{Tool: name, Err: fmt.Errorf("unknown tool")}
	}
	if disabled {
		return "", &ExecutionError{Tool: name, Err: fmt.Errorf("tool is disabled")}
	}

	r.logger.Debug("executing tool", "tool", name)

	result, err := t.Handler(ctx, args)
	if err != nil {
		// Preserve an already-typed error rather than double-wrapping.
		if execErr, ok := err.(*ExecutionError); ok {
			return "", execErr
		}
		return "", &ExecutionError{Tool: name, Err: err}
	}
	return result, nil
}

// StringArg extracts a string argument, returning an error naming the
// key when missing or mistyped.
func StringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	return s, nil
}

// OptionalStringArg extracts a string argument, returning fallback when absent.
func OptionalStringArg(args map[string]any, key, fallback string) string {
	if s, ok := args[key].(string); ok {
		return s
	}
	return fallback
}

// OptionalIntArg extracts an integer argument, accepting JSON numbers,
// returning fallback when absent or mistyped.
func OptionalIntArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

// OptionalBoolArg extracts a boolean argument, returning fallback when absent.
func OptionalBoolArg(args map[string]any, key string, fallback bool) bool {
	if b, ok := args[key].(bool); ok {
		return b
	}
	return fallback
}
