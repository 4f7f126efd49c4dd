// Package tools provides the tool registry and execution framework.
//
// This file defines the sentinel error type for tool execution.
package tools

import "fmt"

// ExecutionError is returned for every tool failure: unknown tool,
// disabled tool, or a handler error. The conversation loop converts it
// into an error-flagged tool result and continues, so the model can see
// what went wrong and adjust.
type ExecutionError struct {
	Tool string
	Err  error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %q: %v", e.Tool, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}
