package schedule

import (
	"context"
	"log/slog"

	"github.com/zhukov123/openfang/internal/agent"
)

// unattendedNote is appended to the system prompt for scheduled runs so
// the model answers standalone instead of asking follow-up questions.
const unattendedNote = "This is an unattended scheduled run. There is no " +
	"user available to reply, so produce a concise, standalone answer."

// promptRunner is the slice of the agent engine the executor needs.
type promptRunner interface {
	RunOnce(ctx context.Context, prompt string, opts agent.RunOnceOptions) (string, error)
}

// Executor turns a stored schedule prompt into one ephemeral engine run.
// Nothing is persisted and intermediate events are discarded; only the
// final text crosses this boundary.
type Executor struct {
	runner promptRunner
	logger *slog.Logger
}

// NewExecutor creates an executor backed by the given engine.
func NewExecutor(runner promptRunner, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{runner: runner, logger: logger}
}

// Execute runs the schedule's prompt and returns the final text.
func (e *Executor) Execute(ctx context.Context, sched *Schedule) (string, error) {
	e.logger.Debug("executing schedule",
		"schedule", sched.ID,
		"tools_enabled", sched.ToolsEnabled,
	)
	return e.runner.RunOnce(ctx, sched.Prompt, agent.RunOnceOptions{
		ToolsEnabled: sched.ToolsEnabled,
		SystemNote:   unattendedNote,
	})
}
