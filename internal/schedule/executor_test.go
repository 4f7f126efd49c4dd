package schedule

import (
	"context"
	"strings"
	"testing"

	"github.com/zhukov123/openfang/internal/agent"
)

type fakePromptRunner struct {
	prompt string
	opts   agent.RunOnceOptions
}

func (f *fakePromptRunner) RunOnce(ctx context.Context, prompt string, opts agent.RunOnceOptions) (string, error) {
	f.prompt = prompt
	f.opts = opts
	return "done", nil
}

func TestExecutorExecute(t *testing.T) {
	runner := &fakePromptRunner{}
	e := NewExecutor(runner, nil)

	sched := &Schedule{ID: "s1", Prompt: "summarize the news", ToolsEnabled: true}
	out, err := e.Execute(context.Background(), sched)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "done" {
		t.Errorf("out = %q", out)
	}
	if runner.prompt != "summarize the news" {
		t.Errorf("prompt = %q", runner.prompt)
	}
	if !runner.opts.ToolsEnabled {
		t.Error("tools flag not propagated")
	}
	if !strings.Contains(runner.opts.SystemNote, "unattended") {
		t.Errorf("system note = %q", runner.opts.SystemNote)
	}
}

func TestExecutorExecute_ToolsGatedOff(t *testing.T) {
	runner := &fakePromptRunner{}
	e := NewExecutor(runner, nil)

	if _, err := e.Execute(context.Background(), &Schedule{Prompt: "x"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if runner.opts.ToolsEnabled {
		t.Error("tools should stay disabled unless the schedule enables them")
	}
}
