// Package schedule implements recurring prompts and one-shot reminders:
// persistence, the fixed-interval scheduler loop, and the unattended
// executor that turns a stored prompt into delivered text.
package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule kinds.
const (
	// KindRecurring runs the prompt through the model on a cron cadence.
	KindRecurring = "recurring"
	// KindReminder delivers the stored text once at RunAt, then the
	// schedule is deleted.
	KindReminder = "reminder"
)

// Schedule is one stored scheduled action.
type Schedule struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id,omitempty"`
	Kind         string     `json:"kind"`
	Prompt       string     `json:"prompt"`
	CronExpr     string     `json:"cron_expr,omitempty"` // recurring only
	RunAt        *time.Time `json:"run_at,omitempty"`    // reminder only
	Timezone     string     `json:"timezone,omitempty"`  // IANA name, UTC when empty
	Enabled      bool       `json:"enabled"`
	ToolsEnabled bool       `json:"tools_enabled"`
	LastRunAt    *time.Time `json:"last_run_at,omitempty"`
	NextRunAt    time.Time  `json:"next_run_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

// NextAfter evaluates a standard 5-field cron expression in the given
// timezone and returns the first occurrence strictly after the reference
// time. An unparsable expression or unknown timezone is an error; callers
// disable the schedule rather than retry.
func NextAfter(cronExpr, timezone string, after time.Time) (time.Time, error) {
	loc := time.UTC
	if timezone != "" {
		var err error
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return time.Time{}, fmt.Errorf("timezone %q: %w", timezone, err)
		}
	}

	spec, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("cron %q: %w", cronExpr, err)
	}

	next := spec.Next(after.In(loc))
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("cron %q: no future occurrence", cronExpr)
	}
	return next, nil
}
