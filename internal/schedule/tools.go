package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zhukov123/openfang/internal/tools"
)

// Tools returns the schedule management tools exposed to the model.
// defaultTimezone applies when the model omits one.
func Tools(s *Store, defaultTimezone string) []*tools.Tool {
	return []*tools.Tool{
		createScheduleTool(s, defaultTimezone),
		setReminderTool(s),
		listSchedulesTool(s),
		deleteScheduleTool(s),
	}
}

func createScheduleTool(s *Store, defaultTimezone string) *tools.Tool {
	return &tools.Tool{
		Name: "create_schedule",
		Description: "Create a recurring schedule that runs a prompt on a cron cadence " +
			"and delivers the result. Use standard 5-field cron syntax.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"prompt": map[string]any{
					"type":        "string",
					"description": "The prompt to run each time the schedule fires",
				},
				"cron": map[string]any{
					"type":        "string",
					"description": "5-field cron expression, e.g. '0 9 * * 1-5' for weekday mornings",
				},
				"timezone": map[string]any{
					"type":        "string",
					"description": "IANA timezone name, e.g. 'Europe/Berlin' (optional)",
				},
				"tools_enabled": map[string]any{
					"type":        "boolean",
					"description": "Whether the scheduled run may use tools (default false)",
				},
			},
			"required": []string{"prompt", "cron"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			prompt, err := tools.StringArg(args, "prompt")
			if err != nil {
				return "", err
			}
			cronExpr, err := tools.StringArg(args, "cron")
			if err != nil {
				return "", err
			}
			timezone := tools.OptionalStringArg(args, "timezone", defaultTimezone)

			next, err := NextAfter(cronExpr, timezone, time.Now())
			if err != nil {
				return "", err
			}

			sched := &Schedule{
				Kind:         KindRecurring,
				Prompt:       prompt,
				CronExpr:     cronExpr,
				Timezone:     timezone,
				Enabled:      true,
				ToolsEnabled: tools.OptionalBoolArg(args, "tools_enabled", false),
				NextRunAt:    next,
			}
			if err := s.Create(sched); err != nil {
				return "", err
			}
			return fmt.Sprintf("Created schedule %s. Next run: %s.",
				sched.ID, next.Format(time.RFC1123)), nil
		},
	}
}

func setReminderTool(s *Store) *tools.Tool {
	return &tools.Tool{
		Name: "set_reminder",
		Description: "Set a one-shot reminder. The message is delivered once at the " +
			"given time, then the reminder is removed. Provide either delay_minutes " +
			"or absolute_time.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{
					"type":        "string",
					"description": "The reminder text to deliver",
				},
				"delay_minutes": map[string]any{
					"type":        "integer",
					"description": "Minutes from now until the reminder fires",
				},
				"absolute_time": map[string]any{
					"type":        "string",
					"description": "RFC 3339 timestamp for the reminder, e.g. '2026-09-01T09:00:00Z'",
				},
			},
			"required": []string{"message"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			message, err := tools.StringArg(args, "message")
			if err != nil {
				return "", err
			}

			now := time.Now()
			var runAt time.Time

			if raw := tools.OptionalStringArg(args, "absolute_time", ""); raw != "" {
				runAt, err = time.Parse(time.RFC3339, raw)
				if err != nil {
					return "", fmt.Errorf("absolute_time: %w", err)
				}
			} else if minutes := tools.OptionalIntArg(args, "delay_minutes", 0); minutes > 0 {
				runAt = now.Add(time.Duration(minutes) * time.Minute)
			} else {
				return "", fmt.Errorf("provide delay_minutes or absolute_time")
			}

			if !runAt.After(now) {
				return "", fmt.Errorf("reminder time %s is in the past", runAt.Format(time.RFC1123))
			}

			sched := &Schedule{
				Kind:      KindReminder,
				Prompt:    message,
				RunAt:     &runAt,
				Enabled:   true,
				NextRunAt: runAt,
			}
			if err := s.Create(sched); err != nil {
				return "", err
			}
			return fmt.Sprintf("Reminder %s set for %s.",
				sched.ID, runAt.Format(time.RFC1123)), nil
		},
	}
}

func listSchedulesTool(s *Store) *tools.Tool {
	return &tools.Tool{
		Name:        "list_schedules",
		Description: "List all schedules and reminders with their next run times.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			schedules, err := s.List(false)
			if err != nil {
				return "", err
			}
			if len(schedules) == 0 {
				return "No schedules.", nil
			}

			var b strings.Builder
			for _, sched := range schedules {
				fmt.Fprintf(&b, "%s [%s] %q", sched.ID, sched.Kind, sched.Prompt)
				if sched.Kind == KindRecurring {
					fmt.Fprintf(&b, " cron=%q", sched.CronExpr)
				}
				if !sched.Enabled {
					b.WriteString(" (disabled)")
				} else {
					fmt.Fprintf(&b, " next=%s", sched.NextRunAt.Format(time.RFC1123))
				}
				b.WriteString("\n")
			}
			return strings.TrimRight(b.String(), "\n"), nil
		},
	}
}

func deleteScheduleTool(s *Store) *tools.Tool {
	return &tools.Tool{
		Name:        "delete_schedule",
		Description: "Delete a schedule or reminder by ID.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id": map[string]any{
					"type":        "string",
					"description": "The schedule ID to delete",
				},
			},
			"required": []string{"id"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			id, err := tools.StringArg(args, "id")
			if err != nil {
				return "", err
			}
			sched, err := s.Get(id)
			if err != nil {
				return "", err
			}
			if sched == nil {
				return "", fmt.Errorf("no schedule with id %q", id)
			}
			if err := s.Delete(id); err != nil {
				return "", err
			}
			return fmt.Sprintf("Deleted schedule %s.", id), nil
		},
	}
}
