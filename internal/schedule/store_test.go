package schedule

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "schedule_test.db")
	s, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNextAfter(t *testing.T) {
	after := time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC)

	next, err := NextAfter("0 9 * * *", "UTC", after)
	if err != nil {
		t.Fatalf("NextAfter: %v", err)
	}
	want := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}

	// Strictly after: at exactly 09:00 the next occurrence is tomorrow.
	next, err = NextAfter("0 9 * * *", "UTC", want)
	if err != nil {
		t.Fatalf("NextAfter: %v", err)
	}
	if !next.Equal(want.Add(24 * time.Hour)) {
		t.Errorf("next from boundary = %v", next)
	}

	if _, err := NextAfter("not a cron", "UTC", after); err == nil {
		t.Error("invalid cron should error")
	}
	if _, err := NextAfter("0 9 * * *", "Mars/Olympus", after); err == nil {
		t.Error("unknown timezone should error")
	}
}

func TestNextAfter_Timezone(t *testing.T) {
	// 09:00 Berlin is 08:00 UTC in winter.
	after := time.Date(2026, 1, 5, 6, 0, 0, 0, time.UTC)
	next, err := NextAfter("0 9 * * *", "Europe/Berlin", after)
	if err != nil {
		t.Fatalf("NextAfter: %v", err)
	}
	if !next.UTC().Equal(time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("next = %v", next.UTC())
	}
}

func TestStoreRoundTrip(t *testing.T) {
	s := newTestStore(t)

	runAt := time.Now().Add(time.Hour).Truncate(time.Millisecond)
	sched := &Schedule{
		UserID:    "user1",
		Kind:      KindReminder,
		Prompt:    "stand up",
		RunAt:     &runAt,
		Enabled:   true,
		NextRunAt: runAt,
	}
	if err := s.Create(sched); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sched.ID == "" {
		t.Fatal("Create should assign an ID")
	}

	got, err := s.Get(sched.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Prompt != "stand up" || got.Kind != KindReminder || got.UserID != "user1" {
		t.Errorf("got %+v", got)
	}
	if got.RunAt == nil || !got.RunAt.Equal(runAt) {
		t.Errorf("RunAt = %v, want %v", got.RunAt, runAt)
	}
	if !got.Enabled || got.LastRunAt != nil {
		t.Errorf("flags wrong: %+v", got)
	}
}

func TestStoreValidation(t *testing.T) {
	s := newTestStore(t)

	if err := s.Create(&Schedule{Kind: KindReminder, NextRunAt: time.Now()}); err == nil {
		t.Error("empty prompt should error")
	}
	if err := s.Create(&Schedule{Kind: KindReminder, Prompt: "x"}); err == nil {
		t.Error("zero next run time should error")
	}
	if err := s.Create(&Schedule{Kind: "weird", Prompt: "x", NextRunAt: time.Now()}); err == nil {
		t.Error("unknown kind should error")
	}
}

func TestStoreGetMissing(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Get("nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Error("missing schedule should be nil, nil")
	}
}

func TestStoreDue(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	past := &Schedule{Kind: KindReminder, Prompt: "past", Enabled: true, NextRunAt: now.Add(-time.Minute)}
	future := &Schedule{Kind: KindReminder, Prompt: "future", Enabled: true, NextRunAt: now.Add(time.Hour)}
	disabled := &Schedule{Kind: KindReminder, Prompt: "off", Enabled: false, NextRunAt: now.Add(-time.Minute)}
	for _, sched := range []*Schedule{past, future, disabled} {
		if err := s.Create(sched); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	due, err := s.Due(now)
	if err != nil {
		t.Fatalf("Due: %v", err)
	}
	if len(due) != 1 || due[0].Prompt != "past" {
		t.Errorf("due = %+v", due)
	}
}

func TestStoreDue_FractionalTimestamps(t *testing.T) {
	// Stored timestamps are compared as strings, so a run time with a
	// fractional second must order correctly against a whole-second
	// reference time, and vice versa.
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	fractional := &Schedule{Kind: KindReminder, Prompt: "fractional",
		Enabled: true, NextRunAt: base.Add(500 * time.Millisecond)}
	whole := &Schedule{Kind: KindReminder, Prompt: "whole",
		Enabled: true, NextRunAt: base.Add(time.Second)}
	for _, sched := range []*Schedule{fractional, whole} {
		if err := s.Create(sched); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	// At the base instant neither has come due yet.
	due, err := s.Due(base)
	if err != nil {
		t.Fatalf("Due: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("nothing should be due at base, got %+v", due)
	}

	// A fractional reference time must still see the whole-second run.
	due, err = s.Due(base.Add(1500 * time.Millisecond))
	if err != nil {
		t.Fatalf("Due: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("both should be due, got %+v", due)
	}
	if due[0].Prompt != "fractional" || due[1].Prompt != "whole" {
		t.Errorf("order = %q, %q", due[0].Prompt, due[1].Prompt)
	}
}

func TestStoreAdvanceAndDisable(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().Truncate(time.Millisecond)

	sched := &Schedule{Kind: KindRecurring, Prompt: "report", CronExpr: "0 9 * * *",
		Enabled: true, NextRunAt: now.Add(-time.Minute)}
	if err := s.Create(sched); err != nil {
		t.Fatalf("Create: %v", err)
	}

	next := now.Add(time.Hour)
	if err := s.Advance(sched.ID, now, next); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	got, _ := s.Get(sched.ID)
	if got.LastRunAt == nil || !got.LastRunAt.Equal(now) {
		t.Errorf("LastRunAt = %v", got.LastRunAt)
	}
	if !got.NextRunAt.Equal(next) {
		t.Errorf("NextRunAt = %v", got.NextRunAt)
	}

	if err := s.Disable(sched.ID); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	due, _ := s.Due(now.Add(2 * time.Hour))
	if len(due) != 0 {
		t.Error("disabled schedule must never be due")
	}
}

func TestStoreListAndDelete(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	a := &Schedule{Kind: KindReminder, Prompt: "a", Enabled: true, NextRunAt: now}
	b := &Schedule{Kind: KindReminder, Prompt: "b", Enabled: false, NextRunAt: now}
	s.Create(a)
	s.Create(b)

	all, err := s.List(false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len = %d", len(all))
	}

	enabled, _ := s.List(true)
	if len(enabled) != 1 || enabled[0].Prompt != "a" {
		t.Errorf("enabled = %+v", enabled)
	}

	if err := s.Delete(a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, _ := s.Get(a.ID)
	if got != nil {
		t.Error("deleted schedule still present")
	}
}
