package schedule

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// timeLayout is the stored timestamp format. The fractional part is
// fixed-width (RFC3339Nano drops trailing zeros), so UTC timestamps
// compare correctly as strings in the next_run_at queries.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store handles schedule persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a schedule store with SQLite backend.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		prompt TEXT NOT NULL,
		cron_expr TEXT NOT NULL DEFAULT '',
		run_at TEXT,
		timezone TEXT NOT NULL DEFAULT '',
		enabled INTEGER NOT NULL DEFAULT 1,
		tools_enabled INTEGER NOT NULL DEFAULT 0,
		last_run_at TEXT,
		next_run_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_schedules_next_run ON schedules(enabled, next_run_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// newID generates a new UUIDv7.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails
		return uuid.New().String()
	}
	return id.String()
}

const scheduleColumns = `id, user_id, kind, prompt, cron_expr, run_at, timezone,
	enabled, tools_enabled, last_run_at, next_run_at, created_at`

// Create persists a new schedule, assigning an ID when missing.
func (s *Store) Create(sched *Schedule) error {
	if sched.Prompt == "" {
		return fmt.Errorf("schedule prompt is required")
	}
	if sched.NextRunAt.IsZero() {
		return fmt.Errorf("schedule next run time is required")
	}
	switch sched.Kind {
	case KindRecurring, KindReminder:
	default:
		return fmt.Errorf("unknown schedule kind %q", sched.Kind)
	}
	if sched.ID == "" {
		sched.ID = newID()
	}
	if sched.CreatedAt.IsZero() {
		sched.CreatedAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO schedules (`+scheduleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sched.ID, sched.UserID, sched.Kind, sched.Prompt, sched.CronExpr,
		formatNullableTime(sched.RunAt), sched.Timezone,
		boolToInt(sched.Enabled), boolToInt(sched.ToolsEnabled),
		formatNullableTime(sched.LastRunAt),
		sched.NextRunAt.UTC().Format(timeLayout),
		sched.CreatedAt.UTC().Format(timeLayout))

	return err
}

// Get retrieves a schedule by ID. Returns nil, nil when it does not exist.
func (s *Store) Get(id string) (*Schedule, error) {
	row := s.db.QueryRow(`SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)

	sched, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sched, err
}

// List returns schedules newest first, optionally only enabled ones.
func (s *Store) List(enabledOnly bool) ([]*Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSchedules(rows)
}

// Due returns enabled schedules whose next run time has passed, soonest
// first.
func (s *Store) Due(now time.Time) ([]*Schedule, error) {
	rows, err := s.db.Query(`
		SELECT `+scheduleColumns+` FROM schedules
		WHERE enabled = 1 AND next_run_at <= ?
		ORDER BY next_run_at ASC, id ASC
	`, now.UTC().Format(timeLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSchedules(rows)
}

// Advance records a completed run: sets last_run_at and the next run time.
func (s *Store) Advance(id string, lastRun, nextRun time.Time) error {
	_, err := s.db.Exec(`
		UPDATE schedules SET last_run_at = ?, next_run_at = ? WHERE id = ?
	`, lastRun.UTC().Format(timeLayout), nextRun.UTC().Format(timeLayout), id)
	return err
}

// SetNextRun updates only the next run time, used by startup recovery.
func (s *Store) SetNextRun(id string, nextRun time.Time) error {
	_, err := s.db.Exec(`
		UPDATE schedules SET next_run_at = ? WHERE id = ?
	`, nextRun.UTC().Format(timeLayout), id)
	return err
}

// Disable marks a schedule as disabled so the scheduler skips it.
func (s *Store) Disable(id string) error {
	_, err := s.db.Exec(`UPDATE schedules SET enabled = 0 WHERE id = ?`, id)
	return err
}

// Delete removes a schedule.
func (s *Store) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM schedules WHERE id = ?`, id)
	return err
}

// Helper scan functions

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*Schedule, error) {
	var sched Schedule
	var runAt, lastRunAt sql.NullString
	var enabled, toolsEnabled int
	var nextRunAt, createdAt string

	err := row.Scan(&sched.ID, &sched.UserID, &sched.Kind, &sched.Prompt,
		&sched.CronExpr, &runAt, &sched.Timezone, &enabled, &toolsEnabled,
		&lastRunAt, &nextRunAt, &createdAt)
	if err != nil {
		return nil, err
	}

	sched.Enabled = enabled == 1
	sched.ToolsEnabled = toolsEnabled == 1
	sched.RunAt = parseNullableTime(runAt)
	sched.LastRunAt = parseNullableTime(lastRunAt)
	sched.NextRunAt, _ = time.Parse(time.RFC3339Nano, nextRunAt)
	sched.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)

	return &sched, nil
}

func scanSchedules(rows *sql.Rows) ([]*Schedule, error) {
	var schedules []*Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, sched)
	}
	return schedules, rows.Err()
}

func formatNullableTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(timeLayout)
	return &s
}

func parseNullableTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
