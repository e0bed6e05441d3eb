package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/YingxueSec/AI-Code-Sec/internal/scheduler"
)

// timeLayout stores timestamps as fixed-width UTC text: nine fractional
// digits, no zone suffix. Fixed width keeps lexicographic ORDER BY equal to
// chronological order, which the queue rebuild relies on.
const timeLayout = "2006-01-02 15:04:05.000000000"

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func encodeNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return encodeTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullableTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

const taskColumns = `seq, id, owner, tier, payload_ref, status, error, submitted_at, started_at, finished_at`

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(sc scanner) (*scheduler.Task, error) {
	task := &scheduler.Task{}
	var status, submitted string
	var started, finished sql.NullString

	err := sc.Scan(&task.Seq, &task.ID, &task.Owner, &task.Tier, &task.PayloadRef,
		&status, &task.Error, &submitted, &started, &finished)
	if err != nil {
		return nil, err
	}

	task.Status = scheduler.Status(status)
	if task.SubmittedAt, err = parseTime(submitted); err != nil {
		return nil, err
	}
	if task.StartedAt, err = parseNullableTime(started); err != nil {
		return nil, err
	}
	if task.FinishedAt, err = parseNullableTime(finished); err != nil {
		return nil, err
	}
	return task, nil
}

// InsertTask persists a new task and assigns its admission sequence from
// the rowid. Duplicate ids fail on the unique constraint.
func (s *SQLiteStore) InsertTask(ctx context.Context, task *scheduler.Task) error {
	// Begin transaction with serializable isolation (BEGIN IMMEDIATE)
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO tasks (id, owner, tier, payload_ref, status, error, submitted_at, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, task.ID, task.Owner, task.Tier, task.PayloadRef, string(task.Status), task.Error,
		encodeTime(task.SubmittedAt), encodeNullableTime(task.StartedAt))
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read task sequence: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	task.Seq = seq
	return nil
}

// MarkRunning transitions a stored task to running.
func (s *SQLiteStore) MarkRunning(ctx context.Context, id string, startedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, started_at = ?
		WHERE id = ?
	`, string(scheduler.StatusRunning), encodeTime(startedAt), id)
	if err != nil {
		return fmt.Errorf("failed to mark task running: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("task %s: %w", id, scheduler.ErrUnknownTask)
	}
	return nil
}

// MarkTerminal transitions a stored task to a terminal status and records
// the failure reason, if any.
func (s *SQLiteStore) MarkTerminal(ctx context.Context, id string, status scheduler.Status, errMsg string, finishedAt time.Time) error {
	if !status.Terminal() {
		return fmt.Errorf("status %s is not terminal", status)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, error = ?, finished_at = ?
		WHERE id = ?
	`, string(status), errMsg, encodeTime(finishedAt), id)
	if err != nil {
		return fmt.Errorf("failed to mark task %s: %w", status, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("task %s: %w", id, scheduler.ErrUnknownTask)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (s *SQLiteStore) GetTask(ctx context.Context, taskID string) (*scheduler.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE id = ?
	`, taskID)

	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %s: %w", taskID, scheduler.ErrUnknownTask)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task: %w", err)
	}
	return task, nil
}

// ListTasks returns all tasks in admission order.
func (s *SQLiteStore) ListTasks(ctx context.Context) ([]*scheduler.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// ListByOwner returns all of one owner's tasks in admission order.
func (s *SQLiteStore) ListByOwner(ctx context.Context, owner string) ([]*scheduler.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE owner = ?
		ORDER BY seq
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks for owner %s: %w", owner, err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// LoadIncomplete returns all non-terminal tasks for restart recovery,
// already sorted in dispatch order: tier first, then submission time, then
// admission sequence.
func (s *SQLiteStore) LoadIncomplete(ctx context.Context) (running, queued []*scheduler.Task, err error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE status IN (?, ?)
		ORDER BY tier DESC, submitted_at ASC, seq ASC
	`, string(scheduler.StatusRunning), string(scheduler.StatusQueued))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query incomplete tasks: %w", err)
	}
	defer rows.Close()

	tasks, err := collectTasks(rows)
	if err != nil {
		return nil, nil, err
	}

	for _, task := range tasks {
		if task.Status == scheduler.StatusRunning {
			running = append(running, task)
		} else {
			queued = append(queued, task)
		}
	}
	return running, queued, nil
}

// CountByStatus returns the number of tasks in each status.
func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[scheduler.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM tasks
		GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	defer rows.Close()

	counts := make(map[scheduler.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[scheduler.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating counts: %w", err)
	}
	return counts, nil
}

func collectTasks(rows *sql.Rows) ([]*scheduler.Task, error) {
	var tasks []*scheduler.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}
