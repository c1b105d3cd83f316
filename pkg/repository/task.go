package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeready-toolchain/meshgate/pkg/errs"
	"github.com/codeready-toolchain/meshgate/pkg/model"
)

// TaskRepository persists model.Task rows, the audit record of each A2A
// task (spec §3, §4.10 BackgroundTaskMonitor).
type TaskRepository struct {
	pool *pgxpool.Pool
}

func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{pool: pool}
}

func (r *TaskRepository) Create(ctx context.Context, t *model.Task) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tasks (id, user_id, session_id, start_time, end_time, status, initial_request_text,
			agent_name, background_execution_enabled, max_execution_time_ms, last_activity_time, has_buffered_events)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		t.ID, t.UserID, nullIfEmpty(t.SessionID), t.StartTime, t.EndTime, t.Status, t.InitialRequestText,
		t.AgentName, t.BackgroundExecutionEnabled, t.MaxExecutionTimeMs, t.LastActivityTime, t.HasBufferedEvents)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (r *TaskRepository) Get(ctx context.Context, id string) (*model.Task, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, COALESCE(session_id, ''), start_time, end_time, status, initial_request_text,
			agent_name, background_execution_enabled, max_execution_time_ms, last_activity_time, has_buffered_events
		FROM tasks WHERE id = $1`, id)
	return scanTask(row)
}

// UpdateStatus transitions a task's status and, for terminal statuses,
// sets end_time.
func (r *TaskRepository) UpdateStatus(ctx context.Context, id string, status model.TaskStatus, endTime *int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE tasks SET status = $2, end_time = COALESCE($3, end_time) WHERE id = $1`,
		id, status, endTime)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.NotFound, "task not found")
	}
	return nil
}

// Heartbeat bumps last_activity_time, used by the worker executing a task
// and by BackgroundTaskMonitor to detect silently-stalled tasks.
func (r *TaskRepository) Heartbeat(ctx context.Context, id string, at int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE tasks SET last_activity_time = $2 WHERE id = $1`, id, at)
	return err
}

func (r *TaskRepository) MarkHasBufferedEvents(ctx context.Context, id string, has bool) error {
	_, err := r.pool.Exec(ctx, `UPDATE tasks SET has_buffered_events = $2 WHERE id = $1`, id, has)
	return err
}

// ListStaleBackgroundTasks finds background tasks whose last activity is
// older than cutoff and whose status is still pending/running — candidates
// for BackgroundTaskMonitor's timeout sweep (spec §4.10).
func (r *TaskRepository) ListStaleBackgroundTasks(ctx context.Context, cutoff int64, limit int) ([]*model.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, COALESCE(session_id, ''), start_time, end_time, status, initial_request_text,
			agent_name, background_execution_enabled, max_execution_time_ms, last_activity_time, has_buffered_events
		FROM tasks
		WHERE background_execution_enabled AND status IN ('pending', 'running') AND last_activity_time < $1
		ORDER BY last_activity_time ASC LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale background tasks: %w", err)
	}
	defer rows.Close()

	var out []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListRecoverableOnStartup returns background tasks still marked
// pending/running after a restart, which BackgroundTaskMonitor then marks
// interrupted (spec §4.10 "idempotent startup recovery").
func (r *TaskRepository) ListRecoverableOnStartup(ctx context.Context) ([]*model.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, COALESCE(session_id, ''), start_time, end_time, status, initial_request_text,
			agent_name, background_execution_enabled, max_execution_time_ms, last_activity_time, has_buffered_events
		FROM tasks WHERE background_execution_enabled AND status IN ('pending', 'running')`)
	if err != nil {
		return nil, fmt.Errorf("list recoverable tasks: %w", err)
	}
	defer rows.Close()

	var out []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteOlderThan hard-deletes tasks that started before cutoff, whatever
// their status, in batches of at most limit rows (DataRetentionService, spec §4.11).
func (r *TaskRepository) DeleteOlderThan(ctx context.Context, cutoff int64, limit int) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM tasks WHERE id IN (
			SELECT id FROM tasks WHERE start_time < $1 LIMIT $2
		)`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired tasks: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanTask(row rowScanner) (*model.Task, error) {
	var t model.Task
	if err := row.Scan(&t.ID, &t.UserID, &t.SessionID, &t.StartTime, &t.EndTime, &t.Status, &t.InitialRequestText,
		&t.AgentName, &t.BackgroundExecutionEnabled, &t.MaxExecutionTimeMs, &t.LastActivityTime, &t.HasBufferedEvents); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.New(errs.NotFound, "task not found")
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	return &t, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
