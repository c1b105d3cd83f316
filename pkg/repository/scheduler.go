package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeready-toolchain/meshgate/pkg/errs"
	"github.com/codeready-toolchain/meshgate/pkg/model"
)

// ScheduledTaskRepository persists trigger definitions (spec §3, §4.7).
type ScheduledTaskRepository struct {
	pool *pgxpool.Pool
}

func NewScheduledTaskRepository(pool *pgxpool.Pool) *ScheduledTaskRepository {
	return &ScheduledTaskRepository{pool: pool}
}

func (r *ScheduledTaskRepository) Create(ctx context.Context, t *model.ScheduledTask) error {
	msg, err := json.Marshal(t.TaskMessage)
	if err != nil {
		return fmt.Errorf("marshal task message: %w", err)
	}
	meta, err := json.Marshal(t.TaskMetadata)
	if err != nil {
		return fmt.Errorf("marshal task metadata: %w", err)
	}
	var notif []byte
	if t.NotificationConfig != nil {
		if notif, err = json.Marshal(t.NotificationConfig); err != nil {
			return fmt.Errorf("marshal notification config: %w", err)
		}
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO scheduled_tasks (id, name, namespace, user_id, created_by, schedule_type, schedule_expression,
			timezone, target_agent_name, task_message, task_metadata, enabled, max_retries, retry_delay_seconds,
			timeout_seconds, notification_config, created_at, updated_at, next_run_at, last_run_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		t.ID, t.Name, t.Namespace, t.UserID, t.CreatedBy, t.ScheduleType, t.ScheduleExpression,
		t.Timezone, t.TargetAgentName, msg, meta, t.Enabled, t.MaxRetries, t.RetryDelaySeconds,
		t.TimeoutSeconds, notif, t.CreatedAt, t.UpdatedAt, t.NextRunAt, t.LastRunAt)
	if err != nil {
		return fmt.Errorf("insert scheduled task: %w", err)
	}
	return nil
}

func (r *ScheduledTaskRepository) Get(ctx context.Context, id string) (*model.ScheduledTask, error) {
	row := r.pool.QueryRow(ctx, scheduledTaskSelect+` WHERE id = $1 AND deleted_at IS NULL`, id)
	return scanScheduledTask(row)
}

// ListDue returns enabled tasks whose next_run_at has passed, for the
// scheduler's poll loop to fire (spec §4.7/§4.8).
func (r *ScheduledTaskRepository) ListDue(ctx context.Context, now int64, limit int) ([]*model.ScheduledTask, error) {
	rows, err := r.pool.Query(ctx, scheduledTaskSelect+`
		WHERE enabled AND deleted_at IS NULL AND next_run_at IS NOT NULL AND next_run_at <= $1
		ORDER BY next_run_at ASC LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due scheduled tasks: %w", err)
	}
	defer rows.Close()

	var out []*model.ScheduledTask
	for rows.Next() {
		t, err := scanScheduledTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *ScheduledTaskRepository) ListByNamespace(ctx context.Context, namespace string) ([]*model.ScheduledTask, error) {
	rows, err := r.pool.Query(ctx, scheduledTaskSelect+` WHERE namespace = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, namespace)
	if err != nil {
		return nil, fmt.Errorf("list scheduled tasks: %w", err)
	}
	defer rows.Close()

	var out []*model.ScheduledTask
	for rows.Next() {
		t, err := scanScheduledTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateRunTimes advances nextRunAt and records the firing in lastRunAt.
func (r *ScheduledTaskRepository) UpdateRunTimes(ctx context.Context, id string, lastRunAt int64, nextRunAt *int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE scheduled_tasks SET last_run_at = $2, next_run_at = $3, updated_at = $2 WHERE id = $1`,
		id, lastRunAt, nextRunAt)
	if err != nil {
		return fmt.Errorf("update scheduled task run times: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.NotFound, "scheduled task not found")
	}
	return nil
}

func (r *ScheduledTaskRepository) SetEnabled(ctx context.Context, id string, enabled bool, updatedAt int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE scheduled_tasks SET enabled = $2, updated_at = $3 WHERE id = $1`, id, enabled, updatedAt)
	return err
}

func (r *ScheduledTaskRepository) SoftDelete(ctx context.Context, id string, deletedAt int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE scheduled_tasks SET deleted_at = $2 WHERE id = $1`, id, deletedAt)
	return err
}

const scheduledTaskSelect = `
	SELECT id, name, namespace, user_id, created_by, schedule_type, schedule_expression, timezone,
		target_agent_name, task_message, task_metadata, enabled, max_retries, retry_delay_seconds,
		timeout_seconds, notification_config, created_at, updated_at, next_run_at, last_run_at, deleted_at
	FROM scheduled_tasks`

func scanScheduledTask(row rowScanner) (*model.ScheduledTask, error) {
	var t model.ScheduledTask
	var msg, meta, notif []byte
	if err := row.Scan(&t.ID, &t.Name, &t.Namespace, &t.UserID, &t.CreatedBy, &t.ScheduleType, &t.ScheduleExpression,
		&t.Timezone, &t.TargetAgentName, &msg, &meta, &t.Enabled, &t.MaxRetries, &t.RetryDelaySeconds,
		&t.TimeoutSeconds, &notif, &t.CreatedAt, &t.UpdatedAt, &t.NextRunAt, &t.LastRunAt, &t.DeletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.New(errs.NotFound, "scheduled task not found")
		}
		return nil, fmt.Errorf("scan scheduled task: %w", err)
	}
	if err := json.Unmarshal(msg, &t.TaskMessage); err != nil {
		return nil, fmt.Errorf("unmarshal task message: %w", err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &t.TaskMetadata); err != nil {
			return nil, fmt.Errorf("unmarshal task metadata: %w", err)
		}
	}
	if len(notif) > 0 {
		var nc model.NotificationConfig
		if err := json.Unmarshal(notif, &nc); err != nil {
			return nil, fmt.Errorf("unmarshal notification config: %w", err)
		}
		t.NotificationConfig = &nc
	}
	return &t, nil
}

// ScheduledTaskExecutionRepository persists individual firings.
type ScheduledTaskExecutionRepository struct {
	pool *pgxpool.Pool
}

func NewScheduledTaskExecutionRepository(pool *pgxpool.Pool) *ScheduledTaskExecutionRepository {
	return &ScheduledTaskExecutionRepository{pool: pool}
}

func (r *ScheduledTaskExecutionRepository) Create(ctx context.Context, e *model.ScheduledTaskExecution) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO scheduled_task_executions (id, scheduled_task_id, status, a2a_task_id, scheduled_for,
			started_at, completed_at, result_summary, error_message, retry_count, artifacts, notifications_sent)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		e.ID, e.ScheduledTaskID, e.Status, e.A2ATaskID, e.ScheduledFor, e.StartedAt, e.CompletedAt,
		jsonOrNil(e.ResultSummary), e.ErrorMessage, e.RetryCount, jsonOrNil(e.Artifacts), jsonOrNil(e.NotificationsSent))
	if err != nil {
		return fmt.Errorf("insert scheduled task execution: %w", err)
	}
	return nil
}

func (r *ScheduledTaskExecutionRepository) UpdateStatus(ctx context.Context, id string, status model.ExecutionStatus, completedAt *int64, errMsg *string) error {
	_, err := r.pool.Exec(ctx, `UPDATE scheduled_task_executions SET status = $2, completed_at = $3, error_message = $4 WHERE id = $1`,
		id, status, completedAt, errMsg)
	return err
}

// UpdateStarted transitions an execution to running and stamps startedAt
// (spec §4.7 execution step 4).
func (r *ScheduledTaskExecutionRepository) UpdateStarted(ctx context.Context, id string, startedAt int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE scheduled_task_executions SET status = 'running', started_at = $2 WHERE id = $1`, id, startedAt)
	return err
}

// Finalize records the full terminal outcome of an execution: status,
// completedAt, an optional error message, and the extracted result
// summary/artifacts (spec §4.8 "Success path" / "Error path").
func (r *ScheduledTaskExecutionRepository) Finalize(ctx context.Context, id string, status model.ExecutionStatus, completedAt int64, errMsg *string, resultSummary map[string]any, artifacts []model.ExecutionArtifact) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE scheduled_task_executions
		SET status = $2, completed_at = $3, error_message = $4, result_summary = $5, artifacts = $6
		WHERE id = $1`,
		id, status, completedAt, errMsg, jsonOrNil(resultSummary), jsonOrNil(artifacts))
	if err != nil {
		return fmt.Errorf("finalize execution: %w", err)
	}
	return nil
}

// FindIDByA2ATaskID looks up a pending/running execution by the a2aTaskId
// recorded on it at creation time — the stateless ResultCollector's sole
// correlation mechanism (spec §4.8). Returns the execution id and its
// parent scheduled task id (the latter needed to clear the Forbid
// concurrency policy's running flag).
func (r *ScheduledTaskExecutionRepository) FindIDByA2ATaskID(ctx context.Context, a2aTaskID string) (executionID, scheduledTaskID string, err error) {
	err = r.pool.QueryRow(ctx, `
		SELECT id, scheduled_task_id FROM scheduled_task_executions
		WHERE a2a_task_id = $1 AND status IN ('pending','running') LIMIT 1`, a2aTaskID).Scan(&executionID, &scheduledTaskID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", errs.New(errs.NotFound, "no pending execution for a2a task "+a2aTaskID)
		}
		return "", "", fmt.Errorf("find execution by a2a task id: %w", err)
	}
	return executionID, scheduledTaskID, nil
}

// ListStaleRunning returns executions stuck in "running" past cutoff, for
// the scheduler's stale-execution reaper (spec §4.7 edge case).
func (r *ScheduledTaskExecutionRepository) ListStaleRunning(ctx context.Context, cutoff int64, limit int) ([]*model.ScheduledTaskExecution, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, scheduled_task_id, status, a2a_task_id, scheduled_for, started_at, completed_at,
			result_summary, error_message, retry_count, artifacts, notifications_sent
		FROM scheduled_task_executions WHERE status = 'running' AND started_at < $1 LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale executions: %w", err)
	}
	defer rows.Close()

	var out []*model.ScheduledTaskExecution
	for rows.Next() {
		var e model.ScheduledTaskExecution
		var result, artifacts, notifs []byte
		if err := rows.Scan(&e.ID, &e.ScheduledTaskID, &e.Status, &e.A2ATaskID, &e.ScheduledFor, &e.StartedAt, &e.CompletedAt,
			&result, &e.ErrorMessage, &e.RetryCount, &artifacts, &notifs); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		if len(result) > 0 {
			_ = json.Unmarshal(result, &e.ResultSummary)
		}
		if len(artifacts) > 0 {
			_ = json.Unmarshal(artifacts, &e.Artifacts)
		}
		if len(notifs) > 0 {
			_ = json.Unmarshal(notifs, &e.NotificationsSent)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func jsonOrNil(v any) []byte {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// SchedulerLockRepository implements the single-row leader-election lock
// (spec §4.7), grounded on original_source's leader_election.py
// SELECT ... FOR UPDATE SKIP LOCKED technique.
type SchedulerLockRepository struct {
	pool *pgxpool.Pool
}

func NewSchedulerLockRepository(pool *pgxpool.Pool) *SchedulerLockRepository {
	return &SchedulerLockRepository{pool: pool}
}

// EnsureRow creates the id=1 lock row if it doesn't exist yet, with an
// already-expired lease so the first election attempt can claim it.
func (r *SchedulerLockRepository) EnsureRow(ctx context.Context, now int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO scheduler_lock (id, leader_id, leader_namespace, acquired_at, expires_at, heartbeat_at)
		VALUES (1, '', '', $1, $1, $1)
		ON CONFLICT (id) DO NOTHING`, now-1)
	return err
}

// TryAcquire attempts to become leader: it takes the row lock with
// FOR UPDATE SKIP LOCKED, and only claims it if unheld or expired.
// Returns false (no error) if another process currently holds a live lease.
func (r *SchedulerLockRepository) TryAcquire(ctx context.Context, candidateID, namespace string, now, expiresAt int64) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var leaderID string
	var leaseExpiresAt int64
	err = tx.QueryRow(ctx, `SELECT leader_id, expires_at FROM scheduler_lock WHERE id = 1 FOR UPDATE SKIP LOCKED`).Scan(&leaderID, &leaseExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Row is locked by a concurrent election attempt this instant.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lock scheduler_lock row: %w", err)
	}

	if leaderID == candidateID || leaseExpiresAt < now {
		if _, err := tx.Exec(ctx, `
			UPDATE scheduler_lock SET leader_id = $1, leader_namespace = $2, acquired_at = $3, expires_at = $4, heartbeat_at = $3
			WHERE id = 1`, candidateID, namespace, now, expiresAt); err != nil {
			return false, fmt.Errorf("claim scheduler lock: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return false, fmt.Errorf("commit lock claim: %w", err)
		}
		return true, nil
	}

	return false, nil
}

// Heartbeat renews the lease for the current leader; it is a no-op (and
// signals the caller lost leadership) if leaderID no longer matches.
func (r *SchedulerLockRepository) Heartbeat(ctx context.Context, leaderID string, now, expiresAt int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE scheduler_lock SET heartbeat_at = $2, expires_at = $3 WHERE id = 1 AND leader_id = $1`,
		leaderID, now, expiresAt)
	if err != nil {
		return false, fmt.Errorf("heartbeat scheduler lock: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *SchedulerLockRepository) Get(ctx context.Context) (*model.SchedulerLock, error) {
	var l model.SchedulerLock
	err := r.pool.QueryRow(ctx, `SELECT id, leader_id, leader_namespace, acquired_at, expires_at, heartbeat_at FROM scheduler_lock WHERE id = 1`).
		Scan(&l.ID, &l.LeaderID, &l.LeaderNamespace, &l.AcquiredAt, &l.ExpiresAt, &l.HeartbeatAt)
	if err != nil {
		return nil, fmt.Errorf("get scheduler lock: %w", err)
	}
	return &l, nil
}
