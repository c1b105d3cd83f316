package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeready-toolchain/meshgate/pkg/model"
)

// TaskEventRepository persists the append-only bus audit trail.
type TaskEventRepository struct {
	pool *pgxpool.Pool
}

func NewTaskEventRepository(pool *pgxpool.Pool) *TaskEventRepository {
	return &TaskEventRepository{pool: pool}
}

func (r *TaskEventRepository) Append(ctx context.Context, e *model.TaskEvent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO task_events (id, task_id, user_id, created_time, topic, direction, payload)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.TaskID, e.UserID, e.CreatedTime, e.Topic, e.Direction, e.Payload)
	if err != nil {
		return fmt.Errorf("insert task event: %w", err)
	}
	return nil
}

func (r *TaskEventRepository) ListByTask(ctx context.Context, taskID string) ([]*model.TaskEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, task_id, user_id, created_time, topic, direction, payload
		FROM task_events WHERE task_id = $1 ORDER BY created_time ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list task events: %w", err)
	}
	defer rows.Close()

	var out []*model.TaskEvent
	for rows.Next() {
		var e model.TaskEvent
		if err := rows.Scan(&e.ID, &e.TaskID, &e.UserID, &e.CreatedTime, &e.Topic, &e.Direction, &e.Payload); err != nil {
			return nil, fmt.Errorf("scan task event: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// DeleteOlderThan removes every task event created before cutoff, whether
// or not its task still exists, a safety net behind per-task cascade delete
// (spec §4.11 retention).
func (r *TaskEventRepository) DeleteOlderThan(ctx context.Context, cutoff int64, limit int) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM task_events WHERE id IN (
			SELECT id FROM task_events WHERE created_time < $1 LIMIT $2
		)`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired task events: %w", err)
	}
	return tag.RowsAffected(), nil
}
