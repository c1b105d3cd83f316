package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeready-toolchain/meshgate/pkg/model"
)

// SSEEventBufferRepository persists events for background tasks so a
// reconnecting client can replay everything it missed (spec §4.3
// PersistentEventBuffer).
type SSEEventBufferRepository struct {
	pool *pgxpool.Pool
}

func NewSSEEventBufferRepository(pool *pgxpool.Pool) *SSEEventBufferRepository {
	return &SSEEventBufferRepository{pool: pool}
}

// Append stores one buffered event. ON CONFLICT DO NOTHING makes retried
// publishes idempotent against the (task_id, event_sequence) unique key.
func (r *SSEEventBufferRepository) Append(ctx context.Context, e *model.SSEEventBufferEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sse_event_buffer (task_id, session_id, user_id, event_sequence, event_type, event_data, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (task_id, event_sequence) DO NOTHING`,
		e.TaskID, e.SessionID, e.UserID, e.EventSequence, e.EventType, e.EventData, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append sse buffer entry: %w", err)
	}
	return nil
}

// ListUnconsumed returns a task's buffered events in sequence order, for
// replay to a reconnecting client.
func (r *SSEEventBufferRepository) ListUnconsumed(ctx context.Context, taskID string, limit int) ([]*model.SSEEventBufferEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, task_id, session_id, user_id, event_sequence, event_type, event_data, created_at, consumed, consumed_at
		FROM sse_event_buffer WHERE task_id = $1 AND NOT consumed
		ORDER BY event_sequence ASC LIMIT $2`, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("list unconsumed sse buffer entries: %w", err)
	}
	defer rows.Close()

	var out []*model.SSEEventBufferEntry
	for rows.Next() {
		var e model.SSEEventBufferEntry
		if err := rows.Scan(&e.ID, &e.TaskID, &e.SessionID, &e.UserID, &e.EventSequence, &e.EventType, &e.EventData, &e.CreatedAt, &e.Consumed, &e.ConsumedAt); err != nil {
			return nil, fmt.Errorf("scan sse buffer entry: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// ListUnconsumedBySession returns every unconsumed buffered event across a
// session's tasks, used to detect attachable background work on session
// load (spec §4.3 getUnconsumedEventsForSession).
func (r *SSEEventBufferRepository) ListUnconsumedBySession(ctx context.Context, sessionID string) ([]*model.SSEEventBufferEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, task_id, session_id, user_id, event_sequence, event_type, event_data, created_at, consumed, consumed_at
		FROM sse_event_buffer WHERE session_id = $1 AND NOT consumed
		ORDER BY task_id, event_sequence ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list unconsumed sse buffer entries by session: %w", err)
	}
	defer rows.Close()

	var out []*model.SSEEventBufferEntry
	for rows.Next() {
		var e model.SSEEventBufferEntry
		if err := rows.Scan(&e.ID, &e.TaskID, &e.SessionID, &e.UserID, &e.EventSequence, &e.EventType, &e.EventData, &e.CreatedAt, &e.Consumed, &e.ConsumedAt); err != nil {
			return nil, fmt.Errorf("scan sse buffer entry: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// MarkConsumed flags a task's buffered events as delivered once a client
// has successfully replayed them.
func (r *SSEEventBufferRepository) MarkConsumed(ctx context.Context, taskID string, consumedAt int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE sse_event_buffer SET consumed = TRUE, consumed_at = $2 WHERE task_id = $1 AND NOT consumed`, taskID, consumedAt)
	return err
}

// DeleteOlderThan removes buffer rows past ttl regardless of consumed
// state, a safety net behind per-task cleanup (spec §4.11).
func (r *SSEEventBufferRepository) DeleteOlderThan(ctx context.Context, cutoff int64, limit int) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM sse_event_buffer WHERE id IN (
			SELECT id FROM sse_event_buffer WHERE created_at < $1 LIMIT $2
		)`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired sse buffer entries: %w", err)
	}
	return tag.RowsAffected(), nil
}
