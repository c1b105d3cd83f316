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

// ChatTaskRepository persists model.ChatTask rows. messageBubbles and
// taskMetadata are stored as opaque text (spec §3, §9) — never parsed here.
type ChatTaskRepository struct {
	pool *pgxpool.Pool
}

func NewChatTaskRepository(pool *pgxpool.Pool) *ChatTaskRepository {
	return &ChatTaskRepository{pool: pool}
}

func (r *ChatTaskRepository) Create(ctx context.Context, t *model.ChatTask) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO chat_tasks (id, session_id, user_id, user_message, message_bubbles, task_metadata, created_time, updated_time)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		t.ID, t.SessionID, t.UserID, t.UserMessage, t.MessageBubbles, t.TaskMetadata, t.CreatedTime, t.UpdatedTime)
	if err != nil {
		return fmt.Errorf("insert chat task: %w", err)
	}
	return nil
}

// Upsert inserts a ChatTask, or — if taskId already exists — updates its
// bubbles/metadata in place. Backs SessionService.saveTask's idempotent
// "second identical POST does not duplicate rows" guarantee (spec §6.1).
func (r *ChatTaskRepository) Upsert(ctx context.Context, t *model.ChatTask) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO chat_tasks (id, session_id, user_id, user_message, message_bubbles, task_metadata, created_time, updated_time)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			user_message = EXCLUDED.user_message,
			message_bubbles = EXCLUDED.message_bubbles,
			task_metadata = EXCLUDED.task_metadata,
			updated_time = EXCLUDED.updated_time`,
		t.ID, t.SessionID, t.UserID, t.UserMessage, t.MessageBubbles, t.TaskMetadata, t.CreatedTime, t.UpdatedTime)
	if err != nil {
		return fmt.Errorf("upsert chat task: %w", err)
	}
	return nil
}

// AppendBubbles replaces a task's rendered message_bubbles, used as new
// streaming chunks arrive and the frontend's bubble list is recomputed.
func (r *ChatTaskRepository) AppendBubbles(ctx context.Context, id, messageBubbles string, updatedTime int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE chat_tasks SET message_bubbles = $2, updated_time = $3 WHERE id = $1`,
		id, messageBubbles, updatedTime)
	if err != nil {
		return fmt.Errorf("update chat task bubbles: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.NotFound, "chat task not found")
	}
	return nil
}

func (r *ChatTaskRepository) Get(ctx context.Context, id string) (*model.ChatTask, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, session_id, user_id, user_message, message_bubbles, task_metadata, created_time, updated_time
		FROM chat_tasks WHERE id = $1`, id)
	return scanChatTask(row)
}

func (r *ChatTaskRepository) ListBySession(ctx context.Context, sessionID string) ([]*model.ChatTask, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, session_id, user_id, user_message, message_bubbles, task_metadata, created_time, updated_time
		FROM chat_tasks WHERE session_id = $1 ORDER BY created_time ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list chat tasks: %w", err)
	}
	defer rows.Close()

	var out []*model.ChatTask
	for rows.Next() {
		t, err := scanChatTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanChatTask(row rowScanner) (*model.ChatTask, error) {
	var t model.ChatTask
	if err := row.Scan(&t.ID, &t.SessionID, &t.UserID, &t.UserMessage, &t.MessageBubbles, &t.TaskMetadata, &t.CreatedTime, &t.UpdatedTime); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.New(errs.NotFound, "chat task not found")
		}
		return nil, fmt.Errorf("scan chat task: %w", err)
	}
	return &t, nil
}
