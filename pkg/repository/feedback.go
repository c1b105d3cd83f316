package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeready-toolchain/meshgate/pkg/model"
)

// FeedbackRepository persists up/down task ratings.
type FeedbackRepository struct {
	pool *pgxpool.Pool
}

func NewFeedbackRepository(pool *pgxpool.Pool) *FeedbackRepository {
	return &FeedbackRepository{pool: pool}
}

func (r *FeedbackRepository) Create(ctx context.Context, f *model.Feedback) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO feedback (id, session_id, task_id, user_id, rating, comment, created_time)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		f.ID, f.SessionID, f.TaskID, f.UserID, f.Rating, f.Comment, f.CreatedTime)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

// DeleteOlderThan hard-deletes feedback rows older than cutoff, in
// batches of at most limit rows (DataRetentionService, spec §4.11).
func (r *FeedbackRepository) DeleteOlderThan(ctx context.Context, cutoff int64, limit int) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM feedback WHERE id IN (
			SELECT id FROM feedback WHERE created_time < $1 LIMIT $2
		)`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired feedback: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *FeedbackRepository) ListBySession(ctx context.Context, sessionID string) ([]*model.Feedback, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, session_id, task_id, user_id, rating, comment, created_time
		FROM feedback WHERE session_id = $1 ORDER BY created_time ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	defer rows.Close()

	var out []*model.Feedback
	for rows.Next() {
		var f model.Feedback
		if err := rows.Scan(&f.ID, &f.SessionID, &f.TaskID, &f.UserID, &f.Rating, &f.Comment, &f.CreatedTime); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}
