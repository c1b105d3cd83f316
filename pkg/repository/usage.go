package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeready-toolchain/meshgate/pkg/model"
)

// MonthlyUsageRepository aggregates token usage per (user, month) for
// billing/quota display (spec §3).
type MonthlyUsageRepository struct {
	pool *pgxpool.Pool
}

func NewMonthlyUsageRepository(pool *pgxpool.Pool) *MonthlyUsageRepository {
	return &MonthlyUsageRepository{pool: pool}
}

// Increment upserts the (userID, month) row, adding the given deltas. The
// per-model/per-source maps merge by summing the incoming key on top of
// whatever is already stored in JSONB.
func (r *MonthlyUsageRepository) Increment(ctx context.Context, userID, month string, txType model.TransactionType, amount int64, modelName, source string, now int64) error {
	var promptDelta, completionDelta, cachedDelta int64
	switch txType {
	case model.TransactionPrompt:
		promptDelta = amount
	case model.TransactionCompletion:
		completionDelta = amount
	case model.TransactionCached:
		cachedDelta = amount
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO monthly_usage (user_id, month, total_usage, prompt_usage, completion_usage, cached_usage,
			usage_by_model, usage_by_source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6,
			jsonb_build_object($7::text, $3::bigint), jsonb_build_object($8::text, $3::bigint), $9, $9)
		ON CONFLICT (user_id, month) DO UPDATE SET
			total_usage = monthly_usage.total_usage + EXCLUDED.total_usage,
			prompt_usage = monthly_usage.prompt_usage + EXCLUDED.prompt_usage,
			completion_usage = monthly_usage.completion_usage + EXCLUDED.completion_usage,
			cached_usage = monthly_usage.cached_usage + EXCLUDED.cached_usage,
			usage_by_model = jsonb_set(monthly_usage.usage_by_model, array[$7::text],
				to_jsonb(COALESCE((monthly_usage.usage_by_model->>$7::text)::bigint, 0) + $3::bigint)),
			usage_by_source = jsonb_set(monthly_usage.usage_by_source, array[$8::text],
				to_jsonb(COALESCE((monthly_usage.usage_by_source->>$8::text)::bigint, 0) + $3::bigint)),
			updated_at = $9`,
		userID, month, amount, promptDelta, completionDelta, cachedDelta, modelName, source, now)
	if err != nil {
		return fmt.Errorf("increment monthly usage: %w", err)
	}
	return nil
}

func (r *MonthlyUsageRepository) Get(ctx context.Context, userID, month string) (*model.MonthlyUsage, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT user_id, month, total_usage, prompt_usage, completion_usage, cached_usage,
			usage_by_model, usage_by_source, created_at, updated_at
		FROM monthly_usage WHERE user_id = $1 AND month = $2`, userID, month)

	var u model.MonthlyUsage
	var byModel, bySource []byte
	if err := row.Scan(&u.UserID, &u.Month, &u.TotalUsage, &u.PromptUsage, &u.CompletionUsage, &u.CachedUsage,
		&byModel, &bySource, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scan monthly usage: %w", err)
	}
	if err := json.Unmarshal(byModel, &u.UsageByModel); err != nil {
		return nil, fmt.Errorf("unmarshal usage by model: %w", err)
	}
	if err := json.Unmarshal(bySource, &u.UsageBySource); err != nil {
		return nil, fmt.Errorf("unmarshal usage by source: %w", err)
	}
	return &u, nil
}

// TokenTransactionRepository is the append-only per-call audit log backing
// MonthlyUsageRepository's aggregates.
type TokenTransactionRepository struct {
	pool *pgxpool.Pool
}

func NewTokenTransactionRepository(pool *pgxpool.Pool) *TokenTransactionRepository {
	return &TokenTransactionRepository{pool: pool}
}

func (r *TokenTransactionRepository) Create(ctx context.Context, t *model.TokenTransaction) error {
	var ctxJSON []byte
	if t.Context != nil {
		var err error
		if ctxJSON, err = json.Marshal(t.Context); err != nil {
			return fmt.Errorf("marshal token transaction context: %w", err)
		}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO token_transactions (id, user_id, task_id, transaction_type, model, raw_tokens, token_cost,
			rate, source, tool_name, context, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		t.ID, t.UserID, t.TaskID, t.TransactionType, t.Model, t.RawTokens, t.TokenCost,
		t.Rate, t.Source, t.ToolName, ctxJSON, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert token transaction: %w", err)
	}
	return nil
}

func (r *TokenTransactionRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*model.TokenTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, task_id, transaction_type, model, raw_tokens, token_cost, rate, source, tool_name, context, created_at
		FROM token_transactions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list token transactions: %w", err)
	}
	defer rows.Close()

	var out []*model.TokenTransaction
	for rows.Next() {
		var t model.TokenTransaction
		var ctxJSON []byte
		if err := rows.Scan(&t.ID, &t.UserID, &t.TaskID, &t.TransactionType, &t.Model, &t.RawTokens, &t.TokenCost,
			&t.Rate, &t.Source, &t.ToolName, &ctxJSON, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan token transaction: %w", err)
		}
		if len(ctxJSON) > 0 {
			if err := json.Unmarshal(ctxJSON, &t.Context); err != nil {
				return nil, fmt.Errorf("unmarshal token transaction context: %w", err)
			}
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (r *TokenTransactionRepository) ListByTask(ctx context.Context, taskID string) ([]*model.TokenTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, task_id, transaction_type, model, raw_tokens, token_cost, rate, source, tool_name, context, created_at
		FROM token_transactions WHERE task_id = $1 ORDER BY created_at ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list token transactions by task: %w", err)
	}
	defer rows.Close()

	var out []*model.TokenTransaction
	for rows.Next() {
		var t model.TokenTransaction
		var ctxJSON []byte
		if err := rows.Scan(&t.ID, &t.UserID, &t.TaskID, &t.TransactionType, &t.Model, &t.RawTokens, &t.TokenCost,
			&t.Rate, &t.Source, &t.ToolName, &ctxJSON, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan token transaction: %w", err)
		}
		if len(ctxJSON) > 0 {
			if err := json.Unmarshal(ctxJSON, &t.Context); err != nil {
				return nil, fmt.Errorf("unmarshal token transaction context: %w", err)
			}
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}
