// Package repository holds hand-written pgx/v5 repositories for every
// pkg/model entity. The teacher generates this layer from ent schemas
// (ent/schema/*.go); ent is dropped here (see DESIGN.md) so each
// repository is written directly against the SQL in
// pkg/database/migrations.
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

// SessionRepository persists model.Session rows.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository constructs a SessionRepository backed by pool.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create inserts a new session.
func (r *SessionRepository) Create(ctx context.Context, s *model.Session) error {
	meta, err := marshalCompressionMetadata(s.CompressionMetadata)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO sessions (id, user_id, name, agent_id, project_id, created_time, updated_time,
			gateway_type, external_context_id, is_compression_branch, compression_metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		s.ID, s.UserID, s.Name, s.AgentID, s.ProjectID, s.CreatedTime, s.UpdatedTime,
		s.GatewayType, s.ExternalContextID, s.IsCompressionBranch, meta)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID, excluding soft-deleted rows.
func (r *SessionRepository) Get(ctx context.Context, id string) (*model.Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, name, agent_id, project_id, created_time, updated_time,
			gateway_type, external_context_id, is_compression_branch, compression_metadata, deleted_at
		FROM sessions WHERE id = $1 AND deleted_at IS NULL`, id)
	return scanSession(row)
}

// GetByExternalContextID finds a session by its gateway-assigned external
// context ID (spec §4.5 — used to correlate repeat requests from the same
// external conversation).
func (r *SessionRepository) GetByExternalContextID(ctx context.Context, gatewayType, externalContextID string) (*model.Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, name, agent_id, project_id, created_time, updated_time,
			gateway_type, external_context_id, is_compression_branch, compression_metadata, deleted_at
		FROM sessions WHERE gateway_type = $1 AND external_context_id = $2 AND deleted_at IS NULL
		ORDER BY created_time DESC LIMIT 1`, gatewayType, externalContextID)
	return scanSession(row)
}

// ListByUser lists a user's sessions, most recent first.
func (r *SessionRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*model.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, name, agent_id, project_id, created_time, updated_time,
			gateway_type, external_context_id, is_compression_branch, compression_metadata, deleted_at
		FROM sessions WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY updated_time DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CountByUser returns the total number of a user's non-deleted sessions,
// for pagination envelopes (spec §6.1 `{data, meta:{totalCount,...}}`).
func (r *SessionRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM sessions WHERE user_id = $1 AND deleted_at IS NULL`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return count, nil
}

// SearchByName does a case-insensitive name-only search, paginated.
func (r *SessionRepository) SearchByName(ctx context.Context, userID, query string, limit, offset int) ([]*model.Session, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM sessions WHERE user_id = $1 AND deleted_at IS NULL AND name ILIKE '%' || $2 || '%'`,
		userID, query).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count session search: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, name, agent_id, project_id, created_time, updated_time,
			gateway_type, external_context_id, is_compression_branch, compression_metadata, deleted_at
		FROM sessions WHERE user_id = $1 AND deleted_at IS NULL AND name ILIKE '%' || $2 || '%'
		ORDER BY updated_time DESC LIMIT $3 OFFSET $4`, userID, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("search sessions: %w", err)
	}
	defer rows.Close()

	var out []*model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// UpdateName renames a session.
func (r *SessionRepository) UpdateName(ctx context.Context, id, name string, updatedTime int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE sessions SET name = $2, updated_time = $3 WHERE id = $1 AND deleted_at IS NULL`, id, name, updatedTime)
	if err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.NotFound, "session not found")
	}
	return nil
}

// MoveToProject reassigns a session's project (nil clears it).
func (r *SessionRepository) MoveToProject(ctx context.Context, id string, projectID *string, updatedTime int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE sessions SET project_id = $2, updated_time = $3 WHERE id = $1 AND deleted_at IS NULL`, id, projectID, updatedTime)
	if err != nil {
		return fmt.Errorf("move session to project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.NotFound, "session not found")
	}
	return nil
}

// Touch bumps updated_time, called on every new chat task in a session.
func (r *SessionRepository) Touch(ctx context.Context, id string, updatedTime int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE sessions SET updated_time = $2 WHERE id = $1 AND deleted_at IS NULL`, id, updatedTime)
	return err
}

// SoftDelete marks a session deleted as of deletedAt without removing it,
// consistent with the teacher's soft-delete cleanup pattern.
func (r *SessionRepository) SoftDelete(ctx context.Context, id string, deletedAt int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE sessions SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, deletedAt)
	return err
}

// DeleteOlderThan hard-deletes sessions soft-deleted before cutoff, in
// batches of at most limit rows (retention service, spec §4.11).
func (r *SessionRepository) DeleteOlderThan(ctx context.Context, cutoff int64, limit int) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM sessions WHERE id IN (
			SELECT id FROM sessions WHERE deleted_at IS NOT NULL AND deleted_at < $1 LIMIT $2
		)`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.Session, error) {
	var s model.Session
	var meta []byte
	if err := row.Scan(&s.ID, &s.UserID, &s.Name, &s.AgentID, &s.ProjectID, &s.CreatedTime, &s.UpdatedTime,
		&s.GatewayType, &s.ExternalContextID, &s.IsCompressionBranch, &meta, &s.DeletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.New(errs.NotFound, "session not found")
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	if len(meta) > 0 {
		var cm model.CompressionMetadata
		if err := json.Unmarshal(meta, &cm); err != nil {
			return nil, fmt.Errorf("unmarshal compression metadata: %w", err)
		}
		s.CompressionMetadata = &cm
	}
	return &s, nil
}

func marshalCompressionMetadata(cm *model.CompressionMetadata) ([]byte, error) {
	if cm == nil {
		return nil, nil
	}
	data, err := json.Marshal(cm)
	if err != nil {
		return nil, fmt.Errorf("marshal compression metadata: %w", err)
	}
	return data, nil
}
