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

// ProjectRepository persists projects and their sharing membership rows
// ([NEW] ProjectUser per SPEC_FULL.md §3.1).
type ProjectRepository struct {
	pool *pgxpool.Pool
}

func NewProjectRepository(pool *pgxpool.Pool) *ProjectRepository {
	return &ProjectRepository{pool: pool}
}

func (r *ProjectRepository) Create(ctx context.Context, p *model.Project) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO projects (id, name, user_id, description, system_prompt, default_agent_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.Name, p.UserID, p.Description, p.SystemPrompt, p.DefaultAgentID, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (r *ProjectRepository) Get(ctx context.Context, id string) (*model.Project, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, user_id, description, system_prompt, default_agent_id, created_at, updated_at, deleted_at
		FROM projects WHERE id = $1 AND deleted_at IS NULL`, id)
	var p model.Project
	if err := row.Scan(&p.ID, &p.Name, &p.UserID, &p.Description, &p.SystemPrompt, &p.DefaultAgentID, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.New(errs.NotFound, "project not found")
		}
		return nil, fmt.Errorf("scan project: %w", err)
	}
	return &p, nil
}

// ListAccessibleByUser returns projects the user owns plus projects shared
// with them via project_users.
func (r *ProjectRepository) ListAccessibleByUser(ctx context.Context, userID string) ([]*model.Project, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.name, p.user_id, p.description, p.system_prompt, p.default_agent_id, p.created_at, p.updated_at, p.deleted_at
		FROM projects p
		LEFT JOIN project_users pu ON pu.project_id = p.id AND pu.user_id = $1
		WHERE p.deleted_at IS NULL AND (p.user_id = $1 OR pu.user_id IS NOT NULL)
		ORDER BY p.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list accessible projects: %w", err)
	}
	defer rows.Close()

	var out []*model.Project
	for rows.Next() {
		var p model.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.UserID, &p.Description, &p.SystemPrompt, &p.DefaultAgentID, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// ShareWith grants role to userID on projectID ([NEW]).
func (r *ProjectRepository) ShareWith(ctx context.Context, pu *model.ProjectUser) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO project_users (project_id, user_id, role, added_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (project_id, user_id) DO UPDATE SET role = EXCLUDED.role`,
		pu.ProjectID, pu.UserID, pu.Role, pu.AddedAt)
	if err != nil {
		return fmt.Errorf("share project: %w", err)
	}
	return nil
}

// RoleOf returns the caller's role on a project, or an empty role string
// (with no error) if they have no membership row and are not the owner.
func (r *ProjectRepository) RoleOf(ctx context.Context, projectID, userID string) (model.ProjectRole, error) {
	p, err := r.Get(ctx, projectID)
	if err != nil {
		return "", err
	}
	if p.UserID == userID {
		return model.ProjectRoleOwner, nil
	}
	var role model.ProjectRole
	err = r.pool.QueryRow(ctx, `SELECT role FROM project_users WHERE project_id = $1 AND user_id = $2`, projectID, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query project role: %w", err)
	}
	return role, nil
}
