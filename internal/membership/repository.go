package membership

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-authz/internal/platform/db"
)

// Table is the membership table name.
const Table = "project_membership"

// Store persists memberships keyed by (project, user).
type Store interface {
	// Upsert inserts m or overwrites role, permissions and created_by of the
	// existing row. CreatedAt is only written on insert.
	Upsert(ctx context.Context, m Membership) (Membership, error)
	Delete(ctx context.Context, projectID, userID string) error
	Find(ctx context.Context, projectID, userID string) (*Membership, error)
	ForUser(ctx context.Context, userID string) ([]Membership, error)
	ForProject(ctx context.Context, projectID string) ([]Membership, error)
	UserHasRole(ctx context.Context, projectID, userID, roleName string) (bool, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs a repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

const selectColumns = `project_id, user_id, role_name, permissions, created_at, created_by`

// Upsert writes the membership in a single statement.
func (r *Repository) Upsert(ctx context.Context, m Membership) (Membership, error) {
	payload, err := json.Marshal(m.Permissions)
	if err != nil {
		return Membership{}, err
	}
	row := r.db.QueryRow(ctx, `INSERT INTO project_membership (project_id, user_id, role_name, permissions, created_at, created_by)
VALUES ($1, $2, $3, $4::jsonb, $5, $6)
ON CONFLICT (project_id, user_id) DO UPDATE
SET role_name = EXCLUDED.role_name, permissions = EXCLUDED.permissions, created_by = EXCLUDED.created_by
RETURNING `+selectColumns, m.ProjectID, m.UserID, m.RoleName, string(payload), m.CreatedAt, m.CreatedBy)
	return scanMembership(row)
}

// Delete removes the membership if present.
func (r *Repository) Delete(ctx context.Context, projectID, userID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM project_membership WHERE project_id = $1 AND user_id = $2`, projectID, userID)
	return err
}

// Find returns nil when no membership exists.
func (r *Repository) Find(ctx context.Context, projectID, userID string) (*Membership, error) {
	row := r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM project_membership WHERE project_id = $1 AND user_id = $2`, projectID, userID)
	m, err := scanMembership(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// ForUser lists a user's memberships, newest first.
func (r *Repository) ForUser(ctx context.Context, userID string) ([]Membership, error) {
	return r.list(ctx, `SELECT `+selectColumns+` FROM project_membership WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

// ForProject lists a project's memberships, newest first.
func (r *Repository) ForProject(ctx context.Context, projectID string) ([]Membership, error) {
	return r.list(ctx, `SELECT `+selectColumns+` FROM project_membership WHERE project_id = $1 ORDER BY created_at DESC`, projectID)
}

// UserHasRole checks for a membership with exactly roleName.
func (r *Repository) UserHasRole(ctx context.Context, projectID, userID, roleName string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM project_membership WHERE project_id = $1 AND user_id = $2 AND role_name = $3)`, projectID, userID, roleName).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *Repository) list(ctx context.Context, query string, arg string) ([]Membership, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Membership{}
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanMembership(row pgx.Row) (Membership, error) {
	var (
		m     Membership
		perms []byte
	)
	if err := row.Scan(&m.ProjectID, &m.UserID, &m.RoleName, &perms, &m.CreatedAt, &m.CreatedBy); err != nil {
		return Membership{}, err
	}
	m.Permissions = DecodePermissions(perms)
	return m, nil
}
