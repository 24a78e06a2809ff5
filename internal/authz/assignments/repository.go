package assignments

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-authz/authzd/internal/authz"
)

// assignLockID keys the per-user advisory lock serializing assignment inserts,
// so the duplicate-active check and the insert are race-free.
const assignLockID = 815002

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RoleExists reports whether the role id resolves.
func (r *Repository) RoleExists(ctx context.Context, roleID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1)`, roleID).Scan(&exists)
	return exists, err
}

// PermissionExists reports whether the permission id resolves.
func (r *Repository) PermissionExists(ctx context.Context, permissionID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM permissions WHERE id = $1)`, permissionID).Scan(&exists)
	return exists, err
}

// InsertAssignment persists the assignment after verifying no active assignment
// exists for the same (user, role, scope) tuple.
func (r *Repository) InsertAssignment(ctx context.Context, a authz.UserRoleAssignment) (authz.UserRoleAssignment, error) {
	cond, err := json.Marshal(a.Conditions)
	if err != nil {
		return authz.UserRoleAssignment{}, fmt.Errorf("assignments: encode conditions: %w", err)
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return authz.UserRoleAssignment{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1, hashint8($2))`, assignLockID, a.UserID); err != nil {
		return authz.UserRoleAssignment{}, err
	}
	var duplicate bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM user_role_assignments
			WHERE user_id = $1 AND role_id = $2 AND scope IS NOT DISTINCT FROM $3
			  AND (expires_at IS NULL OR expires_at > NOW())
		)`, a.UserID, a.RoleID, a.Scope).Scan(&duplicate)
	if err != nil {
		return authz.UserRoleAssignment{}, err
	}
	if duplicate {
		return authz.UserRoleAssignment{}, fmt.Errorf("%w: user %d already holds role %d for this scope", authz.ErrConflict, a.UserID, a.RoleID)
	}
	row := tx.QueryRow(ctx, `
		INSERT INTO user_role_assignments (user_id, role_id, scope, effect, expires_at, assigned_by, conditions)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		a.UserID, a.RoleID, a.Scope, string(a.Effect), a.ExpiresAt, a.AssignedBy, cond)
	if err := row.Scan(&a.ID, &a.CreatedAt); err != nil {
		return authz.UserRoleAssignment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return authz.UserRoleAssignment{}, err
	}
	return a, nil
}

// DeleteAssignments removes all assignments for the (user, role) pair.
func (r *Repository) DeleteAssignments(ctx context.Context, userID, roleID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM user_role_assignments WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// InsertGrant persists a direct user permission grant.
func (r *Repository) InsertGrant(ctx context.Context, g authz.UserPermission) (authz.UserPermission, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO user_permissions (user_id, permission_id, scope, effect, expires_at, reason, assigned_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		g.UserID, g.PermissionID, g.Scope, string(g.Effect), g.ExpiresAt, g.Reason, g.AssignedBy)
	if err := row.Scan(&g.ID, &g.CreatedAt); err != nil {
		return authz.UserPermission{}, err
	}
	return g, nil
}

// DeleteGrants removes all direct grants of the permission from the user.
func (r *Repository) DeleteGrants(ctx context.Context, userID, permissionID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM user_permissions WHERE user_id = $1 AND permission_id = $2`, userID, permissionID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListAssignments returns all role assignments of the user.
func (r *Repository) ListAssignments(ctx context.Context, userID int64) ([]authz.UserRoleAssignment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, role_id, scope, effect, expires_at, assigned_by, conditions, created_at
		FROM user_role_assignments WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []authz.UserRoleAssignment
	for rows.Next() {
		var (
			a      authz.UserRoleAssignment
			effect string
			cond   []byte
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.RoleID, &a.Scope, &effect, &a.ExpiresAt, &a.AssignedBy, &cond, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Effect = authz.Effect(effect)
		if len(cond) > 0 {
			if err := json.Unmarshal(cond, &a.Conditions); err != nil {
				return nil, fmt.Errorf("assignments: decode conditions: %w", err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListGrants returns all direct permission grants of the user.
func (r *Repository) ListGrants(ctx context.Context, userID int64) ([]authz.UserPermission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, permission_id, scope, effect, expires_at, reason, assigned_by, created_at
		FROM user_permissions WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []authz.UserPermission
	for rows.Next() {
		var (
			g      authz.UserPermission
			effect string
		)
		if err := rows.Scan(&g.ID, &g.UserID, &g.PermissionID, &g.Scope, &effect, &g.ExpiresAt, &g.Reason, &g.AssignedBy, &g.CreatedAt); err != nil {
			return nil, err
		}
		g.Effect = authz.Effect(effect)
		out = append(out, g)
	}
	return out, rows.Err()
}
