package bindings

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-authz/authzd/internal/authz"
)

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

// ExistingPermissionIDs reports which of the given permission ids exist.
func (r *Repository) ExistingPermissionIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM permissions WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	found := make(map[int64]bool, len(ids))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		found[id] = true
	}
	return found, rows.Err()
}

// InsertBindings writes all bindings in one transaction; duplicates are no-ops.
func (r *Repository) InsertBindings(ctx context.Context, roleID int64, permissionIDs []int64, grantedBy int64) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	for _, permID := range permissionIDs {
		_, err := tx.Exec(ctx, `
			INSERT INTO role_permissions (role_id, permission_id, granted_by)
			VALUES ($1, $2, $3)
			ON CONFLICT (role_id, permission_id) DO NOTHING`,
			roleID, permID, grantedBy)
		if err != nil {
			return fmt.Errorf("bindings: insert role %d perm %d: %w", roleID, permID, err)
		}
	}
	return tx.Commit(ctx)
}

// DeleteBindings removes the given bindings; missing rows are ignored.
func (r *Repository) DeleteBindings(ctx context.Context, roleID int64, permissionIDs []int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = ANY($2)`,
		roleID, permissionIDs)
	return err
}

// ListRolePermissions returns the permissions bound to the role, ordered by name.
func (r *Repository) ListRolePermissions(ctx context.Context, roleID int64) ([]authz.Permission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.name, p.resource, p.action, p.scope, p.category, p.is_system_perm, p.conditions, p.is_active, p.created_at, p.updated_at
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1
		ORDER BY p.name ASC`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []authz.Permission
	for rows.Next() {
		var (
			perm authz.Permission
			cond []byte
		)
		err := rows.Scan(&perm.ID, &perm.Name, &perm.Resource, &perm.Action, &perm.Scope,
			&perm.Category, &perm.IsSystemPerm, &cond, &perm.IsActive, &perm.CreatedAt, &perm.UpdatedAt)
		if err != nil {
			return nil, err
		}
		if len(cond) > 0 {
			if err := json.Unmarshal(cond, &perm.Conditions); err != nil {
				return nil, fmt.Errorf("bindings: decode conditions: %w", err)
			}
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}
