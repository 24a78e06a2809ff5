package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-authz/authzd/internal/authz"
	"github.com/odyssey-authz/authzd/internal/platform/db"
)

// PGStore exposes the authorization tables to the engine through a read-only
// repeatable-read transaction per View.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// View runs fn against a single consistent snapshot.
func (s *PGStore) View(ctx context.Context, fn func(ctx context.Context, s Snapshot) error) error {
	return db.WithView(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgSnapshot{tx: tx})
	})
}

type pgSnapshot struct {
	tx pgx.Tx
}

func (s *pgSnapshot) Assignments(ctx context.Context, userID int64) ([]authz.UserRoleAssignment, error) {
	rows, err := s.tx.Query(ctx, `
		SELECT id, user_id, role_id, scope, effect, expires_at, assigned_by, created_at
		FROM user_role_assignments WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []authz.UserRoleAssignment
	for rows.Next() {
		var (
			a      authz.UserRoleAssignment
			effect string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.RoleID, &a.Scope, &effect, &a.ExpiresAt, &a.AssignedBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Effect = authz.Effect(effect)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *pgSnapshot) Role(ctx context.Context, roleID int64) (authz.Role, error) {
	var role authz.Role
	err := s.tx.QueryRow(ctx, `
		SELECT id, name, display_name, parent_id, is_system_role, is_active, priority
		FROM roles WHERE id = $1`, roleID).
		Scan(&role.ID, &role.Name, &role.DisplayName, &role.ParentID, &role.IsSystemRole, &role.IsActive, &role.Priority)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authz.Role{}, fmt.Errorf("%w: role %d", authz.ErrNotFound, roleID)
		}
		return authz.Role{}, err
	}
	return role, nil
}

func (s *pgSnapshot) RolePermissions(ctx context.Context, roleID int64) ([]authz.Permission, error) {
	rows, err := s.tx.Query(ctx, `
		SELECT p.id, p.name, p.resource, p.action, p.scope, p.category, p.is_active
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []authz.Permission
	for rows.Next() {
		var perm authz.Permission
		if err := rows.Scan(&perm.ID, &perm.Name, &perm.Resource, &perm.Action, &perm.Scope, &perm.Category, &perm.IsActive); err != nil {
			return nil, err
		}
		out = append(out, perm)
	}
	return out, rows.Err()
}

func (s *pgSnapshot) DirectGrants(ctx context.Context, userID int64) ([]DirectGrant, error) {
	rows, err := s.tx.Query(ctx, `
		SELECT up.id, up.user_id, up.permission_id, up.scope, up.effect, up.expires_at, up.reason, up.assigned_by, up.created_at,
		       p.id, p.name, p.resource, p.action, p.scope, p.category, p.is_active
		FROM user_permissions up
		JOIN permissions p ON p.id = up.permission_id
		WHERE up.user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DirectGrant
	for rows.Next() {
		var (
			dg     DirectGrant
			effect string
		)
		err := rows.Scan(&dg.Grant.ID, &dg.Grant.UserID, &dg.Grant.PermissionID, &dg.Grant.Scope, &effect,
			&dg.Grant.ExpiresAt, &dg.Grant.Reason, &dg.Grant.AssignedBy, &dg.Grant.CreatedAt,
			&dg.Permission.ID, &dg.Permission.Name, &dg.Permission.Resource, &dg.Permission.Action,
			&dg.Permission.Scope, &dg.Permission.Category, &dg.Permission.IsActive)
		if err != nil {
			return nil, err
		}
		dg.Grant.Effect = authz.Effect(effect)
		out = append(out, dg)
	}
	return out, rows.Err()
}

func (s *pgSnapshot) ResourceAccess(ctx context.Context, userID int64, resourceType, resourceID string) (authz.ResourceAccess, bool, error) {
	var (
		entry authz.ResourceAccess
		perms []byte
	)
	err := s.tx.QueryRow(ctx, `
		SELECT id, user_id, resource_type, resource_id, permissions, is_active, expires_at, granted_by, created_at
		FROM resource_access WHERE user_id = $1 AND resource_type = $2 AND resource_id = $3`,
		userID, resourceType, resourceID).
		Scan(&entry.ID, &entry.UserID, &entry.ResourceType, &entry.ResourceID,
			&perms, &entry.IsActive, &entry.ExpiresAt, &entry.GrantedBy, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authz.ResourceAccess{}, false, nil
		}
		return authz.ResourceAccess{}, false, err
	}
	if len(perms) > 0 {
		if err := json.Unmarshal(perms, &entry.Permissions); err != nil {
			return authz.ResourceAccess{}, false, fmt.Errorf("engine: decode access permissions: %w", err)
		}
	}
	return entry, true, nil
}

func (s *pgSnapshot) ResourceAccessList(ctx context.Context, userID int64) ([]authz.ResourceAccess, error) {
	rows, err := s.tx.Query(ctx, `
		SELECT id, user_id, resource_type, resource_id, permissions, is_active, expires_at, granted_by, created_at
		FROM resource_access WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []authz.ResourceAccess
	for rows.Next() {
		var (
			entry authz.ResourceAccess
			perms []byte
		)
		err := rows.Scan(&entry.ID, &entry.UserID, &entry.ResourceType, &entry.ResourceID,
			&perms, &entry.IsActive, &entry.ExpiresAt, &entry.GrantedBy, &entry.CreatedAt)
		if err != nil {
			return nil, err
		}
		if len(perms) > 0 {
			if err := json.Unmarshal(perms, &entry.Permissions); err != nil {
				return nil, fmt.Errorf("engine: decode access permissions: %w", err)
			}
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
