package engine

import (
	"context"
	"log/slog"

	"github.com/odyssey-authz/authzd/internal/authz"
)

// RoleGrant pairs an assignment with its role and the role's resolved
// permission set, inherited permissions included.
type RoleGrant struct {
	Role        authz.Role
	Assignment  authz.UserRoleAssignment
	Permissions []authz.Permission
}

// UserInfo exposes the raw materials a decision is computed from, for
// administrative UIs and audits.
type UserInfo struct {
	UserID         int64
	Roles          []RoleGrant
	DirectGrants   []DirectGrant
	ResourceAccess []authz.ResourceAccess
}

// UserRoleInfo collects the user's active assignments with resolved ancestor
// permission sets, direct grants and resource access entries. The same expiry
// filtering applies as in Check; no conflict resolution is performed.
func (e *Engine) UserRoleInfo(ctx context.Context, userID int64) (UserInfo, error) {
	now := e.now()
	info := UserInfo{UserID: userID}
	err := e.store.View(ctx, func(ctx context.Context, s Snapshot) error {
		assignments, err := s.Assignments(ctx, userID)
		if err != nil {
			return err
		}
		for _, assignment := range assignments {
			if !assignment.ActiveAt(now) {
				continue
			}
			role, err := s.Role(ctx, assignment.RoleID)
			if err != nil {
				return err
			}
			perms, err := e.resolvedPermissions(ctx, s, role)
			if err != nil {
				return err
			}
			info.Roles = append(info.Roles, RoleGrant{Role: role, Assignment: assignment, Permissions: perms})
		}

		grants, err := s.DirectGrants(ctx, userID)
		if err != nil {
			return err
		}
		for _, dg := range grants {
			if dg.Grant.ActiveAt(now) {
				info.DirectGrants = append(info.DirectGrants, dg)
			}
		}

		accesses, err := s.ResourceAccessList(ctx, userID)
		if err != nil {
			return err
		}
		for _, entry := range accesses {
			if entry.ActiveAt(now) {
				info.ResourceAccess = append(info.ResourceAccess, entry)
			}
		}
		return nil
	})
	if err != nil {
		return UserInfo{}, err
	}
	return info, nil
}

// resolvedPermissions unions the role's bound permissions with those of all
// its ancestors, deduplicated by permission id.
func (e *Engine) resolvedPermissions(ctx context.Context, s Snapshot, role authz.Role) ([]authz.Permission, error) {
	var out []authz.Permission
	seenPerm := make(map[int64]bool)
	seenRole := make(map[int64]bool)
	cursor := role
	for depth := 0; depth < authz.MaxHierarchyDepth; depth++ {
		if seenRole[cursor.ID] {
			e.logger.Warn("role hierarchy cycle during walk", slog.Int64("role_id", cursor.ID))
			break
		}
		seenRole[cursor.ID] = true
		if cursor.IsActive {
			perms, err := s.RolePermissions(ctx, cursor.ID)
			if err != nil {
				return nil, err
			}
			for _, perm := range perms {
				if perm.IsActive && !seenPerm[perm.ID] {
					seenPerm[perm.ID] = true
					out = append(out, perm)
				}
			}
		}
		if cursor.ParentID == nil {
			break
		}
		parent, err := s.Role(ctx, *cursor.ParentID)
		if err != nil {
			return nil, err
		}
		cursor = parent
	}
	return out, nil
}
