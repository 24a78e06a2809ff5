// Package assignments manages user-role assignments and direct user permission
// grants, both scoped, time-bounded and carrying an allow/deny effect.
package assignments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-authz/authzd/internal/authz"
)

// RepositoryPort defines data access methods for assignments and grants.
type RepositoryPort interface {
	RoleExists(ctx context.Context, roleID int64) (bool, error)
	PermissionExists(ctx context.Context, permissionID int64) (bool, error)
	// InsertAssignment persists the assignment, failing with authz.ErrConflict
	// when an active assignment for the same (user, role, scope) already exists.
	InsertAssignment(ctx context.Context, a authz.UserRoleAssignment) (authz.UserRoleAssignment, error)
	DeleteAssignments(ctx context.Context, userID, roleID int64) (int64, error)
	InsertGrant(ctx context.Context, g authz.UserPermission) (authz.UserPermission, error)
	DeleteGrants(ctx context.Context, userID, permissionID int64) (int64, error)
	ListAssignments(ctx context.Context, userID int64) ([]authz.UserRoleAssignment, error)
	ListGrants(ctx context.Context, userID int64) ([]authz.UserPermission, error)
}

// Service handles assignment business logic.
type Service struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: time.Now}
}

// AssignRole links a user to a role. At most one active assignment may exist
// per (user, role, scope) tuple; a second one is a Conflict.
func (s *Service) AssignRole(ctx context.Context, input AssignRoleInput) (authz.UserRoleAssignment, error) {
	scope, effect, err := s.validateGrantFields(input.Scope, input.Effect, input.ExpiresAt)
	if err != nil {
		return authz.UserRoleAssignment{}, err
	}
	ok, err := s.repo.RoleExists(ctx, input.RoleID)
	if err != nil {
		return authz.UserRoleAssignment{}, err
	}
	if !ok {
		return authz.UserRoleAssignment{}, fmt.Errorf("%w: role %d", authz.ErrNotFound, input.RoleID)
	}
	return s.repo.InsertAssignment(ctx, authz.UserRoleAssignment{
		UserID:     input.UserID,
		RoleID:     input.RoleID,
		Scope:      scope,
		Effect:     effect,
		ExpiresAt:  input.ExpiresAt,
		AssignedBy: input.AssignedBy,
		Conditions: input.Conditions,
	})
}

// RevokeRole removes every assignment linking the user to the role.
func (s *Service) RevokeRole(ctx context.Context, userID, roleID int64) error {
	removed, err := s.repo.DeleteAssignments(ctx, userID, roleID)
	if err != nil {
		return err
	}
	if removed == 0 {
		return fmt.Errorf("%w: user %d has no assignment for role %d", authz.ErrNotFound, userID, roleID)
	}
	return nil
}

// GrantPermission grants a permission directly to a user.
func (s *Service) GrantPermission(ctx context.Context, input GrantPermissionInput) (authz.UserPermission, error) {
	scope, effect, err := s.validateGrantFields(input.Scope, input.Effect, input.ExpiresAt)
	if err != nil {
		return authz.UserPermission{}, err
	}
	ok, err := s.repo.PermissionExists(ctx, input.PermissionID)
	if err != nil {
		return authz.UserPermission{}, err
	}
	if !ok {
		return authz.UserPermission{}, fmt.Errorf("%w: permission %d", authz.ErrNotFound, input.PermissionID)
	}
	return s.repo.InsertGrant(ctx, authz.UserPermission{
		UserID:       input.UserID,
		PermissionID: input.PermissionID,
		Scope:        scope,
		Effect:       effect,
		ExpiresAt:    input.ExpiresAt,
		Reason:       strings.TrimSpace(input.Reason),
		AssignedBy:   input.GrantedBy,
	})
}

// RevokePermission removes every direct grant of the permission from the user.
func (s *Service) RevokePermission(ctx context.Context, userID, permissionID int64) error {
	removed, err := s.repo.DeleteGrants(ctx, userID, permissionID)
	if err != nil {
		return err
	}
	if removed == 0 {
		return fmt.Errorf("%w: user %d has no grant for permission %d", authz.ErrNotFound, userID, permissionID)
	}
	return nil
}

// ListAssignments returns all role assignments of the user, expired ones included.
func (s *Service) ListAssignments(ctx context.Context, userID int64) ([]authz.UserRoleAssignment, error) {
	return s.repo.ListAssignments(ctx, userID)
}

// ListGrants returns all direct permission grants of the user, expired ones included.
func (s *Service) ListGrants(ctx context.Context, userID int64) ([]authz.UserPermission, error) {
	return s.repo.ListGrants(ctx, userID)
}

func (s *Service) validateGrantFields(scope *string, effect authz.Effect, expiresAt *time.Time) (*string, authz.Effect, error) {
	if effect == "" {
		effect = authz.EffectAllow
	}
	if !effect.Valid() {
		return nil, "", fmt.Errorf("%w: effect %q", authz.ErrInvalidInput, effect)
	}
	if scope != nil {
		trimmed := strings.TrimSpace(*scope)
		if trimmed == "" {
			scope = nil
		} else if strings.ContainsAny(trimmed, " \t\n") {
			return nil, "", fmt.Errorf("%w: scope %q contains whitespace", authz.ErrInvalidInput, trimmed)
		} else {
			scope = &trimmed
		}
	}
	if expiresAt != nil && !expiresAt.After(s.now()) {
		return nil, "", fmt.Errorf("%w: expiry %s is in the past", authz.ErrInvalidInput, expiresAt.Format(time.RFC3339))
	}
	return scope, effect, nil
}
