// Package bindings attaches permissions to roles and detaches them again.
package bindings

import (
	"context"
	"fmt"

	"github.com/odyssey-authz/authzd/internal/authz"
)

// RepositoryPort defines data access methods for role-permission bindings.
type RepositoryPort interface {
	RoleExists(ctx context.Context, roleID int64) (bool, error)
	// ExistingPermissionIDs reports which of the given permission ids exist.
	ExistingPermissionIDs(ctx context.Context, ids []int64) (map[int64]bool, error)
	// InsertBindings writes all bindings in one transaction; duplicates are no-ops.
	InsertBindings(ctx context.Context, roleID int64, permissionIDs []int64, grantedBy int64) error
	DeleteBindings(ctx context.Context, roleID int64, permissionIDs []int64) error
	ListRolePermissions(ctx context.Context, roleID int64) ([]authz.Permission, error)
}

// Service validates and applies binding batches.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Bind attaches the permissions to the role. The whole batch is validated up
// front; if any permission id is missing, nothing is bound. Re-binding an
// already bound permission is a no-op, not an error.
func (s *Service) Bind(ctx context.Context, roleID int64, permissionIDs []int64, grantedBy int64) error {
	if len(permissionIDs) == 0 {
		return fmt.Errorf("%w: no permission ids supplied", authz.ErrInvalidInput)
	}
	if err := s.requireRole(ctx, roleID); err != nil {
		return err
	}
	existing, err := s.repo.ExistingPermissionIDs(ctx, permissionIDs)
	if err != nil {
		return err
	}
	for _, id := range permissionIDs {
		if !existing[id] {
			return fmt.Errorf("%w: permission %d", authz.ErrNotFound, id)
		}
	}
	return s.repo.InsertBindings(ctx, roleID, dedupe(permissionIDs), grantedBy)
}

// Unbind detaches the permissions from the role. Unknown bindings are ignored.
func (s *Service) Unbind(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if len(permissionIDs) == 0 {
		return fmt.Errorf("%w: no permission ids supplied", authz.ErrInvalidInput)
	}
	if err := s.requireRole(ctx, roleID); err != nil {
		return err
	}
	return s.repo.DeleteBindings(ctx, roleID, dedupe(permissionIDs))
}

// ListForRole returns the permissions currently bound to the role.
func (s *Service) ListForRole(ctx context.Context, roleID int64) ([]authz.Permission, error) {
	if err := s.requireRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.repo.ListRolePermissions(ctx, roleID)
}

func (s *Service) requireRole(ctx context.Context, roleID int64) error {
	ok, err := s.repo.RoleExists(ctx, roleID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: role %d", authz.ErrNotFound, roleID)
	}
	return nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
