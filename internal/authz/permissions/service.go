package permissions

import (
	"context"
	"fmt"
	"strings"

	"github.com/odyssey-authz/authzd/internal/authz"
)

// RepositoryPort defines data access methods for permissions.
type RepositoryPort interface {
	Insert(ctx context.Context, perm authz.Permission) (authz.Permission, error)
	Get(ctx context.Context, id int64) (authz.Permission, error)
	Update(ctx context.Context, perm authz.Permission) (authz.Permission, error)
	List(ctx context.Context, filters ListFilters) ([]authz.Permission, error)
	// DeleteCascade removes the permission together with any role bindings and
	// direct user grants referencing it, atomically.
	DeleteCascade(ctx context.Context, id int64) error
}

// Service handles permission catalogue business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Create inserts a new permission definition.
func (s *Service) Create(ctx context.Context, input CreateInput) (authz.Permission, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return authz.Permission{}, fmt.Errorf("%w: permission name required", authz.ErrInvalidInput)
	}
	resource := strings.TrimSpace(input.Resource)
	action := strings.TrimSpace(input.Action)
	if resource == "" || action == "" {
		return authz.Permission{}, fmt.Errorf("%w: resource and action required", authz.ErrInvalidInput)
	}
	perm := authz.Permission{
		Name:         name,
		Resource:     resource,
		Action:       action,
		Scope:        input.Scope,
		Category:     strings.TrimSpace(input.Category),
		IsSystemPerm: input.IsSystem,
		Conditions:   input.Conditions,
		IsActive:     true,
	}
	return s.repo.Insert(ctx, perm)
}

// Update applies a partial patch. System permissions are immutable.
func (s *Service) Update(ctx context.Context, id int64, patch UpdateInput) (authz.Permission, error) {
	perm, err := s.repo.Get(ctx, id)
	if err != nil {
		return authz.Permission{}, err
	}
	if perm.IsSystemPerm {
		return authz.Permission{}, fmt.Errorf("%w: system permission %q is immutable", authz.ErrForbidden, perm.Name)
	}
	if patch.SetScope {
		perm.Scope = patch.Scope
	}
	if patch.Category != nil {
		perm.Category = strings.TrimSpace(*patch.Category)
	}
	if patch.IsActive != nil {
		perm.IsActive = *patch.IsActive
	}
	if patch.Conditions != nil {
		perm.Conditions = patch.Conditions
	}
	return s.repo.Update(ctx, perm)
}

// Delete removes a permission and cascades over its bindings. Permissions are
// not referentially blocking the way roles are; dangling RolePermission and
// UserPermission rows go with it in the same transaction.
func (s *Service) Delete(ctx context.Context, id int64) error {
	perm, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if perm.IsSystemPerm {
		return fmt.Errorf("%w: system permission %q cannot be deleted", authz.ErrForbidden, perm.Name)
	}
	return s.repo.DeleteCascade(ctx, id)
}

// Get fetches a permission by id.
func (s *Service) Get(ctx context.Context, id int64) (authz.Permission, error) {
	return s.repo.Get(ctx, id)
}

// List returns permissions matching the filters.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]authz.Permission, error) {
	return s.repo.List(ctx, filters)
}
