package roles

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-authz/authzd/internal/authz"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	Insert(ctx context.Context, role authz.Role) (authz.Role, error)
	Get(ctx context.Context, id int64) (authz.Role, error)
	List(ctx context.Context, includeInactive bool) ([]authz.Role, error)
	Delete(ctx context.Context, id int64) error
	CountChildren(ctx context.Context, id int64) (int64, error)
	CountActiveAssignments(ctx context.Context, roleID int64, now time.Time) (int64, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the operations that must run inside the reparent transaction.
type TxRepository interface {
	LockHierarchy(ctx context.Context) error
	Get(ctx context.Context, id int64) (authz.Role, error)
	Update(ctx context.Context, role authz.Role) (authz.Role, error)
}

// Service handles role business logic: CRUD plus hierarchy integrity.
type Service struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Create inserts a new role after validating its name, priority and parent.
func (s *Service) Create(ctx context.Context, input CreateInput) (authz.Role, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return authz.Role{}, fmt.Errorf("%w: role name required", authz.ErrInvalidInput)
	}
	if input.Priority < 0 {
		return authz.Role{}, fmt.Errorf("%w: priority must not be negative", authz.ErrInvalidInput)
	}
	if input.ParentID != nil {
		if _, err := s.repo.Get(ctx, *input.ParentID); err != nil {
			if errors.Is(err, authz.ErrNotFound) {
				return authz.Role{}, fmt.Errorf("%w: parent role %d", authz.ErrNotFound, *input.ParentID)
			}
			return authz.Role{}, err
		}
	}
	role := authz.Role{
		Name:         name,
		DisplayName:  strings.TrimSpace(input.DisplayName),
		Description:  strings.TrimSpace(input.Description),
		ParentID:     input.ParentID,
		IsSystemRole: input.IsSystem,
		IsActive:     true,
		Priority:     input.Priority,
		Metadata:     input.Metadata,
	}
	return s.repo.Insert(ctx, role)
}

// Update applies a partial patch. System roles are immutable. A parent change
// runs inside a transaction holding the hierarchy lock so that two concurrent
// reparents cannot assemble a cycle between them.
func (s *Service) Update(ctx context.Context, id int64, patch UpdateInput) (authz.Role, error) {
	if patch.Priority != nil && *patch.Priority < 0 {
		return authz.Role{}, fmt.Errorf("%w: priority must not be negative", authz.ErrInvalidInput)
	}
	var updated authz.Role
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockHierarchy(ctx); err != nil {
			return err
		}
		role, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if role.IsSystemRole {
			return fmt.Errorf("%w: system role %q is immutable", authz.ErrForbidden, role.Name)
		}
		if patch.DisplayName != nil {
			role.DisplayName = strings.TrimSpace(*patch.DisplayName)
		}
		if patch.Description != nil {
			role.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.IsActive != nil {
			role.IsActive = *patch.IsActive
		}
		if patch.Priority != nil {
			role.Priority = *patch.Priority
		}
		if patch.Metadata != nil {
			role.Metadata = patch.Metadata
		}
		if patch.SetParent {
			if err := s.checkNoCycle(ctx, tx, id, patch.ParentID); err != nil {
				return err
			}
			role.ParentID = patch.ParentID
		}
		updated, err = tx.Update(ctx, role)
		return err
	})
	if err != nil {
		return authz.Role{}, err
	}
	return updated, nil
}

// checkNoCycle walks the new parent's ancestor chain and rejects the reparent
// when the role's own id appears in it. The walk is bounded so a corrupt chain
// cannot spin forever.
func (s *Service) checkNoCycle(ctx context.Context, tx TxRepository, roleID int64, newParent *int64) error {
	if newParent == nil {
		return nil
	}
	cursor := *newParent
	for depth := 0; depth < authz.MaxHierarchyDepth; depth++ {
		if cursor == roleID {
			return fmt.Errorf("%w: reparenting role %d under %d creates a cycle", authz.ErrForbidden, roleID, *newParent)
		}
		ancestor, err := tx.Get(ctx, cursor)
		if err != nil {
			if errors.Is(err, authz.ErrNotFound) {
				return fmt.Errorf("%w: parent role %d", authz.ErrNotFound, cursor)
			}
			return err
		}
		if ancestor.ParentID == nil {
			return nil
		}
		cursor = *ancestor.ParentID
	}
	return fmt.Errorf("%w: ancestor chain deeper than %d", authz.ErrForbidden, authz.MaxHierarchyDepth)
}

// Delete removes a role unless it is system-owned, still has children, or is
// referenced by an active assignment.
func (s *Service) Delete(ctx context.Context, id int64) error {
	role, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if role.IsSystemRole {
		return fmt.Errorf("%w: system role %q cannot be deleted", authz.ErrForbidden, role.Name)
	}
	children, err := s.repo.CountChildren(ctx, id)
	if err != nil {
		return err
	}
	if children > 0 {
		return fmt.Errorf("%w: role %q has %d child roles", authz.ErrForbidden, role.Name, children)
	}
	assignments, err := s.repo.CountActiveAssignments(ctx, id, s.now())
	if err != nil {
		return err
	}
	if assignments > 0 {
		return fmt.Errorf("%w: role %q has %d active assignments", authz.ErrForbidden, role.Name, assignments)
	}
	return s.repo.Delete(ctx, id)
}

// Get fetches a role by id.
func (s *Service) Get(ctx context.Context, id int64) (authz.Role, error) {
	return s.repo.Get(ctx, id)
}

// List returns roles, optionally including inactive ones.
func (s *Service) List(ctx context.Context, includeInactive bool) ([]authz.Role, error) {
	return s.repo.List(ctx, includeInactive)
}

// Hierarchy returns all roles as a forest. Children at each level are ordered
// by priority descending, then name ascending. Roles whose parent no longer
// resolves are surfaced as roots rather than silently dropped.
func (s *Service) Hierarchy(ctx context.Context) ([]*Node, error) {
	all, err := s.repo.List(ctx, true)
	if err != nil {
		return nil, err
	}
	nodes := make(map[int64]*Node, len(all))
	for _, role := range all {
		nodes[role.ID] = &Node{Role: role}
	}
	var roots []*Node
	for _, node := range nodes {
		if node.ParentID != nil {
			if parent, ok := nodes[*node.ParentID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	sortNodes(roots)
	for _, node := range nodes {
		sortNodes(node.Children)
	}
	return roots, nil
}

func sortNodes(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Priority != nodes[j].Priority {
			return nodes[i].Priority > nodes[j].Priority
		}
		return nodes[i].Name < nodes[j].Name
	})
}
