package engine

import (
	"context"

	"github.com/odyssey-authz/authzd/internal/authz"
)

// Store provides read access to the authorization stores. View runs fn against
// a single consistent snapshot so that a check cannot observe a half-applied
// mutation.
type Store interface {
	View(ctx context.Context, fn func(ctx context.Context, s Snapshot) error) error
}

// Snapshot is the read surface available inside a View callback.
type Snapshot interface {
	Assignments(ctx context.Context, userID int64) ([]authz.UserRoleAssignment, error)
	Role(ctx context.Context, roleID int64) (authz.Role, error)
	RolePermissions(ctx context.Context, roleID int64) ([]authz.Permission, error)
	DirectGrants(ctx context.Context, userID int64) ([]DirectGrant, error)
	ResourceAccess(ctx context.Context, userID int64, resourceType, resourceID string) (authz.ResourceAccess, bool, error)
	ResourceAccessList(ctx context.Context, userID int64) ([]authz.ResourceAccess, error)
}

// DirectGrant joins a user permission grant with its permission definition.
type DirectGrant struct {
	Grant      authz.UserPermission
	Permission authz.Permission
}
