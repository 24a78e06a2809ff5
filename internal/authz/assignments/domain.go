package assignments

import (
	"time"

	"github.com/odyssey-authz/authzd/internal/authz"
)

// AssignRoleInput carries the fields accepted when assigning a role to a user.
type AssignRoleInput struct {
	UserID     int64
	RoleID     int64
	Scope      *string
	Effect     authz.Effect
	ExpiresAt  *time.Time
	Conditions map[string]any
	AssignedBy int64
}

// GrantPermissionInput carries the fields accepted when granting a permission
// directly to a user.
type GrantPermissionInput struct {
	UserID       int64
	PermissionID int64
	Scope        *string
	Effect       authz.Effect
	ExpiresAt    *time.Time
	Reason       string
	GrantedBy    int64
}
