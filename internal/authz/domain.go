// Package authz holds the shared domain model for the authorization subsystem:
// roles with a single-parent hierarchy, permission definitions, role-permission
// bindings, user assignments and grants, and per-instance resource access entries.
package authz

import (
	"errors"
	"time"
)

// Sentinel errors shared across the authorization stores.
var (
	// ErrNotFound indicates a referenced role, permission or assignment does not exist.
	ErrNotFound = errors.New("authz: not found")
	// ErrConflict indicates a duplicate name or duplicate active assignment.
	ErrConflict = errors.New("authz: conflict")
	// ErrForbidden indicates a mutation of a system-owned entity, a hierarchy cycle,
	// or a deletion blocked by live dependents.
	ErrForbidden = errors.New("authz: forbidden")
	// ErrInvalidInput indicates malformed input such as a negative priority or an
	// expiry already in the past.
	ErrInvalidInput = errors.New("authz: invalid input")
)

// Effect states whether a grant allows or denies the matched action.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Valid reports whether the effect is one of the two supported values.
func (e Effect) Valid() bool {
	return e == EffectAllow || e == EffectDeny
}

// ScopeGlobal matches any requested scope. A nil scope is equivalent.
const ScopeGlobal = "global"

// MaxHierarchyDepth bounds ancestor walks as a defense against any cycle that
// slips past write-time validation.
const MaxHierarchyDepth = 32

// Role is a named grouping of permissions arranged in a single-parent hierarchy.
// Priority breaks conflicts between overlapping grants: higher wins.
type Role struct {
	ID           int64
	Name         string
	DisplayName  string
	Description  string
	ParentID     *int64
	IsSystemRole bool
	IsActive     bool
	Priority     int32
	Metadata     map[string]any
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Permission is an atomic capability over a resource/action pair, optionally
// narrowed to a scope. Conditions are persisted but not interpreted here.
type Permission struct {
	ID           int64
	Name         string
	Resource     string
	Action       string
	Scope        *string
	Category     string
	IsSystemPerm bool
	Conditions   map[string]any
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RolePermission binds a permission to a role.
type RolePermission struct {
	RoleID       int64
	PermissionID int64
	GrantedBy    int64
	GrantedAt    time.Time
}

// UserRoleAssignment links a user to a role, optionally scoped and time-bounded.
type UserRoleAssignment struct {
	ID         int64
	UserID     int64
	RoleID     int64
	Scope      *string
	Effect     Effect
	ExpiresAt  *time.Time
	AssignedBy int64
	Conditions map[string]any
	CreatedAt  time.Time
}

// ActiveAt reports whether the assignment contributes to decisions at the given time.
func (a UserRoleAssignment) ActiveAt(now time.Time) bool {
	return a.ExpiresAt == nil || a.ExpiresAt.After(now)
}

// UserPermission is a direct grant to a user, bypassing the role hierarchy.
type UserPermission struct {
	ID           int64
	UserID       int64
	PermissionID int64
	Scope        *string
	Effect       Effect
	ExpiresAt    *time.Time
	Reason       string
	AssignedBy   int64
	CreatedAt    time.Time
}

// ActiveAt reports whether the grant contributes to decisions at the given time.
func (p UserPermission) ActiveAt(now time.Time) bool {
	return p.ExpiresAt == nil || p.ExpiresAt.After(now)
}

// ResourceAccess grants a user access to one concrete resource instance,
// independent of roles and permissions. Permissions maps action name to allowed.
type ResourceAccess struct {
	ID           int64
	UserID       int64
	ResourceType string
	ResourceID   string
	Permissions  map[string]bool
	IsActive     bool
	ExpiresAt    *time.Time
	GrantedBy    int64
	CreatedAt    time.Time
}

// ActiveAt reports whether the entry contributes to decisions at the given time.
func (r ResourceAccess) ActiveAt(now time.Time) bool {
	if !r.IsActive {
		return false
	}
	return r.ExpiresAt == nil || r.ExpiresAt.After(now)
}

// ScopeMatches reports whether a granted scope satisfies a requested one.
// A nil or "global" granted scope matches any request; otherwise the scopes
// must be equal. An empty requested scope is only satisfied by a global grant.
func ScopeMatches(granted *string, requested string) bool {
	if granted == nil || *granted == "" || *granted == ScopeGlobal {
		return true
	}
	return *granted == requested
}
