package admin

import (
	"time"

	"github.com/odyssey-authz/authzd/internal/authz"
	"github.com/odyssey-authz/authzd/internal/authz/engine"
	"github.com/odyssey-authz/authzd/internal/authz/roles"
)

type createRoleRequest struct {
	Name        string         `json:"name" validate:"required,max=100"`
	DisplayName string         `json:"display_name" validate:"max=200"`
	Description string         `json:"description"`
	ParentID    *int64         `json:"parent_id" validate:"omitempty,gt=0"`
	Priority    int32          `json:"priority" validate:"gte=0"`
	Metadata    map[string]any `json:"metadata"`
}

// updateRoleRequest is a partial patch; absent fields stay untouched.
// set_parent must be true for parent_id to take effect, so that reparenting
// to root (parent_id null) is expressible.
type updateRoleRequest struct {
	DisplayName *string        `json:"display_name"`
	Description *string        `json:"description"`
	IsActive    *bool          `json:"is_active"`
	Priority    *int32         `json:"priority" validate:"omitempty,gte=0"`
	Metadata    map[string]any `json:"metadata"`
	SetParent   bool           `json:"set_parent"`
	ParentID    *int64         `json:"parent_id" validate:"omitempty,gt=0"`
}

type createPermissionRequest struct {
	Name       string         `json:"name" validate:"required,max=150"`
	Resource   string         `json:"resource" validate:"required,max=100"`
	Action     string         `json:"action" validate:"required,max=100"`
	Scope      *string        `json:"scope"`
	Category   string         `json:"category" validate:"max=100"`
	Conditions map[string]any `json:"conditions"`
}

type updatePermissionRequest struct {
	Scope      *string        `json:"scope"`
	SetScope   bool           `json:"set_scope"`
	Category   *string        `json:"category"`
	IsActive   *bool          `json:"is_active"`
	Conditions map[string]any `json:"conditions"`
}

type bindPermissionsRequest struct {
	PermissionIDs []int64 `json:"permission_ids" validate:"required,min=1,dive,gt=0"`
}

type assignRoleRequest struct {
	RoleID     int64          `json:"role_id" validate:"required,gt=0"`
	Scope      *string        `json:"scope"`
	Effect     string         `json:"effect" validate:"omitempty,oneof=allow deny"`
	ExpiresAt  *time.Time     `json:"expires_at"`
	Conditions map[string]any `json:"conditions"`
}

type grantPermissionRequest struct {
	PermissionID int64      `json:"permission_id" validate:"required,gt=0"`
	Scope        *string    `json:"scope"`
	Effect       string     `json:"effect" validate:"omitempty,oneof=allow deny"`
	ExpiresAt    *time.Time `json:"expires_at"`
	Reason       string     `json:"reason"`
}

type resourceAccessRequest struct {
	UserID       int64           `json:"user_id" validate:"required,gt=0"`
	ResourceType string          `json:"resource_type" validate:"required,max=100"`
	ResourceID   string          `json:"resource_id" validate:"required,max=200"`
	Permissions  map[string]bool `json:"permissions" validate:"required,min=1"`
	ExpiresAt    *time.Time      `json:"expires_at"`
}

type revokeResourceAccessRequest struct {
	UserID       int64  `json:"user_id" validate:"required,gt=0"`
	ResourceType string `json:"resource_type" validate:"required"`
	ResourceID   string `json:"resource_id" validate:"required"`
}

type checkRequest struct {
	UserID     int64          `json:"user_id" validate:"required,gt=0"`
	Resource   string         `json:"resource" validate:"required"`
	Action     string         `json:"action" validate:"required"`
	Scope      string         `json:"scope"`
	ResourceID string         `json:"resource_id"`
	Context    map[string]any `json:"context"`
}

type checkResponse struct {
	Allowed bool `json:"allowed"`
}

type roleResponse struct {
	ID           int64          `json:"id"`
	Name         string         `json:"name"`
	DisplayName  string         `json:"display_name,omitempty"`
	Description  string         `json:"description,omitempty"`
	ParentID     *int64         `json:"parent_id,omitempty"`
	IsSystemRole bool           `json:"is_system_role"`
	IsActive     bool           `json:"is_active"`
	Priority     int32          `json:"priority"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func toRoleResponse(role authz.Role) roleResponse {
	return roleResponse{
		ID:           role.ID,
		Name:         role.Name,
		DisplayName:  role.DisplayName,
		Description:  role.Description,
		ParentID:     role.ParentID,
		IsSystemRole: role.IsSystemRole,
		IsActive:     role.IsActive,
		Priority:     role.Priority,
		Metadata:     role.Metadata,
		CreatedAt:    role.CreatedAt,
		UpdatedAt:    role.UpdatedAt,
	}
}

type hierarchyNode struct {
	roleResponse
	Children []hierarchyNode `json:"children"`
}

func toHierarchy(nodes []*roles.Node) []hierarchyNode {
	out := make([]hierarchyNode, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, hierarchyNode{
			roleResponse: toRoleResponse(node.Role),
			Children:     toHierarchy(node.Children),
		})
	}
	return out
}

type permissionResponse struct {
	ID           int64          `json:"id"`
	Name         string         `json:"name"`
	Resource     string         `json:"resource"`
	Action       string         `json:"action"`
	Scope        *string        `json:"scope,omitempty"`
	Category     string         `json:"category,omitempty"`
	IsSystemPerm bool           `json:"is_system_perm"`
	Conditions   map[string]any `json:"conditions,omitempty"`
	IsActive     bool           `json:"is_active"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func toPermissionResponse(perm authz.Permission) permissionResponse {
	return permissionResponse{
		ID:           perm.ID,
		Name:         perm.Name,
		Resource:     perm.Resource,
		Action:       perm.Action,
		Scope:        perm.Scope,
		Category:     perm.Category,
		IsSystemPerm: perm.IsSystemPerm,
		Conditions:   perm.Conditions,
		IsActive:     perm.IsActive,
		CreatedAt:    perm.CreatedAt,
		UpdatedAt:    perm.UpdatedAt,
	}
}

func toPermissionResponses(perms []authz.Permission) []permissionResponse {
	out := make([]permissionResponse, 0, len(perms))
	for _, perm := range perms {
		out = append(out, toPermissionResponse(perm))
	}
	return out
}

type assignmentResponse struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	RoleID     int64      `json:"role_id"`
	Scope      *string    `json:"scope,omitempty"`
	Effect     string     `json:"effect"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	AssignedBy int64      `json:"assigned_by"`
	CreatedAt  time.Time  `json:"created_at"`
}

func toAssignmentResponse(a authz.UserRoleAssignment) assignmentResponse {
	return assignmentResponse{
		ID:         a.ID,
		UserID:     a.UserID,
		RoleID:     a.RoleID,
		Scope:      a.Scope,
		Effect:     string(a.Effect),
		ExpiresAt:  a.ExpiresAt,
		AssignedBy: a.AssignedBy,
		CreatedAt:  a.CreatedAt,
	}
}

type grantResponse struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	PermissionID int64      `json:"permission_id"`
	Scope        *string    `json:"scope,omitempty"`
	Effect       string     `json:"effect"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Reason       string     `json:"reason,omitempty"`
	AssignedBy   int64      `json:"assigned_by"`
	CreatedAt    time.Time  `json:"created_at"`
}

func toGrantResponse(g authz.UserPermission) grantResponse {
	return grantResponse{
		ID:           g.ID,
		UserID:       g.UserID,
		PermissionID: g.PermissionID,
		Scope:        g.Scope,
		Effect:       string(g.Effect),
		ExpiresAt:    g.ExpiresAt,
		Reason:       g.Reason,
		AssignedBy:   g.AssignedBy,
		CreatedAt:    g.CreatedAt,
	}
}

type resourceAccessResponse struct {
	ID           int64           `json:"id"`
	UserID       int64           `json:"user_id"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	Permissions  map[string]bool `json:"permissions"`
	IsActive     bool            `json:"is_active"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
	GrantedBy    int64           `json:"granted_by"`
	CreatedAt    time.Time       `json:"created_at"`
}

func toResourceAccessResponse(entry authz.ResourceAccess) resourceAccessResponse {
	return resourceAccessResponse{
		ID:           entry.ID,
		UserID:       entry.UserID,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		Permissions:  entry.Permissions,
		IsActive:     entry.IsActive,
		ExpiresAt:    entry.ExpiresAt,
		GrantedBy:    entry.GrantedBy,
		CreatedAt:    entry.CreatedAt,
	}
}

type roleGrantResponse struct {
	Role        roleResponse         `json:"role"`
	Assignment  assignmentResponse   `json:"assignment"`
	Permissions []permissionResponse `json:"permissions"`
}

type directGrantResponse struct {
	Grant      grantResponse      `json:"grant"`
	Permission permissionResponse `json:"permission"`
}

type userAccessResponse struct {
	UserID         int64                    `json:"user_id"`
	Roles          []roleGrantResponse      `json:"roles"`
	DirectGrants   []directGrantResponse    `json:"direct_grants"`
	ResourceAccess []resourceAccessResponse `json:"resource_access"`
}

func toUserAccessResponse(info engine.UserInfo) userAccessResponse {
	out := userAccessResponse{
		UserID:         info.UserID,
		Roles:          make([]roleGrantResponse, 0, len(info.Roles)),
		DirectGrants:   make([]directGrantResponse, 0, len(info.DirectGrants)),
		ResourceAccess: make([]resourceAccessResponse, 0, len(info.ResourceAccess)),
	}
	for _, rg := range info.Roles {
		out.Roles = append(out.Roles, roleGrantResponse{
			Role:        toRoleResponse(rg.Role),
			Assignment:  toAssignmentResponse(rg.Assignment),
			Permissions: toPermissionResponses(rg.Permissions),
		})
	}
	for _, dg := range info.DirectGrants {
		out.DirectGrants = append(out.DirectGrants, directGrantResponse{
			Grant:      toGrantResponse(dg.Grant),
			Permission: toPermissionResponse(dg.Permission),
		})
	}
	for _, entry := range info.ResourceAccess {
		out.ResourceAccess = append(out.ResourceAccess, toResourceAccessResponse(entry))
	}
	return out
}
