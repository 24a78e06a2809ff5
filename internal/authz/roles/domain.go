package roles

import (
	"github.com/odyssey-authz/authzd/internal/authz"
)

// CreateInput carries the fields accepted when creating a role.
type CreateInput struct {
	Name        string
	DisplayName string
	Description string
	ParentID    *int64
	IsSystem    bool
	Priority    int32
	Metadata    map[string]any
}

// UpdateInput is a partial patch. Nil pointers leave the field untouched.
// SetParent distinguishes "reparent to nil (make root)" from "leave parent alone".
type UpdateInput struct {
	DisplayName *string
	Description *string
	IsActive    *bool
	Priority    *int32
	Metadata    map[string]any
	SetParent   bool
	ParentID    *int64
}

// Node is a role with its recursively nested children, as returned by Hierarchy.
type Node struct {
	authz.Role
	Children []*Node
}
