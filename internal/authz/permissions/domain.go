package permissions

// CreateInput carries the fields accepted when creating a permission.
type CreateInput struct {
	Name       string
	Resource   string
	Action     string
	Scope      *string
	Category   string
	IsSystem   bool
	Conditions map[string]any
}

// UpdateInput is a partial patch. Nil pointers leave the field untouched.
// SetScope distinguishes "clear the scope" from "leave it alone".
type UpdateInput struct {
	Scope      *string
	SetScope   bool
	Category   *string
	IsActive   *bool
	Conditions map[string]any
}

// ListFilters narrows List results. Empty fields match everything.
type ListFilters struct {
	Category string
	Resource string
}
