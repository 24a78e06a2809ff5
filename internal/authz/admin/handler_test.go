package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-authz/authzd/internal/authz"
	"github.com/odyssey-authz/authzd/internal/authz/assignments"
	"github.com/odyssey-authz/authzd/internal/authz/audit"
	"github.com/odyssey-authz/authzd/internal/authz/bindings"
	"github.com/odyssey-authz/authzd/internal/authz/engine"
	"github.com/odyssey-authz/authzd/internal/authz/permissions"
	"github.com/odyssey-authz/authzd/internal/authz/resourceaccess"
	"github.com/odyssey-authz/authzd/internal/authz/roles"
)

// state is the shared in-memory backend behind every repository port, so the
// handler tests exercise the full service stack end to end.
type state struct {
	roles      map[int64]authz.Role
	perms      map[int64]authz.Permission
	bound      map[int64][]int64 // roleID -> permission ids
	assigns    []authz.UserRoleAssignment
	grants     []authz.UserPermission
	accesses   map[string]authz.ResourceAccess
	nextRoleID int64
	nextPermID int64
	nextAssign int64
	nextGrant  int64
	nextAccess int64
}

func newState() *state {
	return &state{
		roles:    make(map[int64]authz.Role),
		perms:    make(map[int64]authz.Permission),
		bound:    make(map[int64][]int64),
		accesses: make(map[string]authz.ResourceAccess),
	}
}

func accessKey(userID int64, resourceType, resourceID string) string {
	return fmt.Sprintf("%d/%s/%s", userID, resourceType, resourceID)
}

type rolesRepo struct{ s *state }

func (r rolesRepo) Insert(ctx context.Context, role authz.Role) (authz.Role, error) {
	for _, existing := range r.s.roles {
		if existing.Name == role.Name {
			return authz.Role{}, authz.ErrConflict
		}
	}
	r.s.nextRoleID++
	role.ID = r.s.nextRoleID
	role.CreatedAt = time.Now()
	role.UpdatedAt = role.CreatedAt
	r.s.roles[role.ID] = role
	return role, nil
}

func (r rolesRepo) Get(ctx context.Context, id int64) (authz.Role, error) {
	role, ok := r.s.roles[id]
	if !ok {
		return authz.Role{}, authz.ErrNotFound
	}
	return role, nil
}

func (r rolesRepo) List(ctx context.Context, includeInactive bool) ([]authz.Role, error) {
	var out []authz.Role
	for _, role := range r.s.roles {
		if includeInactive || role.IsActive {
			out = append(out, role)
		}
	}
	return out, nil
}

func (r rolesRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := r.s.roles[id]; !ok {
		return authz.ErrNotFound
	}
	delete(r.s.roles, id)
	return nil
}

func (r rolesRepo) CountChildren(ctx context.Context, id int64) (int64, error) {
	var n int64
	for _, role := range r.s.roles {
		if role.ParentID != nil && *role.ParentID == id {
			n++
		}
	}
	return n, nil
}

func (r rolesRepo) CountActiveAssignments(ctx context.Context, roleID int64, now time.Time) (int64, error) {
	var n int64
	for _, a := range r.s.assigns {
		if a.RoleID == roleID && a.ActiveAt(now) {
			n++
		}
	}
	return n, nil
}

func (r rolesRepo) WithTx(ctx context.Context, fn func(context.Context, roles.TxRepository) error) error {
	return fn(ctx, r)
}

func (r rolesRepo) LockHierarchy(ctx context.Context) error { return nil }

func (r rolesRepo) Update(ctx context.Context, role authz.Role) (authz.Role, error) {
	if _, ok := r.s.roles[role.ID]; !ok {
		return authz.Role{}, authz.ErrNotFound
	}
	role.UpdatedAt = time.Now()
	r.s.roles[role.ID] = role
	return role, nil
}

type permsRepo struct{ s *state }

func (r permsRepo) Insert(ctx context.Context, perm authz.Permission) (authz.Permission, error) {
	for _, existing := range r.s.perms {
		if existing.Name == perm.Name {
			return authz.Permission{}, authz.ErrConflict
		}
	}
	r.s.nextPermID++
	perm.ID = r.s.nextPermID
	perm.CreatedAt = time.Now()
	perm.UpdatedAt = perm.CreatedAt
	r.s.perms[perm.ID] = perm
	return perm, nil
}

func (r permsRepo) Get(ctx context.Context, id int64) (authz.Permission, error) {
	perm, ok := r.s.perms[id]
	if !ok {
		return authz.Permission{}, authz.ErrNotFound
	}
	return perm, nil
}

func (r permsRepo) Update(ctx context.Context, perm authz.Permission) (authz.Permission, error) {
	if _, ok := r.s.perms[perm.ID]; !ok {
		return authz.Permission{}, authz.ErrNotFound
	}
	perm.UpdatedAt = time.Now()
	r.s.perms[perm.ID] = perm
	return perm, nil
}

func (r permsRepo) List(ctx context.Context, filters permissions.ListFilters) ([]authz.Permission, error) {
	var out []authz.Permission
	for _, perm := range r.s.perms {
		if filters.Category != "" && perm.Category != filters.Category {
			continue
		}
		if filters.Resource != "" && perm.Resource != filters.Resource {
			continue
		}
		out = append(out, perm)
	}
	return out, nil
}

func (r permsRepo) DeleteCascade(ctx context.Context, id int64) error {
	if _, ok := r.s.perms[id]; !ok {
		return authz.ErrNotFound
	}
	delete(r.s.perms, id)
	for roleID, ids := range r.s.bound {
		kept := ids[:0]
		for _, pid := range ids {
			if pid != id {
				kept = append(kept, pid)
			}
		}
		r.s.bound[roleID] = kept
	}
	kept := r.s.grants[:0]
	for _, g := range r.s.grants {
		if g.PermissionID != id {
			kept = append(kept, g)
		}
	}
	r.s.grants = kept
	return nil
}

type bindingsRepo struct{ s *state }

func (r bindingsRepo) RoleExists(ctx context.Context, roleID int64) (bool, error) {
	_, ok := r.s.roles[roleID]
	return ok, nil
}

func (r bindingsRepo) ExistingPermissionIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	out := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if _, ok := r.s.perms[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func (r bindingsRepo) InsertBindings(ctx context.Context, roleID int64, permissionIDs []int64, grantedBy int64) error {
	existing := make(map[int64]bool)
	for _, id := range r.s.bound[roleID] {
		existing[id] = true
	}
	for _, id := range permissionIDs {
		if !existing[id] {
			r.s.bound[roleID] = append(r.s.bound[roleID], id)
		}
	}
	return nil
}

func (r bindingsRepo) DeleteBindings(ctx context.Context, roleID int64, permissionIDs []int64) error {
	drop := make(map[int64]bool, len(permissionIDs))
	for _, id := range permissionIDs {
		drop[id] = true
	}
	kept := r.s.bound[roleID][:0]
	for _, id := range r.s.bound[roleID] {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	r.s.bound[roleID] = kept
	return nil
}

func (r bindingsRepo) ListRolePermissions(ctx context.Context, roleID int64) ([]authz.Permission, error) {
	var out []authz.Permission
	for _, id := range r.s.bound[roleID] {
		if perm, ok := r.s.perms[id]; ok {
			out = append(out, perm)
		}
	}
	return out, nil
}

type assignRepo struct{ s *state }

func (r assignRepo) RoleExists(ctx context.Context, roleID int64) (bool, error) {
	_, ok := r.s.roles[roleID]
	return ok, nil
}

func (r assignRepo) PermissionExists(ctx context.Context, permissionID int64) (bool, error) {
	_, ok := r.s.perms[permissionID]
	return ok, nil
}

func sameScope(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (r assignRepo) InsertAssignment(ctx context.Context, a authz.UserRoleAssignment) (authz.UserRoleAssignment, error) {
	now := time.Now()
	for _, existing := range r.s.assigns {
		if existing.UserID == a.UserID && existing.RoleID == a.RoleID &&
			sameScope(existing.Scope, a.Scope) && existing.ActiveAt(now) {
			return authz.UserRoleAssignment{}, authz.ErrConflict
		}
	}
	r.s.nextAssign++
	a.ID = r.s.nextAssign
	a.CreatedAt = now
	r.s.assigns = append(r.s.assigns, a)
	return a, nil
}

func (r assignRepo) DeleteAssignments(ctx context.Context, userID, roleID int64) (int64, error) {
	var removed int64
	kept := r.s.assigns[:0]
	for _, a := range r.s.assigns {
		if a.UserID == userID && a.RoleID == roleID {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	r.s.assigns = kept
	return removed, nil
}

func (r assignRepo) InsertGrant(ctx context.Context, g authz.UserPermission) (authz.UserPermission, error) {
	r.s.nextGrant++
	g.ID = r.s.nextGrant
	g.CreatedAt = time.Now()
	r.s.grants = append(r.s.grants, g)
	return g, nil
}

func (r assignRepo) DeleteGrants(ctx context.Context, userID, permissionID int64) (int64, error) {
	var removed int64
	kept := r.s.grants[:0]
	for _, g := range r.s.grants {
		if g.UserID == userID && g.PermissionID == permissionID {
			removed++
			continue
		}
		kept = append(kept, g)
	}
	r.s.grants = kept
	return removed, nil
}

func (r assignRepo) ListAssignments(ctx context.Context, userID int64) ([]authz.UserRoleAssignment, error) {
	var out []authz.UserRoleAssignment
	for _, a := range r.s.assigns {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r assignRepo) ListGrants(ctx context.Context, userID int64) ([]authz.UserPermission, error) {
	var out []authz.UserPermission
	for _, g := range r.s.grants {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	return out, nil
}

type accessRepo struct{ s *state }

func (r accessRepo) Upsert(ctx context.Context, entry authz.ResourceAccess) (authz.ResourceAccess, error) {
	k := accessKey(entry.UserID, entry.ResourceType, entry.ResourceID)
	if existing, ok := r.s.accesses[k]; ok {
		entry.ID = existing.ID
		entry.CreatedAt = existing.CreatedAt
	} else {
		r.s.nextAccess++
		entry.ID = r.s.nextAccess
		entry.CreatedAt = time.Now()
	}
	r.s.accesses[k] = entry
	return entry, nil
}

func (r accessRepo) Delete(ctx context.Context, userID int64, resourceType, resourceID string) (int64, error) {
	k := accessKey(userID, resourceType, resourceID)
	if _, ok := r.s.accesses[k]; !ok {
		return 0, nil
	}
	delete(r.s.accesses, k)
	return 1, nil
}

func (r accessRepo) Get(ctx context.Context, userID int64, resourceType, resourceID string) (authz.ResourceAccess, error) {
	entry, ok := r.s.accesses[accessKey(userID, resourceType, resourceID)]
	if !ok {
		return authz.ResourceAccess{}, authz.ErrNotFound
	}
	return entry, nil
}

func (r accessRepo) ListForUser(ctx context.Context, userID int64) ([]authz.ResourceAccess, error) {
	var out []authz.ResourceAccess
	for _, entry := range r.s.accesses {
		if entry.UserID == userID {
			out = append(out, entry)
		}
	}
	return out, nil
}

type storeAdapter struct{ s *state }

func (st storeAdapter) View(ctx context.Context, fn func(context.Context, engine.Snapshot) error) error {
	return fn(ctx, st)
}

func (st storeAdapter) Assignments(ctx context.Context, userID int64) ([]authz.UserRoleAssignment, error) {
	return assignRepo{st.s}.ListAssignments(ctx, userID)
}

func (st storeAdapter) Role(ctx context.Context, roleID int64) (authz.Role, error) {
	return rolesRepo{st.s}.Get(ctx, roleID)
}

func (st storeAdapter) RolePermissions(ctx context.Context, roleID int64) ([]authz.Permission, error) {
	return bindingsRepo{st.s}.ListRolePermissions(ctx, roleID)
}

func (st storeAdapter) DirectGrants(ctx context.Context, userID int64) ([]engine.DirectGrant, error) {
	var out []engine.DirectGrant
	for _, g := range st.s.grants {
		if g.UserID != userID {
			continue
		}
		perm, ok := st.s.perms[g.PermissionID]
		if !ok {
			continue
		}
		out = append(out, engine.DirectGrant{Grant: g, Permission: perm})
	}
	return out, nil
}

func (st storeAdapter) ResourceAccess(ctx context.Context, userID int64, resourceType, resourceID string) (authz.ResourceAccess, bool, error) {
	entry, ok := st.s.accesses[accessKey(userID, resourceType, resourceID)]
	return entry, ok, nil
}

func (st storeAdapter) ResourceAccessList(ctx context.Context, userID int64) ([]authz.ResourceAccess, error) {
	return accessRepo{st.s}.ListForUser(ctx, userID)
}

type captureRecorder struct {
	events []audit.Event
}

func (c *captureRecorder) Emit(event audit.Event) {
	c.events = append(c.events, event)
}

type fixture struct {
	router   chi.Router
	state    *state
	recorder *captureRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := newState()
	recorder := &captureRecorder{}
	eng := engine.New(storeAdapter{st}, nil, recorder, nil)
	h := NewHandler(
		nil,
		roles.NewService(rolesRepo{st}),
		permissions.NewService(permsRepo{st}),
		bindings.NewService(bindingsRepo{st}),
		assignments.NewService(assignRepo{st}),
		resourceaccess.NewService(accessRepo{st}),
		eng,
		recorder,
	)
	router := chi.NewRouter()
	router.Route("/api", h.MountRoutes)
	return &fixture{router: router, state: st, recorder: recorder}
}

func (f *fixture) do(t *testing.T, method, path string, body any, actingUser string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if actingUser != "" {
		req.Header.Set(ActingUserHeader, actingUser)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestMutationsRequireActingUser(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/roles", map[string]any{"name": "editor"}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/roles", map[string]any{"name": "editor"}, "not-a-number")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoleLifecycle(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/roles", map[string]any{"name": "editor", "priority": 5}, "1")
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[roleResponse](t, rec)
	require.Equal(t, "editor", created.Name)
	require.True(t, created.IsActive)

	// Duplicate name conflicts.
	rec = f.do(t, http.MethodPost, "/api/roles", map[string]any{"name": "editor"}, "1")
	require.Equal(t, http.StatusConflict, rec.Code)

	// Patch priority.
	rec = f.do(t, http.MethodPatch, fmt.Sprintf("/api/roles/%d", created.ID), map[string]any{"priority": 9}, "1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int32(9), decodeBody[roleResponse](t, rec).Priority)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/roles/%d", created.ID), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/roles/999", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodDelete, fmt.Sprintf("/api/roles/%d", created.ID), nil, "1")
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRoleValidation(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/roles", map[string]any{"priority": 1}, "1")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/roles", map[string]any{"name": "x", "priority": -1}, "1")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown parent.
	rec = f.do(t, http.MethodPost, "/api/roles", map[string]any{"name": "x", "parent_id": 42}, "1")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSystemRoleProtected(t *testing.T) {
	f := newFixture(t)
	f.state.nextRoleID++
	f.state.roles[f.state.nextRoleID] = authz.Role{
		ID: f.state.nextRoleID, Name: "admin", IsSystemRole: true, IsActive: true,
	}

	rec := f.do(t, http.MethodPatch, "/api/roles/1", map[string]any{"priority": 99}, "1")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/roles/1", nil, "1")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReparentCycleRejected(t *testing.T) {
	f := newFixture(t)
	parent := decodeBody[roleResponse](t, f.do(t, http.MethodPost, "/api/roles", map[string]any{"name": "parent"}, "1"))
	child := decodeBody[roleResponse](t, f.do(t, http.MethodPost, "/api/roles",
		map[string]any{"name": "child", "parent_id": parent.ID}, "1"))

	rec := f.do(t, http.MethodPatch, fmt.Sprintf("/api/roles/%d", parent.ID),
		map[string]any{"set_parent": true, "parent_id": child.ID}, "1")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHierarchyEndpoint(t *testing.T) {
	f := newFixture(t)
	parent := decodeBody[roleResponse](t, f.do(t, http.MethodPost, "/api/roles", map[string]any{"name": "parent"}, "1"))
	_ = decodeBody[roleResponse](t, f.do(t, http.MethodPost, "/api/roles",
		map[string]any{"name": "child", "parent_id": parent.ID}, "1"))

	rec := f.do(t, http.MethodGet, "/api/roles/hierarchy", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	forest := decodeBody[[]hierarchyNode](t, rec)
	require.Len(t, forest, 1)
	require.Equal(t, "parent", forest[0].Name)
	require.Len(t, forest[0].Children, 1)
	require.Equal(t, "child", forest[0].Children[0].Name)
}

// seedGrant creates a role with one bound permission and assigns it to the
// user, all through the API.
func (f *fixture) seedGrant(t *testing.T, userID int64, roleName, resource, action string) (roleResponse, permissionResponse) {
	t.Helper()
	role := decodeBody[roleResponse](t, f.do(t, http.MethodPost, "/api/roles", map[string]any{"name": roleName}, "1"))
	perm := decodeBody[permissionResponse](t, f.do(t, http.MethodPost, "/api/permissions", map[string]any{
		"name": resource + ":" + action, "resource": resource, "action": action,
	}, "1"))
	rec := f.do(t, http.MethodPut, fmt.Sprintf("/api/roles/%d/permissions", role.ID),
		map[string]any{"permission_ids": []int64{perm.ID}}, "1")
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/users/%d/roles", userID),
		map[string]any{"role_id": role.ID}, "1")
	require.Equal(t, http.StatusCreated, rec.Code)
	return role, perm
}

func (f *fixture) check(t *testing.T, body map[string]any) bool {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/check", body, "")
	require.Equal(t, http.StatusOK, rec.Code)
	return decodeBody[checkResponse](t, rec).Allowed
}

func TestCheckThroughAPI(t *testing.T) {
	f := newFixture(t)
	f.seedGrant(t, 7, "editor", "post", "update")

	require.True(t, f.check(t, map[string]any{"user_id": 7, "resource": "post", "action": "update"}))
	require.False(t, f.check(t, map[string]any{"user_id": 7, "resource": "post", "action": "delete"}))
	require.False(t, f.check(t, map[string]any{"user_id": 8, "resource": "post", "action": "update"}))
}

func TestRevokeRoleThroughAPI(t *testing.T) {
	f := newFixture(t)
	role, _ := f.seedGrant(t, 7, "editor", "post", "update")

	rec := f.do(t, http.MethodDelete, fmt.Sprintf("/api/users/7/roles/%d", role.ID), nil, "1")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.False(t, f.check(t, map[string]any{"user_id": 7, "resource": "post", "action": "update"}))

	// Revoking again reports not found.
	rec = f.do(t, http.MethodDelete, fmt.Sprintf("/api/users/7/roles/%d", role.ID), nil, "1")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDirectDenyThroughAPI(t *testing.T) {
	f := newFixture(t)
	_, perm := f.seedGrant(t, 7, "editor", "post", "update")

	rec := f.do(t, http.MethodPost, "/api/users/7/permissions", map[string]any{
		"permission_id": perm.ID, "effect": "deny", "reason": "incident 42",
	}, "1")
	require.Equal(t, http.StatusCreated, rec.Code)
	require.False(t, f.check(t, map[string]any{"user_id": 7, "resource": "post", "action": "update"}))

	rec = f.do(t, http.MethodDelete, fmt.Sprintf("/api/users/7/permissions/%d", perm.ID), nil, "1")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, f.check(t, map[string]any{"user_id": 7, "resource": "post", "action": "update"}))
}

func TestDuplicateAssignmentConflicts(t *testing.T) {
	f := newFixture(t)
	role, _ := f.seedGrant(t, 7, "editor", "post", "update")

	rec := f.do(t, http.MethodPost, "/api/users/7/roles", map[string]any{"role_id": role.ID}, "1")
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestResourceAccessThroughAPI(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/api/resource-access", map[string]any{
		"user_id": 7, "resource_type": "document", "resource_id": "X",
		"permissions": map[string]bool{"read": true},
	}, "1")
	require.Equal(t, http.StatusOK, rec.Code)

	require.True(t, f.check(t, map[string]any{
		"user_id": 7, "resource": "document", "action": "read", "resource_id": "X",
	}))
	require.False(t, f.check(t, map[string]any{
		"user_id": 7, "resource": "document", "action": "read", "resource_id": "Y",
	}))

	rec = f.do(t, http.MethodDelete, "/api/resource-access", map[string]any{
		"user_id": 7, "resource_type": "document", "resource_id": "X",
	}, "1")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.False(t, f.check(t, map[string]any{
		"user_id": 7, "resource": "document", "action": "read", "resource_id": "X",
	}))
}

func TestUserAccessEndpoint(t *testing.T) {
	f := newFixture(t)
	role, _ := f.seedGrant(t, 7, "editor", "post", "update")

	rec := f.do(t, http.MethodGet, "/api/users/7/access", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	info := decodeBody[userAccessResponse](t, rec)
	require.Equal(t, int64(7), info.UserID)
	require.Len(t, info.Roles, 1)
	require.Equal(t, role.ID, info.Roles[0].Role.ID)
	require.Len(t, info.Roles[0].Permissions, 1)
	require.Equal(t, "post:update", info.Roles[0].Permissions[0].Name)
}

func TestMutationsAreAudited(t *testing.T) {
	f := newFixture(t)
	f.seedGrant(t, 7, "editor", "post", "update")

	var actions []string
	for _, event := range f.recorder.events {
		actions = append(actions, event.Action)
	}
	require.Contains(t, actions, "role.created")
	require.Contains(t, actions, "permission.created")
	require.Contains(t, actions, "role.permissions_bound")
	require.Contains(t, actions, "user.role_assigned")
	for _, event := range f.recorder.events {
		require.Equal(t, int64(1), event.ActorID)
	}
}

func TestDeniedChecksAreAudited(t *testing.T) {
	f := newFixture(t)
	require.False(t, f.check(t, map[string]any{"user_id": 9, "resource": "post", "action": "read"}))

	var found bool
	for _, event := range f.recorder.events {
		if event.Action == "check.denied" && event.ActorID == 9 {
			found = true
		}
	}
	require.True(t, found)
}

func TestPermissionFilters(t *testing.T) {
	f := newFixture(t)
	for _, spec := range []map[string]any{
		{"name": "post:read", "resource": "post", "action": "read", "category": "content"},
		{"name": "post:write", "resource": "post", "action": "write", "category": "content"},
		{"name": "report:view", "resource": "report", "action": "view", "category": "reporting"},
	} {
		rec := f.do(t, http.MethodPost, "/api/permissions", spec, "1")
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := f.do(t, http.MethodGet, "/api/permissions?category=content", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody[[]permissionResponse](t, rec), 2)

	rec = f.do(t, http.MethodGet, "/api/permissions?resource=report", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody[[]permissionResponse](t, rec), 1)
}

func TestBindUnknownPermissionFailsWhole(t *testing.T) {
	f := newFixture(t)
	role := decodeBody[roleResponse](t, f.do(t, http.MethodPost, "/api/roles", map[string]any{"name": "editor"}, "1"))
	perm := decodeBody[permissionResponse](t, f.do(t, http.MethodPost, "/api/permissions",
		map[string]any{"name": "post:read", "resource": "post", "action": "read"}, "1"))

	rec := f.do(t, http.MethodPut, fmt.Sprintf("/api/roles/%d/permissions", role.ID),
		map[string]any{"permission_ids": []int64{perm.ID, 999}}, "1")
	require.Equal(t, http.StatusNotFound, rec.Code)

	// Nothing was bound.
	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/roles/%d/permissions", role.ID), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decodeBody[[]permissionResponse](t, rec))
}
