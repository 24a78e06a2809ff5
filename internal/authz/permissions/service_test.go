package permissions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-authz/authzd/internal/authz"
)

type memoryRepo struct {
	perms    map[int64]authz.Permission
	cascades []int64
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{perms: make(map[int64]authz.Permission)}
}

func (r *memoryRepo) Insert(ctx context.Context, perm authz.Permission) (authz.Permission, error) {
	for _, existing := range r.perms {
		if existing.Name == perm.Name {
			return authz.Permission{}, authz.ErrConflict
		}
	}
	r.nextID++
	perm.ID = r.nextID
	r.perms[perm.ID] = perm
	return perm, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (authz.Permission, error) {
	perm, ok := r.perms[id]
	if !ok {
		return authz.Permission{}, authz.ErrNotFound
	}
	return perm, nil
}

func (r *memoryRepo) Update(ctx context.Context, perm authz.Permission) (authz.Permission, error) {
	if _, ok := r.perms[perm.ID]; !ok {
		return authz.Permission{}, authz.ErrNotFound
	}
	r.perms[perm.ID] = perm
	return perm, nil
}

func (r *memoryRepo) List(ctx context.Context, filters ListFilters) ([]authz.Permission, error) {
	var out []authz.Permission
	for _, perm := range r.perms {
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

func (r *memoryRepo) DeleteCascade(ctx context.Context, id int64) error {
	if _, ok := r.perms[id]; !ok {
		return authz.ErrNotFound
	}
	delete(r.perms, id)
	r.cascades = append(r.cascades, id)
	return nil
}

func TestCreateValidatesInput(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Name: "", Resource: "post", Action: "read"})
	require.ErrorIs(t, err, authz.ErrInvalidInput)

	_, err = svc.Create(ctx, CreateInput{Name: "post:read", Resource: "", Action: "read"})
	require.ErrorIs(t, err, authz.ErrInvalidInput)

	perm, err := svc.Create(ctx, CreateInput{Name: "post:read", Resource: "post", Action: "read", Category: "content"})
	require.NoError(t, err)
	require.True(t, perm.IsActive)
}

func TestUpdateSystemPermissionForbidden(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()
	perm, err := svc.Create(ctx, CreateInput{Name: "user:read", Resource: "user", Action: "read", IsSystem: true})
	require.NoError(t, err)
	_, err = svc.Update(ctx, perm.ID, UpdateInput{Category: ptr("core")})
	require.ErrorIs(t, err, authz.ErrForbidden)
	require.ErrorIs(t, svc.Delete(ctx, perm.ID), authz.ErrForbidden)
}

func TestDeleteCascades(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()
	perm, err := svc.Create(ctx, CreateInput{Name: "post:delete", Resource: "post", Action: "delete"})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, perm.ID))
	require.Equal(t, []int64{perm.ID}, repo.cascades)
	require.ErrorIs(t, svc.Delete(ctx, perm.ID), authz.ErrNotFound)
}

func TestListFilters(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()
	_, err := svc.Create(ctx, CreateInput{Name: "post:read", Resource: "post", Action: "read", Category: "content"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateInput{Name: "report:export", Resource: "report", Action: "export", Category: "reporting"})
	require.NoError(t, err)

	got, err := svc.List(ctx, ListFilters{Resource: "report"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "report:export", got[0].Name)

	got, err = svc.List(ctx, ListFilters{Category: "content"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "post:read", got[0].Name)
}

func ptr[T any](v T) *T { return &v }
