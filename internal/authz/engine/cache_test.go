package engine

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*DecisionCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewDecisionCache(client, time.Minute), mr
}

func TestDecisionCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	req := CheckRequest{UserID: 7, Resource: "post", Action: "read", Scope: "own"}

	_, ok, err := cache.Get(ctx, req)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, cache.Set(ctx, req, true))
	allowed, ok, err := cache.Get(ctx, req)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, allowed)

	deny := CheckRequest{UserID: 7, Resource: "post", Action: "delete"}
	require.NoError(t, cache.Set(ctx, deny, false))
	allowed, ok, err = cache.Get(ctx, deny)
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, allowed)
}

func TestDecisionCacheBumpUser(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	reqA := CheckRequest{UserID: 7, Resource: "post", Action: "read"}
	reqB := CheckRequest{UserID: 8, Resource: "post", Action: "read"}

	require.NoError(t, cache.Set(ctx, reqA, true))
	require.NoError(t, cache.Set(ctx, reqB, true))
	require.NoError(t, cache.BumpUser(ctx, 7))

	// User 7's entry is orphaned; user 8's survives.
	_, ok, err := cache.Get(ctx, reqA)
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = cache.Get(ctx, reqB)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDecisionCacheBumpAll(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	reqA := CheckRequest{UserID: 7, Resource: "post", Action: "read"}
	reqB := CheckRequest{UserID: 8, Resource: "post", Action: "read"}

	require.NoError(t, cache.Set(ctx, reqA, true))
	require.NoError(t, cache.Set(ctx, reqB, true))
	require.NoError(t, cache.BumpAll(ctx))

	_, ok, err := cache.Get(ctx, reqA)
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = cache.Get(ctx, reqB)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDecisionCacheExpiry(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()
	req := CheckRequest{UserID: 7, Resource: "post", Action: "read"}

	require.NoError(t, cache.Set(ctx, req, true))
	mr.FastForward(2 * time.Minute)

	_, ok, err := cache.Get(ctx, req)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNilDecisionCacheIsDisabled(t *testing.T) {
	var cache *DecisionCache
	require.Nil(t, NewDecisionCache(nil, time.Minute))

	ctx := context.Background()
	req := CheckRequest{UserID: 1, Resource: "post", Action: "read"}
	_, ok, err := cache.Get(ctx, req)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, cache.Set(ctx, req, true))
	require.NoError(t, cache.BumpUser(ctx, 1))
	require.NoError(t, cache.BumpAll(ctx))
}

func TestEngineUsesCache(t *testing.T) {
	store := newMemoryStore()
	store.addRole(1, "reader", nil, 1)
	store.bind(1, "post", "read", nil)
	store.assign(7, 1, "", nil, nil)

	cache, _ := newTestCache(t)
	e := New(store, cache, nil, nil)
	ctx := context.Background()
	req := CheckRequest{UserID: 7, Resource: "post", Action: "read"}

	require.True(t, e.Check(ctx, req))

	// The cached decision is served even after the underlying grant changes.
	store.assigns[7] = nil
	require.True(t, e.Check(ctx, req))

	// Invalidation forces a fresh resolution.
	e.InvalidateUser(ctx, 7)
	require.False(t, e.Check(ctx, req))
}
