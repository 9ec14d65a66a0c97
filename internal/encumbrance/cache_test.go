package encumbrance

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestCacheFetchJSONPopulatesOnce(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	key, err := cache.BuildKey(ctx, "encumbrance", "total", "ORG1", "any")
	require.NoError(t, err)

	calls := 0
	loader := func(ctx context.Context) (interface{}, error) {
		calls++
		return map[string]string{"total": "285.00"}, nil
	}

	var first map[string]string
	require.NoError(t, cache.FetchJSON(ctx, key, &first, loader))
	assert.Equal(t, "285.00", first["total"])
	assert.Equal(t, 1, calls)

	var second map[string]string
	require.NoError(t, cache.FetchJSON(ctx, key, &second, loader))
	assert.Equal(t, "285.00", second["total"])
	assert.Equal(t, 1, calls)
}

func TestCacheBumpChangesKeys(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	before, err := cache.BuildKey(ctx, "encumbrance", "total", "ORG1", "any")
	require.NoError(t, err)
	require.NoError(t, cache.Bump(ctx))
	after, err := cache.BuildKey(ctx, "encumbrance", "total", "ORG1", "any")
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
}

func TestCacheNilClientFallsThrough(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	key, err := cache.BuildKey(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "a:b", key)

	calls := 0
	loader := func(ctx context.Context) (interface{}, error) {
		calls++
		return map[string]int{"n": calls}, nil
	}
	var out map[string]int
	require.NoError(t, cache.FetchJSON(ctx, key, &out, loader))
	require.NoError(t, cache.FetchJSON(ctx, key, &out, loader))
	// Without a client every fetch recomputes.
	assert.Equal(t, 2, out["n"])
	assert.NoError(t, cache.Bump(ctx))
}
