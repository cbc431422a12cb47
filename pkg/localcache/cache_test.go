package localcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCacheContract exercises the behavior every backend must share
func runCacheContract(t *testing.T, cache Cache) {
	ctx := context.Background()

	t.Run("missing key returns ErrNotFound", func(t *testing.T) {
		_, err := cache.Get(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, "azure_ad_client_id", "abc123"))
		got, err := cache.Get(ctx, "azure_ad_client_id")
		require.NoError(t, err)
		assert.Equal(t, "abc123", got)
	})

	t.Run("overwrite is last-write-wins", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, "azure_ad_tenant", "contoso"))
		require.NoError(t, cache.Set(ctx, "azure_ad_tenant", "fabrikam"))
		got, err := cache.Get(ctx, "azure_ad_tenant")
		require.NoError(t, err)
		assert.Equal(t, "fabrikam", got)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, "tmp", "v"))
		require.NoError(t, cache.Delete(ctx, "tmp"))
		_, err := cache.Get(ctx, "tmp")
		assert.ErrorIs(t, err, ErrNotFound)

		// deleting again is not an error
		assert.NoError(t, cache.Delete(ctx, "tmp"))
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, cache.Ping(ctx))
	})
}

func TestMemoryCache(t *testing.T) {
	cache := NewMemoryCache()
	defer cache.Close()
	runCacheContract(t, cache)
}

func TestSQLiteCache(t *testing.T) {
	cache, err := NewSQLiteCache(":memory:")
	require.NoError(t, err)
	defer cache.Close()
	runCacheContract(t, cache)
}
