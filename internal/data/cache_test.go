package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCacheClient tests the Redis-backed cache round trip
func TestCacheClient(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	cache := NewCacheClient(client)
	ctx := context.Background()

	type snapshot struct {
		TotalValue float64 `json:"total_value"`
	}

	t.Run("set and get", func(t *testing.T) {
		err := cache.Set(ctx, "balance:latest", snapshot{TotalValue: 10432.5}, TTLBalance)
		require.NoError(t, err)

		var got snapshot
		err = cache.Get(ctx, "balance:latest", &got)
		assert.NoError(t, err)
		assert.Equal(t, 10432.5, got.TotalValue)

		// TTL is applied
		assert.Greater(t, mr.TTL("balance:latest"), time.Duration(0))
	})

	t.Run("missing key", func(t *testing.T) {
		var got snapshot
		err := cache.Get(ctx, "balance:missing", &got)
		assert.ErrorIs(t, err, ErrCacheNotFound)
	})

	t.Run("corrupt payload", func(t *testing.T) {
		mr.Set("balance:corrupt", "not-json")

		var got snapshot
		err := cache.Get(ctx, "balance:corrupt", &got)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrCacheNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, "session:state", snapshot{}, TTLSession))
		require.NoError(t, cache.Delete(ctx, "session:state"))

		exists, err := cache.Exists(ctx, "session:state")
		assert.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("exists", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, "breaker:active", "halted", time.Minute))

		exists, err := cache.Exists(ctx, "breaker:active")
		assert.NoError(t, err)
		assert.True(t, exists)
	})
}

// TestCacheClient_NilRedis tests graceful failure without a Redis connection
func TestCacheClient_NilRedis(t *testing.T) {
	cache := NewCacheClient(nil)
	ctx := context.Background()

	var dest string
	assert.Error(t, cache.Get(ctx, "k", &dest))
	assert.Error(t, cache.Set(ctx, "k", "v", time.Minute))
	assert.Error(t, cache.Delete(ctx, "k"))

	_, err := cache.Exists(ctx, "k")
	assert.Error(t, err)
}

// TestBuildCacheKey tests key construction
func TestBuildCacheKey(t *testing.T) {
	assert.Equal(t, "balance:latest", BuildCacheKey(CacheKeyBalance, "latest"))
	assert.Equal(t, "breaker:active", BuildCacheKey(CacheKeyBreaker, "active"))
	assert.Equal(t, "session", BuildCacheKey(CacheKeySession))
}
