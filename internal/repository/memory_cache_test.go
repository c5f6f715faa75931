package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/learnledger/editor-api/pkg/errors"
)

func TestMemoryCacheGetWithinTTL(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "course:detail:7", map[string]int{"id": 7}, 30*time.Second))

	var got map[string]int
	require.NoError(t, cache.Get(ctx, "course:detail:7", &got))
	assert.Equal(t, 7, got["id"])
}

func TestMemoryCacheExpiresAfterTTL(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	base := time.Now()
	cache.now = func() time.Time { return base }
	require.NoError(t, cache.Set(ctx, "course:detail:7", 1, 30*time.Second))

	cache.now = func() time.Time { return base.Add(31 * time.Second) }

	var got int
	err := cache.Get(ctx, "course:detail:7", &got)
	require.ErrorIs(t, err, appErrors.ErrCacheMiss)
}

func TestMemoryCacheMissForUnknownKey(t *testing.T) {
	cache := NewMemoryCache()
	var got int
	err := cache.Get(context.Background(), "nope", &got)
	require.ErrorIs(t, err, appErrors.ErrCacheMiss)
}

func TestMemoryCacheDeleteByPattern(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "course:detail:7", 1, time.Minute))
	require.NoError(t, cache.Set(ctx, "course:sections:7", 2, time.Minute))
	require.NoError(t, cache.Set(ctx, "license:0xabc:7", 3, time.Minute))

	require.NoError(t, cache.DeleteByPattern(ctx, "course:*:7"))

	var got int
	require.ErrorIs(t, cache.Get(ctx, "course:detail:7", &got), appErrors.ErrCacheMiss)
	require.ErrorIs(t, cache.Get(ctx, "course:sections:7", &got), appErrors.ErrCacheMiss)
	require.NoError(t, cache.Get(ctx, "license:0xabc:7", &got))
	assert.Equal(t, 3, got)
}
