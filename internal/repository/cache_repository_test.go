package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/assessment-window-api/pkg/errors"
)

func newMiniredisCache(t *testing.T) (*CacheRepository, *miniredis.Miniredis) {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheRepository(client, "awe", nil), server
}

func TestCacheRepositoryRoundTripUsesPrefix(t *testing.T) {
	repo, server := newMiniredisCache(t)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "incomplete:system", map[string]int{"total": 4}, time.Minute))
	assert.True(t, server.Exists("awe:incomplete:system"))

	var out map[string]int
	require.NoError(t, repo.Get(ctx, "incomplete:system", &out))
	assert.Equal(t, 4, out["total"])

	server.FastForward(2 * time.Minute)
	assert.ErrorIs(t, repo.Get(ctx, "incomplete:system", &out), appErrors.ErrCacheMiss)
}

func TestCacheRepositoryDeleteByPattern(t *testing.T) {
	repo, server := newMiniredisCache(t)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "incomplete:student:1", 1, time.Minute))
	require.NoError(t, repo.Set(ctx, "incomplete:student:2", 2, time.Minute))
	require.NoError(t, repo.Set(ctx, "other", 3, time.Minute))

	require.NoError(t, repo.DeleteByPattern(ctx, "incomplete:*"))
	assert.False(t, server.Exists("awe:incomplete:student:1"))
	assert.False(t, server.Exists("awe:incomplete:student:2"))
	assert.True(t, server.Exists("awe:other"))
}

func TestCacheRepositoryCorruptEntryIsMiss(t *testing.T) {
	repo, server := newMiniredisCache(t)
	require.NoError(t, server.Set("awe:bad", "{not json"))

	var out map[string]int
	assert.ErrorIs(t, repo.Get(context.Background(), "bad", &out), appErrors.ErrCacheMiss)
	assert.False(t, server.Exists("awe:bad"))
}

func TestCacheRepositoryNilClient(t *testing.T) {
	repo := NewCacheRepository(nil, "", nil)
	var out int
	assert.ErrorIs(t, repo.Get(context.Background(), "k", &out), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(context.Background(), "k", 1, time.Minute))
}
