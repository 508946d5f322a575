package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRateLimiterIsPerUser(t *testing.T) {
	ctx := context.Background()
	limiter := NewUserRateLimiter(nil, "test", 1, 2)

	for i := 0; i < 2; i++ {
		ok, err := limiter.AllowUser(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := limiter.AllowUser(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok, "burst exhausted")

	ok, err = limiter.AllowUser(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, ok, "bob has a separate bucket")

	assert.Same(t, limiter.GetUserLimiter("alice"), limiter.GetUserLimiter("alice"))
}

func TestTokenBucketWithoutRedis(t *testing.T) {
	l := NewTokenBucketRateLimiter(nil, "k", 1, 1)
	ok, err := l.Allow(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrRedisNotAvailable)
}
