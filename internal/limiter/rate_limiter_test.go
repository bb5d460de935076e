package limiter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalRateLimiterBurst(t *testing.T) {
	l := NewLocalRateLimiter(1, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := l.Allow(ctx, "page-1")
		require.NoError(t, err)
		assert.True(t, allowed, "call %d should fit in the burst", i+1)
	}

	allowed, err := l.Allow(ctx, "page-1")
	require.NoError(t, err)
	assert.False(t, allowed, "burst exhausted")
}

func TestLocalRateLimiterKeysAreIndependent(t *testing.T) {
	l := NewLocalRateLimiter(1, 1)
	ctx := context.Background()

	allowed, err := l.Allow(ctx, "page-1")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = l.Allow(ctx, "page-1")
	require.NoError(t, err)
	require.False(t, allowed)

	allowed, err = l.Allow(ctx, "page-2")
	require.NoError(t, err)
	assert.True(t, allowed, "a throttled page must not affect others")
}

func TestLocalRateLimiterSetLimit(t *testing.T) {
	l := NewLocalRateLimiter(1, 1)
	ctx := context.Background()

	require.NoError(t, l.SetLimit(ctx, "page-1", 10, 5))

	for i := 0; i < 5; i++ {
		allowed, err := l.Allow(ctx, "page-1")
		require.NoError(t, err)
		assert.True(t, allowed, "call %d should fit in the raised burst", i+1)
	}
}
