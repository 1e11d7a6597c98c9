package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRevocation(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))

	revoked, err := s.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, s.Revoke(ctx, "jti-1", time.Minute))
	revoked, err = s.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.True(t, mr.Exists("mygpt:revoked:jti-1"))

	mr.FastForward(2 * time.Minute)
	revoked, err = s.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, s.Revoke(ctx, "jti-2", 0))
	assert.False(t, mr.Exists("mygpt:revoked:jti-2"))
}

func TestFixedWindowLimiter(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	l := s.FixedWindowLimiter("chat", 3, time.Minute)
	base := time.Date(2026, 1, 1, 0, 0, 10, 0, time.UTC)
	l.now = func() time.Time { return base }

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "user:1")
		require.NoError(t, err)
		assert.True(t, ok, "hit %d", i)
	}
	ok, err := l.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.Allow(ctx, "user:2")
	require.NoError(t, err)
	assert.True(t, ok, "keys are independent")

	l.now = func() time.Time { return base.Add(time.Minute) }
	ok, err = l.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.True(t, ok, "next window resets")
}

func TestFixedWindowLimiter_RedisDown(t *testing.T) {
	s, mr := newTestStore(t)
	l := s.FixedWindowLimiter("chat", 3, time.Minute)
	mr.Close()

	ok, err := l.Allow(context.Background(), "user:1")
	assert.Error(t, err)
	assert.False(t, ok)
}
