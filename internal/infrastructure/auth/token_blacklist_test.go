package auth

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryTokenBlacklist(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := NewInMemoryTokenBlacklist()
	b.now = func() time.Time { return now }

	t.Run("revoked token until ttl elapses", func(t *testing.T) {
		require.NoError(t, b.Revoke(ctx, "jti-1", time.Minute))

		revoked, err := b.IsRevoked(ctx, "jti-1")
		require.NoError(t, err)
		assert.True(t, revoked)

		revoked, err = b.IsRevoked(ctx, "jti-2")
		require.NoError(t, err)
		assert.False(t, revoked)

		now = now.Add(2 * time.Minute)
		revoked, err = b.IsRevoked(ctx, "jti-1")
		require.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("user revocation cuts off earlier tokens only", func(t *testing.T) {
		issuedBefore := now.Add(-time.Hour)
		require.NoError(t, b.RevokeUser(ctx, "user-1", time.Hour))

		revoked, err := b.IsUserRevoked(ctx, "user-1", issuedBefore)
		require.NoError(t, err)
		assert.True(t, revoked)

		revoked, err = b.IsUserRevoked(ctx, "user-1", now.Add(time.Second))
		require.NoError(t, err)
		assert.False(t, revoked)

		revoked, err = b.IsUserRevoked(ctx, "user-2", issuedBefore)
		require.NoError(t, err)
		assert.False(t, revoked)
	})
}

func TestRedisTokenBlacklist(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	b := NewRedisTokenBlacklist(client)
	b.prefix = "test:" + uuid.NewString() + ":"

	jti := uuid.NewString()
	require.NoError(t, b.Revoke(ctx, jti, time.Minute))
	revoked, err := b.IsRevoked(ctx, jti)
	require.NoError(t, err)
	assert.True(t, revoked)

	require.NoError(t, b.RevokeUser(ctx, "user-9", time.Minute))
	revoked, err = b.IsUserRevoked(ctx, "user-9", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = b.IsUserRevoked(ctx, "user-10", time.Now())
	require.NoError(t, err)
	assert.False(t, revoked)
}
