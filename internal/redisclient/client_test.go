package redisclient

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	addr := os.Getenv("INTEGRATION_REDIS")
	if addr == "" {
		t.Skip("Integration test - requires redis")
	}
	c, err := NewClient(addr, "", 15)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestLockIsExclusiveAndOwned(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	key := "test-" + time.Now().Format("150405.000000")

	token, ok, err := c.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = c.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// a stale token must not release someone else's lock
	require.NoError(t, c.ReleaseLock(ctx, key, "not-the-owner"))
	_, ok, err = c.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.ReleaseLock(ctx, key, token))
	token, ok, err = c.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, c.ReleaseLock(ctx, key, token))
}

func TestIdempotencyKey(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	key := "test-" + time.Now().Format("150405.000000")

	seen, err := c.CheckIdempotencyKey(ctx, key)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, c.SetIdempotencyKey(ctx, key, "ORDER_1", time.Minute))
	seen, err = c.CheckIdempotencyKey(ctx, key)
	require.NoError(t, err)
	assert.True(t, seen)
}
