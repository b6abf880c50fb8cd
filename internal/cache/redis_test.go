package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *SessionCache {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewSessionCache(mr.Addr(), "", 0, 30*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSessionCache_MissThenHit(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_, found, err := c.GetState(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.SetState(ctx, "jti-1", true))

	active, found, err := c.GetState(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, active)
}

func TestSessionCache_RevokedOverwritesActive(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetState(ctx, "jti-2", true))
	require.NoError(t, c.SetState(ctx, "jti-2", false))

	active, found, err := c.GetState(ctx, "jti-2")
	require.NoError(t, err)
	assert.True(t, found)
	assert.False(t, active)
}
