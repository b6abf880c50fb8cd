package services

import (
	"context"
	"testing"
	"time"

	"github.com/palletline/gatehouse/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStateCache tracks writes so cache interplay can be asserted.
type fakeStateCache struct {
	states map[string]bool
	reads  int
}

func newFakeStateCache() *fakeStateCache {
	return &fakeStateCache{states: make(map[string]bool)}
}

func (c *fakeStateCache) SetState(ctx context.Context, tokenID string, active bool) error {
	c.states[tokenID] = active
	return nil
}

func (c *fakeStateCache) GetState(ctx context.Context, tokenID string) (bool, bool, error) {
	c.reads++
	active, found := c.states[tokenID]
	return active, found, nil
}

func newSession(tokenID string) *models.Session {
	return &models.Session{
		TokenID:   tokenID,
		AccountID: testAcctID,
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func TestSessionStore_WritesThroughCache(t *testing.T) {
	cache := newFakeStateCache()
	store := NewSessionStore(newMemSessionRepo(), cache, discardLogger())

	require.NoError(t, store.Create(context.Background(), newSession("jti-1")))
	assert.True(t, cache.states["jti-1"])

	require.NoError(t, store.MarkInactive(context.Background(), "jti-1"))
	assert.False(t, cache.states["jti-1"])
}

func TestSessionStore_CacheHitSkipsRepo(t *testing.T) {
	cache := newFakeStateCache()
	repo := newMemSessionRepo()
	store := NewSessionStore(repo, cache, discardLogger())

	cache.states["jti-1"] = true

	// The repo has no such session; the cached answer is served as-is.
	active, err := store.IsActive(context.Background(), "jti-1")
	require.NoError(t, err)
	assert.True(t, active)
	assert.Equal(t, 1, cache.reads)
}

func TestSessionStore_CacheMissFallsThroughAndBackfills(t *testing.T) {
	cache := newFakeStateCache()
	repo := newMemSessionRepo()
	store := NewSessionStore(repo, cache, discardLogger())

	require.NoError(t, repo.Create(context.Background(), newSession("jti-1")))
	delete(cache.states, "jti-1")

	active, err := store.IsActive(context.Background(), "jti-1")
	require.NoError(t, err)
	assert.True(t, active)

	// Backfilled for the next read.
	cached, found := cache.states["jti-1"]
	assert.True(t, found)
	assert.True(t, cached)
}

func TestSessionStore_UnknownTokenIsInactive(t *testing.T) {
	store := NewSessionStore(newMemSessionRepo(), nil, discardLogger())

	active, err := store.IsActive(context.Background(), "never-issued")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestSessionStore_InvalidateAllUpdatesCache(t *testing.T) {
	cache := newFakeStateCache()
	store := NewSessionStore(newMemSessionRepo(), cache, discardLogger())

	require.NoError(t, store.Create(context.Background(), newSession("jti-1")))
	require.NoError(t, store.Create(context.Background(), newSession("jti-2")))

	revoked, err := store.InvalidateAll(context.Background(), testAcctID)
	require.NoError(t, err)
	assert.Equal(t, 2, revoked)
	assert.False(t, cache.states["jti-1"])
	assert.False(t, cache.states["jti-2"])
}
