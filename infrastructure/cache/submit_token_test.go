package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySubmitToken_SingleUse(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySubmitToken(2 * time.Hour)

	tok, err := store.Issue(ctx, "session-a")
	require.NoError(t, err)

	ok, err := store.Consume(ctx, "session-b", tok)
	require.NoError(t, err)
	assert.False(t, ok, "tokens are scoped to their session")

	ok, err = store.Consume(ctx, "session-a", tok)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Consume(ctx, "session-a", tok)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, _ = store.Consume(ctx, "session-a", "never-issued")
	assert.False(t, ok)
	ok, _ = store.Consume(ctx, "session-a", "")
	assert.False(t, ok)
}

func TestMemorySubmitToken_Expires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	store := NewMemorySubmitToken(2 * time.Hour)
	store.now = func() time.Time { return now }

	tok, err := store.Issue(ctx, "s")
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	ok, err := store.Consume(ctx, "s", tok)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, store.tokens)
}

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisSubmitToken, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSubmitToken(client, ttl), mr
}

func TestMemorySubmitToken_IssueFreesAbandonedSessions(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemorySubmitToken(time.Hour)
	store.now = func() time.Time { return now }

	_, err := store.Issue(ctx, "abandoned")
	require.NoError(t, err)
	live, err := store.Issue(ctx, "active")
	require.NoError(t, err)

	now = now.Add(30 * time.Minute)
	_, err = store.Issue(ctx, "active")
	require.NoError(t, err)
	assert.Contains(t, store.tokens, "abandoned")

	now = now.Add(31 * time.Minute)
	_, err = store.Issue(ctx, "other")
	require.NoError(t, err)
	assert.NotContains(t, store.tokens, "abandoned")
	assert.NotContains(t, store.tokens["active"], live)
	assert.Len(t, store.tokens["active"], 1)
}

func TestRedisSubmitToken_SingleUse(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t, 2*time.Hour)

	tok, err := store.Issue(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, mr.Exists(submitTokenKey("s1", tok)))
	assert.Equal(t, 2*time.Hour, mr.TTL(submitTokenKey("s1", tok)))

	ok, err := store.Consume(ctx, "s1", tok)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Consume(ctx, "s1", tok)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisSubmitToken_Expires(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t, time.Minute)

	tok, err := store.Issue(ctx, "s1")
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	ok, err := store.Consume(ctx, "s1", tok)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisSubmitToken_ConnectionError(t *testing.T) {
	store, mr := newRedisStore(t, time.Minute)
	mr.Close()

	_, err := store.Issue(context.Background(), "s1")
	assert.Error(t, err)
}

func TestNewCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewCache(context.Background(), mr.Addr(), "", "")
	require.NoError(t, err)
	require.NotNil(t, client)
	_ = client.Close()
}
