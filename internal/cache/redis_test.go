package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniRedisStorage(t *testing.T) *RedisStorage {
	t.Helper()
	mr := miniredis.RunT(t)
	st := NewRedisStorageWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestRedisStore_TouchSkipsDeletedEntry(t *testing.T) {
	ctx := context.Background()
	st := newMiniRedisStorage(t)
	s, err := st.Open(ctx, "pages")
	require.NoError(t, err)
	rs := s.(*redisStore)

	key := "GET http://app.local/dashboard"
	require.NoError(t, s.Put(ctx, key, newEntry("dashboard")))
	mb, err := encodeGob(Meta{Key: key, LastAccess: 1})
	require.NoError(t, err)

	touched, err := rs.touch(ctx, key, mb)
	require.NoError(t, err)
	assert.True(t, touched)

	removed, err := s.Delete(ctx, key)
	require.NoError(t, err)
	require.True(t, removed)

	// a Match that read the entry before the delete must not leave meta behind
	touched, err = rs.touch(ctx, key, mb)
	require.NoError(t, err)
	assert.False(t, touched)

	metas, err := s.Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, metas)
}

func TestRedisStore_MatchRefreshesLastAccess(t *testing.T) {
	ctx := context.Background()
	st := newMiniRedisStorage(t)
	s, err := st.Open(ctx, "pages")
	require.NoError(t, err)

	key := "GET http://app.local/a"
	require.NoError(t, s.Put(ctx, key, newEntry("a")))
	before, err := s.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, before, 1)

	_, ok, err := s.Match(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)

	after, err := s.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.GreaterOrEqual(t, after[0].LastAccess, before[0].LastAccess)
}

func TestRedisStorage_ClosedClient(t *testing.T) {
	ctx := context.Background()
	st := newMiniRedisStorage(t)
	require.NoError(t, st.Close())

	_, err := st.Names(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}
