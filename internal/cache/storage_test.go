package cache

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEntry(body string) Entry {
	return Entry{
		Method: http.MethodGet,
		URL:    "http://app.local/" + body,
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"text/plain"}},
		Body:   []byte(body),
	}
}

type backend struct {
	name string
	open func(t *testing.T) Storage
}

func backends() []backend {
	return []backend{
		{name: "memory", open: func(t *testing.T) Storage { return NewMemoryStorage() }},
		{name: "leveldb", open: func(t *testing.T) Storage {
			s, err := OpenLevelDB(filepath.Join(t.TempDir(), "cache"))
			require.NoError(t, err)
			return s
		}},
		{name: "redis", open: func(t *testing.T) Storage {
			addr := os.Getenv("REDIS_ADDR")
			if addr == "" {
				addr = miniredis.RunT(t).Addr()
			}
			s, err := NewRedisStorage(context.Background(), RedisOptions{Addr: addr, Prefix: "go_pantry_test:" + t.Name() + ":"})
			require.NoError(t, err)
			return s
		}},
	}
}

func TestStorage_PutMatchDelete(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			st := b.open(t)
			defer st.Close()

			s, err := st.Open(ctx, "runtime-pages")
			require.NoError(t, err)
			assert.Equal(t, "runtime-pages", s.Name())

			_, ok, err := s.Match(ctx, "GET http://app.local/a")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Put(ctx, "GET http://app.local/a", newEntry("a")))
			got, ok, err := s.Match(ctx, "GET http://app.local/a")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, []byte("a"), got.Body)
			assert.Equal(t, http.StatusOK, got.Status)
			assert.Equal(t, "text/plain", got.Header.Get("Content-Type"))
			assert.NotZero(t, got.StoredAt)

			n, err := Len(ctx, s)
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			removed, err := s.Delete(ctx, "GET http://app.local/a")
			require.NoError(t, err)
			assert.True(t, removed)
			removed, err = s.Delete(ctx, "GET http://app.local/a")
			require.NoError(t, err)
			assert.False(t, removed)

			_, ok, err = s.Match(ctx, "GET http://app.local/a")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStorage_NamesAndDelete(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			st := b.open(t)
			defer st.Close()

			for _, name := range []string{"precache-b", "precache-a", "images"} {
				s, err := st.Open(ctx, name)
				require.NoError(t, err)
				require.NoError(t, s.Put(ctx, "k", newEntry(name)))
			}

			names, err := st.Names(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"images", "precache-a", "precache-b"}, names)

			ok, err := st.Delete(ctx, "precache-a")
			require.NoError(t, err)
			assert.True(t, ok)

			has, err := st.Has(ctx, "precache-a")
			require.NoError(t, err)
			assert.False(t, has)

			// reopening a deleted store yields an empty one
			s, err := st.Open(ctx, "precache-a")
			require.NoError(t, err)
			_, found, err := s.Match(ctx, "k")
			require.NoError(t, err)
			assert.False(t, found)

			other, err := st.Open(ctx, "precache-b")
			require.NoError(t, err)
			_, found, err = other.Match(ctx, "k")
			require.NoError(t, err)
			assert.True(t, found)
		})
	}
}

func TestStorage_InvalidName(t *testing.T) {
	st := NewMemoryStorage()
	_, err := st.Open(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestStorage_ConcurrentWritersLastWriteWins(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			st := b.open(t)
			defer st.Close()
			s, err := st.Open(ctx, "race")
			require.NoError(t, err)

			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_ = s.Put(ctx, "k", newEntry(string(rune('a'+i))))
					_, _, _ = s.Match(ctx, "k")
				}(i)
			}
			wg.Wait()

			got, ok, err := s.Match(ctx, "k")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Len(t, got.Body, 1)
			keys, err := Keys(ctx, s)
			require.NoError(t, err)
			assert.Equal(t, []string{"k"}, keys)
		})
	}
}

func TestLevelDB_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache")

	st, err := OpenLevelDB(path)
	require.NoError(t, err)
	s, err := st.Open(ctx, "precache-0123")
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "GET http://app.local/", newEntry("index")))
	require.NoError(t, st.Close())

	st, err = OpenLevelDB(path)
	require.NoError(t, err)
	defer st.Close()
	names, err := st.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"precache-0123"}, names)

	s, err = st.Open(ctx, "precache-0123")
	require.NoError(t, err)
	got, ok, err := s.Match(ctx, "GET http://app.local/")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "index", string(got.Body))
}

func TestLevelDB_ClosedReturnsErrClosed(t *testing.T) {
	st, err := OpenLevelDB(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	s, err := st.Open(context.Background(), "pages")
	require.NoError(t, err)
	require.NoError(t, st.Close())

	_, _, err = s.Match(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRequestKey(t *testing.T) {
	tests := []struct {
		name         string
		method       string
		raw          string
		ignoreSearch bool
		want         string
	}{
		{name: "drops fragment", method: "GET", raw: "http://App.Local/a?x=1#top", want: "GET http://app.local/a?x=1"},
		{name: "ignore search", method: "get", raw: "http://app.local/a?x=1", ignoreSearch: true, want: "GET http://app.local/a"},
		{name: "default method", raw: "http://app.local/", want: "GET http://app.local/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, RequestKey(tt.method, u, tt.ignoreSearch))
		})
	}
}

func TestEntryAge(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e := Entry{StoredAt: now.Add(-time.Minute).UnixNano()}
	assert.Equal(t, time.Minute, e.Age(now))
}

func TestNewStorageFromConfig(t *testing.T) {
	ctx := context.Background()

	st, err := NewStorageFromConfig(ctx, StorageConfig{Backend: BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStorage{}, st)

	st, err = NewStorageFromConfig(ctx, StorageConfig{Backend: BackendLevelDB, Path: filepath.Join(t.TempDir(), "db")})
	require.NoError(t, err)
	assert.IsType(t, &LevelDBStorage{}, st)
	require.NoError(t, st.Close())

	_, err = NewStorageFromConfig(ctx, StorageConfig{Backend: "cassandra"})
	assert.Error(t, err)
}

func TestStorage_PutDropsSetCookie(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			st := b.open(t)
			defer st.Close()

			s, err := st.Open(ctx, "pages")
			require.NoError(t, err)

			ent := newEntry("dashboard")
			ent.Header.Set("Set-Cookie", "sb-access-token=USER_A; Path=/")
			ent.Header.Set("Set-Cookie2", "legacy=1")
			require.NoError(t, s.Put(ctx, "GET http://app.local/dashboard", ent))

			got, ok, err := s.Match(ctx, "GET http://app.local/dashboard")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Empty(t, got.Header.Values("Set-Cookie"))
			assert.Empty(t, got.Header.Values("Set-Cookie2"))
			assert.Equal(t, "text/plain", got.Header.Get("Content-Type"))
			// the caller's entry is left alone
			assert.Equal(t, "sb-access-token=USER_A; Path=/", ent.Header.Get("Set-Cookie"))
		})
	}
}
