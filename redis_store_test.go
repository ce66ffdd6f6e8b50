package spacetraveling

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T, retention time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(RedisOptions{Addr: mr.Addr(), Retention: retention})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	s, mr := newTestRedisStore(t, 0)
	ctx := context.Background()
	generated := time.Date(2021, time.March, 15, 19, 25, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, "/post/hello", Page{Body: []byte("<p>oi</p>"), ContentType: "text/html", GeneratedAt: generated}))
	assert.True(t, mr.Exists(redisKeyPrefix+"/post/hello"))

	got, ok, err := s.Load(ctx, "/post/hello")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "<p>oi</p>", string(got.Body))
	assert.Equal(t, "text/html", got.ContentType)
	assert.True(t, got.GeneratedAt.Equal(generated))

	require.NoError(t, s.Delete(ctx, "/post/hello"))
	_, ok, err = s.Load(ctx, "/post/hello")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreRetentionExpiresSnapshots(t *testing.T) {
	s, mr := newTestRedisStore(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "/", Page{Body: []byte("home"), ContentType: "text/html", GeneratedAt: time.Now()}))
	assert.Equal(t, time.Hour, mr.TTL(redisKeyPrefix+"/"))

	mr.FastForward(2 * time.Hour)
	_, ok, err := s.Load(ctx, "/")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreCorruptSnapshot(t *testing.T) {
	s, mr := newTestRedisStore(t, 0)
	require.NoError(t, mr.Set(redisKeyPrefix+"/", "not json"))

	_, _, err := s.Load(context.Background(), "/")
	assert.Error(t, err)
}

func TestNewRedisStoreUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisStore(RedisOptions{Addr: addr})
	assert.Error(t, err)
}

func TestPageCacheWarmsFromSnapshotStore(t *testing.T) {
	store, _ := newTestRedisStore(t, 0)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "/", Page{Body: []byte("from redis"), ContentType: "text/html", GeneratedAt: time.Now()}))

	cache := NewPageCache(store, time.Second, nil, nil)
	assert.True(t, cache.Peek(ctx, "/"))

	page, state, err := cache.Get(ctx, "/", time.Hour, func(context.Context) (Page, error) {
		t.Fatal("render should not run for a fresh snapshot")
		return Page{}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateHit, state)
	assert.Equal(t, "from redis", string(page.Body))
}

func TestRedisStoreKeys(t *testing.T) {
	s, mr := newTestRedisStore(t, 0)
	ctx := context.Background()
	require.NoError(t, mr.Set("unrelated", "x"))
	for _, key := range []string{"/post/b", "/", "/post/a"} {
		require.NoError(t, s.Save(ctx, key, Page{Body: []byte(key), GeneratedAt: time.Now()}))
	}

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/", "/post/a", "/post/b"}, keys)
}
