package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentplexus/omnivoice-intake/faq"
)

func TestRegistry_PutIfAbsent(t *testing.T) {
	r := NewRegistry[int]()

	v, stored := r.PutIfAbsent("a", 1)
	assert.True(t, stored)
	assert.Equal(t, 1, v)

	v, stored = r.PutIfAbsent("a", 2)
	assert.False(t, stored)
	assert.Equal(t, 1, v)

	r.Put("b", 3)
	assert.Equal(t, []string{"a", "b"}, r.Keys())
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_DeleteOnlyOnce(t *testing.T) {
	r := NewRegistry[string]()
	r.Put("call-1", "session")

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := r.Delete("call-1"); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	_, ok := r.Get("call-1")
	assert.False(t, ok)
}

func TestRegistry_DeleteFunc(t *testing.T) {
	r := NewRegistry[int]()
	r.Put("a", 1)
	r.Put("b", 5)
	r.Put("c", 9)

	n := r.DeleteFunc(func(_ string, v int) bool { return v < 6 })
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"c"}, r.Keys())
	assert.Equal(t, 0, r.DeleteFunc(func(string, int) bool { return false }))
}

func testContext() *faq.Context {
	return &faq.Context{
		Greeting: "Hello from Elm Street",
		FAQs:     []faq.Entry{{Question: "what are your hours", Keywords: []string{"open"}, Answer: "9 to 5"}},
	}
}

func TestMemoryContextCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryContextCache()

	_, err := c.Get(ctx, "call-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.Put(ctx, "call-1", testContext()))
	got, err := c.Get(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, "Hello from Elm Street", got.Greeting)

	require.NoError(t, c.Delete(ctx, "call-1"))
	require.NoError(t, c.Delete(ctx, "call-1"))
	assert.Equal(t, 0, c.Len())

	assert.ErrorIs(t, c.Put(ctx, "", testContext()), ErrInvalidID)
}

func setupRedisCache(t *testing.T, opts ...RedisOption) (*RedisContextCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisContextCache(client, opts...), mr
}

func TestRedisContextCache_RoundTrip(t *testing.T) {
	cache, mr := setupRedisCache(t, WithPrefix("test"))
	ctx := context.Background()

	require.NoError(t, cache.Ping(ctx))
	require.NoError(t, cache.Put(ctx, "call-1", testContext()))
	assert.True(t, mr.Exists("test:context:call-1"))

	got, err := cache.Get(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, testContext(), got)

	require.NoError(t, cache.Delete(ctx, "call-1"))
	_, err = cache.Get(ctx, "call-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisContextCache_TTL(t *testing.T) {
	cache, mr := setupRedisCache(t, WithTTL(time.Minute))
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "call-1", testContext()))
	assert.Equal(t, time.Minute, mr.TTL("intake:context:call-1"))

	mr.FastForward(2 * time.Minute)
	_, err := cache.Get(ctx, "call-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisContextCache_InvalidID(t *testing.T) {
	cache, _ := setupRedisCache(t)
	_, err := cache.Get(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestNewRedisContextCacheFromURL(t *testing.T) {
	mr := miniredis.RunT(t)
	cache, err := NewRedisContextCacheFromURL("redis://" + mr.Addr())
	require.NoError(t, err)
	defer func() { _ = cache.Close() }()
	require.NoError(t, cache.Ping(context.Background()))

	_, err = NewRedisContextCacheFromURL("::not a url")
	assert.Error(t, err)
}
