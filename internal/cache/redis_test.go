package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRedisEnv = "STOCKDATA_TEST_REDIS_ADDR"

func testCache(t *testing.T) (*RedisCache, *redis.Client) {
	t.Helper()
	addr := os.Getenv(testRedisEnv)
	if addr == "" {
		t.Skipf("%s not set", testRedisEnv)
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())
	return NewRedisCache(rdb, nil), rdb
}

func TestGetSet(t *testing.T) {
	c, rdb := testCache(t)
	ctx := context.Background()
	key := "TIME_SERIES_DAILY:TEST:compact"
	t.Cleanup(func() { rdb.Del(ctx, KeyPrefix+key) })

	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, key, []byte(`{"a":1}`), time.Minute))

	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, string(got))

	ttl, err := rdb.TTL(ctx, KeyPrefix+key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestSetZeroTTL(t *testing.T) {
	c, _ := testCache(t)
	ctx := context.Background()
	key := "TIME_SERIES_DAILY:NOTTL:compact"

	require.NoError(t, c.Set(ctx, key, []byte(`{}`), 0))
	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnreachable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()
	c := NewRedisCache(rdb, nil)

	ctx := context.Background()
	assert.Error(t, c.Ping(ctx))
	_, ok, err := c.Get(ctx, "k")
	assert.Error(t, err)
	assert.False(t, ok)
}
