package common

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *RedisClient {
	s := miniredis.RunT(t)
	rdb, err := NewRedisClient(types.RedisConfig{
		Addrs: []string{s.Addr()},
		Mode:  types.RedisModeSingle,
	}, WithClientName("test"))
	require.NoError(t, err)
	return rdb
}

func TestRedisLockExclusive(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	key := Keys.TokenRefreshLock(types.ProviderGoogle, "user-1")

	first := NewRedisLock(rdb)
	second := NewRedisLock(rdb)

	require.NoError(t, first.Acquire(ctx, key, RedisLockOptions{TtlS: 10}))
	err := second.Acquire(ctx, key, RedisLockOptions{TtlS: 10, Retries: 1})
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	require.NoError(t, first.Release(key))
	require.NoError(t, second.Acquire(ctx, key, RedisLockOptions{TtlS: 10}))
	require.NoError(t, second.Release(key))

	// Releasing an unknown key is a no-op
	assert.NoError(t, second.Release("missing"))
}

func TestNewRedisClientRequiresAddrs(t *testing.T) {
	_, err := NewRedisClient(types.RedisConfig{})
	assert.Error(t, err)
}
