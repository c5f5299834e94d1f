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

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

func TestRedisLocker_Exclusive(t *testing.T) {
	rdb, mr := newRedis(t)
	l := NewRedisLocker(rdb, 5*time.Second)
	l.wait = 100 * time.Millisecond
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "event:1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:event:1"))

	_, err = l.Lock(ctx, "event:1")
	assert.ErrorIs(t, err, ErrLockTimeout)

	other, err := l.Lock(ctx, "event:2")
	require.NoError(t, err)
	other()

	unlock()
	assert.False(t, mr.Exists("lock:event:1"))
	again, err := l.Lock(ctx, "event:1")
	require.NoError(t, err)
	again()
}

func TestRedisLocker_ExpiredLockIsNotReleasedByOldHolder(t *testing.T) {
	rdb, mr := newRedis(t)
	l := NewRedisLocker(rdb, time.Second)
	ctx := context.Background()

	stale, err := l.Lock(ctx, "place:3")
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := l.Lock(ctx, "place:3")
	require.NoError(t, err)
	stale()
	assert.True(t, mr.Exists("lock:place:3"))
	fresh()
	assert.False(t, mr.Exists("lock:place:3"))
}

func TestRedisLocker_ContextCancelled(t *testing.T) {
	rdb, _ := newRedis(t)
	l := NewRedisLocker(rdb, 5*time.Second)

	unlock, err := l.Lock(context.Background(), "event:1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "event:1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
