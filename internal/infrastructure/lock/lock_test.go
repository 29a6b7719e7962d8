package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-approval/pkg/utils"
)

func TestLocalLocker_MutualExclusion(t *testing.T) {
	locker := NewLocalLocker()
	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), 1)
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Zero(t, locker.held(), "entries should be dropped once released")
}

func TestLocalLocker_DifferentClaimsDoNotBlock(t *testing.T) {
	locker := NewLocalLocker()

	unlockA, err := locker.Lock(context.Background(), 1)
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := locker.Lock(ctx, 2)
	require.NoError(t, err)
	unlockB()
}

func TestLocalLocker_ContextCancelled(t *testing.T) {
	locker := NewLocalLocker()

	unlock, err := locker.Lock(context.Background(), 7)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, 7)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // idempotent
	assert.Zero(t, locker.held())

	again, err := locker.Lock(context.Background(), 7)
	require.NoError(t, err)
	again()
}

func TestRedisLocker_Key(t *testing.T) {
	locker := NewRedisLocker(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), RedisConfig{KeyPrefix: "test:"}, utils.NewKVLogger(nil))
	assert.Equal(t, "test:42", locker.Key(42))
}

func TestRedisLocker_Defaults(t *testing.T) {
	locker := NewRedisLocker(nil, RedisConfig{}, utils.NewKVLogger(nil))
	assert.Equal(t, "expense:claim-lock:", locker.cfg.KeyPrefix)
	assert.Equal(t, 30*time.Second, locker.cfg.TTL)
	assert.Equal(t, 10*time.Second, locker.cfg.WaitTimeout)
	assert.Positive(t, locker.cfg.RetryBackoff)
}

func TestRedisLocker_UnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	locker := NewRedisLocker(client, RedisConfig{}, utils.NewKVLogger(nil))
	_, err := locker.Lock(context.Background(), 1)
	assert.Error(t, err)
}
