package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker_SerializesSameKey(t *testing.T) {
	l := NewLocalLocker()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Lock(context.Background(), StudentKey("S-1"))
			if !assert.NoError(t, err) {
				return
			}
			defer release()

			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Zero(t, l.size())
}

func TestLocalLocker_DifferentKeysDoNotBlock(t *testing.T) {
	l := NewLocalLocker()

	releaseA, err := l.Lock(context.Background(), StudentKey("A"))
	require.NoError(t, err)
	defer releaseA()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	releaseB, err := l.Lock(ctx, StudentKey("B"))
	require.NoError(t, err)
	releaseB()
}

func TestLocalLocker_Timeout(t *testing.T) {
	l := NewLocalLocker()

	release, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, ErrLockTimeout)

	release()
	release()
	assert.Zero(t, l.size())

	_, err = l.Lock(context.Background(), "")
	assert.ErrorIs(t, err, ErrLockKeyEmpty)
}

func TestRedisLocker_NilClient(t *testing.T) {
	assert.Nil(t, NewRedisLocker(nil, time.Second))

	var l *RedisLocker
	_, _, err := l.TryLock(context.Background(), "k")
	assert.Error(t, err)
	assert.NoError(t, l.Release(context.Background(), "k", "t"))
}
