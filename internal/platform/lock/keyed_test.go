package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lostfound/internal/apperr"
)

func TestAcquireSerializesSameKey(t *testing.T) {
	k := NewKeyed(time.Second)
	key := uuid.New()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := k.Acquire(context.Background(), key)
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, k.Len())
}

func TestAcquireTimesOutAsBusy(t *testing.T) {
	k := NewKeyed(20 * time.Millisecond)
	key := uuid.New()

	release, err := k.Acquire(context.Background(), key)
	require.NoError(t, err)
	defer release()

	_, err = k.Acquire(context.Background(), key)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrBusy)
}

func TestDistinctKeysDoNotBlock(t *testing.T) {
	k := NewKeyed(20 * time.Millisecond)

	r1, err := k.Acquire(context.Background(), uuid.New())
	require.NoError(t, err)
	r2, err := k.Acquire(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 2, k.Len())

	r1()
	r2()
	r2() // release is idempotent
	assert.Equal(t, 0, k.Len())
}

func TestAcquireHonoursCallerCancellation(t *testing.T) {
	k := NewKeyed(time.Second)
	key := uuid.New()
	release, err := k.Acquire(context.Background(), key)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = k.Acquire(ctx, key)
	assert.ErrorIs(t, err, context.Canceled)
}
