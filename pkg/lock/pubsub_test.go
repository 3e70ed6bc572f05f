package lock_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yashrajoria/commerce-core/pkg/lock"
)

func TestPubSubLock_NoWaitFailsImmediately(t *testing.T) {
	l := lock.NewPubSubLock(lock.NewMemoryKeyStore(), nil)
	_, ok, err := l.AcquireExtended(context.Background(), "k", lock.AcquireOptions{TTL: time.Minute})
	require.NoError(t, err)
	require.True(t, ok)

	start := time.Now()
	_, ok, err = l.AcquireExtended(context.Background(), "k", lock.AcquireOptions{TTL: time.Minute})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestPubSubLock_WaitTimesOut(t *testing.T) {
	l := lock.NewPubSubLock(lock.NewMemoryKeyStore(), nil, lock.WithRecheckInterval(20*time.Millisecond))
	_, ok, err := l.AcquireExtended(context.Background(), "k", lock.AcquireOptions{TTL: time.Minute})
	require.NoError(t, err)
	require.True(t, ok)

	start := time.Now()
	_, ok, err = l.AcquireExtended(context.Background(), "k", lock.AcquireOptions{
		TTL:         time.Minute,
		WaitTimeout: 150 * time.Millisecond,
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestPubSubLock_ReleaseWakesWaiter(t *testing.T) {
	// A long recheck interval proves the wake-up came from the notification.
	l := lock.NewPubSubLock(lock.NewMemoryKeyStore(), nil, lock.WithRecheckInterval(10*time.Second))
	holder, ok, err := l.AcquireExtended(context.Background(), "k", lock.AcquireOptions{TTL: time.Minute})
	require.NoError(t, err)
	require.True(t, ok)

	type result struct {
		ok      bool
		err     error
		elapsed time.Duration
	}
	done := make(chan result, 1)
	start := time.Now()
	go func() {
		_, ok, err := l.AcquireExtended(context.Background(), "k", lock.AcquireOptions{
			TTL:         time.Minute,
			WaitTimeout: 5 * time.Second,
		})
		done <- result{ok: ok, err: err, elapsed: time.Since(start)}
	}()

	time.Sleep(100 * time.Millisecond)
	released, err := l.Release(context.Background(), "k", holder.Token)
	require.NoError(t, err)
	require.True(t, released)

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.True(t, r.ok)
		assert.Less(t, r.elapsed, time.Second)
	case <-time.After(3 * time.Second):
		t.Fatal("waiter was not woken by release")
	}
}

func TestPubSubLock_WaiterTakesOverExpiredLease(t *testing.T) {
	l := lock.NewPubSubLock(lock.NewMemoryKeyStore(), nil, lock.WithRecheckInterval(20*time.Millisecond))
	_, ok, err := l.AcquireExtended(context.Background(), "k", lock.AcquireOptions{TTL: 80 * time.Millisecond})
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.AcquireExtended(context.Background(), "k", lock.AcquireOptions{
		TTL:         time.Minute,
		WaitTimeout: time.Second,
	})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPubSubLock_CancelledWaitReturnsContextError(t *testing.T) {
	l := lock.NewPubSubLock(lock.NewMemoryKeyStore(), nil)
	_, ok, err := l.AcquireExtended(context.Background(), "k", lock.AcquireOptions{TTL: time.Minute})
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, ok, err = l.AcquireExtended(ctx, "k", lock.AcquireOptions{TTL: time.Minute, WaitTimeout: 5 * time.Second})

	assert.False(t, ok)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPubSubLock_AutoExtendOutlivesTTL(t *testing.T) {
	store := lock.NewMemoryKeyStore()
	l := lock.NewPubSubLock(store, nil)

	err := l.WithLockExtended(context.Background(), "k", lock.AcquireOptions{
		TTL:        time.Second,
		AutoExtend: true,
	}, func(ctx context.Context) error {
		time.Sleep(1500 * time.Millisecond)
		_, held := store.Get("k")
		assert.True(t, held, "lease must still be held after outliving its ttl")
		return nil
	})
	require.NoError(t, err)

	_, held := store.Get("k")
	assert.False(t, held)
}

func TestPubSubLock_WithoutAutoExtendLeaseExpires(t *testing.T) {
	store := lock.NewMemoryKeyStore()
	l := lock.NewPubSubLock(store, nil)

	err := l.WithLockExtended(context.Background(), "k", lock.AcquireOptions{TTL: 50 * time.Millisecond}, func(ctx context.Context) error {
		time.Sleep(100 * time.Millisecond)
		_, held := store.Get("k")
		assert.False(t, held)
		return nil
	})
	assert.NoError(t, err)
}

func TestPubSubLock_WaitersRunOneAtATime(t *testing.T) {
	l := lock.NewPubSubLock(lock.NewMemoryKeyStore(), nil, lock.WithRecheckInterval(50*time.Millisecond))

	const workers = 10
	var inside, maxInside, completed int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLockExtended(context.Background(), "coupon:1", lock.AcquireOptions{
				TTL:         time.Second,
				WaitTimeout: 5 * time.Second,
			}, func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				atomic.AddInt32(&completed, 1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, int32(workers), completed)
}

func TestPubSubLock_WithLockExtendedPropagatesError(t *testing.T) {
	store := lock.NewMemoryKeyStore()
	l := lock.NewPubSubLock(store, nil)
	boom := errors.New("boom")

	err := l.WithLockExtended(context.Background(), "k", lock.AcquireOptions{TTL: time.Minute}, func(ctx context.Context) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	_, held := store.Get("k")
	assert.False(t, held)
}

func TestPubSubLock_WithLockExtendedTimeoutIsAcquisitionError(t *testing.T) {
	l := lock.NewPubSubLock(lock.NewMemoryKeyStore(), nil, lock.WithRecheckInterval(10*time.Millisecond))
	_, ok, err := l.AcquireExtended(context.Background(), "k", lock.AcquireOptions{TTL: time.Minute})
	require.NoError(t, err)
	require.True(t, ok)

	err = l.WithLockExtended(context.Background(), "k", lock.AcquireOptions{
		TTL:         time.Minute,
		WaitTimeout: 30 * time.Millisecond,
	}, func(ctx context.Context) error { return nil })

	assert.ErrorIs(t, err, lock.ErrNotAcquired)
}
