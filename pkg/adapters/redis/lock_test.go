package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/flowline/pkg/adapters/redis"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocker(t *testing.T) (*redis.Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redis.NewLocker(client, "app:lock:", redis.WithRetryInterval(10*time.Millisecond)), mr
}

func TestLocker_LockUnlock(t *testing.T) {
	locker, mr := newLocker(t)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "run-42", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("app:lock:run-42"))
	assert.Equal(t, 5*time.Second, mr.TTL("app:lock:run-42"))

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("app:lock:run-42"))
}

func TestLocker_Contention(t *testing.T) {
	locker, _ := newLocker(t)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "shared", 5*time.Second)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(waitCtx, "shared", 5*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	acquired := make(chan error, 1)
	go func() {
		second, err := locker.Lock(ctx, "shared", 5*time.Second)
		if err == nil {
			err = second(ctx)
		}
		acquired <- err
	}()

	require.NoError(t, unlock(ctx))
	select {
	case err := <-acquired:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("waiter never acquired the released lock")
	}
}

func TestLocker_IndependentKeys(t *testing.T) {
	locker, _ := newLocker(t)
	ctx := context.Background()

	unlockA, err := locker.Lock(ctx, "a", time.Second)
	require.NoError(t, err)
	unlockB, err := locker.Lock(ctx, "b", time.Second)
	require.NoError(t, err)

	assert.NoError(t, unlockA(ctx))
	assert.NoError(t, unlockB(ctx))
}

func TestLocker_ExpiredLockIsNotStolenBack(t *testing.T) {
	locker, mr := newLocker(t)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "run-1", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("app:lock:run-1", "other-holder"))

	assert.ErrorIs(t, unlock(ctx), redis.ErrLockLost)
	got, err := mr.Get("app:lock:run-1")
	require.NoError(t, err)
	assert.Equal(t, "other-holder", got)
}

func TestLocker_BackendDown(t *testing.T) {
	locker, mr := newLocker(t)
	mr.Close()

	_, err := locker.Lock(context.Background(), "run-1", time.Second)
	assert.ErrorIs(t, err, redis.ErrLockAcquire)
}
