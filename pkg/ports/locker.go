package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a lock taken by DistributedLocker.Lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker serialises writes to a run across processes sharing
// a store. The ledger takes the lock around every checkpoint.
type DistributedLocker interface {
	// Lock blocks until key is held or ctx is done. The lock expires
	// after ttl if the holder never unlocks it.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
