package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/flowline/pkg/ports"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

var (
	// ErrLockAcquire wraps Redis failures while taking a lock.
	ErrLockAcquire = errors.New("failed to acquire distributed lock")
	// ErrLockLost is returned by an unlock whose lock expired and may now
	// belong to another holder.
	ErrLockLost = errors.New("distributed lock lost before unlock")
)

// releaseScript removes KEYS[1] when it still holds the token ARGV[1].
var releaseScript = backend.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
return redis.call("DEL", KEYS[1])
`)

// Locker serializes run execution across replicas with SET NX PX keys
// named <prefix><run id>.
type Locker struct {
	client   *backend.Client
	prefix   string
	interval time.Duration
}

// LockerOption configures a Locker.
type LockerOption func(*Locker)

// WithRetryInterval sets how often a contended lock is polled.
func WithRetryInterval(d time.Duration) LockerOption {
	return func(l *Locker) {
		if d > 0 {
			l.interval = d
		}
	}
}

// NewLocker creates a Locker writing keys under prefix.
func NewLocker(client *backend.Client, prefix string, opts ...LockerOption) *Locker {
	l := &Locker{client: client, prefix: prefix, interval: 100 * time.Millisecond}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock blocks until key is free or ctx is done. The lock expires after ttl
// if its holder never releases it.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	name := l.prefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, name, token, ttl).Result()
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			return nil, fmt.Errorf("%w: %v", ErrLockAcquire, err)
		case ok:
			return l.unlocker(name, token), nil
		}

		timer := time.NewTimer(l.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *Locker) unlocker(name, token string) ports.UnlockFunc {
	return func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, l.client, []string{name}, token).Int()
		if err != nil {
			return fmt.Errorf("failed to release lock %s: %w", name, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrLockLost, name)
		}
		return nil
	}
}
