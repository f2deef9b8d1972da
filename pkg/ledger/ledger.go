package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/flowline/internal/logging"
	"github.com/aretw0/flowline/pkg/domain"
	"github.com/aretw0/flowline/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed run lock is held.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Ledger orchestrates run persistence, ensuring safe concurrent writes.
// It uses reference counting to garbage collect unused locks.
type Ledger struct {
	store ports.RunStore

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Ledger.
type Option func(*Ledger)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(l *Ledger) {
		l.locker = locker
	}
}

// WithLockTTL sets the TTL of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(l *Ledger) {
		if ttl > 0 {
			l.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Ledger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// New creates a Ledger on top of the given run store.
func New(store ports.RunStore, opts ...Option) *Ledger {
	l := &Ledger{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(), // Default to no-op
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(runID) after unlocking.
func (l *Ledger) acquire(runID string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.locks[runID]
	if !exists {
		entry = &lockEntry{}
		l.locks[runID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (l *Ledger) release(runID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.locks[runID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(l.locks, runID)
	}
}

// Open persists a freshly created run.
func (l *Ledger) Open(ctx context.Context, run *domain.Run) error {
	return l.WithLock(ctx, run.ID, func(ctx context.Context) error {
		if err := l.store.CreateRun(ctx, run); err != nil {
			return fmt.Errorf("failed to open run: %w", err)
		}
		return nil
	})
}

// Checkpoint saves the current record of a run.
func (l *Ledger) Checkpoint(ctx context.Context, run *domain.Run) error {
	return l.WithLock(ctx, run.ID, func(ctx context.Context) error {
		return l.store.SaveRun(ctx, run)
	})
}

// Load retrieves a run.
func (l *Ledger) Load(ctx context.Context, runID string) (*domain.Run, error) {
	var run *domain.Run
	err := l.WithLock(ctx, runID, func(ctx context.Context) error {
		var err error
		run, err = l.store.GetRun(ctx, runID)
		return err
	})
	return run, err
}

// List delegates to the store.
func (l *Ledger) List(ctx context.Context, filter ports.RunFilter) ([]*domain.Run, error) {
	return l.store.ListRuns(ctx, filter)
}

// Store returns the underlying run store.
func (l *Ledger) Store() ports.RunStore {
	return l.store
}

// WithLock executes a function while holding the lock for the run.
func (l *Ledger) WithLock(ctx context.Context, runID string, fn func(context.Context) error) error {
	entry := l.acquire(runID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		l.release(runID)
	}()

	// Distributed Locking
	if l.locker != nil {
		unlock, err := l.locker.Lock(ctx, runID, l.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				l.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"run_id", runID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
