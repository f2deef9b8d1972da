package ledger_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/flowline/pkg/adapters/memory"
	"github.com/aretw0/flowline/pkg/domain"
	"github.com/aretw0/flowline/pkg/ledger"
	"github.com/aretw0/flowline/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowStore simulates latency and detects overlapping writes to the same run.
type slowStore struct {
	*memory.Store
	inFlight atomic.Int32
	overlap  atomic.Bool
}

func (s *slowStore) SaveRun(ctx context.Context, run *domain.Run) error {
	if s.inFlight.Add(1) > 1 {
		s.overlap.Store(true)
	}
	defer s.inFlight.Add(-1)
	time.Sleep(5 * time.Millisecond) // Simulate IO
	return s.Store.SaveRun(ctx, run)
}

func TestLedger_SerializesCheckpoints(t *testing.T) {
	store := &slowStore{Store: memory.NewStore()}
	l := ledger.New(store)
	ctx := context.Background()

	run := domain.NewRun("race-test", "g", nil, time.Now())
	require.NoError(t, l.Open(ctx, run))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Checkpoint(ctx, run.Clone()))
		}()
	}
	wg.Wait()

	assert.False(t, store.overlap.Load(), "checkpoints of one run must not overlap")
}

func TestLedger_OpenTwice(t *testing.T) {
	l := ledger.New(memory.NewStore())
	ctx := context.Background()
	run := domain.NewRun("r1", "g", nil, time.Now())

	require.NoError(t, l.Open(ctx, run))
	assert.ErrorIs(t, l.Open(ctx, run), domain.ErrRunExists)

	loaded, err := l.Load(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "g", loaded.GraphID)

	runs, err := l.List(ctx, ports.RunFilter{GraphID: "g"})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

type fakeLocker struct {
	locked   []string
	unlocked []string
	ttl      time.Duration
	err      error
}

func (f *fakeLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.locked = append(f.locked, key)
	f.ttl = ttl
	return func(context.Context) error {
		f.unlocked = append(f.unlocked, key)
		return nil
	}, nil
}

func TestLedger_DistributedLocker(t *testing.T) {
	locker := &fakeLocker{}
	l := ledger.New(memory.NewStore(), ledger.WithLocker(locker), ledger.WithLockTTL(5*time.Second))
	ctx := context.Background()

	run := domain.NewRun("r1", "g", nil, time.Now())
	require.NoError(t, l.Open(ctx, run))
	require.NoError(t, l.Checkpoint(ctx, run))

	assert.Equal(t, []string{"r1", "r1"}, locker.locked)
	assert.Equal(t, []string{"r1", "r1"}, locker.unlocked)
	assert.Equal(t, 5*time.Second, locker.ttl)
}

func TestLedger_LockFailure(t *testing.T) {
	boom := errors.New("redis down")
	l := ledger.New(memory.NewStore(), ledger.WithLocker(&fakeLocker{err: boom}))

	err := l.Checkpoint(context.Background(), domain.NewRun("r1", "g", nil, time.Now()))
	assert.ErrorIs(t, err, boom)
}
