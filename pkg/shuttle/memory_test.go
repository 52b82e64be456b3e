package shuttle_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-loom/pkg/pipeline/model"
	"github.com/askiada/go-loom/pkg/shuttle"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func TestMemoryPutGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := shuttle.NewMemory()
	defer store.Close()

	ds := model.NewDataset(model.Row{"id": 1})
	require.NoError(t, store.Put(ctx, "k", ds, time.Minute))

	got, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Same(t, ds, got)

	_, ok, err = store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, shuttle.Stats{Hits: 1, Misses: 1, Puts: 1}, store.Stats())
}

func TestMemoryTTL(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		ttl     time.Duration
		advance time.Duration
		hit     bool
	}{
		"zero ttl":     {ttl: 0, hit: false},
		"negative ttl": {ttl: -time.Second, hit: false},
		"fresh":        {ttl: time.Minute, advance: 59 * time.Second, hit: true},
		"at expiry":    {ttl: time.Minute, advance: time.Minute, hit: false},
		"expired":      {ttl: time.Minute, advance: time.Hour, hit: false},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			clock := newFakeClock()
			store := shuttle.NewMemory(shuttle.WithClock(clock.Now))
			defer store.Close()

			require.NoError(t, store.Put(ctx, "k", model.NewDataset(), tc.ttl))
			clock.Advance(tc.advance)

			_, ok, err := store.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, tc.hit, ok)

			if !tc.hit {
				assert.Zero(t, store.Len(), "expired entry must be removed on access")
			}
		})
	}
}

func TestMemoryLastWriterWins(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := shuttle.NewMemory()
	defer store.Close()

	first := model.NewDataset(model.Row{"v": 1})
	second := model.NewDataset(model.Row{"v": 2})
	require.NoError(t, store.Put(ctx, "k", first, time.Minute))
	require.NoError(t, store.Put(ctx, "k", second, time.Minute))

	got, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestMemoryInvalidArguments(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := shuttle.NewMemory()

	assert.ErrorIs(t, store.Put(ctx, "", model.NewDataset(), time.Minute), shuttle.ErrEmptyKey)
	assert.ErrorIs(t, store.Put(ctx, "k", nil, time.Minute), shuttle.ErrNilDataset)

	_, _, err := store.Get(ctx, "")
	assert.ErrorIs(t, err, shuttle.ErrEmptyKey)

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, _, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, shuttle.ErrClosed)
	assert.ErrorIs(t, store.Put(ctx, "k", model.NewDataset(), time.Minute), shuttle.ErrClosed)
}

func TestMemorySweep(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	store := shuttle.NewMemory(shuttle.WithClock(clock.Now))
	defer store.Close()

	require.NoError(t, store.Put(ctx, "short", model.NewDataset(), time.Second))
	require.NoError(t, store.Put(ctx, "long", model.NewDataset(), time.Hour))
	clock.Advance(time.Minute)

	assert.Equal(t, 1, store.Sweep())
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, int64(1), store.Stats().Evictions)
}

func TestMemoryBackgroundSweep(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := shuttle.NewMemory(shuttle.WithSweepInterval(5 * time.Millisecond))
	defer store.Close()

	require.NoError(t, store.Put(ctx, "k", model.NewDataset(), time.Millisecond))
	assert.Eventually(t, func() bool {
		return store.Len() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestMemoryConcurrentAccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := shuttle.NewMemory()
	defer store.Close()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.NoError(t, store.Put(ctx, "k", model.NewDataset(model.Row{"j": j}), time.Minute))
				_, _, err := store.Get(ctx, "k")
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1600), store.Stats().Puts)
}
