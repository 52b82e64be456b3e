package shuttle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/askiada/go-loom/pkg/pipeline/model"
)

// Memory is a Store keeping datasets in a map.
type Memory struct {
	*Broker

	mu      sync.RWMutex
	entries map[string]memoryEntry

	now           func() time.Time
	sweepInterval time.Duration
	stop          chan struct{}
	sweeping      sync.WaitGroup
	closed        atomic.Bool

	stats counters
}

type memoryEntry struct {
	ds        *model.Dataset
	expiresAt time.Time
}

// MemoryOption configures a Memory store.
type MemoryOption func(m *Memory)

// WithSweepInterval removes expired entries in the background every d.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(m *Memory) {
		m.sweepInterval = d
	}
}

// WithClock replaces the clock used to evaluate expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
		m.Broker.now = now
	}
}

// NewMemory creates an empty in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		Broker:  NewBroker(),
		entries: make(map[string]memoryEntry),
		now:     time.Now,
		stop:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.sweepInterval > 0 {
		m.sweeping.Add(1)
		go m.sweepLoop()
	}

	return m
}

// Get implements Cache. Expired entries are removed on access.
func (m *Memory) Get(ctx context.Context, key string) (*model.Dataset, bool, error) {
	if m.closed.Load() {
		return nil, false, ErrClosed
	}

	if key == "" {
		return nil, false, ErrEmptyKey
	}

	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		m.stats.misses.Add(1)

		return nil, false, nil
	}

	if !m.now().Before(entry.expiresAt) {
		m.mu.Lock()
		// a concurrent put may have replaced the entry
		if current, ok := m.entries[key]; ok && current.expiresAt.Equal(entry.expiresAt) {
			delete(m.entries, key)
			m.stats.evictions.Add(1)
		}
		m.mu.Unlock()
		m.stats.misses.Add(1)

		return nil, false, nil
	}

	m.stats.hits.Add(1)

	return entry.ds, true, nil
}

// Put implements Cache. The last writer wins.
func (m *Memory) Put(ctx context.Context, key string, ds *model.Dataset, ttl time.Duration) error {
	if m.closed.Load() {
		return ErrClosed
	}

	if key == "" {
		return ErrEmptyKey
	}

	if ds == nil {
		return ErrNilDataset
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	expiresAt := m.now()
	if ttl > 0 {
		expiresAt = expiresAt.Add(ttl)
	}

	m.mu.Lock()
	m.entries[key] = memoryEntry{ds: ds, expiresAt: expiresAt}
	m.mu.Unlock()
	m.stats.puts.Add(1)

	return nil
}

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.entries)
}

// Sweep removes every expired entry and returns how many were removed.
func (m *Memory) Sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, entry := range m.entries {
		if !now.Before(entry.expiresAt) {
			delete(m.entries, key)
			removed++
		}
	}

	m.stats.evictions.Add(int64(removed))

	return removed
}

func (m *Memory) sweepLoop() {
	defer m.sweeping.Done()

	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Stats returns the cache counters.
func (m *Memory) Stats() Stats {
	return m.stats.snapshot()
}

// Close stops the sweeper, ends every topic and drops the entries.
func (m *Memory) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}

	close(m.stop)
	m.sweeping.Wait()

	m.mu.Lock()
	m.entries = make(map[string]memoryEntry)
	m.mu.Unlock()

	return m.Broker.Close()
}

var _ Store = (*Memory)(nil)
