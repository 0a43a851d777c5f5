package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryStore is an in-process Store. TTLs are ignored.
//
// It backs tests, scenario runs and deployments without Redis. Outages can
// be simulated with SetUnavailable.
type MemoryStore struct {
	mu      sync.Mutex
	values  map[string]string
	sets    map[string]map[string]struct{}
	offline atomic.Bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]string),
		sets:   make(map[string]map[string]struct{}),
	}
}

// SetUnavailable makes every subsequent call fail with ErrUnavailable
// until reset.
func (m *MemoryStore) SetUnavailable(down bool) {
	m.offline.Store(down)
}

func (m *MemoryStore) check(ctx context.Context) error {
	if m.offline.Load() {
		return ErrUnavailable
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	if err := m.check(ctx); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *MemoryStore) Set(ctx context.Context, key, value string, _ time.Duration) error {
	if err := m.check(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStore) Incr(ctx context.Context, key string, by int64) (int64, error) {
	if err := m.check(ctx); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var cur int64
	if v, ok := m.values[key]; ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("incr %s: value is not an integer", key)
		}
		cur = n
	}
	cur += by
	m.values[key] = strconv.FormatInt(cur, 10)
	return cur, nil
}

func (m *MemoryStore) Decr(ctx context.Context, key string, by int64) (int64, error) {
	return m.Incr(ctx, key, -by)
}

func (m *MemoryStore) SAdd(ctx context.Context, key, member string) (int64, error) {
	if err := m.check(ctx); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.sets[key]
	if set == nil {
		set = make(map[string]struct{})
		m.sets[key] = set
	}
	if _, ok := set[member]; ok {
		return 0, nil
	}
	set[member] = struct{}{}
	return 1, nil
}

func (m *MemoryStore) SCard(ctx context.Context, key string) (int64, error) {
	if err := m.check(ctx); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.sets[key])), nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return m.check(ctx)
}

func (m *MemoryStore) Close() error { return nil }

// Keys returns a copy of all scalar values, for tests and the stats command.
func (m *MemoryStore) Keys() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}
