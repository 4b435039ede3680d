package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// Memory is an in-process LRU cache. Entries expire at their own ttl,
// capped by the cache-wide ttl given to NewMemory.
type Memory struct {
	lru    *expirable.LRU[string, memoryEntry]
	maxTTL time.Duration
	now    func() time.Time
}

// NewMemory creates a cache holding at most size entries, none living
// longer than maxTTL.
func NewMemory(size int, maxTTL time.Duration) *Memory {
	if size <= 0 {
		size = 1024
	}
	if maxTTL <= 0 {
		maxTTL = 5 * time.Minute
	}
	return &Memory{
		lru:    expirable.NewLRU[string, memoryEntry](size, nil, maxTTL),
		maxTTL: maxTTL,
		now:    time.Now,
	}
}

// Get implements Cache.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	e, ok := m.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(e.expires) {
		m.lru.Remove(key)
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

// Set implements Cache.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 || ttl > m.maxTTL {
		ttl = m.maxTTL
	}
	m.lru.Add(key, memoryEntry{
		value:   append([]byte(nil), value...),
		expires: m.now().Add(ttl),
	})
	return nil
}

// Len returns the number of live entries.
func (m *Memory) Len() int {
	return m.lru.Len()
}
