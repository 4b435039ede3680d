package storage

import (
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	value   []byte
	expires time.Time // zero means never
}

func (e memoryEntry) live(now time.Time) bool {
	return e.expires.IsZero() || now.Before(e.expires)
}

// MemoryDB implements DB with a map. Expired keys are hidden on read and
// dropped on the next write that touches them or on ForEach.
type MemoryDB struct {
	mu   sync.RWMutex
	data map[string]memoryEntry
	now  func() time.Time
}

// NewMemory creates an empty in-memory database.
func NewMemory() *MemoryDB {
	return &MemoryDB{data: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryDB) entry(value []byte, ttl time.Duration) memoryEntry {
	e := memoryEntry{value: append([]byte{}, value...)}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	return e
}

// Get retrieves a value by key.
func (m *MemoryDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.data[string(key)]
	if !ok || !e.live(m.now()) {
		return nil, ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

// Put stores a value for ttl.
func (m *MemoryDB) Put(key, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[string(key)] = m.entry(value, ttl)
	return nil
}

// Delete removes a key.
func (m *MemoryDB) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

// ForEach visits live keys with prefix in key order, like badger. Expired
// keys are pruned first. The callback runs without the lock held.
func (m *MemoryDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	p := string(prefix)
	now := m.now()

	m.mu.Lock()
	keys := make([]string, 0)
	for k, e := range m.data {
		if !strings.HasPrefix(k, p) {
			continue
		}
		if !e.live(now) {
			delete(m.data, k)
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = append([]byte(nil), m.data[k].value...)
	}
	m.mu.Unlock()

	for i, k := range keys {
		if err := fn([]byte(k), values[i]); err != nil {
			return err
		}
	}
	return nil
}

// NewBatch returns a batch applied under a single lock on Commit.
func (m *MemoryDB) NewBatch() Batch {
	return &memoryBatch{db: m}
}

// Close is a no-op.
func (m *MemoryDB) Close() error {
	return nil
}

type memoryOp struct {
	key    string
	entry  memoryEntry
	delete bool
}

type memoryBatch struct {
	db  *MemoryDB
	ops []memoryOp
}

func (b *memoryBatch) Put(key, value []byte, ttl time.Duration) error {
	b.ops = append(b.ops, memoryOp{key: string(key), entry: b.db.entry(value, ttl)})
	return nil
}

func (b *memoryBatch) Delete(key []byte) error {
	b.ops = append(b.ops, memoryOp{key: string(key), delete: true})
	return nil
}

func (b *memoryBatch) Commit() error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	for _, op := range b.ops {
		if op.delete {
			delete(b.db.data, op.key)
		} else {
			b.db.data[op.key] = op.entry
		}
	}
	b.ops = nil
	return nil
}

func (b *memoryBatch) Cancel() {
	b.ops = nil
}
