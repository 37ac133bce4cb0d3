package contract

import (
	"bytes"
	"context"
	"sort"
	"sync"
)

// MemoryState keeps everything in a map. Used by tests and dev mode.
type MemoryState struct {
	mu sync.RWMutex
	db map[string][]byte
}

func NewMemoryState() *MemoryState {
	return &MemoryState{db: make(map[string][]byte)}
}

func (m *MemoryState) Get(ctx context.Context, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	val, ok := m.db[string(key)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return bytes.Clone(val), nil
}

func (m *MemoryState) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	keys := make([]string, 0)
	for k := range m.db {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = bytes.Clone(m.db[k])
	}
	m.mu.RUnlock()

	for i, k := range keys {
		if err := fn([]byte(k), values[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryState) Commit(ctx context.Context, b *Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range b.ops {
		if op.delete {
			delete(m.db, string(op.key))
			continue
		}
		m.db[string(op.key)] = bytes.Clone(op.value)
	}
	return nil
}

// Len reports how many keys are stored.
func (m *MemoryState) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.db)
}

func (m *MemoryState) Close() error { return nil }
