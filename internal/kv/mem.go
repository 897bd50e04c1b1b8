package kv

import (
	"context"
	"sync"
)

// MemStore is an in-memory Store. It enforces the same quota as DirStore
// and is used by tests and short-lived tooling.
type MemStore struct {
	mu     sync.RWMutex
	quota  int64
	values map[string][]byte
}

// NewMemStore returns an empty MemStore with the given quota.
func NewMemStore(quota int64) *MemStore {
	return &MemStore{quota: quota, values: make(map[string][]byte)}
}

// Get implements Store.
func (s *MemStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if err := validateKey(key); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Set implements Store.
func (s *MemStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	total := int64(len(value))
	for k, v := range s.values {
		if k != key {
			total += int64(len(v))
		}
	}
	if total > s.quota {
		return quotaError(key, total, s.quota)
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	s.values[key] = cp
	return nil
}

// Delete implements Store.
func (s *MemStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// Used implements Store.
func (s *MemStore) Used(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, v := range s.values {
		total += int64(len(v))
	}
	return total, nil
}

// Quota implements Store.
func (s *MemStore) Quota() int64 { return s.quota }
