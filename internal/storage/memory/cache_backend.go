package memory

import (
	"context"
	"sort"
	"sync"

	"autotrade-coordinator/internal/storage"
)

// CacheBackend is an in-memory implementation of storage.CacheBackend.
// Mirrors the subset of Redis string and set semantics the position cache needs.
type CacheBackend struct {
	mu     sync.RWMutex
	values map[string]string
	sets   map[string]map[string]struct{}
}

// NewCacheBackend creates a new in-memory cache backend.
func NewCacheBackend() *CacheBackend {
	return &CacheBackend{
		values: make(map[string]string),
		sets:   make(map[string]map[string]struct{}),
	}
}

// Get returns the value at key. Returns ErrNotFound if absent.
func (b *CacheBackend) Get(_ context.Context, key string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	v, ok := b.values[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

// Set stores value at key.
func (b *CacheBackend) Set(_ context.Context, key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.sets, key)
	b.values[key] = value
	return nil
}

// Del removes keys of either type.
func (b *CacheBackend) Del(_ context.Context, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, k := range keys {
		delete(b.values, k)
		delete(b.sets, k)
	}
	return nil
}

// SAdd adds members to the set at key.
func (b *CacheBackend) SAdd(_ context.Context, key string, members ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.sets[key]
	if !ok {
		set = make(map[string]struct{}, len(members))
		b.sets[key] = set
	}
	for _, m := range members {
		set[m] = struct{}{}
	}
	return nil
}

// SRem removes members from the set at key. An emptied set is removed,
// matching Redis, which never keeps empty sets.
func (b *CacheBackend) SRem(_ context.Context, key string, members ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.sets[key]
	if !ok {
		return nil
	}
	for _, m := range members {
		delete(set, m)
	}
	if len(set) == 0 {
		delete(b.sets, key)
	}
	return nil
}

// SMembers returns the members of the set at key, sorted.
func (b *CacheBackend) SMembers(_ context.Context, key string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	set := b.sets[key]
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

// SCard returns the size of the set at key.
func (b *CacheBackend) SCard(_ context.Context, key string) (int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return int64(len(b.sets[key])), nil
}

// Exists reports whether key holds a value or a set.
func (b *CacheBackend) Exists(key string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, ok := b.values[key]; ok {
		return true
	}
	_, ok := b.sets[key]
	return ok
}

var _ storage.CacheBackend = (*CacheBackend)(nil)
