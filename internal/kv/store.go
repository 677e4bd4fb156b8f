// Package kv provides the typed key-value stores that carry the run's
// working state: article details, file download queues and redirects.
// Stores are created empty at run start, populated during enumeration,
// drained by the scrape phases and cleared at run end.
package kv

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Store is the raw byte-level contract shared by the in-memory and
// Redis backends. Keys are unique; Set overwrites.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Len(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// MemStore is the in-process Store used when no Redis address is
// configured, and by tests.
type MemStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

func (m *MemStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

func (m *MemStore) Set(_ context.Context, key string, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	m.mu.Lock()
	m.data[key] = cp
	m.mu.Unlock()
	return nil
}

func (m *MemStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

func (m *MemStore) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemStore) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data), nil
}

func (m *MemStore) Clear(_ context.Context) error {
	m.mu.Lock()
	m.data = make(map[string][]byte)
	m.mu.Unlock()
	return nil
}

// ForEach iterates every key of the store with the given number of
// workers. Keys are snapshotted once, split into disjoint slices, and
// each worker receives its slice; fn errors cancel the whole walk.
// Values written or deleted during the walk are picked up only for
// keys not yet visited by their worker.
func ForEach(ctx context.Context, s Store, workers int, fn func(ctx context.Context, key string, value []byte) error) error {
	if workers <= 0 {
		workers = 1
	}
	keys, err := s.Keys(ctx)
	if err != nil {
		return fmt.Errorf("listing keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if workers > len(keys) {
		workers = len(keys)
	}

	g, gctx := errgroup.WithContext(ctx)
	chunk := (len(keys) + workers - 1) / workers
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > len(keys) {
			hi = len(keys)
		}
		if lo >= hi {
			break
		}
		slice := keys[lo:hi]
		g.Go(func() error {
			for _, key := range slice {
				if err := gctx.Err(); err != nil {
					return err
				}
				value, ok, err := s.Get(gctx, key)
				if err != nil {
					return fmt.Errorf("reading %q: %w", key, err)
				}
				if !ok {
					continue // deleted mid-walk
				}
				if err := fn(gctx, key, value); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}
