package kv

import (
	"context"
	"encoding/json"
	"fmt"
)

// Typed wraps a Store with JSON encoding for one record type. Each of
// the run's namespaces (articleDetail, filesToDownload, filesToRetry,
// redirects) is one Typed instance over its own backing namespace.
type Typed[T any] struct {
	store Store
}

// NewTyped wraps the given backing store.
func NewTyped[T any](store Store) *Typed[T] {
	return &Typed[T]{store: store}
}

// Get decodes the record stored under key.
func (t *Typed[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	raw, ok, err := t.store.Get(ctx, key)
	if err != nil || !ok {
		return zero, ok, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, false, fmt.Errorf("decoding %q: %w", key, err)
	}
	return v, true, nil
}

// Set encodes and stores the record under key, overwriting.
func (t *Typed[T]) Set(ctx context.Context, key string, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %q: %w", key, err)
	}
	return t.store.Set(ctx, key, raw)
}

// Delete removes the record under key.
func (t *Typed[T]) Delete(ctx context.Context, key string) error {
	return t.store.Delete(ctx, key)
}

// Has reports whether a record exists under key.
func (t *Typed[T]) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := t.store.Get(ctx, key)
	return ok, err
}

// Len returns the number of records.
func (t *Typed[T]) Len(ctx context.Context) (int, error) {
	return t.store.Len(ctx)
}

// Keys returns every key, sorted.
func (t *Typed[T]) Keys(ctx context.Context) ([]string, error) {
	return t.store.Keys(ctx)
}

// Clear drops every record.
func (t *Typed[T]) Clear(ctx context.Context) error {
	return t.store.Clear(ctx)
}

// ForEach iterates every record with the given worker count. Workers
// receive decoded copies; writes go back through Set.
func (t *Typed[T]) ForEach(ctx context.Context, workers int, fn func(ctx context.Context, key string, value T) error) error {
	return ForEach(ctx, t.store, workers, func(ctx context.Context, key string, raw []byte) error {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("decoding %q: %w", key, err)
		}
		return fn(ctx, key, v)
	})
}
