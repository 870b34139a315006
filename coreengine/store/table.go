package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// Table is a typed view over one bucket. Values are stored as JSON.
type Table[T any] struct {
	backend Backend
	bucket  string
}

// NewTable creates a typed table over bucket.
func NewTable[T any](backend Backend, bucket string) *Table[T] {
	return &Table[T]{backend: backend, bucket: bucket}
}

// Bucket returns the underlying bucket name.
func (t *Table[T]) Bucket() string { return t.bucket }

// Put stores value under key, replacing any previous value.
func (t *Table[T]) Put(ctx context.Context, key string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", t.bucket, key, err)
	}
	return t.backend.Put(ctx, t.bucket, key, data)
}

// Get loads the value for key. Use IsNotFound to detect a missing key.
func (t *Table[T]) Get(ctx context.Context, key string) (T, error) {
	var out T
	data, err := t.backend.Get(ctx, t.bucket, key)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("failed to decode %s/%s: %w", t.bucket, key, err)
	}
	return out, nil
}

// Keys returns every key in the table, sorted.
func (t *Table[T]) Keys(ctx context.Context) ([]string, error) {
	raw, err := t.backend.List(ctx, t.bucket)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// List returns every value ordered by key.
func (t *Table[T]) List(ctx context.Context) ([]T, error) {
	return t.Filter(ctx, nil)
}

// Filter returns the values accepted by keep, ordered by key.
// A nil keep accepts everything.
func (t *Table[T]) Filter(ctx context.Context, keep func(T) bool) ([]T, error) {
	raw, err := t.backend.List(ctx, t.bucket)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]T, 0, len(keys))
	for _, k := range keys {
		var v T
		if err := json.Unmarshal(raw[k], &v); err != nil {
			return nil, fmt.Errorf("failed to decode %s/%s: %w", t.bucket, k, err)
		}
		if keep == nil || keep(v) {
			out = append(out, v)
		}
	}
	return out, nil
}

// Dump returns the table contents keyed by record key.
func (t *Table[T]) Dump(ctx context.Context) (map[string]T, error) {
	raw, err := t.backend.List(ctx, t.bucket)
	if err != nil {
		return nil, err
	}
	out := make(map[string]T, len(raw))
	for k, data := range raw {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("failed to decode %s/%s: %w", t.bucket, k, err)
		}
		out[k] = v
	}
	return out, nil
}

// Restore clears the table and writes every record in data.
func (t *Table[T]) Restore(ctx context.Context, data map[string]T) error {
	if err := t.Clear(ctx); err != nil {
		return err
	}
	for k, v := range data {
		if err := t.Put(ctx, k, v); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of records in the table.
func (t *Table[T]) Len(ctx context.Context) (int, error) {
	return t.backend.Len(ctx, t.bucket)
}

func (t *Table[T]) Delete(ctx context.Context, key string) error {
	return t.backend.Delete(ctx, t.bucket, key)
}

func (t *Table[T]) Clear(ctx context.Context) error {
	return t.backend.Clear(ctx, t.bucket)
}
