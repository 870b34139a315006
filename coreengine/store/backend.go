// Package store provides the key/value persistence layer behind the
// participant directory and the artifact stores.
//
// Records live in named buckets. A bucket maps record keys to JSON payloads.
// Two backends ship with the package: an in-process MemoryBackend and a
// RedisBackend that stores each bucket as a Redis hash.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Get when a key is absent from its bucket.
var ErrNotFound = errors.New("record not found")

// Backend is a bucketed key/value store.
// Implementations must be safe for concurrent use.
type Backend interface {
	Put(ctx context.Context, bucket, key string, value []byte) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	List(ctx context.Context, bucket string) (map[string][]byte, error)
	// Len returns the number of keys in bucket without reading the values.
	Len(ctx context.Context, bucket string) (int, error)
	Delete(ctx context.Context, bucket, key string) error
	Clear(ctx context.Context, bucket string) error
	Close() error
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, redis.Nil)
}

// Backend kinds accepted by Open.
const (
	KindMemory = "memory"
	KindRedis  = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Kind      string
	RedisURL  string
	Namespace string
}

// Open builds the backend described by opts.
// An empty kind selects the memory backend.
func Open(ctx context.Context, opts Options) (Backend, error) {
	switch strings.ToLower(opts.Kind) {
	case "", KindMemory:
		return NewMemoryBackend(), nil
	case KindRedis:
		redisOpts, err := redis.ParseURL(opts.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		backend, err := NewRedisBackend(redisOpts, opts.Namespace)
		if err != nil {
			return nil, err
		}
		if err := backend.Ping(ctx); err != nil {
			backend.Close()
			return nil, fmt.Errorf("redis not reachable: %w", err)
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Kind)
	}
}
