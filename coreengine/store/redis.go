package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores each bucket as a Redis hash keyed by BucketKey.
// It is safe for concurrent use.
type RedisBackend struct {
	rdb       *redis.Client
	namespace string
}

// NewRedisBackend creates a backend for the given namespace.
// Returns an error if namespace is empty.
func NewRedisBackend(redisOpts *redis.Options, namespace string) (*RedisBackend, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}

	return &RedisBackend{
		rdb:       redis.NewClient(redisOpts),
		namespace: namespace,
	}, nil
}

// Ping verifies Redis connectivity.
func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *RedisBackend) Put(ctx context.Context, bucket, key string, value []byte) error {
	if err := r.rdb.HSet(ctx, BucketKey(r.namespace, bucket), key, value).Err(); err != nil {
		return fmt.Errorf("failed to write %s/%s to Redis: %w", bucket, key, err)
	}
	return nil
}

// Get returns ErrNotFound when the field does not exist.
func (r *RedisBackend) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	value, err := r.rdb.HGet(ctx, BucketKey(r.namespace, bucket), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s/%s from Redis: %w", bucket, key, err)
	}
	return value, nil
}

func (r *RedisBackend) List(ctx context.Context, bucket string) (map[string][]byte, error) {
	hashData, err := r.rdb.HGetAll(ctx, BucketKey(r.namespace, bucket)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s from Redis: %w", bucket, err)
	}

	out := make(map[string][]byte, len(hashData))
	for k, v := range hashData {
		out[k] = []byte(v)
	}
	return out, nil
}

func (r *RedisBackend) Len(ctx context.Context, bucket string) (int, error) {
	n, err := r.rdb.HLen(ctx, BucketKey(r.namespace, bucket)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count %s in Redis: %w", bucket, err)
	}
	return int(n), nil
}

func (r *RedisBackend) Delete(ctx context.Context, bucket, key string) error {
	if err := r.rdb.HDel(ctx, BucketKey(r.namespace, bucket), key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s/%s from Redis: %w", bucket, key, err)
	}
	return nil
}

func (r *RedisBackend) Clear(ctx context.Context, bucket string) error {
	if err := r.rdb.Del(ctx, BucketKey(r.namespace, bucket)).Err(); err != nil {
		return fmt.Errorf("failed to clear %s in Redis: %w", bucket, err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *RedisBackend) Close() error {
	return r.rdb.Close()
}
