package kv

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs a Store namespace with a Redis hash, one hash per
// namespace and run id. The hashes outlive the process, but a new
// process starts under a new run id and does not read them back.
type RedisStore struct {
	client *redis.Client
	hash   string
}

// NewRedisStore creates a store over the given client. The namespace
// becomes the Redis hash key, prefixed to keep runs apart.
func NewRedisStore(client *redis.Client, runID, namespace string) *RedisStore {
	return &RedisStore{
		client: client,
		hash:   fmt.Sprintf("wikimirror:%s:%s", runID, namespace),
	}
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := r.client.HGet(ctx, r.hash, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis hget %s/%s: %w", r.hash, key, err)
	}
	return v, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.HSet(ctx, r.hash, key, value).Err(); err != nil {
		return fmt.Errorf("redis hset %s/%s: %w", r.hash, key, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.HDel(ctx, r.hash, key).Err(); err != nil {
		return fmt.Errorf("redis hdel %s/%s: %w", r.hash, key, err)
	}
	return nil
}

func (r *RedisStore) Keys(ctx context.Context) ([]string, error) {
	keys, err := r.client.HKeys(ctx, r.hash).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hkeys %s: %w", r.hash, err)
	}
	return keys, nil
}

func (r *RedisStore) Len(ctx context.Context) (int, error) {
	n, err := r.client.HLen(ctx, r.hash).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hlen %s: %w", r.hash, err)
	}
	return int(n), nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.hash).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", r.hash, err)
	}
	return nil
}
