// Package blobcache is the optional content-addressed store image
// downloads revalidate against. Objects are keyed by their URL with
// the scheme stripped; the entity-tag from upstream rides along so a
// later run can issue a conditional GET.
package blobcache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Object is one cached blob plus its upstream entity-tag.
type Object struct {
	Body []byte
	Etag string
}

// Client is the conditional GET/PUT contract consumed by the
// downloader. The downloader skips the cache when its Client is nil.
type Client interface {
	Get(ctx context.Context, key string) (*Object, bool, error)
	Put(ctx context.Context, key string, body []byte, etag string) error
}

// Store backs the blob cache with a Redis hash per object: the "body"
// field holds the bytes, "etag" the entity-tag.
type Store struct {
	client *redis.Client
}

// New connects to the given Redis address and pings it once. An empty
// address disables the cache and returns nil.
func New(ctx context.Context, addr string) (*Store, error) {
	if addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("blob cache unreachable at %s: %w", addr, err)
	}
	log.Info().Str("addr", addr).Msg("Blob cache connected")
	return &Store{client: client}, nil
}

func objectKey(key string) string {
	return "blob:" + key
}

// Get fetches the object stored under key, if any.
func (s *Store) Get(ctx context.Context, key string) (*Object, bool, error) {
	fields, err := s.client.HGetAll(ctx, objectKey(key)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("blob cache get %q: %w", key, err)
	}
	body, ok := fields["body"]
	if !ok {
		return nil, false, nil
	}
	return &Object{Body: []byte(body), Etag: fields["etag"]}, true, nil
}

// Put stores body and etag under key, replacing any previous object.
func (s *Store) Put(ctx context.Context, key string, body []byte, etag string) error {
	if err := s.client.HSet(ctx, objectKey(key), "body", body, "etag", etag).Err(); err != nil {
		return fmt.Errorf("blob cache put %q: %w", key, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.client.Close()
}
