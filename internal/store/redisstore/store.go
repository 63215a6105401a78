// Package redisstore is a small cache wrapper. It is optional: when no
// redis address is configured callers get a nil *Store and skip caching.
package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	client *redis.Client
}

func New(addr, password string, db int) *Store {
	if addr == "" {
		return nil
	}
	return &Store{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// Get returns the cached value. Transport errors read as a miss; caching
// here is best-effort.
func (s *Store) Get(ctx context.Context, key string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, err := s.client.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return v, true
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if s == nil {
		return
	}
	_ = s.client.Set(ctx, key, value, ttl).Err()
}

func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.client.Close()
}
