package ocrcache

import (
	"context"
	"time"

	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/redis"
)

const redisKeyPrefix = "ocr:"

// RedisStore backs the cache with Redis so several machines scanning the
// same corpus share one set of OCR results.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, fingerprint string) ([]byte, bool, error) {
	data, err := s.client.GetBytes(ctx, redisKeyPrefix+fingerprint)
	if err != nil {
		if redis.IsNilError(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (s *RedisStore) Put(ctx context.Context, fingerprint string, data []byte) error {
	return s.client.Set(ctx, redisKeyPrefix+fingerprint, data, s.ttl)
}

func (s *RedisStore) Delete(ctx context.Context, fingerprint string) error {
	return s.client.Del(ctx, redisKeyPrefix+fingerprint)
}

func (s *RedisStore) PurgeAll(ctx context.Context) (int, error) {
	n, err := s.client.FlushByPattern(ctx, redisKeyPrefix+"*")
	return int(n), err
}

func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.CountByPattern(ctx, redisKeyPrefix+"*")
	return int(n), err
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
