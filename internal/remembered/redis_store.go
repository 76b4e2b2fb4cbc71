package remembered

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps remembered records in redis. Records with a TTL ride
// on redis expiry, so Cleanup has nothing left to sweep there; it exists
// to satisfy the Store contract for operators switching backends.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "remembered:",
	}
}

func (s *RedisStore) key(typ, key string) string {
	return s.prefix + compositeKey([]string{typ, key})
}

func (s *RedisStore) Remember(ctx context.Context, typ string, ttl time.Duration, data string, keys ...string) error {
	expiry := nowFunc().Add(ttl)
	return s.store(ctx, typ, &expiry, data, keys, ttl)
}

func (s *RedisStore) RememberForever(ctx context.Context, typ string, data string, keys ...string) error {
	return s.store(ctx, typ, nil, data, keys, 0)
}

func (s *RedisStore) store(ctx context.Context, typ string, expiry *time.Time, data string, keys []string, ttl time.Duration) error {
	rec := Record{
		Type:   typ,
		Key:    compositeKey(keys),
		Expiry: expiry,
		Data:   data,
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("remembered: marshal: %w", err)
	}
	return s.client.Set(ctx, s.key(typ, rec.Key), raw, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, typ string, keys ...string) (*Record, error) {
	key := compositeKey(keys)

	raw, err := s.client.Get(ctx, s.key(typ, key)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("remembered: get: %w", err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("remembered: unmarshal: %w", err)
	}

	if rec.Expired() {
		_ = s.client.Del(ctx, s.key(typ, key)).Err()
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *RedisStore) Cleanup(ctx context.Context) (int64, error) {
	return 0, nil
}
