package transaction

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps transactions in redis. The TTL doubles as the
// operator-driven expiry sweep for abandoned flows.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "transaction:",
		ttl:    ttl,
	}
}

type redisTransaction struct {
	Key         string         `json:"key"`
	StartMoment time.Time      `json:"startmoment"`
	Values      map[string]any `json:"values"`
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Transaction, error) {
	raw, err := s.client.Get(ctx, s.prefix+key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("transaction: get: %w", err)
	}

	var rt redisTransaction
	if err := json.Unmarshal([]byte(raw), &rt); err != nil {
		return nil, fmt.Errorf("transaction: unmarshal: %w", err)
	}
	return &Transaction{Key: rt.Key, StartMoment: rt.StartMoment, Values: rt.Values}, nil
}

func (s *RedisStore) Save(ctx context.Context, tr *Transaction) error {
	raw, err := json.Marshal(redisTransaction{
		Key:         tr.Key,
		StartMoment: tr.StartMoment,
		Values:      tr.Values,
	})
	if err != nil {
		return fmt.Errorf("transaction: marshal: %w", err)
	}
	return s.client.Set(ctx, s.prefix+tr.Key, raw, s.ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

// Cleanup is a no-op: every key was written with the configured TTL.
func (s *RedisStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}
