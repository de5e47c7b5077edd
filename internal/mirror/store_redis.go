package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"beeftrace/internal/cache"
	"beeftrace/pkg/platform/sentinel"
)

const redisKeyPrefix = "mirror:"

// RedisStore keeps each entity type in its own Redis hash so multiple
// instances can share one mirror.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client. Client lifecycle is managed by the
// caller.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(entityType string) (string, error) {
	if !cache.KnownType(entityType) {
		return "", fmt.Errorf("unknown entity type %q", entityType)
	}
	return redisKeyPrefix + entityType, nil
}

func (s *RedisStore) Get(ctx context.Context, entityType, id string) (json.RawMessage, error) {
	key, err := redisKey(entityType)
	if err != nil {
		return nil, err
	}
	payload, err := s.client.HGet(ctx, key, id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis hget %s %s: %w", key, id, err)
	}
	return json.RawMessage(payload), nil
}

func (s *RedisStore) List(ctx context.Context, entityType string) (map[string]json.RawMessage, error) {
	key, err := redisKey(entityType)
	if err != nil {
		return nil, err
	}
	entries, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall %s: %w", key, err)
	}
	out := make(map[string]json.RawMessage, len(entries))
	for id, payload := range entries {
		out[id] = json.RawMessage(payload)
	}
	return out, nil
}

func (s *RedisStore) BulkUpsert(ctx context.Context, entityType string, data map[string]json.RawMessage) error {
	key, err := redisKey(entityType)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for id, payload := range data {
		pipe.HSet(ctx, key, id, string(payload))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis bulk upsert %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	keys := []string{
		redisKeyPrefix + cache.TypeAnimals,
		redisKeyPrefix + cache.TypeBatches,
		redisKeyPrefix + cache.TypeRoles,
		redisKeyPrefix + cache.TypeTransactions,
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis clear mirror: %w", err)
	}
	return nil
}

func (s *RedisStore) Stats(ctx context.Context) (cache.Stats, error) {
	pipe := s.client.Pipeline()
	animals := pipe.HLen(ctx, redisKeyPrefix+cache.TypeAnimals)
	batches := pipe.HLen(ctx, redisKeyPrefix+cache.TypeBatches)
	roles := pipe.HLen(ctx, redisKeyPrefix+cache.TypeRoles)
	txs := pipe.HLen(ctx, redisKeyPrefix+cache.TypeTransactions)
	if _, err := pipe.Exec(ctx); err != nil {
		return cache.Stats{}, fmt.Errorf("redis mirror stats: %w", err)
	}
	return cache.Stats{
		Animals:      int(animals.Val()),
		Batches:      int(batches.Val()),
		Roles:        int(roles.Val()),
		Transactions: int(txs.Val()),
	}, nil
}

func (s *RedisStore) Close() error { return nil }
