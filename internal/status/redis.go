package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vipul43/saas-bridge/internal/models"
)

// RedisStore keeps the last sync result under one key so every replica
// serving the status endpoint sees the same run.
type RedisStore struct {
	client redis.Cmdable
	key    string
}

// NewRedisStore stores the result under "<prefix>:sync:last:<provider>:<resource>".
func NewRedisStore(client redis.Cmdable, prefix, provider, resource string) *RedisStore {
	return &RedisStore{
		client: client,
		key:    fmt.Sprintf("%s:sync:last:%s:%s", prefix, provider, resource),
	}
}

func (s *RedisStore) Save(ctx context.Context, result models.SyncResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal sync result: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store sync result in Redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Last(ctx context.Context) (models.SyncResult, bool, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.SyncResult{}, false, nil
	}
	if err != nil {
		return models.SyncResult{}, false, fmt.Errorf("failed to read sync result from Redis: %w", err)
	}

	var result models.SyncResult
	if err := json.Unmarshal(data, &result); err != nil {
		return models.SyncResult{}, false, fmt.Errorf("failed to unmarshal sync result: %w", err)
	}
	return result, true, nil
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return client, nil
}
