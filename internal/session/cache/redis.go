package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "vitsdept:device"

// RedisStore keeps the device cache in a Redis instance local to the device.
// Keys are namespaced by device id so one Redis can back several simulated devices.
type RedisStore struct {
	client   *redis.Client
	deviceID string
}

// NewRedisStore returns a RedisStore for deviceID.
func NewRedisStore(client *redis.Client, deviceID string) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("cache: redis client is required")
	}
	if deviceID == "" {
		return nil, errors.New("cache: device id is required")
	}
	return &RedisStore{client: client, deviceID: deviceID}, nil
}

func (s *RedisStore) key(k string) string {
	return redisKeyPrefix + ":" + s.deviceID + ":" + k
}

func (s *RedisStore) Put(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("cache: redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache: redis get: %w", err)
	}
	return v, true, nil
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("cache: redis del: %w", err)
	}
	return nil
}
