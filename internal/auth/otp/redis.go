package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TimurCravtov/CraftHub/pkg/cryptox"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "otp:"

// RedisStore shares codes between instances. Expiry is delegated to Redis
// and consumption uses GETDEL so two racing verifications cannot both win.
type RedisStore struct {
	c *redis.Client
}

func NewRedisStore(c *redis.Client) *RedisStore {
	return &RedisStore{c: c}
}

func (s *RedisStore) Put(ctx context.Context, userID, code string, ttl time.Duration) error {
	if err := s.c.Set(ctx, redisKeyPrefix+userID, cryptox.FingerprintToken(code), ttl).Err(); err != nil {
		return fmt.Errorf("otp: failed to store code: %w", err)
	}
	return nil
}

func (s *RedisStore) Consume(ctx context.Context, userID, code string) (bool, error) {
	fp, err := s.c.GetDel(ctx, redisKeyPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("otp: failed to consume code: %w", err)
	}
	return cryptox.EqualFingerprint(code, fp), nil
}

// Ping verifies the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.c.Ping(ctx).Err()
}
