package consent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"vitaex/pkg/platform/sentinel"
)

const consentKeyPrefix = "consent:"

// RedisStore is a Redis-backed consent store for deployments where multiple
// processes share consent state. Key existence is the grant; expiry-bound
// grants use the key TTL.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func consentKey(userID string, purpose Purpose) string {
	return consentKeyPrefix + userID + ":" + string(purpose)
}

func (s *RedisStore) Grant(ctx context.Context, record Record) error {
	var ttl time.Duration
	if !record.ExpiresAt.IsZero() {
		ttl = time.Until(record.ExpiresAt)
		if ttl <= 0 {
			return nil
		}
	}
	if err := s.client.Set(ctx, consentKey(record.UserID, record.Purpose), "1", ttl).Err(); err != nil {
		return fmt.Errorf("grant consent: %w", errors.Join(sentinel.ErrStoreUnavailable, err))
	}
	return nil
}

func (s *RedisStore) Revoke(ctx context.Context, userID string, purpose Purpose, _ time.Time) error {
	if err := s.client.Del(ctx, consentKey(userID, purpose)).Err(); err != nil {
		return fmt.Errorf("revoke consent: %w", errors.Join(sentinel.ErrStoreUnavailable, err))
	}
	return nil
}

func (s *RedisStore) Check(ctx context.Context, userID string, purpose Purpose) (bool, error) {
	_, err := s.client.Get(ctx, consentKey(userID, purpose)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check consent: %w", errors.Join(sentinel.ErrStoreUnavailable, err))
	}
	return true, nil
}
