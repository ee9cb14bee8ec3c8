package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "carepulse:idempotency:appointment:"

// Store claims idempotency keys in Redis so that concurrent submissions with
// the same key resolve to a single appointment ID.
type Store struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewStore constructs a Store. Claims expire after ttl.
func NewStore(client redis.UniversalClient, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl, prefix: defaultPrefix}
}

// Claim records id as the owner of key. When another request already owns the
// key its appointment ID is returned with claimed set to false.
func (s *Store) Claim(ctx context.Context, key, id string) (string, bool, error) {
	if s == nil || s.client == nil {
		return "", false, errors.New("idempotency: store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, errors.New("idempotency: key is required")
	}

	redisKey := s.prefix + key
	ok, err := s.client.SetNX(ctx, redisKey, id, s.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("idempotency: claim %s: %w", key, err)
	}
	if ok {
		return id, true, nil
	}

	existing, err := s.client.Get(ctx, redisKey).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; the caller may simply retry.
		return "", false, fmt.Errorf("idempotency: claim %s expired during lookup", key)
	}
	if err != nil {
		return "", false, fmt.Errorf("idempotency: read claim %s: %w", key, err)
	}
	return existing, false, nil
}

// Release drops a claim so a failed submission can be retried.
func (s *Store) Release(ctx context.Context, key string) error {
	if s == nil || s.client == nil {
		return nil
	}
	if err := s.client.Del(ctx, s.prefix+strings.TrimSpace(key)).Err(); err != nil {
		return fmt.Errorf("idempotency: release %s: %w", key, err)
	}
	return nil
}

// Ping checks connectivity to Redis.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Ping(ctx).Err()
}
