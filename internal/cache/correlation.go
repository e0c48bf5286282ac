package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbourn/go-approval-gateway/internal/repo"
)

const correlationPrefix = "corr:"

// CorrelationStore maps provider message ids to approval ids in Redis.
type CorrelationStore struct {
	RDB *redis.Client
	TTL time.Duration
}

// Put records messageID -> approvalID with the store TTL.
func (s *CorrelationStore) Put(ctx context.Context, messageID, approvalID string) error {
	return s.RDB.Set(ctx, correlationPrefix+messageID, approvalID, s.TTL).Err()
}

// Get returns the approval id for messageID, or repo.ErrNotFound.
func (s *CorrelationStore) Get(ctx context.Context, messageID string) (string, error) {
	v, err := s.RDB.Get(ctx, correlationPrefix+messageID).Result()
	if errors.Is(err, redis.Nil) {
		return "", repo.ErrNotFound
	}
	return v, err
}

// Delete removes messageID.
func (s *CorrelationStore) Delete(ctx context.Context, messageID string) error {
	return s.RDB.Del(ctx, correlationPrefix+messageID).Err()
}
