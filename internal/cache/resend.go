package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbourn/go-approval-gateway/internal/domain"
	"github.com/tbourn/go-approval-gateway/internal/repo"
)

const resendPrefix = "resend:"

// ResendStore keeps resend links as JSON values. Keys outlive the link's own
// expiry by Grace so an expired token is still recognized as expired instead
// of unknown.
type ResendStore struct {
	RDB   *redis.Client
	Grace time.Duration
}

// Put stores link until its expiry plus the grace period.
func (s *ResendStore) Put(ctx context.Context, link *domain.ResendLink) error {
	b, err := json.Marshal(link)
	if err != nil {
		return err
	}
	ttl := time.Until(link.ExpiresAt) + s.Grace
	if ttl <= 0 {
		ttl = time.Second
	}
	return s.RDB.Set(ctx, resendPrefix+link.Token, b, ttl).Err()
}

// Get returns the link for token, or repo.ErrNotFound.
func (s *ResendStore) Get(ctx context.Context, token string) (*domain.ResendLink, error) {
	raw, err := s.RDB.Get(ctx, resendPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var l domain.ResendLink
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// Delete removes token and reports whether it existed.
func (s *ResendStore) Delete(ctx context.Context, token string) (bool, error) {
	n, err := s.RDB.Del(ctx, resendPrefix+token).Result()
	return n > 0, err
}
