package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-approval-gateway/internal/cache"
	"github.com/tbourn/go-approval-gateway/internal/config"
	"github.com/tbourn/go-approval-gateway/internal/repo"
	"github.com/tbourn/go-approval-gateway/internal/services"
)

// stores are the short-lived lookup tables and the per-phone lock. With the
// sql backend they live in the main database and the lock is process-local;
// with redis several instances can share webhook traffic.
type stores struct {
	Correlations services.CorrelationStore
	Links        services.ResendStore
	Locks        services.Locker

	rdb *redis.Client
}

func newStores(ctx context.Context, cfg config.Config, db *gorm.DB) (*stores, error) {
	switch cfg.StoreBackend {
	case "redis":
		rdb, err := cache.Open(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		return &stores{
			Correlations: &cache.CorrelationStore{RDB: rdb, TTL: cfg.OTP.CorrelationTTL},
			Links:        &cache.ResendStore{RDB: rdb, Grace: cfg.OTP.ResendLinkTTL},
			Locks:        cache.NewRedisLocker(rdb, cfg.Redis.PhoneLockTTL),
			rdb:          rdb,
		}, nil
	case "", "sql":
		return &stores{
			Correlations: &repo.CorrelationTable{DB: db, TTL: cfg.OTP.CorrelationTTL},
			Links:        &repo.ResendTable{DB: db},
			Locks:        cache.NewLocalLocker(),
		}, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// Close releases the Redis connection, if any.
func (s *stores) Close() {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Close(); err != nil {
		log.Warn().Err(err).Msg("close redis")
	}
}
