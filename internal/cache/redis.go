// Package cache provides Redis-backed alternatives to the SQL correlation and
// resend-link tables, plus the per-phone locks that serialize webhook events
// for one approver. Keys carry native Redis TTLs so the tables size-bound
// themselves.
package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tbourn/go-approval-gateway/internal/config"
)

// Open connects to Redis and verifies the connection with PING.
func Open(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: 50,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Address, err)
	}
	return rdb, nil
}
