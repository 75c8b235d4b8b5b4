// SPDX-License-Identifier: MIT

package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const blacklistPrefix = "gestprep:jwt:blacklist:"

// RedisBlacklist keeps revoked token ids in Redis with a TTL matching the
// token expiry.
type RedisBlacklist struct {
	client *redis.Client
	logger zerolog.Logger
	now    func() time.Time
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisBlacklist connects to Redis and verifies the connection.
func NewRedisBlacklist(ctx context.Context, cfg RedisConfig, logger zerolog.Logger) (*RedisBlacklist, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Msg("connected to Redis token blacklist")

	return &RedisBlacklist{client: client, logger: logger, now: time.Now}, nil
}

// RevokeToken marks jti revoked until expiresAt.
func (b *RedisBlacklist) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(b.now())
	if ttl <= 0 {
		return nil
	}
	if err := b.client.Set(ctx, blacklistPrefix+jti, 1, ttl).Err(); err != nil {
		return fmt.Errorf("blacklist token: %w", err)
	}
	return nil
}

// IsRevoked reports whether jti is blacklisted.
func (b *RedisBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := b.client.Exists(ctx, blacklistPrefix+jti).Result()
	if err != nil {
		b.logger.Warn().Err(err).Str("jti", jti).Msg("redis exists failed")
		return false, fmt.Errorf("check blacklist: %w", err)
	}
	return n > 0, nil
}

// Ping checks Redis reachability.
func (b *RedisBlacklist) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (b *RedisBlacklist) Close() error {
	return b.client.Close()
}
