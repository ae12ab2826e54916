package usage

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"fwlens/internal/config"
	"fwlens/internal/schema"
)

// RedisSource reads usage statistics published by collectors into Redis
// hashes. Each rule lives under `<prefix><rule name>` with fields
// `last_hit_date` and `unused_days`.
type RedisSource struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisSource creates a usage-stat source backed by Redis and
// verifies connectivity.
func NewRedisSource(ctx context.Context, cfg config.UsageSourceConfig) (*RedisSource, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Address,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisSource{client: client, keyPrefix: cfg.KeyPrefix}, nil
}

// Stats scans all rule hashes under the configured prefix. Hashes with
// a malformed unused_days field keep the last-hit date and drop the
// counter rather than failing the scan.
func (s *RedisSource) Stats(ctx context.Context) ([]schema.UsageStat, error) {
	var stats []schema.UsageStat
	iter := s.client.Scan(ctx, 0, s.keyPrefix+"*", 0).Iterator()

	for iter.Next(ctx) {
		key := iter.Val()
		fields, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read usage hash %s: %w", key, err)
		}

		stat := schema.UsageStat{
			RuleName:    strings.TrimPrefix(key, s.keyPrefix),
			LastHitDate: fields["last_hit_date"],
		}
		if raw, ok := fields["unused_days"]; ok && raw != "" {
			if n, err := strconv.Atoi(raw); err == nil {
				days := n
				stat.UnusedDays = &days
			}
		}
		stats = append(stats, stat)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("usage hash scan failed: %w", err)
	}

	return stats, nil
}

// Close releases the Redis connection.
func (s *RedisSource) Close() error {
	return s.client.Close()
}
