// Package cache provides a Redis-backed secondary store for letter shards so a
// restarted process can warm up without going back to the CDN.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/giygas/drug-portal-api/drugsparser/entities"
	"github.com/giygas/drug-portal-api/interfaces"
	"github.com/redis/go-redis/v9"
)

// Compile-time check to ensure RedisShardCache implements ShardCache
var _ interfaces.ShardCache = (*RedisShardCache)(nil)

const keyPrefix = "drugportal:v1:shard:"

// Options configures the Redis connection
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisShardCache stores each shard as one JSON value with a TTL
type RedisShardCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisShardCache creates a client and verifies the connection with a PING
func NewRedisShardCache(opts Options) (*RedisShardCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisShardCache{rdb: rdb, ttl: opts.TTL}, nil
}

// Key returns the Redis key of a letter shard
func Key(letter string) string {
	return keyPrefix + letter
}

// Get returns the cached shard of letter
func (c *RedisShardCache) Get(ctx context.Context, letter string) ([]entities.DrugRecord, bool, error) {
	data, err := c.rdb.Get(ctx, Key(letter)).Bytes()
	if IsNilError(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", letter, err)
	}

	records, err := decodeShard(data)
	if err != nil {
		return nil, false, err
	}
	return records, true, nil
}

// Set stores the shard of letter for the configured TTL
func (c *RedisShardCache) Set(ctx context.Context, letter string, records []entities.DrugRecord) error {
	data, err := encodeShard(records)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, Key(letter), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", letter, err)
	}
	return nil
}

// Ping checks the connection
func (c *RedisShardCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the underlying Redis connection
func (c *RedisShardCache) Close() error {
	return c.rdb.Close()
}

// IsNilError reports whether err is a Redis nil (key-not-found) error
func IsNilError(err error) bool {
	return errors.Is(err, redis.Nil)
}

func encodeShard(records []entities.DrugRecord) ([]byte, error) {
	data, err := sonic.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("failed to encode shard: %w", err)
	}
	return data, nil
}

func decodeShard(data []byte) ([]entities.DrugRecord, error) {
	var records []entities.DrugRecord
	if err := sonic.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode cached shard: %w", err)
	}
	for i := range records {
		records[i].ComputeSearchText()
	}
	return records, nil
}
