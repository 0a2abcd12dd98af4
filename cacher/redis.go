package cacher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Redis-backed Cacher, grounded on Hola's pkg/cache.RedisCache
// (github.com/redis/go-redis/v9). Values are JSON-encoded since Redis only
// stores bytes but broker.Cacher's Get/Set are any-valued.
type Redis struct {
	client     *redis.Client
	defaultTTL time.Duration
}

// RedisOptions configures a Redis cacher connection.
type RedisOptions struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	DefaultTTL time.Duration
}

// NewRedis dials addr and pings it, failing fast if Redis is unreachable —
// matching Hola's own NewRedisCache behavior of surfacing a connect error
// rather than deferring it to the first operation.
func NewRedis(opts RedisOptions) (*Redis, error) {
	poolSize := opts.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: poolSize,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Redis{client: client, defaultTTL: opts.DefaultTTL}, nil
}

func (c *Redis) Get(key string) (any, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return v, true
}

func (c *Redis) Set(key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = c.client.Set(ctx, key, raw, c.defaultTTL).Err()
}

func (c *Redis) Del(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = c.client.Del(ctx, key).Err()
}

// Clean removes every key matching a Redis glob pattern.
func (c *Redis) Clean(pattern string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	keys, err := c.client.Keys(ctx, pattern).Result()
	if err != nil || len(keys) == 0 {
		return
	}
	_ = c.client.Del(ctx, keys...).Err()
}

// Close releases the underlying connection pool.
func (c *Redis) Close() error {
	return c.client.Close()
}
