// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package recovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ManuGH/chrono/internal/log"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

const defaultRedisPrefix = "chrono:recovery:"

type redisBackend struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func newRedisBackend(cfg RedisConfig, ttl time.Duration) (*redisBackend, error) {
	if cfg.Addr == "" {
		return nil, errors.New("recovery: redis backend requires an address")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger := log.WithComponent("recovery")
	logger.Info().
		Str(log.FieldBackend, "redis").
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Msg("connected to Redis recovery store")

	return newRedisBackendWithClient(client, cfg.KeyPrefix, ttl), nil
}

func newRedisBackendWithClient(client *redis.Client, prefix string, ttl time.Duration) *redisBackend {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &redisBackend{client: client, prefix: prefix, ttl: ttl}
}

func (r *redisBackend) name() string { return "redis" }

func (r *redisBackend) get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

func (r *redisBackend) put(ctx context.Context, key string, val []byte) error {
	return r.client.Set(ctx, r.prefix+key, val, r.ttl).Err()
}

func (r *redisBackend) del(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

func (r *redisBackend) keys(ctx context.Context) ([]string, error) {
	var out []string
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		out = append(out, strings.TrimPrefix(iter.Val(), r.prefix))
	}
	return out, iter.Err()
}

func (r *redisBackend) ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }
func (r *redisBackend) close() error                   { return r.client.Close() }
