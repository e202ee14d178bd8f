package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis implementa Store sobre go-redis.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis conecta y verifica con PING.
func NewRedis(ctx context.Context, cfg Config) (*Redis, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("kv: redis ping failed: %w", err)
	}
	return NewRedisFromClient(rdb, cfg.Prefix), nil
}

// Client expone el cliente (lo reusa el rate limiter del dashboard).
func (r *Redis) Client() *redis.Client { return r.client }

// NewRedisFromClient envuelve un cliente existente.
func NewRedisFromClient(rdb *redis.Client, prefix string) *Redis {
	return &Redis{client: rdb, prefix: prefix}
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, prefixed(r.prefix, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, prefixed(r.prefix, key), value, 0).Err()
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, prefixed(r.prefix, key)).Err()
}

func (r *Redis) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }
func (r *Redis) Close() error                   { return r.client.Close() }
func (r *Redis) Driver() string                 { return "redis" }
