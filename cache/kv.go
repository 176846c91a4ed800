// Package cache provides the redis-backed session snapshot store and a
// read-through layering over the durable record store.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"demixer/core/session"
	"demixer/logger"
)

// snapshotTTL keeps cached snapshots for a day; the durable row is the
// source of truth after expiry.
const snapshotTTL = 24 * time.Hour

// RedisKV implements session.KeyValuePersistence on a redis client.
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV wraps a connected client.
func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

// Load fetches a value, mapping redis.Nil to session.ErrNotFound.
func (r *RedisKV) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get key %s from redis: %w", key, err)
	}
	return data, nil
}

// Save stores a value with the snapshot TTL.
func (r *RedisKV) Save(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, key, value, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("failed to set key %s in redis: %w", key, err)
	}
	return nil
}

// LayeredKV reads through a fast cache into a durable store and writes to
// both. A cache outage degrades to the store alone instead of failing the
// request.
type LayeredKV struct {
	cache session.KeyValuePersistence
	store session.KeyValuePersistence
}

// NewLayeredKV layers cache over store.
func NewLayeredKV(cache, store session.KeyValuePersistence) *LayeredKV {
	return &LayeredKV{cache: cache, store: store}
}

// Load tries the cache first, falls back to the store and backfills on a
// hit.
func (l *LayeredKV) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := l.cache.Load(ctx, key)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, session.ErrNotFound) {
		logger.Warn("snapshot cache read failed, falling back to store",
			logger.String("key", key), logger.ErrorField(err))
	}

	data, err = l.store.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if cacheErr := l.cache.Save(ctx, key, data); cacheErr != nil {
		logger.Warn("snapshot cache backfill failed",
			logger.String("key", key), logger.ErrorField(cacheErr))
	}
	return data, nil
}

// Save writes the store first; only a store failure fails the save.
func (l *LayeredKV) Save(ctx context.Context, key string, value []byte) error {
	if err := l.store.Save(ctx, key, value); err != nil {
		return err
	}
	if err := l.cache.Save(ctx, key, value); err != nil {
		logger.Warn("snapshot cache write failed",
			logger.String("key", key), logger.ErrorField(err))
	}
	return nil
}
