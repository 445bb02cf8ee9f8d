package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"marmobot/internal/core"
)

const (
	redisFieldTitle     = "title"
	redisFieldDuration  = "duration_ms"
	redisFieldThumbnail = "thumbnail_url"
	redisScanCount      = 500
	redisPingTimeout    = 5 * time.Second
)

// RedisBackend stores each track as a hash under prefix+id.
type RedisBackend struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(ctx context.Context, config *core.StoreConfig, logger *zap.Logger) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", config.RedisAddr, err)
	}

	prefix := config.RedisKeyPrefix
	if prefix == "" {
		prefix = core.DefaultRedisKeyPrefix
	}

	logger.Info("Redis metadata store connected",
		zap.String("addr", config.RedisAddr),
		zap.Int("db", config.RedisDB))
	return &RedisBackend{client: client, prefix: prefix, logger: logger}, nil
}

func (r *RedisBackend) key(id string) string {
	return r.prefix + id
}

// Get reads the metadata hash for id.
func (r *RedisBackend) Get(ctx context.Context, id string) (core.TrackMetadata, bool, error) {
	values, err := r.client.HGetAll(ctx, r.key(id)).Result()
	if errors.Is(err, redis.Nil) || (err == nil && len(values) == 0) {
		return core.TrackMetadata{}, false, nil
	}
	if err != nil {
		return core.TrackMetadata{}, false, fmt.Errorf("failed to read metadata %s: %w", id, err)
	}

	durationMS, err := strconv.ParseInt(values[redisFieldDuration], 10, 64)
	if err != nil {
		return core.TrackMetadata{}, false, fmt.Errorf("corrupt duration for %s: %w", id, err)
	}
	return core.TrackMetadata{
		Title:        values[redisFieldTitle],
		Duration:     time.Duration(durationMS) * time.Millisecond,
		ThumbnailURL: values[redisFieldThumbnail],
	}, true, nil
}

// Put writes the metadata hash for id.
func (r *RedisBackend) Put(ctx context.Context, id string, meta core.TrackMetadata) error {
	err := r.client.HSet(ctx, r.key(id),
		redisFieldTitle, meta.Title,
		redisFieldDuration, strconv.FormatInt(meta.Duration.Milliseconds(), 10),
		redisFieldThumbnail, meta.ThumbnailURL,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to write metadata %s: %w", id, err)
	}
	return nil
}

// IDs scans the key prefix for stored ids.
func (r *RedisBackend) IDs(ctx context.Context) ([]string, error) {
	var ids []string
	iter := r.client.Scan(ctx, 0, r.prefix+"*", redisScanCount).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), r.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan metadata keys: %w", err)
	}
	return ids, nil
}

// Close closes the client.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}
