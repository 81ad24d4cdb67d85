// Package repository implements notification status persistence on Redis.
// Reads fail open: a store outage is reported as an absent status so that
// events keep flowing, at the cost of possible duplicate notifications.
package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/allisson/notifier/internal/errors"
	"github.com/allisson/notifier/internal/notification/domain"
)

// StatusKey returns the Redis key holding the status of an event.
func StatusKey(eventID uuid.UUID) string {
	return "notification:" + eventID.String()
}

// AttemptsKey returns the Redis key counting delivery attempts of a message.
func AttemptsKey(key string) string {
	return "notification:" + key + ":attempts"
}

// NewClient creates a Redis client from a redis:// URL. It does not connect.
func NewClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput, "parse redis url: %v", err)
	}
	return redis.NewClient(opt), nil
}

// RedisStatusRepository stores notification statuses with a retention TTL.
type RedisStatusRepository struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisStatusRepository creates a repository. A non-positive ttl falls back to domain.DefaultStatusTTL.
func NewRedisStatusRepository(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisStatusRepository {
	if ttl <= 0 {
		ttl = domain.DefaultStatusTTL
	}
	return &RedisStatusRepository{
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "status_store"),
	}
}

// Ping verifies the store is reachable.
func (r *RedisStatusRepository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return apperrors.Wrapf(apperrors.ErrConnection, "ping status store: %v", err)
	}
	return nil
}

// Get returns the recorded status of an event. Missing keys, unreadable values
// and store errors all report false.
func (r *RedisStatusRepository) Get(ctx context.Context, eventID uuid.UUID) (domain.NotificationStatus, bool) {
	value, err := r.client.Get(ctx, StatusKey(eventID)).Result()
	if err != nil {
		if !apperrors.Is(err, redis.Nil) {
			r.logger.Error("failed to read notification status",
				slog.String("event_id", eventID.String()),
				slog.Any("error", err),
			)
		}
		return "", false
	}

	status, ok := domain.ParseNotificationStatus(value)
	if !ok {
		r.logger.Warn("unrecognized notification status",
			slog.String("event_id", eventID.String()),
			slog.String("value", value),
		)
	}
	return status, ok
}

// Set records the status of an event, refreshing its TTL. Failures are logged only.
func (r *RedisStatusRepository) Set(ctx context.Context, eventID uuid.UUID, status domain.NotificationStatus) {
	if err := r.client.Set(ctx, StatusKey(eventID), string(status), r.ttl).Err(); err != nil {
		r.logger.Error("failed to write notification status",
			slog.String("event_id", eventID.String()),
			slog.String("status", string(status)),
			slog.Any("error", err),
		)
	}
}

// IncrAttempts increments the delivery attempt counter of a message and returns
// the new count. It returns 0 when the store cannot be reached.
func (r *RedisStatusRepository) IncrAttempts(ctx context.Context, key string) int64 {
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, AttemptsKey(key))
	pipe.Expire(ctx, AttemptsKey(key), r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("failed to count delivery attempt",
			slog.String("key", key),
			slog.Any("error", err),
		)
		return 0
	}
	return incr.Val()
}

// Close releases the underlying client.
func (r *RedisStatusRepository) Close() error {
	if err := r.client.Close(); err != nil && !apperrors.Is(err, redis.ErrClosed) {
		return apperrors.Wrap(err, "close status store")
	}
	return nil
}
