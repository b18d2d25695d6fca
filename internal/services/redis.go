package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisService owns the shared Redis connection used by the cache backend,
// the event broadcaster and the events handler.
type RedisService struct {
	client     *redis.Client
	logger     *slog.Logger
	maxRetries int
	retryDelay time.Duration
}

// NewRedisService parses a redis:// URL (a bare host:port is accepted too)
// and creates the client. It does not connect; see WaitForConnection.
func NewRedisService(redisURL string, logger *slog.Logger) (*RedisService, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		opt = &redis.Options{Addr: redisURL}
		if redisURL == "" {
			return nil, fmt.Errorf("failed to parse redis URL: %w", err)
		}
	}
	return NewRedisServiceFromClient(redis.NewClient(opt), logger), nil
}

// NewRedisServiceFromClient wraps an existing client.
func NewRedisServiceFromClient(client *redis.Client, logger *slog.Logger) *RedisService {
	return &RedisService{
		client:     client,
		logger:     logger,
		maxRetries: 30,
		retryDelay: 2 * time.Second,
	}
}

func (r *RedisService) Ping(ctx context.Context) error {
	cmd := r.client.Ping(ctx)
	if err := cmd.Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	r.logger.Debug("Redis ping successful", "result", cmd.Val())
	return nil
}

func (r *RedisService) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}

	r.logger.Info("Redis connection closed")
	return nil
}

func (r *RedisService) GetClient() *redis.Client {
	return r.client
}

func (r *RedisService) WaitForConnection(ctx context.Context) error {
	for i := 0; i < r.maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(r.retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", r.maxRetries)
}
