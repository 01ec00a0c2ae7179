// Package redis implements the volatile stores of the scan pipeline: usage
// counters, cancellation flags, alert windows, and the progress broadcast
// channel.
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/traceprint/api/internal/config"
	"github.com/traceprint/api/pkg/logger"
)

// Client wraps redis.Client.
type Client struct {
	client *redis.Client
	logger *logger.Logger
}

// New creates a Redis client and verifies the connection with retry.
func New(cfg *config.RedisConfig, log *logger.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("redis config is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
	})

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
		err := client.Ping(ctx).Err()
		cancel()

		if err == nil {
			log.Info("redis connected", "addr", cfg.Addr(), "pool_size", cfg.PoolSize)
			return &Client{client: client, logger: log}, nil
		}

		lastErr = err
		if attempt < cfg.MaxRetries {
			backoff := 100 * time.Millisecond * time.Duration(1<<attempt)
			if backoff > 2*time.Second {
				backoff = 2 * time.Second
			}
			log.Warn("redis connection failed, retrying",
				"attempt", attempt+1,
				"backoff", backoff,
				"error", err,
			)
			time.Sleep(backoff)
		}
	}
	return nil, lastErr
}

// Client returns the underlying go-redis client.
func (c *Client) Client() *redis.Client {
	return c.client
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Ping implements the health check Pinger interface.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
