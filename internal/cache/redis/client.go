// Package redis backs the snapshot cache and the wallet session lock with
// go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces every key so one Redis instance can serve several bot
// deployments without collisions.
const keyPrefix = "blackjackbot:"

// Commands must come back well inside one heartbeat. A cache slower than
// this is worse than no cache: the aggregator falls back to a direct venue
// fetch on any error, so short timeouts keep a degraded Redis from stalling
// the trading loop.
const (
	dialTimeout    = 2 * time.Second
	commandTimeout = 500 * time.Millisecond
)

// Config holds connection parameters for the cache backend.
type Config struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

// Client wraps a go-redis client tuned for the trading loop.
type Client struct {
	rdb *redis.Client
}

// New connects to Redis and pings it before returning. Snapshot lookups sit
// on the hot path of every cycle, so a backend that cannot answer at startup
// is rejected outright instead of discovered mid-session.
func New(ctx context.Context, cfg Config) (*Client, error) {
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   cfg.MaxRetries,
		ClientName:   "blackjackbot",
		DialTimeout:  dialTimeout,
		ReadTimeout:  commandTimeout,
		WriteTimeout: commandTimeout,
	}

	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	rdb := redis.NewClient(opts)

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
