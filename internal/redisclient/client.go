package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const sessionKeyPrefix = "ledger:session:"

type Client struct {
	rdb       *redis.Client
	markerTTL time.Duration
}

// NewClient creates a new Redis client and verifies the connection
func NewClient(addr, password string, db int, markerTTL time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewClientFromRedis(rdb, markerTTL), nil
}

// NewClientFromRedis wraps an existing connection
func NewClientFromRedis(rdb *redis.Client, markerTTL time.Duration) *Client {
	return &Client{rdb: rdb, markerTTL: markerTTL}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// MarkSessionProcessed records that a checkout session produced an order.
// The marker expires; Postgres stays authoritative.
func (c *Client) MarkSessionProcessed(ctx context.Context, sessionID string, orderID int64) error {
	return c.rdb.Set(ctx, sessionKeyPrefix+sessionID, orderID, c.markerTTL).Err()
}

// IsSessionProcessed checks for a processed-session marker
func (c *Client) IsSessionProcessed(ctx context.Context, sessionID string) (bool, error) {
	result, err := c.rdb.Exists(ctx, sessionKeyPrefix+sessionID).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}
