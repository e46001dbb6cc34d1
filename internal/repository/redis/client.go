package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultDocumentTTL bounds how long an untouched session survives. Every
// write refreshes it.
const defaultDocumentTTL = 24 * time.Hour

// Client wraps the Redis client used for live session documents, change
// fan-out and phase timers.
type Client struct {
	rdb    *redis.Client
	docTTL time.Duration
}

// NewClient creates a Redis client from a connection URL.
func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{rdb: rdb, docTTL: defaultDocumentTTL}, nil
}

// NewClientFromPool wraps an existing redis.Client, for tests.
func NewClientFromPool(rdb *redis.Client) *Client {
	return &Client{rdb: rdb, docTTL: defaultDocumentTTL}
}

// SetDocumentTTL changes the expiry applied to documents on every write.
// Zero keeps documents forever.
func (c *Client) SetDocumentTTL(ttl time.Duration) {
	c.docTTL = ttl
}

// EnableExpiryEvents turns on keyspace notifications for expired keys so
// phase timers can be observed.
func (c *Client) EnableExpiryEvents(ctx context.Context) error {
	return c.rdb.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying returns the raw redis client for keyspace notifications.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}
