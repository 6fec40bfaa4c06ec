package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Logger is the subset of the shared logger this package needs
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// ErrKeyNotFound distinguishes a missing key from a transport failure
var ErrKeyNotFound = errors.New("redis: key not found")

// Client exposes the handful of redis operations the services use: session
// records, the drain lease and the audit event stream
type Client struct {
	rdb *redis.Client
	log Logger
}

// NewClient wraps a go-redis client
func NewClient(rdb *redis.Client, log Logger) *Client {
	return &Client{rdb: rdb, log: log}
}

// Get reads a key, mapping redis.Nil to ErrKeyNotFound
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "", ErrKeyNotFound
	case err != nil:
		c.log.Error("redis GET failed", "key", key, "error", err)
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

// SetWithExpiry writes a key with a TTL
func (c *Client) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		c.log.Error("redis SET failed", "key", key, "error", err)
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// SetNX writes a key only when absent; the drain lease is built on this
func (c *Client) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	acquired, err := c.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		c.log.Error("redis SETNX failed", "key", key, "error", err)
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return acquired, nil
}

// Delete removes keys; deleting a missing key is not an error
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.log.Error("redis DEL failed", "keys", keys, "error", err)
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// AddToStream appends an entry to a stream and returns its id
func (c *Client) AddToStream(ctx context.Context, stream string, values map[string]interface{}) (string, error) {
	id, err := c.rdb.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: values}).Result()
	if err != nil {
		c.log.Error("redis XADD failed", "stream", stream, "error", err)
		return "", fmt.Errorf("redis xadd %s: %w", stream, err)
	}
	return id, nil
}
