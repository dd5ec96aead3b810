// Package redis keeps device last-seen cursors in Redis. Cursors are tiny,
// written on every disconnect and read on every connect, which is exactly
// the hot-key profile the relational store should not carry.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	rdb *redis.Client
}

// New connects and pings, failing fast on a bad URL.
func New(ctx context.Context, redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

func (c *Client) Close() error { return c.rdb.Close() }

func cursorKey(userID string) string { return "cursor:" + userID }

// GetDeviceLastSeen returns deviceID -> last-seen time id for all of the
// user's known devices.
func (c *Client) GetDeviceLastSeen(ctx context.Context, userID string) (map[string]string, error) {
	out, err := c.rdb.HGetAll(ctx, cursorKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get cursors user=%s: %w", userID, err)
	}
	return out, nil
}

func (c *Client) SetDeviceLastSeen(ctx context.Context, userID, deviceID, timeID string) error {
	if err := c.rdb.HSet(ctx, cursorKey(userID), deviceID, timeID).Err(); err != nil {
		return fmt.Errorf("redis set cursor user=%s device=%s: %w", userID, deviceID, err)
	}
	return nil
}
