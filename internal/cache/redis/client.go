package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/epiwatch/backend/internal/geocode"
	"github.com/epiwatch/backend/pkg/logger"
	"github.com/epiwatch/backend/pkg/utils"
)

const geocodePrefix = "geocode:"

type Client struct {
	client      *redis.Client
	ttl         time.Duration
	negativeTTL time.Duration
}

func NewClient(host string, port int, password string, db int, ttl, negativeTTL time.Duration) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return NewFromRedis(client, ttl, negativeTTL), nil
}

// NewFromRedis wraps an existing go-redis client.
func NewFromRedis(client *redis.Client, ttl, negativeTTL time.Duration) *Client {
	return &Client{client: client, ttl: ttl, negativeTTL: negativeTTL}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Set stores a geocode outcome. Negative entries use the shorter TTL.
func (c *Client) Set(ctx context.Context, key string, entry geocode.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal geocode entry: %w", err)
	}

	ttl := c.ttl
	if !entry.Found {
		ttl = c.negativeTTL
	}

	if err := c.client.Set(ctx, geocodeKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set geocode cache: %w", err)
	}

	logger.Debug("Geocode cached", zap.String("key", key), zap.Bool("found", entry.Found), zap.Duration("ttl", ttl))
	return nil
}

func (c *Client) Get(ctx context.Context, key string) (geocode.Entry, bool, error) {
	var entry geocode.Entry

	data, err := c.client.Get(ctx, geocodeKey(key)).Bytes()
	if err == redis.Nil {
		return entry, false, nil
	}
	if err != nil {
		return entry, false, fmt.Errorf("failed to get geocode cache: %w", err)
	}

	if err := json.Unmarshal(data, &entry); err != nil {
		return entry, false, fmt.Errorf("failed to unmarshal geocode entry: %w", err)
	}

	logger.Debug("Geocode cache hit", zap.String("key", key))
	return entry, true, nil
}

// Invalidate removes every cached geocode entry.
func (c *Client) Invalidate(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, geocodePrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warn("Failed to delete cache key", zap.Error(err))
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("Geocode cache invalidated")
	return nil
}

func geocodeKey(key string) string {
	return geocodePrefix + utils.HashString(key)
}
