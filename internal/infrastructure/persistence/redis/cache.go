// Package redis holds the Redis side of the progression engine: the
// distributed per-student lock, the organization XP rankings and the cached
// student statistics. All of them share one Cache.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// KEYS
// ══════════════════════════════════════════════════════════════════════════════

const (
	PrefixStudentStats = "stats:student:"
	PrefixLeaderboard  = "leaderboard:"
	PrefixLock         = "lock:student:"
	PrefixPubSub       = "progression:"

	// TTLStudentStats bounds staleness when an invalidation is lost.
	TTLStudentStats = 10 * time.Minute

	// TTLDistributedLock applies when the caller passes no TTL.
	TTLDistributedLock = 10 * time.Second
)

func StudentStatsKey(studentID string) string { return PrefixStudentStats + studentID }

// LeaderboardKey is the sorted set of an organization; "" ranks everyone.
func LeaderboardKey(organizationID string) string {
	if organizationID == "" {
		return PrefixLeaderboard + "all"
	}
	return PrefixLeaderboard + organizationID
}

// LockKey strips the engine's "student:" prefix so lock keys stay short.
func LockKey(resource string) string {
	const enginePrefix = "student:"
	if len(resource) > len(enginePrefix) && resource[:len(enginePrefix)] == enginePrefix {
		resource = resource[len(enginePrefix):]
	}
	return PrefixLock + resource
}

// PubSubChannel is the channel an event type is forwarded on.
func PubSubChannel(eventType string) string { return PrefixPubSub + eventType }

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrCacheMiss          = errors.New("cache: key not found")
	ErrCacheConnection    = errors.New("cache: connection failed")
	ErrCacheSerialization = errors.New("cache: serialization failed")
	ErrCacheKeyEmpty      = errors.New("cache: key cannot be empty")
)

// Config holds the connection settings. Zero durations and sizes take the
// client defaults below.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int
	MaxRetries   int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c Config) options() *redis.Options {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6379
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	return &redis.Options{
		Addr:         net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		MaxRetries:   c.MaxRetries,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}

// Cache is a go-redis client that stores values as JSON.
type Cache struct {
	client redis.UniversalClient
}

// NewCache connects and pings once within the dial timeout.
func NewCache(cfg Config) (*Cache, error) {
	opts := cfg.options()
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrCacheConnection, opts.Addr, err)
	}
	return &Cache{client: client}, nil
}

func (c *Cache) Client() redis.UniversalClient { return c.client }

func (c *Cache) Close() error { return c.client.Close() }

// Set stores value as JSON. A zero ttl keeps the key until deleted.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Get decodes the value under key into dest, or returns ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return ErrCacheMiss
	case err != nil:
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// DeleteByPattern walks the keyspace with SCAN and deletes in batches.
func (c *Cache) DeleteByPattern(ctx context.Context, pattern string) error {
	if pattern == "" {
		return ErrCacheKeyEmpty
	}
	const batch = 100

	keys := make([]string, 0, batch)
	iter := c.client.Scan(ctx, 0, pattern, batch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == batch {
			if err := c.Delete(ctx, keys...); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	return c.Delete(ctx, keys...)
}

// Publish sends message as JSON on channel.
func (c *Cache) Publish(ctx context.Context, channel string, message any) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return c.client.Publish(ctx, channel, data).Err()
}
