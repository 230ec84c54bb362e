// Package cache stores serialized reference lists so repeated reads skip the database.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"refdata/internal/config"
)

// Cache is a byte-oriented key/value store with a store-wide TTL.
type Cache interface {
	// Get returns the cached value and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key, replacing any existing entry.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	// Ping checks connectivity.
	Ping(ctx context.Context) error
}

// Metrics counts cache lookups by outcome.
type Metrics struct {
	lookups *prometheus.CounterVec
}

// NewMetrics registers the cache counters on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "refdata_cache_lookups_total",
				Help: "Reference cache lookups by result (hit, miss, error).",
			},
			[]string{"result"},
		),
	}
	if err := reg.Register(m.lookups); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) observe(result string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(result).Inc()
}

// RedisCache implements Cache on go-redis.
type RedisCache struct {
	client  redis.UniversalClient
	prefix  string
	ttl     time.Duration
	metrics *Metrics
}

// NewRedisClient opens a client for cfg and verifies it with PING.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// NewRedisCache wraps client. Keys are namespaced as "<prefix>:<key>".
func NewRedisCache(client redis.UniversalClient, prefix string, ttl time.Duration, metrics *Metrics) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl, metrics: metrics}
}

var _ Cache = (*RedisCache)(nil)

func (c *RedisCache) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

// Get reads key.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.metrics.observe("miss")
		return nil, false, nil
	}
	if err != nil {
		c.metrics.observe("error")
		return nil, false, err
	}
	c.metrics.observe("hit")
	return val, true, nil
}

// Set writes key with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte) error {
	return c.client.Set(ctx, c.key(key), value, c.ttl).Err()
}

// Delete removes keys.
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	return c.client.Del(ctx, full...).Err()
}

// Ping checks the server.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
