// Package coordination adapts the platform's C3 coordination store: atomic
// pipelines, sets, sorted sets, and hashes against a single redis-compatible
// key-value store. It holds system settings/info, per-(cluster,node,scaler)
// worker membership, network-policy group and used-by sets, and per-scaler
// deadline sorted sets — index and transient state, never the record of
// truth for samples, repositories, pipelines, or reactions (that lives in
// pkg/metadata).
package coordination

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
	"github.com/thoriumlabs/thorium/pkg/config"
)

// Client wraps a redis connection scoped to one deployment namespace.
type Client struct {
	rdb       *redis.Client
	namespace string
}

// NewClient dials the coordination store described by cfg.
func NewClient(ctx context.Context, cfg config.CoordinationConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, apierrors.Wrap(apierrors.KindUnavailable, err, "connect to coordination store")
	}
	return &Client{rdb: rdb, namespace: cfg.Namespace}, nil
}

// NewClientFromRedis wraps an already-constructed *redis.Client, used by
// tests against miniredis.
func NewClientFromRedis(rdb *redis.Client, namespace string) *Client {
	return &Client{rdb: rdb, namespace: namespace}
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Raw exposes the underlying redis client for components that need
// primitives this package does not wrap (e.g. pkg/deadline's ZRANGEBYSCORE
// iteration).
func (c *Client) Raw() *redis.Client {
	return c.rdb
}

func (c *Client) key(parts ...string) string {
	k := c.namespace
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func wrapRedisErr(err error, format string, args ...any) error {
	if err == nil || err == redis.Nil {
		return nil
	}
	return apierrors.Wrap(apierrors.KindUnavailable, err, fmt.Sprintf(format, args...))
}
