package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nerrad567/gray-logic-enocean/internal/infrastructure/config"
)

// Client connection settings.
const (
	dialTimeout  = 5 * time.Second
	ioTimeout    = 3 * time.Second
	pingTimeout  = 500 * time.Millisecond
	poolSize     = 10
	minIdleConns = 2
	maxRetries   = 3
)

// Sentinel errors for Redis operations.
var (
	// ErrDisabled indicates Redis integration is disabled in config.
	ErrDisabled = errors.New("redis: disabled in configuration")

	// ErrConnectionFailed indicates the initial ping failed.
	ErrConnectionFailed = errors.New("redis: connection failed")
)

// Client wraps the go-redis client with the bridge's key prefix.
type Client struct {
	*redis.Client
	prefix string
}

// Connect creates a pooled client and pings the server once.
//
// Parameters:
//   - ctx: Bounds the initial ping
//   - cfg: Redis configuration
//
// Returns:
//   - *Client: Connected client
//   - error: ErrDisabled or ErrConnectionFailed
func Connect(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  dialTimeout,
		ReadTimeout:  ioTimeout,
		WriteTimeout: ioTimeout,
		PoolSize:     poolSize,
		MinIdleConns: minIdleConns,
		MaxRetries:   maxRetries,
	})

	c := &Client{Client: rdb, prefix: cfg.KeyPrefix}
	if err := c.HealthCheck(ctx); err != nil {
		rdb.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return c, nil
}

// HealthCheck pings the server with a short timeout.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return c.Ping(ctx).Err()
}

// Key joins parts onto the configured prefix with ':'.
//
// Example: Key("point", "Sensors/temp1.txt") -> "eobridge:point:Sensors/temp1.txt"
func (c *Client) Key(parts ...string) string {
	key := c.prefix
	for _, p := range parts {
		if key == "" {
			key = p
			continue
		}
		key += ":" + p
	}
	return key
}

// Close closes the connection pool. Safe on a nil client.
func (c *Client) Close() error {
	if c == nil || c.Client == nil {
		return nil
	}
	return c.Client.Close()
}
