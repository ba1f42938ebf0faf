package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreDegraded marks a key-value failure that a component absorbed
// instead of returning to its caller.
var ErrStoreDegraded = errors.New("key-value store degraded")

type RedisClient struct {
	client *redis.Client
	name   string
}

type Config struct {
	// Name labels the endpoint in logs and stats ("cache", "analytics").
	Name     string
	Addr     string
	Password string
	DB       int
}

func NewRedisClient(ctx context.Context, cfg Config) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		// Per-operation deadlines from OpContext apply to socket I/O.
		ContextTimeoutEnabled: true,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis %s at %s: %w", cfg.Name, cfg.Addr, err)
	}

	return &RedisClient{
		client: rdb,
		name:   cfg.Name,
	}, nil
}

func (r *RedisClient) GetClient() *redis.Client {
	return r.client
}

func (r *RedisClient) Name() string {
	return r.name
}

func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}

func (r *RedisClient) Stats() map[string]interface{} {
	stats := r.client.PoolStats()
	return map[string]interface{}{
		"name":        r.name,
		"hits":        stats.Hits,
		"misses":      stats.Misses,
		"timeouts":    stats.Timeouts,
		"total_conns": stats.TotalConns,
		"idle_conns":  stats.IdleConns,
		"stale_conns": stats.StaleConns,
	}
}

// Degraded wraps err so callers can match ErrStoreDegraded while keeping
// the underlying cause.
func Degraded(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreDegraded, op, err)
}

// OpContext bounds a single store call. A non-positive timeout leaves ctx
// unchanged.
func OpContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
