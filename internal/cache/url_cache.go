package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Varun5711/shortlink/internal/logger"
	"github.com/Varun5711/shortlink/internal/metrics"
	kv "github.com/Varun5711/shortlink/internal/redis"
	"github.com/redis/go-redis/v9"
)

const urlKeyPrefix = "url:"

// Entry is the JSON document stored under url:<shortCode>.
type Entry struct {
	OriginalURL string `json:"originalUrl"`
}

type Config struct {
	TTL        time.Duration
	L1Capacity int
	L1TTL      time.Duration
	OpTimeout  time.Duration
}

// URLCache maps short codes to original URLs. Every operation is
// best-effort: store failures turn into misses or no-ops and are only logged.
type URLCache struct {
	l1        *LRUCache
	l2        *redis.Client
	ttl       time.Duration
	opTimeout time.Duration
	log       *logger.Logger
}

func NewURLCache(client *redis.Client, cfg Config, log *logger.Logger) *URLCache {
	if log == nil {
		log = logger.Nop()
	}
	c := &URLCache{
		l2:        client,
		ttl:       cfg.TTL,
		opTimeout: cfg.OpTimeout,
		log:       log,
	}
	if cfg.L1Capacity > 0 {
		c.l1 = NewLRUCache(cfg.L1Capacity, cfg.L1TTL)
	}
	return c
}

func URLKey(shortCode string) string {
	return urlKeyPrefix + shortCode
}

func (c *URLCache) Get(ctx context.Context, shortCode string) (*Entry, bool) {
	if c.l1 != nil {
		if val, found := c.l1.Get(shortCode); found {
			metrics.CacheLookups.WithLabelValues("l1", "hit").Inc()
			return &Entry{OriginalURL: val}, true
		}
		metrics.CacheLookups.WithLabelValues("l1", "miss").Inc()
	}

	ctx, cancel := kv.OpContext(ctx, c.opTimeout)
	defer cancel()

	raw, err := c.l2.Get(ctx, URLKey(shortCode)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheLookups.WithLabelValues("l2", "miss").Inc()
		return nil, false
	}
	if err != nil {
		c.degraded("get", shortCode, err)
		metrics.CacheLookups.WithLabelValues("l2", "error").Inc()
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil || entry.OriginalURL == "" {
		c.log.Warn("Discarding malformed cache entry for %s: %v", shortCode, err)
		metrics.CacheLookups.WithLabelValues("l2", "error").Inc()
		return nil, false
	}

	metrics.CacheLookups.WithLabelValues("l2", "hit").Inc()
	if c.l1 != nil {
		c.l1.Set(shortCode, entry.OriginalURL)
	}
	return &entry, true
}

func (c *URLCache) Set(ctx context.Context, shortCode, originalURL string) {
	if c.l1 != nil {
		c.l1.Set(shortCode, originalURL)
	}

	data, err := json.Marshal(Entry{OriginalURL: originalURL})
	if err != nil {
		c.log.Error("Failed to encode cache entry for %s: %v", shortCode, err)
		return
	}

	ctx, cancel := kv.OpContext(ctx, c.opTimeout)
	defer cancel()

	if err := c.l2.Set(ctx, URLKey(shortCode), data, c.ttl).Err(); err != nil {
		c.degraded("set", shortCode, err)
	}
}

// Delete drops the entry from both tiers. Other processes' L1 copies expire
// on their own TTL.
func (c *URLCache) Delete(ctx context.Context, shortCode string) {
	if c.l1 != nil {
		c.l1.Delete(shortCode)
	}

	ctx, cancel := kv.OpContext(ctx, c.opTimeout)
	defer cancel()

	if err := c.l2.Del(ctx, URLKey(shortCode)).Err(); err != nil {
		c.degraded("delete", shortCode, err)
	}
}

func (c *URLCache) degraded(op, shortCode string, err error) {
	metrics.StoreDegraded.WithLabelValues("url_cache").Inc()
	c.log.Warn("URL cache %s for %s failed: %v", op, shortCode, kv.Degraded(op, err))
}
