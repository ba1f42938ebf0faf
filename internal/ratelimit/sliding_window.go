// Package ratelimit implements a Redis-backed sliding window log limiter.
//
// Each client owns a sorted set under <prefix>:<clientID> whose members are
// request timestamps. A check prunes entries older than the window, records
// the current request, counts the set and refreshes its expiry, all inside a
// single MULTI/EXEC so concurrent checks for the same client never interleave.
//
// The limiter fails open: if Redis is unreachable or the transaction errors,
// the request is admitted.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/Varun5711/shortlink/internal/clock"
	"github.com/Varun5711/shortlink/internal/logger"
	"github.com/Varun5711/shortlink/internal/metrics"
	kv "github.com/Varun5711/shortlink/internal/redis"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultKeyPrefix = "rate_limit"
	DefaultMessage   = "Too many requests"
)

// Options configure one protected route.
type Options struct {
	Limit     int
	Window    time.Duration
	KeyPrefix string
	Message   string
}

func (o Options) withDefaults() Options {
	if o.KeyPrefix == "" {
		o.KeyPrefix = DefaultKeyPrefix
	}
	if o.Message == "" {
		o.Message = DefaultMessage
	}
	if o.Window < time.Second {
		o.Window = time.Second
	}
	if o.Limit < 1 {
		o.Limit = 1
	}
	return o
}

type Result struct {
	Allowed   bool
	Remaining int
	ResetTime time.Time
	TotalHits int64
}

// RetryAfter is the whole number of seconds until ResetTime, never negative.
func (r Result) RetryAfter(now time.Time) int {
	d := r.ResetTime.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

type Status struct {
	Count int64 `json:"count"`
	// TTL is in seconds; -2 when the key is absent, -1 when unknown.
	TTL int64 `json:"ttl"`
}

type SlidingWindow struct {
	client    *redis.Client
	clock     clock.Clock
	opTimeout time.Duration
	log       *logger.Logger
}

func NewSlidingWindow(client *redis.Client, clk clock.Clock, opTimeout time.Duration, log *logger.Logger) *SlidingWindow {
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SlidingWindow{
		client:    client,
		clock:     clk,
		opTimeout: opTimeout,
		log:       log,
	}
}

func Key(prefix, clientID string) string {
	return prefix + ":" + clientID
}

func (s *SlidingWindow) Check(ctx context.Context, clientID string, opts Options) Result {
	opts = opts.withDefaults()
	now := s.clock.Now()
	nowMs := now.UnixMilli()
	windowStart := nowMs - opts.Window.Milliseconds()
	key := Key(opts.KeyPrefix, clientID)

	ctx, cancel := kv.OpContext(ctx, s.opTimeout)
	defer cancel()

	var card *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(windowStart, 10))
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(nowMs),
			Member: fmt.Sprintf("%d-%s", nowMs, uuid.NewString()),
		})
		card = pipe.ZCard(ctx, key)
		pipe.Expire(ctx, key, opts.Window)
		return nil
	})
	resetTime := now.Add(opts.Window)

	if err != nil {
		metrics.RateLimitDecisions.WithLabelValues(opts.KeyPrefix, "failopen").Inc()
		metrics.StoreDegraded.WithLabelValues("ratelimit").Inc()
		s.log.Error("Rate limit check for %s failed, admitting: %v", key, kv.Degraded("check", err))
		return Result{
			Allowed:   true,
			Remaining: opts.Limit - 1,
			ResetTime: resetTime,
			TotalHits: 1,
		}
	}

	total := card.Val()
	result := Result{
		Allowed:   total <= int64(opts.Limit),
		Remaining: max(0, opts.Limit-int(total)),
		ResetTime: resetTime,
		TotalHits: total,
	}

	if result.Allowed {
		metrics.RateLimitDecisions.WithLabelValues(opts.KeyPrefix, "allowed").Inc()
	} else {
		metrics.RateLimitDecisions.WithLabelValues(opts.KeyPrefix, "rejected").Inc()
		s.log.Warn("Rate limit exceeded for %s: %d/%d requests", key, total, opts.Limit)
	}
	return result
}

// Status reports the current window occupancy without recording a request.
func (s *SlidingWindow) Status(ctx context.Context, clientID, keyPrefix string) Status {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	key := Key(keyPrefix, clientID)

	ctx, cancel := kv.OpContext(ctx, s.opTimeout)
	defer cancel()

	var (
		card *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		card = pipe.ZCard(ctx, key)
		ttl = pipe.TTL(ctx, key)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		s.log.Warn("Rate limit status for %s failed: %v", key, kv.Degraded("status", err))
		return Status{Count: 0, TTL: -1}
	}

	return Status{Count: card.Val(), TTL: ttlSeconds(ttl.Val())}
}

// ttlSeconds keeps the -1/-2 sentinels go-redis reports as raw durations.
func ttlSeconds(d time.Duration) int64 {
	if d < 0 {
		return int64(d)
	}
	return int64(d / time.Second)
}
