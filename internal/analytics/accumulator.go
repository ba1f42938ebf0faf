// Package analytics buffers redirect clicks in Redis and writes them back to
// the durable store on a schedule.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Varun5711/shortlink/internal/logger"
	"github.com/Varun5711/shortlink/internal/metrics"
	kv "github.com/Varun5711/shortlink/internal/redis"
	"github.com/redis/go-redis/v9"
)

const (
	clickKeyPrefix = "clicks:"
	scanCount      = 500
	chunkSize      = 100
)

func ClickKey(shortCode string) string {
	return clickKeyPrefix + shortCode
}

// Accumulator keeps a cumulative pending-click counter per short code.
type Accumulator struct {
	client    *redis.Client
	ttl       time.Duration
	opTimeout time.Duration
	log       *logger.Logger
}

func NewAccumulator(client *redis.Client, ttl, opTimeout time.Duration, log *logger.Logger) *Accumulator {
	if log == nil {
		log = logger.Nop()
	}
	return &Accumulator{
		client:    client,
		ttl:       ttl,
		opTimeout: opTimeout,
		log:       log,
	}
}

// Increment bumps the counter and refreshes its TTL in one transaction. It
// returns the new count, or 0 when the store is unavailable.
func (a *Accumulator) Increment(ctx context.Context, shortCode string) int64 {
	ctx, cancel := kv.OpContext(ctx, a.opTimeout)
	defer cancel()

	key := ClickKey(shortCode)
	var incr *redis.IntCmd
	_, err := a.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, a.ttl)
		return nil
	})
	if err != nil {
		metrics.ClickIncrements.WithLabelValues("error").Inc()
		metrics.StoreDegraded.WithLabelValues("accumulator").Inc()
		a.log.Warn("Dropping click for %s: %v", shortCode, kv.Degraded("increment", err))
		return 0
	}

	metrics.ClickIncrements.WithLabelValues("ok").Inc()
	return incr.Val()
}

// Pending returns the unflushed count for one code, 0 if absent or unreadable.
func (a *Accumulator) Pending(ctx context.Context, shortCode string) int64 {
	ctx, cancel := kv.OpContext(ctx, a.opTimeout)
	defer cancel()

	n, err := a.client.Get(ctx, ClickKey(shortCode)).Int64()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			metrics.StoreDegraded.WithLabelValues("accumulator").Inc()
			a.log.Warn("Failed to read pending clicks for %s: %v", shortCode, kv.Degraded("get", err))
		}
		return 0
	}
	if n < 0 {
		return 0
	}
	return n
}

// ListAll snapshots every counter with a positive value. It walks the key
// space with SCAN so a large backlog never blocks the server.
func (a *Accumulator) ListAll(ctx context.Context) (map[string]int64, error) {
	keys, err := a.scanKeys(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(keys))
	for start := 0; start < len(keys); start += chunkSize {
		end := min(start+chunkSize, len(keys))
		chunk := keys[start:end]

		opCtx, cancel := kv.OpContext(ctx, a.opTimeout)
		vals, err := a.client.MGet(opCtx, chunk...).Result()
		cancel()
		if err != nil {
			return nil, kv.Degraded("mget", err)
		}

		for i, v := range vals {
			s, ok := v.(string)
			if !ok {
				// Expired between SCAN and MGET.
				continue
			}
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil || n <= 0 {
				continue
			}
			counts[strings.TrimPrefix(chunk[i], clickKeyPrefix)] = n
		}
	}

	return counts, nil
}

// scanKeys pages through the counters with one deadline per SCAN call.
func (a *Accumulator) scanKeys(ctx context.Context) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		opCtx, cancel := kv.OpContext(ctx, a.opTimeout)
		page, next, err := a.client.Scan(opCtx, cursor, clickKeyPrefix+"*", scanCount).Result()
		cancel()
		if err != nil {
			return nil, kv.Degraded("scan", err)
		}
		keys = append(keys, page...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

// Clear deletes exactly the given counters.
func (a *Accumulator) Clear(ctx context.Context, shortCodes []string) error {
	if len(shortCodes) == 0 {
		return nil
	}

	for start := 0; start < len(shortCodes); start += chunkSize {
		end := min(start+chunkSize, len(shortCodes))
		keys := make([]string, 0, end-start)
		for _, code := range shortCodes[start:end] {
			keys = append(keys, ClickKey(code))
		}
		opCtx, cancel := kv.OpContext(ctx, a.opTimeout)
		err := a.client.Del(opCtx, keys...).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("clear %d counters: %w", len(keys), kv.Degraded("del", err))
		}
	}
	return nil
}

// settleScript subtracts a flushed snapshot from a live counter and removes
// the key once nothing is left. Clicks that landed after the snapshot stay.
const settleScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
local left = redis.call("DECRBY", KEYS[1], ARGV[1])
if left <= 0 then
	redis.call("DEL", KEYS[1])
	return 0
end
return left
`

// Settle removes flushed counts from the accumulator. Codes whose counters
// grew since the snapshot keep the difference for the next run.
func (a *Accumulator) Settle(ctx context.Context, flushed map[string]int64) error {
	if len(flushed) == 0 {
		return nil
	}

	codes := make([]string, 0, len(flushed))
	for code := range flushed {
		codes = append(codes, code)
	}

	for start := 0; start < len(codes); start += chunkSize {
		end := min(start+chunkSize, len(codes))
		opCtx, cancel := kv.OpContext(ctx, a.opTimeout)
		_, err := a.client.Pipelined(opCtx, func(pipe redis.Pipeliner) error {
			for _, code := range codes[start:end] {
				pipe.Eval(opCtx, settleScript, []string{ClickKey(code)}, flushed[code])
			}
			return nil
		})
		cancel()
		if err != nil {
			return fmt.Errorf("settle %d counters: %w", end-start, kv.Degraded("eval", err))
		}
	}
	return nil
}
