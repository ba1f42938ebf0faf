package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Varun5711/shortlink/internal/logger"
	"github.com/Varun5711/shortlink/internal/metrics"
	"github.com/Varun5711/shortlink/internal/models"
)

const DefaultFlushBatchSize = 50

// FlushLockKey is the lock every flushing process contends on.
const FlushLockKey = "lock:analytics-flush"

// URLStore is the slice of durable storage the flusher writes through.
type URLStore interface {
	FindURLByShortCode(ctx context.Context, shortCode string) (*models.URL, error)
	IncrementURLClickCount(ctx context.Context, id int64, delta int64) (bool, error)
}

// Locker guards a flush across processes. *lock.DistributedLock satisfies it.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type FlushResult struct {
	Processed int           `json:"processed"`
	Errors    int           `json:"errors"`
	Duration  time.Duration `json:"duration"`
	// Skipped is set when another process held the flush lock.
	Skipped bool `json:"skipped"`
}

type Flusher struct {
	acc       *Accumulator
	store     URLStore
	lock      Locker
	batchSize int
	log       *logger.Logger
}

// NewFlusher wires a flusher. lock may be nil when only one process flushes.
func NewFlusher(acc *Accumulator, store URLStore, lock Locker, batchSize int, log *logger.Logger) *Flusher {
	if batchSize <= 0 {
		batchSize = DefaultFlushBatchSize
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Flusher{
		acc:       acc,
		store:     store,
		lock:      lock,
		batchSize: batchSize,
		log:       log,
	}
}

// Flush applies every pending click counter to the durable store once.
// Codes that fail, orphans included, stay in the accumulator for the next run.
func (f *Flusher) Flush(ctx context.Context) (FlushResult, error) {
	start := time.Now()
	var result FlushResult

	if f.lock != nil {
		ok, err := f.lock.Acquire(ctx)
		if err != nil {
			metrics.FlushRuns.WithLabelValues("failed").Inc()
			return result, fmt.Errorf("flush lock: %w", err)
		}
		if !ok {
			metrics.FlushRuns.WithLabelValues("skipped").Inc()
			f.log.Debug("Flush lock held elsewhere, skipping run")
			result.Skipped = true
			return result, nil
		}
		defer func() {
			if err := f.lock.Release(context.WithoutCancel(ctx)); err != nil {
				f.log.Warn("Failed to release flush lock: %v", err)
			}
		}()
	}

	snapshot, err := f.acc.ListAll(ctx)
	if err != nil {
		metrics.FlushRuns.WithLabelValues("failed").Inc()
		return result, fmt.Errorf("snapshot click counters: %w", err)
	}
	if len(snapshot) == 0 {
		result.Duration = time.Since(start)
		metrics.FlushRuns.WithLabelValues("completed").Inc()
		return result, nil
	}

	codes := make([]string, 0, len(snapshot))
	for code := range snapshot {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	flushed := make(map[string]int64, len(codes))
	for i := 0; i < len(codes); i += f.batchSize {
		if ctx.Err() != nil {
			f.log.Warn("Flush interrupted after %d of %d codes", i, len(codes))
			break
		}
		end := min(i+f.batchSize, len(codes))
		for _, code := range codes[i:end] {
			if err := f.flushOne(ctx, code, snapshot[code]); err != nil {
				result.Errors++
				f.log.Warn("Failed to flush clicks for %s: %v", code, err)
				continue
			}
			flushed[code] = snapshot[code]
			result.Processed++
		}
	}

	// Settle even when ctx was cancelled mid-run, otherwise the applied
	// counts would be applied again next time.
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := f.acc.Settle(settleCtx, flushed); err != nil {
		f.log.Error("Applied %d counters but could not clear them, they may be counted twice: %v", len(flushed), err)
	}

	result.Duration = time.Since(start)
	metrics.FlushRuns.WithLabelValues("completed").Inc()
	metrics.FlushProcessed.Add(float64(result.Processed))
	metrics.FlushErrors.Add(float64(result.Errors))
	metrics.FlushDuration.Observe(result.Duration.Seconds())

	f.log.Info("Flushed clicks: processed=%d errors=%d duration=%s", result.Processed, result.Errors, result.Duration)
	return result, nil
}

var errOrphanClicks = errors.New("no URL record for pending clicks")

func (f *Flusher) flushOne(ctx context.Context, code string, count int64) error {
	if count <= 0 {
		return nil
	}

	url, err := f.store.FindURLByShortCode(ctx, code)
	if err != nil {
		return err
	}
	if url == nil {
		return errOrphanClicks
	}

	ok, err := f.store.IncrementURLClickCount(ctx, url.ID, count)
	if err != nil {
		return err
	}
	if !ok {
		return errOrphanClicks
	}
	return nil
}
