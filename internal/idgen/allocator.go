package idgen

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Varun5711/shortlink/internal/logger"
	"github.com/Varun5711/shortlink/internal/metrics"
)

var ErrAllocatorUnavailable = errors.New("counter service unavailable")

// CounterStore is the durable side of the allocator. IncrementCounterAndGet
// must be atomic across every process sharing the store.
type CounterStore interface {
	UpsertCounterIfAbsent(ctx context.Context, id string, start int64) error
	IncrementCounterAndGet(ctx context.Context, id string, delta int64) (int64, error)
	GetCounter(ctx context.Context, id string) (int64, error)
}

type AllocatorConfig struct {
	CounterID  string
	BatchSize  int64
	StartValue int64
}

// Allocator hands out unique, strictly increasing ids from ranges reserved
// in batches from a CounterStore. Ranges never overlap between instances.
type Allocator struct {
	mu        sync.Mutex
	store     CounterStore
	counterID string
	batchSize int64
	start     int64
	current   int64
	batchMax  int64
	log       *logger.Logger
}

type AllocatorStats struct {
	CurrentDBValue   int64 `json:"currentDbValue"`
	MemoryValue      int64 `json:"memoryValue"`
	MaxValue         int64 `json:"maxValue"`
	BatchSize        int64 `json:"batchSize"`
	RemainingInBatch int64 `json:"remainingInBatch"`
}

func NewAllocator(store CounterStore, cfg AllocatorConfig, log *logger.Logger) *Allocator {
	if cfg.CounterID == "" {
		cfg.CounterID = "url_counter"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Allocator{
		store:     store,
		counterID: cfg.CounterID,
		batchSize: cfg.BatchSize,
		start:     cfg.StartValue,
		log:       log,
	}
}

// Init creates the durable counter at the configured start value unless it
// already exists. Existing values are never reset.
func (a *Allocator) Init(ctx context.Context) error {
	if err := a.store.UpsertCounterIfAbsent(ctx, a.counterID, a.start); err != nil {
		return fmt.Errorf("%w: init counter %q: %w", ErrAllocatorUnavailable, a.counterID, err)
	}
	a.log.Info("Counter %q ready (start value %d, batch size %d)", a.counterID, a.start, a.batchSize)
	return nil
}

func (a *Allocator) NextID(ctx context.Context) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current >= a.batchMax {
		if err := a.allocateBatch(ctx); err != nil {
			return 0, err
		}
	}

	a.current++
	return a.current, nil
}

func (a *Allocator) NextShortCode(ctx context.Context) (string, error) {
	id, err := a.NextID(ctx)
	if err != nil {
		return "", err
	}
	return EncodeInt64(id), nil
}

// allocateBatch must be called with a.mu held.
func (a *Allocator) allocateBatch(ctx context.Context) error {
	newMax, err := a.store.IncrementCounterAndGet(ctx, a.counterID, a.batchSize)
	if err != nil {
		metrics.AllocatorFailures.Inc()
		a.log.Error("Failed to allocate counter batch: %v", err)
		return fmt.Errorf("%w: %w", ErrAllocatorUnavailable, err)
	}

	a.batchMax = newMax
	a.current = newMax - a.batchSize
	metrics.AllocatorBatches.Inc()
	a.log.Debug("Allocated counter batch (%d, %d]", a.current, a.batchMax)
	return nil
}

// Stats reports the in-memory range alongside the durable value. The
// in-memory fields are still filled when the durable read fails.
func (a *Allocator) Stats(ctx context.Context) (AllocatorStats, error) {
	a.mu.Lock()
	stats := AllocatorStats{
		MemoryValue:      a.current,
		MaxValue:         a.batchMax,
		BatchSize:        a.batchSize,
		RemainingInBatch: a.batchMax - a.current,
	}
	a.mu.Unlock()

	dbValue, err := a.store.GetCounter(ctx, a.counterID)
	if err != nil {
		return stats, fmt.Errorf("read counter %q: %w", a.counterID, err)
	}
	stats.CurrentDBValue = dbValue
	return stats, nil
}
