package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/Varun5711/shortlink/internal/analytics"
	"github.com/Varun5711/shortlink/internal/config"
	"github.com/Varun5711/shortlink/internal/lock"
	"github.com/Varun5711/shortlink/internal/logger"
	"github.com/Varun5711/shortlink/internal/redis"
	"github.com/Varun5711/shortlink/internal/storage"
	"github.com/Varun5711/shortlink/internal/worker"
)

// flush-worker runs only the analytics flush, for deployments that keep the
// API instances free of background work (FLUSH_ENABLED=false there).
func main() {
	log := logger.New("flush-worker")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg, log.Named("storage"))
	if err != nil {
		log.Fatal("Failed to open storage: %v", err)
	}
	defer store.Close()

	analyticsRedis, err := redis.NewRedisClient(ctx, redis.Config{
		Name:     "analytics",
		Addr:     cfg.Analytics.Addr,
		Password: cfg.Analytics.Password,
		DB:       cfg.Analytics.DB,
	})
	if err != nil {
		log.Fatal("Failed to connect to analytics Redis: %v", err)
	}
	defer analyticsRedis.Close()

	clicks := analytics.NewAccumulator(analyticsRedis.GetClient(), cfg.Cache.ClickTTL, cfg.Storage.OpTimeout, log.Named("clicks"))
	flusher := analytics.NewFlusher(
		clicks,
		store,
		lock.NewDistributedLock(analyticsRedis.GetClient(), analytics.FlushLockKey, cfg.Flush.Interval),
		cfg.Flush.BatchSize,
		log.Named("flusher"),
	)

	runner := worker.NewPeriodic("analytics-flush", cfg.Flush.Interval, func(ctx context.Context) error {
		_, err := flusher.Flush(ctx)
		return err
	}, log)

	log.Info("Flush worker started. Running every %s...", cfg.Flush.Interval)

	if err := runner.RunNow(ctx); err != nil {
		log.Error("Initial flush failed: %v", err)
	}
	runner.Start(ctx)

	<-ctx.Done()
	log.Info("Shutting down...")
	runner.Stop()

	finalCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	start := time.Now()
	if err := runner.RunNow(finalCtx); err != nil {
		log.Error("Final flush failed: %v", err)
	}
	log.Duration("Final flush finished", start)
	log.Info("Stopped")
}
