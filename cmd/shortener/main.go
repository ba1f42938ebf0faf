package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Varun5711/shortlink/internal/config"
	"github.com/Varun5711/shortlink/internal/logger"
	"github.com/Varun5711/shortlink/internal/observability"
	"github.com/Varun5711/shortlink/internal/redis"
	"github.com/Varun5711/shortlink/internal/storage"
	"github.com/Varun5711/shortlink/internal/worker"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func main() {
	log := logger.New("shortener").With("version", version)
	log.SetStdLog()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal("Failed to set up tracing: %v", err)
	}

	store, err := storage.Open(ctx, cfg, log.Named("storage"))
	if err != nil {
		log.Fatal("Failed to open storage: %v", err)
	}
	defer store.Close()

	cacheRedis, err := redis.NewRedisClient(ctx, redis.Config{
		Name:     "cache",
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Fatal("Failed to connect to Redis: %v", err)
	}
	defer cacheRedis.Close()

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

	a, err := newApp(ctx, cfg, store, cacheRedis, analyticsRedis, log)
	if err != nil {
		log.Fatal("Failed to start: %v", err)
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      a.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if cfg.Flush.Enabled {
		a.runner.Start(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Listening on :%s (base URL %s)", cfg.Server.Port, cfg.Server.BaseURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Server stopped with error: %v", err)
	}

	a.runner.Stop()
	finalFlush(a.runner, log)

	otelCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownOTel(otelCtx); err != nil {
		log.Warn("Tracer shutdown: %v", err)
	}
	log.Info("Stopped")
}

// finalFlush drains the click counters once more so a clean shutdown leaves
// nothing behind for the next instance to pick up.
func finalFlush(runner *worker.Periodic, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	defer log.Duration("Final flush finished", time.Now())

	if err := runner.RunNow(ctx); err != nil {
		log.Error("Final flush failed: %v", err)
	}
}
