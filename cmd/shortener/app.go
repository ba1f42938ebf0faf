package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Varun5711/shortlink/internal/analytics"
	"github.com/Varun5711/shortlink/internal/cache"
	"github.com/Varun5711/shortlink/internal/config"
	"github.com/Varun5711/shortlink/internal/handlers"
	"github.com/Varun5711/shortlink/internal/idgen"
	"github.com/Varun5711/shortlink/internal/lock"
	"github.com/Varun5711/shortlink/internal/logger"
	"github.com/Varun5711/shortlink/internal/middleware"
	"github.com/Varun5711/shortlink/internal/ratelimit"
	"github.com/Varun5711/shortlink/internal/redis"
	"github.com/Varun5711/shortlink/internal/service"
	"github.com/Varun5711/shortlink/internal/storage"
	"github.com/Varun5711/shortlink/internal/worker"
)

type app struct {
	handler http.Handler
	runner  *worker.Periodic
}

// newApp wires every component on top of already opened backends. The cache
// endpoint holds only url: entries; click counters, rate-limit windows and
// the flush lock live on the analytics endpoint.
func newApp(ctx context.Context, cfg *config.Config, store storage.Storage, cacheRedis, analyticsRedis *redis.RedisClient, log *logger.Logger) (*app, error) {
	alloc := idgen.NewAllocator(store, idgen.AllocatorConfig{
		CounterID:  cfg.Counter.ID,
		BatchSize:  cfg.Counter.BatchSize,
		StartValue: cfg.Counter.StartValue,
	}, log.Named("allocator"))
	if err := alloc.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialise counter: %w", err)
	}

	urlCache := cache.NewURLCache(cacheRedis.GetClient(), cache.Config{
		TTL:        cfg.Cache.URLTTL,
		L1Capacity: cfg.Cache.L1Capacity,
		L1TTL:      cfg.Cache.L1TTL,
		OpTimeout:  cfg.Storage.OpTimeout,
	}, log.Named("cache"))
	clicks := analytics.NewAccumulator(analyticsRedis.GetClient(), cfg.Cache.ClickTTL, cfg.Storage.OpTimeout, log.Named("clicks"))
	window := ratelimit.NewSlidingWindow(analyticsRedis.GetClient(), nil, cfg.Storage.OpTimeout, log.Named("ratelimit"))

	var flushLock analytics.Locker
	if cfg.Flush.LockEnabled {
		flushLock = lock.NewDistributedLock(analyticsRedis.GetClient(), analytics.FlushLockKey, cfg.Flush.Interval)
	}
	flusher := analytics.NewFlusher(clicks, store, flushLock, cfg.Flush.BatchSize, log.Named("flusher"))
	runner := worker.NewPeriodic("analytics-flush", cfg.Flush.Interval, func(ctx context.Context) error {
		_, err := flusher.Flush(ctx)
		return err
	}, log.Named("worker"))

	urls := service.NewURLService(store, alloc, urlCache, clicks, cfg.Server.BaseURL, log.Named("service"))

	router := handlers.NewRouter(handlers.Routes{
		API:      handlers.NewHTTPHandler(urls, window, log.Named("api")),
		Redirect: handlers.NewRedirectHandler(urls, log.Named("redirect")),
		Admin: handlers.NewAdminHandler(urls, flusher, runner, map[string]handlers.Pinger{
			"storage":   store,
			"cache":     cacheRedis,
			"analytics": analyticsRedis,
		}, log.Named("admin")),
		Limiter: middleware.NewRateLimiter(window, nil),
		RedirectLimit: ratelimit.Options{
			Limit:     cfg.RateLimit.Redirect.Limit,
			Window:    cfg.RateLimit.Redirect.Window,
			KeyPrefix: "redirect",
			Message:   "Too many redirect requests. Please try again in a minute.",
		},
		ShortenLimit: ratelimit.Options{
			Limit:     cfg.RateLimit.Shorten.Limit,
			Window:    cfg.RateLimit.Shorten.Window,
			KeyPrefix: "shorten",
			Message:   "Too many URL shortening requests. Please try again in a minute.",
		},
	}, log.Named("http"))

	return &app{handler: router, runner: runner}, nil
}
