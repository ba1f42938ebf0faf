package handlers

import (
	"net/http"

	"github.com/Varun5711/shortlink/internal/logger"
	"github.com/Varun5711/shortlink/internal/middleware"
	"github.com/Varun5711/shortlink/internal/ratelimit"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Routes struct {
	API      *HTTPHandler
	Redirect *RedirectHandler
	Admin    *AdminHandler

	Limiter       *middleware.RateLimiter
	RedirectLimit ratelimit.Options
	ShortenLimit  ratelimit.Options
}

// NewRouter registers every route and wraps the mux in the common
// middleware stack.
func NewRouter(rt Routes, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.Nop()
	}
	mux := http.NewServeMux()

	shortenLimited := rt.Limiter.Limit(rt.ShortenLimit)
	redirectLimited := rt.Limiter.Limit(rt.RedirectLimit)

	mux.Handle("POST /api/urls/shorten", shortenLimited(http.HandlerFunc(rt.API.CreateURL)))
	mux.HandleFunc("GET /api/urls", rt.API.ListURLs)
	mux.HandleFunc("GET /api/urls/stats/{shortCode}", rt.API.GetStats)
	mux.HandleFunc("DELETE /api/urls/delete/{shortCode}", rt.API.DeleteURL)
	mux.HandleFunc("GET /api/urls/qr/{shortCode}", rt.API.GetQRCode)
	mux.HandleFunc("GET /api/rate-limit/status", rt.API.RateLimitStatus)

	mux.HandleFunc("POST /admin/flush", rt.Admin.TriggerFlush)
	mux.HandleFunc("GET /admin/allocator", rt.Admin.AllocatorStats)
	mux.HandleFunc("GET /health", rt.Admin.Health)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /favicon.ico", rt.Redirect.Favicon)
	mux.Handle("GET /{shortCode}", redirectLimited(http.HandlerFunc(rt.Redirect.HandleRedirect)))

	return middleware.Chain(mux,
		middleware.Recovery(log),
		middleware.RequestID,
		middleware.Logging(log),
		middleware.Metrics,
	)
}
