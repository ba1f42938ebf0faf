package middleware

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/Varun5711/shortlink/internal/clock"
	"github.com/Varun5711/shortlink/internal/models"
	"github.com/Varun5711/shortlink/internal/ratelimit"
)

// Limiter is satisfied by *ratelimit.SlidingWindow.
type Limiter interface {
	Check(ctx context.Context, clientID string, opts ratelimit.Options) ratelimit.Result
}

type RateLimiter struct {
	limiter Limiter
	clock   clock.Clock
}

func NewRateLimiter(limiter Limiter, clk clock.Clock) *RateLimiter {
	if clk == nil {
		clk = clock.System{}
	}
	return &RateLimiter{limiter: limiter, clock: clk}
}

// Limit guards a route with its own limit, window and key prefix.
func (rl *RateLimiter) Limit(opts ratelimit.Options) func(http.Handler) http.Handler {
	if opts.Message == "" {
		opts.Message = ratelimit.DefaultMessage
	}
	windowSeconds := strconv.FormatInt(int64(opts.Window.Seconds()), 10)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := rl.limiter.Check(r.Context(), ClientIP(r), opts)

			resetSeconds := int64(math.Ceil(float64(res.ResetTime.UnixMilli()) / 1000))
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(opts.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(resetSeconds, 10))
			h.Set("X-RateLimit-Window", windowSeconds)

			if !res.Allowed {
				retryAfter := res.RetryAfter(rl.clock.Now())
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				h.Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(models.RateLimitErrorResponse{
					StatusCode: http.StatusTooManyRequests,
					Message:    opts.Message,
					Error:      http.StatusText(http.StatusTooManyRequests),
					RetryAfter: int64(retryAfter),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
