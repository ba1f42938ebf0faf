package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Varun5711/shortlink/internal/clock"
	"github.com/Varun5711/shortlink/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func newLimiter(t *testing.T) (*SlidingWindow, *clock.Manual) {
	t.Helper()
	_, client := testutils.NewMiniRedis(t)
	clk := clock.NewManual(t0)
	return NewSlidingWindow(client, clk, time.Second, nil), clk
}

func TestSlidingWindow_LimitThenReject(t *testing.T) {
	rl, _ := newLimiter(t)
	ctx := context.Background()
	opts := Options{Limit: 3, Window: time.Minute, KeyPrefix: "shorten"}

	for i := 1; i <= 3; i++ {
		res := rl.Check(ctx, "10.0.0.1", opts)
		require.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, int64(i), res.TotalHits)
		assert.Equal(t, 3-i, res.Remaining)
		assert.Equal(t, t0.Add(time.Minute), res.ResetTime)
	}

	res := rl.Check(ctx, "10.0.0.1", opts)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, int64(4), res.TotalHits)
	assert.Equal(t, 60, res.RetryAfter(t0))
}

func TestSlidingWindow_AllowedAgainAfterWindow(t *testing.T) {
	rl, clk := newLimiter(t)
	ctx := context.Background()
	opts := Options{Limit: 2, Window: time.Minute, KeyPrefix: "redirect"}

	rl.Check(ctx, "c", opts)
	rl.Check(ctx, "c", opts)
	require.False(t, rl.Check(ctx, "c", opts).Allowed)

	clk.Advance(time.Minute)

	res := rl.Check(ctx, "c", opts)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(1), res.TotalHits)
}

func TestSlidingWindow_Slides(t *testing.T) {
	rl, clk := newLimiter(t)
	ctx := context.Background()
	opts := Options{Limit: 2, Window: time.Minute, KeyPrefix: "redirect"}

	rl.Check(ctx, "c", opts)
	clk.Advance(30 * time.Second)
	rl.Check(ctx, "c", opts)

	// The first request leaves the window, the second is still inside it.
	clk.Advance(30 * time.Second)
	res := rl.Check(ctx, "c", opts)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(2), res.TotalHits)

	clk.Advance(time.Second)
	res = rl.Check(ctx, "c", opts)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(3), res.TotalHits)
}

func TestSlidingWindow_SameMillisecondCountedSeparately(t *testing.T) {
	rl, _ := newLimiter(t)
	ctx := context.Background()
	opts := Options{Limit: 10, Window: time.Minute, KeyPrefix: "burst"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rl.Check(ctx, "same", opts)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(8), rl.Status(ctx, "same", "burst").Count)
}

func TestSlidingWindow_ClientsAndPrefixesIsolated(t *testing.T) {
	rl, _ := newLimiter(t)
	ctx := context.Background()

	one := Options{Limit: 1, Window: time.Minute, KeyPrefix: "shorten"}
	rl.Check(ctx, "a", one)
	require.False(t, rl.Check(ctx, "a", one).Allowed)

	assert.True(t, rl.Check(ctx, "b", one).Allowed)
	assert.True(t, rl.Check(ctx, "a", Options{Limit: 1, Window: time.Minute, KeyPrefix: "redirect"}).Allowed)
}

func TestSlidingWindow_SetsExpiry(t *testing.T) {
	mr, client := testutils.NewMiniRedis(t)
	rl := NewSlidingWindow(client, clock.NewManual(t0), time.Second, nil)

	rl.Check(context.Background(), "ip", Options{Limit: 5, Window: 90 * time.Second, KeyPrefix: "redirect"})

	assert.Equal(t, 90*time.Second, mr.TTL("redirect:ip"))
}

func TestSlidingWindow_Status(t *testing.T) {
	rl, _ := newLimiter(t)
	ctx := context.Background()

	assert.Equal(t, Status{Count: 0, TTL: -2}, rl.Status(ctx, "ip", "redirect"))

	opts := Options{Limit: 5, Window: time.Minute, KeyPrefix: "redirect"}
	rl.Check(ctx, "ip", opts)
	rl.Check(ctx, "ip", opts)

	st := rl.Status(ctx, "ip", "redirect")
	assert.Equal(t, int64(2), st.Count)
	assert.Equal(t, int64(60), st.TTL)

	// Status is read-only.
	assert.Equal(t, int64(2), rl.Status(ctx, "ip", "redirect").Count)
}

func TestSlidingWindow_FailsOpen(t *testing.T) {
	rl := NewSlidingWindow(testutils.NewDeadRedis(t), clock.NewManual(t0), 200*time.Millisecond, nil)
	ctx := context.Background()

	res := rl.Check(ctx, "ip", Options{Limit: 10, Window: time.Minute, KeyPrefix: "redirect"})
	assert.True(t, res.Allowed)
	assert.Equal(t, 9, res.Remaining)
	assert.Equal(t, int64(1), res.TotalHits)
	assert.Equal(t, t0.Add(time.Minute), res.ResetTime)

	assert.Equal(t, Status{Count: 0, TTL: -1}, rl.Status(ctx, "ip", "redirect"))
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, DefaultKeyPrefix, o.KeyPrefix)
	assert.Equal(t, DefaultMessage, o.Message)
	assert.Equal(t, 1, o.Limit)
	assert.Equal(t, time.Second, o.Window)
}

func TestResultRetryAfter(t *testing.T) {
	r := Result{ResetTime: t0.Add(1500 * time.Millisecond)}
	assert.Equal(t, 2, r.RetryAfter(t0))
	assert.Equal(t, 0, r.RetryAfter(t0.Add(time.Hour)))
}
