package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Varun5711/shortlink/internal/analytics"
	"github.com/Varun5711/shortlink/internal/lock"
	"github.com/Varun5711/shortlink/internal/storage"
	"github.com/Varun5711/shortlink/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs the shorten, redirect and flush path against real Postgres and Redis.
func TestIntegration_ClicksReachPostgres(t *testing.T) {
	db, _ := testutils.StartPostgres(t)
	client := testutils.StartRedis(t)
	ctx := context.Background()

	store := storage.NewPostgresStorage(db)
	svc := newFixture(t, store, client)

	resp, created, err := svc.Shorten(ctx, "https://example.com/integration")
	require.NoError(t, err)
	require.True(t, created)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			target, err := svc.Resolve(ctx, resp.ShortCode)
			assert.NoError(t, err)
			assert.Equal(t, "https://example.com/integration", target)
		}()
	}
	wg.Wait()

	flusher := analytics.NewFlusher(svc.clicks, store, lock.NewDistributedLock(client, analytics.FlushLockKey, time.Minute), 50, nil)
	result, err := flusher.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	stats, err := svc.Stats(ctx, resp.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, int64(25), stats.ClickCount)
	assert.Zero(t, stats.PendingClicks)

	// A second flush with nothing pending must not add anything.
	_, err = flusher.Flush(ctx)
	require.NoError(t, err)
	stats, err = svc.Stats(ctx, resp.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, int64(25), stats.TotalClicks)
}
