package analytics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Varun5711/shortlink/internal/lock"
	"github.com/Varun5711/shortlink/internal/models"
	"github.com/Varun5711/shortlink/internal/storage"
	"github.com/Varun5711/shortlink/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedURL(t *testing.T, store storage.Storage, code string) *models.URL {
	t.Helper()
	url, err := store.CreateURL(context.Background(), code, "https://example.com/"+code)
	require.NoError(t, err)
	return url
}

func clickCount(t *testing.T, store storage.Storage, code string) int64 {
	t.Helper()
	url, err := store.FindURLByShortCode(context.Background(), code)
	require.NoError(t, err)
	require.NotNil(t, url)
	return url.ClickCount
}

func TestFlusher_AppliesSnapshotAndClears(t *testing.T) {
	mr, client := testutils.NewMiniRedis(t)
	acc := NewAccumulator(client, time.Hour, time.Second, nil)
	store := storage.NewMemoryStorage()
	ctx := context.Background()

	codes := []string{"aaaa", "bbbb", "cccc"}
	for i, code := range codes {
		seedURL(t, store, code)
		for j := 0; j <= i; j++ {
			acc.Increment(ctx, code)
		}
	}

	f := NewFlusher(acc, store, nil, 2, nil)
	result, err := f.Flush(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 0, result.Errors)
	assert.Equal(t, int64(1), clickCount(t, store, "aaaa"))
	assert.Equal(t, int64(2), clickCount(t, store, "bbbb"))
	assert.Equal(t, int64(3), clickCount(t, store, "cccc"))
	for _, code := range codes {
		assert.False(t, mr.Exists(ClickKey(code)), code)
	}

	// A second run has nothing to do and must not double count.
	result, err = f.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
	assert.Equal(t, int64(3), clickCount(t, store, "cccc"))
}

func TestFlusher_OrphanStaysAndCountsAsError(t *testing.T) {
	mr, client := testutils.NewMiniRedis(t)
	acc := NewAccumulator(client, time.Hour, time.Second, nil)
	store := storage.NewMemoryStorage()
	ctx := context.Background()

	seedURL(t, store, "live")
	acc.Increment(ctx, "live")
	acc.Increment(ctx, "orphan")
	acc.Increment(ctx, "orphan")

	result, err := NewFlusher(acc, store, nil, 0, nil).Flush(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Errors)
	assert.False(t, mr.Exists("clicks:live"))

	v, err := mr.Get("clicks:orphan")
	require.NoError(t, err)
	assert.Equal(t, "2", v)

	orphan, err := store.FindURLByShortCode(ctx, "orphan")
	require.NoError(t, err)
	assert.Nil(t, orphan)
}

// clickDuringFlush records a click for the same code while the flusher is
// between its snapshot and its clear.
type clickDuringFlush struct {
	storage.Storage
	acc  *Accumulator
	code string
}

func (s *clickDuringFlush) IncrementURLClickCount(ctx context.Context, id int64, delta int64) (bool, error) {
	ok, err := s.Storage.IncrementURLClickCount(ctx, id, delta)
	s.acc.Increment(ctx, s.code)
	return ok, err
}

func TestFlusher_ConcurrentClickNotLost(t *testing.T) {
	mr, client := testutils.NewMiniRedis(t)
	acc := NewAccumulator(client, time.Hour, time.Second, nil)
	mem := storage.NewMemoryStorage()
	ctx := context.Background()

	seedURL(t, mem, "busy")
	for i := 0; i < 4; i++ {
		acc.Increment(ctx, "busy")
	}

	store := &clickDuringFlush{Storage: mem, acc: acc, code: "busy"}
	result, err := NewFlusher(acc, store, nil, 50, nil).Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, int64(4), clickCount(t, mem, "busy"))

	v, err := mr.Get("clicks:busy")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	_, err = NewFlusher(acc, mem, nil, 50, nil).Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), clickCount(t, mem, "busy"))
	assert.False(t, mr.Exists("clicks:busy"))
}

type failingStore struct {
	storage.Storage
	failCode string
}

func (s *failingStore) FindURLByShortCode(ctx context.Context, code string) (*models.URL, error) {
	if code == s.failCode {
		return nil, errors.New("connection reset")
	}
	return s.Storage.FindURLByShortCode(ctx, code)
}

func TestFlusher_ErrorIsolatedPerCode(t *testing.T) {
	mr, client := testutils.NewMiniRedis(t)
	acc := NewAccumulator(client, time.Hour, time.Second, nil)
	mem := storage.NewMemoryStorage()
	ctx := context.Background()

	for i := 0; i < 120; i++ {
		code := fmt.Sprintf("c%03d", i)
		seedURL(t, mem, code)
		acc.Increment(ctx, code)
	}

	store := &failingStore{Storage: mem, failCode: "c050"}
	result, err := NewFlusher(acc, store, nil, 50, nil).Flush(ctx)
	require.NoError(t, err)

	assert.Equal(t, 119, result.Processed)
	assert.Equal(t, 1, result.Errors)
	assert.True(t, mr.Exists("clicks:c050"))
	assert.Equal(t, int64(1), clickCount(t, mem, "c119"))
}

func TestFlusher_SkipsWhenLockHeld(t *testing.T) {
	_, client := testutils.NewMiniRedis(t)
	acc := NewAccumulator(client, time.Hour, time.Second, nil)
	store := storage.NewMemoryStorage()
	ctx := context.Background()

	seedURL(t, store, "lock")
	acc.Increment(ctx, "lock")

	other := lock.NewDistributedLock(client, "flush:lock", time.Minute)
	ok, err := other.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mine := lock.NewDistributedLock(client, "flush:lock", time.Minute)
	f := NewFlusher(acc, store, mine, 50, nil)

	result, err := f.Flush(ctx)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, int64(0), clickCount(t, store, "lock"))

	require.NoError(t, other.Release(ctx))

	result, err = f.Flush(ctx)
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, int64(1), clickCount(t, store, "lock"))
}

func TestFlusher_StoreDownReturnsError(t *testing.T) {
	acc := NewAccumulator(testutils.NewDeadRedis(t), time.Hour, time.Second, nil)

	_, err := NewFlusher(acc, storage.NewMemoryStorage(), nil, 50, nil).Flush(context.Background())
	assert.Error(t, err)
}
