package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStorageContract exercises behaviour every Storage implementation must share.
func runStorageContract(t *testing.T, newStore func(t *testing.T) Storage) {
	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, newStore(t).Ping(context.Background()))
	})

	t.Run("FindMissingReturnsNil", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		url, err := s.FindURLByShortCode(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, url)

		url, err = s.FindURLByOriginalURL(ctx, "https://example.com/missing")
		require.NoError(t, err)
		assert.Nil(t, url)
	})

	t.Run("CreateAndFind", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, err := s.CreateURL(ctx, "4c92", "https://example.com/a")
		require.NoError(t, err)
		assert.Equal(t, "4c92", created.ShortCode)
		assert.Equal(t, "https://example.com/a", created.OriginalURL)
		assert.Zero(t, created.ClickCount)
		assert.False(t, created.CreatedAt.IsZero())

		found, err := s.FindURLByShortCode(ctx, "4c92")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, created.ID, found.ID)
		assert.Equal(t, "https://example.com/a", found.OriginalURL)
	})

	t.Run("DuplicateShortCode", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.CreateURL(ctx, "dup1", "https://example.com/1")
		require.NoError(t, err)
		_, err = s.CreateURL(ctx, "dup1", "https://example.com/2")
		require.ErrorIs(t, err, ErrDuplicateShortCode)
	})

	t.Run("FindByOriginalReturnsMostRecent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.CreateURL(ctx, "old1", "https://example.com/same")
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
		newest, err := s.CreateURL(ctx, "new1", "https://example.com/same")
		require.NoError(t, err)

		found, err := s.FindURLByOriginalURL(ctx, "https://example.com/same")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, newest.ShortCode, found.ShortCode)
	})

	t.Run("IncrementClickCount", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, err := s.CreateURL(ctx, "clk1", "https://example.com/c")
		require.NoError(t, err)

		ok, err := s.IncrementURLClickCount(ctx, created.ID, 5)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.IncrementURLClickCount(ctx, created.ID, 3)
		require.NoError(t, err)
		assert.True(t, ok)

		found, err := s.FindURLByShortCode(ctx, "clk1")
		require.NoError(t, err)
		assert.Equal(t, int64(8), found.ClickCount)

		ok, err = s.IncrementURLClickCount(ctx, created.ID+1000, 1)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.CreateURL(ctx, "del1", "https://example.com/d")
		require.NoError(t, err)

		deleted, err := s.DeleteURL(ctx, "del1")
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = s.DeleteURL(ctx, "del1")
		require.NoError(t, err)
		assert.False(t, deleted)

		found, err := s.FindURLByShortCode(ctx, "del1")
		require.NoError(t, err)
		assert.Nil(t, found)
	})

	t.Run("ListNewestFirstWithPaging", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			_, err := s.CreateURL(ctx, fmt.Sprintf("lst%d", i), fmt.Sprintf("https://example.com/%d", i))
			require.NoError(t, err)
			time.Sleep(time.Millisecond)
		}

		page, total, err := s.ListURLs(ctx, 2, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		require.Len(t, page, 2)
		assert.Equal(t, "lst4", page[0].ShortCode)
		assert.Equal(t, "lst3", page[1].ShortCode)

		page, _, err = s.ListURLs(ctx, 10, 4)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "lst0", page[0].ShortCode)

		page, _, err = s.ListURLs(ctx, 10, 50)
		require.NoError(t, err)
		assert.Empty(t, page)
	})

	t.Run("CounterCreateIfAbsent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.UpsertCounterIfAbsent(ctx, "url_counter", 1000000))
		v, err := s.IncrementCounterAndGet(ctx, "url_counter", 1000)
		require.NoError(t, err)
		assert.Equal(t, int64(1001000), v)

		require.NoError(t, s.UpsertCounterIfAbsent(ctx, "url_counter", 1000000))
		v, err = s.GetCounter(ctx, "url_counter")
		require.NoError(t, err)
		assert.Equal(t, int64(1001000), v, "existing counter must not be reset")
	})

	t.Run("CounterMissing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.IncrementCounterAndGet(ctx, "absent", 10)
		require.ErrorIs(t, err, ErrCounterNotFound)
		_, err = s.GetCounter(ctx, "absent")
		require.ErrorIs(t, err, ErrCounterNotFound)
	})

	t.Run("CounterConcurrentIncrementsDoNotOverlap", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.UpsertCounterIfAbsent(ctx, "c", 0))

		const workers = 8
		results := make(chan int64, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				v, err := s.IncrementCounterAndGet(ctx, "c", 100)
				if err != nil {
					t.Errorf("increment: %v", err)
					return
				}
				results <- v
			}()
		}
		wg.Wait()
		close(results)

		seen := make(map[int64]bool)
		for v := range results {
			assert.False(t, seen[v], "batch max %d handed out twice", v)
			assert.Zero(t, v%100)
			seen[v] = true
		}
		assert.Len(t, seen, workers)
	})
}

func TestMemoryStorage(t *testing.T) {
	runStorageContract(t, func(t *testing.T) Storage {
		return NewMemoryStorage()
	})
}

func TestMemoryStorage_ReturnsCopies(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	created, err := s.CreateURL(ctx, "cp01", "https://example.com")
	require.NoError(t, err)
	created.OriginalURL = "mutated"

	found, err := s.FindURLByShortCode(ctx, "cp01")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", found.OriginalURL)
}

func TestSQLiteStorage(t *testing.T) {
	runStorageContract(t, func(t *testing.T) Storage {
		s, err := NewSQLiteStorage(context.Background(), ":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}
