package cache

import (
	"context"
	"testing"
	"time"

	"github.com/Varun5711/shortlink/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURLCache_SetGetDelete(t *testing.T) {
	mr, client := testutils.NewMiniRedis(t)
	c := NewURLCache(client, Config{TTL: time.Hour, OpTimeout: time.Second}, nil)
	ctx := context.Background()

	_, found := c.Get(ctx, "4c92")
	assert.False(t, found)

	c.Set(ctx, "4c92", "https://example.com")

	raw, err := mr.Get("url:4c92")
	require.NoError(t, err)
	assert.JSONEq(t, `{"originalUrl":"https://example.com"}`, raw)
	assert.Equal(t, time.Hour, mr.TTL("url:4c92"))

	entry, found := c.Get(ctx, "4c92")
	require.True(t, found)
	assert.Equal(t, "https://example.com", entry.OriginalURL)

	c.Delete(ctx, "4c92")
	assert.False(t, mr.Exists("url:4c92"))
	_, found = c.Get(ctx, "4c92")
	assert.False(t, found)
}

func TestURLCache_ExpiresWithTTL(t *testing.T) {
	mr, client := testutils.NewMiniRedis(t)
	c := NewURLCache(client, Config{TTL: time.Minute}, nil)
	ctx := context.Background()

	c.Set(ctx, "abcd", "https://example.com/ttl")
	mr.FastForward(time.Minute)

	_, found := c.Get(ctx, "abcd")
	assert.False(t, found)
}

func TestURLCache_L1ServesWithoutRedis(t *testing.T) {
	mr, client := testutils.NewMiniRedis(t)
	c := NewURLCache(client, Config{TTL: time.Hour, L1Capacity: 10, L1TTL: time.Minute}, nil)
	ctx := context.Background()

	c.Set(ctx, "l1hit", "https://example.com/l1")
	mr.Close()

	entry, found := c.Get(ctx, "l1hit")
	require.True(t, found)
	assert.Equal(t, "https://example.com/l1", entry.OriginalURL)
}

func TestURLCache_L2HitPopulatesL1(t *testing.T) {
	mr, client := testutils.NewMiniRedis(t)
	c := NewURLCache(client, Config{TTL: time.Hour, L1Capacity: 10, L1TTL: time.Minute}, nil)
	ctx := context.Background()

	require.NoError(t, mr.Set("url:warm", `{"originalUrl":"https://example.com/warm"}`))

	_, found := c.Get(ctx, "warm")
	require.True(t, found)
	assert.Equal(t, 1, c.l1.Len())
}

func TestURLCache_MalformedEntryIsMiss(t *testing.T) {
	mr, client := testutils.NewMiniRedis(t)
	c := NewURLCache(client, Config{TTL: time.Hour}, nil)

	require.NoError(t, mr.Set("url:bad", "not-json"))

	_, found := c.Get(context.Background(), "bad")
	assert.False(t, found)
}

func TestURLCache_UnreachableDegradesSilently(t *testing.T) {
	client := testutils.NewDeadRedis(t)
	c := NewURLCache(client, Config{TTL: time.Hour, OpTimeout: 200 * time.Millisecond}, nil)
	ctx := context.Background()

	assert.NotPanics(t, func() {
		c.Set(ctx, "down", "https://example.com")
		c.Delete(ctx, "down")
	})

	_, found := c.Get(ctx, "down")
	assert.False(t, found)
}
