package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient_PingsOnConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	rc, err := NewRedisClient(context.Background(), Config{Name: "cache", Addr: mr.Addr()})
	require.NoError(t, err)
	defer rc.Close()

	assert.Equal(t, "cache", rc.Name())
	assert.NoError(t, rc.Ping(context.Background()))
	assert.Equal(t, "cache", rc.Stats()["name"])
	require.NoError(t, rc.GetClient().Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNewRedisClient_UnreachableFails(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisClient(ctx, Config{Name: "analytics", Addr: addr})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analytics")
}

func TestDegraded(t *testing.T) {
	assert.NoError(t, Degraded("get", nil))

	cause := errors.New("i/o timeout")
	err := Degraded("get", cause)
	assert.ErrorIs(t, err, ErrStoreDegraded)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "get")
}

func TestOpContext(t *testing.T) {
	ctx, cancel := OpContext(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, hasDeadline := ctx.Deadline()
	assert.True(t, hasDeadline)

	ctx2, cancel2 := OpContext(context.Background(), 0)
	defer cancel2()
	_, hasDeadline = ctx2.Deadline()
	assert.False(t, hasDeadline)
}
