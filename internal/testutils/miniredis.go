package testutils

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// NewMiniRedis starts an in-process Redis and a client bound to it. Both are
// closed when the test ends.
func NewMiniRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr:            mr.Addr(),
		MaxRetries:      -1,
		DisableIdentity: true,
	})
	t.Cleanup(func() { client.Close() })

	return mr, client
}

// NewDeadRedis returns a client whose server is already gone, for exercising
// failure paths.
func NewDeadRedis(t testing.TB) *redis.Client {
	t.Helper()

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	client := redis.NewClient(&redis.Options{
		Addr:            addr,
		MaxRetries:      -1,
		DisableIdentity: true,
	})
	t.Cleanup(func() { client.Close() })

	return client
}

// NewHangingRedis returns a client whose server accepts connections but never
// answers, so only the caller's deadlines end an operation.
func NewHangingRedis(t testing.TB) *redis.Client {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()

	client := redis.NewClient(&redis.Options{
		Addr:                  ln.Addr().String(),
		MaxRetries:            -1,
		DisableIdentity:       true,
		DialTimeout:           time.Second,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		ContextTimeoutEnabled: true,
	})
	t.Cleanup(func() {
		client.Close()
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, conn := range conns {
			conn.Close()
		}
	})

	return client
}
