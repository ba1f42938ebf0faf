// Package testutils starts throwaway Postgres and Redis containers for
// integration tests. Every helper skips the test unless INTEGRATION_TEST=true.
package testutils

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Varun5711/shortlink/internal/database"
	"github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

func SkipUnlessIntegration(t testing.TB) {
	t.Helper()
	if os.Getenv("INTEGRATION_TEST") != "true" {
		t.Skip("Skipping integration test. Set INTEGRATION_TEST=true to run")
	}
}

// StartPostgres runs a migrated Postgres container and returns a
// DBManager connected to it.
func StartPostgres(t testing.TB) (*database.DBManager, string) {
	t.Helper()
	SkipUnlessIntegration(t)

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("shortener"),
		tcpostgres.WithUsername("shortener"),
		tcpostgres.WithPassword("shortener"),
		tc.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := tc.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	migrator, err := database.NewMigrator(dsn, nil)
	if err != nil {
		t.Fatalf("failed to create migrator: %v", err)
	}
	if err := migrator.Up(); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	migrator.Close()

	db, err := database.NewDBManager(ctx, database.Config{
		PrimaryDSN: dsn,
		MaxConns:   10,
		MinConns:   2,
	})
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}
	t.Cleanup(db.Close)

	return db, dsn
}

// StartRedis runs a Redis container and returns a connected client.
func StartRedis(t testing.TB) *redis.Client {
	t.Helper()
	SkipUnlessIntegration(t)

	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := tc.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate redis container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("failed to get redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         endpoint,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		ContextTimeoutEnabled: true,
	})
	t.Cleanup(func() { client.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		t.Fatalf("failed to ping redis: %v", err)
	}

	return client
}
