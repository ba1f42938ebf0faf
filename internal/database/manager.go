package database

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DBManager routes writes and read-your-write queries to the primary and
// spreads plain reads over replicas round-robin.
type DBManager struct {
	primary      *pgxpool.Pool
	replicas     []*pgxpool.Pool
	replicaIndex atomic.Uint32
}

type Config struct {
	PrimaryDSN  string
	ReplicaDSNs []string

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

func NewDBManager(ctx context.Context, cfg Config) (*DBManager, error) {
	primary, err := newPool(ctx, cfg, cfg.PrimaryDSN)
	if err != nil {
		return nil, fmt.Errorf("primary: %w", err)
	}

	replicas := make([]*pgxpool.Pool, 0, len(cfg.ReplicaDSNs))
	for i, dsn := range cfg.ReplicaDSNs {
		if dsn == "" {
			continue
		}
		replica, err := newPool(ctx, cfg, dsn)
		if err != nil {
			primary.Close()
			closePools(replicas)
			return nil, fmt.Errorf("replica %d: %w", i, err)
		}
		replicas = append(replicas, replica)
	}

	return &DBManager{
		primary:  primary,
		replicas: replicas,
	}, nil
}

func newPool(ctx context.Context, cfg Config, dsn string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping: %w", err)
	}

	return pool, nil
}

func (m *DBManager) Write() *pgxpool.Pool {
	return m.primary
}

func (m *DBManager) Read() *pgxpool.Pool {
	if len(m.replicas) == 0 {
		return m.primary
	}

	idx := m.replicaIndex.Add(1) % uint32(len(m.replicas))
	return m.replicas[idx]
}

// Ping checks the primary and every replica.
func (m *DBManager) Ping(ctx context.Context) error {
	errs := []error{m.primary.Ping(ctx)}
	for i, replica := range m.replicas {
		if err := replica.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("replica %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (m *DBManager) Close() {
	if m.primary != nil {
		m.primary.Close()
	}
	closePools(m.replicas)
}

func closePools(pools []*pgxpool.Pool) {
	for _, pool := range pools {
		if pool != nil {
			pool.Close()
		}
	}
}

func (m *DBManager) Stats() map[string]interface{} {
	stats := make(map[string]interface{})

	if m.primary != nil {
		stats["primary"] = poolStats(m.primary)
	}

	replicaStats := make([]map[string]interface{}, len(m.replicas))
	for i, replica := range m.replicas {
		replicaStats[i] = poolStats(replica)
	}
	stats["replicas"] = replicaStats

	return stats
}

func poolStats(pool *pgxpool.Pool) map[string]interface{} {
	s := pool.Stat()
	return map[string]interface{}{
		"total_conns":    s.TotalConns(),
		"idle_conns":     s.IdleConns(),
		"acquired_conns": s.AcquiredConns(),
	}
}
