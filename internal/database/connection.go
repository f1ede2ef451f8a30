package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/velmarket/gateway/internal/config"
)

type DB struct {
	Pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewConnection(cfg *config.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod

	// Identify gateway connections in pg_stat_activity; the marketplace
	// services share this database server
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "velmarket-gateway"

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logger.Info("database connection established",
		slog.Int("max_conns", int(cfg.MaxConns)),
		slog.Int("min_conns", int(cfg.MinConns)),
	)

	return &DB{Pool: pool, logger: logger}, nil
}

func (db *DB) Close() {
	stat := db.Pool.Stat()
	db.logger.Info("closing database connection pool",
		slog.Int64("total_acquires", stat.AcquireCount()),
		slog.Int64("empty_acquire_waits", stat.EmptyAcquireCount()),
	)
	db.Pool.Close()
}

// HealthCheck acquires a connection and runs a probe query. Readiness gates
// admission traffic, and a pool that answers pings but cannot hand out
// connections is not ready.
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	defer conn.Release()

	var probe int
	if err := conn.QueryRow(ctx, "SELECT 1").Scan(&probe); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
