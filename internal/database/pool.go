package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/chatflow/internal/config"
)

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	connStr := BuildConnString(cfg)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Execer runs a statement. *pgxpool.Pool and pgx.Tx satisfy it.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Schema creates the results tables.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS bench_runs (
		run_id          UUID PRIMARY KEY,
		started_at      TIMESTAMPTZ NOT NULL,
		server_url      TEXT NOT NULL,
		total_messages  INTEGER NOT NULL,
		successes       BIGINT NOT NULL,
		error_responses BIGINT NOT NULL,
		failures        BIGINT NOT NULL,
		runtime_ms      BIGINT NOT NULL,
		throughput      DOUBLE PRECISION NOT NULL,
		connections     BIGINT NOT NULL,
		reconnections   BIGINT NOT NULL,
		latency_mean_ms DOUBLE PRECISION NOT NULL,
		latency_p50_ms  BIGINT NOT NULL,
		latency_p95_ms  BIGINT NOT NULL,
		latency_p99_ms  BIGINT NOT NULL,
		latency_min_ms  BIGINT NOT NULL,
		latency_max_ms  BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS bench_room_counts (
		run_id     UUID NOT NULL REFERENCES bench_runs (run_id) ON DELETE CASCADE,
		room_id    TEXT NOT NULL,
		count      BIGINT NOT NULL,
		per_second DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (run_id, room_id)
	)`,
	`CREATE TABLE IF NOT EXISTS bench_throughput (
		run_id          UUID NOT NULL REFERENCES bench_runs (run_id) ON DELETE CASCADE,
		bucket_start_ms BIGINT NOT NULL,
		count           BIGINT NOT NULL,
		throughput      DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (run_id, bucket_start_ms)
	)`,
}

// EnsureSchema creates the results tables if they do not exist.
func EnsureSchema(ctx context.Context, db Execer) error {
	for _, stmt := range Schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
