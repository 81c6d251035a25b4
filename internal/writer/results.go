package writer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rickgao/chatflow/internal/metrics"
)

// BatchSender sends a pgx batch. *pgxpool.Pool satisfies it.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// RunInfo identifies a load run.
type RunInfo struct {
	RunID         uuid.UUID
	StartedAt     time.Time
	ServerURL     string
	TotalMessages int
}

// NewRunInfo returns run info with a fresh run ID.
func NewRunInfo(serverURL string, totalMessages int, startedAt time.Time) RunInfo {
	return RunInfo{
		RunID:         uuid.New(),
		StartedAt:     startedAt,
		ServerURL:     serverURL,
		TotalMessages: totalMessages,
	}
}

// ResultsWriter persists run reports.
type ResultsWriter struct {
	db     BatchSender
	logger *slog.Logger
}

// NewResultsWriter creates a results writer.
func NewResultsWriter(db BatchSender, logger *slog.Logger) *ResultsWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultsWriter{db: db, logger: logger}
}

// Write inserts the run row, per-room counts, and throughput buckets in a
// single batch.
func (w *ResultsWriter) Write(ctx context.Context, run RunInfo, report metrics.Report) error {
	start := time.Now()
	batch := w.buildBatch(run, report)

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert results (statement %d of %d): %w", i+1, batch.Len(), err)
		}
	}

	w.logger.Info("run results stored",
		"run_id", run.RunID,
		"rooms", len(report.Rooms),
		"buckets", len(report.Buckets),
		"duration", time.Since(start),
	)
	return nil
}

func (w *ResultsWriter) buildBatch(run RunInfo, report metrics.Report) *pgx.Batch {
	batch := &pgx.Batch{}
	lat := report.Latency

	batch.Queue(`
		INSERT INTO bench_runs (
			run_id, started_at, server_url, total_messages,
			successes, error_responses, failures, runtime_ms, throughput,
			connections, reconnections,
			latency_mean_ms, latency_p50_ms, latency_p95_ms, latency_p99_ms, latency_min_ms, latency_max_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, run.RunID, run.StartedAt, run.ServerURL, run.TotalMessages,
		report.Successes, report.ErrorResponses, report.Failures, report.RuntimeMs, report.Throughput,
		report.Connections, report.Reconnections,
		lat.Mean, lat.Median, lat.P95, lat.P99, lat.Min, lat.Max)

	for _, room := range report.Rooms {
		batch.Queue(`
			INSERT INTO bench_room_counts (run_id, room_id, count, per_second)
			VALUES ($1, $2, $3, $4)
		`, run.RunID, room.RoomID, room.Count, room.PerSecond)
	}

	for _, b := range report.Buckets {
		batch.Queue(`
			INSERT INTO bench_throughput (run_id, bucket_start_ms, count, throughput)
			VALUES ($1, $2, $3, $4)
		`, run.RunID, b.StartMs, b.Count, b.Throughput)
	}

	return batch
}
