// Package database provides the PostgreSQL connection pool for benchmark results.
//
// The load generator optionally persists each run to three tables:
//   - bench_runs: one row per run with the summary counters and latency stats
//   - bench_room_counts: responses per room
//   - bench_throughput: 10-second throughput buckets
//
// EnsureSchema creates the tables if they do not exist.
package database
