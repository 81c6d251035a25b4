// Package writer persists load run output.
//
// Writers:
//   - CSV writer: per-message records, fed asynchronously from response handlers
//   - WriteCSV: one-shot summary and throughput files
//   - Results writer: run summary, per-room counts, and throughput buckets (PostgreSQL)
//
// All writers use append-only semantics (never update, only insert).
package writer
