// Package metrics records per-response latency and completion for a load run.
//
// Collector is written to concurrently by every connection's read path and
// every sender worker. Counters are atomic; latency and ack samples go into
// fixed-size arrays at an atomically reserved index. Samples past capacity
// are dropped, so under extreme load the reported tail is approximate.
//
// Summarize must only be called after all writers have stopped. It sorts a
// snapshot of the samples once and derives:
//
//   - Nearest-rank percentiles: index ceil(p*n)-1, clamped to [0, n-1]
//   - Per-room throughput and message type distribution, in lexical key order
//   - 10 second throughput buckets anchored at the run start (empty buckets omitted)
//
// Latch counts outstanding responses so the runner can wait for the tail of a
// run without hanging forever. Exporter mirrors the live counters to Prometheus.
package metrics
