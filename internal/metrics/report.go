package metrics

import (
	"fmt"
	"log/slog"
	"strconv"
)

// Report is the end-of-run summary.
type Report struct {
	Successes      int64
	ErrorResponses int64
	Failures       int64
	RuntimeMs      int64
	Throughput     float64 // successes per second
	Connections    int64
	Reconnections  int64
	StartMs        int64

	Latency LatencyStats
	Rooms   []RoomThroughput
	Types   []TypeShare
	Buckets []Bucket
}

// RoomThroughput is the response rate for one room over the whole run.
type RoomThroughput struct {
	RoomID    string
	Count     int64
	PerSecond float64
}

// TypeShare is the count and share of one message type among responses.
type TypeShare struct {
	Type    string
	Count   int64
	Percent float64
}

// CSV headers for the report files.
var (
	PerMessageHeader = []string{"timestamp", "messageType", "latencyMs", "statusCode", "roomId"}
	ThroughputHeader = []string{"bucketStartMs", "throughput", "count"}
	SummaryHeader    = []string{"metric", "value"}
)

// SummaryRecords returns the metric,value rows of the summary CSV.
func (r Report) SummaryRecords() [][]string {
	return [][]string{
		{"successful_messages", strconv.FormatInt(r.Successes, 10)},
		{"error_responses", strconv.FormatInt(r.ErrorResponses, 10)},
		{"failed_messages", strconv.FormatInt(r.Failures, 10)},
		{"total_runtime_ms", strconv.FormatInt(r.RuntimeMs, 10)},
		{"throughput_msg_per_sec", fmt.Sprintf("%.2f", r.Throughput)},
		{"total_connections", strconv.FormatInt(r.Connections, 10)},
		{"reconnections", strconv.FormatInt(r.Reconnections, 10)},
	}
}

// BucketRecords returns the rows of the throughput CSV.
func (r Report) BucketRecords() [][]string {
	records := make([][]string, 0, len(r.Buckets))
	for _, b := range r.Buckets {
		records = append(records, []string{
			strconv.FormatInt(b.StartMs, 10),
			fmt.Sprintf("%.2f", b.Throughput),
			strconv.FormatInt(b.Count, 10),
		})
	}
	return records
}

// Log writes the report to logger.
func (r Report) Log(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("run summary",
		"successful", r.Successes,
		"error_responses", r.ErrorResponses,
		"failed", r.Failures,
		"runtime_ms", r.RuntimeMs,
		"throughput_per_sec", fmt.Sprintf("%.2f", r.Throughput),
		"connections", r.Connections,
		"reconnections", r.Reconnections,
	)

	if r.Latency.Count == 0 {
		logger.Info("latency stats: no data")
	} else {
		logger.Info("latency (ms)",
			"samples", r.Latency.Count,
			"mean", fmt.Sprintf("%.2f", r.Latency.Mean),
			"median", r.Latency.Median,
			"p95", r.Latency.P95,
			"p99", r.Latency.P99,
			"min", r.Latency.Min,
			"max", r.Latency.Max,
		)
	}

	for _, room := range r.Rooms {
		logger.Info("room throughput", "room_id", room.RoomID, "count", room.Count,
			"per_sec", fmt.Sprintf("%.2f", room.PerSecond))
	}
	for _, t := range r.Types {
		logger.Info("message type", "type", t.Type, "count", t.Count,
			"percent", fmt.Sprintf("%.2f", t.Percent))
	}
}
