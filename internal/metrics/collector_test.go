package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type recordingWriter struct {
	mu      sync.Mutex
	records [][]string
}

func (w *recordingWriter) Write(record []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.records = append(w.records, record)
}

func TestCollector_Summarize(t *testing.T) {
	latch := NewLatch(12)
	out := &recordingWriter{}
	c := NewCollector(CollectorConfig{Capacity: 12, Latch: latch, PerMessage: out})

	start := time.UnixMilli(1_700_000_000_000)
	now := start
	c.now = func() time.Time { return now }
	c.MarkStart()

	for i := int64(1); i <= 10; i++ {
		c.RecordResponse(Sample{
			SendMs:     start.UnixMilli(),
			AckMs:      start.UnixMilli() + i*1000,
			LatencyMs:  i,
			StatusCode: 200,
			Type:       "TEXT",
			RoomID:     []string{"2", "10"}[i%2],
		})
	}
	c.RecordResponse(Sample{SendMs: -1, AckMs: start.UnixMilli() + 12_000, LatencyMs: -1, StatusCode: 400, RoomID: "2"})
	c.RecordFailure()
	c.RecordConnection()
	c.RecordConnection()
	c.RecordReconnection()

	now = start.Add(20 * time.Second)
	c.MarkEnd()

	if got := latch.Count(); got != 0 {
		t.Errorf("latch.Count() = %d, want 0", got)
	}

	r := c.Summarize()
	if r.Successes != 10 || r.ErrorResponses != 1 || r.Failures != 1 {
		t.Errorf("counts = %d/%d/%d, want 10/1/1", r.Successes, r.ErrorResponses, r.Failures)
	}
	if r.Connections != 2 || r.Reconnections != 1 {
		t.Errorf("connections = %d/%d, want 2/1", r.Connections, r.Reconnections)
	}
	if r.RuntimeMs != 20_000 {
		t.Errorf("RuntimeMs = %d, want 20000", r.RuntimeMs)
	}
	if r.Throughput != 0.5 {
		t.Errorf("Throughput = %v, want 0.5", r.Throughput)
	}
	if r.Latency.Count != 10 || r.Latency.Median != 5 || r.Latency.P95 != 10 || r.Latency.P99 != 10 {
		t.Errorf("Latency = %+v", r.Latency)
	}

	if len(r.Rooms) != 2 || r.Rooms[0].RoomID != "10" || r.Rooms[1].RoomID != "2" {
		t.Fatalf("Rooms = %+v, want lexical order [10 2]", r.Rooms)
	}
	if r.Rooms[0].Count != 5 || r.Rooms[1].Count != 6 {
		t.Errorf("room counts = %d/%d, want 5/6", r.Rooms[0].Count, r.Rooms[1].Count)
	}

	if len(r.Types) != 2 || r.Types[0].Type != "TEXT" || r.Types[1].Type != UnknownType {
		t.Fatalf("Types = %+v", r.Types)
	}

	// acks at +1s..+9s, +10s and +12s
	if len(r.Buckets) != 2 || r.Buckets[0].Count != 9 || r.Buckets[1].Count != 2 {
		t.Errorf("Buckets = %+v", r.Buckets)
	}

	if len(out.records) != 11 {
		t.Fatalf("per-message records = %d, want 11", len(out.records))
	}
	last := out.records[10]
	want := []string{"", UnknownType, "-1", "400", "2"}
	for i := range want {
		if last[i] != want[i] {
			t.Errorf("record[%d] = %q, want %q", i, last[i], want[i])
		}
	}
}

func TestCollector_LiveAccessors(t *testing.T) {
	c := NewCollector(CollectorConfig{Capacity: 1})
	start := time.UnixMilli(1_700_000_000_000)
	now := start
	c.now = func() time.Time { return now }

	if !c.StartTime().IsZero() || c.Elapsed() != 0 {
		t.Errorf("before MarkStart: StartTime = %v, Elapsed = %v, want zero", c.StartTime(), c.Elapsed())
	}

	c.MarkStart()
	c.RecordConnection()
	now = start.Add(3 * time.Second)

	if !c.StartTime().Equal(start) {
		t.Errorf("StartTime() = %v, want %v", c.StartTime(), start)
	}
	if got := c.Elapsed(); got != 3*time.Second {
		t.Errorf("Elapsed() = %v, want 3s", got)
	}
	if got := c.Connections(); got != 1 {
		t.Errorf("Connections() = %d, want 1", got)
	}

	c.MarkEnd()
	now = start.Add(10 * time.Second)
	if got := c.Elapsed(); got != 3*time.Second {
		t.Errorf("Elapsed() after MarkEnd = %v, want 3s", got)
	}
}

func TestCollector_DropsSamplesPastCapacity(t *testing.T) {
	c := NewCollector(CollectorConfig{Capacity: 3})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.RecordResponse(Sample{SendMs: 1, AckMs: 2, LatencyMs: int64(i), StatusCode: 200, Type: "TEXT", RoomID: "1"})
		}(i)
	}
	wg.Wait()

	r := c.Summarize()
	if r.Successes != 50 {
		t.Errorf("Successes = %d, want 50", r.Successes)
	}
	if r.Latency.Count != 3 {
		t.Errorf("Latency.Count = %d, want 3", r.Latency.Count)
	}
}

func TestReport_SummaryRecords(t *testing.T) {
	r := Report{Successes: 10, ErrorResponses: 2, Failures: 1, RuntimeMs: 4000, Throughput: 2.5, Connections: 3}
	records := r.SummaryRecords()

	want := map[string]string{
		"successful_messages":    "10",
		"error_responses":        "2",
		"failed_messages":        "1",
		"total_runtime_ms":       "4000",
		"throughput_msg_per_sec": "2.50",
		"total_connections":      "3",
		"reconnections":          "0",
	}
	if len(records) != len(want) {
		t.Fatalf("len(records) = %d, want %d", len(records), len(want))
	}
	for _, rec := range records {
		if want[rec[0]] != rec[1] {
			t.Errorf("%s = %q, want %q", rec[0], rec[1], want[rec[0]])
		}
	}
}

func TestExporter(t *testing.T) {
	reg := prometheus.NewRegistry()
	exp, err := NewExporter(reg)
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}
	latch := NewLatch(5)
	if err := RegisterOutstanding(reg, latch); err != nil {
		t.Fatalf("RegisterOutstanding failed: %v", err)
	}

	c := NewCollector(CollectorConfig{Capacity: 5, Latch: latch, Exporter: exp})
	c.RecordResponse(Sample{LatencyMs: 3, StatusCode: 200})
	c.RecordResponse(Sample{LatencyMs: -1, StatusCode: 400})
	c.RecordFailure()
	c.RecordConnection()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	values := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				values[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[mf.GetName()] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				values[mf.GetName()] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}

	checks := map[string]float64{
		"chatflow_client_responses_total":       2,
		"chatflow_client_failures_total":        1,
		"chatflow_client_connections_total":     1,
		"chatflow_client_latency_seconds":       1,
		"chatflow_client_outstanding_responses": 2,
	}
	for name, want := range checks {
		if got := values[name]; got != want {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
	}
}
