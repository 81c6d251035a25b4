package metrics

import (
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/chatflow/internal/protocol"
)

// UnknownType labels responses whose message type could not be recovered.
const UnknownType = "UNKNOWN"

// unknownRoom labels responses whose room could not be recovered.
const unknownRoom = "unknown"

// RecordWriter receives one per-message CSV record. Write must not block.
type RecordWriter interface {
	Write(record []string)
}

// Sample is one received response.
type Sample struct {
	SendMs     int64  // send time in unix millis, -1 if unknown
	AckMs      int64  // receive time in unix millis
	LatencyMs  int64  // AckMs - SendMs, -1 if unknown
	StatusCode int    // protocol.StatusCodeOK or protocol.StatusCodeRejected
	Type       string // message type, UnknownType if not echoed
	RoomID     string
}

// CollectorConfig configures a Collector.
type CollectorConfig struct {
	Capacity   int          // latency/ack sample slots, normally the total message count
	Latch      *Latch       // counted down on every response and failure (optional)
	PerMessage RecordWriter // per-message CSV sink (optional)
	Exporter   *Exporter    // Prometheus mirror (optional)
}

// Collector aggregates run metrics from concurrent writers.
type Collector struct {
	latch      *Latch
	perMessage RecordWriter
	exporter   *Exporter

	latencies  []int64
	latencyIdx atomic.Int64
	acks       []int64
	ackIdx     atomic.Int64

	successes      atomic.Int64
	errorResponses atomic.Int64
	failures       atomic.Int64
	connections    atomic.Int64
	reconnections  atomic.Int64

	rooms sync.Map // string -> *atomic.Int64
	types sync.Map // string -> *atomic.Int64

	startNs atomic.Int64
	endNs   atomic.Int64
	now     func() time.Time
}

// NewCollector creates a collector with fixed sample capacity.
func NewCollector(cfg CollectorConfig) *Collector {
	capacity := max(cfg.Capacity, 0)
	return &Collector{
		latch:      cfg.Latch,
		perMessage: cfg.PerMessage,
		exporter:   cfg.Exporter,
		latencies:  make([]int64, capacity),
		acks:       make([]int64, capacity),
		now:        time.Now,
	}
}

// RecordConnection counts a newly established connection.
func (c *Collector) RecordConnection() {
	c.connections.Add(1)
	c.exporter.connection()
}

// RecordReconnection counts a stale connection being replaced.
func (c *Collector) RecordReconnection() {
	c.reconnections.Add(1)
	c.exporter.reconnection()
}

// RecordFailure counts a message that was never answered and releases its
// latch slot.
func (c *Collector) RecordFailure() {
	c.failures.Add(1)
	c.exporter.failure()
	if c.latch != nil {
		c.latch.CountDown()
	}
}

// RecordResponse records one response and releases its latch slot.
func (c *Collector) RecordResponse(s Sample) {
	if s.StatusCode == protocol.StatusCodeOK {
		c.successes.Add(1)
	} else {
		c.errorResponses.Add(1)
	}

	if s.LatencyMs >= 0 {
		if idx := c.latencyIdx.Add(1) - 1; idx < int64(len(c.latencies)) {
			c.latencies[idx] = s.LatencyMs
		}
	}
	if idx := c.ackIdx.Add(1) - 1; idx < int64(len(c.acks)) {
		c.acks[idx] = s.AckMs
	}

	room := s.RoomID
	if room == "" {
		room = unknownRoom
	}
	increment(&c.rooms, room)

	typ := s.Type
	if typ == "" {
		typ = UnknownType
	}
	increment(&c.types, typ)

	c.exporter.response(s.StatusCode, s.LatencyMs)

	if c.perMessage != nil {
		sendTs := ""
		if s.SendMs >= 0 {
			sendTs = strconv.FormatInt(s.SendMs, 10)
		}
		c.perMessage.Write([]string{
			sendTs,
			typ,
			strconv.FormatInt(s.LatencyMs, 10),
			strconv.Itoa(s.StatusCode),
			s.RoomID,
		})
	}

	if c.latch != nil {
		c.latch.CountDown()
	}
}

func increment(m *sync.Map, key string) {
	v, ok := m.Load(key)
	if !ok {
		v, _ = m.LoadOrStore(key, new(atomic.Int64))
	}
	v.(*atomic.Int64).Add(1)
}

// MarkStart records the run start time.
func (c *Collector) MarkStart() {
	c.startNs.Store(c.now().UnixNano())
}

// MarkEnd records the run end time.
func (c *Collector) MarkEnd() {
	c.endNs.Store(c.now().UnixNano())
}

// StartTime returns the time recorded by MarkStart, or the zero time before
// the run has started.
func (c *Collector) StartTime() time.Time {
	ns := c.startNs.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Elapsed returns the run time so far, frozen once MarkEnd is called.
func (c *Collector) Elapsed() time.Duration {
	start := c.StartTime()
	if start.IsZero() {
		return 0
	}
	if end := c.endNs.Load(); end != 0 {
		return time.Unix(0, end).Sub(start)
	}
	return c.now().Sub(start)
}

// Successes returns the number of success responses so far.
func (c *Collector) Successes() int64 { return c.successes.Load() }

// Failures returns the number of failed messages so far.
func (c *Collector) Failures() int64 { return c.failures.Load() }

// Connections returns the number of connections established so far.
func (c *Collector) Connections() int64 { return c.connections.Load() }

// Summarize builds the run report. Call only after every writer has stopped.
func (c *Collector) Summarize() Report {
	runtimeMs := (c.endNs.Load() - c.startNs.Load()) / int64(time.Millisecond)
	startMs := c.startNs.Load() / int64(time.Millisecond)

	r := Report{
		Successes:      c.successes.Load(),
		ErrorResponses: c.errorResponses.Load(),
		Failures:       c.failures.Load(),
		RuntimeMs:      runtimeMs,
		Connections:    c.connections.Load(),
		Reconnections:  c.reconnections.Load(),
		StartMs:        startMs,
	}
	if runtimeMs > 0 {
		r.Throughput = float64(r.Successes) * 1000 / float64(runtimeMs)
	}

	n := min(c.latencyIdx.Load(), int64(len(c.latencies)))
	r.Latency = ComputeLatencyStats(slices.Clone(c.latencies[:n]))

	n = min(c.ackIdx.Load(), int64(len(c.acks)))
	r.Buckets = ComputeBuckets(c.acks[:n], startMs, BucketWidthMs)

	runtimeSec := 1.0
	if runtimeMs > 0 {
		runtimeSec = float64(runtimeMs) / 1000
	}
	for _, kc := range sortedCounts(&c.rooms) {
		r.Rooms = append(r.Rooms, RoomThroughput{RoomID: kc.key, Count: kc.count, PerSecond: float64(kc.count) / runtimeSec})
	}

	typeCounts := sortedCounts(&c.types)
	var total int64
	for _, kc := range typeCounts {
		total += kc.count
	}
	for _, kc := range typeCounts {
		r.Types = append(r.Types, TypeShare{Type: kc.key, Count: kc.count, Percent: float64(kc.count) * 100 / float64(total)})
	}

	return r
}

type keyCount struct {
	key   string
	count int64
}

func sortedCounts(m *sync.Map) []keyCount {
	var out []keyCount
	m.Range(func(k, v any) bool {
		out = append(out, keyCount{key: k.(string), count: v.(*atomic.Int64).Load()})
		return true
	})
	slices.SortFunc(out, func(a, b keyCount) int { return strings.Compare(a.key, b.key) })
	return out
}
