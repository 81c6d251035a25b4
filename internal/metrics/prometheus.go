package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Exporter mirrors Collector counters to Prometheus. A nil *Exporter is a no-op.
type Exporter struct {
	responses     *prometheus.CounterVec
	failures      prometheus.Counter
	connections   prometheus.Counter
	reconnections prometheus.Counter
	latency       prometheus.Histogram
}

// NewExporter creates and registers the client metrics on reg.
func NewExporter(reg prometheus.Registerer) (*Exporter, error) {
	e := &Exporter{
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatflow_client_responses_total",
			Help: "Responses received, by status code",
		}, []string{"code"}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatflow_client_failures_total",
			Help: "Messages that failed after all retries",
		}),
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatflow_client_connections_total",
			Help: "WebSocket connections established",
		}),
		reconnections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatflow_client_reconnections_total",
			Help: "Stale connections replaced",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatflow_client_latency_seconds",
			Help:    "Round-trip latency of acknowledged messages",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
		}),
	}

	for _, c := range []prometheus.Collector{e.responses, e.failures, e.connections, e.reconnections, e.latency} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// RegisterOutstanding exposes the latch count as a gauge.
func RegisterOutstanding(reg prometheus.Registerer, latch *Latch) error {
	return reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "chatflow_client_outstanding_responses",
		Help: "Responses still expected before the run completes",
	}, func() float64 { return float64(latch.Count()) }))
}

func (e *Exporter) response(code int, latencyMs int64) {
	if e == nil {
		return
	}
	e.responses.WithLabelValues(strconv.Itoa(code)).Inc()
	if latencyMs >= 0 {
		e.latency.Observe(float64(latencyMs) / 1000)
	}
}

func (e *Exporter) failure() {
	if e != nil {
		e.failures.Inc()
	}
}

func (e *Exporter) connection() {
	if e != nil {
		e.connections.Inc()
	}
}

func (e *Exporter) reconnection() {
	if e != nil {
		e.reconnections.Inc()
	}
}
