package server

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/chatflow/internal/protocol"
)

type serverMetrics struct {
	messages   *prometheus.CounterVec
	sessions   prometheus.Gauge
	accepted   prometheus.Counter
	rejected   prometheus.Counter
	readPauses prometheus.Counter
}

func newServerMetrics(reg prometheus.Registerer) (*serverMetrics, error) {
	m := &serverMetrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatflow_server_messages_total",
			Help: "Messages answered, by response status",
		}, []string{"status"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatflow_server_active_sessions",
			Help: "Open WebSocket sessions",
		}),
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatflow_server_sessions_total",
			Help: "WebSocket sessions accepted",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatflow_server_upgrades_rejected_total",
			Help: "Chat requests rejected before upgrade",
		}),
		readPauses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatflow_server_read_pauses_total",
			Help: "Times a session paused reading on outbound backpressure",
		}),
	}

	for _, c := range []prometheus.Collector{m.messages, m.sessions, m.accepted, m.rejected, m.readPauses} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	// Pre-create both series so they are exported at zero.
	m.messages.WithLabelValues(protocol.StatusSuccess)
	m.messages.WithLabelValues(protocol.StatusError)
	return m, nil
}

func (m *serverMetrics) message(status string) {
	m.messages.WithLabelValues(status).Inc()
}

func (m *serverMetrics) sessionOpened() {
	m.accepted.Inc()
	m.sessions.Inc()
}

func (m *serverMetrics) sessionClosed() { m.sessions.Dec() }

func (m *serverMetrics) upgradeRejected() { m.rejected.Inc() }

func (m *serverMetrics) readPaused() { m.readPauses.Inc() }
