package loadgen

import (
	"log/slog"
	"time"

	"github.com/rickgao/chatflow/internal/connection"
	"github.com/rickgao/chatflow/internal/metrics"
	"github.com/rickgao/chatflow/internal/protocol"
)

// ResponseRecorder receives correlated responses.
type ResponseRecorder interface {
	RecordResponse(s metrics.Sample)
	RecordFailure()
}

// sendSource is the connection state a response is correlated against.
type sendSource interface {
	RoomID() string
	PollSend() (int64, bool)
}

// Correlator turns response frames into metrics samples.
type Correlator struct {
	metrics ResponseRecorder
	logger  *slog.Logger
}

// NewCorrelator creates a correlator recording into rec.
func NewCorrelator(rec ResponseRecorder, logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Correlator{metrics: rec, logger: logger}
}

// Handle is a connection.ResponseHandler.
func (c *Correlator) Handle(conn *connection.Client, data []byte, receivedAt time.Time) {
	c.handle(conn, data, receivedAt)
}

// handle pops the connection's oldest send time for every frame so the
// queue stays aligned. Latency comes only from the timestamp echoed in the
// response; error responses carry no echo and have unknown latency.
func (c *Correlator) handle(src sendSource, data []byte, receivedAt time.Time) {
	ackMs := receivedAt.UnixMilli()
	src.PollSend()

	resp, err := protocol.DecodeResponse(data)
	if err != nil {
		c.logger.Debug("undecodable response", "room_id", src.RoomID(), "error", err)
		c.metrics.RecordFailure()
		return
	}

	sendMs := int64(-1)
	msgType := metrics.UnknownType
	if orig := resp.OriginalMessage; orig != nil {
		if ts, err := protocol.ParseTimestamp(orig.Timestamp); err == nil {
			sendMs = ts.UnixMilli()
		}
		if orig.MessageType != "" {
			msgType = string(orig.MessageType)
		}
	}

	latency := int64(-1)
	if sendMs >= 0 {
		latency = max(ackMs-sendMs, 0)
	}

	c.metrics.RecordResponse(metrics.Sample{
		SendMs:     sendMs,
		AckMs:      ackMs,
		LatencyMs:  latency,
		StatusCode: resp.StatusCode(),
		Type:       msgType,
		RoomID:     src.RoomID(),
	})
}
