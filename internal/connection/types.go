package connection

import (
	"context"
	"errors"
	"time"

	"github.com/rickgao/chatflow/internal/wsconn"
)

// Errors
var (
	ErrNotConnected     = errors.New("not connected")
	ErrHandshakeTimeout = errors.New("handshake timeout")
	ErrPoolClosed       = errors.New("connection pool closed")
	ErrInvalidRoomID    = errors.New("invalid room id")
	ErrAlreadyClosed    = errors.New("already closed")
	ErrDialCancelled    = errors.New("connect cancelled")
)

// KeySeparator joins a room id and a slot into a pool key. Room ids may not contain it.
const KeySeparator = "#"

// Conn is a pooled connection as seen by senders.
type Conn interface {
	ID() string
	RoomID() string

	// Write queues one frame without flushing.
	Write(data []byte) (*wsconn.WriteResult, error)

	// Flush sends every queued frame.
	Flush() error

	// Writable reports whether the outbound queue is below its high watermark.
	Writable() bool

	// IsActive reports whether the connection can still carry traffic.
	IsActive() bool

	// RecordSend appends a send timestamp to the correlation queue.
	RecordSend(sentAt time.Time)

	Close() error
}

// Dialer opens a connection for a room.
type Dialer interface {
	Dial(ctx context.Context, roomID string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, roomID string) (Conn, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, roomID string) (Conn, error) {
	return f(ctx, roomID)
}

// Recorder receives pool connection events.
type Recorder interface {
	RecordConnection()
	RecordReconnection()
}

type nopRecorder struct{}

func (nopRecorder) RecordConnection()   {}
func (nopRecorder) RecordReconnection() {}

// ResponseHandler is called on the client's read goroutine for every frame received.
type ResponseHandler func(c *Client, data []byte, receivedAt time.Time)

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // server endpoint, e.g. ws://localhost:8080/chat; the room id is appended as a path segment
	RoomID           string        // room this connection is bound to
	UserAgent        string        // User-Agent header sent on upgrade
	HandshakeTimeout time.Duration // bound on TCP connect + upgrade
	ReadLimit        int64         // max inbound frame size (0 = unlimited)
	Outbound         wsconn.Config // outbound queue watermarks
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		URL:              "ws://localhost:8080/chat",
		HandshakeTimeout: 20 * time.Second,
		ReadLimit:        64 * 1024,
		Outbound:         wsconn.DefaultConfig(),
	}
}

// PoolConfig configures a Pool.
type PoolConfig struct {
	ConnectionsPerRoom      int           // slots per room
	MaxConcurrentHandshakes int64         // handshakes in flight across the pool
	HandshakeTimeout        time.Duration // bound on one dial, starting once a permit is held
	RetryDelay              time.Duration // interval between permit acquisition attempts
}

// DefaultPoolConfig returns sensible defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		ConnectionsPerRoom:      1,
		MaxConcurrentHandshakes: 6,
		HandshakeTimeout:        20 * time.Second,
		RetryDelay:              10 * time.Millisecond,
	}
}

// PoolStats provides statistics about the pool.
type PoolStats struct {
	Connections int // cached connections, active or not
	Pending     int // connect attempts in flight
}
