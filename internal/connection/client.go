package connection

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/chatflow/internal/wsconn"
)

// Client is a single WebSocket connection to a chat room.
type Client struct {
	id      string
	cfg     ClientConfig
	handler ResponseHandler
	logger  *slog.Logger

	conn *websocket.Conn
	out  *wsconn.Outbound

	// Correlation queue of send times (unix millis), oldest first
	sendMu sync.Mutex
	sends  []int64

	active    atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	readDone  chan struct{}
}

// NewClient creates a client for cfg.RoomID. Call Connect before use.
func NewClient(cfg ClientConfig, handler ResponseHandler, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()

	return &Client{
		id:       id,
		cfg:      cfg,
		handler:  handler,
		logger:   logger.With("room_id", cfg.RoomID, "conn_id", id),
		readDone: make(chan struct{}),
	}
}

// RoomURL returns the endpoint for a room: base + "/" + escaped room id.
func RoomURL(base, roomID string) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(roomID)
}

// Connect performs the WebSocket handshake and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrAlreadyClosed
	}

	header := http.Header{}
	if c.cfg.UserAgent != "" {
		header.Set("User-Agent", c.cfg.UserAgent)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, RoomURL(c.cfg.URL, c.cfg.RoomID), header)
	if err != nil {
		return err
	}
	if c.cfg.ReadLimit > 0 {
		conn.SetReadLimit(c.cfg.ReadLimit)
	}

	c.conn = conn
	c.out = wsconn.NewOutbound(conn, c.cfg.Outbound, c.logger)
	c.active.Store(true)

	go c.readLoop()

	c.logger.Debug("websocket connected")
	return nil
}

// ID returns the connection's unique id.
func (c *Client) ID() string { return c.id }

// RoomID returns the room this connection is bound to.
func (c *Client) RoomID() string { return c.cfg.RoomID }

// Write queues data as one text frame without flushing.
func (c *Client) Write(data []byte) (*wsconn.WriteResult, error) {
	if !c.active.Load() {
		return nil, ErrNotConnected
	}
	return c.out.Write(data)
}

// Flush sends all queued frames.
func (c *Client) Flush() error {
	if !c.active.Load() {
		return ErrNotConnected
	}
	return c.out.Flush()
}

// Writable reports whether the outbound queue is below its high watermark.
func (c *Client) Writable() bool {
	return c.active.Load() && c.out.Writable()
}

// IsActive reports whether the connection is open and has not failed a write.
func (c *Client) IsActive() bool {
	return c.active.Load() && c.out.Err() == nil
}

// RecordSend appends sentAt to the correlation queue.
func (c *Client) RecordSend(sentAt time.Time) {
	c.sendMu.Lock()
	c.sends = append(c.sends, sentAt.UnixMilli())
	c.sendMu.Unlock()
}

// PollSend removes and returns the oldest recorded send time in unix millis.
func (c *Client) PollSend() (int64, bool) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if len(c.sends) == 0 {
		return 0, false
	}
	ts := c.sends[0]
	c.sends = c.sends[1:]
	if len(c.sends) == 0 {
		c.sends = nil
	}
	return ts, true
}

// Outstanding returns the number of sends not yet matched to a response.
func (c *Client) Outstanding() int {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return len(c.sends)
}

// Close gracefully closes the connection. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.active.Store(false)

		if c.conn == nil {
			return
		}

		c.out.Close()
		select {
		case <-c.out.Done():
		case <-time.After(time.Second):
		}

		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = c.conn.Close()
	})
	return err
}

// Done is closed when the read loop exits.
func (c *Client) Done() <-chan struct{} {
	return c.readDone
}

// readLoop hands every inbound frame to the response handler.
func (c *Client) readLoop() {
	defer close(c.readDone)
	defer c.active.Store(false)

	for {
		_, data, err := c.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			if !c.closed.Load() {
				c.logger.Debug("read loop ended", "error", err)
			}
			return
		}

		if c.handler != nil {
			c.handler(c, data, receivedAt)
		}
	}
}

// WSDialer dials Clients for the pool.
type WSDialer struct {
	cfg     ClientConfig
	handler ResponseHandler
	logger  *slog.Logger
}

// NewWSDialer creates a dialer whose clients share cfg (RoomID is set per dial) and handler.
func NewWSDialer(cfg ClientConfig, handler ResponseHandler, logger *slog.Logger) *WSDialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSDialer{cfg: cfg, handler: handler, logger: logger}
}

// Dial connects a new client to roomID.
func (d *WSDialer) Dial(ctx context.Context, roomID string) (Conn, error) {
	cfg := d.cfg
	cfg.RoomID = roomID

	c := NewClient(cfg, d.handler, d.logger)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}
