package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/chatflow/internal/protocol"
	"github.com/rickgao/chatflow/internal/wsconn"
)

// Session serves one WebSocket connection bound to a room.
type Session struct {
	id        string
	roomID    string
	conn      *websocket.Conn
	out       *wsconn.Outbound
	responder *Responder
	metrics   *serverMetrics
	logger    *slog.Logger

	inbox chan []byte

	// Responses written since the last flush; touched only by process.
	unflushedFrames int
	unflushedBytes  int
	flushFrames     int
	flushBytes      int

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, roomID string, cfg Config, m *serverMetrics, logger *slog.Logger) *Session {
	id := uuid.NewString()
	logger = logger.With("room_id", roomID, "session_id", id)

	if cfg.ReadLimit > 0 {
		conn.SetReadLimit(cfg.ReadLimit)
	}
	def := DefaultConfig()
	inboxSize := cfg.InboxSize
	if inboxSize <= 0 {
		inboxSize = def.InboxSize
	}

	if cfg.FlushFrames <= 0 {
		cfg.FlushFrames = def.FlushFrames
	}
	if cfg.FlushBytes <= 0 {
		cfg.FlushBytes = def.FlushBytes
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:          id,
		roomID:      roomID,
		conn:        conn,
		out:         wsconn.NewOutbound(conn, cfg.Outbound, logger),
		responder:   NewResponder(cfg.RateLimit.limiter()),
		metrics:     m,
		logger:      logger,
		inbox:       make(chan []byte, inboxSize),
		flushFrames: cfg.FlushFrames,
		flushBytes:  cfg.FlushBytes,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// RoomID returns the room the session is bound to.
func (s *Session) RoomID() string { return s.roomID }

// Serve reads and answers frames until the connection ends, then closes it.
func (s *Session) Serve() {
	processDone := make(chan struct{})
	go func() {
		defer close(processDone)
		s.process()
	}()

	s.readLoop()
	<-processDone
	s.Close()
}

// Close closes the connection with a normal closure. Safe to call more than once.
func (s *Session) Close() error {
	return s.closeWith(websocket.CloseNormalClosure, "")
}

func (s *Session) closeWith(code int, text string) error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()

		s.out.Close()
		select {
		case <-s.out.Done():
		case <-time.After(time.Second):
		}

		s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, text),
			time.Now().Add(time.Second),
		)
		err = s.conn.Close()
	})
	return err
}

// readLoop feeds inbound text frames to the inbox. Reading pauses while the
// outbound queue is above its high watermark.
func (s *Session) readLoop() {
	defer close(s.inbox)

	for {
		if !s.out.Writable() {
			if s.out.Err() != nil {
				return
			}
			s.metrics.readPaused()
			if err := s.out.WaitWritable(s.ctx); err != nil {
				return
			}
		}

		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && s.ctx.Err() == nil {
				s.logger.Debug("read failed", "error", err)
			}
			return
		}

		if mt != websocket.TextMessage {
			s.logger.Warn("closing session on non-text frame", "frame_type", mt)
			s.closeWith(websocket.CloseUnsupportedData, "text frames only")
			return
		}

		select {
		case s.inbox <- data:
		case <-s.ctx.Done():
			return
		}
	}
}

// process answers inbox frames in arrival order. It flushes whenever the
// inbox has been drained or the unflushed responses reach a threshold.
func (s *Session) process() {
	for data := range s.inbox {
		s.respond(data)

		if s.flushDue() {
			s.flush()
		}
	}
}

func (s *Session) flushDue() bool {
	return len(s.inbox) == 0 ||
		s.unflushedFrames >= s.flushFrames ||
		s.unflushedBytes >= s.flushBytes
}

func (s *Session) flush() {
	s.unflushedFrames, s.unflushedBytes = 0, 0
	if err := s.out.Flush(); err != nil && !errors.Is(err, wsconn.ErrClosed) {
		s.logger.Debug("flush failed", "error", err)
	}
}

func (s *Session) respond(data []byte) {
	resp := s.responder.Handle(data)
	s.metrics.message(resp.Status)

	if resp.Status != protocol.StatusSuccess {
		s.logger.Debug("rejected message", "reason", resp.Error)
	}

	frame, err := protocol.EncodeResponse(resp)
	if err != nil {
		s.logger.Error("failed to encode response", "error", err)
		return
	}
	if _, err := s.out.Write(frame); err != nil {
		if !errors.Is(err, wsconn.ErrClosed) {
			s.logger.Debug("write failed", "error", err)
		}
		return
	}
	s.unflushedFrames++
	s.unflushedBytes += len(frame)
}
