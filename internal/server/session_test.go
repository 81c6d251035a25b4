package server

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/chatflow/internal/protocol"
	"github.com/rickgao/chatflow/internal/wsconn"
)

type recordingWriter struct {
	mu     sync.Mutex
	frames int
}

func (w *recordingWriter) WriteMessage(int, []byte) error {
	w.mu.Lock()
	w.frames++
	w.mu.Unlock()
	return nil
}

func (w *recordingWriter) SetWriteDeadline(time.Time) error { return nil }

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

func newFlushTestSession(t *testing.T, flushFrames, flushBytes int) (*Session, *recordingWriter) {
	t.Helper()
	m, err := newServerMetrics(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("newServerMetrics() error = %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := &recordingWriter{}
	s := &Session{
		out:         wsconn.NewOutbound(w, wsconn.DefaultConfig(), logger),
		responder:   NewResponder(nil),
		metrics:     m,
		logger:      logger,
		inbox:       make(chan []byte, 16),
		flushFrames: flushFrames,
		flushBytes:  flushBytes,
	}
	t.Cleanup(s.out.Close)
	return s, w
}

func TestSession_FlushesAfterFrameThreshold(t *testing.T) {
	s, w := newFlushTestSession(t, 3, 1<<20)

	// A frame still waiting in the inbox keeps the drain rule from firing.
	s.inbox <- frame(t, protocol.MessageTypeJoin)

	for i := 0; i < 2; i++ {
		s.respond(frame(t, protocol.MessageTypeJoin))
		if s.flushDue() {
			t.Fatalf("flushDue() after %d responses = true, want false", i+1)
		}
	}
	s.respond(frame(t, protocol.MessageTypeJoin))
	if !s.flushDue() {
		t.Fatal("flushDue() at frame threshold = false, want true")
	}

	s.flush()
	if s.flushDue() {
		t.Error("flushDue() right after flush = true, want false")
	}

	deadline := time.Now().Add(2 * time.Second)
	for w.count() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("frames written = %d, want 3", w.count())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSession_FlushesAfterByteThreshold(t *testing.T) {
	s, _ := newFlushTestSession(t, 1000, 64)
	s.inbox <- frame(t, protocol.MessageTypeJoin)

	s.respond(frame(t, protocol.MessageTypeJoin))
	if s.unflushedBytes < 64 {
		t.Fatalf("unflushedBytes = %d, want >= 64", s.unflushedBytes)
	}
	if !s.flushDue() {
		t.Error("flushDue() at byte threshold = false, want true")
	}
}

func TestSession_FlushesWhenInboxDrained(t *testing.T) {
	s, _ := newFlushTestSession(t, 1000, 1<<20)

	s.respond(frame(t, protocol.MessageTypeJoin))
	if !s.flushDue() {
		t.Error("flushDue() with empty inbox = false, want true")
	}
}
