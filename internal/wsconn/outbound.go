// Package wsconn queues outbound WebSocket frames for explicit flushing.
//
// Write only appends a frame to the pending batch. Flush hands the batch to a
// single writer goroutine, so frames reach the socket in the order they were
// written and a burst of writes costs one hand-off. Bytes flushed but not yet
// on the wire count against a high/low watermark pair: crossing the high
// watermark marks the queue unwritable until the writer drains it to the low
// watermark. Unflushed bytes do not count, so a caller holding a partial batch
// can always make progress by flushing it.
package wsconn

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Errors
var (
	ErrClosed = errors.New("outbound queue closed")
)

// FrameWriter is the write side of a WebSocket connection. *websocket.Conn
// satisfies it.
type FrameWriter interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
}

// Config configures an Outbound queue.
type Config struct {
	LowWatermark  int           // flushed bytes; writable again at or below this
	HighWatermark int           // flushed bytes; unwritable at or above this
	WriteTimeout  time.Duration // per-frame write deadline (0 = none)
	QueueDepth    int           // flushed batches waiting for the writer
}

// DefaultConfig returns the default watermarks (32 KiB / 64 KiB).
func DefaultConfig() Config {
	return Config{
		LowWatermark:  32 * 1024,
		HighWatermark: 64 * 1024,
		WriteTimeout:  10 * time.Second,
		QueueDepth:    256,
	}
}

// WriteResult completes when the batch containing a write has been written.
type WriteResult struct {
	done chan struct{}
	err  error
}

func newWriteResult() *WriteResult {
	return &WriteResult{done: make(chan struct{})}
}

func (r *WriteResult) complete(err error) {
	r.err = err
	close(r.done)
}

// Done is closed once the write has completed or failed.
func (r *WriteResult) Done() <-chan struct{} {
	return r.done
}

// Err returns the write error. Only valid after Done is closed.
func (r *WriteResult) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Wait blocks until the write completes or ctx is done.
func (r *WriteResult) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type batch struct {
	frames [][]byte
	bytes  int
	result *WriteResult
}

// Outbound is a per-connection outbound frame queue.
type Outbound struct {
	w      FrameWriter
	cfg    Config
	logger *slog.Logger

	batches chan batch
	flushMu sync.Mutex // serializes hand-offs so batches stay in order
	done    chan struct{}

	mu       sync.Mutex
	pending  batch
	buffered int
	writable bool
	resume   chan struct{} // closed when the queue becomes writable again
	err      error
	closed   bool
}

// NewOutbound creates a queue over w and starts its writer goroutine.
func NewOutbound(w FrameWriter, cfg Config, logger *slog.Logger) *Outbound {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HighWatermark <= 0 {
		cfg.HighWatermark = DefaultConfig().HighWatermark
	}
	if cfg.LowWatermark <= 0 || cfg.LowWatermark > cfg.HighWatermark {
		cfg.LowWatermark = cfg.HighWatermark / 2
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultConfig().QueueDepth
	}

	o := &Outbound{
		w:        w,
		cfg:      cfg,
		logger:   logger,
		batches:  make(chan batch, cfg.QueueDepth),
		done:     make(chan struct{}),
		writable: true,
	}
	go o.writeLoop()
	return o
}

// Write queues data as one text frame without flushing. The returned result
// completes when the batch holding the frame has been written.
func (o *Outbound) Write(data []byte) (*WriteResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil, ErrClosed
	}
	if o.err != nil {
		return nil, o.err
	}

	if o.pending.result == nil {
		o.pending.result = newWriteResult()
	}
	o.pending.frames = append(o.pending.frames, data)
	o.pending.bytes += len(data)
	return o.pending.result, nil
}

// Flush hands all pending frames to the writer. It does not wait for them
// to be written; use the WriteResult for that.
func (o *Outbound) Flush() error {
	o.flushMu.Lock()
	defer o.flushMu.Unlock()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.err != nil {
		err := o.err
		b := o.pending
		o.pending = batch{}
		o.mu.Unlock()
		if b.result != nil {
			b.result.complete(err)
		}
		return err
	}
	b := o.pending
	o.pending = batch{}
	if len(b.frames) == 0 {
		o.mu.Unlock()
		return nil
	}
	o.buffered += b.bytes
	if o.writable && o.buffered >= o.cfg.HighWatermark {
		o.writable = false
		o.resume = make(chan struct{})
	}
	o.mu.Unlock()

	o.batches <- b
	return nil
}

// Writable reports whether flushed bytes are below the high watermark, or
// have drained back to the low watermark after crossing it.
func (o *Outbound) Writable() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.writable && !o.closed && o.err == nil
}

// WaitWritable blocks until the queue is writable, closed, or failed, or ctx is done.
func (o *Outbound) WaitWritable(ctx context.Context) error {
	for {
		o.mu.Lock()
		if o.writable || o.closed || o.err != nil {
			o.mu.Unlock()
			return nil
		}
		resume := o.resume
		o.mu.Unlock()

		select {
		case <-resume:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Buffered returns the number of bytes flushed but not yet on the wire.
func (o *Outbound) Buffered() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buffered
}

// Err returns the first write error, if any.
func (o *Outbound) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Done is closed when the writer goroutine has exited.
func (o *Outbound) Done() <-chan struct{} {
	return o.done
}

// Close stops accepting writes. Batches already flushed are still written;
// unflushed frames fail with ErrClosed. Close is idempotent.
func (o *Outbound) Close() {
	o.flushMu.Lock()
	defer o.flushMu.Unlock()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	b := o.pending
	o.pending = batch{}
	o.releaseLocked()
	o.mu.Unlock()

	if b.result != nil {
		b.result.complete(ErrClosed)
	}
	close(o.batches)
}

// releaseLocked wakes WaitWritable callers. Must be called with mu held.
func (o *Outbound) releaseLocked() {
	if !o.writable {
		o.writable = true
		close(o.resume)
	}
}

func (o *Outbound) writeLoop() {
	defer close(o.done)

	for b := range o.batches {
		err := o.Err()
		if err == nil {
			err = o.writeBatch(b)
		}

		o.mu.Lock()
		o.buffered -= b.bytes
		if err != nil && o.err == nil {
			o.err = err
			o.logger.Debug("outbound write failed", "error", err)
		}
		if o.err != nil || o.buffered <= o.cfg.LowWatermark {
			o.releaseLocked()
		}
		o.mu.Unlock()

		b.result.complete(err)
	}
}

func (o *Outbound) writeBatch(b batch) error {
	for _, frame := range b.frames {
		if o.cfg.WriteTimeout > 0 {
			if err := o.w.SetWriteDeadline(time.Now().Add(o.cfg.WriteTimeout)); err != nil {
				return err
			}
		}
		if err := o.w.WriteMessage(websocket.TextMessage, frame); err != nil {
			return err
		}
	}
	return nil
}
