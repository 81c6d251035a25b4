package loadgen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/rickgao/chatflow/internal/connection"
	"github.com/rickgao/chatflow/internal/pacing"
	"github.com/rickgao/chatflow/internal/protocol"
	"github.com/rickgao/chatflow/internal/wsconn"
)

// ConnPool is the part of connection.Pool a sender uses.
type ConnPool interface {
	GetOrCreate(ctx context.Context, roomID string) (connection.Conn, error)
	Remove(roomID string)
}

// errEncode marks a message that could not be serialized.
var errEncode = errors.New("encode message")

// FailureRecorder is told about messages that failed terminally.
type FailureRecorder interface {
	RecordFailure()
}

// SenderConfig configures batching and retries for one sender.
type SenderConfig struct {
	BatchSize        int           // flush after this many queued messages per room
	MaxBatchBytes    int           // flush after this many queued bytes per room
	FlushInterval    time.Duration // flush if this long since the last flush (0 = off)
	FlushSync        bool          // wait for each flushed batch to be written
	MaxRetries       int           // attempts per message
	InitialBackoff   time.Duration // backoff base, doubled per retry with full jitter on top
	BackpressurePoll time.Duration // recheck interval while a connection is not writable
}

// DefaultSenderConfig returns sensible defaults.
func DefaultSenderConfig() SenderConfig {
	return SenderConfig{
		BatchSize:        100,
		MaxBatchBytes:    64 * 1024,
		FlushInterval:    2 * time.Millisecond,
		MaxRetries:       5,
		InitialBackoff:   100 * time.Millisecond,
		BackpressurePoll: time.Millisecond,
	}
}

// batchState accumulates unflushed writes for one room.
type batchState struct {
	conn         connection.Conn
	pendingCount int
	pendingBytes int
	lastFlush    time.Time
	lastWrite    *wsconn.WriteResult
}

func (b *batchState) reset(now time.Time) {
	b.pendingCount = 0
	b.pendingBytes = 0
	b.lastFlush = now
	b.lastWrite = nil
}

// Sender sends a fixed number of templates from a shared queue, batching
// writes per room and retrying failed messages with backoff.
// A Sender is owned by one goroutine.
type Sender struct {
	id      int
	cfg     SenderConfig
	queue   <-chan protocol.MessageTemplate
	count   int
	pool    ConnPool
	limiter *pacing.Limiter
	metrics FailureRecorder
	logger  *slog.Logger

	batches map[string]*batchState
	now     func() time.Time
	jitter  func() float64
}

// NewSender creates a sender that will send count templates from queue.
// limiter may be nil.
func NewSender(id int, cfg SenderConfig, queue <-chan protocol.MessageTemplate, count int,
	pool ConnPool, limiter *pacing.Limiter, metrics FailureRecorder, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.BackpressurePoll <= 0 {
		cfg.BackpressurePoll = time.Millisecond
	}

	return &Sender{
		id:      id,
		cfg:     cfg,
		queue:   queue,
		count:   count,
		pool:    pool,
		limiter: limiter,
		metrics: metrics,
		logger:  logger.With("sender", id),
		batches: make(map[string]*batchState),
		now:     time.Now,
		jitter:  rand.Float64,
	}
}

// Run sends the sender's share of messages, then flushes every room with
// pending writes. Individual message failures are recorded and do not stop
// the run; only cancellation does.
func (s *Sender) Run(ctx context.Context) error {
	defer s.flushAll()

	for i := 0; i < s.count; i++ {
		var tmpl protocol.MessageTemplate
		select {
		case t, ok := <-s.queue:
			if !ok {
				s.logger.Warn("template queue closed early", "sent", i, "expected", s.count)
				return nil
			}
			tmpl = t
		case <-ctx.Done():
			return ctx.Err()
		}

		if err := s.limiter.Acquire(ctx); err != nil {
			return err
		}
		if err := s.send(ctx, tmpl); err != nil {
			return err
		}
	}
	return nil
}

// send delivers one template, retrying transient failures up to MaxRetries
// attempts. It returns an error only on cancellation.
func (s *Sender) send(ctx context.Context, tmpl protocol.MessageTemplate) error {
	var err error
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := s.sleep(ctx, s.backoff(attempt-1)); err != nil {
				return err
			}
		}

		err = s.attempt(ctx, tmpl)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !retryable(err) {
			s.logger.Error("send failed, not retrying", "room_id", tmpl.RoomID, "error", err)
			s.metrics.RecordFailure()
			return nil
		}

		s.logger.Warn("send failed, retrying",
			"room_id", tmpl.RoomID,
			"attempt", attempt+1,
			"error", err,
		)
		s.dropRoom(tmpl.RoomID)
	}

	s.logger.Error("send failed after retries",
		"room_id", tmpl.RoomID,
		"attempts", s.cfg.MaxRetries,
		"error", err,
	)
	s.metrics.RecordFailure()
	return nil
}

// retryable reports whether err is a transient network failure. Bad room ids,
// unencodable messages, and a closed pool fail the same way on every attempt.
func retryable(err error) bool {
	switch {
	case errors.Is(err, connection.ErrInvalidRoomID),
		errors.Is(err, connection.ErrPoolClosed),
		errors.Is(err, errEncode):
		return false
	}
	return true
}

// backoff returns base * 2^retry * (1 + rand[0,1)).
func (s *Sender) backoff(retry int) time.Duration {
	base := s.cfg.InitialBackoff << retry
	return time.Duration(float64(base) * (1 + s.jitter()))
}

func (s *Sender) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dropRoom forgets the room's batch and forces the pool to reconnect it.
func (s *Sender) dropRoom(roomID string) {
	if st, ok := s.batches[roomID]; ok {
		st.conn = nil
		st.reset(s.now())
	}
	s.pool.Remove(roomID)
}

func (s *Sender) attempt(ctx context.Context, tmpl protocol.MessageTemplate) error {
	st := s.batch(tmpl.RoomID)

	conn, err := s.conn(ctx, st, tmpl.RoomID)
	if err != nil {
		return err
	}

	s.awaitWritable(ctx, conn)

	sentAt := s.now()
	data, err := protocol.EncodeMessage(tmpl.Message(sentAt))
	if err != nil {
		return fmt.Errorf("%w: %w", errEncode, err)
	}

	res, err := conn.Write(data)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	conn.RecordSend(sentAt)

	st.pendingCount++
	st.pendingBytes += len(data)
	st.lastWrite = res

	if s.shouldFlush(st) {
		return s.flush(ctx, st)
	}
	return nil
}

func (s *Sender) batch(roomID string) *batchState {
	st, ok := s.batches[roomID]
	if !ok {
		st = &batchState{lastFlush: s.now()}
		s.batches[roomID] = st
	}
	return st
}

// conn returns the room's cached connection if still active, else asks the pool.
func (s *Sender) conn(ctx context.Context, st *batchState, roomID string) (connection.Conn, error) {
	if st.conn != nil && st.conn.IsActive() {
		return st.conn, nil
	}
	conn, err := s.pool.GetOrCreate(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if st.conn != conn {
		if st.conn != nil && st.pendingCount > 0 {
			st.conn.Flush()
		}
		st.conn = conn
		st.reset(s.now())
	}
	return conn, nil
}

// awaitWritable parks while conn is over its high watermark. It gives up
// when conn goes inactive or ctx is done and lets the write fail naturally.
func (s *Sender) awaitWritable(ctx context.Context, conn connection.Conn) {
	for !conn.Writable() && conn.IsActive() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.BackpressurePoll):
		}
	}
}

func (s *Sender) shouldFlush(st *batchState) bool {
	switch {
	case st.pendingCount >= s.cfg.BatchSize:
		return true
	case s.cfg.MaxBatchBytes > 0 && st.pendingBytes >= s.cfg.MaxBatchBytes:
		return true
	case !st.conn.Writable():
		return true
	case s.cfg.FlushInterval > 0 && s.now().Sub(st.lastFlush) >= s.cfg.FlushInterval:
		return true
	}
	return false
}

func (s *Sender) flush(ctx context.Context, st *batchState) error {
	if err := st.conn.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if s.cfg.FlushSync && st.lastWrite != nil {
		if err := st.lastWrite.Wait(ctx); err != nil {
			return fmt.Errorf("flush: %w", err)
		}
	}
	st.reset(s.now())
	return nil
}

// flushAll is a best-effort final flush of every room with pending writes.
func (s *Sender) flushAll() {
	for roomID, st := range s.batches {
		if st.conn == nil || (st.pendingCount == 0 && st.pendingBytes == 0) {
			continue
		}
		if err := st.conn.Flush(); err != nil && !errors.Is(err, wsconn.ErrClosed) {
			s.logger.Warn("final flush failed", "room_id", roomID, "error", err)
			continue
		}
		st.reset(s.now())
	}
}
