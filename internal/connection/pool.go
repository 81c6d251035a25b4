package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// pendingDial is one in-flight connect attempt.
type pendingDial struct {
	key       string
	roomID    string
	cancel    context.CancelFunc
	cancelled bool // guarded by Pool.mu
}

// Pool maps (room, slot) keys to live connections.
type Pool struct {
	cfg     PoolConfig
	dialer  Dialer
	metrics Recorder
	logger  *slog.Logger

	conns    sync.Map // key -> Conn
	counters sync.Map // room id -> *atomic.Uint64

	group singleflight.Group
	sem   *semaphore.Weighted

	// Lifetime of all connect attempts; cancelled by CloseAll
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[*pendingDial]struct{}
	closed  atomic.Bool // written under mu

	cancelledDials atomic.Int64
}

// NewPool creates a connection pool.
func NewPool(cfg PoolConfig, dialer Dialer, metrics Recorder, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	def := DefaultPoolConfig()
	if cfg.ConnectionsPerRoom < 1 {
		cfg.ConnectionsPerRoom = def.ConnectionsPerRoom
	}
	if cfg.MaxConcurrentHandshakes < 1 {
		cfg.MaxConcurrentHandshakes = def.MaxConcurrentHandshakes
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		cfg:     cfg,
		dialer:  dialer,
		metrics: metrics,
		logger:  logger,
		sem:     semaphore.NewWeighted(cfg.MaxConcurrentHandshakes),
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[*pendingDial]struct{}),
	}
}

// Key builds the pool key for a room slot.
func Key(roomID string, slot int) string {
	return roomID + KeySeparator + strconv.Itoa(slot)
}

// ValidateRoomID rejects ids that cannot be used in a pool key.
func ValidateRoomID(roomID string) error {
	if roomID == "" || strings.Contains(roomID, KeySeparator) {
		return fmt.Errorf("%w: %q", ErrInvalidRoomID, roomID)
	}
	return nil
}

// nextKey returns the key for the room's next slot, round-robin.
func (p *Pool) nextKey(roomID string) string {
	v, ok := p.counters.Load(roomID)
	if !ok {
		v, _ = p.counters.LoadOrStore(roomID, new(atomic.Uint64))
	}
	n := v.(*atomic.Uint64).Add(1) - 1
	return Key(roomID, int(n%uint64(p.cfg.ConnectionsPerRoom)))
}

// GetOrCreate returns a live connection for the room's next slot, connecting
// if needed. Concurrent callers for the same slot share one connect attempt.
func (p *Pool) GetOrCreate(ctx context.Context, roomID string) (Conn, error) {
	if err := ValidateRoomID(roomID); err != nil {
		return nil, err
	}
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	key := p.nextKey(roomID)

	if v, ok := p.conns.Load(key); ok {
		c := v.(Conn)
		if c.IsActive() {
			return c, nil
		}
		if p.conns.CompareAndDelete(key, c) {
			c.Close()
			p.metrics.RecordReconnection()
			p.logger.Debug("replacing stale connection", "key", key)
		}
	}

	ch := p.group.DoChan(key, func() (any, error) {
		return p.connect(key, roomID)
	})

	// The shared attempt bounds its own dial with HandshakeTimeout, so the
	// caller only waits for the result or its own cancellation.
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Conn), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// connect runs at most once per key at a time.
func (p *Pool) connect(key, roomID string) (Conn, error) {
	if v, ok := p.conns.Load(key); ok {
		if c := v.(Conn); c.IsActive() {
			return c, nil
		}
	}

	pd, ctx, err := p.register(key, roomID)
	if err != nil {
		return nil, err
	}
	defer p.unregister(pd)

	// Waiting for a permit is bounded only by the pool lifetime and Remove.
	if err := p.acquire(ctx); err != nil {
		return nil, p.dialError(ctx, key, err)
	}
	defer p.sem.Release(1)

	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.HandshakeTimeout)
	defer cancel()

	conn, err := p.dialer.Dial(dialCtx, roomID)
	if err != nil {
		return nil, p.dialError(dialCtx, key, err)
	}

	p.mu.Lock()
	if p.closed.Load() || pd.cancelled {
		p.mu.Unlock()
		conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrDialCancelled, key)
	}
	p.conns.Store(key, conn)
	p.mu.Unlock()

	p.metrics.RecordConnection()
	p.logger.Debug("connection established", "key", key, "conn_id", conn.ID())
	return conn, nil
}

// acquire polls for a handshake permit every RetryDelay until ctx is done.
func (p *Pool) acquire(ctx context.Context) error {
	for {
		if p.sem.TryAcquire(1) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.cfg.RetryDelay):
		}
	}
}

func (p *Pool) dialError(ctx context.Context, key string, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %s", ErrHandshakeTimeout, key)
	case ctx.Err() != nil:
		return fmt.Errorf("%w: %s", ErrDialCancelled, key)
	default:
		return fmt.Errorf("connect %s: %w", key, err)
	}
}

func (p *Pool) register(key, roomID string) (*pendingDial, context.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed.Load() {
		return nil, nil, ErrPoolClosed
	}
	ctx, cancel := context.WithCancel(p.ctx)
	pd := &pendingDial{key: key, roomID: roomID, cancel: cancel}
	p.pending[pd] = struct{}{}
	return pd, ctx, nil
}

func (p *Pool) unregister(pd *pendingDial) {
	p.mu.Lock()
	delete(p.pending, pd)
	p.mu.Unlock()
	pd.cancel()
}

// cancelLocked cancels a pending dial once. Must be called with mu held.
func (p *Pool) cancelLocked(pd *pendingDial) {
	if pd.cancelled {
		return
	}
	pd.cancelled = true
	pd.cancel()
	p.cancelledDials.Add(1)
}

// Remove closes and evicts every connection of a room and cancels its
// pending connects, so the next GetOrCreate dials fresh.
func (p *Pool) Remove(roomID string) {
	prefix := roomID + KeySeparator

	p.mu.Lock()
	for pd := range p.pending {
		if pd.roomID == roomID {
			p.cancelLocked(pd)
		}
	}
	var evicted []Conn
	p.conns.Range(func(k, v any) bool {
		if strings.HasPrefix(k.(string), prefix) && p.conns.CompareAndDelete(k, v) {
			evicted = append(evicted, v.(Conn))
		}
		return true
	})
	p.mu.Unlock()

	for slot := 0; slot < p.cfg.ConnectionsPerRoom; slot++ {
		p.group.Forget(Key(roomID, slot))
	}
	for _, c := range evicted {
		c.Close()
	}
}

// Get returns the cached connection for key, if any.
func (p *Pool) Get(key string) (Conn, bool) {
	v, ok := p.conns.Load(key)
	if !ok {
		return nil, false
	}
	return v.(Conn), true
}

// CloseAll cancels pending connects and closes every connection. It is
// idempotent and safe to call while other goroutines use the pool.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	if p.closed.Load() {
		p.mu.Unlock()
		return
	}
	p.closed.Store(true)
	for pd := range p.pending {
		p.cancelLocked(pd)
	}
	p.cancel()

	var conns []Conn
	p.conns.Range(func(k, v any) bool {
		if p.conns.CompareAndDelete(k, v) {
			conns = append(conns, v.(Conn))
		}
		return true
	})
	p.mu.Unlock()

	for _, c := range conns {
		if err := c.Close(); err != nil {
			p.logger.Debug("close connection", "conn_id", c.ID(), "error", err)
		}
	}
	p.logger.Info("connection pool closed", "connections", len(conns))
}

// Stats returns current statistics.
func (p *Pool) Stats() PoolStats {
	n := 0
	p.conns.Range(func(_, _ any) bool {
		n++
		return true
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{Connections: n, Pending: len(p.pending)}
}
