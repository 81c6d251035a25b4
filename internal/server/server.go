package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/rickgao/chatflow/internal/wsconn"
)

// Errors
var (
	ErrAlreadyRunning = errors.New("server already running")
)

// Config configures the chat server.
type Config struct {
	Addr        string
	Path        string // chat endpoint; rooms are Path+"/{room}" or Path+"?roomId="
	HealthPath  string
	MetricsPath string // empty disables /metrics
	ReadLimit   int64  // max inbound frame size in bytes
	InboxSize   int    // frames read ahead of processing
	FlushFrames int    // flush after this many unflushed responses
	FlushBytes  int    // flush after this many unflushed response bytes
	Outbound    wsconn.Config
	RateLimit   RateLimitConfig
}

// RateLimitConfig is a per-session inbound token bucket.
type RateLimitConfig struct {
	Enabled           bool
	MessagesPerSecond float64
	Burst             int
}

func (c RateLimitConfig) limiter() *rate.Limiter {
	if !c.Enabled || c.MessagesPerSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(c.MessagesPerSecond), max(c.Burst, 1))
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:        ":8080",
		Path:        "/chat",
		HealthPath:  "/health",
		MetricsPath: "/metrics",
		ReadLimit:   64 * 1024,
		InboxSize:   1024,
		FlushFrames: 64,
		FlushBytes:  16 * 1024,
		Outbound:    wsconn.DefaultConfig(),
		RateLimit: RateLimitConfig{
			MessagesPerSecond: 1000,
			Burst:             2000,
		},
	}
}

// Server accepts chat sessions.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	metrics  *serverMetrics
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader

	sessions sync.Map // session id -> *Session
	active   atomic.Int64
	wg       sync.WaitGroup
	stopping atomic.Bool

	mu     sync.Mutex
	server *http.Server
}

// New creates a server. Metrics are registered on reg; a nil reg uses a
// private registry.
func New(cfg Config, reg *prometheus.Registry, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if cfg.Path == "" {
		cfg.Path = DefaultConfig().Path
	}

	m, err := newServerMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	return &Server{
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		gatherer: reg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}, nil
}

// Handler returns the HTTP handler serving chat, health, and metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if s.cfg.HealthPath != "" {
		mux.HandleFunc(s.cfg.HealthPath, s.handleHealth)
	}
	if s.cfg.MetricsPath != "" {
		mux.Handle(s.cfg.MetricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	base := s.cfg.Path
	for len(base) > 1 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	mux.HandleFunc(base, s.handleChat)
	mux.HandleFunc(base+"/", s.handleChat)

	return mux
}

// ActiveSessions returns the number of open sessions.
func (s *Server) ActiveSessions() int {
	return int(s.active.Load())
}

// Start listens on cfg.Addr in the background. It returns an error if the
// listener fails immediately.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.mu.Lock()
		s.server = nil
		s.mu.Unlock()
		return err
	case <-ctx.Done():
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(stopCtx)
	case <-time.After(100 * time.Millisecond):
		s.logger.Info("chat server listening", "addr", s.cfg.Addr, "path", s.cfg.Path)
		return nil
	}
}

// Stop stops accepting connections and closes every open session.
func (s *Server) Stop(ctx context.Context) error {
	s.stopping.Store(true)

	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	if srv != nil {
		g.Go(func() error { return srv.Shutdown(gctx) })
	}
	s.sessions.Range(func(_, v any) bool {
		sess := v.(*Session)
		g.Go(func() error {
			sess.Close()
			return nil
		})
		return true
	})
	err := g.Wait()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}

	s.logger.Info("chat server stopped")
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "OK")
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	room := RoomID(r, s.cfg.Path)
	if room == "" {
		s.metrics.upgradeRejected()
		s.logger.Warn("missing roomId", "uri", r.RequestURI)
		writeText(w, http.StatusBadRequest, "Missing roomId")
		return
	}
	if s.stopping.Load() {
		s.metrics.upgradeRejected()
		writeText(w, http.StatusServiceUnavailable, "Shutting down")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.metrics.upgradeRejected()
		s.logger.Debug("upgrade failed", "error", err, "room_id", room)
		return
	}

	sess := newSession(conn, room, s.cfg, s.metrics, s.logger)
	s.sessions.Store(sess.ID(), sess)
	s.active.Add(1)
	s.metrics.sessionOpened()
	s.wg.Add(1)

	sess.logger.Debug("session opened", "remote_addr", r.RemoteAddr)

	go func() {
		defer s.wg.Done()
		defer func() {
			s.sessions.Delete(sess.ID())
			s.active.Add(-1)
			s.metrics.sessionClosed()
			sess.logger.Debug("session closed", "joined", sess.responder.Joined())
		}()
		sess.Serve()
	}()
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
	w.WriteHeader(status)
	w.Write([]byte(body))
}
