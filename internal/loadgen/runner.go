package loadgen

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/chatflow/internal/connection"
	"github.com/rickgao/chatflow/internal/generator"
	"github.com/rickgao/chatflow/internal/metrics"
	"github.com/rickgao/chatflow/internal/pacing"
	"github.com/rickgao/chatflow/internal/protocol"
)

// Config configures a load run.
type Config struct {
	TotalMessages           int
	RoomCount               int
	QueueCapacity           int
	WarmupThreads           int
	WarmupMessagesPerThread int
	MainThreads             int           // 0 = AutoThreads()
	ResponseWait            time.Duration // how long to wait for outstanding responses after sending
	TargetQPS               float64       // 0 = unlimited
	Seed                    uint64        // generator seed, 0 = random

	Sender SenderConfig
	Pool   connection.PoolConfig
	Client connection.ClientConfig
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TotalMessages:           500000,
		RoomCount:               20,
		QueueCapacity:           100000,
		WarmupThreads:           32,
		WarmupMessagesPerThread: 1000,
		ResponseWait:            30 * time.Second,
		Sender:                  DefaultSenderConfig(),
		Pool:                    connection.DefaultPoolConfig(),
		Client:                  connection.DefaultClientConfig(),
	}
}

// Options are optional collaborators of a Runner.
type Options struct {
	PerMessage metrics.RecordWriter // per-message CSV sink
	Exporter   *metrics.Exporter    // Prometheus mirror
	Dialer     connection.Dialer    // overrides the WebSocket dialer
}

// Status is a live view of a run.
type Status struct {
	Connections      int   `json:"connections"`
	TotalConnections int64 `json:"total_connections"`
	Pending          int   `json:"pending_handshakes"`
	Outstanding      int64 `json:"outstanding_responses"`
	Successes        int64 `json:"successes"`
	Failures         int64 `json:"failures"`
	ElapsedMs        int64 `json:"elapsed_ms"`
}

// Runner executes one load run: generate, warm up, send, wait, summarize.
type Runner struct {
	cfg    Config
	logger *slog.Logger

	latch     *metrics.Latch
	collector *metrics.Collector
	pool      *connection.Pool
}

// NewRunner wires the collector, correlator, and connection pool for a run.
func NewRunner(cfg Config, opts Options, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}

	latch := metrics.NewLatch(int64(cfg.TotalMessages))
	collector := metrics.NewCollector(metrics.CollectorConfig{
		Capacity:   cfg.TotalMessages,
		Latch:      latch,
		PerMessage: opts.PerMessage,
		Exporter:   opts.Exporter,
	})

	dialer := opts.Dialer
	if dialer == nil {
		correlator := NewCorrelator(collector, logger)
		dialer = connection.NewWSDialer(cfg.Client, correlator.Handle, logger)
	}

	return &Runner{
		cfg:       cfg,
		logger:    logger,
		latch:     latch,
		collector: collector,
		pool:      connection.NewPool(cfg.Pool, dialer, collector, logger),
	}
}

// Latch returns the outstanding-response latch.
func (r *Runner) Latch() *metrics.Latch { return r.latch }

// Status returns a live view of the run.
func (r *Runner) Status() Status {
	ps := r.pool.Stats()
	return Status{
		Connections:      ps.Connections,
		TotalConnections: r.collector.Connections(),
		Pending:          ps.Pending,
		Outstanding:      r.latch.Count(),
		Successes:        r.collector.Successes(),
		Failures:         r.collector.Failures(),
		ElapsedMs:        r.collector.Elapsed().Milliseconds(),
	}
}

// AutoThreads is the default main phase worker count: max(32, 4*NumCPU).
func AutoThreads() int {
	return max(32, 4*runtime.NumCPU())
}

// SplitMessages divides total over workers; the first total%workers workers
// take one extra.
func SplitMessages(total, workers int) []int {
	if workers < 1 || total <= 0 {
		return nil
	}
	counts := make([]int, workers)
	per, extra := total/workers, total%workers
	for i := range counts {
		counts[i] = per
		if i < extra {
			counts[i]++
		}
	}
	return counts
}

// Run executes the run and returns its report. The pool is closed on return.
// A cancelled ctx stops the run early; the partial report is still returned.
func (r *Runner) Run(ctx context.Context) (metrics.Report, error) {
	defer r.pool.CloseAll()

	cfg := r.cfg
	warmupTotal := min(cfg.WarmupThreads*cfg.WarmupMessagesPerThread, cfg.TotalMessages)
	mainTotal := cfg.TotalMessages - warmupTotal
	mainThreads := cfg.MainThreads
	if mainThreads <= 0 {
		mainThreads = AutoThreads()
	}

	r.logger.Info("starting load run",
		"server_url", cfg.Client.URL,
		"total_messages", cfg.TotalMessages,
		"warmup_threads", cfg.WarmupThreads,
		"warmup_messages_per_thread", cfg.WarmupMessagesPerThread,
		"main_threads", mainThreads,
		"connections_per_room", cfg.Pool.ConnectionsPerRoom,
		"batch_size", cfg.Sender.BatchSize,
		"batch_max_bytes", cfg.Sender.MaxBatchBytes,
		"flush_interval", cfg.Sender.FlushInterval,
		"flush_sync", cfg.Sender.FlushSync,
		"target_qps", cfg.TargetQPS,
	)

	queue := make(chan protocol.MessageTemplate, max(cfg.QueueCapacity, 1))
	genCtx, stopGen := context.WithCancel(ctx)
	defer stopGen()

	gen := generator.New(generator.Config{RoomCount: cfg.RoomCount, Seed: cfg.Seed}, r.logger)
	genDone := make(chan error, 1)
	go func() { genDone <- gen.Fill(genCtx, queue, cfg.TotalMessages) }()

	limiter := pacing.NewLimiter(cfg.TargetQPS)

	r.collector.MarkStart()

	err := r.runPhase(ctx, "warmup", SplitMessages(warmupTotal, cfg.WarmupThreads), queue, limiter)
	if err == nil {
		err = r.runPhase(ctx, "main", SplitMessages(mainTotal, mainThreads), queue, limiter)
	}
	if err == nil {
		err = <-genDone
	}
	if err == nil {
		r.awaitResponses(ctx)
	}

	r.collector.MarkEnd()
	return r.collector.Summarize(), err
}

func (r *Runner) runPhase(ctx context.Context, name string, counts []int,
	queue <-chan protocol.MessageTemplate, limiter *pacing.Limiter) error {
	if len(counts) == 0 {
		return nil
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	r.logger.Info("phase starting", "phase", name, "workers", len(counts), "messages", total)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for i, n := range counts {
		sender := NewSender(i, r.cfg.Sender, queue, n, r.pool, limiter, r.collector, r.logger)
		g.Go(func() error { return sender.Run(gctx) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	r.logger.Info("phase completed", "phase", name, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// awaitResponses waits up to ResponseWait for the latch.
func (r *Runner) awaitResponses(ctx context.Context) {
	r.logger.Info("waiting for server responses", "outstanding", r.latch.Count())

	wctx, cancel := context.WithTimeout(ctx, r.cfg.ResponseWait)
	defer cancel()

	if err := r.latch.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			r.logger.Warn("timed out waiting for responses", "outstanding", r.latch.Count())
			return
		}
		r.logger.Warn("stopped waiting for responses", "outstanding", r.latch.Count(), "error", err)
	}
}
