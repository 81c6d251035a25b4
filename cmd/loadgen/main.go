// loadgen drives a chat server with a configurable WebSocket message load and
// reports throughput and latency.
// Usage: go run ./cmd/loadgen [-config configs/loadgen.yaml] [ws://host:port/chat]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/chatflow/internal/config"
	"github.com/rickgao/chatflow/internal/connection"
	"github.com/rickgao/chatflow/internal/database"
	"github.com/rickgao/chatflow/internal/loadgen"
	"github.com/rickgao/chatflow/internal/metrics"
	"github.com/rickgao/chatflow/internal/version"
	"github.com/rickgao/chatflow/internal/writer"
	"github.com/rickgao/chatflow/internal/wsconn"
)

func main() {
	configPath := flag.String("config", os.Getenv(config.EnvPath), "path to config file (empty = defaults)")
	flag.Parse()

	cfg, err := config.LoadClientWithDefaults(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if flag.NArg() > 0 {
		cfg.Client.ServerURL = flag.Arg(0)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := cfg.Log.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting loadgen",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"server_url", cfg.Client.ServerURL,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("load run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.ClientConfig, logger *slog.Logger) error {
	opts := loadgen.Options{}

	// Per-message records
	var perMessage *writer.CSVWriter
	if cfg.Output.PerMessageFile != "" {
		path := filepath.Join(cfg.Output.Dir, cfg.Output.PerMessageFile)
		w, err := writer.NewCSVWriter(path, metrics.PerMessageHeader, writer.DefaultWriterConfig(), logger)
		if err != nil {
			return fmt.Errorf("open per-message file: %w", err)
		}
		perMessage = w
		opts.PerMessage = w
	}

	// Prometheus mirror
	var reg *prometheus.Registry
	if cfg.Metrics.Port > 0 {
		reg = prometheus.NewRegistry()
		exporter, err := metrics.NewExporter(reg)
		if err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		opts.Exporter = exporter
	}

	runner := loadgen.NewRunner(runConfig(cfg), opts, logger)

	if reg != nil {
		if err := metrics.RegisterOutstanding(reg, runner.Latch()); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:           createMetricsHandler(cfg.Metrics.Path, reg, runner),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := srv.ListenAndServe(); err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	report, runErr := runner.Run(ctx)
	report.Log(logger)

	if perMessage != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := perMessage.Stop(stopCtx); err != nil {
			logger.Error("failed to write per-message file", "error", err)
		}
		stopCancel()
	}
	writeReportFiles(cfg.Output, report, logger)

	if cfg.Results.Enabled {
		storeResults(cfg, report, logger)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	logger.Info("loadgen finished")
	return nil
}

// runConfig maps the file configuration onto the runner.
func runConfig(cfg *config.ClientConfig) loadgen.Config {
	c := cfg.Client

	outbound := wsconn.DefaultConfig()
	outbound.LowWatermark = c.Watermarks.Low
	outbound.HighWatermark = c.Watermarks.High
	outbound.WriteTimeout = c.WriteTimeout

	rc := loadgen.DefaultConfig()
	rc.TotalMessages = c.TotalMessages
	rc.RoomCount = c.RoomCount
	rc.QueueCapacity = c.QueueCapacity
	rc.WarmupThreads = c.Warmup.Threads
	rc.WarmupMessagesPerThread = c.Warmup.MessagesPerThread
	rc.MainThreads = c.MainThreads
	rc.ResponseWait = c.ResponseWait
	rc.TargetQPS = c.TargetQPS
	rc.Seed = c.Seed

	rc.Sender.BatchSize = c.Batch.Size
	rc.Sender.MaxBatchBytes = c.Batch.MaxBytes
	rc.Sender.FlushInterval = c.Batch.FlushInterval
	rc.Sender.FlushSync = c.Batch.FlushSync
	rc.Sender.MaxRetries = c.Retry.MaxAttempts
	rc.Sender.InitialBackoff = c.Retry.InitialBackoff

	rc.Pool = connection.PoolConfig{
		ConnectionsPerRoom:      c.ConnectionsPerRoom,
		MaxConcurrentHandshakes: int64(c.Handshake.MaxConcurrent),
		HandshakeTimeout:        c.Handshake.Timeout,
		RetryDelay:              c.Handshake.RetryDelay,
	}
	rc.Client = connection.ClientConfig{
		URL:              c.ServerURL,
		UserAgent:        version.UserAgent("loadgen"),
		HandshakeTimeout: c.Handshake.Timeout,
		ReadLimit:        c.ReadLimit,
		Outbound:         outbound,
	}
	return rc
}

func writeReportFiles(out config.OutputConfig, report metrics.Report, logger *slog.Logger) {
	files := []struct {
		name    string
		header  []string
		records [][]string
	}{
		{out.SummaryFile, metrics.SummaryHeader, report.SummaryRecords()},
		{out.ThroughputFile, metrics.ThroughputHeader, report.BucketRecords()},
	}

	for _, f := range files {
		if f.name == "" {
			continue
		}
		path := filepath.Join(out.Dir, f.name)
		if err := writer.WriteCSV(path, f.header, f.records); err != nil {
			logger.Error("failed to write report file", "path", path, "error", err)
			continue
		}
		logger.Info("report written", "path", path)
	}
}

// storeResults persists the run. Failures are logged and never fail the run.
func storeResults(cfg *config.ClientConfig, report metrics.Report, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db := cfg.Results.Database
	logger.Info("connecting to results database", "host", db.Host, "port", db.Port, "database", db.Name)

	pool, err := database.Connect(ctx, db)
	if err != nil {
		logger.Error("failed to connect to results database", "error", err)
		return
	}
	defer pool.Close()

	if err := database.EnsureSchema(ctx, pool); err != nil {
		logger.Error("failed to prepare results schema", "error", err)
		return
	}

	run := writer.NewRunInfo(cfg.Client.ServerURL, cfg.Client.TotalMessages, time.UnixMilli(report.StartMs))
	if err := writer.NewResultsWriter(pool, logger).Write(ctx, run, report); err != nil {
		logger.Error("failed to store results", "run_id", run.RunID, "error", err)
	}
}

// createMetricsHandler serves Prometheus metrics and a JSON health view of the run.
func createMetricsHandler(metricsPath string, reg *prometheus.Registry, runner *loadgen.Runner) http.Handler {
	mux := http.NewServeMux()

	mux.Handle(metricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		health := struct {
			Status string         `json:"status"`
			Run    loadgen.Status `json:"run"`
		}{
			Status: "running",
			Run:    runner.Status(),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(health)
	})

	return mux
}
