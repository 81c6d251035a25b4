// chatserver is the chat echo/validation server that loadgen benchmarks.
// Usage: go run ./cmd/chatserver [-config configs/chatserver.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rickgao/chatflow/internal/config"
	"github.com/rickgao/chatflow/internal/server"
	"github.com/rickgao/chatflow/internal/version"
	"github.com/rickgao/chatflow/internal/wsconn"
)

func main() {
	configPath := flag.String("config", os.Getenv(config.EnvPath), "path to config file (empty = defaults)")
	flag.Parse()

	cfg, err := config.LoadServerAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := cfg.Log.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting chatserver",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv, err := server.New(serverConfig(cfg), reg, logger)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

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

	if err := srv.Start(ctx); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	logger.Info("chatserver running",
		"chat_url", fmt.Sprintf("ws://localhost:%d%s/{roomId}", cfg.Server.Port, cfg.Server.Path),
		"health_url", fmt.Sprintf("http://localhost:%d%s", cfg.Server.Port, cfg.Server.HealthPath),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...", "active_sessions", srv.ActiveSessions())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", "error", err)
	}

	logger.Info("chatserver stopped")
}

// serverConfig maps the file configuration onto the server.
func serverConfig(cfg *config.ServerConfig) server.Config {
	s := cfg.Server

	outbound := wsconn.DefaultConfig()
	outbound.LowWatermark = s.Watermarks.Low
	outbound.HighWatermark = s.Watermarks.High
	outbound.WriteTimeout = s.WriteTimeout

	return server.Config{
		Addr:        fmt.Sprintf(":%d", s.Port),
		Path:        s.Path,
		HealthPath:  s.HealthPath,
		MetricsPath: cfg.Metrics.Path,
		ReadLimit:   s.ReadLimit,
		InboxSize:   s.InboxSize,
		FlushFrames: s.FlushFrames,
		FlushBytes:  s.FlushBytes,
		Outbound:    outbound,
		RateLimit: server.RateLimitConfig{
			Enabled:           s.RateLimit.Enabled,
			MessagesPerSecond: s.RateLimit.MessagesPerSecond,
			Burst:             s.RateLimit.Burst,
		},
	}
}
