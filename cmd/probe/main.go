// probe opens one connection to a chat room, sends JOIN, a few TEXT messages,
// and LEAVE, and prints every response with its round-trip latency.
// Usage: go run ./cmd/probe -url ws://localhost:8080/chat -room 1 -count 5
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rickgao/chatflow/internal/config"
	"github.com/rickgao/chatflow/internal/connection"
	"github.com/rickgao/chatflow/internal/loadgen"
	"github.com/rickgao/chatflow/internal/metrics"
	"github.com/rickgao/chatflow/internal/protocol"
	"github.com/rickgao/chatflow/internal/version"
)

func main() {
	url := flag.String("url", config.DefaultServerURL, "chat endpoint")
	room := flag.String("room", "1", "room id")
	count := flag.Int("count", 5, "TEXT messages to send between JOIN and LEAVE")
	userID := flag.Int("user", 1, "user id (1-100000)")
	timeout := flag.Duration("timeout", 10*time.Second, "time to wait for all responses")
	verbose := flag.Bool("verbose", false, "print full response JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	p := probe{
		url:     *url,
		room:    *room,
		userID:  *userID,
		count:   *count,
		timeout: *timeout,
		verbose: *verbose,
		out:     os.Stdout,
		logger:  logger,
	}
	summary, err := p.run(ctx)
	if err != nil {
		logger.Error("probe failed", "error", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "responses=%d success=%d error=%d\n", summary.responses, summary.successes, summary.errors)
	if summary.responses < summary.expected {
		os.Exit(1)
	}
}

type probe struct {
	url     string
	room    string
	userID  int
	count   int
	timeout time.Duration
	verbose bool
	out     io.Writer
	logger  *slog.Logger
}

type probeSummary struct {
	expected  int
	responses int
	successes int
	errors    int
}

// printer prints correlated samples and counts them down.
type printer struct {
	out     io.Writer
	latch   *metrics.Latch
	mu      sync.Mutex
	summary probeSummary
}

func (p *printer) RecordResponse(s metrics.Sample) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.summary.responses++
	if s.StatusCode == protocol.StatusCodeOK {
		p.summary.successes++
	} else {
		p.summary.errors++
	}
	fmt.Fprintf(p.out, "[%d] type=%s room=%s latency_ms=%d\n", s.StatusCode, s.Type, s.RoomID, s.LatencyMs)
	p.latch.CountDown()
}

func (p *printer) RecordFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, "[---] undecodable response")
	p.latch.CountDown()
}

func (p *printer) snapshot() probeSummary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.summary
}

func (p *probe) run(ctx context.Context) (probeSummary, error) {
	expected := p.count + 2
	latch := metrics.NewLatch(int64(expected))
	rec := &printer{out: p.out, latch: latch, summary: probeSummary{expected: expected}}
	correlator := loadgen.NewCorrelator(rec, p.logger)

	// Responses arrive on the client's read goroutine, one at a time.
	handler := func(c *connection.Client, data []byte, receivedAt time.Time) {
		if p.verbose {
			fmt.Fprintf(p.out, "%s\n", data)
		}
		correlator.Handle(c, data, receivedAt)
	}

	cfg := connection.DefaultClientConfig()
	cfg.URL = p.url
	cfg.RoomID = p.room
	cfg.UserAgent = version.UserAgent("probe")

	client := connection.NewClient(cfg, handler, p.logger)
	if err := client.Connect(ctx); err != nil {
		return rec.snapshot(), fmt.Errorf("connect %s: %w", connection.RoomURL(p.url, p.room), err)
	}
	defer client.Close()

	for _, tmpl := range p.templates() {
		now := time.Now()
		data, err := protocol.EncodeMessage(tmpl.Message(now))
		if err != nil {
			return rec.snapshot(), err
		}
		if _, err := client.Write(data); err != nil {
			return rec.snapshot(), fmt.Errorf("write: %w", err)
		}
		client.RecordSend(now)
		if err := client.Flush(); err != nil {
			return rec.snapshot(), fmt.Errorf("flush: %w", err)
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := latch.Wait(waitCtx); err != nil {
		p.logger.Warn("stopped waiting for responses", "outstanding", latch.Count(), "error", err)
	}
	return rec.snapshot(), nil
}

func (p *probe) templates() []protocol.MessageTemplate {
	base := protocol.MessageTemplate{
		UserID:   fmt.Sprint(p.userID),
		Username: fmt.Sprintf("user%d", p.userID),
		RoomID:   p.room,
	}

	join := base
	join.Type = protocol.MessageTypeJoin
	join.Body = "joining"

	leave := base
	leave.Type = protocol.MessageTypeLeave
	leave.Body = "leaving"

	tmpls := []protocol.MessageTemplate{join}
	for i := 1; i <= p.count; i++ {
		text := base
		text.Type = protocol.MessageTypeText
		text.Body = fmt.Sprintf("probe message %d", i)
		tmpls = append(tmpls, text)
	}
	return append(tmpls, leave)
}
