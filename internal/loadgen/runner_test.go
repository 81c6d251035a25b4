package loadgen

import (
	"context"
	"errors"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/chatflow/internal/connection"
	"github.com/rickgao/chatflow/internal/metrics"
	"github.com/rickgao/chatflow/internal/server"
)

func TestSplitMessages(t *testing.T) {
	tests := []struct {
		total   int
		workers int
		want    []int
	}{
		{10, 2, []int{5, 5}},
		{10, 3, []int{4, 3, 3}},
		{2, 4, []int{1, 1, 0, 0}},
		{0, 4, nil},
		{10, 0, nil},
		{7, 1, []int{7}},
	}

	for _, tt := range tests {
		got := SplitMessages(tt.total, tt.workers)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitMessages(%d, %d) = %v, want %v", tt.total, tt.workers, got, tt.want)
		}
	}
}

func TestAutoThreads(t *testing.T) {
	if got := AutoThreads(); got < 32 {
		t.Errorf("AutoThreads() = %d, want >= 32", got)
	}
}

func testRunConfig(url string, total int) Config {
	cfg := DefaultConfig()
	cfg.TotalMessages = total
	cfg.RoomCount = 4
	cfg.QueueCapacity = 64
	cfg.WarmupThreads = 2
	cfg.WarmupMessagesPerThread = 50
	cfg.MainThreads = 4
	cfg.ResponseWait = 10 * time.Second
	cfg.Seed = 1
	cfg.Client.URL = url
	cfg.Client.HandshakeTimeout = 5 * time.Second
	cfg.Pool.HandshakeTimeout = 5 * time.Second
	cfg.Sender.InitialBackoff = time.Millisecond
	return cfg
}

func TestRunner_EndToEnd(t *testing.T) {
	srv, err := server.New(server.DefaultConfig(), nil, nil)
	if err != nil {
		t.Fatalf("server.New() error = %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	const total = 500
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/chat"

	exporter, err := metrics.NewExporter(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewExporter() error = %v", err)
	}

	runner := NewRunner(testRunConfig(url, total), Options{Exporter: exporter}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	report, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.Failures != 0 {
		t.Errorf("Failures = %d, want 0", report.Failures)
	}
	if got := report.Successes + report.ErrorResponses; got != total {
		t.Errorf("Successes + ErrorResponses = %d, want %d", got, total)
	}
	if report.Successes == 0 {
		t.Error("Successes = 0, want > 0")
	}
	if report.Connections < 1 || report.Connections > 4 {
		t.Errorf("Connections = %d, want 1..4", report.Connections)
	}
	if runner.Latch().Count() != 0 {
		t.Errorf("latch count = %d, want 0", runner.Latch().Count())
	}
	if report.Latency.Count < int(report.Successes) {
		t.Errorf("Latency.Count = %d, want >= %d", report.Latency.Count, report.Successes)
	}

	var typed int64
	for _, share := range report.Types {
		typed += share.Count
	}
	if typed != total {
		t.Errorf("type counts sum = %d, want %d", typed, total)
	}

	st := runner.Status()
	if st.Connections != 0 {
		t.Errorf("Status().Connections after Run = %d, want 0", st.Connections)
	}
	if st.TotalConnections != report.Connections {
		t.Errorf("Status().TotalConnections = %d, want %d", st.TotalConnections, report.Connections)
	}
	if st.ElapsedMs != report.RuntimeMs {
		t.Errorf("Status().ElapsedMs = %d, want %d", st.ElapsedMs, report.RuntimeMs)
	}
}

func TestRunner_UnreachableServer(t *testing.T) {
	const total = 20

	cfg := testRunConfig("ws://127.0.0.1:1/chat", total)
	cfg.WarmupThreads = 1
	cfg.WarmupMessagesPerThread = 5
	cfg.MainThreads = 2
	cfg.Sender.MaxRetries = 2

	dialErr := errors.New("connection refused")
	dialer := connection.DialerFunc(func(ctx context.Context, roomID string) (connection.Conn, error) {
		return nil, dialErr
	})

	runner := NewRunner(cfg, Options{Dialer: dialer}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	report, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.Failures != total {
		t.Errorf("Failures = %d, want %d", report.Failures, total)
	}
	if report.Successes != 0 {
		t.Errorf("Successes = %d, want 0", report.Successes)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Run() took %v, want the latch to release without waiting for responses", elapsed)
	}
}

func TestRunner_Cancelled(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	dialer := connection.DialerFunc(func(ctx context.Context, roomID string) (connection.Conn, error) {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil, ctx.Err()
	})

	runner := NewRunner(testRunConfig("ws://unused/chat", 100), Options{Dialer: dialer}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	done := make(chan error, 1)
	go func() {
		_, err := runner.Run(ctx)
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}
}
