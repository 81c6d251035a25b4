package writer

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/rickgao/chatflow/internal/buffer"
)

// WriterConfig configures the asynchronous CSV writer.
type WriterConfig struct {
	BatchSize  int // records taken from the buffer per write pass
	BufferSize int // initial buffer capacity
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:  1000,
		BufferSize: 10000,
	}
}

// WriterMetrics counts writer activity.
type WriterMetrics struct {
	Records int64
	Flushes int64
	Errors  int64
}

// CSVWriter appends records to a CSV file from a background goroutine.
// Write never blocks, so it is safe to call from network read loops.
type CSVWriter struct {
	cfg    WriterConfig
	logger *slog.Logger
	path   string

	// Input from response handlers
	input *buffer.Growable[[]string]

	file *os.File
	csv  *csv.Writer

	wg       sync.WaitGroup
	stopOnce sync.Once

	mu      sync.Mutex
	metrics WriterMetrics
	err     error
}

// NewCSVWriter creates path (and its directory), writes header, and starts
// the writer goroutine.
func NewCSVWriter(path string, header []string, cfg WriterConfig, logger *slog.Logger) (*CSVWriter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultWriterConfig().BatchSize
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultWriterConfig().BufferSize
	}

	f, err := createFile(path)
	if err != nil {
		return nil, err
	}

	w := &CSVWriter{
		cfg:    cfg,
		logger: logger.With("file", path),
		path:   path,
		input:  buffer.NewGrowable[[]string](cfg.BufferSize),
		file:   f,
		csv:    csv.NewWriter(f),
	}
	if err := w.csv.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}

	w.wg.Add(1)
	go w.consumeLoop()
	return w, nil
}

// Write queues one record. Records written after Stop are dropped.
func (w *CSVWriter) Write(record []string) {
	if !w.input.Push(record) {
		w.mu.Lock()
		w.metrics.Errors++
		w.mu.Unlock()
	}
}

// Stop drains queued records, flushes, and closes the file.
func (w *CSVWriter) Stop(ctx context.Context) error {
	var err error
	w.stopOnce.Do(func() {
		w.input.Close()

		done := make(chan struct{})
		go func() {
			w.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			w.logger.Warn("csv writer stop timed out", "pending", w.input.Len())
			err = ctx.Err()
			return
		}

		if cerr := w.file.Close(); cerr != nil && w.firstErr() == nil {
			w.setErr(cerr)
		}
		err = w.firstErr()

		stats := w.Stats()
		w.logger.Info("csv writer stopped", "records", stats.Records, "errors", stats.Errors)
	})
	return err
}

// Stats returns current metrics.
func (w *CSVWriter) Stats() WriterMetrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.metrics
}

// consumeLoop writes batches from the input buffer and flushes whenever the
// buffer has been drained.
func (w *CSVWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		records, ok := w.input.PopBatch(w.cfg.BatchSize)
		if !ok {
			w.flush()
			return
		}

		written := 0
		for _, r := range records {
			if err := w.csv.Write(r); err != nil {
				w.setErr(err)
				break
			}
			written++
		}

		w.mu.Lock()
		w.metrics.Records += int64(written)
		w.metrics.Errors += int64(len(records) - written)
		w.mu.Unlock()

		if w.input.Len() == 0 {
			w.flush()
		}
	}
}

func (w *CSVWriter) flush() {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		w.setErr(err)
		return
	}
	w.mu.Lock()
	w.metrics.Flushes++
	w.mu.Unlock()
}

func (w *CSVWriter) setErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = err
		w.logger.Error("csv write failed", "error", err)
	}
}

func (w *CSVWriter) firstErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// WriteCSV writes header and records to path, replacing any existing file.
func WriteCSV(path string, header []string, records [][]string) error {
	f, err := createFile(path)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("write header: %w", err)
	}
	if err := cw.WriteAll(records); err != nil {
		f.Close()
		return fmt.Errorf("write records: %w", err)
	}
	return f.Close()
}

func createFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return f, nil
}
