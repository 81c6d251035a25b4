package config

import (
	"io"
	"log/slog"
	"strings"
	"time"
)

// ClientConfig is the root configuration for the load generator.
type ClientConfig struct {
	Client  LoadConfig    `yaml:"client"`
	Output  OutputConfig  `yaml:"output"`
	Metrics MetricsConfig `yaml:"metrics"`
	Results ResultsConfig `yaml:"results"`
	Log     LogConfig     `yaml:"log"`
}

// LoadConfig holds load run settings.
type LoadConfig struct {
	ServerURL          string          `yaml:"server_url"`
	TotalMessages      int             `yaml:"total_messages"`
	RoomCount          int             `yaml:"room_count"`
	QueueCapacity      int             `yaml:"queue_capacity"`
	Warmup             WarmupConfig    `yaml:"warmup"`
	MainThreads        int             `yaml:"main_threads"` // 0 = max(32, 4*NumCPU)
	ConnectionsPerRoom int             `yaml:"connections_per_room"`
	Handshake          HandshakeConfig `yaml:"handshake"`
	ResponseWait       time.Duration   `yaml:"response_wait"`
	Batch              BatchConfig     `yaml:"batch"`
	TargetQPS          float64         `yaml:"target_qps"` // 0 = unlimited
	Retry              RetryConfig     `yaml:"retry"`
	Watermarks         WatermarkConfig `yaml:"watermarks"`
	WriteTimeout       time.Duration   `yaml:"write_timeout"`
	ReadLimit          int64           `yaml:"read_limit"`
	Seed               uint64          `yaml:"seed"` // 0 = random
}

// WarmupConfig sizes the warmup phase.
type WarmupConfig struct {
	Skip              bool `yaml:"skip"`
	Threads           int  `yaml:"threads"`
	MessagesPerThread int  `yaml:"messages_per_thread"`
}

// HandshakeConfig bounds WebSocket handshakes.
type HandshakeConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// BatchConfig holds sender batching settings.
type BatchConfig struct {
	Size          int           `yaml:"size"`
	MaxBytes      int           `yaml:"max_bytes"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	FlushSync     bool          `yaml:"flush_sync"`
}

// RetryConfig holds per-message retry settings.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
}

// WatermarkConfig holds outbound buffer watermarks in bytes.
type WatermarkConfig struct {
	Low  int `yaml:"low"`
	High int `yaml:"high"`
}

// OutputConfig names the CSV files written after a run.
type OutputConfig struct {
	Dir            string `yaml:"dir"`
	PerMessageFile string `yaml:"per_message_file"` // empty disables per-message records
	ThroughputFile string `yaml:"throughput_file"`
	SummaryFile    string `yaml:"summary_file"`
}

// ResultsConfig enables persisting run summaries to PostgreSQL.
type ResultsConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Database DBConfig `yaml:"database"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// MetricsConfig holds Prometheus metrics settings.
// For the load generator a zero port disables the endpoint.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// SlogLevel returns the configured level, defaulting to info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a logger writing to w in the configured format.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.SlogLevel()}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ServerConfig is the root configuration for the chat server.
type ServerConfig struct {
	Server  ChatServerConfig `yaml:"server"`
	Metrics MetricsConfig    `yaml:"metrics"`
	Log     LogConfig        `yaml:"log"`
}

// ChatServerConfig holds listener and session settings.
type ChatServerConfig struct {
	Port         int             `yaml:"port"`
	Path         string          `yaml:"path"`
	HealthPath   string          `yaml:"health_path"`
	ReadLimit    int64           `yaml:"read_limit"`
	InboxSize    int             `yaml:"inbox_size"`
	FlushFrames  int             `yaml:"flush_frames"` // flush after this many unflushed responses
	FlushBytes   int             `yaml:"flush_bytes"`
	Watermarks   WatermarkConfig `yaml:"watermarks"`
	WriteTimeout time.Duration   `yaml:"write_timeout"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig is a per-session inbound token bucket.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	MessagesPerSecond float64 `yaml:"messages_per_second"`
	Burst             int     `yaml:"burst"`
}
