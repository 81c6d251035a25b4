package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultServerURL               = "ws://localhost:8080/chat"
	DefaultTotalMessages           = 500000
	DefaultRoomCount               = 20
	DefaultQueueCapacity           = 100000
	DefaultWarmupThreads           = 32
	DefaultWarmupMessagesPerThread = 1000
	DefaultConnectionsPerRoom      = 1
	DefaultHandshakeTimeout        = 20 * time.Second
	DefaultHandshakeMaxConcurrent  = 6
	DefaultHandshakeRetryDelay     = 10 * time.Millisecond
	DefaultResponseWait            = 30 * time.Second
	DefaultBatchSize               = 100
	DefaultBatchMaxBytes           = 64 * 1024
	DefaultFlushInterval           = 2 * time.Millisecond
	DefaultMaxAttempts             = 5
	DefaultInitialBackoff          = 100 * time.Millisecond
	DefaultLowWatermark            = 32 * 1024
	DefaultHighWatermark           = 64 * 1024
	DefaultWriteTimeout            = 10 * time.Second
	DefaultReadLimit               = 64 * 1024

	DefaultOutputDir      = "results"
	DefaultPerMessageFile = "metrics.csv"
	DefaultThroughputFile = "throughput_10s.csv"
	DefaultSummaryFile    = "summary.csv"

	DefaultDBPort    = 5432
	DefaultDBSSLMode = "prefer"
	DefaultMaxConns  = 4
	DefaultMinConns  = 1

	DefaultServerPort     = 8080
	DefaultChatPath       = "/chat"
	DefaultHealthPath     = "/health"
	DefaultInboxSize      = 1024
	DefaultFlushFrames    = 64
	DefaultFlushBytes     = 16 * 1024
	DefaultRateLimitRate  = 1000
	DefaultRateLimitBurst = 2000
	DefaultMetricsPath    = "/metrics"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

func (c *ClientConfig) applyDefaults() {
	l := &c.Client

	if l.ServerURL == "" {
		l.ServerURL = DefaultServerURL
	}
	if l.TotalMessages == 0 {
		l.TotalMessages = DefaultTotalMessages
	}
	if l.RoomCount == 0 {
		l.RoomCount = DefaultRoomCount
	}
	if l.QueueCapacity == 0 {
		l.QueueCapacity = DefaultQueueCapacity
	}

	// Warmup defaults
	if !l.Warmup.Skip {
		if l.Warmup.Threads == 0 {
			l.Warmup.Threads = DefaultWarmupThreads
		}
		if l.Warmup.MessagesPerThread == 0 {
			l.Warmup.MessagesPerThread = DefaultWarmupMessagesPerThread
		}
	}

	// Connection defaults
	if l.ConnectionsPerRoom == 0 {
		l.ConnectionsPerRoom = DefaultConnectionsPerRoom
	}
	if l.Handshake.Timeout == 0 {
		l.Handshake.Timeout = DefaultHandshakeTimeout
	}
	if l.Handshake.MaxConcurrent == 0 {
		l.Handshake.MaxConcurrent = DefaultHandshakeMaxConcurrent
	}
	if l.Handshake.RetryDelay == 0 {
		l.Handshake.RetryDelay = DefaultHandshakeRetryDelay
	}
	if l.ResponseWait == 0 {
		l.ResponseWait = DefaultResponseWait
	}
	applyWatermarkDefaults(&l.Watermarks)
	if l.WriteTimeout == 0 {
		l.WriteTimeout = DefaultWriteTimeout
	}
	if l.ReadLimit == 0 {
		l.ReadLimit = DefaultReadLimit
	}

	// Sender defaults
	if l.Batch.Size == 0 {
		l.Batch.Size = DefaultBatchSize
	}
	if l.Batch.MaxBytes == 0 {
		l.Batch.MaxBytes = DefaultBatchMaxBytes
	}
	if l.Batch.FlushInterval == 0 {
		l.Batch.FlushInterval = DefaultFlushInterval
	}
	if l.Retry.MaxAttempts == 0 {
		l.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if l.Retry.InitialBackoff == 0 {
		l.Retry.InitialBackoff = DefaultInitialBackoff
	}

	// Output defaults
	if c.Output.Dir == "" {
		c.Output.Dir = DefaultOutputDir
	}
	if c.Output.PerMessageFile == "" {
		c.Output.PerMessageFile = DefaultPerMessageFile
	}
	if c.Output.ThroughputFile == "" {
		c.Output.ThroughputFile = DefaultThroughputFile
	}
	if c.Output.SummaryFile == "" {
		c.Output.SummaryFile = DefaultSummaryFile
	}

	// Metrics defaults (port stays 0 = disabled)
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	if c.Results.Enabled {
		applyDBDefaults(&c.Results.Database)
	}
	applyLogDefaults(&c.Log)
}

func (c *ServerConfig) applyDefaults() {
	s := &c.Server

	if s.Port == 0 {
		s.Port = DefaultServerPort
	}
	if s.Path == "" {
		s.Path = DefaultChatPath
	}
	if s.HealthPath == "" {
		s.HealthPath = DefaultHealthPath
	}
	if s.ReadLimit == 0 {
		s.ReadLimit = DefaultReadLimit
	}
	if s.InboxSize == 0 {
		s.InboxSize = DefaultInboxSize
	}
	if s.FlushFrames == 0 {
		s.FlushFrames = DefaultFlushFrames
	}
	if s.FlushBytes == 0 {
		s.FlushBytes = DefaultFlushBytes
	}
	applyWatermarkDefaults(&s.Watermarks)
	if s.WriteTimeout == 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.RateLimit.MessagesPerSecond == 0 {
		s.RateLimit.MessagesPerSecond = DefaultRateLimitRate
	}
	if s.RateLimit.Burst == 0 {
		s.RateLimit.Burst = DefaultRateLimitBurst
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	applyLogDefaults(&c.Log)
}

func applyWatermarkDefaults(w *WatermarkConfig) {
	if w.Low == 0 {
		w.Low = DefaultLowWatermark
	}
	if w.High == 0 {
		w.High = DefaultHighWatermark
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}

func applyLogDefaults(l *LogConfig) {
	if l.Level == "" {
		l.Level = DefaultLogLevel
	}
	if l.Format == "" {
		l.Format = DefaultLogFormat
	}
}
