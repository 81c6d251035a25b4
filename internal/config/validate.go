package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *ClientConfig) Validate() error {
	l := &c.Client

	u, err := url.Parse(l.ServerURL)
	if err != nil {
		return fmt.Errorf("client.server_url is invalid: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("client.server_url must use ws or wss, got %q", u.Scheme)
	}

	if l.TotalMessages < 1 {
		return errors.New("client.total_messages must be >= 1")
	}
	if l.RoomCount < 1 {
		return errors.New("client.room_count must be >= 1")
	}
	if l.QueueCapacity < 1 {
		return errors.New("client.queue_capacity must be >= 1")
	}
	if l.Warmup.Threads < 0 || l.Warmup.MessagesPerThread < 0 {
		return errors.New("client.warmup values must be >= 0")
	}
	if l.MainThreads < 0 {
		return errors.New("client.main_threads must be >= 0")
	}
	if l.ConnectionsPerRoom < 1 {
		return errors.New("client.connections_per_room must be >= 1")
	}
	if l.Handshake.Timeout <= 0 {
		return errors.New("client.handshake.timeout must be > 0")
	}
	if l.Handshake.MaxConcurrent < 1 {
		return errors.New("client.handshake.max_concurrent must be >= 1")
	}
	if l.Batch.Size < 1 {
		return errors.New("client.batch.size must be >= 1")
	}
	if l.Batch.MaxBytes < 1 {
		return errors.New("client.batch.max_bytes must be >= 1")
	}
	if l.TargetQPS < 0 {
		return errors.New("client.target_qps must be >= 0")
	}
	if l.Retry.MaxAttempts < 1 {
		return errors.New("client.retry.max_attempts must be >= 1")
	}
	if err := l.Watermarks.validate("client.watermarks"); err != nil {
		return err
	}

	if c.Output.Dir == "" {
		return errors.New("output.dir is required")
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 0 and 65535, got %d", c.Metrics.Port)
	}
	if c.Results.Enabled {
		if err := c.Results.Database.validate("results.database"); err != nil {
			return err
		}
	}
	return c.Log.validate()
}

// Validate checks that all required fields are set and values are valid.
func (c *ServerConfig) Validate() error {
	s := &c.Server

	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", s.Port)
	}
	if !strings.HasPrefix(s.Path, "/") || strings.Trim(s.Path, "/") == "" {
		return fmt.Errorf("server.path must be an absolute path below /, got %q", s.Path)
	}
	if !strings.HasPrefix(s.HealthPath, "/") {
		return fmt.Errorf("server.health_path must start with /, got %q", s.HealthPath)
	}
	if s.ReadLimit < 1 {
		return errors.New("server.read_limit must be >= 1")
	}
	if s.InboxSize < 1 {
		return errors.New("server.inbox_size must be >= 1")
	}
	if s.FlushFrames < 1 || s.FlushBytes < 1 {
		return errors.New("server.flush_frames and server.flush_bytes must be >= 1")
	}
	if err := s.Watermarks.validate("server.watermarks"); err != nil {
		return err
	}
	if s.RateLimit.Enabled && (s.RateLimit.MessagesPerSecond <= 0 || s.RateLimit.Burst < 1) {
		return errors.New("server.rate_limit requires messages_per_second > 0 and burst >= 1")
	}
	if c.Metrics.Path != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}
	return c.Log.validate()
}

func (w *WatermarkConfig) validate(prefix string) error {
	if w.Low < 1 || w.High < 1 {
		return fmt.Errorf("%s values must be >= 1", prefix)
	}
	if w.Low > w.High {
		return fmt.Errorf("%s.low (%d) cannot exceed high (%d)", prefix, w.Low, w.High)
	}
	return nil
}

func (l *LogConfig) validate() error {
	switch strings.ToLower(l.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", l.Format)
	}
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn, or error, got %q", l.Level)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
