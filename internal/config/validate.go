package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *ServerConfig) Validate() error {
	if err := validPort("server.port", c.Server.Port); err != nil {
		return err
	}
	if err := validPort("server.websocket_port", c.Server.WebSocketPort); err != nil {
		return err
	}
	if c.Server.WebSocketPort != 0 && c.Server.WebSocketPort == c.Server.Port {
		return fmt.Errorf("server.websocket_port (%d) must differ from server.port", c.Server.WebSocketPort)
	}
	if c.Server.WebSocketPort != 0 && !strings.HasPrefix(c.Server.WebSocketPath, "/") {
		return fmt.Errorf("server.websocket_path must start with /, got %q", c.Server.WebSocketPath)
	}
	if c.Server.SendQueueSize < 1 {
		return errors.New("server.send_queue_size must be >= 1")
	}
	if c.Server.WriteTimeout <= 0 {
		return errors.New("server.write_timeout must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("server.shutdown_timeout must be positive")
	}
	if c.Server.MaxLineBytes < 1 {
		return errors.New("server.max_line_bytes must be >= 1")
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}

	if err := validPort("health.port", c.Health.Port); err != nil {
		return err
	}

	if c.Audit.Enabled {
		if c.Audit.BatchSize < 1 {
			return errors.New("audit.batch_size must be >= 1")
		}
		if c.Audit.BufferSize < 1 {
			return errors.New("audit.buffer_size must be >= 1")
		}
		if c.Audit.FlushInterval <= 0 {
			return errors.New("audit.flush_interval must be positive")
		}
		if err := c.Audit.Database.validate("audit.database"); err != nil {
			return err
		}
	}

	return nil
}

// ParseLevel maps a log.level value to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log.level %q is not one of debug, info, warn, error", level)
}

func validPort(field string, port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("%s must be between 0 and 65535, got %d", field, port)
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
