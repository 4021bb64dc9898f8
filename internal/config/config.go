package config

import "time"

// ServerConfig is the root configuration for a chat server instance.
type ServerConfig struct {
	Server ListenConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	Health HealthConfig `yaml:"health"`
	Audit  AuditConfig  `yaml:"audit"`
}

// ListenConfig holds the connection server settings.
type ListenConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	WebSocketPort   int           `yaml:"websocket_port"` // 0 disables the WebSocket listener
	WebSocketPath   string        `yaml:"websocket_path"`
	SendQueueSize   int           `yaml:"send_queue_size"` // Outbound messages buffered per client
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxLineBytes    int           `yaml:"max_line_bytes"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// HealthConfig holds the status endpoint settings.
type HealthConfig struct {
	Host string `yaml:"host"` // Empty means server.host
	Port int    `yaml:"port"` // 0 disables the endpoint
}

// AuditConfig holds the connection lifecycle audit settings.
// Only lifecycle events are recorded, never chat payloads.
type AuditConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
	Database      DBConfig      `yaml:"database"`
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
