package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
server:
  host: 127.0.0.1
  port: 6000
  websocket_port: 6001
  write_timeout: 2s
log:
  level: debug
health:
  port: 8080
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000", cfg.Server.Port)
	}
	if cfg.Server.WebSocketPort != 6001 {
		t.Errorf("Server.WebSocketPort = %d, want 6001", cfg.Server.WebSocketPort)
	}
	if cfg.Server.WriteTimeout != 2*time.Second {
		t.Errorf("Server.WriteTimeout = %v, want 2s", cfg.Server.WriteTimeout)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Health.Port != 8080 {
		t.Errorf("Health.Port = %d, want 8080", cfg.Health.Port)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_AUDIT_PASSWORD", "secret123")

	yaml := `
audit:
  enabled: true
  database:
    host: localhost
    name: chat
    user: chat
    password: ${TEST_AUDIT_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Audit.Database.Password != "secret123" {
		t.Errorf("Audit.Database.Password = %q, want %q", cfg.Audit.Database.Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, "log:\n  level: warn\n")

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Server.Port != DefaultPort {
		t.Errorf("Server.Port = %d, want default %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.Server.SendQueueSize != DefaultSendQueueSize {
		t.Errorf("Server.SendQueueSize = %d, want default %d", cfg.Server.SendQueueSize, DefaultSendQueueSize)
	}
	if cfg.Server.WebSocketPath != DefaultWebSocketPath {
		t.Errorf("Server.WebSocketPath = %q, want default %q", cfg.Server.WebSocketPath, DefaultWebSocketPath)
	}
	if cfg.Audit.Database.Port != DefaultDBPort {
		t.Errorf("Audit.Database.Port = %d, want default %d", cfg.Audit.Database.Port, DefaultDBPort)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"misspelled field", "server:\n  prot: 6000\n"},
		{"unknown section", "metrics:\n  port: 9090\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeTempFile(t, tt.yaml)); err == nil {
				t.Error("expected error for unknown key")
			}
		})
	}
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := LoadWithDefaults(writeTempFile(t, ""))
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}
	if cfg.Server.Port != DefaultPort {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, DefaultPort)
	}
}

func TestLoadHealthHost(t *testing.T) {
	cfg, err := Load(writeTempFile(t, "health:\n  host: 127.0.0.1\n  port: 8080\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Health.Host != "127.0.0.1" {
		t.Errorf("Health.Host = %q, want 127.0.0.1", cfg.Health.Host)
	}
}

func TestLoadAndValidate_EmptyPath(t *testing.T) {
	cfg, err := LoadAndValidate("")
	if err != nil {
		t.Fatalf("LoadAndValidate(\"\") failed: %v", err)
	}
	if cfg.Server.Port != DefaultPort {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.Audit.Enabled {
		t.Error("audit should be disabled by default")
	}
}

func TestValidate(t *testing.T) {
	valid := func() ServerConfig { return *Default() }

	tests := []struct {
		name    string
		mutate  func(c *ServerConfig)
		wantErr string
	}{
		{
			name:    "defaults",
			mutate:  func(c *ServerConfig) {},
			wantErr: "",
		},
		{
			name:    "port out of range",
			mutate:  func(c *ServerConfig) { c.Server.Port = 70000 },
			wantErr: "server.port must be between 0 and 65535, got 70000",
		},
		{
			name: "websocket port equals port",
			mutate: func(c *ServerConfig) {
				c.Server.WebSocketPort = c.Server.Port
			},
			wantErr: "server.websocket_port (5555) must differ from server.port",
		},
		{
			name: "websocket path without slash",
			mutate: func(c *ServerConfig) {
				c.Server.WebSocketPort = 6001
				c.Server.WebSocketPath = "ws"
			},
			wantErr: `server.websocket_path must start with /, got "ws"`,
		},
		{
			name:    "zero queue",
			mutate:  func(c *ServerConfig) { c.Server.SendQueueSize = 0 },
			wantErr: "server.send_queue_size must be >= 1",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *ServerConfig) { c.Log.Level = "loud" },
			wantErr: `log.level "loud" is not one of debug, info, warn, error`,
		},
		{
			name:    "audit missing host",
			mutate:  func(c *ServerConfig) { c.Audit.Enabled = true },
			wantErr: "audit.database.host is required",
		},
		{
			name: "audit min_conns exceeds max_conns",
			mutate: func(c *ServerConfig) {
				c.Audit.Enabled = true
				c.Audit.Database = DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 2, MinConns: 5}
			},
			wantErr: "audit.database.min_conns (5) cannot exceed max_conns (2)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil {
			t.Errorf("ParseLevel(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
