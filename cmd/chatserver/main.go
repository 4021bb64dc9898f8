// Command chatserver runs the broadcast chat server with an operator console on stdin.
//
// Usage:
//
//	chatserver [port]
//
// The optional YAML config file is read from $CHATSERVER_CONFIG.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/simplechat/internal/audit"
	"github.com/rickgao/simplechat/internal/config"
	"github.com/rickgao/simplechat/internal/connection"
	"github.com/rickgao/simplechat/internal/console"
	"github.com/rickgao/simplechat/internal/database"
	"github.com/rickgao/simplechat/internal/health"
	"github.com/rickgao/simplechat/internal/router"
	"github.com/rickgao/simplechat/internal/version"
)

// ConfigEnv names the environment variable holding the config file path.
const ConfigEnv = "CHATSERVER_CONFIG"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, in io.Reader, out io.Writer) int {
	configPath := os.Getenv(ConfigEnv)
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatserver: %v\n", err)
		return 1
	}

	level, _ := config.ParseLevel(cfg.Log.Level)
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	port := portFromArgs(args, cfg.Server.Port)
	logger.Info("starting chatserver",
		"version", version.String(),
		"config", configPath,
		"port", port,
	)

	var (
		recorder audit.Recorder = audit.Nop{}
		auditor  health.Auditor
		writer   *audit.Writer
	)
	if cfg.Audit.Enabled {
		db := cfg.Audit.Database
		logger.Info("connecting to audit database", "host", db.Host, "port", db.Port, "database", db.Name)

		pool, err := database.Connect(ctx, db)
		if err != nil {
			logger.Error("failed to connect to audit database", "error", err)
			return 1
		}
		defer pool.Close()

		if err := audit.EnsureSchema(ctx, pool); err != nil {
			logger.Error("failed to prepare audit schema", "error", err)
			return 1
		}

		writer = audit.NewWriter(audit.WriterConfig{
			BatchSize:     cfg.Audit.BatchSize,
			FlushInterval: cfg.Audit.FlushInterval,
			BufferSize:    cfg.Audit.BufferSize,
		}, pool, logger.With("component", "audit"))
		recorder = writer
		auditor = auditHealth{pool: pool, writer: writer}
	}

	server := connection.NewServer(connection.Config{
		Host:            cfg.Server.Host,
		Port:            port,
		WebSocketPort:   cfg.Server.WebSocketPort,
		WebSocketPath:   cfg.Server.WebSocketPath,
		SendQueueSize:   cfg.Server.SendQueueSize,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MaxLineBytes:    cfg.Server.MaxLineBytes,
	}, logger.With("component", "server"))
	server.SetHandler(router.New(server, recorder, logger.With("component", "router")))

	session := console.New(server, out, logger.With("component", "console"))

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancelRun := context.WithCancel(gctx)
	defer cancelRun()

	g.Go(func() error {
		defer cancelRun()
		// Close before cancelling so the audit writer still sees the disconnects.
		defer server.Close()
		return session.Run(runCtx, in)
	})

	if writer != nil {
		writer.Start(runCtx)
		g.Go(func() error {
			<-runCtx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return writer.Stop(stopCtx)
		})
	}

	if cfg.Health.Port > 0 {
		handler := health.NewHandler(server, auditor)
		host := cfg.Health.Host
		if host == "" {
			host = cfg.Server.Host
		}
		g.Go(func() error {
			return health.Serve(runCtx, host, cfg.Health.Port, handler, logger.With("component", "health"))
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("chatserver stopped with error", "error", err)
		return 1
	}

	logger.Info("chatserver stopped")
	return 0
}

// auditHealth reports the audit database and writer to the health endpoint.
type auditHealth struct {
	pool   *pgxpool.Pool
	writer *audit.Writer
}

func (a auditHealth) Ping(ctx context.Context) error { return a.pool.Ping(ctx) }
func (a auditHealth) Stats() audit.WriterStats { return a.writer.Stats() }

// portFromArgs returns the port given as the first argument, or fallback when
// the argument is missing or not a valid port.
func portFromArgs(args []string, fallback int) int {
	if len(args) == 0 {
		return fallback
	}
	port, err := strconv.Atoi(args[0])
	if err != nil || port < 0 || port > 65535 {
		return fallback
	}
	return port
}
