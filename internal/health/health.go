// Package health serves the /health status endpoint.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rickgao/simplechat/internal/audit"
	"github.com/rickgao/simplechat/internal/connection"
	"github.com/rickgao/simplechat/internal/version"
)

// Source reports the chat server state.
type Source interface {
	IsListening() bool
	Port() int
	NumberOfClients() int
	SendStats() connection.SendStats
}

// Auditor is the audit pipeline as seen by the health check: its database and its writer counters.
type Auditor interface {
	Ping(ctx context.Context) error
	Stats() audit.WriterStats
}

// Status is the /health response body.
type Status struct {
	Status       string       `json:"status"`
	Listening    bool         `json:"listening"`
	Port         int          `json:"port"`
	Clients      int          `json:"clients"`
	Queued       int          `json:"queued"`
	BlockedSends int64        `json:"blocked_sends"`
	Version      version.Info `json:"version"`
	Audit        *AuditStatus `json:"audit,omitempty"`
}

// AuditStatus is present only when auditing is enabled.
type AuditStatus struct {
	Database string `json:"database"`
	Recorded int64  `json:"recorded"`
	Dropped  int64  `json:"dropped"`
	Inserts  int64  `json:"inserts"`
	Errors   int64  `json:"errors"`
}

// NewHandler returns a mux serving GET /health. auditor may be nil.
func NewHandler(src Source, auditor Auditor) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		sends := src.SendStats()
		status := Status{
			Status:       "ok",
			Listening:    src.IsListening(),
			Port:         src.Port(),
			Clients:      src.NumberOfClients(),
			Queued:       sends.Queued,
			BlockedSends: sends.BlockedSends,
			Version:      version.Get(),
		}

		if auditor != nil {
			stats := auditor.Stats()
			status.Audit = &AuditStatus{
				Database: "connected",
				Recorded: stats.Recorded,
				Dropped:  stats.Dropped,
				Inserts:  stats.Inserts,
				Errors:   stats.Errors,
			}

			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := auditor.Ping(ctx); err != nil {
				status.Status = "degraded"
				status.Audit.Database = "disconnected: " + err.Error()
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if status.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(status)
	})

	return mux
}

// Serve runs an HTTP server for h on host:port until ctx is done.
func Serve(ctx context.Context, host string, port int, h http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("health listen: %w", err)
	}

	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting health server", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("health server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("health shutdown: %w", err)
	}
	return nil
}

