package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/rickgao/simplechat/internal/audit"
	"github.com/rickgao/simplechat/internal/connection"
)

type fakeSource struct {
	listening bool
	port      int
	clients   int
	sends     connection.SendStats
}

func (f fakeSource) IsListening() bool { return f.listening }
func (f fakeSource) Port() int { return f.port }
func (f fakeSource) NumberOfClients() int { return f.clients }
func (f fakeSource) SendStats() connection.SendStats { return f.sends }

type fakeAuditor struct {
	err   error
	stats audit.WriterStats
}

func (a fakeAuditor) Ping(ctx context.Context) error { return a.err }
func (a fakeAuditor) Stats() audit.WriterStats { return a.stats }

func get(t *testing.T, h http.Handler) (*httptest.ResponseRecorder, Status) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body Status
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return rec, body
}

func TestHandler(t *testing.T) {
	src := fakeSource{
		listening: true,
		port:      5555,
		clients:   3,
		sends:     connection.SendStats{Queued: 4, BlockedSends: 2},
	}
	rec, body := get(t, NewHandler(src, nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status code = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if body.Status != "ok" || !body.Listening || body.Port != 5555 || body.Clients != 3 {
		t.Errorf("body = %+v", body)
	}
	if body.Queued != 4 || body.BlockedSends != 2 {
		t.Errorf("Queued = %d, BlockedSends = %d, want 4, 2", body.Queued, body.BlockedSends)
	}
	if body.Audit != nil {
		t.Errorf("Audit = %+v, want nil when auditing is off", body.Audit)
	}
}

func TestHandler_Audit(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantCode     int
		wantStatus   string
		wantDatabase string
	}{
		{"connected", nil, http.StatusOK, "ok", "connected"},
		{"disconnected", errors.New("connection refused"), http.StatusServiceUnavailable, "degraded", "disconnected: connection refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auditor := fakeAuditor{
				err:   tt.err,
				stats: audit.WriterStats{Recorded: 10, Dropped: 2, Inserts: 8, Errors: 1},
			}
			rec, body := get(t, NewHandler(fakeSource{port: 5555}, auditor))

			if rec.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", rec.Code, tt.wantCode)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", body.Status, tt.wantStatus)
			}
			if body.Audit == nil {
				t.Fatal("Audit missing from response")
			}
			if body.Audit.Database != tt.wantDatabase {
				t.Errorf("Audit.Database = %q, want %q", body.Audit.Database, tt.wantDatabase)
			}
			if body.Audit.Dropped != 2 || body.Audit.Errors != 1 || body.Audit.Inserts != 8 || body.Audit.Recorded != 10 {
				t.Errorf("Audit = %+v", body.Audit)
			}
		})
	}
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	h := NewHandler(fakeSource{}, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status code = %d, want 405", rec.Code)
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, "127.0.0.1", 0, NewHandler(fakeSource{}, nil), nil) }()

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Serve returned %v, want nil", err)
	}
}

func TestServe_BindsConfiguredHost(t *testing.T) {
	free, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := free.Addr().(*net.TCPAddr).Port
	free.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, "127.0.0.1", port, NewHandler(fakeSource{port: 5555}, nil), nil) }()

	url := "http://" + net.JoinHostPort("127.0.0.1", strconv.Itoa(port)) + "/health"
	var resp *http.Response
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("GET %s failed: %v", url, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status code = %d, want 200", resp.StatusCode)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Serve returned %v, want nil", err)
	}
}
