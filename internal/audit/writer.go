package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool used by the writer.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS connection_events (
	event_id    UUID PRIMARY KEY,
	conn_id     UUID NOT NULL,
	kind        TEXT NOT NULL,
	login_id    TEXT,
	remote_addr TEXT NOT NULL,
	error       TEXT,
	occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS connection_events_conn_id_idx ON connection_events (conn_id);
`

const insertSQL = `
	INSERT INTO connection_events (event_id, conn_id, kind, login_id, remote_addr, error, occurred_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (event_id) DO NOTHING
`

// EnsureSchema creates the connection_events table if it does not exist.
func EnsureSchema(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create connection_events: %w", err)
	}
	return nil
}

// WriterConfig controls batching.
type WriterConfig struct {
	BatchSize     int           // Flush when this many events are pending
	FlushInterval time.Duration // Flush at least this often
	BufferSize    int           // Events buffered before Record starts dropping
}

// DefaultWriterConfig returns default batching settings.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     100,
		FlushInterval: time.Second,
		BufferSize:    1024,
	}
}

// WriterStats contains runtime counters.
type WriterStats struct {
	Recorded int64
	Dropped  int64
	Inserts  int64
	Flushes  int64
	Errors   int64
}

// Writer batches events into PostgreSQL.
type Writer struct {
	cfg    WriterConfig
	logger *slog.Logger
	db     DB

	input chan Event

	// Batching
	batch   []Event
	batchMu sync.Mutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Stats
	statsMu sync.Mutex
	stats   WriterStats
}

// NewWriter creates a Writer. Events are accepted before Start and written once it runs.
func NewWriter(cfg WriterConfig, db DB, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultWriterConfig()
	if cfg.BatchSize < 1 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = def.BufferSize
	}
	return &Writer{
		cfg:    cfg,
		logger: logger,
		db:     db,
		input:  make(chan Event, cfg.BufferSize),
		batch:  make([]Event, 0, cfg.BatchSize),
	}
}

// Record queues an event. When the buffer is full the event is dropped and counted.
func (w *Writer) Record(e Event) {
	select {
	case w.input <- e:
		w.count(func(s *WriterStats) { s.Recorded++ })
	default:
		w.count(func(s *WriterStats) { s.Dropped++ })
	}
}

// Start begins consuming events.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.consumeLoop()

	w.logger.Info("audit writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains buffered events and performs a final flush bounded by ctx.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping audit writer")

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("audit writer stop timed out")
		return ctx.Err()
	}

drain:
	for {
		select {
		case e := <-w.input:
			w.add(e)
		default:
			break drain
		}
	}
	w.flush(ctx)

	w.logger.Info("audit writer stopped")
	return nil
}

// Stats returns current counters.
func (w *Writer) Stats() WriterStats {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.stats
}

func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case e := <-w.input:
			if w.add(e) {
				w.flush(w.ctx)
			}
		case <-ticker.C:
			w.flush(w.ctx)
		}
	}
}

// add appends to the batch and reports whether it is full.
func (w *Writer) add(e Event) bool {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.batch = append(w.batch, e)
	return len(w.batch) >= w.cfg.BatchSize
}

func (w *Writer) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	batch := w.batch
	w.batch = make([]Event, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	inserted, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("audit batch insert failed", "error", err, "count", len(batch))
		w.count(func(s *WriterStats) { s.Errors++ })
		return
	}

	w.count(func(s *WriterStats) {
		s.Inserts += int64(inserted)
		s.Flushes++
	})

	w.logger.Debug("flushed audit events",
		"count", len(batch),
		"duration", time.Since(start),
	)
}

func (w *Writer) batchInsert(ctx context.Context, events []Event) (inserted int, err error) {
	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(insertSQL,
			e.ID.String(),
			e.ConnID.String(),
			string(e.Kind),
			nullable(e.LoginID),
			e.RemoteAddr,
			nullable(e.Error),
			e.At,
		)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range events {
		ct, err := results.Exec()
		if err != nil {
			return inserted, err
		}
		inserted += int(ct.RowsAffected())
	}
	return inserted, nil
}

func (w *Writer) count(fn func(s *WriterStats)) {
	w.statsMu.Lock()
	fn(&w.stats)
	w.statsMu.Unlock()
}

// nullable maps an empty string to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
