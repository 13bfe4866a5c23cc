package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema creates the journal table.
const Schema = `
CREATE TABLE IF NOT EXISTS row_events (
	id          BIGSERIAL PRIMARY KEY,
	table_name  TEXT        NOT NULL,
	op          TEXT        NOT NULL,
	row_key     TEXT        NOT NULL,
	payload     JSONB       NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS row_events_table_observed_idx ON row_events (table_name, observed_at);
`

const insertEvent = `
	INSERT INTO row_events (table_name, op, row_key, payload, observed_at)
	VALUES ($1, $2, $3, $4, $5)
`

// DB is the subset of *pgxpool.Pool the writer needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// EnsureSchema creates row_events if it does not exist.
func EnsureSchema(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create row_events: %w", err)
	}
	return nil
}

// Writer batches recorded events into row_events.
type Writer struct {
	cfg    Config
	logger *slog.Logger
	db     DB
	queue  *queue[Event]

	// Batching
	batch   []Event
	batchMu sync.Mutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metricsMu sync.Mutex
	metrics   Metrics
}

// NewWriter creates a writer. Zero config fields take their defaults.
func NewWriter(cfg Config, db DB, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaults.FlushInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaults.BufferSize
	}

	initial := cfg.BatchSize
	if initial > cfg.BufferSize {
		initial = cfg.BufferSize
	}

	return &Writer{
		cfg:    cfg,
		logger: logger.With("component", "journal"),
		db:     db,
		queue:  newQueue[Event](initial, cfg.BufferSize),
		batch:  make([]Event, 0, cfg.BatchSize),
	}
}

// Record queues ev without blocking. Returns false if it was dropped.
func (w *Writer) Record(ev Event) bool {
	if ev.ObservedAt.IsZero() {
		ev.ObservedAt = time.Now()
	}
	ok := w.queue.Push(ev)

	w.metricsMu.Lock()
	if ok {
		w.metrics.Recorded++
	} else {
		w.metrics.Dropped++
	}
	w.metricsMu.Unlock()
	return ok
}

// Start begins writing queued events.
func (w *Writer) Start(ctx context.Context) error {
	if w.cancel != nil {
		return ErrAlreadyStarted
	}
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.run()

	w.logger.Info("journal writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
		"buffer_size", w.cfg.BufferSize,
	)
	return nil
}

// Stop stops the background loop and flushes what is left using ctx.
func (w *Writer) Stop(ctx context.Context) error {
	if w.cancel == nil {
		return ErrNotStarted
	}
	w.logger.Info("stopping journal writer")

	w.queue.Close()
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("journal writer stop timed out")
		return ctx.Err()
	}

	// Final flush
	for {
		events := w.queue.Drain(w.cfg.BatchSize)
		if len(events) == 0 {
			break
		}
		w.batchMu.Lock()
		w.batch = append(w.batch, events...)
		w.batchMu.Unlock()
		w.flush(ctx)
	}
	w.flush(ctx)

	w.logger.Info("journal writer stopped")
	return nil
}

// Stats returns current metrics.
func (w *Writer) Stats() Metrics {
	w.metricsMu.Lock()
	defer w.metricsMu.Unlock()
	return w.metrics
}

func (w *Writer) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.queue.Ready():
			w.collect()
		case <-ticker.C:
			w.flush(w.ctx)
		}
	}
}

// collect moves queued events into the batch, flushing each full batch.
func (w *Writer) collect() {
	for {
		w.batchMu.Lock()
		room := w.cfg.BatchSize - len(w.batch)
		w.batchMu.Unlock()

		events := w.queue.Drain(room)
		if len(events) == 0 {
			return
		}

		w.batchMu.Lock()
		w.batch = append(w.batch, events...)
		full := len(w.batch) >= w.cfg.BatchSize
		w.batchMu.Unlock()

		if !full {
			return
		}
		w.flush(w.ctx)
	}
}

func (w *Writer) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]Event, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()
	err := w.batchInsert(ctx, batch)

	w.metricsMu.Lock()
	if err != nil {
		w.metrics.Errors++
	} else {
		w.metrics.Inserted += int64(len(batch))
		w.metrics.Flushes++
	}
	w.metricsMu.Unlock()

	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		return
	}
	w.logger.Debug("flushed row events", "count", len(batch), "duration", time.Since(start))
}

func (w *Writer) batchInsert(ctx context.Context, events []Event) error {
	batch := &pgx.Batch{}
	for _, ev := range events {
		payload, err := json.Marshal(ev.Payload)
		if err != nil {
			w.logger.Warn("skipping unencodable row", "table", ev.Table, "row_key", ev.RowKey, "error", err)
			continue
		}
		batch.Queue(insertEvent, ev.Table, string(ev.Op), ev.RowKey, string(payload), ev.ObservedAt)
	}
	if batch.Len() == 0 {
		return nil
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert row event: %w", err)
		}
	}
	return nil
}
