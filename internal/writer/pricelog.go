package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/barlive/barsync/internal/events"
)

// priceRow is one append-only price_log record.
type priceRow struct {
	RecordedAt    int64 // unix micros
	ItemID        string
	OldPriceCents int64
	NewPriceCents int64
	DayHighCents  int64
	DayLowCents   int64
}

// PriceLogWriter listens for price.changed events and writes them to the
// price_log table in batches.
type PriceLogWriter struct {
	cfg      WriterConfig
	registry *events.Registry
	db       *pgxpool.Pool
	logger   *slog.Logger

	batch   []priceRow
	batchMu sync.Mutex

	flushTicker *time.Ticker
	off         func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics WriterMetrics
}

// NewPriceLogWriter creates a price-history writer. It does not listen
// until Start is called.
func NewPriceLogWriter(cfg WriterConfig, registry *events.Registry, db *pgxpool.Pool, logger *slog.Logger) *PriceLogWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &PriceLogWriter{
		cfg:      cfg,
		registry: registry,
		db:       db,
		logger:   logger,
		batch:    make([]priceRow, 0, cfg.BatchSize),
	}
}

// Start subscribes to price events and begins the flush loop.
func (w *PriceLogWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.off = events.OnPriceChanged(w.registry, w.handleEvent)

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("price log writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop unsubscribes, drains the flush loop, and writes the final batch.
func (w *PriceLogWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping price log writer")

	if w.off != nil {
		w.off()
		w.off = nil
	}
	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("price log writer stopped")
	case <-ctx.Done():
		w.logger.Warn("price log writer stop timed out")
	}

	w.flush(ctx)
	return nil
}

// Stats returns current throughput counters.
func (w *PriceLogWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// handleEvent transforms and batches one price change.
func (w *PriceLogWriter) handleEvent(pc events.PriceChange) {
	row := w.transform(pc)

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

// transform converts a PriceChange event to a priceRow.
func (w *PriceLogWriter) transform(pc events.PriceChange) priceRow {
	return priceRow{
		RecordedAt:    time.Now().UnixMicro(),
		ItemID:        pc.ItemID,
		OldPriceCents: pc.OldPriceCents,
		NewPriceCents: pc.NewPriceCents,
		DayHighCents:  pc.DayHighCents,
		DayLowCents:   pc.DayLowCents,
	}
}

// flushLoop periodically flushes the batch.
func (w *PriceLogWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

// flush writes the current batch to the database.
func (w *PriceLogWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]priceRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	if err := w.batchInsert(ctx, batch); err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch))
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed price log",
		"count", len(batch),
		"duration", time.Since(start),
	)
}

// batchInsert writes rows using pgx.Batch.
func (w *PriceLogWriter) batchInsert(ctx context.Context, rows []priceRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO price_log (recorded_at, item_id, old_price_cents, new_price_cents, day_high_cents, day_low_cents)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, r.RecordedAt, r.ItemID, r.OldPriceCents, r.NewPriceCents, r.DayHighCents, r.DayLowCents)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}

	return nil
}
