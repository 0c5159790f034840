package writer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rickgao/iqoption-data/internal/model"
	"github.com/rickgao/iqoption-data/internal/queue"
)

const upsertCandleSQL = `
	INSERT INTO candles (active_id, size, from_ts, to_ts, candle_id, open, close, min, max, volume, received_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (active_id, size, from_ts) DO UPDATE SET
		to_ts       = EXCLUDED.to_ts,
		candle_id   = EXCLUDED.candle_id,
		close       = EXCLUDED.close,
		min         = EXCLUDED.min,
		max         = EXCLUDED.max,
		volume      = EXCLUDED.volume,
		received_at = EXCLUDED.received_at
	RETURNING (xmax = 0) AS inserted
`

// candleRow is one row of the candles table.
type candleRow struct {
	ActiveID   int
	Size       int
	FromTS     int64
	ToTS       int64
	CandleID   int64
	Open       decimal.Decimal
	Close      decimal.Decimal
	Min        decimal.Decimal
	Max        decimal.Decimal
	Volume     decimal.Decimal
	ReceivedAt int64
}

// CandleWriter consumes candles from a buffer and upserts them into the
// candles table.
type CandleWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	// Input from the candle sources
	input *queue.GrowableBuffer[model.Candle]

	// Database
	db *pgxpool.Pool

	// Batching
	batch       []candleRow
	index       map[model.CandleKey]int // Position of each key in batch
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics WriterMetrics
}

// NewCandleWriter creates a new CandleWriter.
func NewCandleWriter(
	cfg WriterConfig,
	input *queue.GrowableBuffer[model.Candle],
	db *pgxpool.Pool,
	logger *slog.Logger,
) *CandleWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CandleWriter{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger.With("component", "candle_writer"),
		batch:  make([]candleRow, 0, cfg.BatchSize),
		index:  make(map[model.CandleKey]int, cfg.BatchSize),
	}
}

// Start begins consuming candles and writing to the database.
func (w *CandleWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	// Consumer goroutine
	w.wg.Add(1)
	go w.consumeLoop()

	// Flush ticker goroutine
	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("candle writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer and flushes what is left.
func (w *CandleWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping candle writer")

	if w.cancel != nil {
		w.cancel()
	}

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	// Wait for goroutines
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("candle writer stopped")
	case <-ctx.Done():
		w.logger.Warn("candle writer stop timed out")
	}

	// Candles still buffered are part of the final flush.
	for _, c := range w.input.DrainTo(0) {
		w.add(c)
	}

	// Final flush
	return w.flush(ctx)
}

// Stats returns current metrics.
func (w *CandleWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop reads from the input buffer and accumulates batches.
func (w *CandleWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		c, err := w.input.ReceiveContext(w.ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) {
				w.logger.Info("candle input closed")
			}
			return
		}
		w.handleCandle(c)
	}
}

// flushLoop periodically flushes the batch.
func (w *CandleWriter) flushLoop() {
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

// handleCandle adds a candle to the batch and flushes when it is full.
func (w *CandleWriter) handleCandle(c model.Candle) {
	if w.add(c) {
		w.flush(w.ctx)
	}
}

// add places c in the batch, replacing an earlier row for the same candle.
// Reports whether the batch is full.
func (w *CandleWriter) add(c model.Candle) bool {
	row := w.transform(c)

	w.batchMu.Lock()
	defer w.batchMu.Unlock()

	if i, ok := w.index[c.Key()]; ok {
		w.batch[i] = row
		w.metrics.Coalesced++
	} else {
		w.index[c.Key()] = len(w.batch)
		w.batch = append(w.batch, row)
	}
	return len(w.batch) >= w.cfg.BatchSize
}

// transform converts a Candle to a candleRow.
func (w *CandleWriter) transform(c model.Candle) candleRow {
	receivedAt := c.ReceivedAt
	if receivedAt == 0 {
		receivedAt = time.Now().UnixMicro()
	}
	return candleRow{
		ActiveID:   c.ActiveID,
		Size:       c.Size,
		FromTS:     c.FromTS,
		ToTS:       c.ToTS,
		CandleID:   c.ID,
		Open:       c.Open,
		Close:      c.Close,
		Min:        c.Min,
		Max:        c.Max,
		Volume:     c.Volume,
		ReceivedAt: receivedAt,
	}
}

// flush writes the current batch to the database.
func (w *CandleWriter) flush(ctx context.Context) error {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return nil
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]candleRow, 0, w.cfg.BatchSize)
	w.index = make(map[model.CandleKey]int, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	inserted, err := w.batchUpsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch upsert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return err
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(inserted)
	w.metrics.Updates += int64(len(batch) - inserted)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed candles",
		"count", len(batch),
		"inserted", inserted,
		"duration", time.Since(start),
	)
	return nil
}

// batchUpsert upserts rows using pgx.Batch and returns how many were new.
func (w *CandleWriter) batchUpsert(ctx context.Context, rows []candleRow) (inserted int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(upsertCandleSQL,
			r.ActiveID, r.Size, r.FromTS, r.ToTS, r.CandleID,
			r.Open, r.Close, r.Min, r.Max, r.Volume, r.ReceivedAt,
		)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		var isNew bool
		if err := results.QueryRow().Scan(&isNew); err != nil {
			return 0, err
		}
		if isNew {
			inserted++
		}
	}

	return inserted, nil
}
