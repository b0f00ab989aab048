package storage

import (
	"context"
	"sync"
	"time"

	"gridtrader/internal/infrastructure"
	"gridtrader/internal/model"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
)

const (
	defaultBatchSize    = 500
	defaultFlushEvery   = 5 * time.Second
	klineInsertSQL      = `
		INSERT INTO market_klines (time, symbol, exchange, period, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (time, symbol, exchange, period) DO NOTHING`
	klineInsertTableTag = "market_klines"
)

// KlineSaver buffers incoming bars and writes them in batches so a
// busy stream does not turn into one insert per bar.
type KlineSaver struct {
	pool      *pgxpool.Pool
	logger    *zap.Logger
	batchSize int

	mu  sync.Mutex
	buf []model.KLine
}

func NewKlineSaver(pool *pgxpool.Pool, logger *zap.Logger) *KlineSaver {
	return &KlineSaver{
		pool:      pool,
		logger:    logger,
		batchSize: defaultBatchSize,
		buf:       make([]model.KLine, 0, defaultBatchSize),
	}
}

// Add queues one bar. Crossing the batch size flushes inline on the
// caller's goroutine; the ticker in Run covers slow streams.
func (s *KlineSaver) Add(k model.KLine) {
	s.mu.Lock()
	s.buf = append(s.buf, k)
	full := len(s.buf) >= s.batchSize
	s.mu.Unlock()
	if full {
		s.Flush(context.Background())
	}
}

func (s *KlineSaver) Run(ctx context.Context) {
	ticker := time.NewTicker(defaultFlushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final drain so a shutdown does not drop buffered bars.
			s.Flush(context.Background())
			return
		case <-ticker.C:
			s.Flush(ctx)
		}
	}
}

func (s *KlineSaver) Flush(ctx context.Context) {
	s.mu.Lock()
	if len(s.buf) == 0 {
		s.mu.Unlock()
		return
	}
	pending := s.buf
	s.buf = make([]model.KLine, 0, s.batchSize)
	s.mu.Unlock()

	batch := &pgx.Batch{}
	for _, k := range pending {
		batch.Queue(klineInsertSQL,
			k.Timestamp, k.Symbol, k.Exchange, k.Period,
			k.Open, k.High, k.Low, k.Close, k.Volume)
	}

	res := s.pool.SendBatch(ctx, batch)
	defer res.Close()
	for range pending {
		if _, err := res.Exec(); err != nil {
			s.logger.Error("failed to insert kline batch", zap.Error(err))
			return
		}
	}
	infrastructure.DBInsertRate.WithLabelValues(klineInsertTableTag).Add(float64(len(pending)))
	s.logger.Debug("flushed klines", zap.Int("count", len(pending)))
}

// Buffered reports the number of bars waiting for the next flush.
func (s *KlineSaver) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}
