package engine

import (
	"context"
	"time"

	"gridtrader/internal/model"
	"gridtrader/internal/processor"

	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
)

// DataLoader serves historical bars out of the market_klines table.
// The window is half-open [from, to), so adjacent chunk fetches never
// hand the simulator the same bar twice.
type DataLoader struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewDataLoader(pool *pgxpool.Pool, logger *zap.Logger) *DataLoader {
	return &DataLoader{pool: pool, logger: logger}
}

func (l *DataLoader) FetchBars(ctx context.Context, symbol string, from, to time.Time, timeframe string) ([]model.KLine, error) {
	bars, err := l.load(ctx, symbol, from, to, timeframe)
	if err != nil {
		return nil, err
	}
	if len(bars) > 0 || timeframe == "1m" {
		return bars, nil
	}

	// The requested timeframe is not materialized; build it from the
	// 1m base series.
	base, err := l.load(ctx, symbol, from, to, "1m")
	if err != nil {
		return nil, err
	}
	if len(base) == 0 {
		return nil, nil
	}
	l.logger.Debug("resampling from base bars",
		zap.String("symbol", symbol),
		zap.String("timeframe", timeframe),
		zap.Int("base_bars", len(base)))
	return processor.Resample(base, timeframe)
}

func (l *DataLoader) load(ctx context.Context, symbol string, from, to time.Time, period string) ([]model.KLine, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT time, symbol, exchange, period, open, high, low, close, volume
		FROM market_klines
		WHERE symbol = $1 AND period = $2 AND time >= $3 AND time < $4
		ORDER BY time ASC`,
		symbol, period, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []model.KLine
	for rows.Next() {
		var k model.KLine
		if err := rows.Scan(&k.Timestamp, &k.Symbol, &k.Exchange, &k.Period, &k.Open, &k.High, &k.Low, &k.Close, &k.Volume); err != nil {
			return nil, err
		}
		bars = append(bars, k)
	}
	return bars, rows.Err()
}
