package engine

import (
	"context"
	"fmt"
	"time"

	"gridtrader/internal/infrastructure"
	"gridtrader/internal/model"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BarSource supplies historical bars sorted ascending by timestamp,
// covering [from, to). Retrying a failed upstream call is the source's
// business; the runner only ever sees a fully-succeeded fetch or an
// error.
type BarSource interface {
	FetchBars(ctx context.Context, symbol string, from, to time.Time, timeframe string) ([]model.KLine, error)
}

const (
	defaultChunk       = 30 * 24 * time.Hour
	defaultStopLossPct = 0.15
)

// Runner drives a whole backtest: it splits the date range into
// bounded windows so the upstream data source is never asked for
// unbounded history, replays every window through one stateful
// simulator, and aggregates the result. Windows run strictly in
// sequence — each one starts from the balances and armed state the
// previous one left behind.
type Runner struct {
	bars        BarSource
	chunk       time.Duration
	stopLossPct decimal.Decimal
	logger      *zap.Logger
}

func NewRunner(bars BarSource, chunk time.Duration, stopLossPct decimal.Decimal, logger *zap.Logger) *Runner {
	if chunk <= 0 {
		chunk = defaultChunk
	}
	if stopLossPct.IsZero() {
		stopLossPct = decimal.NewFromFloat(defaultStopLossPct)
	}
	return &Runner{bars: bars, chunk: chunk, stopLossPct: stopLossPct, logger: logger}
}

// Run executes one backtest. The returned report is either complete
// and internally consistent or nil with an error; there are no partial
// results. Cancellation is honored at chunk boundaries only, so a
// half-processed bar is never exposed.
func (r *Runner) Run(ctx context.Context, cfg model.GridConfig, initialCapital, initialHolding decimal.Decimal) (*model.BacktestReport, error) {
	started := time.Now()

	if !cfg.EndTime.After(cfg.StartTime) {
		return nil, &ConfigError{Field: "end_time", Reason: "must be after start_time"}
	}
	if _, err := model.TimeframeDuration(cfg.Timeframe); err != nil {
		return nil, &ConfigError{Field: "timeframe", Reason: err.Error()}
	}

	center := cfg.CenterPrice
	if center.IsZero() {
		var err error
		center, err = r.referencePrice(ctx, cfg.Symbol, cfg.StartTime)
		if err != nil {
			return nil, fmt.Errorf("resolve reference price: %w", err)
		}
	}

	// The ladder is built once; level prices stay fixed for the whole
	// run no matter how the history is paginated.
	ladder, err := BuildLadder(center, cfg.Levels, cfg.RangePct, cfg.OrderSize)
	if err != nil {
		return nil, err
	}
	r.logger.Info("ladder built",
		zap.String("symbol", cfg.Symbol),
		zap.Int("levels", len(ladder)),
		zap.String("center", center.String()))

	source := NewGridSource(ladder)
	sim := NewSimulator(source, initialCapital, initialHolding, r.stopLossPct, r.logger)

	windows := splitWindows(cfg.StartTime, cfg.EndTime, r.chunk)
	var trades []model.GridTrade
	lastPrice := decimal.Zero

	for i, w := range windows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bars, err := r.bars.FetchBars(ctx, cfg.Symbol, w.start, w.end, cfg.Timeframe)
		if err != nil {
			return nil, fmt.Errorf("fetch bars for chunk %d/%d: %w", i+1, len(windows), err)
		}
		if err := validateBars(cfg.Symbol, w.start, w.end, bars); err != nil {
			return nil, err
		}

		chunkTrades := sim.Run(bars)
		trades = append(trades, chunkTrades...)
		lastPrice = bars[len(bars)-1].Close

		r.logger.Info("chunk complete",
			zap.Int("chunk", i+1),
			zap.Int("chunks", len(windows)),
			zap.Int("bars", len(bars)),
			zap.Int("trades", len(chunkTrades)),
			zap.String("capital", sim.Capital().String()))
	}

	// The run is over: close whatever is still open at the final price.
	trades = append(trades, sim.Liquidate()...)

	report := Aggregate(trades, initialCapital, sim.Capital(), sim.AssetHolding(), lastPrice, cfg.StartTime, cfg.EndTime)

	infrastructure.BacktestRuns.WithLabelValues(cfg.Symbol).Inc()
	infrastructure.BacktestDuration.Observe(time.Since(started).Seconds())
	return &report, nil
}

// referencePrice resolves the ladder center from market data: the bar
// close nearest to the run start, looked up in a one-day window around
// it.
func (r *Runner) referencePrice(ctx context.Context, symbol string, at time.Time) (decimal.Decimal, error) {
	bars, err := r.bars.FetchBars(ctx, symbol, at.Add(-24*time.Hour), at.Add(24*time.Hour), "1h")
	if err != nil {
		return decimal.Zero, err
	}
	if len(bars) == 0 {
		return decimal.Zero, &DataGapError{
			Symbol: symbol,
			From:   at.Add(-24 * time.Hour),
			To:     at.Add(24 * time.Hour),
			Reason: "no bars around reference time",
		}
	}
	closest := bars[0]
	best := absDuration(closest.Timestamp.Sub(at))
	for _, b := range bars[1:] {
		if d := absDuration(b.Timestamp.Sub(at)); d < best {
			closest, best = b, d
		}
	}
	return closest.Close, nil
}

type window struct {
	start, end time.Time
}

// splitWindows cuts [start, end) into contiguous windows of at most
// chunk, the last one truncated to end.
func splitWindows(start, end time.Time, chunk time.Duration) []window {
	var out []window
	for cur := start; cur.Before(end); {
		next := cur.Add(chunk)
		if next.After(end) {
			next = end
		}
		out = append(out, window{start: cur, end: next})
		cur = next
	}
	return out
}

func validateBars(symbol string, from, to time.Time, bars []model.KLine) error {
	if len(bars) == 0 {
		return &DataGapError{Symbol: symbol, From: from, To: to, Reason: "no bars returned"}
	}
	for i := 1; i < len(bars); i++ {
		if bars[i].Timestamp.Before(bars[i-1].Timestamp) {
			return &DataGapError{Symbol: symbol, From: from, To: to,
				Reason: fmt.Sprintf("timestamps go backwards at index %d", i)}
		}
	}
	return nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
