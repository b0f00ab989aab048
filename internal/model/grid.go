package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// GridLevel is one rung of the price ladder. Immutable once built;
// levels below the center price are buys, levels above it sells, and
// the index ordering matches the price ordering.
type GridLevel struct {
	Level     int             `json:"level"`
	Price     decimal.Decimal `json:"price"`
	Side      Side            `json:"side"`
	OrderSize decimal.Decimal `json:"order_size"` // quote currency committed per fill
}

// GridConfig is the full configuration of one backtest run.
//
// CenterPrice is a caller-supplied reference price for the ladder; when
// zero the runner resolves it from market data around StartTime, and the
// ladder is then fixed for the whole run regardless of how the history is
// paginated.
type GridConfig struct {
	Symbol      string          `json:"symbol"`
	Timeframe   string          `json:"timeframe"`
	Levels      int             `json:"levels"`
	RangePct    decimal.Decimal `json:"range_pct"` // percentage from center, e.g. 5 for ±5%
	OrderSize   decimal.Decimal `json:"order_size"`
	CenterPrice decimal.Decimal `json:"center_price,omitempty"`
	StartTime   time.Time       `json:"start_time"`
	EndTime     time.Time       `json:"end_time"`
}

// GridTrade is one row of the run's trade ledger. A buy row opens a
// position (PnL zero, no exit price); a sell row always carries the
// realized PnL of the lot it closed.
type GridTrade struct {
	GridLevel  int              `json:"grid_level"`
	Price      decimal.Decimal  `json:"price"`
	EntryPrice *decimal.Decimal `json:"entry_price"`
	ExitPrice  *decimal.Decimal `json:"exit_price"`
	Size       decimal.Decimal  `json:"size"` // quote currency moved by the fill
	Direction  Side             `json:"direction"`
	Timestamp  time.Time        `json:"timestamp"`
	PnL        decimal.Decimal  `json:"pnl"`
	Equity     decimal.Decimal  `json:"equity"` // mark-to-market after the fill
	Result     string           `json:"result"` // "WIN", "LOSS", or "" while open / flat
}

const (
	ResultWin  = "WIN"
	ResultLoss = "LOSS"
)

// BacktestReport is the aggregate outcome of a completed run.
type BacktestReport struct {
	InitialCapital decimal.Decimal `json:"initial_capital"`
	FinalEquity    decimal.Decimal `json:"final_equity"`
	TotalProfit    decimal.Decimal `json:"total_profit"`
	TotalProfitPct decimal.Decimal `json:"total_profit_pct"`
	TotalTrades    int             `json:"total_trades"`
	WinningTrades  int             `json:"winning_trades"`
	LosingTrades   int             `json:"losing_trades"`
	WinRate        decimal.Decimal `json:"win_rate"`
	AverageWin     decimal.Decimal `json:"average_win"`
	AverageLoss    decimal.Decimal `json:"average_loss"`
	ProfitFactor   decimal.Decimal `json:"profit_factor"`
	StartDate      time.Time       `json:"start_date"`
	EndDate        time.Time       `json:"end_date"`
	Trades         []GridTrade     `json:"trades"`
}
