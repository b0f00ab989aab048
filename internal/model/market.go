package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Trade is a single live exchange execution, the raw input of the
// kline aggregation pipeline.
type Trade struct {
	ID        string          `json:"id" db:"trade_id"`
	Symbol    string          `json:"symbol" db:"symbol"`
	Exchange  string          `json:"exchange" db:"exchange"`
	Price     decimal.Decimal `json:"price" db:"price"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Side      string          `json:"side" db:"side"` // "buy" or "sell"
	Timestamp time.Time       `json:"ts" db:"time"`
}

// KLine is one OHLC bar. Prices are decimals end to end so the
// simulation bookkeeping stays exact.
type KLine struct {
	Symbol    string          `json:"symbol" db:"symbol"`
	Exchange  string          `json:"exchange" db:"exchange"`
	Period    string          `json:"period" db:"period"` // "1m", "5m", "15m", "1h", "1d"
	Open      decimal.Decimal `json:"o" db:"open"`
	High      decimal.Decimal `json:"h" db:"high"`
	Low       decimal.Decimal `json:"l" db:"low"`
	Close     decimal.Decimal `json:"c" db:"close"`
	Volume    decimal.Decimal `json:"v" db:"volume"`
	Timestamp time.Time       `json:"t" db:"time"`
}

var timeframes = map[string]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"1h":  time.Hour,
	"1d":  24 * time.Hour,
}

// TimeframeDuration maps a timeframe label to its bar width.
func TimeframeDuration(tf string) (time.Duration, error) {
	d, ok := timeframes[tf]
	if !ok {
		return 0, fmt.Errorf("unknown timeframe %q", tf)
	}
	return d, nil
}
