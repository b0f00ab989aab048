package engine

import (
	"gridtrader/internal/model"

	"github.com/shopspring/decimal"
)

var oneHundred = decimal.NewFromInt(100)

// BuildLadder computes the static price ladder for a run: levels
// evenly spaced across [center·(1−range%), center·(1+range%)], the
// lower half buys and the upper half sells. The ladder depends only on
// the configuration, so it is built once per run and reused across
// every chunk.
func BuildLadder(center decimal.Decimal, levels int, rangePct, orderSize decimal.Decimal) ([]model.GridLevel, error) {
	if levels < 1 {
		return nil, &ConfigError{Field: "levels", Reason: "must be at least 1"}
	}
	if !rangePct.IsPositive() {
		return nil, &ConfigError{Field: "range_pct", Reason: "must be positive"}
	}
	if !orderSize.IsPositive() {
		return nil, &ConfigError{Field: "order_size", Reason: "must be positive"}
	}
	if !center.IsPositive() {
		return nil, &ConfigError{Field: "center_price", Reason: "must be positive"}
	}

	frac := rangePct.Div(oneHundred)
	upper := center.Mul(decimal.NewFromInt(1).Add(frac))
	lower := center.Mul(decimal.NewFromInt(1).Sub(frac))

	step := decimal.Zero
	if levels > 1 {
		step = upper.Sub(lower).Div(decimal.NewFromInt(int64(levels - 1)))
	}

	// Levels below the midpoint buy, the rest sell.
	midpoint := levels / 2

	ladder := make([]model.GridLevel, 0, levels)
	for i := 0; i < levels; i++ {
		side := model.Sell
		if i < midpoint {
			side = model.Buy
		}
		ladder = append(ladder, model.GridLevel{
			Level:     i,
			Price:     lower.Add(step.Mul(decimal.NewFromInt(int64(i)))),
			Side:      side,
			OrderSize: orderSize,
		})
	}
	return ladder, nil
}
