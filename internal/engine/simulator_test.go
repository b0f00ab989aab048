package engine

import (
	"testing"
	"time"

	"gridtrader/internal/model"
	"gridtrader/internal/strategy"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func bar(ts time.Time, open, high, low, close float64) model.KLine {
	return model.KLine{
		Symbol:    "BTC/USD",
		Period:    "1m",
		Open:      decimal.NewFromFloat(open),
		High:      decimal.NewFromFloat(high),
		Low:       decimal.NewFromFloat(low),
		Close:     decimal.NewFromFloat(close),
		Volume:    decimal.NewFromInt(1),
		Timestamp: ts,
	}
}

func gridLevel(level int, price float64, side model.Side, size float64) model.GridLevel {
	return model.GridLevel{
		Level:     level,
		Price:     decimal.NewFromFloat(price),
		Side:      side,
		OrderSize: decimal.NewFromFloat(size),
	}
}

func newGridSim(ladder []model.GridLevel, capital float64) (*Simulator, *GridSource) {
	source := NewGridSource(ladder)
	sim := NewSimulator(source,
		decimal.NewFromFloat(capital), decimal.Zero,
		decimal.NewFromFloat(0.15), zap.NewNop())
	return sim, source
}

func TestSimulator_GridRoundTrip(t *testing.T) {
	ladder := []model.GridLevel{
		gridLevel(0, 90, model.Buy, 100),
		gridLevel(1, 95, model.Buy, 100),
		gridLevel(2, 105, model.Sell, 100),
	}
	sim, source := newGridSim(ladder, 1000)

	trades := sim.Run([]model.KLine{bar(t0, 98, 100, 94, 100)})
	assert.Len(t, trades, 1)

	buy := trades[0]
	assert.Equal(t, model.Buy, buy.Direction)
	assert.Equal(t, 1, buy.GridLevel)
	assert.True(t, buy.PnL.IsZero())
	assert.Equal(t, "", buy.Result)
	assert.Nil(t, buy.ExitPrice)

	assets := decimal.NewFromInt(100).Div(decimal.NewFromInt(95))
	assert.True(t, sim.Capital().Equal(decimal.NewFromInt(900)))
	assert.True(t, sim.AssetHolding().Equal(assets))
	assert.False(t, source.Armed(1))

	trades = sim.Run([]model.KLine{bar(t0.Add(time.Minute), 101, 106, 100, 105)})
	assert.Len(t, trades, 1)

	sell := trades[0]
	assert.Equal(t, model.Sell, sell.Direction)
	assert.Equal(t, 2, sell.GridLevel)
	assert.True(t, sell.EntryPrice.Equal(decimal.NewFromInt(95)))
	assert.True(t, sell.ExitPrice.Equal(decimal.NewFromInt(105)))
	assert.True(t, sell.PnL.Equal(decimal.NewFromInt(10).Mul(assets)))
	assert.Equal(t, model.ResultWin, sell.Result)

	wantCapital := decimal.NewFromInt(900).Add(decimal.NewFromInt(105).Mul(assets))
	assert.True(t, sim.Capital().Equal(wantCapital))
	assert.True(t, sim.AssetHolding().IsZero())
	assert.True(t, source.Armed(1), "buy level must re-arm after its lot is sold")
}

func TestSimulator_OneFillPerLevelPerBar(t *testing.T) {
	ladder := []model.GridLevel{
		gridLevel(0, 95, model.Buy, 100),
		gridLevel(1, 105, model.Sell, 100),
	}
	sim, source := newGridSim(ladder, 10000)

	// Price sweeps the whole grid in one bar; the level still fills once.
	trades := sim.Run([]model.KLine{bar(t0, 100, 104, 90, 100)})
	buys := 0
	for _, tr := range trades {
		if tr.Direction == model.Buy {
			buys++
		}
	}
	assert.Equal(t, 1, buys)
	assert.False(t, source.Armed(0))

	// Still disarmed on the next bar: no second fill without a sell.
	trades = sim.Run([]model.KLine{bar(t0.Add(time.Minute), 100, 101, 90, 100)})
	assert.Empty(t, trades)
}

func TestSimulator_InsufficientCapitalSkipsFill(t *testing.T) {
	ladder := []model.GridLevel{
		gridLevel(0, 90, model.Buy, 100),
		gridLevel(1, 95, model.Buy, 100),
		gridLevel(2, 105, model.Sell, 100),
	}
	sim, source := newGridSim(ladder, 150)

	trades := sim.Run([]model.KLine{bar(t0, 96, 97, 85, 96)})
	assert.Len(t, trades, 1)
	assert.Equal(t, 0, trades[0].GridLevel, "ascending pass fills the lowest level first")
	assert.True(t, sim.Capital().Equal(decimal.NewFromInt(50)))

	// The skipped level stays armed and may fill once capital frees up.
	assert.False(t, source.Armed(0))
	assert.True(t, source.Armed(1))
}

func TestSimulator_StopLossForcesExit(t *testing.T) {
	ladder := []model.GridLevel{
		gridLevel(0, 100, model.Buy, 100),
		gridLevel(1, 120, model.Sell, 100),
	}
	sim, source := newGridSim(ladder, 1000)

	sim.Run([]model.KLine{bar(t0, 105, 106, 100, 105)})
	assert.True(t, sim.AssetHolding().Equal(decimal.NewFromInt(1)))

	// Close drops exactly 15% below the buy price: forced exit at the
	// close even though no sell level was crossed.
	trades := sim.Run([]model.KLine{bar(t0.Add(time.Minute), 90, 92, 84, 85)})
	assert.Len(t, trades, 1)

	exit := trades[0]
	assert.Equal(t, model.Sell, exit.Direction)
	assert.Equal(t, 0, exit.GridLevel)
	assert.True(t, exit.ExitPrice.Equal(decimal.NewFromInt(85)))
	assert.True(t, exit.PnL.Equal(decimal.NewFromInt(-15)))
	assert.Equal(t, model.ResultLoss, exit.Result)

	assert.True(t, sim.AssetHolding().IsZero())
	assert.True(t, sim.Capital().Equal(decimal.NewFromInt(985)))
	assert.True(t, source.Armed(0), "stop-loss must re-arm the source level")
}

func TestSimulator_StopLossDisabledWhenZero(t *testing.T) {
	ladder := []model.GridLevel{
		gridLevel(0, 100, model.Buy, 100),
		gridLevel(1, 200, model.Sell, 100),
	}
	source := NewGridSource(ladder)
	sim := NewSimulator(source, decimal.NewFromInt(1000), decimal.Zero, decimal.Zero, zap.NewNop())

	sim.Run([]model.KLine{bar(t0, 100, 101, 99, 100)})
	trades := sim.Run([]model.KLine{bar(t0.Add(time.Minute), 50, 51, 49, 50)})
	assert.Empty(t, trades, "no forced exits with the stop-loss disabled")
	assert.True(t, sim.AssetHolding().Equal(decimal.NewFromInt(1)))
}

func TestSimulator_LiquidateClosesEverything(t *testing.T) {
	ladder := []model.GridLevel{
		gridLevel(0, 90, model.Buy, 100),
		gridLevel(1, 105, model.Sell, 100),
	}
	sim, source := newGridSim(ladder, 1000)

	sim.Run([]model.KLine{bar(t0, 91, 93, 89, 92)})
	assets := decimal.NewFromInt(100).Div(decimal.NewFromInt(90))
	assert.True(t, sim.AssetHolding().Equal(assets))

	trades := sim.Liquidate()
	assert.Len(t, trades, 1)
	assert.True(t, trades[0].ExitPrice.Equal(decimal.NewFromInt(92)))
	assert.True(t, trades[0].PnL.Equal(decimal.NewFromInt(2).Mul(assets)))
	assert.Equal(t, model.ResultWin, trades[0].Result)

	assert.True(t, sim.AssetHolding().IsZero())
	assert.True(t, sim.OpenAssets().IsZero())
	// The run is over: liquidation never re-arms.
	assert.False(t, source.Armed(0))

	assert.Empty(t, sim.Liquidate(), "second liquidation is a no-op")
}

func TestSimulator_HoldingMatchesLedgerThroughout(t *testing.T) {
	ladder := []model.GridLevel{
		gridLevel(0, 88, model.Buy, 100),
		gridLevel(1, 94, model.Buy, 100),
		gridLevel(2, 102, model.Sell, 100),
		gridLevel(3, 108, model.Sell, 100),
	}
	sim, _ := newGridSim(ladder, 1000)

	path := []model.KLine{
		bar(t0, 100, 101, 93, 95),
		bar(t0.Add(1*time.Minute), 95, 103, 87, 92),
		bar(t0.Add(2*time.Minute), 92, 109, 91, 104),
		bar(t0.Add(3*time.Minute), 104, 105, 74, 75),
		bar(t0.Add(4*time.Minute), 75, 95, 74, 90),
	}
	for _, b := range path {
		sim.Run([]model.KLine{b})
		assert.True(t, sim.AssetHolding().Equal(sim.OpenAssets()),
			"holding must equal the lot sum after every bar")
	}
	sim.Liquidate()
	assert.True(t, sim.AssetHolding().Equal(sim.OpenAssets()))
}

func TestSimulator_StrategySourceFIFO(t *testing.T) {
	strat := strategy.NewScripted(
		strategy.ActionBuy, strategy.ActionBuy,
		strategy.ActionSell, strategy.ActionSell,
	)
	source := NewStrategySource(strat, decimal.NewFromInt(100))
	sim := NewSimulator(source, decimal.NewFromInt(1000), decimal.Zero, decimal.Zero, zap.NewNop())

	bars := []model.KLine{
		bar(t0, 100, 101, 99, 100),
		bar(t0.Add(1*time.Minute), 96, 97, 94, 95),
		bar(t0.Add(2*time.Minute), 104, 106, 103, 105),
		bar(t0.Add(3*time.Minute), 109, 111, 108, 110),
	}
	trades := sim.Run(bars)
	assert.Len(t, trades, 4)

	// The first sell closes the oldest lot (bought at 100), the second
	// the one bought at 95.
	assert.True(t, trades[2].EntryPrice.Equal(decimal.NewFromInt(100)))
	assert.True(t, trades[2].ExitPrice.Equal(decimal.NewFromInt(105)))
	assert.True(t, trades[3].EntryPrice.Equal(decimal.NewFromInt(95)))
	assert.True(t, trades[3].ExitPrice.Equal(decimal.NewFromInt(110)))
	assert.True(t, sim.AssetHolding().IsZero())
}
