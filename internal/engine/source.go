package engine

import (
	"gridtrader/internal/model"
	"gridtrader/internal/strategy"

	"github.com/shopspring/decimal"
)

// Intent is one order a source wants tested against the current bar.
// A buy intent fills when the bar's low reaches its price, a sell
// intent when the bar's high does.
type Intent struct {
	Level int
	Side  model.Side
	Price decimal.Decimal
	Size  decimal.Decimal // quote currency committed (buys only)
}

// Source supplies the order intents for each bar. The simulator owns
// the balances, lot ledger and stop-loss rules; the source owns which
// orders exist — a static ladder with grid cycling, or per-bar
// decisions from an already-resolved signal strategy. The same
// bookkeeping machinery therefore serves every strategy flavor.
type Source interface {
	Name() string
	// Intents returns the orders active for this bar, ascending by level.
	Intents(bar model.KLine) []Intent
	// Filled reports that a buy intent at level executed.
	Filled(level int)
	// Released reports that a lot bought at level was closed mid-run.
	Released(level int)
}

type orderState int

const (
	orderArmed orderState = iota
	orderFilled
)

// GridSource serves the static ladder. Each buy level carries an
// armed/filled state: it disarms on fill and re-arms only when a lot
// bought at that level is later sold, so a level fills at most once
// per bar no matter how often price oscillates across it.
type GridSource struct {
	ladder []model.GridLevel
	state  map[int]orderState
}

func NewGridSource(ladder []model.GridLevel) *GridSource {
	state := make(map[int]orderState)
	for _, lvl := range ladder {
		if lvl.Side == model.Buy {
			state[lvl.Level] = orderArmed
		}
	}
	return &GridSource{ladder: ladder, state: state}
}

func (g *GridSource) Name() string { return "grid" }

func (g *GridSource) Intents(model.KLine) []Intent {
	intents := make([]Intent, 0, len(g.ladder))
	for _, lvl := range g.ladder {
		if lvl.Side == model.Buy && g.state[lvl.Level] != orderArmed {
			continue
		}
		intents = append(intents, Intent{
			Level: lvl.Level,
			Side:  lvl.Side,
			Price: lvl.Price,
			Size:  lvl.OrderSize,
		})
	}
	return intents
}

func (g *GridSource) Filled(level int) {
	if _, ok := g.state[level]; ok {
		g.state[level] = orderFilled
	}
}

func (g *GridSource) Released(level int) {
	if _, ok := g.state[level]; ok {
		g.state[level] = orderArmed
	}
}

// Armed reports whether a buy level can fill on the next bar.
func (g *GridSource) Armed(level int) bool {
	return g.state[level] == orderArmed
}

// strategySellLevel sits above any ladder index so a decision-driven
// sell matches the lowest open lot regardless of its level.
const strategySellLevel = 1 << 30

// StrategySource adapts a per-bar buy/sell/hold decision to the
// simulator. Decisions execute at the bar close, which the bar range
// always contains, so they behave like market orders.
type StrategySource struct {
	strat     strategy.Strategy
	orderSize decimal.Decimal
}

func NewStrategySource(strat strategy.Strategy, orderSize decimal.Decimal) *StrategySource {
	return &StrategySource{strat: strat, orderSize: orderSize}
}

func (s *StrategySource) Name() string { return s.strat.Name() }

func (s *StrategySource) Intents(bar model.KLine) []Intent {
	switch s.strat.OnCandle(bar) {
	case strategy.ActionBuy:
		return []Intent{{Level: 0, Side: model.Buy, Price: bar.Close, Size: s.orderSize}}
	case strategy.ActionSell:
		return []Intent{{Level: strategySellLevel, Side: model.Sell, Price: bar.Close}}
	}
	return nil
}

func (s *StrategySource) Filled(int) {}

func (s *StrategySource) Released(int) {}
