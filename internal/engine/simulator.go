package engine

import (
	"sort"
	"time"

	"gridtrader/internal/infrastructure"
	"gridtrader/internal/model"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Simulator replays bars against a signal source and keeps the books:
// free capital, total asset holding and the open-lot ledger. It is
// stateful on purpose — a chunked run calls Run once per window and
// the balances, lots and source state carry over, so the result is
// identical to one pass over the concatenated bars.
//
// Within a bar the sub-steps run in a fixed order: buys, then sells,
// then stop-loss exits. Later steps consume balances updated by
// earlier ones, so the order is load-bearing.
type Simulator struct {
	source       Source
	ledger       *Ledger
	capital      decimal.Decimal
	assetHolding decimal.Decimal
	stopLossPct  decimal.Decimal
	logger       *zap.Logger

	lastBar model.KLine
	ran     bool
}

func NewSimulator(source Source, initialCapital, initialHolding, stopLossPct decimal.Decimal, logger *zap.Logger) *Simulator {
	return &Simulator{
		source:       source,
		ledger:       NewLedger(),
		capital:      initialCapital,
		assetHolding: initialHolding,
		stopLossPct:  stopLossPct,
		logger:       logger,
	}
}

func (s *Simulator) Capital() decimal.Decimal      { return s.capital }
func (s *Simulator) AssetHolding() decimal.Decimal { return s.assetHolding }

// OpenAssets sums the assets across all open lots; it must equal
// AssetHolding whenever the initial holding entered through fills.
func (s *Simulator) OpenAssets() decimal.Decimal { return s.ledger.TotalAssets() }

// Run simulates one chunk of bars in order and returns the trades it
// produced. Open lots survive the call.
func (s *Simulator) Run(bars []model.KLine) []model.GridTrade {
	var trades []model.GridTrade
	for _, bar := range bars {
		trades = append(trades, s.step(bar)...)
		s.lastBar = bar
		s.ran = true
	}
	infrastructure.BarsProcessed.Add(float64(len(bars)))
	return trades
}

func (s *Simulator) step(bar model.KLine) []model.GridTrade {
	var out []model.GridTrade
	intents := s.source.Intents(bar)

	// Buy pass. A level whose capital check fails stays armed and may
	// fill a later bar; there are no partial fills.
	for _, in := range intents {
		if in.Side != model.Buy || bar.Low.GreaterThan(in.Price) {
			continue
		}
		if s.capital.LessThan(in.Size) {
			continue
		}
		assets := in.Size.Div(in.Price)
		s.capital = s.capital.Sub(in.Size)
		s.assetHolding = s.assetHolding.Add(assets)
		s.ledger.Push(in.Level, Lot{Assets: assets, BuyPrice: in.Price})
		s.source.Filled(in.Level)
		infrastructure.OrderFills.WithLabelValues(string(model.Buy)).Inc()

		entry := in.Price
		out = append(out, model.GridTrade{
			GridLevel:  in.Level,
			Price:      in.Price,
			EntryPrice: &entry,
			Size:       in.Size,
			Direction:  model.Buy,
			Timestamp:  bar.Timestamp,
			PnL:        decimal.Zero,
			Equity:     s.markToMarket(bar.Close),
		})
	}

	// Sell pass: each crossed sell level closes exactly one lot, the
	// oldest lot of the lowest holding level beneath it.
	for _, in := range intents {
		if in.Side != model.Sell || bar.High.LessThan(in.Price) {
			continue
		}
		buyLevel, ok := s.ledger.LowestBelow(in.Level)
		if !ok {
			continue
		}
		lot := s.ledger.LotsAt(buyLevel)[0]
		if s.assetHolding.LessThan(lot.Assets) {
			s.logger.Warn("asset holding below lot size, skipping close",
				zap.Int("buy_level", buyLevel),
				zap.String("holding", s.assetHolding.String()),
				zap.String("lot", lot.Assets.String()))
			continue
		}
		s.ledger.PopOldest(buyLevel)
		recordLevel := in.Level
		if recordLevel == strategySellLevel {
			recordLevel = buyLevel
		}
		out = append(out, s.closeLot(recordLevel, lot, in.Price, bar.Timestamp, bar.Close))
		s.source.Released(buyLevel)
	}

	out = append(out, s.stopLossPass(bar)...)
	return out
}

// stopLossPass force-closes every lot whose drawdown against the bar
// close reaches the threshold. Exits execute in descending (level,
// queue index) order so removals never shift an index still pending.
func (s *Simulator) stopLossPass(bar model.KLine) []model.GridTrade {
	if !s.stopLossPct.IsPositive() {
		return nil
	}

	type mark struct{ level, idx int }
	var marked []mark
	for _, level := range s.ledger.Levels() {
		for idx, lot := range s.ledger.LotsAt(level) {
			lossPct := lot.BuyPrice.Sub(bar.Close).Div(lot.BuyPrice)
			if lossPct.GreaterThanOrEqual(s.stopLossPct) && s.assetHolding.GreaterThanOrEqual(lot.Assets) {
				marked = append(marked, mark{level: level, idx: idx})
			}
		}
	}
	sort.Slice(marked, func(i, j int) bool {
		if marked[i].level != marked[j].level {
			return marked[i].level > marked[j].level
		}
		return marked[i].idx > marked[j].idx
	})

	var out []model.GridTrade
	for _, m := range marked {
		queue := s.ledger.LotsAt(m.level)
		if m.idx >= len(queue) {
			continue
		}
		lot := queue[m.idx]
		if s.assetHolding.LessThan(lot.Assets) {
			continue
		}
		s.ledger.PopAt(m.level, m.idx)
		out = append(out, s.closeLot(m.level, lot, bar.Close, bar.Timestamp, bar.Close))
		s.source.Released(m.level)
	}
	return out
}

// Liquidate force-closes every remaining lot at the last seen close.
// It runs once after the final chunk; levels are not re-armed because
// the run is over.
func (s *Simulator) Liquidate() []model.GridTrade {
	if !s.ran || s.ledger.Empty() {
		return nil
	}
	finalPrice := s.lastBar.Close

	var out []model.GridTrade
	for _, level := range s.ledger.Levels() {
		queue := append([]Lot(nil), s.ledger.LotsAt(level)...)
		removed := 0
		for idx, lot := range queue {
			if s.assetHolding.LessThan(lot.Assets) {
				s.logger.Warn("asset holding below lot size, skipping liquidation",
					zap.Int("buy_level", level),
					zap.String("holding", s.assetHolding.String()),
					zap.String("lot", lot.Assets.String()))
				continue
			}
			s.ledger.PopAt(level, idx-removed)
			removed++
			out = append(out, s.closeLot(level, lot, finalPrice, s.lastBar.Timestamp, finalPrice))
		}
	}
	return out
}

// closeLot applies the balance updates of a sell and builds its ledger
// row. Equity marks against markPrice using the post-update balances.
func (s *Simulator) closeLot(recordLevel int, lot Lot, exitPrice decimal.Decimal, ts time.Time, markPrice decimal.Decimal) model.GridTrade {
	received := lot.Assets.Mul(exitPrice)
	pnl := exitPrice.Sub(lot.BuyPrice).Mul(lot.Assets)
	s.capital = s.capital.Add(received)
	s.assetHolding = s.assetHolding.Sub(lot.Assets)
	infrastructure.OrderFills.WithLabelValues(string(model.Sell)).Inc()

	result := ""
	if pnl.IsPositive() {
		result = model.ResultWin
	} else if pnl.IsNegative() {
		result = model.ResultLoss
	}

	entry := lot.BuyPrice
	exit := exitPrice
	return model.GridTrade{
		GridLevel:  recordLevel,
		Price:      exitPrice,
		EntryPrice: &entry,
		ExitPrice:  &exit,
		Size:       received,
		Direction:  model.Sell,
		Timestamp:  ts,
		PnL:        pnl,
		Equity:     s.markToMarket(markPrice),
		Result:     result,
	}
}

func (s *Simulator) markToMarket(price decimal.Decimal) decimal.Decimal {
	return s.capital.Add(s.assetHolding.Mul(price))
}
