package engine

import (
	"math"
	"time"

	"gridtrader/internal/model"

	"github.com/shopspring/decimal"
)

// ProfitFactorUnbounded is reported when there are winning trades and
// no losing ones. JSON cannot carry +Inf, so a large decimal stands in
// for it.
var ProfitFactorUnbounded = decimal.NewFromInt(math.MaxInt64)

// Aggregate reduces a completed trade list plus the final balances
// into the run report. Only closing (sell) trades enter the win/loss
// statistics; buy rows stay in the ledger for audit.
func Aggregate(trades []model.GridTrade, initialCapital, finalCapital, finalHolding, lastPrice decimal.Decimal, start, end time.Time) model.BacktestReport {
	report := model.BacktestReport{
		InitialCapital: initialCapital,
		StartDate:      start,
		EndDate:        end,
		TotalTrades:    len(trades),
		Trades:         trades,
		WinRate:        decimal.Zero,
		AverageWin:     decimal.Zero,
		AverageLoss:    decimal.Zero,
		ProfitFactor:   decimal.Zero,
	}

	report.FinalEquity = finalCapital.Add(finalHolding.Mul(lastPrice))
	report.TotalProfit = report.FinalEquity.Sub(initialCapital)
	if initialCapital.IsPositive() {
		report.TotalProfitPct = report.TotalProfit.Div(initialCapital).Mul(oneHundred)
	}

	closed := 0
	winSum := decimal.Zero
	lossSum := decimal.Zero
	for _, t := range trades {
		if t.Direction != model.Sell {
			continue
		}
		closed++
		switch {
		case t.PnL.IsPositive():
			report.WinningTrades++
			winSum = winSum.Add(t.PnL)
		case t.PnL.IsNegative():
			report.LosingTrades++
			lossSum = lossSum.Add(t.PnL.Abs())
		}
	}
	if closed == 0 {
		return report
	}

	report.WinRate = decimal.NewFromInt(int64(report.WinningTrades)).
		Div(decimal.NewFromInt(int64(closed))).Mul(oneHundred)
	if report.WinningTrades > 0 {
		report.AverageWin = winSum.Div(decimal.NewFromInt(int64(report.WinningTrades)))
	}
	if report.LosingTrades > 0 {
		report.AverageLoss = lossSum.Div(decimal.NewFromInt(int64(report.LosingTrades)))
	}
	switch {
	case lossSum.IsPositive():
		report.ProfitFactor = winSum.Div(lossSum)
	case winSum.IsPositive():
		report.ProfitFactor = ProfitFactorUnbounded
	}
	return report
}
