package strategy

import (
	"gridtrader/internal/model"
)

type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Strategy is an already-resolved signal producer: for each bar it
// answers buy, sell or hold. Indicator math lives upstream; the
// simulation engine only consumes the decisions.
type Strategy interface {
	Name() string
	OnCandle(candle model.KLine) Action
}
