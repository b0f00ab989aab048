package connector

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestBinanceConnector_ConvertToModel(t *testing.T) {
	logger := zap.NewNop()
	c := NewBinanceConnector(logger, "btcusdt")

	event := BinanceKlineEvent{Symbol: "BTCUSDT"}
	event.Kline.Symbol = "BTCUSDT"
	event.Kline.Interval = "1m"
	event.Kline.StartTime = 1640123400000
	event.Kline.Open = "50000.00"
	event.Kline.High = "50100.5"
	event.Kline.Low = "49950.25"
	event.Kline.Close = "50050.00"
	event.Kline.Volume = "12.5"
	event.Kline.Closed = true

	kline := c.convertToModel(event)

	assert.Equal(t, "BTC/USDT", kline.Symbol)
	assert.Equal(t, "binance", kline.Exchange)
	assert.Equal(t, "1m", kline.Period)
	assert.True(t, kline.Open.Equal(decimal.NewFromFloat(50000.00)))
	assert.True(t, kline.High.Equal(decimal.NewFromFloat(50100.5)))
	assert.True(t, kline.Low.Equal(decimal.NewFromFloat(49950.25)))
	assert.True(t, kline.Close.Equal(decimal.NewFromFloat(50050.00)))
	assert.True(t, kline.Volume.Equal(decimal.NewFromFloat(12.5)))
	assert.Equal(t, time.Unix(0, 1640123400000*int64(time.Millisecond)), kline.Timestamp)
}
