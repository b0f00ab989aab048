package marketdata

import (
	"context"
	"testing"
	"time"

	md "github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCryptoClient struct {
	gotSymbol string
	gotReq    md.GetCryptoBarsRequest
	bars      []md.CryptoBar
	err       error
}

func (f *fakeCryptoClient) GetCryptoBars(symbol string, req md.GetCryptoBarsRequest) ([]md.CryptoBar, error) {
	f.gotSymbol = symbol
	f.gotReq = req
	return f.bars, f.err
}

func TestAlpacaSource_FetchBars(t *testing.T) {
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	fake := &fakeCryptoClient{bars: []md.CryptoBar{
		{Timestamp: ts, Open: 100.5, High: 101, Low: 99.5, Close: 100.25, Volume: 12.5},
	}}
	src := &AlpacaSource{client: fake, logger: zap.NewNop()}

	bars, err := src.FetchBars(context.Background(), "BTCUSD", ts, ts.Add(time.Hour), "1h")
	require.NoError(t, err)
	require.Len(t, bars, 1)

	assert.Equal(t, "BTC/USD", fake.gotSymbol, "compact pairs normalize before hitting the API")
	assert.Equal(t, ts, fake.gotReq.Start)

	b := bars[0]
	assert.Equal(t, "BTC/USD", b.Symbol)
	assert.Equal(t, "1h", b.Period)
	assert.True(t, b.Open.Equal(decimal.NewFromFloat(100.5)))
	assert.True(t, b.Close.Equal(decimal.NewFromFloat(100.25)))
	assert.Equal(t, ts, b.Timestamp)
}

func TestAlpacaSource_RejectsUnknownTimeframe(t *testing.T) {
	src := &AlpacaSource{client: &fakeCryptoClient{}, logger: zap.NewNop()}
	_, err := src.FetchBars(context.Background(), "BTC/USD", time.Now().Add(-time.Hour), time.Now(), "3h")
	require.Error(t, err)
}

func TestAlpacaSource_HonorsCancelledContext(t *testing.T) {
	fake := &fakeCryptoClient{}
	src := &AlpacaSource{client: fake, logger: zap.NewNop()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := src.FetchBars(ctx, "BTC/USD", time.Now().Add(-time.Hour), time.Now(), "1h")
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fake.gotSymbol)
}

func TestNormalizeSymbol(t *testing.T) {
	cases := map[string]string{
		"BTCUSD":   "BTC/USD",
		"btcusdt":  "BTC/USDT",
		"BTC-USD":  "BTC/USD",
		"eth_usd":  "ETH/USD",
		"BTC/USD":  "BTC/USD",
		"SOLUSDT":  "SOL/USDT",
		"SPY":      "SPY",
		" ethusd ": "ETH/USD",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeSymbol(in), in)
	}
}

func TestCompactSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSD", CompactSymbol("BTC/USD"))
	assert.Equal(t, "BTCUSDT", CompactSymbol("btc-usdt"))
	assert.Equal(t, "ETHUSD", CompactSymbol("eth_usd"))
}
