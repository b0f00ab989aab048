package marketdata

import (
	"context"
	"fmt"
	"time"

	"gridtrader/internal/model"

	md "github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// cryptoBarsClient is the slice of the Alpaca client the source needs.
type cryptoBarsClient interface {
	GetCryptoBars(symbol string, req md.GetCryptoBarsRequest) ([]md.CryptoBar, error)
}

// AlpacaSource fetches historical crypto bars from the Alpaca data
// API. It satisfies the engine's bar source contract: bars come back
// ascending by timestamp, already converted to decimal prices.
type AlpacaSource struct {
	client cryptoBarsClient
	logger *zap.Logger
}

func NewAlpacaSource(apiKey, apiSecret, baseURL string, logger *zap.Logger) *AlpacaSource {
	client := md.NewClient(md.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})
	return &AlpacaSource{client: client, logger: logger}
}

func (s *AlpacaSource) FetchBars(ctx context.Context, symbol string, from, to time.Time, timeframe string) ([]model.KLine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tf, err := alpacaTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	symbol = NormalizeSymbol(symbol)

	raw, err := s.client.GetCryptoBars(symbol, md.GetCryptoBarsRequest{
		TimeFrame: tf,
		Start:     from,
		End:       to,
	})
	if err != nil {
		return nil, fmt.Errorf("alpaca crypto bars %s: %w", symbol, err)
	}
	s.logger.Debug("fetched bars",
		zap.String("symbol", symbol),
		zap.String("timeframe", timeframe),
		zap.Int("count", len(raw)))

	bars := make([]model.KLine, 0, len(raw))
	for _, b := range raw {
		bars = append(bars, model.KLine{
			Symbol:    symbol,
			Period:    timeframe,
			Open:      decimal.NewFromFloat(b.Open),
			High:      decimal.NewFromFloat(b.High),
			Low:       decimal.NewFromFloat(b.Low),
			Close:     decimal.NewFromFloat(b.Close),
			Volume:    decimal.NewFromFloat(b.Volume),
			Timestamp: b.Timestamp,
		})
	}
	return bars, nil
}

func alpacaTimeframe(tf string) (md.TimeFrame, error) {
	switch tf {
	case "1m":
		return md.NewTimeFrame(1, md.Min), nil
	case "5m":
		return md.NewTimeFrame(5, md.Min), nil
	case "15m":
		return md.NewTimeFrame(15, md.Min), nil
	case "1h":
		return md.NewTimeFrame(1, md.Hour), nil
	case "1d":
		return md.NewTimeFrame(1, md.Day), nil
	}
	return md.TimeFrame{}, fmt.Errorf("unsupported timeframe %q", tf)
}
