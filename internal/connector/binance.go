package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gridtrader/internal/infrastructure"
	"gridtrader/internal/marketdata"
	"gridtrader/internal/model"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BinanceConnector streams live 1m candles from the Binance kline
// websocket and feeds them into the storage pipeline, so recent
// history keeps accumulating between backtests.
type BinanceConnector struct {
	logger *zap.Logger
	symbol string
}

func NewBinanceConnector(logger *zap.Logger, symbol string) *BinanceConnector {
	return &BinanceConnector{
		logger: logger,
		symbol: symbol,
	}
}

// BinanceKlineEvent is the raw kline event from the Binance WS.
type BinanceKlineEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     struct {
		StartTime int64  `json:"t"`
		CloseTime int64  `json:"T"`
		Symbol    string `json:"s"`
		Interval  string `json:"i"`
		Open      string `json:"o"`
		Close     string `json:"c"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Volume    string `json:"v"`
		Closed    bool   `json:"x"`
	} `json:"k"`
}

func (b *BinanceConnector) Run(ctx context.Context, klineChan chan<- model.KLine) {
	url := fmt.Sprintf("wss://stream.binance.com:9443/ws/%s@kline_1m", strings.ToLower(b.symbol))
	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		b.logger.Info("connecting to binance websocket", zap.String("url", url))
		dialer := websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		}
		conn, _, err := dialer.Dial(url, nil)
		if err != nil {
			b.logger.Error("failed to connect to binance", zap.Error(err))
			time.Sleep(backoff)
			backoff = b.increaseBackoff(backoff)
			continue
		}

		backoff = time.Second // Reset backoff on successful connection
		b.logger.Info("connected to binance websocket")
		infrastructure.WSConnections.Inc()

		if err := b.handleConnection(ctx, conn, klineChan); err != nil {
			b.logger.Error("connection closed with error", zap.Error(err))
		}
		infrastructure.WSConnections.Dec()
		conn.Close()
	}
}

func (b *BinanceConnector) handleConnection(ctx context.Context, conn *websocket.Conn, klineChan chan<- model.KLine) error {
	// A read deadline refreshed on pong detects stale connections.
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			_, message, err := conn.ReadMessage()
			if err != nil {
				return err
			}

			var event BinanceKlineEvent
			if err := json.Unmarshal(message, &event); err != nil {
				b.logger.Error("failed to unmarshal binance kline event", zap.Error(err))
				continue
			}
			// Only completed candles enter the pipeline; the open one
			// keeps changing until its window closes.
			if !event.Kline.Closed {
				continue
			}

			kline := b.convertToModel(event)
			select {
			case klineChan <- kline:
			default:
				b.logger.Warn("kline channel full, dropping bar", zap.String("symbol", kline.Symbol))
			}
		}
	}
}

func (b *BinanceConnector) convertToModel(event BinanceKlineEvent) model.KLine {
	open, _ := decimal.NewFromString(event.Kline.Open)
	high, _ := decimal.NewFromString(event.Kline.High)
	low, _ := decimal.NewFromString(event.Kline.Low)
	closePx, _ := decimal.NewFromString(event.Kline.Close)
	volume, _ := decimal.NewFromString(event.Kline.Volume)

	return model.KLine{
		Symbol:    marketdata.NormalizeSymbol(event.Kline.Symbol),
		Exchange:  "binance",
		Period:    "1m",
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePx,
		Volume:    volume,
		Timestamp: time.Unix(0, event.Kline.StartTime*int64(time.Millisecond)),
	}
}

func (b *BinanceConnector) increaseBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > time.Minute {
		return time.Minute
	}
	return next
}
