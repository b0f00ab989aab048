package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gridtrader/internal/connector"
	"gridtrader/internal/marketdata"
	"gridtrader/internal/model"
	"gridtrader/internal/storage"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// startIngestionWorker starts one live kline connector per configured
// symbol and publishes completed bars to JetStream.
func (a *App) startIngestionWorker(ctx context.Context) {
	for _, raw := range strings.Split(a.Config.IngestSymbols, ",") {
		symbol := strings.TrimSpace(raw)
		if symbol == "" {
			continue
		}
		go func() {
			klineChan := make(chan model.KLine, 1000)
			c := connector.NewBinanceConnector(a.Logger, symbol)
			go c.Run(ctx, klineChan)

			for {
				select {
				case <-ctx.Done():
					return
				case kline := <-klineChan:
					subject := fmt.Sprintf("market.kline.1m.%s", marketdata.CompactSymbol(kline.Symbol))
					data, err := json.Marshal(kline)
					if err != nil {
						a.Logger.Error("failed to marshal kline", zap.Error(err))
						continue
					}
					if _, err := a.JS.Publish(subject, data); err != nil {
						a.Logger.Error("failed to publish to NATS", zap.Error(err))
					}
				}
			}
		}()
	}
}

// startPersistenceService subscribes to the kline stream, both raw 1m
// bars and resampled timeframes, and batches them into the database.
func (a *App) startPersistenceService(klineSaver *storage.KlineSaver) {
	_, err := a.JS.Subscribe("market.kline.*.*", func(m *nats.Msg) {
		var kline model.KLine
		if err := json.Unmarshal(m.Data, &kline); err != nil {
			a.Logger.Error("failed to unmarshal kline", zap.Error(err))
			return
		}
		klineSaver.Add(kline)
		m.Ack()
	}, nats.Durable("kline_saver"), nats.ManualAck())
	if err != nil {
		a.Logger.Fatal("failed to subscribe to klines", zap.Error(err))
	}
}
