package infrastructure

import (
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

func InitNATS(url string, logger *zap.Logger) (*nats.Conn, nats.JetStreamContext, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		return nil, nil, err
	}

	streams := []*nats.StreamConfig{
		{
			Name:     "MARKET",
			Subjects: []string{"market.kline.*.*"},
		},
		{
			Name:     "BACKTEST",
			Subjects: []string{"backtest.report.*"},
		},
	}
	for _, cfg := range streams {
		if _, err := js.AddStream(cfg); err != nil {
			// Stream may already exist with an older subject set.
			if _, err := js.UpdateStream(cfg); err != nil {
				logger.Warn("failed to create or update stream",
					zap.String("stream", cfg.Name), zap.Error(err))
			}
		}
	}

	return nc, js, nil
}
