package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"gridtrader/internal/marketdata"
	"gridtrader/internal/model"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// derivedTimeframes are the bar widths built live from the 1m stream.
var derivedTimeframes = []string{"5m", "15m", "1h"}

// Resampler consumes the live 1m kline stream and republishes
// higher-timeframe bars as their windows complete, so the database
// holds every timeframe a backtest may ask for.
type Resampler struct {
	js      nats.JetStreamContext
	logger  *zap.Logger
	candles map[string]*model.KLine
	mu      sync.Mutex
}

func NewResampler(js nats.JetStreamContext, logger *zap.Logger) *Resampler {
	return &Resampler{
		js:      js,
		logger:  logger,
		candles: make(map[string]*model.KLine),
	}
}

func (r *Resampler) Run(ctx context.Context) error {
	_, err := r.js.Subscribe("market.kline.1m.*", func(msg *nats.Msg) {
		var bar model.KLine
		if err := json.Unmarshal(msg.Data, &bar); err != nil {
			r.logger.Error("failed to unmarshal kline in resampler", zap.Error(err))
			return
		}
		r.fold(bar)
		msg.Ack()
	}, nats.Durable("kline-resampler"), nats.ManualAck())
	if err != nil {
		return err
	}

	go r.flushLoop(ctx)
	r.logger.Info("kline resampler started")
	return nil
}

func (r *Resampler) fold(bar model.KLine) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, tf := range derivedTimeframes {
		d, _ := model.TimeframeDuration(tf)
		window := bar.Timestamp.Truncate(d)
		key := fmt.Sprintf("%s:%s:%s", bar.Symbol, tf, window.Format(time.RFC3339))

		candle, ok := r.candles[key]
		if !ok {
			k := bar
			k.Period = tf
			k.Timestamp = window
			r.candles[key] = &k
			continue
		}
		if bar.High.GreaterThan(candle.High) {
			candle.High = bar.High
		}
		if bar.Low.LessThan(candle.Low) {
			candle.Low = bar.Low
		}
		candle.Close = bar.Close
		candle.Volume = candle.Volume.Add(bar.Volume)
	}
}

func (r *Resampler) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.flush(time.Now())
		}
	}
}

func (r *Resampler) flush(now time.Time) {
	r.mu.Lock()
	toFlush := make([]*model.KLine, 0)
	for key, candle := range r.candles {
		d, _ := model.TimeframeDuration(candle.Period)
		// The window is complete once the current time has left it.
		if !candle.Timestamp.Add(d).After(now) {
			toFlush = append(toFlush, candle)
			delete(r.candles, key)
		}
	}
	r.mu.Unlock()

	for _, candle := range toFlush {
		subject := fmt.Sprintf("market.kline.%s.%s", candle.Period, marketdata.CompactSymbol(candle.Symbol))
		data, _ := json.Marshal(candle)
		if _, err := r.js.Publish(subject, data); err != nil {
			r.logger.Error("failed to publish resampled kline", zap.Error(err))
		}
	}
}
