package storage

import (
	"context"
	"testing"
	"time"

	"gridtrader/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestKlineSaver_BuffersUntilBatchSize(t *testing.T) {
	s := NewKlineSaver(nil, zap.NewNop())

	for i := 0; i < 10; i++ {
		s.Add(model.KLine{
			Symbol:    "BTC/USD",
			Period:    "1m",
			Close:     decimal.NewFromInt(100),
			Timestamp: time.Now(),
		})
	}
	assert.Equal(t, 10, s.Buffered())
}

func TestKlineSaver_FlushEmptyIsNoop(t *testing.T) {
	s := NewKlineSaver(nil, zap.NewNop())
	// No pool is needed: an empty buffer returns before touching it.
	s.Flush(context.Background())
	assert.Zero(t, s.Buffered())
}
