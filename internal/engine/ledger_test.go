package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLedger_FIFOWithinLevel(t *testing.T) {
	l := NewLedger()
	l.Push(2, Lot{Assets: decimal.NewFromInt(1), BuyPrice: decimal.NewFromInt(95)})
	l.Push(2, Lot{Assets: decimal.NewFromInt(2), BuyPrice: decimal.NewFromInt(94)})

	lot, ok := l.PopOldest(2)
	assert.True(t, ok)
	assert.True(t, lot.BuyPrice.Equal(decimal.NewFromInt(95)))

	lot, ok = l.PopOldest(2)
	assert.True(t, ok)
	assert.True(t, lot.BuyPrice.Equal(decimal.NewFromInt(94)))

	_, ok = l.PopOldest(2)
	assert.False(t, ok)
	assert.True(t, l.Empty())
}

func TestLedger_LevelEntryRemovedWhenDrained(t *testing.T) {
	l := NewLedger()
	l.Push(1, Lot{Assets: decimal.NewFromInt(1), BuyPrice: decimal.NewFromInt(90)})
	l.Push(3, Lot{Assets: decimal.NewFromInt(1), BuyPrice: decimal.NewFromInt(80)})

	assert.Equal(t, []int{1, 3}, l.Levels())

	_, ok := l.PopOldest(1)
	assert.True(t, ok)
	assert.Equal(t, []int{3}, l.Levels())
	assert.Nil(t, l.LotsAt(1))
}

func TestLedger_LowestBelow(t *testing.T) {
	l := NewLedger()
	l.Push(4, Lot{Assets: decimal.NewFromInt(1), BuyPrice: decimal.NewFromInt(90)})
	l.Push(1, Lot{Assets: decimal.NewFromInt(1), BuyPrice: decimal.NewFromInt(80)})

	level, ok := l.LowestBelow(5)
	assert.True(t, ok)
	assert.Equal(t, 1, level)

	level, ok = l.LowestBelow(4)
	assert.True(t, ok)
	assert.Equal(t, 1, level)

	_, ok = l.LowestBelow(1)
	assert.False(t, ok)
}

func TestLedger_PopAtKeepsLaterIndexes(t *testing.T) {
	l := NewLedger()
	for i := int64(0); i < 3; i++ {
		l.Push(0, Lot{Assets: decimal.NewFromInt(1), BuyPrice: decimal.NewFromInt(100 + i)})
	}

	lot, ok := l.PopAt(0, 1)
	assert.True(t, ok)
	assert.True(t, lot.BuyPrice.Equal(decimal.NewFromInt(101)))

	queue := l.LotsAt(0)
	assert.Len(t, queue, 2)
	assert.True(t, queue[0].BuyPrice.Equal(decimal.NewFromInt(100)))
	assert.True(t, queue[1].BuyPrice.Equal(decimal.NewFromInt(102)))

	_, ok = l.PopAt(0, 5)
	assert.False(t, ok)
}

func TestLedger_TotalAssets(t *testing.T) {
	l := NewLedger()
	assert.True(t, l.TotalAssets().IsZero())

	l.Push(0, Lot{Assets: decimal.NewFromFloat(0.5), BuyPrice: decimal.NewFromInt(90)})
	l.Push(2, Lot{Assets: decimal.NewFromFloat(1.25), BuyPrice: decimal.NewFromInt(95)})
	assert.True(t, l.TotalAssets().Equal(decimal.NewFromFloat(1.75)))
}
