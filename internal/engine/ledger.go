package engine

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Lot is a single open quantity of asset bought at one grid fill. It
// is created by a buy and destroyed only by a full close of that exact
// lot; lots are never split.
type Lot struct {
	Assets   decimal.Decimal
	BuyPrice decimal.Decimal
}

// Ledger owns the open lots of a run, keyed by the buy level that
// created them and strictly FIFO within a level. It persists across
// chunks and is discarded at run end.
type Ledger struct {
	lots map[int][]Lot
}

func NewLedger() *Ledger {
	return &Ledger{lots: make(map[int][]Lot)}
}

func (l *Ledger) Push(level int, lot Lot) {
	l.lots[level] = append(l.lots[level], lot)
}

// PopOldest removes and returns the oldest lot of a level. The level
// entry disappears entirely once its last lot is gone.
func (l *Ledger) PopOldest(level int) (Lot, bool) {
	return l.PopAt(level, 0)
}

// PopAt removes the lot at a fixed queue index. Stop-loss execution
// removes by index in descending order so earlier removals cannot
// shift the positions still pending.
func (l *Ledger) PopAt(level, idx int) (Lot, bool) {
	queue, ok := l.lots[level]
	if !ok || idx < 0 || idx >= len(queue) {
		return Lot{}, false
	}
	lot := queue[idx]
	queue = append(queue[:idx], queue[idx+1:]...)
	if len(queue) == 0 {
		delete(l.lots, level)
	} else {
		l.lots[level] = queue
	}
	return lot, true
}

// LotsAt returns the FIFO queue of a level, oldest first.
func (l *Ledger) LotsAt(level int) []Lot {
	return l.lots[level]
}

// Levels returns the levels currently holding lots, ascending.
func (l *Ledger) Levels() []int {
	levels := make([]int, 0, len(l.lots))
	for level := range l.lots {
		levels = append(levels, level)
	}
	sort.Ints(levels)
	return levels
}

// LowestBelow returns the lowest level strictly below limit that holds
// at least one lot.
func (l *Ledger) LowestBelow(limit int) (int, bool) {
	found := false
	lowest := 0
	for level := range l.lots {
		if level >= limit {
			continue
		}
		if !found || level < lowest {
			lowest = level
			found = true
		}
	}
	return lowest, found
}

// TotalAssets sums the asset quantity across every open lot. The
// account holding must equal this exactly at all times.
func (l *Ledger) TotalAssets() decimal.Decimal {
	total := decimal.Zero
	for _, queue := range l.lots {
		for _, lot := range queue {
			total = total.Add(lot.Assets)
		}
	}
	return total
}

func (l *Ledger) Empty() bool {
	return len(l.lots) == 0
}
