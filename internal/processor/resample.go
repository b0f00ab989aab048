package processor

import (
	"gridtrader/internal/model"
)

// Resample folds an ascending 1m bar series into bars of the target
// timeframe. A window's open and close come from its first and last
// base bar, so gaps in the base series just shorten the window rather
// than fabricating prices.
func Resample(base []model.KLine, timeframe string) ([]model.KLine, error) {
	d, err := model.TimeframeDuration(timeframe)
	if err != nil {
		return nil, err
	}

	var out []model.KLine
	for _, b := range base {
		window := b.Timestamp.Truncate(d)
		if len(out) == 0 || !out[len(out)-1].Timestamp.Equal(window) {
			k := b
			k.Period = timeframe
			k.Timestamp = window
			out = append(out, k)
			continue
		}
		cur := &out[len(out)-1]
		if b.High.GreaterThan(cur.High) {
			cur.High = b.High
		}
		if b.Low.LessThan(cur.Low) {
			cur.Low = b.Low
		}
		cur.Close = b.Close
		cur.Volume = cur.Volume.Add(b.Volume)
	}
	return out, nil
}
