package candle

import "fmt"

// ErrTargetNotMultiple is returned by Aggregate when target is not an
// integer multiple of base — rollups only ever combine whole numbers of
// source candles into one destination candle.
var ErrTargetNotMultiple = fmt.Errorf("candle: target timeframe is not an integer multiple of the base timeframe")

// Aggregate rolls base-timeframe candles up into target-timeframe
// candles: open is the first candle's open, close is the last candle's
// close, high/low are the max/min across the group, and volume sums
// across the group. base must already be sorted ascending by Time and
// target must be a whole multiple of base.
func Aggregate(candles []Candle, base, target Timeframe) ([]Candle, error) {
	if target < base || target.Seconds()%base.Seconds() != 0 {
		return nil, fmt.Errorf("%w: base=%s target=%s", ErrTargetNotMultiple, base, target)
	}
	if target == base {
		out := make([]Candle, len(candles))
		copy(out, candles)
		return out, nil
	}

	out := make([]Candle, 0, len(candles)*int(base.Seconds())/int(target.Seconds())+1)
	var cur *Candle
	var bucketStart int64

	flush := func() {
		if cur != nil {
			out = append(out, *cur)
			cur = nil
		}
	}

	for _, c := range candles {
		start := AlignTimestamp(c.Time, target)
		if cur == nil || start != bucketStart {
			flush()
			bucketStart = start
			next := Candle{
				Time:   start,
				Open:   c.Open,
				High:   c.High,
				Low:    c.Low,
				Close:  c.Close,
				Volume: c.Volume,
			}
			cur = &next
			continue
		}
		if c.High > cur.High {
			cur.High = c.High
		}
		if c.Low < cur.Low {
			cur.Low = c.Low
		}
		cur.Close = c.Close
		cur.Volume += c.Volume
	}
	flush()
	return out, nil
}
