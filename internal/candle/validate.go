package candle

import "math"

// Bounds constrains what a validator will accept as a plausible price.
// Zero-value Bounds disables the min/max check and only enforces the
// structural OHLC invariants and NaN rejection.
type Bounds struct {
	MinPrice float64
	MaxPrice float64
}

func (b Bounds) active() bool { return b.MaxPrice > 0 }

func (b Bounds) withinRange(price float64) bool {
	if !b.active() {
		return true
	}
	return price >= b.MinPrice && price <= b.MaxPrice
}

// Valid reports whether c satisfies the OHLC structural invariants
// (high is the max, low is the min, none of the five numeric fields is
// NaN or infinite) and, if bounds is active, that every price field
// falls within it.
func Valid(c Candle, bounds Bounds) bool {
	fields := [5]float64{c.Open, c.High, c.Low, c.Close, c.Volume}
	for _, f := range fields {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	if c.Volume < 0 {
		return false
	}
	if c.High < c.Open || c.High < c.Close || c.High < c.Low {
		return false
	}
	if c.Low > c.Open || c.Low > c.Close {
		return false
	}
	for _, p := range [4]float64{c.Open, c.High, c.Low, c.Close} {
		if !bounds.withinRange(p) {
			return false
		}
	}
	return true
}

// Sanitize filters candles down to the ones Valid accepts, in time order.
// When filtering would leave the series empty but the input was
// non-empty, it synthesizes a single flat fallback candle (open = high =
// low = close = fallbackPrice, volume 0, at the first input candle's
// Time) rather than handing the client an empty chart.
func Sanitize(candles []Candle, bounds Bounds, fallbackPrice float64) []Candle {
	out := make([]Candle, 0, len(candles))
	lastGoodClose := fallbackPrice
	var lastGoodTime int64
	haveTime := false
	for _, c := range candles {
		if !haveTime {
			lastGoodTime = c.Time
			haveTime = true
		}
		if Valid(c, bounds) {
			out = append(out, c)
			lastGoodClose = c.Close
			lastGoodTime = c.Time
		}
	}
	if len(out) == 0 && len(candles) > 0 {
		out = append(out, Candle{
			Time:   lastGoodTime,
			Open:   lastGoodClose,
			High:   lastGoodClose,
			Low:    lastGoodClose,
			Close:  lastGoodClose,
			Volume: 0,
		})
	}
	return out
}
