// Package candle defines the OHLCV candle type and the fixed set of
// timeframes the replay server understands, along with a rollup helper
// (Aggregate) and the sanity checks (Valid, Sanitize) every loaded series
// and every outgoing window is put through before it reaches a client.
package candle

import (
	"fmt"
	"sort"
)

// Timeframe is one of the eight fixed candle widths the replay server
// supports, expressed in minutes.
type Timeframe int64

// The supported timeframes, in ascending order.
const (
	OneMinute    Timeframe = 1
	TwoMinute    Timeframe = 2
	ThreeMinute  Timeframe = 3
	FiveMinute   Timeframe = 5
	FifteenMinute Timeframe = 15
	ThirtyMinute Timeframe = 30
	OneHour      Timeframe = 60
	FourHour     Timeframe = 240
)

// All lists every supported timeframe in ascending order. Components that
// need to iterate every timeframe (startup CSV loading, timeframe
// parsing) range over this rather than hardcoding the set.
var All = []Timeframe{
	OneMinute, TwoMinute, ThreeMinute, FiveMinute,
	FifteenMinute, ThirtyMinute, OneHour, FourHour,
}

// Minutes returns the timeframe's width in minutes.
func (tf Timeframe) Minutes() int64 { return int64(tf) }

// Seconds returns the timeframe's width in seconds, the unit candle
// timestamps are aligned and compared in.
func (tf Timeframe) Seconds() int64 { return int64(tf) * 60 }

// String renders the timeframe the way it appears in the HTTP API and in
// CSV file names, e.g. "1m", "4h".
func (tf Timeframe) String() string {
	switch tf {
	case OneMinute:
		return "1m"
	case TwoMinute:
		return "2m"
	case ThreeMinute:
		return "3m"
	case FiveMinute:
		return "5m"
	case FifteenMinute:
		return "15m"
	case ThirtyMinute:
		return "30m"
	case OneHour:
		return "1h"
	case FourHour:
		return "4h"
	default:
		return fmt.Sprintf("%dm", int64(tf))
	}
}

// Valid reports whether tf is one of the eight supported timeframes.
func (tf Timeframe) Valid() bool {
	for _, t := range All {
		if t == tf {
			return true
		}
	}
	return false
}

// ErrUnsupportedTimeframe is returned by ParseTimeframe when given a
// string that does not name one of the supported timeframes.
var ErrUnsupportedTimeframe = fmt.Errorf("candle: unsupported timeframe")

// ParseTimeframe maps an API/query string such as "15m" or "4h" back to a
// Timeframe.
func ParseTimeframe(s string) (Timeframe, error) {
	for _, t := range All {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedTimeframe, s)
}

// AlignTimestamp floors t (a unix second) down to the start of the
// timeframe bucket it falls in: align(t, tf) = t - (t mod tf.Seconds()).
func AlignTimestamp(t int64, tf Timeframe) int64 {
	width := tf.Seconds()
	if width <= 0 {
		return t
	}
	mod := t % width
	if mod < 0 {
		mod += width
	}
	return t - mod
}

// Candle is a single OHLCV bar. Time is a unix second timestamp, already
// aligned to its timeframe's bucket boundary.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// ByTime sorts a candle slice ascending by Time, used after any
// operation (CSV load, skip projection, aggregation) that can leave a
// series out of order.
type ByTime []Candle

func (b ByTime) Len() int           { return len(b) }
func (b ByTime) Less(i, j int) bool { return b[i].Time < b[j].Time }
func (b ByTime) Swap(i, j int)      { b[i], b[j] = b[j], b[i] }

// SortByTime sorts candles ascending by Time in place.
func SortByTime(candles []Candle) {
	sort.Sort(ByTime(candles))
}

// DedupeByTime removes candles sharing a Time, keeping the last
// occurrence seen in input order. This mirrors the "keep latest write"
// rule used for skip-event projection and for CSV rows that repeat a
// timestamp.
func DedupeByTime(candles []Candle) []Candle {
	seenAt := make(map[int64]int, len(candles))
	out := make([]Candle, 0, len(candles))
	for _, c := range candles {
		if idx, ok := seenAt[c.Time]; ok {
			out[idx] = c
			continue
		}
		seenAt[c.Time] = len(out)
		out = append(out, c)
	}
	return out
}
