// Package store holds the replay server's immutable historical candle
// data: one sorted, binary-searchable series per timeframe, loaded once
// from CSV at startup.
package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/thrasher-corp/candlereplay/internal/candle"
	"github.com/thrasher-corp/candlereplay/internal/replaylog"
)

// ErrTimeframeNotLoaded is returned when a timeframe is queried before a
// CSV has been loaded for it.
var ErrTimeframeNotLoaded = fmt.Errorf("store: timeframe not loaded")

type series struct {
	candles []candle.Candle // sorted ascending by Time, deduplicated
}

// Store is the read side of the replay server's historical data: a
// fixed, immutable series of candles per timeframe. It is safe for
// concurrent use; Load is expected to run once per timeframe during
// startup, after which every access is a read.
type Store struct {
	mu     sync.RWMutex
	series map[candle.Timeframe]*series
	bounds candle.Bounds
}

// New builds an empty Store. bounds, if non-zero, is applied when
// sanitizing loaded series.
func New(bounds candle.Bounds) *Store {
	return &Store{series: make(map[candle.Timeframe]*series), bounds: bounds}
}

// Load reads path as CSV and installs it as tf's series, replacing any
// series previously loaded for tf. Candles are sorted, deduplicated by
// timestamp (last write wins), and run through candle.Sanitize.
func (s *Store) Load(tf candle.Timeframe, path string) error {
	raw, err := loadCSV(path)
	if err != nil {
		return err
	}
	candle.SortByTime(raw)
	raw = candle.DedupeByTime(raw)

	var fallback float64
	if len(raw) > 0 {
		fallback = raw[0].Open
	}
	clean := candle.Sanitize(raw, s.bounds, fallback)

	s.mu.Lock()
	s.series[tf] = &series{candles: clean}
	s.mu.Unlock()

	replaylog.Infof(replaylog.StoreMgr, "loaded %d candles for timeframe %s from %s", len(clean), tf, path)
	return nil
}

// Available reports whether tf has been loaded.
func (s *Store) Available(tf candle.Timeframe) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.series[tf]
	return ok
}

// Len returns the number of candles loaded for tf, or 0 if tf is not
// loaded.
func (s *Store) Len(tf candle.Timeframe) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sr, ok := s.series[tf]
	if !ok {
		return 0
	}
	return len(sr.candles)
}

// First returns tf's earliest candle.
func (s *Store) First(tf candle.Timeframe) (candle.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sr, ok := s.series[tf]
	if !ok || len(sr.candles) == 0 {
		return candle.Candle{}, ErrTimeframeNotLoaded
	}
	return sr.candles[0], nil
}

// Last returns tf's latest candle.
func (s *Store) Last(tf candle.Timeframe) (candle.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sr, ok := s.series[tf]
	if !ok || len(sr.candles) == 0 {
		return candle.Candle{}, ErrTimeframeNotLoaded
	}
	return sr.candles[len(sr.candles)-1], nil
}

// FindIndex returns the index of the last candle in tf's series whose
// Time is <= target (the "floor" candle), and whether any such candle
// exists. It runs in O(log n) via sort.Search over the already-sorted
// series.
func (s *Store) FindIndex(tf candle.Timeframe, target int64) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sr, ok := s.series[tf]
	if !ok || len(sr.candles) == 0 {
		return 0, false
	}
	candles := sr.candles
	i := sort.Search(len(candles), func(i int) bool { return candles[i].Time > target })
	if i == 0 {
		return 0, false
	}
	return i - 1, true
}

// Slice returns up to count candles from tf's series ending at or before
// endTime (inclusive), in ascending time order. It is the primary query
// used to materialize a chart's visible window. If endTime falls before
// the series' first candle, the window floors to the first candle rather
// than returning empty, mirroring FindIndex's floor semantics.
func (s *Store) Slice(tf candle.Timeframe, endTime int64, count int) ([]candle.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sr, ok := s.series[tf]
	if !ok {
		return nil, ErrTimeframeNotLoaded
	}
	candles := sr.candles
	end := sort.Search(len(candles), func(i int) bool { return candles[i].Time > endTime })
	if end == 0 && len(candles) > 0 {
		end = 1
	}
	start := end - count
	if start < 0 {
		start = 0
	}
	out := make([]candle.Candle, end-start)
	copy(out, candles[start:end])
	return out, nil
}

// Range returns every candle in tf's series with Time in [start, end].
func (s *Store) Range(tf candle.Timeframe, start, end int64) ([]candle.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sr, ok := s.series[tf]
	if !ok {
		return nil, ErrTimeframeNotLoaded
	}
	candles := sr.candles
	from := sort.Search(len(candles), func(i int) bool { return candles[i].Time >= start })
	to := sort.Search(len(candles), func(i int) bool { return candles[i].Time > end })
	if from >= to {
		return nil, nil
	}
	out := make([]candle.Candle, to-from)
	copy(out, candles[from:to])
	return out, nil
}
