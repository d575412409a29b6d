// Package skipstore tracks synthetic "skip" edits: candle mutations a
// debug client injects directly into a running session, layered over the
// immutable historical data in internal/store rather than mutating it.
package skipstore

import (
	"sync"

	"github.com/thrasher-corp/candlereplay/internal/candle"
	"github.com/thrasher-corp/candlereplay/internal/replaylog"
)

// Event is one recorded skip: a candle injected at OriginTF, along with
// the monotonic order it was recorded in.
type Event struct {
	ID       int64
	OriginTF candle.Timeframe
	Candle   candle.Candle
}

// Store is an append-only log of skip events. Nothing is ever removed
// from it except by Clear, which the server itself never calls (a
// go-to-date or session teardown leaves the log intact); individual
// timeframe views are derived by Project.
type Store struct {
	mu     sync.Mutex
	events []Event
	nextID int64
}

// New builds an empty skip store.
func New() *Store {
	return &Store{}
}

// Append records a new skip event originating at originTF and returns
// it with its assigned ID.
func (s *Store) Append(originTF candle.Timeframe, c candle.Candle) Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	ev := Event{ID: s.nextID, OriginTF: originTF, Candle: c}
	s.events = append(s.events, ev)
	replaylog.Debugln(replaylog.SkipMgr, "recorded skip event", ev.ID, "origin", originTF, "time", c.Time)
	return ev
}

// Clear wipes every recorded event. No server code path calls it.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

// visible reports whether a skip event recorded at originTF should be
// seen by a view at targetTF. A skip is visible on its own timeframe and
// on every coarser timeframe it aggregates into, but never on a finer
// one: a 5m skip reshapes what a 15m chart sees, but a 1m chart has no
// way to know which of its five 1m candles changed.
func visible(originTF, targetTF candle.Timeframe) bool {
	return originTF.Minutes() <= targetTF.Minutes()
}

// Project returns the deduplicated set of skip-origin candles visible on
// targetTF, sorted by time. When more than one event lands on the same
// aligned timestamp, the most recently recorded one wins.
func (s *Store) Project(targetTF candle.Timeframe) []candle.Candle {
	s.mu.Lock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	s.mu.Unlock()

	byTime := make(map[int64]candle.Candle)
	for _, ev := range events {
		if !visible(ev.OriginTF, targetTF) {
			continue
		}
		aligned := candle.AlignTimestamp(ev.Candle.Time, targetTF)
		c := ev.Candle
		c.Time = aligned
		byTime[aligned] = c // later events in append order overwrite earlier ones
	}

	out := make([]candle.Candle, 0, len(byTime))
	for _, c := range byTime {
		out = append(out, c)
	}
	candle.SortByTime(out)
	return out
}

// Level summarizes how heavily a timeframe's view has been reshaped by
// skip events, used to decide whether a chart-series recreation is
// needed versus a cheap in-place patch.
type Level int

// Contamination levels, ordered from least to most disruptive.
const (
	Clean Level = iota
	Light
	Moderate
	Heavy
)

// ContaminationLevel buckets the number of skip events originating
// natively at tf (not merely visible on it through propagation) into a
// Level.
func (s *Store) ContaminationLevel(tf candle.Timeframe) Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int
	for _, ev := range s.events {
		if ev.OriginTF == tf {
			count++
		}
	}
	switch {
	case count == 0:
		return Clean
	case count <= 3:
		return Light
	case count <= 10:
		return Moderate
	default:
		return Heavy
	}
}

// Count returns the total number of events recorded across every
// timeframe, reported in the session's debug snapshot.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}
