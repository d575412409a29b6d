package skipstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thrasher-corp/candlereplay/internal/candle"
)

func TestProjectDedupesByAlignedTimestampKeepingLatest(t *testing.T) {
	s := New()
	s.Append(candle.OneMinute, candle.Candle{Time: 60, Close: 1})
	s.Append(candle.OneMinute, candle.Candle{Time: 119, Close: 2}) // aligns to same 5m bucket as above at tf=5m

	out := s.Project(candle.FiveMinute)
	require.Len(t, out, 1)
	assert.Equal(t, 2.0, out[0].Close)
	assert.Equal(t, int64(0), out[0].Time)
}

func TestProjectHidesCoarserOriginFromFinerTarget(t *testing.T) {
	// The rule is origin.Minutes <= target.Minutes: a 5m skip is hidden
	// from a 1m view and visible on its own 5m view and the coarser 15m.
	s := New()
	s.Append(candle.FiveMinute, candle.Candle{Time: 0, Close: 9})

	assert.Empty(t, s.Project(candle.OneMinute))
	assert.Len(t, s.Project(candle.FiveMinute), 1)
	assert.Len(t, s.Project(candle.FifteenMinute), 1)
}

func TestContaminationLevelBuckets(t *testing.T) {
	s := New()
	assert.Equal(t, Clean, s.ContaminationLevel(candle.OneMinute))

	for i := 0; i < 2; i++ {
		s.Append(candle.OneMinute, candle.Candle{Time: int64(i * 60)})
	}
	assert.Equal(t, Light, s.ContaminationLevel(candle.OneMinute))

	for i := 2; i < 8; i++ {
		s.Append(candle.OneMinute, candle.Candle{Time: int64(i * 60)})
	}
	assert.Equal(t, Moderate, s.ContaminationLevel(candle.OneMinute))

	for i := 8; i < 20; i++ {
		s.Append(candle.OneMinute, candle.Candle{Time: int64(i * 60)})
	}
	assert.Equal(t, Heavy, s.ContaminationLevel(candle.OneMinute))
}

func TestClearRemovesAllEvents(t *testing.T) {
	s := New()
	s.Append(candle.OneMinute, candle.Candle{Time: 0})
	require.Equal(t, 1, s.Count())
	s.Clear()
	assert.Equal(t, 0, s.Count())
	assert.Empty(t, s.Project(candle.OneMinute))
}
