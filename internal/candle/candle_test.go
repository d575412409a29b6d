package candle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeframeStringRoundTrip(t *testing.T) {
	for _, tf := range All {
		parsed, err := ParseTimeframe(tf.String())
		require.NoError(t, err)
		assert.Equal(t, tf, parsed)
	}
}

func TestParseTimeframeRejectsUnknown(t *testing.T) {
	_, err := ParseTimeframe("7m")
	assert.ErrorIs(t, err, ErrUnsupportedTimeframe)
}

func TestAlignTimestamp(t *testing.T) {
	assert.Equal(t, int64(0), AlignTimestamp(59, FiveMinute))
	assert.Equal(t, int64(300), AlignTimestamp(599, FiveMinute))
	assert.Equal(t, int64(300), AlignTimestamp(300, FiveMinute))
}

func TestDedupeByTimeKeepsLatest(t *testing.T) {
	in := []Candle{
		{Time: 100, Close: 1},
		{Time: 200, Close: 2},
		{Time: 100, Close: 3},
	}
	out := DedupeByTime(in)
	require.Len(t, out, 2)
	assert.Equal(t, int64(100), out[0].Time)
	assert.Equal(t, 3.0, out[0].Close)
	assert.Equal(t, int64(200), out[1].Time)
}

func TestValidRejectsInvertedHighLow(t *testing.T) {
	bad := Candle{Time: 0, Open: 10, High: 9, Low: 8, Close: 10, Volume: 1}
	assert.False(t, Valid(bad, Bounds{}))
}

func TestValidRejectsOutOfBounds(t *testing.T) {
	c := Candle{Time: 0, Open: 10, High: 11, Low: 9, Close: 10, Volume: 1}
	assert.True(t, Valid(c, Bounds{}))
	assert.False(t, Valid(c, Bounds{MinPrice: 100, MaxPrice: 200}))
}

func TestSanitizeSynthesizesFallbackWhenAllInvalid(t *testing.T) {
	candles := []Candle{
		{Time: 60, Open: 10, High: 5, Low: 20, Close: 10, Volume: 1}, // inverted, invalid
	}
	out := Sanitize(candles, Bounds{}, 42)
	require.Len(t, out, 1)
	assert.Equal(t, 42.0, out[0].Open)
	assert.Equal(t, 42.0, out[0].Close)
	assert.Equal(t, int64(60), out[0].Time)
}

func TestAggregateRollsUpOHLCV(t *testing.T) {
	base := []Candle{
		{Time: 0, Open: 1, High: 3, Low: 1, Close: 2, Volume: 10},
		{Time: 60, Open: 2, High: 5, Low: 2, Close: 4, Volume: 5},
		{Time: 120, Open: 4, High: 4, Low: 1, Close: 3, Volume: 7},
		{Time: 180, Open: 10, High: 12, Low: 9, Close: 11, Volume: 1},
	}
	out, err := Aggregate(base, OneMinute, ThreeMinute)
	require.NoError(t, err)
	require.Len(t, out, 2)

	first := out[0]
	assert.Equal(t, int64(0), first.Time)
	assert.Equal(t, 1.0, first.Open)
	assert.Equal(t, 5.0, first.High)
	assert.Equal(t, 1.0, first.Low)
	assert.Equal(t, 3.0, first.Close)
	assert.Equal(t, 22.0, first.Volume)

	second := out[1]
	assert.Equal(t, int64(180), second.Time)
	assert.Equal(t, 10.0, second.Open)
}

func TestAggregateRejectsNonMultiple(t *testing.T) {
	_, err := Aggregate(nil, FiveMinute, ThreeMinute)
	assert.ErrorIs(t, err, ErrTargetNotMultiple)
}
