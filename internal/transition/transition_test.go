package transition

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thrasher-corp/candlereplay/internal/broadcaster"
	"github.com/thrasher-corp/candlereplay/internal/candle"
	"github.com/thrasher-corp/candlereplay/internal/cursor"
	"github.com/thrasher-corp/candlereplay/internal/lifecycle"
	"github.com/thrasher-corp/candlereplay/internal/skipstore"
	"github.com/thrasher-corp/candlereplay/internal/store"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	st := store.New(candle.Bounds{})
	require.NoError(t, st.Load(candle.OneMinute, "../../testdata/1m_epoch.csv"))
	c := New(st, skipstore.New(), cursor.New(1700000180), lifecycle.New(), nil, 10)
	c.SetRecreationAckTimeout(50 * time.Millisecond)
	return c
}

// dialTestConn spins up a one-shot websocket server and returns a client
// connection plus the server-side broadcaster.Conn a Coordinator can send
// through, so tests can observe message order on the wire.
func dialTestConn(t *testing.T) (*websocket.Conn, *broadcaster.Conn) {
	t.Helper()
	connCh := make(chan *broadcaster.Conn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		connCh <- broadcaster.NewConn(ws)
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, <-connCh
}

func TestSwitchTimeframeLoadsWindow(t *testing.T) {
	c := newTestCoordinator(t)
	res, err := c.SwitchTimeframe(context.Background(), candle.OneMinute)
	require.NoError(t, err)
	assert.Equal(t, candle.OneMinute, res.Timeframe)
	assert.NotEmpty(t, res.Candles)
	assert.False(t, c.IsTransitioning())
}

func TestGoToDateMovesCursorAndReloads(t *testing.T) {
	c := newTestCoordinator(t)
	res, err := c.GoToDate(context.Background(), 1700000060, candle.OneMinute)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000060), res.CursorTime)
	require.NotEmpty(t, res.Candles)
	assert.LessOrEqual(t, res.Candles[len(res.Candles)-1].Time, int64(1700000060))
	assert.True(t, res.ClearCache)
	assert.Equal(t, int64(1700000060), res.LoadAnchor)
}

func TestSwitchTimeframeDoesNotClearCache(t *testing.T) {
	c := newTestCoordinator(t)
	res, err := c.SwitchTimeframe(context.Background(), candle.OneMinute)
	require.NoError(t, err)
	assert.False(t, res.ClearCache)
	assert.Equal(t, int64(0), res.LoadAnchor)
}

func TestSkipAppliesEditToWindow(t *testing.T) {
	c := newTestCoordinator(t)
	edited := candle.Candle{Time: 1700000060, Open: 999, High: 999, Low: 999, Close: 999, Volume: 1}
	res, err := c.Skip(context.Background(), candle.OneMinute, candle.OneMinute, edited)
	require.NoError(t, err)

	var found bool
	for _, cd := range res.Candles {
		if cd.Time == 1700000060 {
			found = true
			assert.Equal(t, 999.0, cd.Close)
		}
	}
	assert.True(t, found)
}

func TestAutoplayTickAdvancesAndClamps(t *testing.T) {
	c := newTestCoordinator(t)
	c.cursor.GoToDate(1700000120)
	res, err := c.AutoplayTick(context.Background(), candle.OneMinute)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000180), res.CursorTime)
	assert.True(t, res.AtEnd) // advancing landed exactly on the last candle
}

func TestAutoplayTickAlreadyAtEndReportsAtEndWithoutAdvancing(t *testing.T) {
	c := newTestCoordinator(t)
	c.cursor.GoToDate(1700000180)
	res, err := c.AutoplayTick(context.Background(), candle.OneMinute)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000180), res.CursorTime)
	assert.True(t, res.AtEnd)
}

func TestOnPrePhasePausesAutoplayForExternalTransitionsOnly(t *testing.T) {
	c := newTestCoordinator(t)
	var calls int
	c.SetOnPrePhase(func() bool {
		calls++
		return true
	})

	res, err := c.SwitchTimeframe(context.Background(), candle.OneMinute)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, res.AutoplayPaused)

	_, err = c.AutoplayTick(context.Background(), candle.OneMinute)
	require.NoError(t, err)
	assert.Equal(t, 1, calls) // unchanged: autoplay ticks don't trigger their own pause hook
}

func TestSkipForcesRecreationCommandBeforeNextTransitionData(t *testing.T) {
	st := store.New(candle.Bounds{})
	require.NoError(t, st.Load(candle.OneMinute, "../../testdata/1m_epoch.csv"))
	c := New(st, skipstore.New(), cursor.New(1700000180), lifecycle.New(), nil, 10)
	c.SetRecreationAckTimeout(50 * time.Millisecond)

	client, serverConn := dialTestConn(t)
	c.SetConn(serverConn)

	_, err := c.Skip(context.Background(), candle.OneMinute, candle.OneMinute, candle.Candle{Time: 1700000060, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1})
	require.NoError(t, err)

	// The skip itself doesn't need recreation (no skip pressure existed
	// beforehand); the timeframe switch that follows it does.
	res, err := c.SwitchTimeframe(context.Background(), candle.OneMinute)
	require.NoError(t, err)
	assert.True(t, res.Recreated)

	// This client never acks the recreation command, so the ack wait times
	// out and an emergency_recovery_required notice precedes the data.
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var skipMsg, recreateMsg, recoveryMsg, dataMsg broadcaster.Message
	require.NoError(t, client.ReadJSON(&skipMsg))
	require.NoError(t, client.ReadJSON(&recreateMsg))
	require.NoError(t, client.ReadJSON(&recoveryMsg))
	require.NoError(t, client.ReadJSON(&dataMsg))

	assert.Equal(t, broadcaster.KindSkipComplete, skipMsg.Kind)
	assert.Equal(t, broadcaster.KindChartSeriesRecreation, recreateMsg.Kind)
	assert.Equal(t, broadcaster.KindEmergencyRecoveryRequired, recoveryMsg.Kind)
	assert.Equal(t, broadcaster.KindTimeframeChanged, dataMsg.Kind)
}

func TestFailedLoadMarksCorrupted(t *testing.T) {
	st := store.New(candle.Bounds{})
	lc := lifecycle.New()
	c := New(st, skipstore.New(), cursor.New(0), lc, nil, 10)

	_, err := c.SwitchTimeframe(context.Background(), candle.FiveMinute)
	require.Error(t, err)
	assert.Equal(t, lifecycle.Corrupted, lc.State())
}
