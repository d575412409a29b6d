package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thrasher-corp/candlereplay/internal/candle"
	"github.com/thrasher-corp/candlereplay/internal/session"
	"github.com/thrasher-corp/candlereplay/internal/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	st := store.New(candle.Bounds{})
	require.NoError(t, st.Load(candle.OneMinute, "../../testdata/1m_epoch.csv"))
	sess, err := session.New("test", st, candle.OneMinute, 10)
	require.NoError(t, err)
	t.Cleanup(sess.Close)

	srv := New(sess, "")
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func TestChartDataReturnsCandles(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/chart/data")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "1m", body["timeframe"])
	assert.NotEmpty(t, body["candles"])
}

func TestChangeTimeframeRejectsUnloadedTimeframe(t *testing.T) {
	ts := newTestServer(t)
	// 5m was never loaded by newTestServer, mirroring the production 4h
	// case of a timeframe whose CSV is simply absent.
	resp, err := http.Post(ts.URL+"/api/chart/change_timeframe", "application/json", bytes.NewBufferString(`{"timeframe":"5m"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChangeTimeframeRejectsUnknown(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Post(ts.URL+"/api/chart/change_timeframe", "application/json", bytes.NewBufferString(`{"timeframe":"7m"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDebugStateReflectsTogglePlay(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Post(ts.URL+"/api/debug/toggle_play", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/api/debug/state")
	require.NoError(t, err)
	defer resp.Body.Close()

	var state map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	assert.Equal(t, true, state["playing"])
}

func TestGoToDateMovesCursor(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Post(ts.URL+"/api/chart/go_to_date", "application/json", bytes.NewBufferString(`{"target_date":"2023-11-15"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "2023-11-15", body["target_date"])
	assert.Equal(t, true, body["clear_cache"])
	candles, ok := body["candles"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, candles)
	last := candles[len(candles)-1].(map[string]interface{})
	assert.EqualValues(t, 1700000180, last["time"]) // clamped to the last loaded candle
}
