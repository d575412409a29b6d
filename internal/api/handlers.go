package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/thrasher-corp/candlereplay/internal/candle"
	"github.com/thrasher-corp/candlereplay/internal/transition"
)

// errTimeframeUnavailable is returned when a client asks for a timeframe
// whose CSV was never loaded (the production 4h case: treated as
// available iff its data file is present, rejected here otherwise).
var errTimeframeUnavailable = fmt.Errorf("timeframe has no historical data loaded")

func (s *Server) requireAvailable(tf candle.Timeframe) error {
	if !s.session.TimeframeAvailable(tf) {
		return fmt.Errorf("%w: %s", errTimeframeUnavailable, tf)
	}
	return nil
}

func (s *Server) handleChartData(w http.ResponseWriter, r *http.Request) {
	tf := s.session.Timeframe()
	if q := r.URL.Query().Get("timeframe"); q != "" {
		parsed, err := candle.ParseTimeframe(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		tf = parsed
	}
	if err := s.requireAvailable(tf); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := s.session.SwitchTimeframe(r.Context(), tf)
	if err != nil {
		writeError(w, transitionStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resultPayload(res))
}

type changeTimeframeRequest struct {
	Timeframe string `json:"timeframe"`
}

func (s *Server) handleChangeTimeframe(w http.ResponseWriter, r *http.Request) {
	var req changeTimeframeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tf, err := candle.ParseTimeframe(req.Timeframe)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.requireAvailable(tf); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.session.SwitchTimeframe(r.Context(), tf)
	if err != nil {
		writeError(w, transitionStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resultPayload(res))
}

type goToDateRequest struct {
	TargetDate string `json:"target_date"`
}

// targetDateLayout is year-month-day, which leaves no day/month ambiguity:
// the client always sends a plain calendar date, never a locale-dependent
// one.
const targetDateLayout = "2006-01-02"

func (s *Server) handleGoToDate(w http.ResponseWriter, r *http.Request) {
	var req goToDateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	t, err := time.Parse(targetDateLayout, req.TargetDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("target_date: %w", err))
		return
	}
	res, err := s.session.GoToDate(r.Context(), t.Unix())
	if err != nil {
		writeError(w, transitionStatus(err), err)
		return
	}
	payload := resultPayload(res)
	payload["status"] = "ok"
	payload["target_date"] = req.TargetDate
	writeJSON(w, http.StatusOK, payload)
}

type debugSkipRequest struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

func (s *Server) handleDebugSkip(w http.ResponseWriter, r *http.Request) {
	var req debugSkipRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	edited := candle.Candle{Time: req.Time, Open: req.Open, High: req.High, Low: req.Low, Close: req.Close, Volume: req.Volume}
	res, err := s.session.Skip(r.Context(), edited)
	if err != nil {
		writeError(w, transitionStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resultPayload(res))
}

func (s *Server) handleDebugSetTimeframe(w http.ResponseWriter, r *http.Request) {
	tf, err := candle.ParseTimeframe(mux.Vars(r)["tf"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.requireAvailable(tf); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.session.SwitchTimeframe(r.Context(), tf)
	if err != nil {
		writeError(w, transitionStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resultPayload(res))
}

type setSpeedRequest struct {
	Speed float64 `json:"speed"`
}

func (s *Server) handleDebugSetSpeed(w http.ResponseWriter, r *http.Request) {
	var req setSpeedRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.session.SetSpeed(req.Speed)
	writeJSON(w, http.StatusOK, map[string]float64{"speed": s.session.Speed()})
}

func (s *Server) handleDebugTogglePlay(w http.ResponseWriter, r *http.Request) {
	playing := s.session.TogglePlay()
	writeJSON(w, http.StatusOK, map[string]bool{"playing": playing})
}

func (s *Server) handleDebugState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Debug())
}

func resultPayload(res *transition.Result) map[string]interface{} {
	return map[string]interface{}{
		"transaction_id":  res.TransactionID,
		"timeframe":       res.Timeframe.String(),
		"candles":         res.Candles,
		"cursor_time":     res.CursorTime,
		"recreated":       res.Recreated,
		"autoplay_paused": res.AutoplayPaused,
		"at_end":          res.AtEnd,
		"clear_cache":     res.ClearCache,
		"load_anchor":     res.LoadAnchor,
	}
}

func transitionStatus(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
