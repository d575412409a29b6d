// Package session groups everything that is state for exactly one
// connected chart client — its time cursor, lifecycle, skip log,
// transition coordinator, and duplex channel — behind a single handle,
// rather than the global mutable singletons a single-client prototype of
// this server would otherwise reach for.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/thrasher-corp/candlereplay/internal/broadcaster"
	"github.com/thrasher-corp/candlereplay/internal/candle"
	"github.com/thrasher-corp/candlereplay/internal/cursor"
	"github.com/thrasher-corp/candlereplay/internal/lifecycle"
	"github.com/thrasher-corp/candlereplay/internal/replaylog"
	"github.com/thrasher-corp/candlereplay/internal/skipstore"
	"github.com/thrasher-corp/candlereplay/internal/store"
	"github.com/thrasher-corp/candlereplay/internal/transition"
)

// Session is one connected client's state: its playback position,
// lifecycle, skip log, and the coordinator that serializes every change
// to them.
type Session struct {
	ID string

	mu        sync.RWMutex
	timeframe candle.Timeframe
	playing   bool
	speed     float64

	store       *store.Store
	cursor      *cursor.Cursor
	lifecycle   *lifecycle.Manager
	skips       *skipstore.Store
	coordinator *transition.Coordinator
	conn        *broadcaster.Conn

	stopAutoplay chan struct{}
}

// New builds a session over st, starting at defaultTF with its cursor
// anchored at the last candle of defaultTF's historical data.
func New(id string, st *store.Store, defaultTF candle.Timeframe, windowSize int) (*Session, error) {
	last, err := st.Last(defaultTF)
	if err != nil {
		return nil, err
	}
	s := &Session{
		ID:        id,
		timeframe: defaultTF,
		speed:     1.0,
		store:     st,
		cursor:    cursor.NewAnchored(last.Time),
		lifecycle: lifecycle.New(),
		skips:     skipstore.New(),
	}
	s.coordinator = transition.New(st, s.skips, s.cursor, s.lifecycle, nil, windowSize)
	s.coordinator.SetOnPrePhase(s.pauseAutoplayForTransition)
	return s, nil
}

// TimeframeAvailable reports whether historical data has been loaded for
// tf, so handlers can reject a switch to it with a client error instead
// of a transaction failure.
func (s *Session) TimeframeAvailable(tf candle.Timeframe) bool {
	return s.store.Available(tf)
}

// pauseAutoplayForTransition is the coordinator's onPrePhase hook: any
// externally-initiated transition pauses autoplay if it is running, so a
// go-to-date or skip issued mid-playback doesn't race the next tick.
func (s *Session) pauseAutoplayForTransition() bool {
	s.mu.Lock()
	wasPlaying := s.playing
	s.playing = false
	s.mu.Unlock()
	if wasPlaying {
		s.stopAutoplayLoop()
	}
	return wasPlaying
}

// AttachConn points the session's broadcaster at a newly (re)established
// websocket connection.
func (s *Session) AttachConn(conn *broadcaster.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
	s.coordinator.SetConn(conn)
}

// AckRecreation records the client's acknowledgement of a
// chart_series_recreation command, unblocking the DESTRUCT phase of the
// transaction identified by txID before its ack timeout elapses.
func (s *Session) AckRecreation(txID string) {
	s.coordinator.AckRecreation(txID)
}

// Timeframe returns the session's current active timeframe.
func (s *Session) Timeframe() candle.Timeframe {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timeframe
}

// GoToDate jumps the session to date on its current timeframe.
func (s *Session) GoToDate(ctx context.Context, date int64) (*transition.Result, error) {
	tf := s.Timeframe()
	return s.coordinator.GoToDate(ctx, date, tf)
}

// SwitchTimeframe moves the session onto tf.
func (s *Session) SwitchTimeframe(ctx context.Context, tf candle.Timeframe) (*transition.Result, error) {
	res, err := s.coordinator.SwitchTimeframe(ctx, tf)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.timeframe = tf
	s.mu.Unlock()
	return res, nil
}

// Skip records a debug skip edit at the session's current timeframe.
func (s *Session) Skip(ctx context.Context, edited candle.Candle) (*transition.Result, error) {
	tf := s.Timeframe()
	return s.coordinator.Skip(ctx, tf, tf, edited)
}

// SetSpeed adjusts the autoplay tick interval multiplier.
func (s *Session) SetSpeed(speed float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if speed <= 0 {
		speed = 1.0
	}
	s.speed = speed
}

// Speed returns the current autoplay speed multiplier.
func (s *Session) Speed() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.speed
}

// TogglePlay flips autoplay on or off, starting or stopping the
// background tick loop as needed. It returns the new playing state.
func (s *Session) TogglePlay() bool {
	s.mu.Lock()
	playing := !s.playing
	s.playing = playing
	s.mu.Unlock()

	if playing {
		s.startAutoplay()
	} else {
		s.stopAutoplayLoop()
	}
	return playing
}

func (s *Session) startAutoplay() {
	s.mu.Lock()
	if s.stopAutoplay != nil {
		s.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	s.stopAutoplay = stop
	s.mu.Unlock()

	go func() {
		const baseInterval = time.Second
		for {
			s.mu.RLock()
			interval := time.Duration(float64(baseInterval) / s.speed)
			tf := s.timeframe
			s.mu.RUnlock()

			select {
			case <-stop:
				return
			case <-time.After(interval):
			}

			if s.coordinator.IsTransitioning() {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			res, err := s.coordinator.AutoplayTick(ctx, tf)
			cancel()
			if err != nil {
				replaylog.Warnf(replaylog.Global, "session %s autoplay tick failed: %v", s.ID, err)
				continue
			}
			if res.AtEnd {
				replaylog.Infof(replaylog.Global, "session %s autoplay reached the last available candle, stopping", s.ID)
				s.mu.Lock()
				s.playing = false
				s.mu.Unlock()
				s.stopAutoplayLoop()
				return
			}
		}
	}()
}

func (s *Session) stopAutoplayLoop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopAutoplay != nil {
		close(s.stopAutoplay)
		s.stopAutoplay = nil
	}
}

// DebugState is a snapshot of session state for the debug/introspection
// endpoint.
type DebugState struct {
	Timeframe         string  `json:"timeframe"`
	CursorTime        int64   `json:"cursor_time"`
	CursorMode        string  `json:"cursor_mode"`
	Playing           bool    `json:"playing"`
	Speed             float64 `json:"speed"`
	LifecycleState    string  `json:"lifecycle_state"`
	Version           int     `json:"version"`
	SkipOpsSinceClean int     `json:"skip_ops_since_clean"`
	SkipEventCount    int     `json:"skip_event_count"`
}

// Debug returns a snapshot of the session's current state.
func (s *Session) Debug() DebugState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return DebugState{
		Timeframe:         s.timeframe.String(),
		CursorTime:        s.cursor.Current(),
		CursorMode:        s.cursor.Mode().String(),
		Playing:           s.playing,
		Speed:             s.speed,
		LifecycleState:    s.lifecycle.State().String(),
		Version:           s.lifecycle.Version(),
		SkipOpsSinceClean: s.lifecycle.SkipOpsSinceClean(),
		SkipEventCount:    s.skips.Count(),
	}
}

// Close tears the session's background work down.
func (s *Session) Close() {
	s.stopAutoplayLoop()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
	}
}
